package zim

import (
	"fmt"
	"strings"
)

// FindByURL performs a binary search over the URL pointer table for the
// entry whose (namespace, url) key matches exactly. The comparison is
// case-sensitive, byte-wise, and does not percent-decode url — callers pass
// already-decoded paths.
func (a *Archive) FindByURL(namespace byte, url string) (*Entry, uint32, error) {
	lo, hi := uint32(0), a.header.ArticleCount
	for lo < hi {
		mid := lo + (hi-lo)/2
		e, err := a.ReadEntry(mid)
		if err != nil {
			return nil, 0, err
		}
		switch compareKey(e.Namespace, e.URL, namespace, url) {
		case 0:
			return e, mid, nil
		case -1:
			lo = mid + 1
		default:
			hi = mid
		}
	}
	return nil, 0, fmt.Errorf("%c/%s: %w", namespace, url, ErrEntryNotFound)
}

// compareKey orders two (namespace, url) keys the same way the URL pointer
// table is sorted: by namespace + "/" + url, byte-wise ascending.
func compareKey(ns1 byte, url1 string, ns2 byte, url2 string) int {
	if ns1 != ns2 {
		if ns1 < ns2 {
			return -1
		}
		return 1
	}
	return strings.Compare(url1, url2)
}
