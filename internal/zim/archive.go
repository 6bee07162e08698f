package zim

import (
	"encoding/binary"
	"fmt"
	"os"
	"strconv"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// maxRedirectDepth bounds redirect-chain following so a cyclic or
// pathological archive cannot hang a caller.
const maxRedirectDepth = 16

// Article is the resolved, fully-decompressed content of a non-redirect
// directory entry.
type Article struct {
	Index     uint32
	Namespace byte
	URL       string
	Title     string
	MimeType  string
	Content   []byte
}

// Archive is an open, read-only handle onto a ZIM file. It is safe for
// concurrent use: all on-disk reads are positional (io.ReaderAt) and the
// cluster cache is internally synchronized.
type Archive struct {
	file *os.File
	size int64

	header Header
	mimes  []string

	urlPtrs     []uint64
	titlePtrs   []uint32
	clusterPtrs []uint64

	clusterCache *lru.Cache[uint64, *clusterPayload]
	clusterGroup singleflight.Group
}

// Open parses path as a ZIM archive, reading its header and index tables
// into memory. The underlying file is kept open until Close.
func Open(path string) (*Archive, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	a := &Archive{file: f, size: info.Size()}
	if err := a.load(); err != nil {
		f.Close()
		return nil, err
	}
	return a, nil
}

func (a *Archive) load() error {
	header, err := parseHeader(a.file)
	if err != nil {
		return err
	}
	a.header = header

	mimes, err := readMimeList(a.file, header.MimeListPos)
	if err != nil {
		return fmt.Errorf("zim: reading mime list: %w", err)
	}
	a.mimes = mimes

	a.urlPtrs, err = readOffsetTable(a.file, header.URLPtrPos, header.ArticleCount)
	if err != nil {
		return fmt.Errorf("zim: reading url pointer table: %w", err)
	}

	// The title pointer table holds u32 entry indices, not u64 offsets.
	if n := int(header.ArticleCount); n > 0 {
		buf := make([]byte, n*4)
		if err := readFullAt(a.file, buf, int64(header.TitlePtrPos)); err != nil {
			return fmt.Errorf("zim: reading title pointer table: %w", err)
		}
		a.titlePtrs = make([]uint32, n)
		for i := range a.titlePtrs {
			a.titlePtrs[i] = binary.LittleEndian.Uint32(buf[i*4 : i*4+4])
		}
	}

	a.clusterPtrs, err = readOffsetTable(a.file, header.ClusterPtrPos, header.ClusterCount)
	if err != nil {
		return fmt.Errorf("zim: reading cluster pointer table: %w", err)
	}

	cache, err := newClusterCache(DefaultClusterCacheSize)
	if err != nil {
		return err
	}
	a.clusterCache = cache

	return nil
}

// readOffsetTable reads count consecutive little-endian uint64 entries
// starting at offset, used for the URL and cluster pointer tables, which
// share the same on-disk layout.
func readOffsetTable(f *os.File, offset uint64, count uint32) ([]uint64, error) {
	if count == 0 {
		return nil, nil
	}
	buf := make([]byte, int(count)*8)
	if err := readFullAt(f, buf, int64(offset)); err != nil {
		return nil, err
	}
	out := make([]uint64, count)
	for i := range out {
		out[i] = binary.LittleEndian.Uint64(buf[i*8 : i*8+8])
	}
	return out, nil
}

// Close releases the underlying file handle. The cluster cache is dropped;
// it is not persisted across Close/Open.
func (a *Archive) Close() error {
	return a.file.Close()
}

// UUID returns the archive's unique identifier.
func (a *Archive) UUID() string { return a.header.UUID.String() }

// ArticleCount returns the number of directory entries (articles and
// redirects combined).
func (a *Archive) ArticleCount() uint32 { return a.header.ArticleCount }

// Size returns the archive file's size in bytes.
func (a *Archive) Size() int64 { return a.size }

// resolveMime attaches the entry's MIME type string, a no-op for redirects.
func (a *Archive) resolveMime(e *Entry) (string, error) {
	if e.IsRedirect {
		return "", nil
	}
	return mimeTypeFor(a.mimes, e.MimeType)
}

// GetArticleByIndex resolves the directory entry at idx to its content. If
// followRedirect is true, redirects are chased up to maxRedirectDepth hops.
// If false and idx itself names a redirect, the returned Article carries no
// content: its MimeType field holds the decimal redirect target index
// instead, so a caller can inspect the redirect without resolving it.
func (a *Archive) GetArticleByIndex(idx uint32, followRedirect bool) (*Article, error) {
	e, err := a.ReadEntry(idx)
	if err != nil {
		return nil, err
	}

	if e.IsRedirect && !followRedirect {
		return &Article{
			Index:     e.Index,
			Namespace: e.Namespace,
			URL:       e.URL,
			Title:     e.DisplayTitle(),
			MimeType:  strconv.FormatUint(uint64(e.RedirectIndex), 10),
			Content:   nil,
		}, nil
	}

	for depth := 0; e.IsRedirect; depth++ {
		if depth >= maxRedirectDepth {
			return nil, fmt.Errorf("entry %d: %w", idx, ErrRedirectLoop)
		}
		e, err = a.ReadEntry(e.RedirectIndex)
		if err != nil {
			return nil, err
		}
	}

	mime, err := a.resolveMime(e)
	if err != nil {
		return nil, err
	}
	content, err := a.GetBlob(e.ClusterNum, e.BlobNum)
	if err != nil {
		return nil, err
	}

	return &Article{
		Index:     e.Index,
		Namespace: e.Namespace,
		URL:       e.URL,
		Title:     e.DisplayTitle(),
		MimeType:  mime,
		Content:   content,
	}, nil
}

// GetArticleByURL resolves the (namespace, url) key to its content,
// following redirects.
func (a *Archive) GetArticleByURL(namespace byte, url string) (*Article, error) {
	_, idx, err := a.FindByURL(namespace, url)
	if err != nil {
		return nil, err
	}
	return a.GetArticleByIndex(idx, true)
}

// GetMainPage resolves the archive's designated landing page.
func (a *Archive) GetMainPage() (*Article, error) {
	if a.header.MainPage == 0xFFFFFFFF {
		return nil, fmt.Errorf("archive has no main page: %w", ErrEntryNotFound)
	}
	return a.GetArticleByIndex(a.header.MainPage, true)
}

// findNamespaceStart returns the smallest entry index whose namespace is >=
// ns, using the same ordering the URL pointer table is sorted by.
func (a *Archive) findNamespaceStart(ns byte) (uint32, error) {
	lo, hi := uint32(0), a.header.ArticleCount
	for lo < hi {
		mid := lo + (hi-lo)/2
		e, err := a.ReadEntry(mid)
		if err != nil {
			return 0, err
		}
		if e.Namespace < ns {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo, nil
}

// Metadata collects the archive's namespace-M entries (title, description,
// language, and similar key/value metadata) into a map keyed by entry URL.
func (a *Archive) Metadata() (map[string][]byte, error) {
	start, err := a.findNamespaceStart('M')
	if err != nil {
		return nil, err
	}

	out := make(map[string][]byte)
	for idx := start; idx < a.header.ArticleCount; idx++ {
		e, err := a.ReadEntry(idx)
		if err != nil {
			return nil, err
		}
		if e.Namespace != 'M' {
			break
		}
		if e.IsRedirect {
			continue
		}
		content, err := a.GetBlob(e.ClusterNum, e.BlobNum)
		if err != nil {
			return nil, err
		}
		out[e.URL] = content
	}
	return out, nil
}
