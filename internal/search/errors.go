// Package search builds and queries a title full-text index over a ZIM
// archive's articles, with a standalone BM25 reranking pass layered on top
// of the underlying index's candidate retrieval.
package search

import "errors"

var (
	ErrIndexBuildFailed = errors.New("search: index build failed")
	ErrIndexCorrupt     = errors.New("search: index is corrupt or unreadable")
	ErrIndexNotFound    = errors.New("search: index not found")
)
