// Package zim implements a reader for the ZIM archive format: header and
// MIME-list parsing, directory-entry and URL-pointer-table lookups, and
// random-access cluster decompression with an LRU cache.
package zim

import "errors"

// Sentinel errors per the archive's error-handling contract. Callers should
// use errors.Is against these; call sites wrap them with fmt.Errorf("%w", ...)
// for context.
var (
	ErrInvalidMagic           = errors.New("zim: invalid magic number")
	ErrTruncatedArchive       = errors.New("zim: truncated archive")
	ErrUnsupportedCompression = errors.New("zim: unsupported compression type")
	ErrDecompressionFailed    = errors.New("zim: decompression failed")
	ErrBlobOutOfRange         = errors.New("zim: blob index out of range")
	ErrRedirectLoop           = errors.New("zim: redirect chain too deep")
	ErrEntryNotFound          = errors.New("zim: entry not found")
	ErrMimeIDOutOfRange       = errors.New("zim: mime id out of range")
)
