// Package registry catalogs the ZIM archives found in a directory and lazily
// opens them (with their title index alongside) on first access.
package registry

import "errors"

var (
	ErrArchiveNotFound = errors.New("registry: archive not found")
	ErrNoArchivesFound = errors.New("registry: no archives found in directory")
)
