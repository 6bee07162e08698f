package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/kiwixgo/zimservd/internal/search"
	"github.com/kiwixgo/zimservd/internal/zim"
)

// ArchiveInfo is the catalog-level metadata the registry can report without
// opening an archive: just enough for a listing page.
type ArchiveInfo struct {
	Name string // filename without the .zim extension; used in URLs
	Path string
	Size int64

	// DisplaySize is a human-readable rendering of Size (e.g. "1.2 GB").
	DisplaySize string
}

// loaded is the lazily-populated, opened state for one catalog entry.
type loaded struct {
	archive *zim.Archive
	index   *search.Index // opened (and built first if needed) by Get
}

// Registry catalogs the ZIM archives in a directory and opens them on
// first use. Archive handles are cached; a caller that hits a corrupt or
// since-removed archive should call Evict so the next Get retries fresh.
type Registry struct {
	indexDir string

	mu      sync.RWMutex
	catalog map[string]ArchiveInfo
	opened  map[string]*loaded

	group singleflight.Group
}

// New scans archiveDir for *.zim files and returns a Registry over them.
// Archives are not opened until first requested via Get.
func New(archiveDir, indexDir string) (*Registry, error) {
	entries, err := os.ReadDir(archiveDir)
	if err != nil {
		return nil, fmt.Errorf("registry: reading %s: %w", archiveDir, err)
	}

	catalog := make(map[string]ArchiveInfo)
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".zim") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			logrus.WithError(err).WithField("file", e.Name()).Warn("registry: skipping unreadable archive")
			continue
		}
		name := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		catalog[name] = ArchiveInfo{
			Name:        name,
			Path:        filepath.Join(archiveDir, e.Name()),
			Size:        info.Size(),
			DisplaySize: humanize.Bytes(uint64(info.Size())),
		}
	}
	if len(catalog) == 0 {
		return nil, ErrNoArchivesFound
	}

	return &Registry{
		indexDir: indexDir,
		catalog:  catalog,
		opened:   make(map[string]*loaded),
	}, nil
}

// List returns the catalog sorted by archive name.
func (r *Registry) List() []ArchiveInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ArchiveInfo, 0, len(r.catalog))
	for _, info := range r.catalog {
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// indexPath computes where name's title index should live.
func (r *Registry) indexPath(info ArchiveInfo) string {
	if r.indexDir == "" {
		return search.DefaultIndexPath(info.Path)
	}
	return filepath.Join(r.indexDir, info.Name+".bluge")
}

// Get returns the opened archive and its title index for the named catalog
// entry. On first load, an index that cannot be opened is built from the
// archive and then opened. Concurrent first-loads of the same name are
// collapsed via single-flight.
func (r *Registry) Get(name string) (*zim.Archive, *search.Index, error) {
	r.mu.RLock()
	if l, ok := r.opened[name]; ok {
		r.mu.RUnlock()
		return l.archive, l.index, nil
	}
	info, known := r.catalog[name]
	r.mu.RUnlock()
	if !known {
		return nil, nil, fmt.Errorf("%s: %w", name, ErrArchiveNotFound)
	}

	v, err, _ := r.group.Do(name, func() (interface{}, error) {
		r.mu.RLock()
		if l, ok := r.opened[name]; ok {
			r.mu.RUnlock()
			return l, nil
		}
		r.mu.RUnlock()

		archive, err := zim.Open(info.Path)
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", name, err)
		}

		indexPath := r.indexPath(info)
		idx, err := search.Open(indexPath)
		if err != nil {
			logrus.WithField("archive", name).Info("registry: building missing search index")
			if buildErr := search.Build(archive, indexPath); buildErr != nil {
				archive.Close()
				return nil, fmt.Errorf("building index for %s: %w", name, buildErr)
			}
			idx, err = search.Open(indexPath)
			if err != nil {
				archive.Close()
				return nil, fmt.Errorf("opening freshly built index for %s: %w", name, err)
			}
		}

		l := &loaded{archive: archive, index: idx}
		r.mu.Lock()
		r.opened[name] = l
		r.mu.Unlock()
		return l, nil
	})
	if err != nil {
		return nil, nil, err
	}
	l := v.(*loaded)
	return l.archive, l.index, nil
}

// Evict closes and forgets the opened handle for name, if any, so the next
// Get reopens it from disk. Callers should do this after observing a
// format or I/O error that suggests the archive or its index is stale.
func (r *Registry) Evict(name string) {
	r.mu.Lock()
	l, ok := r.opened[name]
	if ok {
		delete(r.opened, name)
	}
	r.mu.Unlock()

	if !ok {
		return
	}
	if l.index != nil {
		l.index.Close()
	}
	l.archive.Close()
}

// AttachIndex records a newly built index for name, making it available to
// subsequent Get calls without reopening the archive.
func (r *Registry) AttachIndex(name string, idx *search.Index) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.opened[name]; ok {
		if l.index != nil {
			l.index.Close()
		}
		l.index = idx
	}
}

// Close closes every opened archive and index handle.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var firstErr error
	for name, l := range r.opened {
		if l.index != nil {
			l.index.Close()
		}
		if err := l.archive.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing %s: %w", name, err)
		}
		delete(r.opened, name)
	}
	return firstErr
}
