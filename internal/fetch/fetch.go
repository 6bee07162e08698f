// Package fetch downloads ZIM archives from the Kiwix mirror into a local
// archive directory.
package fetch

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// Catalog lists named Kiwix dumps by short name. It is a small, curated
// subset meant for getting started quickly; Download itself accepts any
// ZIM URL.
var Catalog = map[string]string{
	"wikipedia-top100":      "https://download.kiwix.org/zim/wikipedia/wikipedia_en_100_2025-10.zim",
	"wikipedia-top100-mini": "https://download.kiwix.org/zim/wikipedia/wikipedia_en_100_mini_2025-10.zim",
	"wikipedia-en":          "https://download.kiwix.org/zim/wikipedia/wikipedia_en_all_nopic_2025-12.zim",
}

// Progress reports incremental download state to a caller-supplied
// callback, so a CLI can render a progress bar without fetch depending on
// any particular UI.
type Progress struct {
	TotalBytes      int64
	DownloadedBytes int64
}

// ProgressFunc is invoked periodically while Download runs.
type ProgressFunc func(Progress)

// Download retrieves url into destDir, naming the local file after the
// URL's final path segment and skipping the download if a file of that
// name already exists there. url may be an arbitrary ZIM URL; Catalog's
// entries are just a curated set of known-good ones.
func Download(url, destDir string, onProgress ProgressFunc) (string, error) {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("fetch: creating %s: %w", destDir, err)
	}

	parts := strings.Split(url, "/")
	destPath := filepath.Join(destDir, parts[len(parts)-1])
	if _, err := os.Stat(destPath); err == nil {
		return destPath, nil
	}

	resp, err := http.Get(url)
	if err != nil {
		return "", fmt.Errorf("fetch: requesting %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch: %s: unexpected status %s", url, resp.Status)
	}

	tmpPath := destPath + ".tmp"
	out, err := os.Create(tmpPath)
	if err != nil {
		return "", fmt.Errorf("fetch: creating %s: %w", tmpPath, err)
	}
	defer out.Close()

	var downloaded int64
	buf := make([]byte, 32*1024)
	for {
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := out.Write(buf[:n]); werr != nil {
				os.Remove(tmpPath)
				return "", fmt.Errorf("fetch: writing %s: %w", tmpPath, werr)
			}
			downloaded += int64(n)
			if onProgress != nil {
				onProgress(Progress{TotalBytes: resp.ContentLength, DownloadedBytes: downloaded})
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			os.Remove(tmpPath)
			return "", fmt.Errorf("fetch: reading response: %w", rerr)
		}
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("fetch: renaming to %s: %w", destPath, err)
	}
	return destPath, nil
}
