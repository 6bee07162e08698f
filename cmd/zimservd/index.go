package main

import (
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/kiwixgo/zimservd/internal/registry"
)

var (
	indexArchiveDir string
	indexDir        string
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Pre-build the title search index for every archive in a directory",
	Example: `  zimservd index --archives ./data
  zimservd index --archives ./data --index-dir ./data/indexes`,
	Run: func(cmd *cobra.Command, args []string) {
		runIndex()
	},
}

func init() {
	rootCmd.AddCommand(indexCmd)
	indexCmd.Flags().StringVar(&indexArchiveDir, "archives", envOr("ZIMSERVD_ARCHIVES", "./data"), "Directory containing .zim archives")
	indexCmd.Flags().StringVar(&indexDir, "index-dir", envOr("ZIMSERVD_INDEX_DIR", ""), "Directory for search indexes (default: alongside each archive)")
}

func runIndex() {
	reg, err := registry.New(indexArchiveDir, indexDir)
	if err != nil {
		logrus.WithError(err).Fatal("failed to build archive registry")
	}
	defer reg.Close()

	for _, info := range reg.List() {
		logrus.WithField("archive", info.Name).Info("building search index")
		start := time.Now()

		// Get lazily opens the archive and builds its index if one is not
		// already present on disk, which is exactly the work this command
		// exists to force up front.
		if _, _, err := reg.Get(info.Name); err != nil {
			logrus.WithError(err).WithField("archive", info.Name).Error("index build failed")
			continue
		}

		logrus.WithFields(logrus.Fields{
			"archive": info.Name,
			"elapsed": time.Since(start).Round(time.Second),
		}).Info("index build complete")
	}
}
