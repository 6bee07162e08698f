package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/kiwixgo/zimservd/internal/fetch"
)

var (
	fetchURL  string
	fetchDest string
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download a ZIM archive into the archive directory",
	Example: `  zimservd fetch --url https://download.kiwix.org/zim/wikipedia/wikipedia_en_100_mini_2025-10.zim --dest ./data
  zimservd fetch --list`,
	Run: func(cmd *cobra.Command, args []string) {
		if list, _ := cmd.Flags().GetBool("list"); list {
			runFetchList()
			return
		}
		runFetch()
	},
}

func init() {
	rootCmd.AddCommand(fetchCmd)
	fetchCmd.Flags().StringVar(&fetchURL, "url", "", "URL of the ZIM file to download")
	fetchCmd.Flags().StringVar(&fetchDest, "dest", "./data", "Destination directory")
	fetchCmd.Flags().Bool("list", false, "List known Kiwix dumps and exit")
}

func runFetchList() {
	fmt.Println("Known dumps:")
	for name, url := range fetch.Catalog {
		fmt.Printf("  %-24s %s\n", name, url)
	}
}

func runFetch() {
	url := fetchURL
	if named, ok := fetch.Catalog[url]; ok {
		url = named
	}
	if url == "" {
		logrus.Fatal("--url is required (see --list for known dumps)")
	}

	logrus.WithFields(logrus.Fields{"url": url, "dest": fetchDest}).Info("downloading archive")

	path, err := fetch.Download(url, fetchDest, func(p fetch.Progress) {
		if p.TotalBytes > 0 {
			pct := float64(p.DownloadedBytes) / float64(p.TotalBytes) * 100
			fmt.Printf("\rdownloading: %.1f%% (%d MB / %d MB)", pct, p.DownloadedBytes/(1024*1024), p.TotalBytes/(1024*1024))
		} else {
			fmt.Printf("\rdownloaded: %d MB", p.DownloadedBytes/(1024*1024))
		}
	})
	fmt.Println()
	if err != nil {
		logrus.WithError(err).Fatal("download failed")
	}

	logrus.WithField("path", path).Info("download complete")
	fmt.Printf("run: zimservd serve --archives %s\n", fetchDest)
}
