package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// The .env file is loaded from a package-level variable initializer rather
// than an init function: every variable is initialized before any init
// function runs, so the ZIMSERVD_* values are in place when the subcommands'
// init functions compute their flag defaults.
var _ = loadDotEnv()

func loadDotEnv() bool {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logrus.WithError(err).Warn("could not load .env file")
		return false
	}
	return true
}

var rootCmd = &cobra.Command{
	Use:   "zimservd",
	Short: "zimservd serves ZIM archives over HTTP with title search",
	Long: `zimservd reads one or more ZIM archives and serves their articles
over HTTP, with a BM25-ranked title search built on a Bluge index.`,
	Run: func(cmd *cobra.Command, args []string) {
		runServe()
	},
}

// Execute runs the root command, exiting non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logrus.WithError(err).Fatal("zimservd exited with an error")
	}
}

func main() {
	Execute()
}
