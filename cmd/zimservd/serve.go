package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/kiwixgo/zimservd/internal/registry"
	"github.com/kiwixgo/zimservd/internal/server"
)

var (
	serveArchiveDir string
	serveIndexDir   string
	serveTemplate   string
	serveBind       string
	servePort       string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve ZIM archives over HTTP",
	Example: `  zimservd serve --archives ./data --template ./templates/templates.html
  ZIMSERVD_ARCHIVES=./data zimservd serve`,
	Run: func(cmd *cobra.Command, args []string) {
		runServe()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	bindServeFlags(serveCmd)
	bindServeFlags(rootCmd) // running zimservd with no subcommand defaults to serve
}

func bindServeFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&serveArchiveDir, "archives", envOr("ZIMSERVD_ARCHIVES", "./data"), "Directory containing .zim archives")
	cmd.Flags().StringVar(&serveIndexDir, "index-dir", envOr("ZIMSERVD_INDEX_DIR", ""), "Directory for search indexes (default: alongside each archive)")
	cmd.Flags().StringVar(&serveTemplate, "template", envOr("ZIMSERVD_TEMPLATE", "./templates/templates.html"), "Path to the HTML template file")
	cmd.Flags().StringVar(&serveBind, "bind", envOr("ZIMSERVD_BIND", "0.0.0.0"), "Address to bind")
	cmd.Flags().StringVar(&servePort, "port", envOr("ZIMSERVD_PORT", "8080"), "Port to listen on")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func runServe() {
	reg, err := registry.New(serveArchiveDir, serveIndexDir)
	if err != nil {
		logrus.WithError(err).Fatal("failed to build archive registry")
	}
	defer reg.Close()

	srv, err := server.New(reg, serveTemplate)
	if err != nil {
		logrus.WithError(err).Fatal("failed to initialize server")
	}

	addr := fmt.Sprintf("%s:%s", serveBind, servePort)
	logrus.WithField("addr", addr).Info("zimservd listening")
	if err := srv.Echo.Start(addr); err != nil && err != http.ErrServerClosed {
		logrus.WithError(err).Fatal("server stopped")
	}
}
