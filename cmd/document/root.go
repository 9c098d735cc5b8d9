package main

import (
	"context"
	"os"

	"github.com/shopdesk/docs-service/internal/config"
	"github.com/shopdesk/docs-service/pkg/logger"
	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "document",
	Short: "versioned policy and page store",
	Example: `document serve
document migrate
document version`,
	SilenceUsage: true,
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(versionCmd())
	rootCmd.SetHelpCommand(&cobra.Command{Use: "no-help", Hidden: true})
	rootCmd.CompletionOptions.HiddenDefaultCmd = true
}

// loadConfig reads configuration and applies the logging settings.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	logger.Init(cfg.Log.Level)
	logger.SetFormat(cfg.Log.Format)
	logger.Debugf("startup: LOG_LEVEL=%s", logger.LevelString())
	return cfg, nil
}
