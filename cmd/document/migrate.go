package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopdesk/docs-service/internal/database"
	"github.com/shopdesk/docs-service/internal/document/repository"
	"github.com/shopdesk/docs-service/pkg/logger"
	"github.com/spf13/cobra"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "create MongoDB indexes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.MongoDB.URI == "" {
				return errors.New("MONGODB_URI is required for migrate")
			}
			ctx := cmd.Context()
			client, err := database.ConnectMongoWithRetry(ctx, cfg.MongoDB.URI, cfg.MongoDB.Timeout, cfg.MongoDB.ConnectRetries)
			if err != nil {
				return err
			}
			defer func() { _ = client.Disconnect(context.Background()) }()

			if err := repository.NewMongoRepo(client.Database(cfg.MongoDB.Database)).EnsureIndexes(ctx); err != nil {
				return fmt.Errorf("ensure indexes: %w", err)
			}
			logger.Infof("indexes ready in %q", cfg.MongoDB.Database)
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "print the build version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}
