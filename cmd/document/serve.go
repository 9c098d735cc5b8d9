package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/shopdesk/docs-service/internal/app"
	"github.com/shopdesk/docs-service/pkg/logger"
	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	var port string

	command := &cobra.Command{
		Use:   "serve",
		Short: "run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if port != "" {
				cfg.Server.Port = port
			}
			logger.Infof("config loaded: mongo=%v redis=%v minio=%v oidc=%v locks=%s",
				cfg.MongoDB.URI != "", cfg.Redis.Host != "", cfg.MinIO.Enabled(),
				cfg.Keycloak.URL != "" || cfg.Keycloak.AllowInsecureToken, cfg.Document.LockBackend)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := app.Build(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close(context.Background())

			return a.Server.Run(ctx)
		},
	}

	command.Flags().StringVarP(&port, "port", "p", "", "listen port (overrides SERVER_PORT)")
	return command
}
