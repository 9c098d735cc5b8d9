// Package app assembles the document service from configuration.
package app

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/shopdesk/docs-service/internal/config"
	"github.com/shopdesk/docs-service/internal/database"
	"github.com/shopdesk/docs-service/internal/document/lock"
	"github.com/shopdesk/docs-service/internal/document/repository"
	"github.com/shopdesk/docs-service/internal/document/service"
	"github.com/shopdesk/docs-service/internal/oidc"
	"github.com/shopdesk/docs-service/internal/server"
	"github.com/shopdesk/docs-service/internal/storage"
	"github.com/shopdesk/docs-service/pkg/logger"
	"go.mongodb.org/mongo-driver/mongo"
)

var _ service.SnapshotReader = (*storage.MinIOStorage)(nil)

// App holds the wired service and the resources it owns.
type App struct {
	Service *service.Service
	Server  *server.Server
	Repo    repository.Repository

	mongo *mongo.Client
	redis *redis.Client
}

// Build connects every configured backend. MongoDB falls back to the
// in-memory repository when no URI is set; Redis and MinIO are optional
// unless the configuration requires them.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{}
	checks := map[string]server.CheckFunc{}

	if cfg.MongoDB.URI != "" {
		client, err := database.ConnectMongoWithRetry(ctx, cfg.MongoDB.URI, cfg.MongoDB.Timeout, cfg.MongoDB.ConnectRetries)
		if err != nil {
			return nil, fmt.Errorf("connect mongo: %w", err)
		}
		a.mongo = client
		repo := repository.NewMongoRepo(client.Database(cfg.MongoDB.Database))
		if err := repo.EnsureIndexes(ctx); err != nil {
			a.Close(ctx)
			return nil, fmt.Errorf("ensure indexes: %w", err)
		}
		a.Repo = repo
		logger.Infof("using MongoDB database %q", cfg.MongoDB.Database)
	} else {
		a.Repo = repository.NewMemoryRepo()
		logger.Warn("MONGODB_URI not set; documents are kept in memory only")
	}

	if cfg.Redis.Host != "" {
		client, err := database.ConnectRedis(ctx, cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			if cfg.Document.LockBackend == "redis" || cfg.RateLimit.UseRedis {
				a.Close(ctx)
				return nil, fmt.Errorf("connect redis: %w", err)
			}
			logger.Warnf("redis unavailable, continuing without it: %v", err)
		} else {
			a.redis = client
			checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
		}
	}

	var locks lock.Locker = lock.NewLocal()
	if cfg.Document.LockBackend == "redis" {
		if a.redis == nil {
			a.Close(ctx)
			return nil, fmt.Errorf("redis document locks need REDIS_HOST")
		}
		locks = lock.NewRedis(a.redis, "doclock:", cfg.Document.LockTTL, cfg.Document.LockWait)
		logger.Info("using Redis document locks")
	}

	opts := service.Options{RevertStatus: cfg.Document.RevertStatus, ExportURLTTL: cfg.Document.ExportURLTTL}
	if cfg.MinIO.Enabled() {
		st, err := storage.NewMinIOStorage(ctx, &cfg.MinIO)
		if err != nil {
			a.Close(ctx)
			return nil, fmt.Errorf("connect minio: %w", err)
		}
		opts.Snapshots = st
		checks["storage"] = st.Ping
	}

	verifier, err := oidc.New(ctx, oidc.Config{
		Issuer:             oidcIssuer(cfg.Keycloak),
		ClientID:           cfg.Keycloak.ClientID,
		AllowInsecureToken: cfg.Keycloak.AllowInsecureToken,
	})
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	if cfg.Keycloak.AllowInsecureToken && cfg.Keycloak.URL == "" {
		logger.Warn("enabling insecure token verifier (integration mode)")
	}

	a.Service = service.New(a.Repo, locks, opts)
	a.Server = server.New(cfg, server.Deps{
		Service:  a.Service,
		Redis:    a.redis,
		Verifier: verifier,
		Checks:   checks,
	})
	return a, nil
}

func oidcIssuer(k config.KeycloakConfig) string {
	if k.URL == "" {
		return ""
	}
	return oidc.Issuer(k.URL, k.Realm)
}

// Close releases database connections.
func (a *App) Close(ctx context.Context) {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.mongo != nil {
		_ = a.mongo.Disconnect(ctx)
	}
}
