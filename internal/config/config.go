package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopdesk/docs-service/internal/document"
	"github.com/shopdesk/docs-service/internal/storage"
	"github.com/spf13/viper"
)

// Config holds application configuration
type Config struct {
	Server    ServerConfig
	MongoDB   MongoDBConfig
	Redis     RedisConfig
	RateLimit RateLimitConfig
	Keycloak  KeycloakConfig
	MinIO     storage.MinIOConfig
	Document  DocumentConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port            string
	Host            string
	Environment     string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	CORSOrigins     []string
}

// Addr is the listen address.
func (s ServerConfig) Addr() string { return s.Host + ":" + s.Port }

// MongoDBConfig is optional: an empty URI selects the in-memory repository.
type MongoDBConfig struct {
	URI            string
	Database       string
	Timeout        time.Duration
	ConnectRetries int
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

type RateLimitConfig struct {
	Enabled       bool
	UseRedis      bool
	RPS           float64
	Burst         int
	WindowSeconds int
}

type KeycloakConfig struct {
	URL                string
	Realm              string
	ClientID           string
	AllowInsecureToken bool
}

// DocumentConfig tunes the versioned store.
type DocumentConfig struct {
	// LockBackend is "memory" or "redis".
	LockBackend  string
	LockTTL      time.Duration
	LockWait     time.Duration
	RevertStatus document.Status
	ExportURLTTL time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

// LoadConfig loads configuration from environment variables and an optional
// .env file (ENV_FILE, default ".env").
func LoadConfig() (*Config, error) {
	envFile := os.Getenv("ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	_ = godotenv.Load(envFile)

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("SERVER_PORT", "5010")
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_ENVIRONMENT", "development")
	v.SetDefault("SERVER_READ_TIMEOUT", 30)
	v.SetDefault("SERVER_WRITE_TIMEOUT", 30)
	v.SetDefault("SERVER_SHUTDOWN_TIMEOUT", 10)
	v.SetDefault("CORS_ALLOWED_ORIGINS", "*")
	v.SetDefault("MONGODB_DATABASE", "docs")
	v.SetDefault("MONGODB_TIMEOUT", 10)
	v.SetDefault("MONGODB_CONNECT_RETRIES", 5)
	v.SetDefault("REDIS_PORT", "6379")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("RATE_LIMIT_ENABLED", false)
	v.SetDefault("RATE_LIMIT_USE_REDIS", false)
	v.SetDefault("RATE_LIMIT_RPS", 10.0)
	v.SetDefault("RATE_LIMIT_BURST", 20)
	v.SetDefault("RATE_LIMIT_WINDOW_SECONDS", 1)
	v.SetDefault("ALLOW_INSECURE_TOKEN", false)
	v.SetDefault("MINIO_BUCKET", "document-snapshots")
	v.SetDefault("MINIO_USE_SSL", false)
	v.SetDefault("DOCUMENT_LOCK_BACKEND", "memory")
	v.SetDefault("DOCUMENT_LOCK_TTL_SECONDS", 10)
	v.SetDefault("DOCUMENT_LOCK_WAIT_SECONDS", 5)
	v.SetDefault("DOCUMENT_REVERT_STATUS", string(document.StatusDraft))
	v.SetDefault("DOCUMENT_EXPORT_URL_TTL_MINUTES", 15)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")

	cfg := &Config{
		Server: ServerConfig{
			Port:            v.GetString("SERVER_PORT"),
			Host:            v.GetString("SERVER_HOST"),
			Environment:     v.GetString("SERVER_ENVIRONMENT"),
			ReadTimeout:     time.Duration(v.GetInt("SERVER_READ_TIMEOUT")) * time.Second,
			WriteTimeout:    time.Duration(v.GetInt("SERVER_WRITE_TIMEOUT")) * time.Second,
			ShutdownTimeout: time.Duration(v.GetInt("SERVER_SHUTDOWN_TIMEOUT")) * time.Second,
			CORSOrigins:     splitList(v.GetString("CORS_ALLOWED_ORIGINS")),
		},
		MongoDB: MongoDBConfig{
			URI:            v.GetString("MONGODB_URI"),
			Database:       v.GetString("MONGODB_DATABASE"),
			Timeout:        time.Duration(v.GetInt("MONGODB_TIMEOUT")) * time.Second,
			ConnectRetries: v.GetInt("MONGODB_CONNECT_RETRIES"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("REDIS_HOST"),
			Port:     v.GetString("REDIS_PORT"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		RateLimit: RateLimitConfig{
			Enabled:       v.GetBool("RATE_LIMIT_ENABLED"),
			UseRedis:      v.GetBool("RATE_LIMIT_USE_REDIS"),
			RPS:           v.GetFloat64("RATE_LIMIT_RPS"),
			Burst:         v.GetInt("RATE_LIMIT_BURST"),
			WindowSeconds: v.GetInt("RATE_LIMIT_WINDOW_SECONDS"),
		},
		Keycloak: KeycloakConfig{
			URL:                v.GetString("KEYCLOAK_URL"),
			Realm:              v.GetString("KEYCLOAK_REALM"),
			ClientID:           v.GetString("KEYCLOAK_CLIENT_ID"),
			AllowInsecureToken: v.GetBool("ALLOW_INSECURE_TOKEN"),
		},
		MinIO: storage.MinIOConfig{
			Endpoint:  v.GetString("MINIO_ENDPOINT"),
			AccessKey: v.GetString("MINIO_ACCESS_KEY"),
			SecretKey: os.Getenv("MINIO_SECRET_KEY"),
			UseSSL:    v.GetBool("MINIO_USE_SSL"),
			Bucket:    v.GetString("MINIO_BUCKET"),
		},
		Document: DocumentConfig{
			LockBackend:  strings.ToLower(v.GetString("DOCUMENT_LOCK_BACKEND")),
			LockTTL:      time.Duration(v.GetInt("DOCUMENT_LOCK_TTL_SECONDS")) * time.Second,
			LockWait:     time.Duration(v.GetInt("DOCUMENT_LOCK_WAIT_SECONDS")) * time.Second,
			RevertStatus: document.Status(strings.ToLower(v.GetString("DOCUMENT_REVERT_STATUS"))),
			ExportURLTTL: time.Duration(v.GetInt("DOCUMENT_EXPORT_URL_TTL_MINUTES")) * time.Minute,
		},
		Log: LogConfig{
			Level:  v.GetString("LOG_LEVEL"),
			Format: v.GetString("LOG_FORMAT"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects combinations the service cannot start with.
func (c *Config) Validate() error {
	switch c.Document.LockBackend {
	case "memory":
	case "redis":
		if c.Redis.Host == "" {
			return fmt.Errorf("DOCUMENT_LOCK_BACKEND=redis requires REDIS_HOST")
		}
	default:
		return fmt.Errorf("unknown DOCUMENT_LOCK_BACKEND %q", c.Document.LockBackend)
	}
	if !c.Document.RevertStatus.Valid() {
		return fmt.Errorf("unknown DOCUMENT_REVERT_STATUS %q", c.Document.RevertStatus)
	}
	if c.RateLimit.Enabled && (c.RateLimit.RPS <= 0 || c.RateLimit.Burst < 0) {
		return fmt.Errorf("RATE_LIMIT_RPS must be positive and RATE_LIMIT_BURST non-negative")
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
