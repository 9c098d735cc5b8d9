package server

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"github.com/shopdesk/docs-service/internal/config"
	"github.com/shopdesk/docs-service/internal/document/handler"
	"github.com/shopdesk/docs-service/internal/document/service"
	"github.com/shopdesk/docs-service/pkg/logger"
	"github.com/shopdesk/docs-service/pkg/metrics"
	"github.com/shopdesk/docs-service/pkg/middleware"
)

// CheckFunc reports whether a dependency is usable.
type CheckFunc func(ctx context.Context) error

// Deps are the runtime collaborators of the HTTP server.
type Deps struct {
	Service *service.Service
	// Redis is optional; it backs the shared rate limiter.
	Redis *redis.Client
	// Verifier is optional; when set, write routes require a bearer token.
	Verifier middleware.Verifier
	// Checks are probed by /ready in addition to the document store.
	Checks map[string]CheckFunc
}

// Server is the document HTTP API.
type Server struct {
	cfg     *config.Config
	deps    Deps
	engine  *gin.Engine
	started time.Time
}

// New builds the gin engine with all routes mounted.
func New(cfg *config.Config, deps Deps) *Server {
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	s := &Server{cfg: cfg, deps: deps, engine: gin.New(), started: time.Now()}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.engine
	r.Use(accessLog(), gin.Recovery())

	if s.cfg.RateLimit.Enabled {
		if s.cfg.RateLimit.UseRedis && s.deps.Redis != nil {
			win := time.Duration(s.cfg.RateLimit.WindowSeconds) * time.Second
			r.Use(middleware.RedisRateLimitMiddleware(s.deps.Redis, s.cfg.RateLimit.RPS, s.cfg.RateLimit.Burst, win))
		} else {
			r.Use(middleware.RateLimitMiddleware(s.cfg.RateLimit.RPS, s.cfg.RateLimit.Burst))
		}
	}

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "healthy")
	})
	r.GET("/ready", s.ready)

	metrics.RegisterCollectors(prometheus.DefaultRegisterer)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	RegisterSwagger(r)

	var auth gin.HandlerFunc
	if s.deps.Verifier != nil {
		auth = middleware.AuthMiddleware(s.deps.Verifier)
	}
	handler.RegisterDocumentRoutes(r, s.deps.Service, auth)
}

// ready returns 200 only when every dependency answers.
func (s *Server) ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	checks := map[string]CheckFunc{"store": s.deps.Service.Ping}
	for name, fn := range s.deps.Checks {
		checks[name] = fn
	}
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	ready := true
	deps := map[string]bool{}
	for _, name := range names {
		err := checks[name](ctx)
		deps[name] = err == nil
		if err != nil {
			ready = false
			logger.Warnf("readiness: %s: %v", name, err)
		}
	}
	body := gin.H{"deps": deps, "uptime": time.Since(s.started).String()}
	if !ready {
		body["status"] = "not_ready"
		c.JSON(http.StatusServiceUnavailable, body)
		return
	}
	body["status"] = "ready"
	c.JSON(http.StatusOK, body)
}

// Handler is the engine wrapped in the CORS policy.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   s.cfg.Server.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Location", "Retry-After"},
		AllowCredentials: false,
	})
	return c.Handler(s.engine)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("document service listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

func accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		entry := logger.WithFields(map[string]interface{}{
			"method":   c.Request.Method,
			"path":     path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
			"client":   c.ClientIP(),
		})
		switch {
		case c.Writer.Status() >= 500:
			entry.Error("request")
		case path == "/health" || path == "/metrics":
			entry.Debug("request")
		default:
			entry.Info("request")
		}
	}
}
