package middleware

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/shopdesk/docs-service/pkg/metrics"
	"golang.org/x/time/rate"
)

// limiterStore holds one token bucket per client key.
type limiterStore struct {
	rps   float64
	burst int
	m     sync.Map // map[string]*rate.Limiter
}

func (s *limiterStore) get(key string) *rate.Limiter {
	if v, ok := s.m.Load(key); ok {
		return v.(*rate.Limiter)
	}
	v, _ := s.m.LoadOrStore(key, rate.NewLimiter(rate.Limit(s.rps), s.burst))
	return v.(*rate.Limiter)
}

// RateLimitMiddleware returns a Gin middleware enforcing a token-bucket per-key limit.
// Requests are keyed by `claims.sub` when the auth middleware ran first,
// otherwise by client IP. rps = allowed events per second, burst = bucket size.
func RateLimitMiddleware(rps float64, burst int) gin.HandlerFunc {
	store := &limiterStore{rps: rps, burst: burst}
	return func(c *gin.Context) {
		if !store.get(clientKey(c)).Allow() {
			c.Header("Retry-After", "1")
			metrics.RateLimitRejected.WithLabelValues("memory").Inc()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded"})
			return
		}
		metrics.RateLimitAllowed.WithLabelValues("memory").Inc()
		c.Next()
	}
}
