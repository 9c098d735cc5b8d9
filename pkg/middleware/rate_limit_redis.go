package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/shopdesk/docs-service/pkg/logger"
	"github.com/shopdesk/docs-service/pkg/metrics"
)

// RedisRateLimitMiddleware provides a fixed-window limiter shared by every
// instance behind the same Redis. It INCRs a per-window key and compares it
// against floor(rps*window)+burst. A nil client falls back to the in-memory limiter.
func RedisRateLimitMiddleware(client *redis.Client, rps float64, burst int, window time.Duration) gin.HandlerFunc {
	if client == nil {
		return RateLimitMiddleware(rps, burst)
	}
	windowSeconds := int64(window.Seconds())
	if windowSeconds <= 0 {
		windowSeconds = 1
	}
	allowed := int64(rps*float64(windowSeconds)) + int64(burst)
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		bucket := time.Now().Unix() / windowSeconds
		key := fmt.Sprintf("rl:%s:%d", clientKey(c), bucket)

		cnt, err := client.Incr(ctx, key).Result()
		if err != nil {
			logger.Warnf("rate limit check failed: %v", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Rate limit check failed"})
			return
		}
		if cnt == 1 {
			_ = client.Expire(ctx, key, time.Duration(windowSeconds+1)*time.Second).Err()
		}
		if cnt > allowed {
			c.Header("Retry-After", strconv.FormatInt(windowSeconds, 10))
			metrics.RateLimitRejected.WithLabelValues("redis").Inc()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded"})
			return
		}
		metrics.RateLimitAllowed.WithLabelValues("redis").Inc()
		c.Next()
	}
}
