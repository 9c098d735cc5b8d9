package lock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopdesk/docs-service/pkg/logger"
)

// releaseScript deletes the key only while it still holds our token, so an
// expired lock that was taken over by another instance is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// Redis is a Locker shared by every service instance pointing at the same
// Redis. Each lock carries a TTL so a crashed holder cannot wedge a document;
// the repository's conditional head update catches the rare writer that
// outlives its TTL.
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	retry  time.Duration
	wait   time.Duration
}

// NewRedis creates a Redis-backed locker. ttl bounds how long a lock is held
// without release; wait bounds how long Lock polls before ErrTimeout.
func NewRedis(client *redis.Client, prefix string, ttl, wait time.Duration) *Redis {
	if prefix == "" {
		prefix = "doclock:"
	}
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	if wait <= 0 {
		wait = 5 * time.Second
	}
	return &Redis{client: client, prefix: prefix, ttl: ttl, retry: 20 * time.Millisecond, wait: wait}
}

func (r *Redis) key(k string) string { return r.prefix + k }

func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	token, err := newToken()
	if err != nil {
		return nil, err
	}
	deadline := time.Now().Add(r.wait)
	rk := r.key(key)
	for {
		ok, err := r.client.SetNX(ctx, rk, token, r.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("lock %s: %w", key, err)
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			return nil, ErrTimeout
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(r.retry):
		}
	}
	return func() {
		// release with a fresh context: the caller's may already be canceled
		rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(rctx, r.client, []string{rk}, token).Err(); err != nil {
			logger.Warnf("lock: release %s failed: %v", key, err)
		}
	}, nil
}

func newToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
