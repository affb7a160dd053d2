package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter spaces gateway calls. Wait blocks until a call slot is available
// or the context is done.
type Limiter interface {
	Wait(ctx context.Context) error
}

const limiterKey = "gateway:ratelimit"

// RedisLimiter enforces one call per interval across all service
// instances: a SetNX with the interval as TTL is the call token. Callers
// that miss the token poll until it expires.
type RedisLimiter struct {
	client   *redis.Client
	interval time.Duration
}

func NewRedisLimiter(client *redis.Client, interval time.Duration) *RedisLimiter {
	return &RedisLimiter{client: client, interval: interval}
}

func (l *RedisLimiter) Wait(ctx context.Context) error {
	poll := l.interval / 10
	if poll < 10*time.Millisecond {
		poll = 10 * time.Millisecond
	}
	for {
		ok, err := l.client.SetNX(ctx, limiterKey, "1", l.interval).Result()
		if err != nil {
			// Redis being down must not stall reconciliation entirely;
			// degrade to unspaced calls and let the gateway's own 429s
			// drive backoff.
			return nil
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(poll):
		}
	}
}

// LocalLimiter is the single-process fallback used when no redis is
// configured, and in tests.
type LocalLimiter struct {
	mu       sync.Mutex
	last     time.Time
	interval time.Duration
}

func NewLocalLimiter(interval time.Duration) *LocalLimiter {
	return &LocalLimiter{interval: interval}
}

func (l *LocalLimiter) Wait(ctx context.Context) error {
	l.mu.Lock()
	now := time.Now()
	next := l.last.Add(l.interval)
	if next.Before(now) {
		next = now
	}
	l.last = next
	l.mu.Unlock()

	wait := time.Until(next)
	if wait <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(wait):
		return nil
	}
}
