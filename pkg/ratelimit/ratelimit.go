// Package ratelimit provides a fixed-window counter shared across worker
// processes. Dispatcher workers consult it before outbound SMS sends so
// an organization's quota holds regardless of how many workers run.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter is the injectable counter store keyed by scope and window.
type Limiter interface {
	// Allow consumes one unit from the scope's window and reports
	// whether the limit still holds.
	Allow(ctx context.Context, scope string) (bool, error)
}

type Config struct {
	Limit  int
	Window time.Duration
}

type redisLimiter struct {
	client *redis.Client
	prefix string
	cfg    Config
}

func NewRedisLimiter(client *redis.Client, prefix string, cfg Config) Limiter {
	return &redisLimiter{client: client, prefix: prefix, cfg: cfg}
}

func (l *redisLimiter) Allow(ctx context.Context, scope string) (bool, error) {
	window := time.Now().Unix() / int64(l.cfg.Window.Seconds())
	key := fmt.Sprintf("%s:%s:%d", l.prefix, scope, window)

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, l.cfg.Window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("failed to increment rate counter: %w", err)
	}

	return incr.Val() <= int64(l.cfg.Limit), nil
}

// Unlimited never throttles; used for channels without a provider quota.
type Unlimited struct{}

func (Unlimited) Allow(context.Context, string) (bool, error) { return true, nil }
