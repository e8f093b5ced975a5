package webhook

import (
	"context"
	"time"

	"gamecredit-platform/pkg/utils"

	"github.com/redis/go-redis/v9"
)

// Limiter caps concurrent posts to one webhook.
type Limiter interface {
	Acquire(ctx context.Context, webhookID string) (bool, error)
	Release(ctx context.Context, webhookID string) error
}

// RedisLimiter shares the in-flight cap across API instances.
type RedisLimiter struct {
	Client redis.Scripter
	Limit  int
	// TTL bounds a leaked slot when an instance dies mid-post.
	TTL time.Duration
}

func (l RedisLimiter) key(id string) string { return utils.Key("webhook", "inflight", id) }

func (l RedisLimiter) Acquire(ctx context.Context, webhookID string) (bool, error) {
	return utils.AcquireConcurrencyCap(ctx, l.Client, l.key(webhookID), l.Limit, l.TTL)
}

func (l RedisLimiter) Release(ctx context.Context, webhookID string) error {
	return utils.ReleaseConcurrencyCap(ctx, l.Client, l.key(webhookID))
}
