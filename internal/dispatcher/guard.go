// internal/dispatcher/guard.go
package dispatcher

import (
	"context"
	"fmt"
	"time"

	"sos-workers/internal/models"

	"github.com/redis/go-redis/v9"
)

// DuplicateGuard reports whether a reaction for (alertID, kind) is the first one seen.
type DuplicateGuard interface {
	Acquire(ctx context.Context, alertID string, kind models.NotificationKind) (bool, error)
}

type RedisGuard struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisGuard(client *redis.Client, ttl time.Duration) *RedisGuard {
	return &RedisGuard{client: client, ttl: ttl}
}

func GuardKey(alertID string, kind models.NotificationKind) string {
	return fmt.Sprintf("sos:reaction:%s:%s", alertID, kind)
}

func (g *RedisGuard) Acquire(ctx context.Context, alertID string, kind models.NotificationKind) (bool, error) {
	ok, err := g.client.SetNX(ctx, GuardKey(alertID, kind), time.Now().UTC().Format(time.RFC3339), g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire reaction key: %w", err)
	}
	return ok, nil
}
