// internal/events/publisher.go
package events

import (
	"context"
	"encoding/json"

	"soko-service/internal/domain/subscription"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ExpiredChannel is the Redis pub/sub channel collaborating services
// subscribe to for deactivating a provider's published resources.
const ExpiredChannel = "soko.subscription.expired"

// RedisPublisher fans subscription lifecycle events out over Redis pub/sub.
type RedisPublisher struct {
	rdb    *redis.Client
	logger *zap.Logger
}

func NewRedisPublisher(rdb *redis.Client, logger *zap.Logger) *RedisPublisher {
	return &RedisPublisher{rdb: rdb, logger: logger}
}

// PublishExpired sends the expiry event. Delivery is best-effort: the ledger
// transition is already committed, so a publish failure is logged and dropped
// rather than surfaced to the caller.
func (p *RedisPublisher) PublishExpired(ctx context.Context, ev subscription.ExpiredEvent) {
	if p.rdb == nil {
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		p.logger.Error("failed to encode expired event", zap.Error(err))
		return
	}
	if err := p.rdb.Publish(ctx, ExpiredChannel, payload).Err(); err != nil {
		p.logger.Error("failed to publish expired event",
			zap.Int64("subscription_id", ev.SubscriptionID),
			zap.Error(err),
		)
	}
}
