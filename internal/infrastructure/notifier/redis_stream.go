package notifier

import (
	"context"
	"fmt"

	"payroute.backend/internal/domain/entities"
	"payroute.backend/pkg/jwt"
	"payroute.backend/pkg/redis"
)

var xAdd = redis.XAdd

// RedisStreamPublisher appends notifications to a Redis stream.
type RedisStreamPublisher struct {
	stream string
	maxLen int64
	signer *jwt.NotificationSigner
}

func NewRedisStreamPublisher(stream string, maxLen int64, signer *jwt.NotificationSigner) *RedisStreamPublisher {
	return &RedisStreamPublisher{stream: stream, maxLen: maxLen, signer: signer}
}

func (p *RedisStreamPublisher) Publish(ctx context.Context, n entities.MerchantNotification) error {
	env, err := seal(p.signer, n)
	if err != nil {
		return err
	}
	_, err = xAdd(ctx, p.stream, p.maxLen, map[string]interface{}{
		"id":          n.ID.String(),
		"merchant_id": n.MerchantID.String(),
		"status":      string(n.Status),
		"payload":     string(env.Body),
		"signature":   env.Token,
	})
	if err != nil {
		return fmt.Errorf("xadd %s: %w", p.stream, err)
	}
	return nil
}
