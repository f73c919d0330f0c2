package repositories

import (
	"context"

	"payroute.backend/internal/domain/entities"
)

// NotificationPublisher queues merchant notifications. Delivery is
// at-least-once; consumers deduplicate on the notification id.
type NotificationPublisher interface {
	Publish(ctx context.Context, n entities.MerchantNotification) error
}
