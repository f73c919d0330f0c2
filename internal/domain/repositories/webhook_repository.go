package repositories

import (
	"context"

	"github.com/google/uuid"
	"payroute.backend/internal/domain/entities"
)

// WebhookRepository stores inbound gateway callbacks
type WebhookRepository interface {
	Create(ctx context.Context, record *entities.WebhookRecord) error
	Update(ctx context.Context, record *entities.WebhookRecord) error
	ListByTransaction(ctx context.Context, transactionID uuid.UUID) ([]*entities.WebhookRecord, error)
}
