package repositories

import (
	"context"

	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"
	"gorm.io/gorm"
	"payroute.backend/internal/domain/entities"
	domainerrors "payroute.backend/internal/domain/errors"
	"payroute.backend/internal/infrastructure/models"
)

// WebhookRepository persists inbound callbacks
type WebhookRepository struct {
	db *gorm.DB
}

func NewWebhookRepository(db *gorm.DB) *WebhookRepository {
	return &WebhookRepository{db: db}
}

func (r *WebhookRepository) Create(ctx context.Context, record *entities.WebhookRecord) error {
	headers, err := toJSONColumn(record.Headers)
	if err != nil {
		return err
	}
	m := &models.WebhookRecord{
		ID:                   record.ID,
		GatewayCode:          record.GatewayCode,
		GatewayID:            record.GatewayID,
		TransactionID:        record.TransactionID,
		EventType:            record.EventType.Ptr(),
		GatewayTransactionID: record.GatewayTransactionID.Ptr(),
		RawPayload:           record.RawPayload,
		Headers:              headers,
		Processed:            record.Processed,
		ProcessingError:      record.ProcessingError.Ptr(),
		ProcessedAt:          record.ProcessedAt,
		CreatedAt:            record.CreatedAt,
	}
	if err := GetDB(ctx, r.db).WithContext(ctx).Create(m).Error; err != nil {
		return err
	}
	record.ID = m.ID
	return nil
}

// Update writes the mutable processing columns. The raw payload and headers
// are never rewritten.
func (r *WebhookRepository) Update(ctx context.Context, record *entities.WebhookRecord) error {
	result := GetDB(ctx, r.db).WithContext(ctx).Model(&models.WebhookRecord{}).
		Where("id = ?", record.ID).
		Updates(map[string]interface{}{
			"gateway_id":             record.GatewayID,
			"transaction_id":         record.TransactionID,
			"event_type":             record.EventType.Ptr(),
			"gateway_transaction_id": record.GatewayTransactionID.Ptr(),
			"processed":              record.Processed,
			"processing_error":       record.ProcessingError.Ptr(),
			"processed_at":           record.ProcessedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrNotFound
	}
	return nil
}

func (r *WebhookRepository) ListByTransaction(ctx context.Context, transactionID uuid.UUID) ([]*entities.WebhookRecord, error) {
	var ms []models.WebhookRecord
	if err := r.db.WithContext(ctx).
		Where("transaction_id = ?", transactionID).
		Order("created_at ASC").
		Find(&ms).Error; err != nil {
		return nil, err
	}
	out := make([]*entities.WebhookRecord, 0, len(ms))
	for i := range ms {
		m := &ms[i]
		rec := &entities.WebhookRecord{
			ID:                   m.ID,
			GatewayCode:          m.GatewayCode,
			GatewayID:            m.GatewayID,
			TransactionID:        m.TransactionID,
			EventType:            null.StringFromPtr(m.EventType),
			GatewayTransactionID: null.StringFromPtr(m.GatewayTransactionID),
			RawPayload:           m.RawPayload,
			Processed:            m.Processed,
			ProcessingError:      null.StringFromPtr(m.ProcessingError),
			ProcessedAt:          m.ProcessedAt,
			CreatedAt:            m.CreatedAt,
		}
		if err := fromJSONColumn(m.Headers, &rec.Headers); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}
