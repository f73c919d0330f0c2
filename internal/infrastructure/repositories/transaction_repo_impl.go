package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"
	"gorm.io/gorm"
	"payroute.backend/internal/domain/entities"
	domainerrors "payroute.backend/internal/domain/errors"
	"payroute.backend/internal/infrastructure/models"
)

// TransactionRepository implements transaction data operations
type TransactionRepository struct {
	db *gorm.DB
}

// NewTransactionRepository creates a new transaction repository
func NewTransactionRepository(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// Create inserts a new transaction
func (r *TransactionRepository) Create(ctx context.Context, tx *entities.Transaction) error {
	customer, err := toJSONColumn(tx.Customer)
	if err != nil {
		return err
	}
	metadata, err := toJSONColumn(tx.Metadata)
	if err != nil {
		return err
	}

	m := &models.Transaction{
		ID:                   tx.ID,
		MerchantID:           tx.MerchantID,
		Reference:            tx.Reference,
		Amount:               tx.Amount,
		Currency:             tx.Currency,
		PaymentMethod:        string(tx.PaymentMethod),
		Status:               string(tx.Status),
		GatewayID:            tx.GatewayID,
		GatewayCode:          tx.GatewayCode.Ptr(),
		GatewayTransactionID: tx.GatewayTransactionID.Ptr(),
		RedirectURL:          tx.RedirectURL.Ptr(),
		Fees:                 tx.Fees,
		NetAmount:            tx.NetAmount,
		RefundedAmount:       tx.RefundedAmount,
		Customer:             customer,
		Metadata:             metadata,
		ErrorMessage:         tx.ErrorMessage.Ptr(),
		ProcessedAt:          tx.ProcessedAt,
		CreatedAt:            tx.CreatedAt,
		UpdatedAt:            tx.UpdatedAt,
	}

	db := GetDB(ctx, r.db)
	if err := db.WithContext(ctx).Create(m).Error; err != nil {
		return err
	}
	tx.ID = m.ID
	return nil
}

// GetByID gets a transaction by ID
func (r *TransactionRepository) GetByID(ctx context.Context, id uuid.UUID) (*entities.Transaction, error) {
	var m models.Transaction
	db := GetDB(ctx, r.db)
	if err := db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainerrors.ErrNotFound
		}
		return nil, err
	}
	return toTransactionEntity(&m)
}

// GetByGatewayTransactionID finds the transaction a gateway knows by its own reference
func (r *TransactionRepository) GetByGatewayTransactionID(ctx context.Context, gatewayID uuid.UUID, gatewayTxnID string) (*entities.Transaction, error) {
	var m models.Transaction
	db := GetDB(ctx, r.db)
	if err := db.WithContext(ctx).
		Where("gateway_id = ? AND gateway_transaction_id = ?", gatewayID, gatewayTxnID).
		First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainerrors.ErrNotFound
		}
		return nil, err
	}
	return toTransactionEntity(&m)
}

// List returns a page of transactions and the total match count
func (r *TransactionRepository) List(ctx context.Context, filter entities.TransactionFilter, limit, offset int) ([]*entities.Transaction, int, error) {
	query := r.db.WithContext(ctx).Model(&models.Transaction{})
	if filter.MerchantID != nil {
		query = query.Where("merchant_id = ?", *filter.MerchantID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", string(*filter.Status))
	}
	if filter.UpdatedBefore != nil {
		query = query.Where("updated_at < ?", *filter.UpdatedBefore)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var ms []models.Transaction
	q := query.Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit).Offset(offset)
	}
	if err := q.Find(&ms).Error; err != nil {
		return nil, 0, err
	}

	out := make([]*entities.Transaction, 0, len(ms))
	for i := range ms {
		e, err := toTransactionEntity(&ms[i])
		if err != nil {
			return nil, 0, err
		}
		out = append(out, e)
	}
	return out, int(total), nil
}

// CompareAndSetStatus performs the guarded status transition
func (r *TransactionRepository) CompareAndSetStatus(ctx context.Context, id uuid.UUID, expected, next entities.TransactionStatus, patch entities.TransactionPatch) error {
	if !expected.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", domainerrors.ErrInvalidTransition, expected, next)
	}

	updates := map[string]interface{}{
		"status":     string(next),
		"updated_at": time.Now(),
	}
	if patch.GatewayID != nil {
		updates["gateway_id"] = *patch.GatewayID
	}
	if patch.GatewayCode != nil {
		updates["gateway_code"] = *patch.GatewayCode
	}
	if patch.GatewayTransactionID != nil {
		updates["gateway_transaction_id"] = *patch.GatewayTransactionID
	}
	if patch.RedirectURL != nil {
		updates["redirect_url"] = *patch.RedirectURL
	}
	if patch.Fees != nil {
		updates["fees"] = *patch.Fees
	}
	if patch.NetAmount != nil {
		updates["net_amount"] = *patch.NetAmount
	}
	if patch.RefundedAmount != nil {
		updates["refunded_amount"] = *patch.RefundedAmount
	}
	if patch.ErrorMessage != nil {
		updates["error_message"] = *patch.ErrorMessage
	}
	if patch.ProcessedAt != nil {
		updates["processed_at"] = *patch.ProcessedAt
	}
	if patch.Metadata != nil {
		metadata, err := toJSONColumn(patch.Metadata)
		if err != nil {
			return err
		}
		updates["metadata"] = metadata
	}

	db := GetDB(ctx, r.db)
	result := db.WithContext(ctx).Model(&models.Transaction{}).
		Where("id = ? AND status = ?", id, string(expected)).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 1 {
		return nil
	}

	var count int64
	if err := db.WithContext(ctx).Model(&models.Transaction{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return domainerrors.ErrNotFound
	}
	return domainerrors.ErrStatusConflict
}

// UpdateRefundedAmount sets refunded_amount while the status is unchanged
func (r *TransactionRepository) UpdateRefundedAmount(ctx context.Context, id uuid.UUID, status entities.TransactionStatus, refunded decimal.Decimal) error {
	db := GetDB(ctx, r.db)
	result := db.WithContext(ctx).Model(&models.Transaction{}).
		Where("id = ? AND status = ?", id, string(status)).
		Updates(map[string]interface{}{
			"refunded_amount": refunded,
			"updated_at":      time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrStatusConflict
	}
	return nil
}

// ListStuckProcessing returns processing transactions untouched since olderThan
func (r *TransactionRepository) ListStuckProcessing(ctx context.Context, olderThan time.Time, limit int) ([]*entities.Transaction, error) {
	var ms []models.Transaction
	if err := r.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", string(entities.TransactionStatusProcessing), olderThan).
		Order("updated_at ASC").
		Limit(limit).
		Find(&ms).Error; err != nil {
		return nil, err
	}

	out := make([]*entities.Transaction, 0, len(ms))
	for i := range ms {
		e, err := toTransactionEntity(&ms[i])
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func toTransactionEntity(m *models.Transaction) (*entities.Transaction, error) {
	tx := &entities.Transaction{
		ID:                   m.ID,
		MerchantID:           m.MerchantID,
		Reference:            m.Reference,
		Amount:               m.Amount,
		Currency:             m.Currency,
		PaymentMethod:        entities.PaymentMethod(m.PaymentMethod),
		Status:               entities.TransactionStatus(m.Status),
		GatewayID:            m.GatewayID,
		GatewayCode:          null.StringFromPtr(m.GatewayCode),
		GatewayTransactionID: null.StringFromPtr(m.GatewayTransactionID),
		RedirectURL:          null.StringFromPtr(m.RedirectURL),
		Fees:                 m.Fees,
		NetAmount:            m.NetAmount,
		RefundedAmount:       m.RefundedAmount,
		ErrorMessage:         null.StringFromPtr(m.ErrorMessage),
		ProcessedAt:          m.ProcessedAt,
		CreatedAt:            m.CreatedAt,
		UpdatedAt:            m.UpdatedAt,
	}
	if len(m.Customer) > 0 {
		tx.Customer = &entities.CustomerDetails{}
		if err := fromJSONColumn(m.Customer, tx.Customer); err != nil {
			return nil, err
		}
	}
	if err := fromJSONColumn(m.Metadata, &tx.Metadata); err != nil {
		return nil, err
	}
	return tx, nil
}
