package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"payroute.backend/internal/domain/entities"
)

// TransactionRepository defines transaction data operations
type TransactionRepository interface {
	Create(ctx context.Context, tx *entities.Transaction) error
	GetByID(ctx context.Context, id uuid.UUID) (*entities.Transaction, error)
	GetByGatewayTransactionID(ctx context.Context, gatewayID uuid.UUID, gatewayTxnID string) (*entities.Transaction, error)
	List(ctx context.Context, filter entities.TransactionFilter, limit, offset int) ([]*entities.Transaction, int, error)
	// CompareAndSetStatus moves the transaction from expected to next and
	// applies patch in the same statement. It returns ErrStatusConflict when
	// the stored status no longer equals expected and ErrNotFound when the
	// row does not exist.
	CompareAndSetStatus(ctx context.Context, id uuid.UUID, expected, next entities.TransactionStatus, patch entities.TransactionPatch) error
	// UpdateRefundedAmount records a partial refund on a transaction that is
	// still in status.
	UpdateRefundedAmount(ctx context.Context, id uuid.UUID, status entities.TransactionStatus, refunded decimal.Decimal) error
	ListStuckProcessing(ctx context.Context, olderThan time.Time, limit int) ([]*entities.Transaction, error)
}
