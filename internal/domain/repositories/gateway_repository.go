package repositories

import (
	"context"

	"github.com/google/uuid"
	"payroute.backend/internal/domain/entities"
)

// PaymentGatewayRepository defines gateway catalogue operations
type PaymentGatewayRepository interface {
	Create(ctx context.Context, gateway *entities.PaymentGateway) error
	GetByID(ctx context.Context, id uuid.UUID) (*entities.PaymentGateway, error)
	GetByCode(ctx context.Context, code string) (*entities.PaymentGateway, error)
	List(ctx context.Context, activeOnly bool) ([]*entities.PaymentGateway, error)
	Update(ctx context.Context, gateway *entities.PaymentGateway) error
}

// MerchantGatewayRepository defines merchant binding operations
type MerchantGatewayRepository interface {
	Create(ctx context.Context, binding *entities.MerchantGateway) error
	// ListByMerchant returns the merchant's bindings with Gateway joined.
	ListByMerchant(ctx context.Context, merchantID uuid.UUID) ([]*entities.MerchantGateway, error)
	GetByMerchantAndGateway(ctx context.Context, merchantID, gatewayID uuid.UUID) (*entities.MerchantGateway, error)
	Update(ctx context.Context, binding *entities.MerchantGateway) error
}
