package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"payroute.backend/internal/domain/entities"
)

// RoutingRuleRepository defines routing rule operations
type RoutingRuleRepository interface {
	Create(ctx context.Context, rule *entities.RoutingRule) error
	GetByID(ctx context.Context, id uuid.UUID) (*entities.RoutingRule, error)
	// ListByMerchant returns rules ordered by ascending priority.
	ListByMerchant(ctx context.Context, merchantID uuid.UUID) ([]*entities.RoutingRule, error)
	Update(ctx context.Context, rule *entities.RoutingRule) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// RoutingAttemptRepository is append-only
type RoutingAttemptRepository interface {
	Create(ctx context.Context, attempt *entities.RoutingAttempt) error
	ListByTransaction(ctx context.Context, transactionID uuid.UUID) ([]*entities.RoutingAttempt, error)
	StatsSince(ctx context.Context, since time.Time) ([]entities.GatewayAttemptStats, error)
}

// GatewayHealthRepository stores rolling health aggregates
type GatewayHealthRepository interface {
	Create(ctx context.Context, metric *entities.GatewayHealthMetric) error
	// LatestByGateways returns the most recent metric per gateway id among
	// those whose window ended at or after since. A zero since applies no
	// lower bound.
	LatestByGateways(ctx context.Context, gatewayIDs []uuid.UUID, since time.Time) (map[uuid.UUID]*entities.GatewayHealthMetric, error)
	// DeleteBefore removes metrics whose window ended before the cutoff.
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
