package usecases

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"payroute.backend/internal/domain/entities"
	"payroute.backend/internal/domain/repositories"
)

// routingLoader reads the merchant state SelectGateway needs.
type routingLoader struct {
	bindingRepo repositories.MerchantGatewayRepository
	ruleRepo    repositories.RoutingRuleRepository
	healthRepo  repositories.GatewayHealthRepository
}

type routingState struct {
	bindings []*entities.MerchantGateway
	rules    []*entities.RoutingRule
	health   map[uuid.UUID]*entities.GatewayHealthMetric
}

// load reads bindings, rules and the health metrics whose window ended at or
// after healthSince.
func (l routingLoader) load(ctx context.Context, merchantID uuid.UUID, healthSince time.Time) (*routingState, error) {
	bindings, err := l.bindingRepo.ListByMerchant(ctx, merchantID)
	if err != nil {
		return nil, fmt.Errorf("load gateway bindings: %w", err)
	}
	rules, err := l.ruleRepo.ListByMerchant(ctx, merchantID)
	if err != nil {
		return nil, fmt.Errorf("load routing rules: %w", err)
	}

	ids := make([]uuid.UUID, 0, len(bindings))
	for _, b := range bindings {
		ids = append(ids, b.GatewayID)
	}
	health := map[uuid.UUID]*entities.GatewayHealthMetric{}
	if len(ids) > 0 {
		health, err = l.healthRepo.LatestByGateways(ctx, ids, healthSince)
		if err != nil {
			return nil, fmt.Errorf("load gateway health: %w", err)
		}
	}
	return &routingState{bindings: bindings, rules: rules, health: health}, nil
}

func (s *routingState) input(tx *entities.Transaction, strategy entities.ProcessingStrategy, exclude map[uuid.UUID]bool, at time.Time) RoutingInput {
	return RoutingInput{
		Transaction: tx,
		Bindings:    s.bindings,
		Health:      s.health,
		Rules:       s.rules,
		Exclude:     exclude,
		Strategy:    strategy,
		At:          at,
	}
}
