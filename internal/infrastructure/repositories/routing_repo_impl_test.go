package repositories

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"payroute.backend/internal/domain/entities"
	domainerrors "payroute.backend/internal/domain/errors"
)

func TestRoutingRuleRepository_RoundTripsTaggedActions(t *testing.T) {
	db := newTestDB(t)
	createRoutingTables(t, db)
	repo := NewRoutingRuleRepository(db)
	ctx := context.Background()
	merchantID := uuid.New()

	maxAmt := decimal.NewFromInt(1000)
	rules := []*entities.RoutingRule{
		{
			ID: uuid.New(), MerchantID: merchantID, Name: "spread", Type: entities.RuleTypePercentageDistribution,
			Action:   entities.DistributeWeights{Weights: map[string]decimal.Decimal{"stripe": decimal.NewFromInt(20)}},
			Priority: 20, IsActive: true,
		},
		{
			ID: uuid.New(), MerchantID: merchantID, Name: "upi", Type: entities.RuleTypeMethodBased,
			Condition: entities.RuleCondition{PaymentMethods: []entities.PaymentMethod{entities.PaymentMethodUPI}, MaxAmount: &maxAmt},
			Action:    entities.PreferGateway{GatewayCode: "razorpay"},
			Priority:  10, IsActive: true,
		},
	}
	for _, r := range rules {
		r.CreatedAt = time.Now()
		r.UpdatedAt = time.Now()
		require.NoError(t, repo.Create(ctx, r))
	}

	got, err := repo.ListByMerchant(ctx, merchantID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "upi", got[0].Name)
	require.Equal(t, entities.PreferGateway{GatewayCode: "razorpay"}, got[0].Action)
	require.True(t, got[0].Condition.MaxAmount.Equal(maxAmt))

	dist, ok := got[1].Action.(entities.DistributeWeights)
	require.True(t, ok)
	require.True(t, dist.Weights["stripe"].Equal(decimal.NewFromInt(20)))

	got[0].IsActive = false
	require.NoError(t, repo.Update(ctx, got[0]))
	one, err := repo.GetByID(ctx, got[0].ID)
	require.NoError(t, err)
	require.False(t, one.IsActive)

	require.NoError(t, repo.Delete(ctx, got[0].ID))
	_, err = repo.GetByID(ctx, got[0].ID)
	require.ErrorIs(t, err, domainerrors.ErrNotFound)
}

func TestRoutingRuleRepository_CorruptActionIsConfigurationError(t *testing.T) {
	db := newTestDB(t)
	createRoutingTables(t, db)
	repo := NewRoutingRuleRepository(db)
	merchantID := uuid.New()

	mustExec(t, db, `INSERT INTO routing_rules(id,merchant_id,name,rule_type,conditions,actions,priority,is_active,created_at,updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?)`,
		uuid.NewString(), merchantID.String(), "bad", "method_based", `{}`, `{"type":"boost"}`, 1, true, time.Now(), time.Now())

	_, err := repo.ListByMerchant(context.Background(), merchantID)
	require.ErrorIs(t, err, domainerrors.ErrConfiguration)
}

func TestRoutingAttemptRepository_ListAndStats(t *testing.T) {
	db := newTestDB(t)
	createRoutingTables(t, db)
	repo := NewRoutingAttemptRepository(db)
	ctx := context.Background()

	txID := uuid.New()
	gatewayA := uuid.New()
	gatewayB := uuid.New()
	outcomes := []struct {
		gateway uuid.UUID
		status  entities.AttemptStatus
		latency int64
	}{
		{gatewayA, entities.AttemptStatusSuccess, 100},
		{gatewayA, entities.AttemptStatusFailed, 300},
		{gatewayA, entities.AttemptStatusPending, 200},
		{gatewayB, entities.AttemptStatusFailed, 5000},
	}
	for i, o := range outcomes {
		gid := o.gateway
		require.NoError(t, repo.Create(ctx, &entities.RoutingAttempt{
			ID:              uuid.New(),
			TransactionID:   txID,
			Kind:            entities.AttemptKindPayment,
			AttemptNumber:   i + 1,
			GatewayID:       &gid,
			GatewayCode:     "gw",
			Status:          o.status,
			LatencyMs:       o.latency,
			Score:           decimal.NewFromInt(200),
			ScoreBreakdown:  []entities.ScoreContribution{{GatewayCode: "gw", Term: "base", Delta: decimal.NewFromInt(100)}},
			RequestPayload:  json.RawMessage(`{"amount":"500"}`),
			ResponsePayload: json.RawMessage(`not json`),
			CreatedAt:       time.Now(),
		}))
	}

	attempts, err := repo.ListByTransaction(ctx, txID)
	require.NoError(t, err)
	require.Len(t, attempts, 4)
	require.Equal(t, 1, attempts[0].AttemptNumber)
	require.Len(t, attempts[0].ScoreBreakdown, 1)
	require.JSONEq(t, `"not json"`, string(attempts[0].ResponsePayload))

	stats, err := repo.StatsSince(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, stats, 2)
	byGateway := map[uuid.UUID]entities.GatewayAttemptStats{}
	for _, s := range stats {
		byGateway[s.GatewayID] = s
	}
	require.Equal(t, 3, byGateway[gatewayA].Total)
	require.Equal(t, 2, byGateway[gatewayA].Succeeded)
	require.InDelta(t, 200, byGateway[gatewayA].AvgLatencyMs, 0.001)
	require.Equal(t, 0, byGateway[gatewayB].Succeeded)
}

func TestGatewayHealthRepository_LatestByGateways(t *testing.T) {
	db := newTestDB(t)
	createRoutingTables(t, db)
	repo := NewGatewayHealthRepository(db)
	ctx := context.Background()

	gatewayID := uuid.New()
	now := time.Now().UTC()
	for i, rate := range []int64{70, 99} {
		require.NoError(t, repo.Create(ctx, &entities.GatewayHealthMetric{
			ID:           uuid.New(),
			GatewayID:    gatewayID,
			SuccessRate:  decimal.NewFromInt(rate),
			AvgLatencyMs: 400,
			SampleCount:  10,
			WindowStart:  now.Add(time.Duration(i-2) * time.Hour),
			WindowEnd:    now.Add(time.Duration(i-1) * time.Hour),
			CreatedAt:    now,
		}))
	}

	latest, err := repo.LatestByGateways(ctx, []uuid.UUID{gatewayID, uuid.New()}, time.Time{})
	require.NoError(t, err)
	require.Len(t, latest, 1)
	require.True(t, latest[gatewayID].SuccessRate.Equal(decimal.NewFromInt(99)))

	empty, err := repo.LatestByGateways(ctx, nil, time.Time{})
	require.NoError(t, err)
	require.Empty(t, empty)
}

func TestGatewayHealthRepository_LatestByGatewaysIgnoresStaleMetrics(t *testing.T) {
	db := newTestDB(t)
	createRoutingTables(t, db)
	repo := NewGatewayHealthRepository(db)
	ctx := context.Background()

	now := time.Now().UTC()
	stale, fresh := uuid.New(), uuid.New()
	metric := func(gatewayID uuid.UUID, rate int64, end time.Time) *entities.GatewayHealthMetric {
		return &entities.GatewayHealthMetric{
			ID:           uuid.New(),
			GatewayID:    gatewayID,
			SuccessRate:  decimal.NewFromInt(rate),
			AvgLatencyMs: 300,
			SampleCount:  20,
			WindowStart:  end.Add(-15 * time.Minute),
			WindowEnd:    end,
			CreatedAt:    end,
		}
	}
	require.NoError(t, repo.Create(ctx, metric(stale, 50, now.Add(-90*24*time.Hour))))
	for i := 0; i < 5; i++ {
		require.NoError(t, repo.Create(ctx, metric(fresh, int64(90+i), now.Add(-time.Duration(10-i)*time.Minute))))
	}

	latest, err := repo.LatestByGateways(ctx, []uuid.UUID{stale, fresh}, now.Add(-15*time.Minute))
	require.NoError(t, err)
	require.Len(t, latest, 1)
	_, found := latest[stale]
	require.False(t, found)
	require.True(t, latest[fresh].SuccessRate.Equal(decimal.NewFromInt(94)), latest[fresh].SuccessRate.String())

	deleted, err := repo.DeleteBefore(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	require.Equal(t, int64(1), deleted)

	all, err := repo.LatestByGateways(ctx, []uuid.UUID{stale, fresh}, time.Time{})
	require.NoError(t, err)
	require.Len(t, all, 1)
}
