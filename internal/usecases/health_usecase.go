package usecases

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"payroute.backend/internal/domain/entities"
	"payroute.backend/internal/domain/repositories"
	"payroute.backend/pkg/logger"
	"payroute.backend/pkg/utils"
)

// HealthUsecase turns recent payment attempts into gateway health metrics
type HealthUsecase struct {
	attemptRepo repositories.RoutingAttemptRepository
	healthRepo  repositories.GatewayHealthRepository
	retention   time.Duration
	now         func() time.Time
}

func NewHealthUsecase(attemptRepo repositories.RoutingAttemptRepository, healthRepo repositories.GatewayHealthRepository) *HealthUsecase {
	return &HealthUsecase{
		attemptRepo: attemptRepo,
		healthRepo:  healthRepo,
		retention:   DefaultHealthRetention,
		now:         time.Now,
	}
}

// WithRetention sets how long metrics are kept. Zero disables pruning.
func (u *HealthUsecase) WithRetention(retention time.Duration) *HealthUsecase {
	u.retention = retention
	return u
}

// Aggregate writes one metric per gateway that had payment attempts in the
// last window, then prunes metrics older than the retention. Gateways without
// attempts write nothing; routing stops trusting their last metric once it
// ages out.
func (u *HealthUsecase) Aggregate(ctx context.Context, window time.Duration) ([]*entities.GatewayHealthMetric, error) {
	if window <= 0 {
		return nil, fmt.Errorf("health window must be positive, got %s", window)
	}
	end := u.now().UTC()
	start := end.Add(-window)

	stats, err := u.attemptRepo.StatsSince(ctx, start)
	if err != nil {
		return nil, err
	}

	metrics := make([]*entities.GatewayHealthMetric, 0, len(stats))
	for _, s := range stats {
		if s.Total == 0 {
			continue
		}
		rate := decimal.NewFromInt(int64(s.Succeeded)).
			Mul(decimal.NewFromInt(100)).
			Div(decimal.NewFromInt(int64(s.Total))).
			Round(2)
		metric := &entities.GatewayHealthMetric{
			ID:           utils.GenerateUUIDv7(),
			GatewayID:    s.GatewayID,
			SuccessRate:  rate,
			AvgLatencyMs: int64(math.Round(s.AvgLatencyMs)),
			SampleCount:  s.Total,
			WindowStart:  start,
			WindowEnd:    end,
			CreatedAt:    end,
		}
		if err := u.healthRepo.Create(ctx, metric); err != nil {
			return metrics, err
		}
		metrics = append(metrics, metric)
	}

	if u.retention > 0 {
		if _, err := u.healthRepo.DeleteBefore(ctx, end.Add(-u.retention)); err != nil {
			logger.Warn(ctx, "Failed to prune gateway health metrics", zap.Error(err))
		}
	}

	logger.Debug(ctx, "Gateway health aggregated",
		zap.Int("gateways", len(metrics)),
		zap.Duration("window", window),
	)
	return metrics, nil
}
