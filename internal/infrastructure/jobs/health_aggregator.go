package jobs

import (
	"context"
	"time"

	"payroute.backend/internal/domain/entities"
)

const HealthAggregatorName = "gateway_health_aggregator"

// HealthAggregator computes gateway health from recent attempts
type HealthAggregator interface {
	Aggregate(ctx context.Context, window time.Duration) ([]*entities.GatewayHealthMetric, error)
}

// GatewayHealthJob refreshes the health metrics the routing engine scores with.
type GatewayHealthJob struct {
	*ticker
	aggregator HealthAggregator
	window     time.Duration
}

func NewGatewayHealthJob(aggregator HealthAggregator, interval, window time.Duration, observer Observer) *GatewayHealthJob {
	j := &GatewayHealthJob{aggregator: aggregator, window: window}
	j.ticker = newTicker(HealthAggregatorName, interval, observer, j.aggregate)
	return j
}

func (j *GatewayHealthJob) aggregate(ctx context.Context) error {
	_, err := j.aggregator.Aggregate(ctx, j.window)
	return err
}
