package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"payroute.backend/internal/domain/entities"
	domainrepos "payroute.backend/internal/domain/repositories"
	"payroute.backend/internal/infrastructure/models"
)

type gatewayHealthRepo struct {
	db *gorm.DB
}

func NewGatewayHealthRepository(db *gorm.DB) domainrepos.GatewayHealthRepository {
	return &gatewayHealthRepo{db: db}
}

func (r *gatewayHealthRepo) Create(ctx context.Context, metric *entities.GatewayHealthMetric) error {
	m := &models.GatewayHealthMetric{
		ID:           metric.ID,
		GatewayID:    metric.GatewayID,
		SuccessRate:  metric.SuccessRate,
		AvgLatencyMs: metric.AvgLatencyMs,
		SampleCount:  metric.SampleCount,
		WindowStart:  metric.WindowStart,
		WindowEnd:    metric.WindowEnd,
		CreatedAt:    metric.CreatedAt,
	}
	if err := GetDB(ctx, r.db).WithContext(ctx).Create(m).Error; err != nil {
		return err
	}
	metric.ID = m.ID
	return nil
}

func (r *gatewayHealthRepo) LatestByGateways(ctx context.Context, gatewayIDs []uuid.UUID, since time.Time) (map[uuid.UUID]*entities.GatewayHealthMetric, error) {
	out := make(map[uuid.UUID]*entities.GatewayHealthMetric, len(gatewayIDs))
	if len(gatewayIDs) == 0 {
		return out, nil
	}

	db := r.db.WithContext(ctx)
	latest := db.Model(&models.GatewayHealthMetric{}).
		Select("gateway_id, MAX(window_end) AS window_end").
		Where("gateway_id IN ?", gatewayIDs)
	if !since.IsZero() {
		latest = latest.Where("window_end >= ?", since)
	}
	latest = latest.Group("gateway_id")

	// Only the newest row per gateway is read; ties on window_end keep the
	// most recently written one.
	var ms []models.GatewayHealthMetric
	if err := db.Table("gateway_health_metrics AS m").
		Select("m.*").
		Joins("JOIN (?) AS l ON l.gateway_id = m.gateway_id AND l.window_end = m.window_end", latest).
		Order("m.created_at DESC").
		Find(&ms).Error; err != nil {
		return nil, err
	}

	for i := range ms {
		m := &ms[i]
		if _, seen := out[m.GatewayID]; seen {
			continue
		}
		out[m.GatewayID] = &entities.GatewayHealthMetric{
			ID:           m.ID,
			GatewayID:    m.GatewayID,
			SuccessRate:  m.SuccessRate,
			AvgLatencyMs: m.AvgLatencyMs,
			SampleCount:  m.SampleCount,
			WindowStart:  m.WindowStart,
			WindowEnd:    m.WindowEnd,
			CreatedAt:    m.CreatedAt,
		}
	}
	return out, nil
}

func (r *gatewayHealthRepo) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := GetDB(ctx, r.db).WithContext(ctx).
		Where("window_end < ?", cutoff).
		Delete(&models.GatewayHealthMetric{})
	return res.RowsAffected, res.Error
}
