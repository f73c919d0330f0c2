package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"
	"gorm.io/gorm"
	"payroute.backend/internal/domain/entities"
	domainrepos "payroute.backend/internal/domain/repositories"
	"payroute.backend/internal/infrastructure/models"
)

type routingAttemptRepo struct {
	db *gorm.DB
}

func NewRoutingAttemptRepository(db *gorm.DB) domainrepos.RoutingAttemptRepository {
	return &routingAttemptRepo{db: db}
}

func (r *routingAttemptRepo) Create(ctx context.Context, attempt *entities.RoutingAttempt) error {
	breakdown, err := toJSONColumn(attempt.ScoreBreakdown)
	if err != nil {
		return err
	}
	m := &models.RoutingAttempt{
		ID:              attempt.ID,
		TransactionID:   attempt.TransactionID,
		Kind:            string(attempt.Kind),
		AttemptNumber:   attempt.AttemptNumber,
		GatewayID:       attempt.GatewayID,
		GatewayCode:     attempt.GatewayCode,
		Status:          string(attempt.Status),
		ErrorMessage:    attempt.ErrorMessage.Ptr(),
		LatencyMs:       attempt.LatencyMs,
		Score:           attempt.Score,
		ScoreBreakdown:  breakdown,
		RequestPayload:  rawJSONColumn(attempt.RequestPayload),
		ResponsePayload: rawJSONColumn(attempt.ResponsePayload),
		CreatedAt:       attempt.CreatedAt,
	}
	if err := GetDB(ctx, r.db).WithContext(ctx).Create(m).Error; err != nil {
		return err
	}
	attempt.ID = m.ID
	return nil
}

func (r *routingAttemptRepo) ListByTransaction(ctx context.Context, transactionID uuid.UUID) ([]*entities.RoutingAttempt, error) {
	var ms []models.RoutingAttempt
	if err := r.db.WithContext(ctx).
		Where("transaction_id = ?", transactionID).
		Order("kind ASC, attempt_number ASC").
		Find(&ms).Error; err != nil {
		return nil, err
	}
	out := make([]*entities.RoutingAttempt, 0, len(ms))
	for i := range ms {
		m := &ms[i]
		a := &entities.RoutingAttempt{
			ID:              m.ID,
			TransactionID:   m.TransactionID,
			Kind:            entities.AttemptKind(m.Kind),
			AttemptNumber:   m.AttemptNumber,
			GatewayID:       m.GatewayID,
			GatewayCode:     m.GatewayCode,
			Status:          entities.AttemptStatus(m.Status),
			ErrorMessage:    null.StringFromPtr(m.ErrorMessage),
			LatencyMs:       m.LatencyMs,
			Score:           m.Score,
			RequestPayload:  []byte(m.RequestPayload),
			ResponsePayload: []byte(m.ResponsePayload),
			CreatedAt:       m.CreatedAt,
		}
		if err := fromJSONColumn(m.ScoreBreakdown, &a.ScoreBreakdown); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// StatsSince aggregates payment attempts per gateway. Pending outcomes count
// as successful calls: the gateway accepted the request.
func (r *routingAttemptRepo) StatsSince(ctx context.Context, since time.Time) ([]entities.GatewayAttemptStats, error) {
	type row struct {
		GatewayID    uuid.UUID
		Total        int
		Succeeded    int
		AvgLatencyMs float64
	}
	var rows []row
	err := r.db.WithContext(ctx).Model(&models.RoutingAttempt{}).
		Select(`gateway_id,
			COUNT(*) AS total,
			SUM(CASE WHEN status IN (?, ?) THEN 1 ELSE 0 END) AS succeeded,
			AVG(latency_ms) AS avg_latency_ms`,
			string(entities.AttemptStatusSuccess), string(entities.AttemptStatusPending)).
		Where("kind = ? AND gateway_id IS NOT NULL AND created_at >= ?", string(entities.AttemptKindPayment), since).
		Group("gateway_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]entities.GatewayAttemptStats, 0, len(rows))
	for _, rw := range rows {
		out = append(out, entities.GatewayAttemptStats{
			GatewayID:    rw.GatewayID,
			Total:        rw.Total,
			Succeeded:    rw.Succeeded,
			AvgLatencyMs: rw.AvgLatencyMs,
		})
	}
	return out, nil
}
