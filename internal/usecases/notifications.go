package usecases

import (
	"context"
	"time"

	"go.uber.org/zap"

	"payroute.backend/internal/domain/entities"
	"payroute.backend/internal/domain/repositories"
	"payroute.backend/pkg/logger"
	"payroute.backend/pkg/utils"
)

// Recorder receives orchestration metrics. *metrics.Metrics implements it.
type Recorder interface {
	ObserveRouting(gateway string, fallback bool)
	ObserveRoutingError(reason string)
	ObserveGatewayCall(gateway, kind, outcome string, latency time.Duration)
	ObserveWebhook(gateway, outcome string)
	ObserveTransition(from, to string)
	ObserveJob(job string, err error)
}

type nopRecorder struct{}

func (nopRecorder) ObserveRouting(string, bool)                              {}
func (nopRecorder) ObserveRoutingError(string)                               {}
func (nopRecorder) ObserveGatewayCall(string, string, string, time.Duration) {}
func (nopRecorder) ObserveWebhook(string, string)                            {}
func (nopRecorder) ObserveTransition(string, string)                         {}
func (nopRecorder) ObserveJob(string, error)                                 {}

func recorderOrNop(r Recorder) Recorder {
	if r == nil {
		return nopRecorder{}
	}
	return r
}

// notifier publishes merchant notifications off the request path. A failed
// publish is logged and never changes the transaction outcome.
type notifier struct {
	publisher repositories.NotificationPublisher
	// dispatch runs the publish; tests swap it for a synchronous call.
	dispatch func(func())
	now      func() time.Time
}

func newNotifier(publisher repositories.NotificationPublisher) *notifier {
	return &notifier{
		publisher: publisher,
		dispatch:  func(f func()) { go f() },
		now:       time.Now,
	}
}

func (n *notifier) transactionChanged(ctx context.Context, tx *entities.Transaction, previous entities.TransactionStatus, source string) {
	if n == nil || n.publisher == nil || tx == nil {
		return
	}
	msg := entities.MerchantNotification{
		ID:                   utils.GenerateUUIDv7(),
		MerchantID:           tx.MerchantID,
		TransactionID:        tx.ID,
		Reference:            tx.Reference,
		Status:               tx.Status,
		PreviousStatus:       previous,
		Amount:               tx.Amount,
		Currency:             tx.Currency,
		GatewayCode:          tx.GatewayCode.String,
		GatewayTransactionID: tx.GatewayTransactionID.String,
		Source:               source,
		OccurredAt:           n.now().UTC(),
	}
	base := context.WithoutCancel(ctx)
	n.dispatch(func() {
		pubCtx, cancel := context.WithTimeout(base, notifyTimeout)
		defer cancel()
		if err := n.publisher.Publish(pubCtx, msg); err != nil {
			logger.Warn(base, "Merchant notification not published",
				zap.String("transaction_id", msg.TransactionID.String()),
				zap.String("status", string(msg.Status)),
				zap.Error(err),
			)
		}
	})
}
