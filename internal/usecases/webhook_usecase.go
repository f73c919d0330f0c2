package usecases

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/volatiletech/null/v8"
	"go.uber.org/zap"

	"payroute.backend/internal/domain/entities"
	domainerrors "payroute.backend/internal/domain/errors"
	"payroute.backend/internal/domain/repositories"
	"payroute.backend/pkg/logger"
	"payroute.backend/pkg/utils"
)

// maxWebhookRetries bounds re-reads after a concurrent status change.
const maxWebhookRetries = 3

// WebhookUsecase reconciles gateway callbacks with stored transactions
type WebhookUsecase struct {
	gatewayRepo repositories.PaymentGatewayRepository
	txRepo      repositories.TransactionRepository
	webhookRepo repositories.WebhookRepository
	resolver    *GatewayResolver
	notify      *notifier
	metrics     Recorder
	now         func() time.Time
}

// NewWebhookUsecase creates a new webhook usecase
func NewWebhookUsecase(
	gatewayRepo repositories.PaymentGatewayRepository,
	txRepo repositories.TransactionRepository,
	webhookRepo repositories.WebhookRepository,
	resolver *GatewayResolver,
	publisher repositories.NotificationPublisher,
	recorder Recorder,
) *WebhookUsecase {
	return &WebhookUsecase{
		gatewayRepo: gatewayRepo,
		txRepo:      txRepo,
		webhookRepo: webhookRepo,
		resolver:    resolver,
		notify:      newNotifier(publisher),
		metrics:     recorderOrNop(recorder),
		now:         time.Now,
	}
}

// HandleWebhook stores, verifies and applies one gateway callback. The
// result always describes what happened to the stored record; a non-nil
// error classifies the failure for the HTTP layer.
func (u *WebhookUsecase) HandleWebhook(ctx context.Context, gatewayCode string, payload []byte, headers http.Header) (*entities.WebhookResult, error) {
	code := strings.ToLower(strings.TrimSpace(gatewayCode))
	record := &entities.WebhookRecord{
		ID:          utils.GenerateUUIDv7(),
		GatewayCode: code,
		RawPayload:  string(payload),
		Headers:     flattenHeaders(headers),
		CreatedAt:   u.now().UTC(),
	}
	ctx = logger.WithCorrelationID(ctx, record.ID.String())

	gw, err := u.gatewayRepo.GetByCode(ctx, code)
	if err != nil && !errors.Is(err, domainerrors.ErrNotFound) {
		return rejected("gateway lookup failed"), err
	}
	if gw != nil {
		record.GatewayID = &gw.ID
	}
	// The raw callback is kept before anything else can fail.
	if err := u.webhookRepo.Create(ctx, record); err != nil {
		return rejected("webhook not stored"), err
	}
	if gw == nil {
		return u.reject(ctx, record, "unknown gateway", fmt.Errorf("%w: %s", domainerrors.ErrUnknownGateway, code))
	}

	adapter, err := u.resolver.Resolve(gw, "")
	if err != nil {
		return u.reject(ctx, record, "gateway not configured", err)
	}
	if err := adapter.VerifyWebhookSignature(payload, headers); err != nil {
		logger.Warn(ctx, "Webhook signature rejected",
			zap.String("gateway", code),
			zap.String("webhook_id", record.ID.String()),
			zap.Error(err),
		)
		return u.reject(ctx, record, "invalid signature", fmt.Errorf("%w: %v", domainerrors.ErrInvalidSignature, err))
	}

	event, err := adapter.ParseWebhookEvent(payload)
	if errors.Is(err, domainerrors.ErrUnsupportedEvent) {
		// Acknowledged so the gateway stops retrying; nothing to apply.
		record.ProcessingError = null.StringFrom(truncateMessage(err.Error()))
		if uerr := u.webhookRepo.Update(ctx, record); uerr != nil {
			return rejected("webhook not updated"), uerr
		}
		u.metrics.ObserveWebhook(code, "ignored")
		return &entities.WebhookResult{Success: true, Processed: false, Message: "event ignored"}, nil
	}
	if err != nil {
		return u.reject(ctx, record, "unparseable payload", fmt.Errorf("%w: %v", domainerrors.ErrInvalidInput, err))
	}
	record.EventType = null.StringFrom(string(event.Type))
	record.GatewayTransactionID = null.StringFrom(event.GatewayTransactionID)

	tx, err := u.txRepo.GetByGatewayTransactionID(ctx, gw.ID, event.GatewayTransactionID)
	if errors.Is(err, domainerrors.ErrNotFound) {
		return u.reject(ctx, record, "transaction not found", fmt.Errorf("%w: %s", domainerrors.ErrTransactionNotFound, event.GatewayTransactionID))
	}
	if err != nil {
		return rejected("transaction lookup failed"), err
	}
	record.TransactionID = &tx.ID

	applied, err := u.apply(ctx, tx, event, record)
	if err != nil {
		var conflict *terminalConflict
		if errors.As(err, &conflict) {
			// A settled transaction is never reopened by a late callback.
			logger.Warn(ctx, "Webhook conflicts with settled transaction",
				zap.String("transaction_id", tx.ID.String()),
				zap.String("status", string(conflict.current)),
				zap.String("event", string(event.Type)),
			)
			record.ProcessingError = null.StringFrom(truncateMessage(conflict.Error()))
			if uerr := u.webhookRepo.Update(ctx, record); uerr != nil {
				return rejected("webhook not updated"), uerr
			}
			u.metrics.ObserveWebhook(code, "conflict")
			return &entities.WebhookResult{Success: false, Processed: false, Message: conflict.Error()}, nil
		}
		return rejected("webhook not applied"), err
	}

	now := u.now().UTC()
	record.Processed = true
	record.ProcessedAt = &now
	if err := u.webhookRepo.Update(ctx, record); err != nil {
		return rejected("webhook not updated"), err
	}

	outcome := "applied"
	if applied == nil {
		outcome = "duplicate"
	}
	u.metrics.ObserveWebhook(code, outcome)
	if applied != nil {
		u.notify.transactionChanged(ctx, applied.tx, applied.previous, SourceWebhook)
	}
	logger.Info(ctx, "Webhook processed",
		zap.String("gateway", code),
		zap.String("event", string(event.Type)),
		zap.String("transaction_id", tx.ID.String()),
		zap.String("outcome", outcome),
	)
	return &entities.WebhookResult{Success: true, Processed: true}, nil
}

type appliedChange struct {
	tx       *entities.Transaction
	previous entities.TransactionStatus
}

type terminalConflict struct {
	current entities.TransactionStatus
	event   entities.WebhookEventType
}

func (e *terminalConflict) Error() string {
	return fmt.Sprintf("%v: %s event for %s transaction", domainerrors.ErrInvalidTransition, e.event, e.current)
}

// apply moves tx as the event demands. A nil change with a nil error means
// the transaction already reflects the event.
func (u *WebhookUsecase) apply(ctx context.Context, tx *entities.Transaction, event *entities.WebhookEvent, record *entities.WebhookRecord) (*appliedChange, error) {
	if event.Type == entities.WebhookEventDisputeCreated {
		// Disputes are kept for audit only.
		return nil, nil
	}

	for i := 0; i < maxWebhookRetries; i++ {
		change, err := u.applyOnce(ctx, tx, event, record)
		if !errors.Is(err, domainerrors.ErrStatusConflict) {
			return change, err
		}
		// Another writer moved the row; decide again on fresh state.
		tx, err = u.txRepo.GetByID(ctx, tx.ID)
		if err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: transaction %s kept changing", domainerrors.ErrStatusConflict, tx.ID)
}

func (u *WebhookUsecase) applyOnce(ctx context.Context, tx *entities.Transaction, event *entities.WebhookEvent, record *entities.WebhookRecord) (*appliedChange, error) {
	now := u.now().UTC()
	previous := tx.Status
	patch := entities.TransactionPatch{
		ProcessedAt: &now,
		Metadata:    mergeMetadata(tx.Metadata, event, record),
	}

	var target entities.TransactionStatus
	switch event.Type {
	case entities.WebhookEventPaymentSuccess:
		target = entities.TransactionStatusSuccess
	case entities.WebhookEventPaymentFailed:
		target = entities.TransactionStatusFailed
		patch.ErrorMessage = stringPtr("gateway reported the payment as failed")
	case entities.WebhookEventRefundProcessed:
		refunded := event.Amount
		if !refunded.IsPositive() || refunded.GreaterThan(tx.Amount) {
			refunded = tx.Amount
		}
		if tx.Status == entities.TransactionStatusRefunded {
			return nil, nil
		}
		if tx.Status == entities.TransactionStatusSuccess && refunded.LessThan(tx.Amount) {
			if !refunded.GreaterThan(tx.RefundedAmount) {
				return nil, nil
			}
			if err := u.txRepo.UpdateRefundedAmount(ctx, tx.ID, tx.Status, refunded); err != nil {
				return nil, err
			}
			tx.RefundedAmount = refunded
			tx.UpdatedAt = now
			return &appliedChange{tx: tx, previous: previous}, nil
		}
		target = entities.TransactionStatusRefunded
		patch.RefundedAmount = &refunded
	default:
		return nil, fmt.Errorf("%w: %s", domainerrors.ErrUnsupportedEvent, event.Type)
	}

	if tx.Status == target {
		return nil, nil
	}
	if !tx.Status.CanTransitionTo(target) {
		return nil, &terminalConflict{current: tx.Status, event: event.Type}
	}
	if err := u.txRepo.CompareAndSetStatus(ctx, tx.ID, tx.Status, target, patch); err != nil {
		return nil, err
	}
	applyPatch(tx, target, patch, now)
	u.metrics.ObserveTransition(string(previous), string(target))
	return &appliedChange{tx: tx, previous: previous}, nil
}

// mergeMetadata records the applied event next to the merchant's metadata.
func mergeMetadata(current map[string]interface{}, event *entities.WebhookEvent, record *entities.WebhookRecord) map[string]interface{} {
	out := make(map[string]interface{}, len(current)+1)
	for k, v := range current {
		out[k] = v
	}
	out["gatewayEvent"] = map[string]interface{}{
		"type":      string(event.Type),
		"webhookId": record.ID.String(),
		"timestamp": event.Timestamp.UTC().Format(time.RFC3339),
	}
	return out
}

// reject stores why the callback was not applied and returns err unchanged.
func (u *WebhookUsecase) reject(ctx context.Context, record *entities.WebhookRecord, reason string, err error) (*entities.WebhookResult, error) {
	record.ProcessingError = null.StringFrom(truncateMessage(reason + ": " + err.Error()))
	if uerr := u.webhookRepo.Update(ctx, record); uerr != nil {
		logger.Error(ctx, "Failed to update webhook record",
			zap.String("webhook_id", record.ID.String()),
			zap.Error(uerr),
		)
	}
	u.metrics.ObserveWebhook(record.GatewayCode, strings.ReplaceAll(reason, " ", "_"))
	return rejected(reason), err
}

func rejected(message string) *entities.WebhookResult {
	return &entities.WebhookResult{Success: false, Processed: false, Message: message}
}
