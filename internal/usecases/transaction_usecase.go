package usecases

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"
	"go.uber.org/zap"

	"payroute.backend/internal/domain/entities"
	domainerrors "payroute.backend/internal/domain/errors"
	"payroute.backend/internal/domain/gateway"
	"payroute.backend/internal/domain/repositories"
	"payroute.backend/pkg/logger"
	"payroute.backend/pkg/utils"
)

// TransactionUsecaseConfig tunes the orchestrator
type TransactionUsecaseConfig struct {
	CallTimeout     time.Duration
	DefaultStrategy entities.ProcessingStrategy
	// MaxAttempts caps gateway calls per Process under failover. Zero
	// means every eligible gateway may be tried.
	MaxAttempts int
}

// TransactionUsecase drives a transaction from creation to a terminal state.
type TransactionUsecase struct {
	txRepo      repositories.TransactionRepository
	gatewayRepo repositories.PaymentGatewayRepository
	bindingRepo repositories.MerchantGatewayRepository
	attemptRepo repositories.RoutingAttemptRepository
	webhookRepo repositories.WebhookRepository
	uow         repositories.UnitOfWork
	loader      routingLoader
	engine      *RoutingEngine
	resolver    *GatewayResolver
	notify      *notifier
	metrics     Recorder
	cfg         TransactionUsecaseConfig
	now         func() time.Time
}

// NewTransactionUsecase creates a new transaction usecase
func NewTransactionUsecase(
	txRepo repositories.TransactionRepository,
	gatewayRepo repositories.PaymentGatewayRepository,
	bindingRepo repositories.MerchantGatewayRepository,
	ruleRepo repositories.RoutingRuleRepository,
	attemptRepo repositories.RoutingAttemptRepository,
	healthRepo repositories.GatewayHealthRepository,
	webhookRepo repositories.WebhookRepository,
	uow repositories.UnitOfWork,
	engine *RoutingEngine,
	resolver *GatewayResolver,
	publisher repositories.NotificationPublisher,
	recorder Recorder,
	cfg TransactionUsecaseConfig,
) *TransactionUsecase {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultGatewayCallTimeout
	}
	if !cfg.DefaultStrategy.Valid() {
		cfg.DefaultStrategy = entities.StrategyFailover
	}
	return &TransactionUsecase{
		txRepo:      txRepo,
		gatewayRepo: gatewayRepo,
		bindingRepo: bindingRepo,
		attemptRepo: attemptRepo,
		webhookRepo: webhookRepo,
		uow:         uow,
		loader: routingLoader{
			bindingRepo: bindingRepo,
			ruleRepo:    ruleRepo,
			healthRepo:  healthRepo,
		},
		engine:   engine,
		resolver: resolver,
		notify:   newNotifier(publisher),
		metrics:  recorderOrNop(recorder),
		cfg:      cfg,
		now:      time.Now,
	}
}

// CreateTransactionInput is the merchant's payment intent
type CreateTransactionInput struct {
	MerchantID    uuid.UUID
	Reference     string
	Amount        decimal.Decimal
	Currency      string
	PaymentMethod entities.PaymentMethod
	Customer      *entities.CustomerDetails
	Metadata      map[string]interface{}
}

// Create validates and stores a pending transaction.
func (u *TransactionUsecase) Create(ctx context.Context, in CreateTransactionInput) (*entities.Transaction, error) {
	currency := strings.ToUpper(strings.TrimSpace(in.Currency))
	switch {
	case in.MerchantID == uuid.Nil:
		return nil, fmt.Errorf("%w: merchant id is required", domainerrors.ErrInvalidInput)
	case !in.Amount.IsPositive():
		return nil, fmt.Errorf("%w: amount must be positive", domainerrors.ErrInvalidInput)
	case !entities.ValidCurrency(currency):
		return nil, fmt.Errorf("%w: currency must be a 3-letter ISO code", domainerrors.ErrInvalidInput)
	case !gateway.ExactInMinorUnits(in.Amount, currency):
		return nil, fmt.Errorf("%w: amount %s has more than %d decimal places for %s",
			domainerrors.ErrInvalidInput, in.Amount, gateway.Exponent(currency), currency)
	case !in.PaymentMethod.Valid():
		return nil, fmt.Errorf("%w: unsupported payment method %q", domainerrors.ErrInvalidInput, in.PaymentMethod)
	case len(in.Reference) > 255:
		return nil, fmt.Errorf("%w: reference is longer than 255 characters", domainerrors.ErrInvalidInput)
	}

	now := u.now().UTC()
	tx := &entities.Transaction{
		ID:             utils.GenerateUUIDv7(),
		MerchantID:     in.MerchantID,
		Reference:      in.Reference,
		Amount:         in.Amount,
		Currency:       currency,
		PaymentMethod:  in.PaymentMethod,
		Status:         entities.TransactionStatusPending,
		Fees:           decimal.Zero,
		NetAmount:      decimal.Zero,
		RefundedAmount: decimal.Zero,
		Customer:       in.Customer,
		Metadata:       in.Metadata,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := u.txRepo.Create(ctx, tx); err != nil {
		return nil, err
	}
	logger.Info(ctx, "Transaction created",
		zap.String("transaction_id", tx.ID.String()),
		zap.String("merchant_id", tx.MerchantID.String()),
		zap.String("amount", tx.Amount.String()),
		zap.String("currency", tx.Currency),
	)
	return tx, nil
}

func (u *TransactionUsecase) Get(ctx context.Context, id uuid.UUID) (*entities.Transaction, error) {
	return u.txRepo.GetByID(ctx, id)
}

// List returns one page of transactions matching filter.
func (u *TransactionUsecase) List(ctx context.Context, filter entities.TransactionFilter, page, limit int) ([]*entities.Transaction, utils.PaginationMeta, error) {
	params := utils.GetPaginationParams(page, limit)
	items, total, err := u.txRepo.List(ctx, filter, params.Limit, params.CalculateOffset())
	if err != nil {
		return nil, utils.PaginationMeta{}, err
	}
	return items, utils.CalculateMeta(int64(total), params.Page, params.Limit), nil
}

func (u *TransactionUsecase) ListAttempts(ctx context.Context, id uuid.UUID) ([]*entities.RoutingAttempt, error) {
	if _, err := u.txRepo.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return u.attemptRepo.ListByTransaction(ctx, id)
}

func (u *TransactionUsecase) ListWebhooks(ctx context.Context, id uuid.UUID) ([]*entities.WebhookRecord, error) {
	if _, err := u.txRepo.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return u.webhookRepo.ListByTransaction(ctx, id)
}

// Process routes a pending transaction to a gateway and records the outcome.
// Only one caller can claim a transaction; every other concurrent or repeated
// call gets ErrAlreadyProcessed. Gateway declines and routing failures are
// reported through the result, not the error.
func (u *TransactionUsecase) Process(ctx context.Context, id uuid.UUID, strategy entities.ProcessingStrategy) (*entities.ProcessResult, error) {
	if strategy == "" {
		strategy = u.cfg.DefaultStrategy
	}
	if !strategy.Valid() {
		return nil, fmt.Errorf("%w: unknown strategy %q", domainerrors.ErrInvalidInput, strategy)
	}
	ctx = logger.WithCorrelationID(ctx, id.String())

	tx, err := u.txRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if tx.Status != entities.TransactionStatusPending {
		return nil, fmt.Errorf("%w: transaction is %s", domainerrors.ErrAlreadyProcessed, tx.Status)
	}

	err = u.txRepo.CompareAndSetStatus(ctx, id, entities.TransactionStatusPending, entities.TransactionStatusProcessing, entities.TransactionPatch{})
	if err != nil {
		if errors.Is(err, domainerrors.ErrStatusConflict) {
			return nil, fmt.Errorf("%w: claimed by another request", domainerrors.ErrAlreadyProcessed)
		}
		return nil, err
	}
	u.metrics.ObserveTransition(string(entities.TransactionStatusPending), string(entities.TransactionStatusProcessing))
	tx.Status = entities.TransactionStatusProcessing

	// The claim is ours now; a caller that goes away must not strand the
	// transaction in processing.
	return u.orchestrate(context.WithoutCancel(ctx), tx, strategy)
}

func (u *TransactionUsecase) orchestrate(ctx context.Context, tx *entities.Transaction, strategy entities.ProcessingStrategy) (result *entities.ProcessResult, err error) {
	attempts := 0
	defer func() {
		if r := recover(); r != nil {
			logger.Error(ctx, "Transaction orchestration panicked",
				zap.String("transaction_id", tx.ID.String()),
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
			result, err = u.fail(ctx, tx, attempts, fmt.Sprintf("internal error: %v", r))
		}
	}()

	// Rule windows and health freshness are judged when routing happens,
	// not when the transaction was created.
	at := u.now().UTC()
	state, err := u.loader.load(ctx, tx.MerchantID, u.engine.HealthSince(at))
	if err != nil {
		if _, ferr := u.fail(ctx, tx, attempts, err.Error()); ferr != nil {
			logger.Error(ctx, "Failed to mark transaction failed", zap.String("transaction_id", tx.ID.String()), zap.Error(ferr))
		}
		return nil, err
	}

	exclude := map[uuid.UUID]bool{}
	lastError := ""
	for {
		selection, err := u.engine.SelectGateway(state.input(tx, strategy, exclude, at))
		if err != nil {
			if attempts > 0 {
				// Failover ran out of gateways; report the last gateway error.
				return u.fail(ctx, tx, attempts, lastError)
			}
			u.metrics.ObserveRoutingError(routingErrorReason(err))
			logger.Warn(ctx, "No gateway selected",
				zap.String("transaction_id", tx.ID.String()),
				zap.Error(err),
			)
			attempts++
			u.recordAttempt(ctx, &entities.RoutingAttempt{
				ID:            utils.GenerateUUIDv7(),
				TransactionID: tx.ID,
				Kind:          entities.AttemptKindPayment,
				AttemptNumber: attempts,
				Status:        entities.AttemptStatusFailed,
				ErrorMessage:  null.StringFrom(truncateMessage(err.Error())),
				CreatedAt:     u.now().UTC(),
			})
			return u.fail(ctx, tx, attempts, err.Error())
		}

		selected := selection.Selected
		u.metrics.ObserveRouting(selected.GatewayCode, selection.FallbackToAvailability)
		if selection.FallbackToAvailability {
			logger.Warn(ctx, "No healthy gateway, routing on availability",
				zap.String("transaction_id", tx.ID.String()),
				zap.String("gateway", selected.GatewayCode),
			)
		}

		attempts++
		res, callErr := u.callGateway(ctx, tx, selected, attempts)
		switch {
		case callErr == nil && res.Status == entities.AttemptStatusSuccess:
			return u.complete(ctx, tx, selected, res, attempts)
		case callErr == nil && res.Status == entities.AttemptStatusPending:
			return u.awaitConfirmation(ctx, tx, selected, res, attempts)
		case errors.Is(callErr, domainerrors.ErrConfiguration):
			return u.fail(ctx, tx, attempts, callErr.Error())
		}

		lastError = declineMessage(selected.GatewayCode, res, callErr)
		logger.Warn(ctx, "Gateway attempt failed",
			zap.String("transaction_id", tx.ID.String()),
			zap.String("gateway", selected.GatewayCode),
			zap.Int("attempt", attempts),
			zap.String("error", lastError),
		)
		exclude[selected.Binding.GatewayID] = true
		if strategy != entities.StrategyFailover || (u.cfg.MaxAttempts > 0 && attempts >= u.cfg.MaxAttempts) {
			return u.fail(ctx, tx, attempts, lastError)
		}
	}
}

func (u *TransactionUsecase) callGateway(ctx context.Context, tx *entities.Transaction, c entities.CandidateScore, number int) (*gateway.PaymentResult, error) {
	gatewayID := c.Binding.GatewayID
	record := &entities.RoutingAttempt{
		ID:             utils.GenerateUUIDv7(),
		TransactionID:  tx.ID,
		Kind:           entities.AttemptKindPayment,
		AttemptNumber:  number,
		GatewayID:      &gatewayID,
		GatewayCode:    c.GatewayCode,
		Score:          c.Score,
		ScoreBreakdown: c.Breakdown,
	}
	defer u.recordAttempt(ctx, record)

	adapter, err := u.resolver.Resolve(c.Binding.Gateway, c.Binding.SubAccountID)
	if err != nil {
		record.Status = entities.AttemptStatusFailed
		record.ErrorMessage = null.StringFrom(truncateMessage(err.Error()))
		record.CreatedAt = u.now().UTC()
		return nil, err
	}

	req := gateway.PaymentRequest{
		TransactionID: tx.ID,
		Reference:     tx.Reference,
		Amount:        tx.Amount,
		Currency:      tx.Currency,
		Method:        tx.PaymentMethod,
		Customer:      tx.Customer,
		Metadata:      tx.Metadata,
	}
	record.RequestPayload = marshalPayload(map[string]interface{}{
		"reference": req.Reference,
		"amount":    req.Amount,
		"currency":  req.Currency,
		"method":    req.Method,
	})

	start := u.now()
	res, err := callWithTimeout(ctx, u.cfg.CallTimeout, c.GatewayCode, func(callCtx context.Context) (*gateway.PaymentResult, error) {
		return adapter.ProcessPayment(callCtx, req)
	})
	if err == nil && res == nil {
		err = &domainerrors.GatewayCallError{Gateway: c.GatewayCode, Err: errors.New("empty response")}
	}
	latency := u.now().Sub(start)
	record.LatencyMs = latency.Milliseconds()
	record.CreatedAt = u.now().UTC()

	if err != nil {
		record.Status = entities.AttemptStatusFailed
		record.ErrorMessage = null.StringFrom(truncateMessage(err.Error()))
		record.ResponsePayload = marshalPayload(map[string]string{"error": err.Error()})
		u.metrics.ObserveGatewayCall(c.GatewayCode, string(entities.AttemptKindPayment), callOutcome("", err), latency)
		return nil, err
	}

	record.Status = res.Status
	record.ResponsePayload = marshalPayload(res.Raw)
	if res.Status == entities.AttemptStatusFailed {
		record.ErrorMessage = null.StringFrom(truncateMessage(declineMessage(c.GatewayCode, res, nil)))
	}
	u.metrics.ObserveGatewayCall(c.GatewayCode, string(entities.AttemptKindPayment), string(res.Status), latency)
	return res, nil
}

func (u *TransactionUsecase) recordAttempt(ctx context.Context, attempt *entities.RoutingAttempt) {
	if attempt.CreatedAt.IsZero() {
		attempt.CreatedAt = u.now().UTC()
	}
	if err := u.attemptRepo.Create(ctx, attempt); err != nil {
		logger.Error(ctx, "Failed to record routing attempt",
			zap.String("transaction_id", attempt.TransactionID.String()),
			zap.Int("attempt", attempt.AttemptNumber),
			zap.Error(err),
		)
	}
}

func (u *TransactionUsecase) complete(ctx context.Context, tx *entities.Transaction, c entities.CandidateScore, res *gateway.PaymentResult, attempts int) (*entities.ProcessResult, error) {
	now := u.now().UTC()
	net := tx.Amount.Sub(c.Fee)
	patch := gatewayPatch(c, res)
	patch.Fees = &c.Fee
	patch.NetAmount = &net
	patch.ProcessedAt = &now
	return u.finish(ctx, tx, entities.TransactionStatusSuccess, patch, attempts, SourceProcess)
}

// awaitConfirmation stores the gateway reference of an accepted but
// unconfirmed payment. The webhook or a status sync settles it later.
func (u *TransactionUsecase) awaitConfirmation(ctx context.Context, tx *entities.Transaction, c entities.CandidateScore, res *gateway.PaymentResult, attempts int) (*entities.ProcessResult, error) {
	net := tx.Amount.Sub(c.Fee)
	patch := gatewayPatch(c, res)
	patch.Fees = &c.Fee
	patch.NetAmount = &net
	return u.finish(ctx, tx, entities.TransactionStatusProcessing, patch, attempts, SourceProcess)
}

func (u *TransactionUsecase) fail(ctx context.Context, tx *entities.Transaction, attempts int, message string) (*entities.ProcessResult, error) {
	now := u.now().UTC()
	msg := truncateMessage(message)
	return u.finish(ctx, tx, entities.TransactionStatusFailed, entities.TransactionPatch{
		ErrorMessage: &msg,
		ProcessedAt:  &now,
	}, attempts, SourceProcess)
}

// finish moves a processing transaction to next. When another writer got
// there first the stored state is reported instead.
func (u *TransactionUsecase) finish(ctx context.Context, tx *entities.Transaction, next entities.TransactionStatus, patch entities.TransactionPatch, attempts int, source string) (*entities.ProcessResult, error) {
	err := u.txRepo.CompareAndSetStatus(ctx, tx.ID, entities.TransactionStatusProcessing, next, patch)
	if errors.Is(err, domainerrors.ErrStatusConflict) {
		stored, gerr := u.txRepo.GetByID(ctx, tx.ID)
		if gerr != nil {
			return nil, gerr
		}
		logger.Info(ctx, "Transaction settled concurrently",
			zap.String("transaction_id", tx.ID.String()),
			zap.String("status", string(stored.Status)),
		)
		return processResult(stored, attempts), nil
	}
	if err != nil {
		logger.Error(ctx, "Failed to persist transaction outcome",
			zap.String("transaction_id", tx.ID.String()),
			zap.String("status", string(next)),
			zap.Error(err),
		)
		return nil, err
	}

	previous := tx.Status
	applyPatch(tx, next, patch, u.now().UTC())
	if previous != next {
		u.metrics.ObserveTransition(string(previous), string(next))
		u.notify.transactionChanged(ctx, tx, previous, source)
	}
	logger.Info(ctx, "Transaction processed",
		zap.String("transaction_id", tx.ID.String()),
		zap.String("status", string(tx.Status)),
		zap.String("gateway", tx.GatewayCode.String),
		zap.Int("attempts", attempts),
	)
	return processResult(tx, attempts), nil
}

// RefundInput describes a refund request. A nil Amount refunds whatever is
// still captured.
type RefundInput struct {
	Amount *decimal.Decimal
	Reason string
}

// Refund returns funds through the gateway that captured the payment. The
// transaction row stays locked until the gateway answers, so concurrent
// refunds cannot exceed the captured amount.
func (u *TransactionUsecase) Refund(ctx context.Context, id uuid.UUID, in RefundInput) (*entities.Transaction, error) {
	ctx = logger.WithCorrelationID(context.WithoutCancel(ctx), id.String())
	var (
		refunded *entities.Transaction
		previous entities.TransactionStatus
		callErr  error
	)
	err := u.uow.Do(ctx, func(txCtx context.Context) error {
		tx, err := u.txRepo.GetByID(u.uow.WithLock(txCtx), id)
		if err != nil {
			return err
		}
		if tx.Status != entities.TransactionStatusSuccess {
			return fmt.Errorf("%w: transaction is %s", domainerrors.ErrRefundNotAllowed, tx.Status)
		}
		remaining := tx.Amount.Sub(tx.RefundedAmount)
		amount := remaining
		if in.Amount != nil {
			amount = *in.Amount
		}
		if !amount.IsPositive() {
			return fmt.Errorf("%w: refund amount must be positive", domainerrors.ErrInvalidInput)
		}
		if !gateway.ExactInMinorUnits(amount, tx.Currency) {
			return fmt.Errorf("%w: refund amount %s is finer than the %s minor unit", domainerrors.ErrInvalidInput, amount, tx.Currency)
		}
		if amount.GreaterThan(remaining) {
			return fmt.Errorf("%w: %s requested, %s refundable", domainerrors.ErrRefundExceedsTotal, amount, remaining)
		}

		adapter, gw, err := u.adapterFor(txCtx, tx)
		if err != nil {
			return err
		}
		prior, err := u.attemptRepo.ListByTransaction(txCtx, tx.ID)
		if err != nil {
			return err
		}

		req := gateway.RefundRequest{
			TransactionID:        tx.ID,
			GatewayTransactionID: tx.GatewayTransactionID.String,
			Amount:               amount,
			Currency:             tx.Currency,
			Reason:               in.Reason,
		}
		gatewayID := gw.ID
		record := &entities.RoutingAttempt{
			ID:             utils.GenerateUUIDv7(),
			TransactionID:  tx.ID,
			Kind:           entities.AttemptKindRefund,
			AttemptNumber:  len(prior) + 1,
			GatewayID:      &gatewayID,
			GatewayCode:    gw.Code,
			RequestPayload: marshalPayload(map[string]interface{}{"amount": amount, "currency": tx.Currency, "reason": in.Reason}),
		}

		start := u.now()
		res, err := callWithTimeout(ctx, u.cfg.CallTimeout, gw.Code, func(callCtx context.Context) (*gateway.RefundResult, error) {
			return adapter.ProcessRefund(callCtx, req)
		})
		if err == nil && res == nil {
			err = &domainerrors.GatewayCallError{Gateway: gw.Code, Err: errors.New("empty response")}
		}
		if err == nil && res.Status == entities.AttemptStatusFailed {
			err = &domainerrors.GatewayCallError{Gateway: gw.Code, ProviderCode: "REFUND_DECLINED", Err: errors.New(res.ErrorMessage)}
		}
		latency := u.now().Sub(start)
		record.LatencyMs = latency.Milliseconds()
		record.CreatedAt = u.now().UTC()
		u.metrics.ObserveGatewayCall(gw.Code, string(entities.AttemptKindRefund), callOutcome(refundStatus(res), err), latency)

		if err != nil {
			// Keep the failed attempt; the refund itself is reported after commit.
			record.Status = entities.AttemptStatusFailed
			record.ErrorMessage = null.StringFrom(truncateMessage(err.Error()))
			if res != nil {
				record.ResponsePayload = marshalPayload(res.Raw)
			}
			callErr = err
			return u.attemptRepo.Create(txCtx, record)
		}

		record.Status = res.Status
		record.ResponsePayload = marshalPayload(res.Raw)
		if err := u.attemptRepo.Create(txCtx, record); err != nil {
			return err
		}
		if res.Status == entities.AttemptStatusPending {
			// The provider confirms through a refund.processed webhook.
			refunded = tx
			return nil
		}

		total := tx.RefundedAmount.Add(amount)
		previous = tx.Status
		if total.GreaterThanOrEqual(tx.Amount) {
			now := u.now().UTC()
			if err := u.txRepo.CompareAndSetStatus(txCtx, tx.ID, entities.TransactionStatusSuccess, entities.TransactionStatusRefunded, entities.TransactionPatch{
				RefundedAmount: &total,
				ProcessedAt:    &now,
			}); err != nil {
				return err
			}
			tx.Status = entities.TransactionStatusRefunded
		} else if err := u.txRepo.UpdateRefundedAmount(txCtx, tx.ID, entities.TransactionStatusSuccess, total); err != nil {
			return err
		}
		tx.RefundedAmount = total
		tx.UpdatedAt = u.now().UTC()
		refunded = tx
		return nil
	})
	if err != nil {
		return nil, err
	}
	if callErr != nil {
		logger.Warn(ctx, "Refund rejected by gateway", zap.String("transaction_id", id.String()), zap.Error(callErr))
		return nil, callErr
	}

	if previous != "" {
		if previous != refunded.Status {
			u.metrics.ObserveTransition(string(previous), string(refunded.Status))
		}
		u.notify.transactionChanged(ctx, refunded, previous, SourceRefund)
	}
	logger.Info(ctx, "Refund processed",
		zap.String("transaction_id", id.String()),
		zap.String("status", string(refunded.Status)),
		zap.String("refunded_amount", refunded.RefundedAmount.String()),
	)
	return refunded, nil
}

// Cancel withdraws a transaction that was never sent to a gateway.
func (u *TransactionUsecase) Cancel(ctx context.Context, id uuid.UUID, reason string) (*entities.Transaction, error) {
	ctx = logger.WithCorrelationID(ctx, id.String())
	tx, err := u.txRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if tx.Status != entities.TransactionStatusPending {
		return nil, fmt.Errorf("%w: only pending transactions can be cancelled, transaction is %s", domainerrors.ErrInvalidTransition, tx.Status)
	}

	now := u.now().UTC()
	patch := entities.TransactionPatch{ProcessedAt: &now}
	if reason != "" {
		msg := truncateMessage(reason)
		patch.ErrorMessage = &msg
	}
	err = u.txRepo.CompareAndSetStatus(ctx, id, entities.TransactionStatusPending, entities.TransactionStatusCancelled, patch)
	if errors.Is(err, domainerrors.ErrStatusConflict) {
		return nil, fmt.Errorf("%w: transaction left pending", domainerrors.ErrInvalidTransition)
	}
	if err != nil {
		return nil, err
	}

	applyPatch(tx, entities.TransactionStatusCancelled, patch, now)
	u.metrics.ObserveTransition(string(entities.TransactionStatusPending), string(entities.TransactionStatusCancelled))
	u.notify.transactionChanged(ctx, tx, entities.TransactionStatusPending, SourceCancel)
	return tx, nil
}

// SyncStatus asks the gateway about a processing transaction and settles it
// when the gateway has a final answer. Other states are returned unchanged.
func (u *TransactionUsecase) SyncStatus(ctx context.Context, id uuid.UUID) (*entities.Transaction, error) {
	ctx = logger.WithCorrelationID(ctx, id.String())
	tx, err := u.txRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if tx.Status != entities.TransactionStatusProcessing || !tx.GatewayTransactionID.Valid || tx.GatewayID == nil {
		return tx, nil
	}

	adapter, gw, err := u.adapterFor(ctx, tx)
	if err != nil {
		return nil, err
	}
	start := u.now()
	res, err := callWithTimeout(ctx, u.cfg.CallTimeout, gw.Code, func(callCtx context.Context) (*gateway.StatusResult, error) {
		return adapter.CheckStatus(callCtx, tx.GatewayTransactionID.String)
	})
	if err == nil && res == nil {
		err = &domainerrors.GatewayCallError{Gateway: gw.Code, Err: errors.New("empty response")}
	}
	status := ""
	if res != nil {
		status = string(res.Status)
	}
	u.metrics.ObserveGatewayCall(gw.Code, "status", callOutcome(status, err), u.now().Sub(start))
	if err != nil {
		return nil, err
	}

	now := u.now().UTC()
	var (
		next  entities.TransactionStatus
		patch = entities.TransactionPatch{ProcessedAt: &now}
	)
	switch res.Status {
	case entities.AttemptStatusSuccess:
		next = entities.TransactionStatusSuccess
	case entities.AttemptStatusFailed:
		next = entities.TransactionStatusFailed
		patch.ErrorMessage = stringPtr("gateway reported the payment as failed")
	default:
		return tx, nil
	}

	err = u.txRepo.CompareAndSetStatus(ctx, tx.ID, entities.TransactionStatusProcessing, next, patch)
	if errors.Is(err, domainerrors.ErrStatusConflict) {
		return u.txRepo.GetByID(ctx, tx.ID)
	}
	if err != nil {
		return nil, err
	}
	applyPatch(tx, next, patch, now)
	u.metrics.ObserveTransition(string(entities.TransactionStatusProcessing), string(next))
	u.notify.transactionChanged(ctx, tx, entities.TransactionStatusProcessing, SourceSync)
	logger.Info(ctx, "Transaction status synced",
		zap.String("transaction_id", tx.ID.String()),
		zap.String("status", string(next)),
	)
	return tx, nil
}

// ReconcileReport summarises one stuck-transaction sweep
type ReconcileReport struct {
	Checked   int
	Settled   int
	Abandoned int
	Errors    int
}

// ReconcileStuck settles transactions left in processing since before
// olderThan. Ones with a gateway reference are synced; ones without never
// reached a gateway and are failed.
func (u *TransactionUsecase) ReconcileStuck(ctx context.Context, olderThan time.Time, limit int) (ReconcileReport, error) {
	var report ReconcileReport
	if limit <= 0 || limit > maxStuckBatch {
		limit = maxStuckBatch
	}
	stuck, err := u.txRepo.ListStuckProcessing(ctx, olderThan, limit)
	if err != nil {
		return report, err
	}

	for _, tx := range stuck {
		report.Checked++
		if tx.GatewayTransactionID.Valid {
			synced, err := u.SyncStatus(ctx, tx.ID)
			if err != nil {
				report.Errors++
				logger.Warn(ctx, "Stuck transaction sync failed", zap.String("transaction_id", tx.ID.String()), zap.Error(err))
				continue
			}
			if synced.Status != entities.TransactionStatusProcessing {
				report.Settled++
			}
			continue
		}

		now := u.now().UTC()
		patch := entities.TransactionPatch{
			ErrorMessage: stringPtr("orchestration abandoned: no gateway response was recorded"),
			ProcessedAt:  &now,
		}
		err := u.txRepo.CompareAndSetStatus(ctx, tx.ID, entities.TransactionStatusProcessing, entities.TransactionStatusFailed, patch)
		if errors.Is(err, domainerrors.ErrStatusConflict) {
			continue
		}
		if err != nil {
			report.Errors++
			logger.Warn(ctx, "Failed to abandon stuck transaction", zap.String("transaction_id", tx.ID.String()), zap.Error(err))
			continue
		}
		report.Abandoned++
		applyPatch(tx, entities.TransactionStatusFailed, patch, now)
		u.metrics.ObserveTransition(string(entities.TransactionStatusProcessing), string(entities.TransactionStatusFailed))
		u.notify.transactionChanged(ctx, tx, entities.TransactionStatusProcessing, SourceSync)
	}
	return report, nil
}

// adapterFor builds the adapter of the gateway that handled tx.
func (u *TransactionUsecase) adapterFor(ctx context.Context, tx *entities.Transaction) (gateway.Gateway, *entities.PaymentGateway, error) {
	if tx.GatewayID == nil || !tx.GatewayTransactionID.Valid {
		return nil, nil, fmt.Errorf("%w: transaction has no gateway reference", domainerrors.ErrRefundNotAllowed)
	}
	gw, err := u.gatewayRepo.GetByID(ctx, *tx.GatewayID)
	if err != nil {
		return nil, nil, err
	}
	subAccount := ""
	binding, err := u.bindingRepo.GetByMerchantAndGateway(ctx, tx.MerchantID, gw.ID)
	switch {
	case err == nil:
		subAccount = binding.SubAccountID
	case !errors.Is(err, domainerrors.ErrNotFound):
		return nil, nil, err
	}
	adapter, err := u.resolver.Resolve(gw, subAccount)
	if err != nil {
		return nil, nil, err
	}
	return adapter, gw, nil
}

func gatewayPatch(c entities.CandidateScore, res *gateway.PaymentResult) entities.TransactionPatch {
	gatewayID := c.Binding.GatewayID
	patch := entities.TransactionPatch{
		GatewayID:   &gatewayID,
		GatewayCode: stringPtr(c.GatewayCode),
	}
	if res.GatewayTransactionID != "" {
		patch.GatewayTransactionID = stringPtr(res.GatewayTransactionID)
	}
	if res.RedirectURL != "" {
		patch.RedirectURL = stringPtr(res.RedirectURL)
	}
	return patch
}

// applyPatch mirrors a persisted CompareAndSetStatus onto the in-memory copy.
func applyPatch(tx *entities.Transaction, status entities.TransactionStatus, p entities.TransactionPatch, at time.Time) {
	tx.Status = status
	tx.UpdatedAt = at
	if p.GatewayID != nil {
		id := *p.GatewayID
		tx.GatewayID = &id
	}
	if p.GatewayCode != nil {
		tx.GatewayCode = null.StringFrom(*p.GatewayCode)
	}
	if p.GatewayTransactionID != nil {
		tx.GatewayTransactionID = null.StringFrom(*p.GatewayTransactionID)
	}
	if p.RedirectURL != nil {
		tx.RedirectURL = null.StringFrom(*p.RedirectURL)
	}
	if p.Fees != nil {
		tx.Fees = *p.Fees
	}
	if p.NetAmount != nil {
		tx.NetAmount = *p.NetAmount
	}
	if p.RefundedAmount != nil {
		tx.RefundedAmount = *p.RefundedAmount
	}
	if p.ErrorMessage != nil {
		tx.ErrorMessage = null.StringFrom(*p.ErrorMessage)
	}
	if p.Metadata != nil {
		tx.Metadata = p.Metadata
	}
	if p.ProcessedAt != nil {
		processed := *p.ProcessedAt
		tx.ProcessedAt = &processed
	}
}

func processResult(tx *entities.Transaction, attempts int) *entities.ProcessResult {
	return &entities.ProcessResult{
		Success:              tx.Status == entities.TransactionStatusSuccess,
		Status:               tx.Status,
		GatewayUsed:          tx.GatewayCode.String,
		GatewayTransactionID: tx.GatewayTransactionID.String,
		RedirectURL:          tx.RedirectURL.String,
		Attempts:             attempts,
		Error:                tx.ErrorMessage.String,
	}
}

func declineMessage(code string, res *gateway.PaymentResult, err error) string {
	if err != nil {
		return err.Error()
	}
	if res == nil {
		return fmt.Sprintf("gateway %s: no response", code)
	}
	switch {
	case res.ErrorCode != "" && res.ErrorMessage != "":
		return fmt.Sprintf("gateway %s: %s: %s", code, res.ErrorCode, res.ErrorMessage)
	case res.ErrorMessage != "":
		return fmt.Sprintf("gateway %s: %s", code, res.ErrorMessage)
	case res.ErrorCode != "":
		return fmt.Sprintf("gateway %s: %s", code, res.ErrorCode)
	default:
		return fmt.Sprintf("gateway %s: payment declined", code)
	}
}

func refundStatus(res *gateway.RefundResult) string {
	if res == nil {
		return ""
	}
	return string(res.Status)
}

func routingErrorReason(err error) string {
	switch {
	case errors.Is(err, domainerrors.ErrNoEligibleGateway):
		return "no_eligible_gateway"
	case errors.Is(err, domainerrors.ErrNoHealthyGateway):
		return "no_healthy_gateway"
	default:
		return "other"
	}
}
