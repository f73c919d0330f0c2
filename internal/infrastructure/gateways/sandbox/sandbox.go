// Package sandbox is a deterministic in-process gateway for local and
// staging environments. The outcome of a charge is taken from the
// transaction metadata key "sandbox_outcome".
package sandbox

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"payroute.backend/internal/domain/entities"
	domainerrors "payroute.backend/internal/domain/errors"
	"payroute.backend/internal/domain/gateway"
)

const (
	Code            = "sandbox"
	SignatureHeader = "X-Sandbox-Signature"

	OutcomeSuccess = "success"
	OutcomePending = "pending"
	OutcomeDecline = "decline"
	OutcomeError   = "error"
	OutcomeTimeout = "timeout"
)

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Code() string {
	return Code
}

func (f *Factory) New(cfg gateway.Config) (gateway.Gateway, error) {
	if strings.TrimSpace(cfg.Credentials.WebhookSecret) == "" {
		return nil, fmt.Errorf("%w: sandbox requires webhookSecret", domainerrors.ErrConfiguration)
	}
	code := cfg.Code
	if code == "" {
		code = Code
	}
	return &Adapter{code: code, baseURL: strings.TrimRight(cfg.BaseURL, "/"), webhookSecret: cfg.Credentials.WebhookSecret}, nil
}

type Adapter struct {
	code          string
	baseURL       string
	webhookSecret string
}

func (a *Adapter) Code() string {
	return a.code
}

// Gateway transaction ids carry the outcome so status checks stay stateless.
func transactionID(outcome, txID string) string {
	return "sbx_" + outcome + "_" + txID
}

func outcomeOf(gatewayTransactionID string) string {
	rest, ok := strings.CutPrefix(gatewayTransactionID, "sbx_")
	if !ok {
		return ""
	}
	outcome, _, _ := strings.Cut(rest, "_")
	return outcome
}

func (a *Adapter) ProcessPayment(ctx context.Context, req gateway.PaymentRequest) (*gateway.PaymentResult, error) {
	outcome, _ := req.Metadata["sandbox_outcome"].(string)
	if outcome == "" {
		outcome = OutcomeSuccess
	}

	if ms, ok := req.Metadata["sandbox_latency_ms"].(float64); ok && ms > 0 {
		select {
		case <-time.After(time.Duration(ms) * time.Millisecond):
		case <-ctx.Done():
			return nil, &domainerrors.GatewayCallError{Gateway: a.code, Timeout: true, Err: ctx.Err()}
		}
	}

	id := transactionID(outcome, req.TransactionID.String())
	raw, _ := json.Marshal(map[string]string{"id": id, "outcome": outcome})

	switch outcome {
	case OutcomeSuccess:
		return &gateway.PaymentResult{Status: entities.AttemptStatusSuccess, GatewayTransactionID: id, Raw: raw}, nil
	case OutcomePending:
		return &gateway.PaymentResult{
			Status:               entities.AttemptStatusPending,
			GatewayTransactionID: id,
			RedirectURL:          a.baseURL + "/checkout/" + id,
			Raw:                  raw,
		}, nil
	case OutcomeDecline:
		return &gateway.PaymentResult{
			Status:               entities.AttemptStatusFailed,
			GatewayTransactionID: id,
			ErrorCode:            "card_declined",
			ErrorMessage:         "sandbox decline",
			Raw:                  raw,
		}, nil
	case OutcomeTimeout:
		<-ctx.Done()
		return nil, &domainerrors.GatewayCallError{Gateway: a.code, Timeout: true, Err: ctx.Err()}
	default:
		return nil, &domainerrors.GatewayCallError{Gateway: a.code, ProviderCode: "sandbox_error", Err: errors.New("sandbox upstream error")}
	}
}

func (a *Adapter) ProcessRefund(_ context.Context, req gateway.RefundRequest) (*gateway.RefundResult, error) {
	if !req.Amount.IsPositive() {
		return &gateway.RefundResult{Status: entities.AttemptStatusFailed, ErrorMessage: "refund amount must be positive"}, nil
	}
	id := "sbx_rf_" + req.TransactionID.String()
	raw, _ := json.Marshal(map[string]string{"id": id, "amount": req.Amount.String(), "currency": req.Currency})
	return &gateway.RefundResult{RefundID: id, Status: entities.AttemptStatusSuccess, Raw: raw}, nil
}

// CheckStatus settles pending sandbox payments as successful.
func (a *Adapter) CheckStatus(_ context.Context, gatewayTransactionID string) (*gateway.StatusResult, error) {
	var status entities.AttemptStatus
	switch outcomeOf(gatewayTransactionID) {
	case OutcomeSuccess, OutcomePending:
		status = entities.AttemptStatusSuccess
	case OutcomeDecline:
		status = entities.AttemptStatusFailed
	default:
		return nil, &domainerrors.GatewayCallError{Gateway: a.code, ProviderCode: "unknown_payment", Err: fmt.Errorf("unknown payment %q", gatewayTransactionID)}
	}
	raw, _ := json.Marshal(map[string]string{"id": gatewayTransactionID, "status": string(status)})
	return &gateway.StatusResult{Status: status, Raw: raw}, nil
}

// Sign computes the signature header value for a webhook body.
func Sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func (a *Adapter) VerifyWebhookSignature(payload []byte, headers http.Header) error {
	got := strings.TrimSpace(headers.Get(SignatureHeader))
	if got == "" || !hmac.Equal([]byte(got), []byte(Sign(a.webhookSecret, payload))) {
		return domainerrors.ErrInvalidSignature
	}
	return nil
}

// Event is the sandbox webhook body. Types use the normalised event names.
type Event struct {
	Type                 string          `json:"type"`
	GatewayTransactionID string          `json:"gatewayTransactionId"`
	Amount               decimal.Decimal `json:"amount"`
	Timestamp            time.Time       `json:"timestamp"`
}

func (a *Adapter) ParseWebhookEvent(payload []byte) (*entities.WebhookEvent, error) {
	var evt Event
	if err := json.Unmarshal(payload, &evt); err != nil {
		return nil, fmt.Errorf("%w: sandbox event: %v", domainerrors.ErrInvalidInput, err)
	}
	eventType := entities.WebhookEventType(evt.Type)
	switch eventType {
	case entities.WebhookEventPaymentSuccess, entities.WebhookEventPaymentFailed,
		entities.WebhookEventRefundProcessed, entities.WebhookEventDisputeCreated:
	default:
		return nil, fmt.Errorf("%w: sandbox %s", domainerrors.ErrUnsupportedEvent, evt.Type)
	}
	if evt.GatewayTransactionID == "" {
		return nil, fmt.Errorf("%w: sandbox event without gatewayTransactionId", domainerrors.ErrInvalidInput)
	}
	ts := evt.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return &entities.WebhookEvent{
		Type:                 eventType,
		GatewayTransactionID: evt.GatewayTransactionID,
		Amount:               evt.Amount,
		Timestamp:            ts,
		RawData:              json.RawMessage(payload),
	}, nil
}
