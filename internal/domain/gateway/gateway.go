// Package gateway declares the capability every payment provider adapter
// implements. Adapters live under internal/infrastructure/gateways.
package gateway

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"payroute.backend/internal/domain/entities"
)

// Config is what a factory needs to build an adapter for one call.
type Config struct {
	Code         string
	BaseURL      string
	Credentials  entities.GatewayCredentials
	SubAccountID string
}

// PaymentRequest is the provider-neutral charge request
type PaymentRequest struct {
	TransactionID uuid.UUID
	Reference     string
	Amount        decimal.Decimal
	Currency      string
	Method        entities.PaymentMethod
	Customer      *entities.CustomerDetails
	Metadata      map[string]interface{}
}

// PaymentResult is a provider answer to a charge. A declined payment comes
// back with Status failed and a nil error; transport problems are errors.
type PaymentResult struct {
	Status               entities.AttemptStatus
	GatewayTransactionID string
	RedirectURL          string
	ErrorCode            string
	ErrorMessage         string
	Raw                  json.RawMessage
}

// Succeeded reports whether the provider captured the funds.
func (r *PaymentResult) Succeeded() bool {
	return r != nil && r.Status == entities.AttemptStatusSuccess
}

// RefundRequest asks the capturing provider to return funds. Currency is
// always the original transaction's currency.
type RefundRequest struct {
	TransactionID        uuid.UUID
	GatewayTransactionID string
	Amount               decimal.Decimal
	Currency             string
	Reason               string
}

type RefundResult struct {
	RefundID     string
	Status       entities.AttemptStatus
	ErrorMessage string
	Raw          json.RawMessage
}

// StatusResult is the provider-side view of a payment
type StatusResult struct {
	Status entities.AttemptStatus
	Raw    json.RawMessage
}

// Gateway is the capability interface of a payment provider.
type Gateway interface {
	Code() string
	ProcessPayment(ctx context.Context, req PaymentRequest) (*PaymentResult, error)
	ProcessRefund(ctx context.Context, req RefundRequest) (*RefundResult, error)
	CheckStatus(ctx context.Context, gatewayTransactionID string) (*StatusResult, error)
	VerifyWebhookSignature(payload []byte, headers http.Header) error
	ParseWebhookEvent(payload []byte) (*entities.WebhookEvent, error)
}

// Factory builds adapters of one provider
type Factory interface {
	Code() string
	New(cfg Config) (Gateway, error)
}

// Provider is the lookup the orchestrator and webhook handler depend on.
type Provider interface {
	Exists(code string) bool
	New(code string, cfg Config) (Gateway, error)
}
