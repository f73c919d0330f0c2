package entities

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"
)

// WebhookEventType is the normalised gateway event name
type WebhookEventType string

const (
	WebhookEventPaymentSuccess  WebhookEventType = "payment.success"
	WebhookEventPaymentFailed   WebhookEventType = "payment.failed"
	WebhookEventRefundProcessed WebhookEventType = "refund.processed"
	WebhookEventDisputeCreated  WebhookEventType = "dispute.created"
)

// WebhookRecord stores every inbound gateway callback
type WebhookRecord struct {
	ID                   uuid.UUID         `json:"id"`
	GatewayCode          string            `json:"gatewayCode"`
	GatewayID            *uuid.UUID        `json:"gatewayId,omitempty"`
	TransactionID        *uuid.UUID        `json:"transactionId,omitempty"`
	EventType            null.String       `json:"eventType,omitempty"`
	GatewayTransactionID null.String       `json:"gatewayTransactionId,omitempty"`
	RawPayload           string            `json:"rawPayload"`
	Headers              map[string]string `json:"headers"`
	Processed            bool              `json:"processed"`
	ProcessingError      null.String       `json:"processingError,omitempty"`
	ProcessedAt          *time.Time        `json:"processedAt,omitempty"`
	CreatedAt            time.Time         `json:"createdAt"`
}

// WebhookEvent is a provider callback normalised by its gateway adapter
type WebhookEvent struct {
	Type                 WebhookEventType `json:"type"`
	GatewayTransactionID string           `json:"gatewayTransactionId"`
	// Amount is the cumulative refunded amount on refund events; zero means
	// the provider did not report one and the full amount is assumed.
	Amount    decimal.Decimal `json:"amount"`
	Timestamp time.Time       `json:"timestamp"`
	RawData   json.RawMessage `json:"rawData,omitempty"`
}

// WebhookResult is returned to the gateway's HTTP callback
type WebhookResult struct {
	Success   bool   `json:"success"`
	Processed bool   `json:"processed"`
	Message   string `json:"message,omitempty"`
}

// MerchantNotification is queued whenever merchant-visible state changes
type MerchantNotification struct {
	ID                   uuid.UUID         `json:"id"`
	MerchantID           uuid.UUID         `json:"merchantId"`
	TransactionID        uuid.UUID         `json:"transactionId"`
	Reference            string            `json:"reference"`
	Status               TransactionStatus `json:"status"`
	PreviousStatus       TransactionStatus `json:"previousStatus"`
	Amount               decimal.Decimal   `json:"amount"`
	Currency             string            `json:"currency"`
	GatewayCode          string            `json:"gatewayCode,omitempty"`
	GatewayTransactionID string            `json:"gatewayTransactionId,omitempty"`
	Source               string            `json:"source"`
	OccurredAt           time.Time         `json:"occurredAt"`
}
