package entities

import (
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"
)

// TransactionStatus represents transaction status
type TransactionStatus string

const (
	TransactionStatusPending    TransactionStatus = "pending"
	TransactionStatusProcessing TransactionStatus = "processing"
	TransactionStatusSuccess    TransactionStatus = "success"
	TransactionStatusFailed     TransactionStatus = "failed"
	TransactionStatusRefunded   TransactionStatus = "refunded"
	TransactionStatusCancelled  TransactionStatus = "cancelled"
)

var transactionTransitions = map[TransactionStatus][]TransactionStatus{
	TransactionStatusPending:    {TransactionStatusProcessing, TransactionStatusCancelled},
	TransactionStatusProcessing: {TransactionStatusSuccess, TransactionStatusFailed, TransactionStatusCancelled},
	TransactionStatusSuccess:    {TransactionStatusRefunded, TransactionStatusCancelled},
	TransactionStatusFailed:     {TransactionStatusCancelled},
	TransactionStatusRefunded:   {},
	TransactionStatusCancelled:  {},
}

// CanTransitionTo reports whether next is reachable from s in one step.
// Rewriting processing with itself is allowed so gateway details can be
// attached while a confirmation is still outstanding.
func (s TransactionStatus) CanTransitionTo(next TransactionStatus) bool {
	if s == next {
		return s == TransactionStatusProcessing
	}
	for _, allowed := range transactionTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no gateway-driven transition leaves s.
func (s TransactionStatus) IsTerminal() bool {
	switch s {
	case TransactionStatusSuccess, TransactionStatusFailed, TransactionStatusRefunded, TransactionStatusCancelled:
		return true
	}
	return false
}

func (s TransactionStatus) Valid() bool {
	_, ok := transactionTransitions[s]
	return ok
}

// PaymentMethod represents how the customer pays
type PaymentMethod string

const (
	PaymentMethodCard         PaymentMethod = "card"
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
	PaymentMethodUPI          PaymentMethod = "upi"
	PaymentMethodWallet       PaymentMethod = "wallet"
	PaymentMethodCrypto       PaymentMethod = "crypto"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodCard, PaymentMethodBankTransfer, PaymentMethodUPI, PaymentMethodWallet, PaymentMethodCrypto:
		return true
	}
	return false
}

var currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)

// ValidCurrency checks the ISO 4217 alphabetic code shape.
func ValidCurrency(code string) bool {
	return currencyPattern.MatchString(code)
}

// Address is a billing address
type Address struct {
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
}

// CustomerDetails carries optional payer contact data
type CustomerDetails struct {
	Name           string   `json:"name,omitempty"`
	Email          string   `json:"email,omitempty"`
	Phone          string   `json:"phone,omitempty"`
	BillingAddress *Address `json:"billingAddress,omitempty"`
}

// Transaction represents a payment intent routed to one gateway
type Transaction struct {
	ID                   uuid.UUID              `json:"id"`
	MerchantID           uuid.UUID              `json:"merchantId"`
	Reference            string                 `json:"reference"`
	Amount               decimal.Decimal        `json:"amount"`
	Currency             string                 `json:"currency"`
	PaymentMethod        PaymentMethod          `json:"paymentMethod"`
	Status               TransactionStatus      `json:"status"`
	GatewayID            *uuid.UUID             `json:"gatewayId,omitempty"`
	GatewayCode          null.String            `json:"gatewayCode,omitempty"`
	GatewayTransactionID null.String            `json:"gatewayTransactionId,omitempty"`
	RedirectURL          null.String            `json:"redirectUrl,omitempty"`
	Fees                 decimal.Decimal        `json:"fees"`
	NetAmount            decimal.Decimal        `json:"netAmount"`
	RefundedAmount       decimal.Decimal        `json:"refundedAmount"`
	Customer             *CustomerDetails       `json:"customer,omitempty"`
	Metadata             map[string]interface{} `json:"metadata,omitempty"`
	ErrorMessage         null.String            `json:"errorMessage,omitempty"`
	ProcessedAt          *time.Time             `json:"processedAt,omitempty"`
	CreatedAt            time.Time              `json:"createdAt"`
	UpdatedAt            time.Time              `json:"updatedAt"`
}

// TransactionPatch lists the columns a status transition may set alongside
// the status itself. Nil fields are left untouched.
type TransactionPatch struct {
	GatewayID            *uuid.UUID
	GatewayCode          *string
	GatewayTransactionID *string
	RedirectURL          *string
	Fees                 *decimal.Decimal
	NetAmount            *decimal.Decimal
	RefundedAmount       *decimal.Decimal
	ErrorMessage         *string
	Metadata             map[string]interface{}
	ProcessedAt          *time.Time
}

// TransactionFilter narrows transaction listings
type TransactionFilter struct {
	MerchantID    *uuid.UUID
	Status        *TransactionStatus
	UpdatedBefore *time.Time
}

// ProcessingStrategy selects how the orchestrator reacts to gateway failures
type ProcessingStrategy string

const (
	StrategyDefault     ProcessingStrategy = "default"
	StrategyFailover    ProcessingStrategy = "failover"
	StrategyLoadBalance ProcessingStrategy = "loadbalance"
)

func (s ProcessingStrategy) Valid() bool {
	switch s {
	case StrategyDefault, StrategyFailover, StrategyLoadBalance:
		return true
	}
	return false
}

// ProcessResult mirrors the persisted outcome of one Process call
type ProcessResult struct {
	Success              bool              `json:"success"`
	Status               TransactionStatus `json:"status"`
	GatewayUsed          string            `json:"gatewayUsed,omitempty"`
	GatewayTransactionID string            `json:"gatewayTransactionId,omitempty"`
	RedirectURL          string            `json:"redirectUrl,omitempty"`
	Attempts             int               `json:"attempts"`
	Error                string            `json:"error,omitempty"`
}
