package entities

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentGateway is a provider the platform can route to
type PaymentGateway struct {
	ID                  uuid.UUID       `json:"id"`
	Code                string          `json:"code"`
	Name                string          `json:"name"`
	// Provider names the adapter; empty means Code.
	Provider            string          `json:"provider,omitempty"`
	SupportedCurrencies []string        `json:"supportedCurrencies"`
	SupportedMethods    []PaymentMethod `json:"supportedMethods"`
	IsActive            bool            `json:"isActive"`
	APIBaseURL          string          `json:"apiBaseUrl,omitempty"`
	// SealedCredentials holds the encrypted GatewayCredentials document.
	SealedCredentials string    `json:"-"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// ProviderCode is the registry key of the adapter serving this gateway.
func (g *PaymentGateway) ProviderCode() string {
	if g.Provider != "" {
		return g.Provider
	}
	return g.Code
}

func (g *PaymentGateway) SupportsCurrency(currency string) bool {
	for _, c := range g.SupportedCurrencies {
		if c == currency {
			return true
		}
	}
	return false
}

func (g *PaymentGateway) SupportsMethod(method PaymentMethod) bool {
	for _, m := range g.SupportedMethods {
		if m == method {
			return true
		}
	}
	return false
}

// GatewayCredentials is the decrypted form of PaymentGateway.SealedCredentials
type GatewayCredentials struct {
	APIKey        string `json:"apiKey"`
	APISecret     string `json:"apiSecret,omitempty"`
	WebhookSecret string `json:"webhookSecret"`
}

// MerchantGateway binds a merchant to a gateway with its commercial terms
type MerchantGateway struct {
	ID            uuid.UUID       `json:"id"`
	MerchantID    uuid.UUID       `json:"merchantId"`
	GatewayID     uuid.UUID       `json:"gatewayId"`
	Priority      int             `json:"priority"`
	IsActive      bool            `json:"isActive"`
	FeePercentage decimal.Decimal `json:"feePercentage"`
	FeeFixed      decimal.Decimal `json:"feeFixed"`
	SubAccountID  string          `json:"subAccountId,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`

	Gateway *PaymentGateway `json:"gateway,omitempty"`
}

var hundred = decimal.NewFromInt(100)

// Fee computes the processing fee for amount. FeePercentage is expressed in
// percent, so 2.5 means 2.5%.
func (b *MerchantGateway) Fee(amount decimal.Decimal) decimal.Decimal {
	return amount.Mul(b.FeePercentage).Div(hundred).Add(b.FeeFixed)
}

// GatewayCode returns the joined gateway's code or an empty string.
func (b *MerchantGateway) GatewayCode() string {
	if b.Gateway == nil {
		return ""
	}
	return b.Gateway.Code
}
