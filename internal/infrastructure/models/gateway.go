package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type PaymentGateway struct {
	ID                  uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Code                string         `gorm:"type:varchar(50);not null;uniqueIndex"`
	Name                string         `gorm:"type:varchar(100);not null"`
	Provider            string         `gorm:"type:varchar(50)"`
	SupportedCurrencies datatypes.JSON `gorm:"type:jsonb;not null"`
	SupportedMethods    datatypes.JSON `gorm:"type:jsonb;not null"`
	IsActive            bool           `gorm:"not null"`
	APIBaseURL          string         `gorm:"type:varchar(255)"`
	SealedCredentials   string         `gorm:"type:text"`
	CreatedAt           time.Time
	UpdatedAt           time.Time
	DeletedAt           gorm.DeletedAt `gorm:"index"`
}

func (PaymentGateway) TableName() string {
	return "payment_gateways"
}

type MerchantGateway struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	MerchantID    uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_merchant_gateway"`
	GatewayID     uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_merchant_gateway"`
	Priority      int             `gorm:"not null"`
	IsActive      bool            `gorm:"not null"`
	FeePercentage decimal.Decimal `gorm:"type:decimal(8,4);not null"`
	FeeFixed      decimal.Decimal `gorm:"type:decimal(20,4);not null"`
	SubAccountID  string          `gorm:"type:varchar(255)"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
	DeletedAt     gorm.DeletedAt `gorm:"index"`

	Gateway PaymentGateway `gorm:"foreignKey:GatewayID"`
}

func (MerchantGateway) TableName() string {
	return "merchant_gateways"
}
