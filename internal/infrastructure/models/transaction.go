package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type Transaction struct {
	ID                   uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	MerchantID           uuid.UUID       `gorm:"type:uuid;not null;index"`
	Reference            string          `gorm:"type:varchar(128);not null;index"`
	Amount               decimal.Decimal `gorm:"type:decimal(20,4);not null"`
	Currency             string          `gorm:"type:char(3);not null"`
	PaymentMethod        string          `gorm:"type:varchar(32);not null"`
	Status               string          `gorm:"type:varchar(20);not null;index"`
	GatewayID            *uuid.UUID      `gorm:"type:uuid;index"`
	GatewayCode          *string         `gorm:"type:varchar(50)"`
	GatewayTransactionID *string         `gorm:"type:varchar(255);index"`
	RedirectURL          *string         `gorm:"type:text"`
	Fees                 decimal.Decimal `gorm:"type:decimal(20,4);not null"`
	NetAmount            decimal.Decimal `gorm:"type:decimal(20,4);not null"`
	RefundedAmount       decimal.Decimal `gorm:"type:decimal(20,4);not null"`
	Customer             datatypes.JSON  `gorm:"type:jsonb"`
	Metadata             datatypes.JSON  `gorm:"type:jsonb"`
	ErrorMessage         *string         `gorm:"type:text"`
	ProcessedAt          *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time `gorm:"index"`
}

func (Transaction) TableName() string {
	return "transactions"
}
