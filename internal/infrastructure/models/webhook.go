package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type WebhookRecord struct {
	ID                   uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	GatewayCode          string         `gorm:"type:varchar(50);not null;index"`
	GatewayID            *uuid.UUID     `gorm:"type:uuid"`
	TransactionID        *uuid.UUID     `gorm:"type:uuid;index"`
	EventType            *string        `gorm:"type:varchar(64)"`
	GatewayTransactionID *string        `gorm:"type:varchar(255);index"`
	RawPayload           string         `gorm:"type:text;not null"`
	Headers              datatypes.JSON `gorm:"type:jsonb"`
	Processed            bool           `gorm:"not null"`
	ProcessingError      *string        `gorm:"type:text"`
	ProcessedAt          *time.Time
	CreatedAt            time.Time
}

func (WebhookRecord) TableName() string {
	return "webhooks"
}
