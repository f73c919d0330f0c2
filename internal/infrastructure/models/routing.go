package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type RoutingRule struct {
	ID         uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	MerchantID uuid.UUID      `gorm:"type:uuid;not null;index"`
	Name       string         `gorm:"type:varchar(100);not null"`
	RuleType   string         `gorm:"type:varchar(32);not null"`
	Conditions datatypes.JSON `gorm:"type:jsonb;not null"`
	Actions    datatypes.JSON `gorm:"type:jsonb;not null"`
	Priority   int            `gorm:"not null"`
	IsActive   bool           `gorm:"not null"`
	ValidFrom  *time.Time
	ValidUntil *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
	DeletedAt  gorm.DeletedAt `gorm:"index"`
}

func (RoutingRule) TableName() string {
	return "routing_rules"
}

type RoutingAttempt struct {
	ID              uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	TransactionID   uuid.UUID       `gorm:"type:uuid;not null;index"`
	Kind            string          `gorm:"type:varchar(16);not null"`
	AttemptNumber   int             `gorm:"not null"`
	GatewayID       *uuid.UUID      `gorm:"type:uuid;index"`
	GatewayCode     string          `gorm:"type:varchar(50)"`
	Status          string          `gorm:"type:varchar(20);not null"`
	ErrorMessage    *string         `gorm:"type:text"`
	LatencyMs       int64           `gorm:"not null"`
	Score           decimal.Decimal `gorm:"type:decimal(20,4);not null"`
	ScoreBreakdown  datatypes.JSON  `gorm:"type:jsonb"`
	RequestPayload  datatypes.JSON  `gorm:"type:jsonb"`
	ResponsePayload datatypes.JSON  `gorm:"type:jsonb"`
	CreatedAt       time.Time       `gorm:"index"`
}

func (RoutingAttempt) TableName() string {
	return "routing_attempts"
}

type GatewayHealthMetric struct {
	ID           uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	GatewayID    uuid.UUID       `gorm:"type:uuid;not null;index"`
	SuccessRate  decimal.Decimal `gorm:"type:decimal(6,2);not null"`
	AvgLatencyMs int64           `gorm:"not null"`
	SampleCount  int             `gorm:"not null"`
	WindowStart  time.Time
	WindowEnd    time.Time `gorm:"index"`
	CreatedAt    time.Time
}

func (GatewayHealthMetric) TableName() string {
	return "gateway_health_metrics"
}
