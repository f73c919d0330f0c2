// Package notifier publishes merchant notifications to a queue.
package notifier

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"payroute.backend/internal/config"
	"payroute.backend/internal/domain/entities"
	"payroute.backend/internal/domain/repositories"
	"payroute.backend/pkg/jwt"
	"payroute.backend/pkg/logger"
)

const (
	DriverRedis = "redis"
	DriverKafka = "kafka"
	DriverLog   = "log"

	// SignatureHeader carries the notification token on Kafka records.
	SignatureHeader = "X-Payroute-Signature"
)

// Envelope is the serialised notification plus its signature token.
type Envelope struct {
	Body  []byte
	Token string
}

func seal(signer *jwt.NotificationSigner, n entities.MerchantNotification) (Envelope, error) {
	body, err := json.Marshal(n)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal notification: %w", err)
	}
	if signer == nil {
		return Envelope{Body: body}, nil
	}
	token, err := signer.Sign(n.TransactionID, n.MerchantID, string(n.Status), body)
	if err != nil {
		return Envelope{}, fmt.Errorf("sign notification: %w", err)
	}
	return Envelope{Body: body, Token: token}, nil
}

// New selects the publisher configured by cfg.Notification.Driver.
func New(cfg *config.Config, signer *jwt.NotificationSigner) (repositories.NotificationPublisher, error) {
	switch cfg.Notification.Driver {
	case DriverRedis:
		return NewRedisStreamPublisher(cfg.Notification.Stream, cfg.Notification.StreamMaxLen, signer), nil
	case DriverKafka:
		if len(cfg.Kafka.Brokers) == 0 {
			return nil, fmt.Errorf("kafka notification driver requires brokers")
		}
		return NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, signer), nil
	case DriverLog, "":
		return NewLogPublisher(signer), nil
	default:
		return nil, fmt.Errorf("unknown notification driver %q", cfg.Notification.Driver)
	}
}

// LogPublisher writes notifications to the structured log only.
type LogPublisher struct {
	signer *jwt.NotificationSigner
}

func NewLogPublisher(signer *jwt.NotificationSigner) *LogPublisher {
	return &LogPublisher{signer: signer}
}

func (p *LogPublisher) Publish(ctx context.Context, n entities.MerchantNotification) error {
	env, err := seal(p.signer, n)
	if err != nil {
		return err
	}
	logger.Named(ctx, "notifier").Info("Merchant notification",
		zap.String("notification_id", n.ID.String()),
		zap.String("merchant_id", n.MerchantID.String()),
		zap.String("transaction_id", n.TransactionID.String()),
		zap.String("status", string(n.Status)),
		zap.ByteString("body", env.Body),
	)
	return nil
}
