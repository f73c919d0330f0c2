package notifier

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"payroute.backend/internal/domain/entities"
	"payroute.backend/pkg/jwt"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes notifications keyed by merchant so one merchant's
// notifications stay on one partition in order.
type KafkaPublisher struct {
	writer messageWriter
	signer *jwt.NotificationSigner
}

func NewKafkaPublisher(brokers []string, topic string, signer *jwt.NotificationSigner) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			BatchTimeout: 10 * time.Millisecond,
		},
		signer: signer,
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, n entities.MerchantNotification) error {
	env, err := seal(p.signer, n)
	if err != nil {
		return err
	}
	msg := kafka.Message{
		Key:   []byte(n.MerchantID.String()),
		Value: env.Body,
		Headers: []kafka.Header{
			{Key: "notification-id", Value: []byte(n.ID.String())},
			{Key: SignatureHeader, Value: []byte(env.Token)},
		},
		Time: n.OccurredAt,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka write: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
