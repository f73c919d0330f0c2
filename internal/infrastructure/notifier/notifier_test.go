package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payroute.backend/internal/config"
	"payroute.backend/internal/domain/entities"
	"payroute.backend/pkg/jwt"
	"payroute.backend/pkg/redis"
)

func sampleNotification() entities.MerchantNotification {
	return entities.MerchantNotification{
		ID:             uuid.New(),
		MerchantID:     uuid.New(),
		TransactionID:  uuid.New(),
		Reference:      "order-7",
		Status:         entities.TransactionStatusSuccess,
		PreviousStatus: entities.TransactionStatusProcessing,
		Amount:         decimal.NewFromInt(500),
		Currency:       "INR",
		GatewayCode:    "razorpay",
		Source:         "webhook",
		OccurredAt:     time.Now().UTC(),
	}
}

func TestRedisStreamPublisher_Publish(t *testing.T) {
	mr := miniredis.RunT(t)
	require.NoError(t, redis.Init("redis://"+mr.Addr(), ""))

	signer := jwt.NewNotificationSigner("secret", time.Hour)
	p := NewRedisStreamPublisher("notifications", 1000, signer)
	n := sampleNotification()
	require.NoError(t, p.Publish(context.Background(), n))

	entries, err := redis.GetClient().XRange(context.Background(), "notifications", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)

	values := entries[0].Values
	assert.Equal(t, n.ID.String(), values["id"])
	assert.Equal(t, "success", values["status"])

	body := []byte(values["payload"].(string))
	claims, err := signer.Verify(values["signature"].(string), body)
	require.NoError(t, err)
	assert.Equal(t, n.TransactionID, claims.TransactionID)

	var decoded entities.MerchantNotification
	require.NoError(t, json.Unmarshal(body, &decoded))
	assert.Equal(t, "order-7", decoded.Reference)
}

func TestRedisStreamPublisher_Error(t *testing.T) {
	orig := xAdd
	t.Cleanup(func() { xAdd = orig })
	xAdd = func(context.Context, string, int64, map[string]interface{}) (string, error) {
		return "", errors.New("down")
	}

	err := NewRedisStreamPublisher("s", 0, nil).Publish(context.Background(), sampleNotification())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "xadd s")
}

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { return nil }

func TestKafkaPublisher_Publish(t *testing.T) {
	w := &fakeWriter{}
	signer := jwt.NewNotificationSigner("secret", time.Hour)
	p := &KafkaPublisher{writer: w, signer: signer}

	n := sampleNotification()
	require.NoError(t, p.Publish(context.Background(), n))
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, n.MerchantID.String(), string(msg.Key))

	var token string
	for _, h := range msg.Headers {
		if h.Key == SignatureHeader {
			token = string(h.Value)
		}
	}
	_, err := signer.Verify(token, msg.Value)
	require.NoError(t, err)

	w.err = errors.New("broker down")
	assert.Error(t, p.Publish(context.Background(), n))
	assert.NoError(t, p.Close())
}

func TestLogPublisher_Publish(t *testing.T) {
	assert.NoError(t, NewLogPublisher(nil).Publish(context.Background(), sampleNotification()))
}

func TestNew_SelectsDriver(t *testing.T) {
	cfg := &config.Config{}
	cfg.Notification.Driver = DriverRedis
	p, err := New(cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &RedisStreamPublisher{}, p)

	cfg.Notification.Driver = DriverKafka
	_, err = New(cfg, nil)
	assert.Error(t, err)

	cfg.Kafka.Brokers = []string{"localhost:9092"}
	p, err = New(cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &KafkaPublisher{}, p)

	cfg.Notification.Driver = DriverLog
	p, err = New(cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &LogPublisher{}, p)

	cfg.Notification.Driver = "smtp"
	_, err = New(cfg, nil)
	assert.Error(t, err)
}
