package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"
	"payroute.backend/internal/domain/entities"
	domainerrors "payroute.backend/internal/domain/errors"
)

func TestWebhookRepository_CreateUpdateList(t *testing.T) {
	db := newTestDB(t)
	createWebhookTable(t, db)
	repo := NewWebhookRepository(db)
	ctx := context.Background()

	rec := &entities.WebhookRecord{
		ID:          uuid.New(),
		GatewayCode: "stripe",
		RawPayload:  `{"type":"payment_intent.succeeded"}`,
		Headers:     map[string]string{"Stripe-Signature": "t=1,v1=abc"},
		CreatedAt:   time.Now(),
	}
	require.NoError(t, repo.Create(ctx, rec))

	txID := uuid.New()
	now := time.Now()
	rec.TransactionID = &txID
	rec.EventType = null.StringFrom(string(entities.WebhookEventPaymentSuccess))
	rec.GatewayTransactionID = null.StringFrom("pi_1")
	rec.Processed = true
	rec.ProcessedAt = &now
	require.NoError(t, repo.Update(ctx, rec))

	list, err := repo.ListByTransaction(ctx, txID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.True(t, list[0].Processed)
	require.Equal(t, "pi_1", list[0].GatewayTransactionID.String)
	require.Equal(t, "t=1,v1=abc", list[0].Headers["Stripe-Signature"])
	require.Equal(t, `{"type":"payment_intent.succeeded"}`, list[0].RawPayload)

	err = repo.Update(ctx, &entities.WebhookRecord{ID: uuid.New()})
	require.ErrorIs(t, err, domainerrors.ErrNotFound)
}
