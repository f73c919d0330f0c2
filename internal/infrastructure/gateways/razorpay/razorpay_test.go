package razorpay

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payroute.backend/internal/domain/entities"
	domainerrors "payroute.backend/internal/domain/errors"
	"payroute.backend/internal/domain/gateway"
)

func newAdapter(t *testing.T, baseURL string) gateway.Gateway {
	t.Helper()
	gw, err := NewFactory(nil).New(gateway.Config{
		Code:    Code,
		BaseURL: baseURL,
		Credentials: entities.GatewayCredentials{
			APIKey: "rzp_test", APISecret: "secret", WebhookSecret: "hook",
		},
	})
	require.NoError(t, err)
	return gw
}

func sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestFactory_MissingSecret(t *testing.T) {
	_, err := NewFactory(nil).New(gateway.Config{Credentials: entities.GatewayCredentials{APIKey: "k"}})
	assert.True(t, errors.Is(err, domainerrors.ErrConfiguration))
}

func TestProcessPayment_CreatesOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/orders", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "rzp_test", user)
		assert.Equal(t, "secret", pass)

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, float64(50000), body["amount"])
		assert.Equal(t, "INR", body["currency"])
		_, _ = w.Write([]byte(`{"id":"order_1","status":"created","amount":50000,"currency":"INR"}`))
	}))
	defer srv.Close()

	res, err := newAdapter(t, srv.URL).ProcessPayment(context.Background(), gateway.PaymentRequest{
		TransactionID: uuid.New(),
		Reference:     "inv-1",
		Amount:        decimal.NewFromInt(500),
		Currency:      "INR",
		Method:        entities.PaymentMethodUPI,
	})
	require.NoError(t, err)
	assert.Equal(t, entities.AttemptStatusPending, res.Status)
	assert.Equal(t, "order_1", res.GatewayTransactionID)
}

func TestProcessPayment_ProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":"BAD_REQUEST_ERROR","description":"amount too small"}}`))
	}))
	defer srv.Close()

	_, err := newAdapter(t, srv.URL).ProcessPayment(context.Background(), gateway.PaymentRequest{
		TransactionID: uuid.New(), Amount: decimal.NewFromInt(0), Currency: "INR",
	})
	var callErr *domainerrors.GatewayCallError
	require.True(t, errors.As(err, &callErr))
	assert.Equal(t, "BAD_REQUEST_ERROR", callErr.ProviderCode)
}

func TestProcessRefund_RefundsCapturedPayment(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/orders/order_1/payments", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"items":[{"id":"pay_f","status":"failed"},{"id":"pay_c","status":"captured"}]}`))
	})
	mux.HandleFunc("/v1/payments/pay_c/refund", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, float64(10000), body["amount"])
		_, _ = w.Write([]byte(`{"id":"rfnd_1","status":"processed"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	res, err := newAdapter(t, srv.URL).ProcessRefund(context.Background(), gateway.RefundRequest{
		TransactionID: uuid.New(), GatewayTransactionID: "order_1", Amount: decimal.NewFromInt(100), Currency: "INR",
	})
	require.NoError(t, err)
	assert.Equal(t, "rfnd_1", res.RefundID)
	assert.Equal(t, entities.AttemptStatusSuccess, res.Status)
}

func TestProcessRefund_NoCapturedPayment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"items":[]}`))
	}))
	defer srv.Close()

	_, err := newAdapter(t, srv.URL).ProcessRefund(context.Background(), gateway.RefundRequest{GatewayTransactionID: "order_1", Currency: "INR"})
	assert.ErrorIs(t, err, domainerrors.ErrGatewayCall)
}

func TestCheckStatus_Paid(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"order_1","status":"paid"}`))
	}))
	defer srv.Close()

	res, err := newAdapter(t, srv.URL).CheckStatus(context.Background(), "order_1")
	require.NoError(t, err)
	assert.Equal(t, entities.AttemptStatusSuccess, res.Status)
}

func TestVerifyWebhookSignature(t *testing.T) {
	a := newAdapter(t, "")
	payload := []byte(`{"event":"payment.captured"}`)

	h := http.Header{}
	h.Set("X-Razorpay-Signature", sign("hook", payload))
	require.NoError(t, a.VerifyWebhookSignature(payload, h))

	h.Set("X-Razorpay-Signature", sign("other", payload))
	assert.ErrorIs(t, a.VerifyWebhookSignature(payload, h), domainerrors.ErrInvalidSignature)

	assert.ErrorIs(t, a.VerifyWebhookSignature(payload, http.Header{}), domainerrors.ErrInvalidSignature)
}

func TestParseWebhookEvent(t *testing.T) {
	a := newAdapter(t, "")

	evt, err := a.ParseWebhookEvent([]byte(`{"event":"payment.captured","created_at":1760000000,"payload":{"payment":{"entity":{"id":"pay_1","order_id":"order_1","status":"captured"}}}}`))
	require.NoError(t, err)
	assert.Equal(t, entities.WebhookEventPaymentSuccess, evt.Type)
	assert.Equal(t, "order_1", evt.GatewayTransactionID)

	evt, err = a.ParseWebhookEvent([]byte(`{"event":"order.paid","payload":{"order":{"entity":{"id":"order_2"}}}}`))
	require.NoError(t, err)
	assert.Equal(t, "order_2", evt.GatewayTransactionID)

	evt, err = a.ParseWebhookEvent([]byte(`{"event":"refund.processed","payload":{"refund":{"entity":{"id":"rfnd_1","amount":5000,"currency":"INR"}},"payment":{"entity":{"id":"pay_1","order_id":"order_1","amount_refunded":15000,"currency":"INR"}}}}`))
	require.NoError(t, err)
	assert.Equal(t, entities.WebhookEventRefundProcessed, evt.Type)
	assert.True(t, decimal.NewFromInt(150).Equal(evt.Amount))

	// A failed try leaves the order payable; a later order.paid still settles it.
	_, err = a.ParseWebhookEvent([]byte(`{"event":"payment.failed","payload":{"payment":{"entity":{"id":"pay_1","order_id":"order_3"}}}}`))
	assert.ErrorIs(t, err, domainerrors.ErrUnsupportedEvent)
	evt, err = a.ParseWebhookEvent([]byte(`{"event":"order.paid","payload":{"order":{"entity":{"id":"order_3"}},"payment":{"entity":{"id":"pay_2","order_id":"order_3"}}}}`))
	require.NoError(t, err)
	assert.Equal(t, entities.WebhookEventPaymentSuccess, evt.Type)
	assert.Equal(t, "order_3", evt.GatewayTransactionID)

	_, err = a.ParseWebhookEvent([]byte(`{"event":"payment.authorized","payload":{}}`))
	assert.ErrorIs(t, err, domainerrors.ErrUnsupportedEvent)

	_, err = a.ParseWebhookEvent([]byte(`{"event":"payment.captured","payload":{}}`))
	assert.ErrorIs(t, err, domainerrors.ErrInvalidInput)
}
