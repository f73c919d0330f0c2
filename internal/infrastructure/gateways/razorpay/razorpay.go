package razorpay

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"payroute.backend/internal/domain/entities"
	domainerrors "payroute.backend/internal/domain/errors"
	"payroute.backend/internal/domain/gateway"
	"payroute.backend/internal/infrastructure/gateways/gatewayhttp"
)

const (
	Code           = "razorpay"
	defaultBaseURL = "https://api.razorpay.com"
)

// Factory builds Razorpay adapters. Payments are created as orders; the
// order id is the gateway transaction id and is confirmed asynchronously.
type Factory struct {
	httpClient *http.Client
}

func NewFactory(httpClient *http.Client) *Factory {
	return &Factory{httpClient: httpClient}
}

func (f *Factory) Code() string {
	return Code
}

func (f *Factory) New(cfg gateway.Config) (gateway.Gateway, error) {
	creds := cfg.Credentials
	if strings.TrimSpace(creds.APIKey) == "" || strings.TrimSpace(creds.APISecret) == "" || strings.TrimSpace(creds.WebhookSecret) == "" {
		return nil, fmt.Errorf("%w: razorpay requires apiKey, apiSecret and webhookSecret", domainerrors.ErrConfiguration)
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Adapter{
		webhookSecret: creds.WebhookSecret,
		account:       cfg.SubAccountID,
		client: gatewayhttp.NewClient(Code, baseURL, f.httpClient, func(r *http.Request) {
			r.SetBasicAuth(creds.APIKey, creds.APISecret)
		}, decodeError),
	}, nil
}

type Adapter struct {
	client        *gatewayhttp.Client
	webhookSecret string
	account       string
}

func (a *Adapter) Code() string {
	return Code
}

type order struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

func (a *Adapter) ProcessPayment(ctx context.Context, req gateway.PaymentRequest) (*gateway.PaymentResult, error) {
	notes := map[string]string{
		"transaction_id": req.TransactionID.String(),
		"method":         string(req.Method),
	}
	body := map[string]interface{}{
		"amount":   gateway.MinorUnits(req.Amount, req.Currency),
		"currency": req.Currency,
		"receipt":  receipt(req),
		"notes":    notes,
	}
	if a.account != "" {
		body["transfers"] = []map[string]interface{}{{
			"account":  a.account,
			"amount":   gateway.MinorUnits(req.Amount, req.Currency),
			"currency": req.Currency,
		}}
	}

	var o order
	raw, err := a.client.Do(ctx, gatewayhttp.Request{Method: http.MethodPost, Path: "/v1/orders", JSON: body}, &o)
	if err != nil {
		return nil, err
	}
	return &gateway.PaymentResult{
		Status:               orderStatus(o.Status),
		GatewayTransactionID: o.ID,
		Raw:                  raw,
	}, nil
}

type payment struct {
	ID             string `json:"id"`
	OrderID        string `json:"order_id"`
	Status         string `json:"status"`
	Amount         int64  `json:"amount"`
	AmountRefunded int64  `json:"amount_refunded"`
	Currency       string `json:"currency"`
	ErrorCode      string `json:"error_code"`
	ErrorReason    string `json:"error_description"`
}

// ProcessRefund refunds the captured payment of the order.
func (a *Adapter) ProcessRefund(ctx context.Context, req gateway.RefundRequest) (*gateway.RefundResult, error) {
	var payments struct {
		Items []payment `json:"items"`
	}
	if _, err := a.client.Do(ctx, gatewayhttp.Request{
		Method: http.MethodGet,
		Path:   "/v1/orders/" + url.PathEscape(req.GatewayTransactionID) + "/payments",
	}, &payments); err != nil {
		return nil, err
	}

	var captured *payment
	for i := range payments.Items {
		if payments.Items[i].Status == "captured" {
			captured = &payments.Items[i]
			break
		}
	}
	if captured == nil {
		return nil, &domainerrors.GatewayCallError{Gateway: Code, ProviderCode: "NO_CAPTURED_PAYMENT", Err: fmt.Errorf("order %s has no captured payment", req.GatewayTransactionID)}
	}

	var refund struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	raw, err := a.client.Do(ctx, gatewayhttp.Request{
		Method: http.MethodPost,
		Path:   "/v1/payments/" + url.PathEscape(captured.ID) + "/refund",
		JSON: map[string]interface{}{
			"amount": gateway.MinorUnits(req.Amount, req.Currency),
			"notes":  map[string]string{"transaction_id": req.TransactionID.String(), "reason": req.Reason},
		},
	}, &refund)
	if err != nil {
		return nil, err
	}

	result := &gateway.RefundResult{RefundID: refund.ID, Raw: raw}
	switch refund.Status {
	case "processed":
		result.Status = entities.AttemptStatusSuccess
	case "pending":
		result.Status = entities.AttemptStatusPending
	default:
		result.Status = entities.AttemptStatusFailed
		result.ErrorMessage = "refund " + refund.Status
	}
	return result, nil
}

func (a *Adapter) CheckStatus(ctx context.Context, gatewayTransactionID string) (*gateway.StatusResult, error) {
	var o order
	raw, err := a.client.Do(ctx, gatewayhttp.Request{
		Method: http.MethodGet,
		Path:   "/v1/orders/" + url.PathEscape(gatewayTransactionID),
	}, &o)
	if err != nil {
		return nil, err
	}
	return &gateway.StatusResult{Status: orderStatus(o.Status), Raw: raw}, nil
}

func (a *Adapter) VerifyWebhookSignature(payload []byte, headers http.Header) error {
	signature := strings.TrimSpace(headers.Get("X-Razorpay-Signature"))
	if signature == "" {
		return domainerrors.ErrInvalidSignature
	}
	mac := hmac.New(sha256.New, []byte(a.webhookSecret))
	_, _ = mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(strings.ToLower(signature)), []byte(expected)) {
		return domainerrors.ErrInvalidSignature
	}
	return nil
}

type event struct {
	Event     string `json:"event"`
	CreatedAt int64  `json:"created_at"`
	Payload   struct {
		Payment *struct {
			Entity payment `json:"entity"`
		} `json:"payment"`
		Order *struct {
			Entity order `json:"entity"`
		} `json:"order"`
		Refund *struct {
			Entity struct {
				ID        string `json:"id"`
				PaymentID string `json:"payment_id"`
				Amount    int64  `json:"amount"`
				Currency  string `json:"currency"`
			} `json:"entity"`
		} `json:"refund"`
		Dispute *struct {
			Entity struct {
				ID        string `json:"id"`
				PaymentID string `json:"payment_id"`
			} `json:"entity"`
		} `json:"dispute"`
	} `json:"payload"`
}

func (a *Adapter) ParseWebhookEvent(payload []byte) (*entities.WebhookEvent, error) {
	var evt event
	if err := json.Unmarshal(payload, &evt); err != nil {
		return nil, fmt.Errorf("%w: razorpay event: %v", domainerrors.ErrInvalidInput, err)
	}

	out := &entities.WebhookEvent{RawData: json.RawMessage(payload)}
	if evt.CreatedAt > 0 {
		out.Timestamp = time.Unix(evt.CreatedAt, 0).UTC()
	} else {
		out.Timestamp = time.Now().UTC()
	}

	orderID := ""
	if evt.Payload.Payment != nil {
		orderID = evt.Payload.Payment.Entity.OrderID
	}

	switch evt.Event {
	case "payment.captured":
		out.Type = entities.WebhookEventPaymentSuccess
	case "order.paid":
		out.Type = entities.WebhookEventPaymentSuccess
		if evt.Payload.Order != nil {
			orderID = evt.Payload.Order.Entity.ID
		}
	case "payment.failed":
		// One failed try; the order accepts further payments until it is
		// paid, so the transaction stays open for order.paid or CheckStatus.
		return nil, fmt.Errorf("%w: razorpay payment.failed for order %s", domainerrors.ErrUnsupportedEvent, orderID)
	case "refund.processed":
		out.Type = entities.WebhookEventRefundProcessed
		switch {
		case evt.Payload.Payment != nil && evt.Payload.Payment.Entity.AmountRefunded > 0:
			p := evt.Payload.Payment.Entity
			out.Amount = gateway.FromMinorUnits(p.AmountRefunded, p.Currency)
		case evt.Payload.Refund != nil:
			r := evt.Payload.Refund.Entity
			out.Amount = gateway.FromMinorUnits(r.Amount, r.Currency)
		}
	case "payment.dispute.created":
		out.Type = entities.WebhookEventDisputeCreated
	default:
		return nil, fmt.Errorf("%w: razorpay %s", domainerrors.ErrUnsupportedEvent, evt.Event)
	}

	if orderID == "" {
		return nil, fmt.Errorf("%w: razorpay event without order id", domainerrors.ErrInvalidInput)
	}
	out.GatewayTransactionID = orderID
	return out, nil
}

func orderStatus(status string) entities.AttemptStatus {
	switch status {
	case "paid":
		return entities.AttemptStatusSuccess
	case "created", "attempted":
		return entities.AttemptStatusPending
	default:
		return entities.AttemptStatusFailed
	}
}

// receipt is capped at the 40 characters Razorpay accepts.
func receipt(req gateway.PaymentRequest) string {
	r := req.Reference
	if r == "" {
		r = req.TransactionID.String()
	}
	if len(r) > 40 {
		r = r[:40]
	}
	return r
}

func decodeError(_ int, body []byte) (string, string) {
	var payload struct {
		Error struct {
			Code        string `json:"code"`
			Description string `json:"description"`
			Reason      string `json:"reason"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", ""
	}
	code := payload.Error.Code
	if payload.Error.Reason != "" {
		code = payload.Error.Reason
	}
	return code, payload.Error.Description
}
