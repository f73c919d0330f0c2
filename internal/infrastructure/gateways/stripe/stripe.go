package stripe

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"payroute.backend/internal/domain/entities"
	domainerrors "payroute.backend/internal/domain/errors"
	"payroute.backend/internal/domain/gateway"
	"payroute.backend/internal/infrastructure/gateways/gatewayhttp"
)

const (
	Code           = "stripe"
	defaultBaseURL = "https://api.stripe.com"
	// signatureTolerance bounds the age of a signed webhook timestamp.
	signatureTolerance = 5 * time.Minute
)

var now = time.Now

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
	apiKey := strings.TrimSpace(cfg.Credentials.APIKey)
	secret := strings.TrimSpace(cfg.Credentials.WebhookSecret)
	if apiKey == "" || secret == "" {
		return nil, fmt.Errorf("%w: stripe requires apiKey and webhookSecret", domainerrors.ErrConfiguration)
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	a := &Adapter{webhookSecret: secret, account: cfg.SubAccountID}
	a.client = gatewayhttp.NewClient(Code, baseURL, f.httpClient, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+apiKey)
		if a.account != "" {
			r.Header.Set("Stripe-Account", a.account)
		}
	}, decodeError)
	return a, nil
}

type Adapter struct {
	client        *gatewayhttp.Client
	webhookSecret string
	account       string
}

func (a *Adapter) Code() string {
	return Code
}

type paymentIntent struct {
	ID               string `json:"id"`
	Status           string `json:"status"`
	Amount           int64  `json:"amount"`
	Currency         string `json:"currency"`
	LastPaymentError *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"last_payment_error"`
	NextAction *struct {
		RedirectToURL *struct {
			URL string `json:"url"`
		} `json:"redirect_to_url"`
	} `json:"next_action"`
}

func (a *Adapter) ProcessPayment(ctx context.Context, req gateway.PaymentRequest) (*gateway.PaymentResult, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(gateway.MinorUnits(req.Amount, req.Currency), 10))
	form.Set("currency", strings.ToLower(req.Currency))
	form.Set("confirm", "true")
	form.Set("payment_method_types[]", methodType(req.Method))
	form.Set("description", req.Reference)
	form.Set("metadata[transaction_id]", req.TransactionID.String())
	form.Set("metadata[reference]", req.Reference)
	if pm, ok := req.Metadata["payment_method"].(string); ok && pm != "" {
		form.Set("payment_method", pm)
	}
	if ret, ok := req.Metadata["return_url"].(string); ok && ret != "" {
		form.Set("return_url", ret)
	}
	if req.Customer != nil && req.Customer.Email != "" {
		form.Set("receipt_email", req.Customer.Email)
	}

	header := http.Header{}
	header.Set("Idempotency-Key", req.TransactionID.String())

	var intent paymentIntent
	raw, err := a.client.Do(ctx, gatewayhttp.Request{
		Method: http.MethodPost,
		Path:   "/v1/payment_intents",
		Form:   form,
		Header: header,
	}, &intent)
	if err != nil {
		return nil, err
	}

	result := &gateway.PaymentResult{
		Status:               intentStatus(intent.Status),
		GatewayTransactionID: intent.ID,
		Raw:                  raw,
	}
	if intent.NextAction != nil && intent.NextAction.RedirectToURL != nil {
		result.RedirectURL = intent.NextAction.RedirectToURL.URL
	}
	if intent.LastPaymentError != nil {
		result.ErrorCode = intent.LastPaymentError.Code
		result.ErrorMessage = intent.LastPaymentError.Message
	}
	if result.Status == entities.AttemptStatusFailed && result.ErrorMessage == "" {
		result.ErrorMessage = "payment intent " + intent.Status
	}
	return result, nil
}

func (a *Adapter) ProcessRefund(ctx context.Context, req gateway.RefundRequest) (*gateway.RefundResult, error) {
	form := url.Values{}
	form.Set("payment_intent", req.GatewayTransactionID)
	form.Set("amount", strconv.FormatInt(gateway.MinorUnits(req.Amount, req.Currency), 10))
	form.Set("metadata[transaction_id]", req.TransactionID.String())
	if req.Reason != "" {
		form.Set("metadata[reason]", req.Reason)
	}

	var refund struct {
		ID            string `json:"id"`
		Status        string `json:"status"`
		FailureReason string `json:"failure_reason"`
	}
	raw, err := a.client.Do(ctx, gatewayhttp.Request{Method: http.MethodPost, Path: "/v1/refunds", Form: form}, &refund)
	if err != nil {
		return nil, err
	}

	result := &gateway.RefundResult{RefundID: refund.ID, Raw: raw}
	switch refund.Status {
	case "succeeded":
		result.Status = entities.AttemptStatusSuccess
	case "pending", "requires_action":
		result.Status = entities.AttemptStatusPending
	default:
		result.Status = entities.AttemptStatusFailed
		result.ErrorMessage = refund.FailureReason
	}
	return result, nil
}

func (a *Adapter) CheckStatus(ctx context.Context, gatewayTransactionID string) (*gateway.StatusResult, error) {
	var intent paymentIntent
	raw, err := a.client.Do(ctx, gatewayhttp.Request{
		Method: http.MethodGet,
		Path:   "/v1/payment_intents/" + url.PathEscape(gatewayTransactionID),
	}, &intent)
	if err != nil {
		return nil, err
	}
	return &gateway.StatusResult{Status: intentStatus(intent.Status), Raw: raw}, nil
}

func (a *Adapter) VerifyWebhookSignature(payload []byte, headers http.Header) error {
	sigHeader := strings.TrimSpace(headers.Get("Stripe-Signature"))
	if sigHeader == "" {
		return domainerrors.ErrInvalidSignature
	}

	ts, signatures, ok := parseSignatureHeader(sigHeader)
	if !ok {
		return domainerrors.ErrInvalidSignature
	}
	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return domainerrors.ErrInvalidSignature
	}
	if age := now().Sub(time.Unix(unix, 0)); age > signatureTolerance || age < -signatureTolerance {
		return fmt.Errorf("%w: timestamp outside tolerance", domainerrors.ErrInvalidSignature)
	}

	mac := hmac.New(sha256.New, []byte(a.webhookSecret))
	_, _ = mac.Write([]byte(ts + "." + string(payload)))
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, signature := range signatures {
		if hmac.Equal([]byte(signature), []byte(expected)) {
			return nil
		}
	}
	return domainerrors.ErrInvalidSignature
}

type event struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

type eventObject struct {
	ID             string `json:"id"`
	Object         string `json:"object"`
	PaymentIntent  string `json:"payment_intent"`
	Currency       string `json:"currency"`
	AmountRefunded int64  `json:"amount_refunded"`
}

func (a *Adapter) ParseWebhookEvent(payload []byte) (*entities.WebhookEvent, error) {
	var evt event
	if err := json.Unmarshal(payload, &evt); err != nil {
		return nil, fmt.Errorf("%w: stripe event: %v", domainerrors.ErrInvalidInput, err)
	}
	var obj eventObject
	if err := json.Unmarshal(evt.Data.Object, &obj); err != nil {
		return nil, fmt.Errorf("%w: stripe event object: %v", domainerrors.ErrInvalidInput, err)
	}

	out := &entities.WebhookEvent{
		Timestamp: time.Unix(evt.Created, 0).UTC(),
		RawData:   evt.Data.Object,
	}
	if evt.Created == 0 {
		out.Timestamp = now().UTC()
	}

	switch evt.Type {
	case "payment_intent.succeeded":
		out.Type = entities.WebhookEventPaymentSuccess
		out.GatewayTransactionID = obj.ID
	case "payment_intent.payment_failed", "payment_intent.canceled":
		out.Type = entities.WebhookEventPaymentFailed
		out.GatewayTransactionID = obj.ID
	case "charge.refunded":
		out.Type = entities.WebhookEventRefundProcessed
		out.GatewayTransactionID = obj.PaymentIntent
		out.Amount = gateway.FromMinorUnits(obj.AmountRefunded, obj.Currency)
	case "charge.dispute.created":
		out.Type = entities.WebhookEventDisputeCreated
		out.GatewayTransactionID = obj.PaymentIntent
	default:
		return nil, fmt.Errorf("%w: stripe %s", domainerrors.ErrUnsupportedEvent, evt.Type)
	}

	if out.GatewayTransactionID == "" {
		return nil, fmt.Errorf("%w: stripe event without payment intent", domainerrors.ErrInvalidInput)
	}
	return out, nil
}

func intentStatus(status string) entities.AttemptStatus {
	switch status {
	case "succeeded":
		return entities.AttemptStatusSuccess
	case "processing", "requires_action", "requires_confirmation", "requires_capture":
		return entities.AttemptStatusPending
	default:
		return entities.AttemptStatusFailed
	}
}

func methodType(method entities.PaymentMethod) string {
	switch method {
	case entities.PaymentMethodBankTransfer:
		return "customer_balance"
	case entities.PaymentMethodWallet:
		return "link"
	default:
		return "card"
	}
}

func parseSignatureHeader(header string) (string, []string, bool) {
	var ts string
	var signatures []string
	for _, part := range strings.Split(header, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch strings.TrimSpace(key) {
		case "t":
			ts = strings.TrimSpace(value)
		case "v1":
			signatures = append(signatures, strings.TrimSpace(value))
		}
	}
	return ts, signatures, ts != "" && len(signatures) > 0
}

func decodeError(_ int, body []byte) (string, string) {
	var payload struct {
		Error struct {
			Code        string `json:"code"`
			DeclineCode string `json:"decline_code"`
			Message     string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", ""
	}
	code := payload.Error.Code
	if payload.Error.DeclineCode != "" {
		code = payload.Error.DeclineCode
	}
	return code, payload.Error.Message
}
