package handlers

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payroute.backend/internal/domain/entities"
	domainerrors "payroute.backend/internal/domain/errors"
	"payroute.backend/internal/usecases"
)

// adminServiceStub records the last input of each call.
type adminServiceStub struct {
	createGateway usecases.CreateGatewayInput
	updateGateway usecases.UpdateGatewayInput
	activeOnly    bool
	bind          usecases.BindGatewayInput
	updateBinding usecases.UpdateBindingInput
	bindingKeys   [2]uuid.UUID
	rule          usecases.RuleInput
	deleted       uuid.UUID
	explain       usecases.ExplainRouteInput
	err           error
}

func (s *adminServiceStub) CreateGateway(_ context.Context, in usecases.CreateGatewayInput) (*entities.PaymentGateway, error) {
	s.createGateway = in
	if s.err != nil {
		return nil, s.err
	}
	return &entities.PaymentGateway{ID: uuid.New(), Code: in.Code, Name: in.Name}, nil
}

func (s *adminServiceStub) UpdateGateway(_ context.Context, id uuid.UUID, in usecases.UpdateGatewayInput) (*entities.PaymentGateway, error) {
	s.updateGateway = in
	if s.err != nil {
		return nil, s.err
	}
	return &entities.PaymentGateway{ID: id}, nil
}

func (s *adminServiceStub) ListGateways(_ context.Context, activeOnly bool) ([]*entities.PaymentGateway, error) {
	s.activeOnly = activeOnly
	return []*entities.PaymentGateway{{ID: uuid.New(), Code: "stripe"}}, s.err
}

func (s *adminServiceStub) BindGateway(_ context.Context, merchantID uuid.UUID, in usecases.BindGatewayInput) (*entities.MerchantGateway, error) {
	s.bind = in
	if s.err != nil {
		return nil, s.err
	}
	return &entities.MerchantGateway{ID: uuid.New(), MerchantID: merchantID, GatewayID: in.GatewayID}, nil
}

func (s *adminServiceStub) ListBindings(_ context.Context, merchantID uuid.UUID) ([]*entities.MerchantGateway, error) {
	return []*entities.MerchantGateway{{MerchantID: merchantID}}, s.err
}

func (s *adminServiceStub) UpdateBinding(_ context.Context, merchantID, gatewayID uuid.UUID, in usecases.UpdateBindingInput) (*entities.MerchantGateway, error) {
	s.bindingKeys = [2]uuid.UUID{merchantID, gatewayID}
	s.updateBinding = in
	if s.err != nil {
		return nil, s.err
	}
	return &entities.MerchantGateway{MerchantID: merchantID, GatewayID: gatewayID}, nil
}

func (s *adminServiceStub) CreateRule(_ context.Context, merchantID uuid.UUID, in usecases.RuleInput) (*entities.RoutingRule, error) {
	s.rule = in
	if s.err != nil {
		return nil, s.err
	}
	return &entities.RoutingRule{ID: uuid.New(), MerchantID: merchantID, Name: in.Name}, nil
}

func (s *adminServiceStub) ListRules(_ context.Context, merchantID uuid.UUID) ([]*entities.RoutingRule, error) {
	return []*entities.RoutingRule{{MerchantID: merchantID}}, s.err
}

func (s *adminServiceStub) UpdateRule(_ context.Context, id uuid.UUID, in usecases.RuleInput) (*entities.RoutingRule, error) {
	s.rule = in
	if s.err != nil {
		return nil, s.err
	}
	return &entities.RoutingRule{ID: id, Name: in.Name}, nil
}

func (s *adminServiceStub) DeleteRule(_ context.Context, id uuid.UUID) error {
	s.deleted = id
	return s.err
}

func (s *adminServiceStub) ExplainRoute(_ context.Context, _ uuid.UUID, in usecases.ExplainRouteInput) (*entities.GatewaySelection, error) {
	s.explain = in
	if s.err != nil {
		return nil, s.err
	}
	return &entities.GatewaySelection{Selected: entities.CandidateScore{GatewayCode: "razorpay", Score: decimal.NewFromInt(280)}}, nil
}

func newAdminRouter(svc RoutingAdminService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewAdminHandler(svc)
	r := gin.New()
	r.POST("/gateways", h.CreateGateway)
	r.GET("/gateways", h.ListGateways)
	r.PATCH("/gateways/:id", h.UpdateGateway)
	r.POST("/merchants/:merchantId/gateways", h.BindGateway)
	r.GET("/merchants/:merchantId/gateways", h.ListBindings)
	r.PATCH("/merchants/:merchantId/gateways/:gatewayId", h.UpdateBinding)
	r.POST("/merchants/:merchantId/rules", h.CreateRule)
	r.GET("/merchants/:merchantId/rules", h.ListRules)
	r.PUT("/rules/:id", h.UpdateRule)
	r.DELETE("/rules/:id", h.DeleteRule)
	r.POST("/merchants/:merchantId/explain-route", h.ExplainRoute)
	return r
}

func TestAdminHandler_Gateways(t *testing.T) {
	stub := &adminServiceStub{}
	r := newAdminRouter(stub)

	body := []byte(`{"code":"stripe_eu","name":"Stripe EU","provider":"stripe","supportedCurrencies":["eur"],"supportedMethods":["card"],"credentials":{"apiKey":"sk","webhookSecret":"whsec"}}`)
	w := serve(r, http.MethodPost, "/gateways", body)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "stripe_eu", stub.createGateway.Code)
	assert.Equal(t, "sk", stub.createGateway.Credentials.APIKey)
	assert.Equal(t, "whsec", stub.createGateway.Credentials.WebhookSecret)
	assert.Equal(t, []entities.PaymentMethod{entities.PaymentMethodCard}, stub.createGateway.SupportedMethods)

	assert.Equal(t, http.StatusBadRequest, serve(r, http.MethodPost, "/gateways", []byte(`{"code":"x"}`)).Code)

	w = serve(r, http.MethodGet, "/gateways?active=true", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, stub.activeOnly)
	assert.Len(t, decodeBody(t, w)["gateways"], 1)

	w = serve(r, http.MethodPatch, "/gateways/"+uuid.NewString(), []byte(`{"isActive":false}`))
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, stub.updateGateway.IsActive)
	assert.False(t, *stub.updateGateway.IsActive)
	assert.Nil(t, stub.updateGateway.Credentials)
	assert.Nil(t, stub.updateGateway.Name)

	assert.Equal(t, http.StatusBadRequest, serve(r, http.MethodPatch, "/gateways/bad", []byte(`{}`)).Code)

	stub.err = domainerrors.ErrAlreadyExists
	w = serve(r, http.MethodPost, "/gateways", body)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, domainerrors.CodeConflict, decodeBody(t, w)["code"])
}

func TestAdminHandler_Bindings(t *testing.T) {
	stub := &adminServiceStub{}
	r := newAdminRouter(stub)
	merchantID := uuid.New()
	gatewayID := uuid.New()
	base := "/merchants/" + merchantID.String() + "/gateways"

	w := serve(r, http.MethodPost, base, []byte(`{"gatewayId":"`+gatewayID.String()+`","priority":10,"feePercentage":"2.9","feeFixed":"0.30","subAccountId":"acct_1"}`))
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, gatewayID, stub.bind.GatewayID)
	assert.Equal(t, 10, stub.bind.Priority)
	assert.Equal(t, "2.9", stub.bind.FeePercentage.String())
	assert.Equal(t, "acct_1", stub.bind.SubAccountID)

	assert.Equal(t, http.StatusBadRequest, serve(r, http.MethodPost, base, []byte(`{"gatewayId":"nope"}`)).Code)
	assert.Equal(t, http.StatusBadRequest, serve(r, http.MethodPost, "/merchants/bad/gateways", []byte(`{}`)).Code)

	w = serve(r, http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeBody(t, w)["bindings"], 1)

	w = serve(r, http.MethodPatch, base+"/"+gatewayID.String(), []byte(`{"priority":1}`))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, [2]uuid.UUID{merchantID, gatewayID}, stub.bindingKeys)
	require.NotNil(t, stub.updateBinding.Priority)
	assert.Equal(t, 1, *stub.updateBinding.Priority)
	assert.Nil(t, stub.updateBinding.FeePercentage)

	stub.err = domainerrors.ErrNotFound
	assert.Equal(t, http.StatusNotFound, serve(r, http.MethodPatch, base+"/"+gatewayID.String(), []byte(`{}`)).Code)
}

func TestAdminHandler_Rules(t *testing.T) {
	stub := &adminServiceStub{}
	r := newAdminRouter(stub)
	merchantID := uuid.New()

	body := []byte(`{"name":"big INR","type":"amount_range","priority":5,"condition":{"currencies":["INR"]},"validFrom":"2026-01-01T00:00:00Z"}`)
	w := serve(r, http.MethodPost, "/merchants/"+merchantID.String()+"/rules", body)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "big INR", stub.rule.Name)
	assert.Equal(t, 5, stub.rule.Priority)
	assert.Equal(t, []string{"INR"}, stub.rule.Condition.Currencies)
	require.NotNil(t, stub.rule.ValidFrom)
	assert.True(t, stub.rule.ValidFrom.Equal(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)))

	w = serve(r, http.MethodGet, "/merchants/"+merchantID.String()+"/rules", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeBody(t, w)["rules"], 1)

	ruleID := uuid.New()
	assert.Equal(t, http.StatusOK, serve(r, http.MethodPut, "/rules/"+ruleID.String(), body).Code)

	w = serve(r, http.MethodDelete, "/rules/"+ruleID.String(), nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, ruleID, stub.deleted)

	stub.err = domainerrors.ErrInvalidInput
	assert.Equal(t, http.StatusBadRequest, serve(r, http.MethodPost, "/merchants/"+merchantID.String()+"/rules", body).Code)
	assert.Equal(t, http.StatusBadRequest, serve(r, http.MethodDelete, "/rules/bad", nil).Code)
}

func TestAdminHandler_ExplainRoute(t *testing.T) {
	stub := &adminServiceStub{}
	r := newAdminRouter(stub)
	path := "/merchants/" + uuid.NewString() + "/explain-route"

	w := serve(r, http.MethodPost, path, []byte(`{"amount":"5000","currency":"INR","paymentMethod":"upi","strategy":"failover","at":"2026-03-01T10:00:00Z"}`))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "5000", stub.explain.Amount.String())
	assert.Equal(t, entities.StrategyFailover, stub.explain.Strategy)
	assert.True(t, stub.explain.At.Equal(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)))
	selection := decodeBody(t, w)["selection"].(map[string]interface{})
	assert.Equal(t, "razorpay", selection["selected"].(map[string]interface{})["gatewayCode"])

	w = serve(r, http.MethodPost, path, []byte(`{"amount":"1","currency":"INR","paymentMethod":"upi"}`))
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, stub.explain.At.IsZero())

	stub.err = domainerrors.ErrNoEligibleGateway
	w = serve(r, http.MethodPost, path, []byte(`{"amount":"1","currency":"EUR","paymentMethod":"card"}`))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, domainerrors.CodeNoEligibleGateway, decodeBody(t, w)["code"])
}
