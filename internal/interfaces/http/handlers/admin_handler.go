package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"payroute.backend/internal/domain/entities"
	domainerrors "payroute.backend/internal/domain/errors"
	"payroute.backend/internal/interfaces/http/response"
	"payroute.backend/internal/usecases"
)

type RoutingAdminService interface {
	CreateGateway(ctx context.Context, in usecases.CreateGatewayInput) (*entities.PaymentGateway, error)
	UpdateGateway(ctx context.Context, id uuid.UUID, in usecases.UpdateGatewayInput) (*entities.PaymentGateway, error)
	ListGateways(ctx context.Context, activeOnly bool) ([]*entities.PaymentGateway, error)
	BindGateway(ctx context.Context, merchantID uuid.UUID, in usecases.BindGatewayInput) (*entities.MerchantGateway, error)
	ListBindings(ctx context.Context, merchantID uuid.UUID) ([]*entities.MerchantGateway, error)
	UpdateBinding(ctx context.Context, merchantID, gatewayID uuid.UUID, in usecases.UpdateBindingInput) (*entities.MerchantGateway, error)
	CreateRule(ctx context.Context, merchantID uuid.UUID, in usecases.RuleInput) (*entities.RoutingRule, error)
	ListRules(ctx context.Context, merchantID uuid.UUID) ([]*entities.RoutingRule, error)
	UpdateRule(ctx context.Context, id uuid.UUID, in usecases.RuleInput) (*entities.RoutingRule, error)
	DeleteRule(ctx context.Context, id uuid.UUID) error
	ExplainRoute(ctx context.Context, merchantID uuid.UUID, in usecases.ExplainRouteInput) (*entities.GatewaySelection, error)
}

// AdminHandler serves gateway, binding and rule management
type AdminHandler struct {
	admin RoutingAdminService
}

func NewAdminHandler(admin RoutingAdminService) *AdminHandler {
	return &AdminHandler{admin: admin}
}

type credentialsRequest struct {
	APIKey        string `json:"apiKey"`
	APISecret     string `json:"apiSecret"`
	WebhookSecret string `json:"webhookSecret"`
}

func (r *credentialsRequest) toEntity() *entities.GatewayCredentials {
	if r == nil {
		return nil
	}
	return &entities.GatewayCredentials{APIKey: r.APIKey, APISecret: r.APISecret, WebhookSecret: r.WebhookSecret}
}

type createGatewayRequest struct {
	Code                string                   `json:"code" binding:"required"`
	Name                string                   `json:"name" binding:"required"`
	Provider            string                   `json:"provider"`
	SupportedCurrencies []string                 `json:"supportedCurrencies" binding:"required"`
	SupportedMethods    []entities.PaymentMethod `json:"supportedMethods" binding:"required"`
	APIBaseURL          string                   `json:"apiBaseUrl"`
	Credentials         credentialsRequest       `json:"credentials"`
}

type updateGatewayRequest struct {
	Name                *string                  `json:"name"`
	SupportedCurrencies []string                 `json:"supportedCurrencies"`
	SupportedMethods    []entities.PaymentMethod `json:"supportedMethods"`
	APIBaseURL          *string                  `json:"apiBaseUrl"`
	IsActive            *bool                    `json:"isActive"`
	Credentials         *credentialsRequest      `json:"credentials"`
}

type bindGatewayRequest struct {
	GatewayID     string          `json:"gatewayId" binding:"required"`
	Priority      int             `json:"priority"`
	FeePercentage decimal.Decimal `json:"feePercentage"`
	FeeFixed      decimal.Decimal `json:"feeFixed"`
	SubAccountID  string          `json:"subAccountId"`
}

type updateBindingRequest struct {
	Priority      *int             `json:"priority"`
	FeePercentage *decimal.Decimal `json:"feePercentage"`
	FeeFixed      *decimal.Decimal `json:"feeFixed"`
	SubAccountID  *string          `json:"subAccountId"`
	IsActive      *bool            `json:"isActive"`
}

type ruleRequest struct {
	Name       string                      `json:"name" binding:"required"`
	Type       entities.RoutingRuleType    `json:"type" binding:"required"`
	Condition  entities.RuleCondition      `json:"condition"`
	Action     entities.RuleActionDocument `json:"action"`
	Priority   int                         `json:"priority"`
	IsActive   *bool                       `json:"isActive"`
	ValidFrom  *time.Time                  `json:"validFrom"`
	ValidUntil *time.Time                  `json:"validUntil"`
}

func (r ruleRequest) toInput() usecases.RuleInput {
	return usecases.RuleInput{
		Name:       r.Name,
		Type:       r.Type,
		Condition:  r.Condition,
		Action:     r.Action,
		Priority:   r.Priority,
		IsActive:   r.IsActive,
		ValidFrom:  r.ValidFrom,
		ValidUntil: r.ValidUntil,
	}
}

type explainRouteRequest struct {
	Amount        decimal.Decimal             `json:"amount"`
	Currency      string                      `json:"currency" binding:"required"`
	PaymentMethod entities.PaymentMethod      `json:"paymentMethod" binding:"required"`
	Strategy      entities.ProcessingStrategy `json:"strategy"`
	At            *time.Time                  `json:"at"`
}

// CreateGateway
// POST /api/v1/admin/gateways
func (h *AdminHandler) CreateGateway(c *gin.Context) {
	var req createGatewayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, domainerrors.BadRequest(err.Error()))
		return
	}
	gw, err := h.admin.CreateGateway(c.Request.Context(), usecases.CreateGatewayInput{
		Code:                req.Code,
		Name:                req.Name,
		Provider:            req.Provider,
		SupportedCurrencies: req.SupportedCurrencies,
		SupportedMethods:    req.SupportedMethods,
		APIBaseURL:          req.APIBaseURL,
		Credentials:         *req.Credentials.toEntity(),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{"gateway": gw})
}

// ListGateways
// GET /api/v1/admin/gateways?active=true
func (h *AdminHandler) ListGateways(c *gin.Context) {
	gateways, err := h.admin.ListGateways(c.Request.Context(), c.Query("active") == "true")
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"gateways": gateways})
}

// UpdateGateway
// PATCH /api/v1/admin/gateways/:id
func (h *AdminHandler) UpdateGateway(c *gin.Context) {
	id, ok := uuidParam(c, "id", "Invalid gateway ID")
	if !ok {
		return
	}
	var req updateGatewayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, domainerrors.BadRequest(err.Error()))
		return
	}
	gw, err := h.admin.UpdateGateway(c.Request.Context(), id, usecases.UpdateGatewayInput{
		Name:                req.Name,
		SupportedCurrencies: req.SupportedCurrencies,
		SupportedMethods:    req.SupportedMethods,
		APIBaseURL:          req.APIBaseURL,
		IsActive:            req.IsActive,
		Credentials:         req.Credentials.toEntity(),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"gateway": gw})
}

// BindGateway
// POST /api/v1/admin/merchants/:merchantId/gateways
func (h *AdminHandler) BindGateway(c *gin.Context) {
	merchantID, ok := uuidParam(c, "merchantId", "Invalid merchant ID")
	if !ok {
		return
	}
	var req bindGatewayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, domainerrors.BadRequest(err.Error()))
		return
	}
	gatewayID, err := uuid.Parse(req.GatewayID)
	if err != nil {
		response.Error(c, domainerrors.BadRequest("Invalid gateway ID"))
		return
	}
	binding, err := h.admin.BindGateway(c.Request.Context(), merchantID, usecases.BindGatewayInput{
		GatewayID:     gatewayID,
		Priority:      req.Priority,
		FeePercentage: req.FeePercentage,
		FeeFixed:      req.FeeFixed,
		SubAccountID:  req.SubAccountID,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{"binding": binding})
}

// ListBindings
// GET /api/v1/admin/merchants/:merchantId/gateways
func (h *AdminHandler) ListBindings(c *gin.Context) {
	merchantID, ok := uuidParam(c, "merchantId", "Invalid merchant ID")
	if !ok {
		return
	}
	bindings, err := h.admin.ListBindings(c.Request.Context(), merchantID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"bindings": bindings})
}

// UpdateBinding
// PATCH /api/v1/admin/merchants/:merchantId/gateways/:gatewayId
func (h *AdminHandler) UpdateBinding(c *gin.Context) {
	merchantID, ok := uuidParam(c, "merchantId", "Invalid merchant ID")
	if !ok {
		return
	}
	gatewayID, ok := uuidParam(c, "gatewayId", "Invalid gateway ID")
	if !ok {
		return
	}
	var req updateBindingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, domainerrors.BadRequest(err.Error()))
		return
	}
	binding, err := h.admin.UpdateBinding(c.Request.Context(), merchantID, gatewayID, usecases.UpdateBindingInput{
		Priority:      req.Priority,
		FeePercentage: req.FeePercentage,
		FeeFixed:      req.FeeFixed,
		SubAccountID:  req.SubAccountID,
		IsActive:      req.IsActive,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"binding": binding})
}

// CreateRule
// POST /api/v1/admin/merchants/:merchantId/rules
func (h *AdminHandler) CreateRule(c *gin.Context) {
	merchantID, ok := uuidParam(c, "merchantId", "Invalid merchant ID")
	if !ok {
		return
	}
	var req ruleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, domainerrors.BadRequest(err.Error()))
		return
	}
	rule, err := h.admin.CreateRule(c.Request.Context(), merchantID, req.toInput())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{"rule": rule})
}

// ListRules
// GET /api/v1/admin/merchants/:merchantId/rules
func (h *AdminHandler) ListRules(c *gin.Context) {
	merchantID, ok := uuidParam(c, "merchantId", "Invalid merchant ID")
	if !ok {
		return
	}
	rules, err := h.admin.ListRules(c.Request.Context(), merchantID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"rules": rules})
}

// UpdateRule
// PUT /api/v1/admin/rules/:id
func (h *AdminHandler) UpdateRule(c *gin.Context) {
	id, ok := uuidParam(c, "id", "Invalid rule ID")
	if !ok {
		return
	}
	var req ruleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, domainerrors.BadRequest(err.Error()))
		return
	}
	rule, err := h.admin.UpdateRule(c.Request.Context(), id, req.toInput())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"rule": rule})
}

// DeleteRule
// DELETE /api/v1/admin/rules/:id
func (h *AdminHandler) DeleteRule(c *gin.Context) {
	id, ok := uuidParam(c, "id", "Invalid rule ID")
	if !ok {
		return
	}
	if err := h.admin.DeleteRule(c.Request.Context(), id); err != nil {
		response.Error(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ExplainRoute dry-runs the routing engine for a hypothetical transaction
// POST /api/v1/admin/merchants/:merchantId/explain-route
func (h *AdminHandler) ExplainRoute(c *gin.Context) {
	merchantID, ok := uuidParam(c, "merchantId", "Invalid merchant ID")
	if !ok {
		return
	}
	var req explainRouteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, domainerrors.BadRequest(err.Error()))
		return
	}
	in := usecases.ExplainRouteInput{
		Amount:        req.Amount,
		Currency:      req.Currency,
		PaymentMethod: req.PaymentMethod,
		Strategy:      req.Strategy,
	}
	if req.At != nil {
		in.At = *req.At
	}
	selection, err := h.admin.ExplainRoute(c.Request.Context(), merchantID, in)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"selection": selection})
}
