package usecases

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"payroute.backend/internal/domain/entities"
	domainerrors "payroute.backend/internal/domain/errors"
	"payroute.backend/internal/domain/repositories"
	"payroute.backend/pkg/logger"
	"payroute.backend/pkg/utils"
)

var gatewayCodePattern = regexp.MustCompile(`^[a-z][a-z0-9_]{1,49}$`)

// RoutingAdminUsecase manages the gateway catalogue, merchant bindings and
// routing rules, and explains routing decisions without side effects.
type RoutingAdminUsecase struct {
	gatewayRepo repositories.PaymentGatewayRepository
	bindingRepo repositories.MerchantGatewayRepository
	ruleRepo    repositories.RoutingRuleRepository
	loader      routingLoader
	engine      *RoutingEngine
	resolver    *GatewayResolver
	now         func() time.Time
}

func NewRoutingAdminUsecase(
	gatewayRepo repositories.PaymentGatewayRepository,
	bindingRepo repositories.MerchantGatewayRepository,
	ruleRepo repositories.RoutingRuleRepository,
	healthRepo repositories.GatewayHealthRepository,
	engine *RoutingEngine,
	resolver *GatewayResolver,
) *RoutingAdminUsecase {
	return &RoutingAdminUsecase{
		gatewayRepo: gatewayRepo,
		bindingRepo: bindingRepo,
		ruleRepo:    ruleRepo,
		loader: routingLoader{
			bindingRepo: bindingRepo,
			ruleRepo:    ruleRepo,
			healthRepo:  healthRepo,
		},
		engine:   engine,
		resolver: resolver,
		now:      time.Now,
	}
}

// CreateGatewayInput registers a gateway account
type CreateGatewayInput struct {
	Code                string
	Name                string
	Provider            string
	SupportedCurrencies []string
	SupportedMethods    []entities.PaymentMethod
	APIBaseURL          string
	Credentials         entities.GatewayCredentials
}

// UpdateGatewayInput changes only the fields that are set
type UpdateGatewayInput struct {
	Name                *string
	SupportedCurrencies []string
	SupportedMethods    []entities.PaymentMethod
	APIBaseURL          *string
	IsActive            *bool
	Credentials         *entities.GatewayCredentials
}

func (u *RoutingAdminUsecase) CreateGateway(ctx context.Context, in CreateGatewayInput) (*entities.PaymentGateway, error) {
	code := strings.ToLower(strings.TrimSpace(in.Code))
	if !gatewayCodePattern.MatchString(code) {
		return nil, fmt.Errorf("%w: gateway code must be lowercase letters, digits or underscores", domainerrors.ErrInvalidInput)
	}
	provider := strings.ToLower(strings.TrimSpace(in.Provider))
	if provider == code {
		provider = ""
	}
	gw := &entities.PaymentGateway{Code: code, Provider: provider}
	if !u.resolver.Supports(gw.ProviderCode()) {
		return nil, fmt.Errorf("%w: no adapter for provider %q", domainerrors.ErrInvalidInput, gw.ProviderCode())
	}
	if strings.TrimSpace(in.Name) == "" {
		return nil, fmt.Errorf("%w: name is required", domainerrors.ErrInvalidInput)
	}
	currencies, err := normalizeCurrencies(in.SupportedCurrencies)
	if err != nil {
		return nil, err
	}
	if err := validateMethods(in.SupportedMethods); err != nil {
		return nil, err
	}
	if in.Credentials.APIKey == "" {
		return nil, fmt.Errorf("%w: api key is required", domainerrors.ErrInvalidInput)
	}

	if existing, err := u.gatewayRepo.GetByCode(ctx, code); err == nil && existing != nil {
		return nil, fmt.Errorf("%w: gateway %s", domainerrors.ErrAlreadyExists, code)
	} else if err != nil && !errors.Is(err, domainerrors.ErrNotFound) {
		return nil, err
	}

	sealed, err := u.resolver.SealCredentials(code, in.Credentials)
	if err != nil {
		return nil, fmt.Errorf("seal credentials: %w", err)
	}
	now := u.now().UTC()
	gw.ID = utils.GenerateUUIDv7()
	gw.Name = strings.TrimSpace(in.Name)
	gw.SupportedCurrencies = currencies
	gw.SupportedMethods = in.SupportedMethods
	gw.APIBaseURL = strings.TrimSpace(in.APIBaseURL)
	gw.IsActive = true
	gw.SealedCredentials = sealed
	gw.CreatedAt = now
	gw.UpdatedAt = now
	if err := u.gatewayRepo.Create(ctx, gw); err != nil {
		return nil, err
	}
	logger.Info(ctx, "Gateway registered",
		zap.String("gateway", gw.Code),
		zap.String("provider", gw.ProviderCode()),
	)
	return gw, nil
}

func (u *RoutingAdminUsecase) UpdateGateway(ctx context.Context, id uuid.UUID, in UpdateGatewayInput) (*entities.PaymentGateway, error) {
	gw, err := u.gatewayRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.Name != nil {
		if strings.TrimSpace(*in.Name) == "" {
			return nil, fmt.Errorf("%w: name cannot be empty", domainerrors.ErrInvalidInput)
		}
		gw.Name = strings.TrimSpace(*in.Name)
	}
	if in.SupportedCurrencies != nil {
		currencies, err := normalizeCurrencies(in.SupportedCurrencies)
		if err != nil {
			return nil, err
		}
		gw.SupportedCurrencies = currencies
	}
	if in.SupportedMethods != nil {
		if err := validateMethods(in.SupportedMethods); err != nil {
			return nil, err
		}
		gw.SupportedMethods = in.SupportedMethods
	}
	if in.APIBaseURL != nil {
		gw.APIBaseURL = strings.TrimSpace(*in.APIBaseURL)
	}
	if in.IsActive != nil {
		gw.IsActive = *in.IsActive
	}
	if in.Credentials != nil {
		if in.Credentials.APIKey == "" {
			return nil, fmt.Errorf("%w: api key is required", domainerrors.ErrInvalidInput)
		}
		sealed, err := u.resolver.SealCredentials(gw.Code, *in.Credentials)
		if err != nil {
			return nil, fmt.Errorf("seal credentials: %w", err)
		}
		gw.SealedCredentials = sealed
	}
	gw.UpdatedAt = u.now().UTC()
	if err := u.gatewayRepo.Update(ctx, gw); err != nil {
		return nil, err
	}
	logger.Info(ctx, "Gateway updated",
		zap.String("gateway", gw.Code),
		zap.Bool("active", gw.IsActive),
		zap.Bool("credentials_rotated", in.Credentials != nil),
	)
	return gw, nil
}

func (u *RoutingAdminUsecase) ListGateways(ctx context.Context, activeOnly bool) ([]*entities.PaymentGateway, error) {
	return u.gatewayRepo.List(ctx, activeOnly)
}

// BindGatewayInput attaches a gateway to a merchant
type BindGatewayInput struct {
	GatewayID     uuid.UUID
	Priority      int
	FeePercentage decimal.Decimal
	FeeFixed      decimal.Decimal
	SubAccountID  string
}

// UpdateBindingInput changes only the fields that are set
type UpdateBindingInput struct {
	Priority      *int
	FeePercentage *decimal.Decimal
	FeeFixed      *decimal.Decimal
	SubAccountID  *string
	IsActive      *bool
}

func (u *RoutingAdminUsecase) BindGateway(ctx context.Context, merchantID uuid.UUID, in BindGatewayInput) (*entities.MerchantGateway, error) {
	if merchantID == uuid.Nil {
		return nil, fmt.Errorf("%w: merchant id is required", domainerrors.ErrInvalidInput)
	}
	if err := validateTerms(in.Priority, in.FeePercentage, in.FeeFixed); err != nil {
		return nil, err
	}
	gw, err := u.gatewayRepo.GetByID(ctx, in.GatewayID)
	if err != nil {
		return nil, err
	}
	if _, err := u.bindingRepo.GetByMerchantAndGateway(ctx, merchantID, gw.ID); err == nil {
		return nil, fmt.Errorf("%w: merchant already bound to %s", domainerrors.ErrAlreadyExists, gw.Code)
	} else if !errors.Is(err, domainerrors.ErrNotFound) {
		return nil, err
	}

	now := u.now().UTC()
	binding := &entities.MerchantGateway{
		ID:            utils.GenerateUUIDv7(),
		MerchantID:    merchantID,
		GatewayID:     gw.ID,
		Priority:      in.Priority,
		IsActive:      true,
		FeePercentage: in.FeePercentage,
		FeeFixed:      in.FeeFixed,
		SubAccountID:  strings.TrimSpace(in.SubAccountID),
		CreatedAt:     now,
		UpdatedAt:     now,
		Gateway:       gw,
	}
	if err := u.bindingRepo.Create(ctx, binding); err != nil {
		return nil, err
	}
	logger.Info(ctx, "Gateway bound to merchant",
		zap.String("merchant_id", merchantID.String()),
		zap.String("gateway", gw.Code),
		zap.Int("priority", in.Priority),
	)
	return binding, nil
}

func (u *RoutingAdminUsecase) ListBindings(ctx context.Context, merchantID uuid.UUID) ([]*entities.MerchantGateway, error) {
	return u.bindingRepo.ListByMerchant(ctx, merchantID)
}

func (u *RoutingAdminUsecase) UpdateBinding(ctx context.Context, merchantID, gatewayID uuid.UUID, in UpdateBindingInput) (*entities.MerchantGateway, error) {
	binding, err := u.bindingRepo.GetByMerchantAndGateway(ctx, merchantID, gatewayID)
	if err != nil {
		return nil, err
	}
	if in.Priority != nil {
		binding.Priority = *in.Priority
	}
	if in.FeePercentage != nil {
		binding.FeePercentage = *in.FeePercentage
	}
	if in.FeeFixed != nil {
		binding.FeeFixed = *in.FeeFixed
	}
	if in.SubAccountID != nil {
		binding.SubAccountID = strings.TrimSpace(*in.SubAccountID)
	}
	if in.IsActive != nil {
		binding.IsActive = *in.IsActive
	}
	if err := validateTerms(binding.Priority, binding.FeePercentage, binding.FeeFixed); err != nil {
		return nil, err
	}
	binding.UpdatedAt = u.now().UTC()
	if err := u.bindingRepo.Update(ctx, binding); err != nil {
		return nil, err
	}
	return binding, nil
}

// RuleInput is the full definition of a routing rule
type RuleInput struct {
	Name       string
	Type       entities.RoutingRuleType
	Condition  entities.RuleCondition
	Action     entities.RuleActionDocument
	Priority   int
	IsActive   *bool
	ValidFrom  *time.Time
	ValidUntil *time.Time
}

func (u *RoutingAdminUsecase) CreateRule(ctx context.Context, merchantID uuid.UUID, in RuleInput) (*entities.RoutingRule, error) {
	if merchantID == uuid.Nil {
		return nil, fmt.Errorf("%w: merchant id is required", domainerrors.ErrInvalidInput)
	}
	now := u.now().UTC()
	rule := &entities.RoutingRule{
		ID:         utils.GenerateUUIDv7(),
		MerchantID: merchantID,
		IsActive:   true,
		CreatedAt:  now,
	}
	if err := applyRuleInput(rule, in); err != nil {
		return nil, err
	}
	rule.UpdatedAt = now
	if err := u.ruleRepo.Create(ctx, rule); err != nil {
		return nil, err
	}
	logger.Info(ctx, "Routing rule created",
		zap.String("merchant_id", merchantID.String()),
		zap.String("rule_id", rule.ID.String()),
		zap.String("type", string(rule.Type)),
	)
	return rule, nil
}

func (u *RoutingAdminUsecase) ListRules(ctx context.Context, merchantID uuid.UUID) ([]*entities.RoutingRule, error) {
	return u.ruleRepo.ListByMerchant(ctx, merchantID)
}

// UpdateRule replaces the rule definition. Merchant and creation time are kept.
func (u *RoutingAdminUsecase) UpdateRule(ctx context.Context, id uuid.UUID, in RuleInput) (*entities.RoutingRule, error) {
	rule, err := u.ruleRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := applyRuleInput(rule, in); err != nil {
		return nil, err
	}
	rule.UpdatedAt = u.now().UTC()
	if err := u.ruleRepo.Update(ctx, rule); err != nil {
		return nil, err
	}
	return rule, nil
}

func (u *RoutingAdminUsecase) DeleteRule(ctx context.Context, id uuid.UUID) error {
	if err := u.ruleRepo.Delete(ctx, id); err != nil {
		return err
	}
	logger.Info(ctx, "Routing rule deleted", zap.String("rule_id", id.String()))
	return nil
}

// ExplainRouteInput describes a hypothetical transaction
type ExplainRouteInput struct {
	Amount        decimal.Decimal
	Currency      string
	PaymentMethod entities.PaymentMethod
	Strategy      entities.ProcessingStrategy
	// At defaults to now.
	At time.Time
}

// ExplainRoute runs the routing engine against the merchant's live
// configuration and returns the full decision. Nothing is persisted.
func (u *RoutingAdminUsecase) ExplainRoute(ctx context.Context, merchantID uuid.UUID, in ExplainRouteInput) (*entities.GatewaySelection, error) {
	currency := strings.ToUpper(strings.TrimSpace(in.Currency))
	switch {
	case merchantID == uuid.Nil:
		return nil, fmt.Errorf("%w: merchant id is required", domainerrors.ErrInvalidInput)
	case !in.Amount.IsPositive():
		return nil, fmt.Errorf("%w: amount must be positive", domainerrors.ErrInvalidInput)
	case !entities.ValidCurrency(currency):
		return nil, fmt.Errorf("%w: currency must be a 3-letter ISO code", domainerrors.ErrInvalidInput)
	case !in.PaymentMethod.Valid():
		return nil, fmt.Errorf("%w: unsupported payment method %q", domainerrors.ErrInvalidInput, in.PaymentMethod)
	case in.Strategy != "" && !in.Strategy.Valid():
		return nil, fmt.Errorf("%w: unknown strategy %q", domainerrors.ErrInvalidInput, in.Strategy)
	}
	at := in.At
	if at.IsZero() {
		at = u.now().UTC()
	}

	state, err := u.loader.load(ctx, merchantID, u.engine.HealthSince(at))
	if err != nil {
		return nil, err
	}
	// A nil id keeps load-balance picks stable for identical requests.
	tx := &entities.Transaction{
		MerchantID:    merchantID,
		Amount:        in.Amount,
		Currency:      currency,
		PaymentMethod: in.PaymentMethod,
		Status:        entities.TransactionStatusPending,
		CreatedAt:     at,
	}
	return u.engine.SelectGateway(state.input(tx, in.Strategy, nil, at))
}

func normalizeCurrencies(in []string) ([]string, error) {
	if len(in) == 0 {
		return nil, fmt.Errorf("%w: at least one currency is required", domainerrors.ErrInvalidInput)
	}
	out := make([]string, 0, len(in))
	seen := map[string]bool{}
	for _, c := range in {
		c = strings.ToUpper(strings.TrimSpace(c))
		if !entities.ValidCurrency(c) {
			return nil, fmt.Errorf("%w: invalid currency %q", domainerrors.ErrInvalidInput, c)
		}
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	return out, nil
}

func validateMethods(methods []entities.PaymentMethod) error {
	if len(methods) == 0 {
		return fmt.Errorf("%w: at least one payment method is required", domainerrors.ErrInvalidInput)
	}
	for _, m := range methods {
		if !m.Valid() {
			return fmt.Errorf("%w: unsupported payment method %q", domainerrors.ErrInvalidInput, m)
		}
	}
	return nil
}

func validateTerms(priority int, pct, fixed decimal.Decimal) error {
	switch {
	case priority < 0:
		return fmt.Errorf("%w: priority must not be negative", domainerrors.ErrInvalidInput)
	case pct.IsNegative() || pct.GreaterThan(decimal.NewFromInt(100)):
		return fmt.Errorf("%w: fee percentage must be between 0 and 100", domainerrors.ErrInvalidInput)
	case fixed.IsNegative():
		return fmt.Errorf("%w: fixed fee must not be negative", domainerrors.ErrInvalidInput)
	}
	return nil
}

func applyRuleInput(rule *entities.RoutingRule, in RuleInput) error {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return fmt.Errorf("%w: rule name is required", domainerrors.ErrInvalidInput)
	}
	if !in.Type.Valid() {
		return fmt.Errorf("%w: unknown rule type %q", domainerrors.ErrInvalidInput, in.Type)
	}
	action, err := in.Action.Decode()
	if err != nil {
		return fmt.Errorf("%w: %v", domainerrors.ErrInvalidInput, err)
	}
	if in.Type == entities.RuleTypePercentageDistribution && action.Kind() != entities.RuleActionDistribute {
		return fmt.Errorf("%w: percentage distribution rules need a distribute action", domainerrors.ErrInvalidInput)
	}
	if err := validateCondition(&in.Condition); err != nil {
		return err
	}
	if in.Priority < 0 {
		return fmt.Errorf("%w: priority must not be negative", domainerrors.ErrInvalidInput)
	}
	if in.ValidFrom != nil && in.ValidUntil != nil && !in.ValidFrom.Before(*in.ValidUntil) {
		return fmt.Errorf("%w: validFrom must be before validUntil", domainerrors.ErrInvalidInput)
	}

	rule.Name = name
	rule.Type = in.Type
	rule.Condition = in.Condition
	rule.Action = action
	rule.Priority = in.Priority
	rule.ValidFrom = in.ValidFrom
	rule.ValidUntil = in.ValidUntil
	if in.IsActive != nil {
		rule.IsActive = *in.IsActive
	}
	return nil
}

func validateCondition(c *entities.RuleCondition) error {
	if c.MinAmount != nil && c.MaxAmount != nil && c.MinAmount.GreaterThan(*c.MaxAmount) {
		return fmt.Errorf("%w: minAmount exceeds maxAmount", domainerrors.ErrInvalidInput)
	}
	for i, cur := range c.Currencies {
		cur = strings.ToUpper(strings.TrimSpace(cur))
		if !entities.ValidCurrency(cur) {
			return fmt.Errorf("%w: invalid currency %q", domainerrors.ErrInvalidInput, cur)
		}
		c.Currencies[i] = cur
	}
	for _, m := range c.PaymentMethods {
		if !m.Valid() {
			return fmt.Errorf("%w: unsupported payment method %q", domainerrors.ErrInvalidInput, m)
		}
	}
	if w := c.TimeWindow; w != nil {
		if w.StartHour < 0 || w.StartHour > 23 || w.EndHour < 0 || w.EndHour > 24 {
			return fmt.Errorf("%w: time window hours must be within 0-24", domainerrors.ErrInvalidInput)
		}
	}
	return nil
}
