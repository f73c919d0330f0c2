package repositories

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"payroute.backend/internal/domain/entities"
	domainerrors "payroute.backend/internal/domain/errors"
	"payroute.backend/internal/infrastructure/models"
)

// PaymentGatewayRepository implements the gateway catalogue
type PaymentGatewayRepository struct {
	db *gorm.DB
}

func NewPaymentGatewayRepository(db *gorm.DB) *PaymentGatewayRepository {
	return &PaymentGatewayRepository{db: db}
}

func (r *PaymentGatewayRepository) Create(ctx context.Context, gateway *entities.PaymentGateway) error {
	m, err := toPaymentGatewayModel(gateway)
	if err != nil {
		return err
	}
	if err := GetDB(ctx, r.db).WithContext(ctx).Create(m).Error; err != nil {
		return err
	}
	gateway.ID = m.ID
	return nil
}

func (r *PaymentGatewayRepository) GetByID(ctx context.Context, id uuid.UUID) (*entities.PaymentGateway, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *PaymentGatewayRepository) GetByCode(ctx context.Context, code string) (*entities.PaymentGateway, error) {
	return r.first(ctx, "code = ?", code)
}

func (r *PaymentGatewayRepository) first(ctx context.Context, query string, arg interface{}) (*entities.PaymentGateway, error) {
	var m models.PaymentGateway
	if err := GetDB(ctx, r.db).WithContext(ctx).Where(query, arg).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainerrors.ErrNotFound
		}
		return nil, err
	}
	return toPaymentGatewayEntity(&m)
}

func (r *PaymentGatewayRepository) List(ctx context.Context, activeOnly bool) ([]*entities.PaymentGateway, error) {
	query := r.db.WithContext(ctx).Order("code ASC")
	if activeOnly {
		query = query.Where("is_active = ?", true)
	}
	var ms []models.PaymentGateway
	if err := query.Find(&ms).Error; err != nil {
		return nil, err
	}
	out := make([]*entities.PaymentGateway, 0, len(ms))
	for i := range ms {
		g, err := toPaymentGatewayEntity(&ms[i])
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, nil
}

func (r *PaymentGatewayRepository) Update(ctx context.Context, gateway *entities.PaymentGateway) error {
	m, err := toPaymentGatewayModel(gateway)
	if err != nil {
		return err
	}
	result := GetDB(ctx, r.db).WithContext(ctx).Model(&models.PaymentGateway{}).
		Where("id = ?", gateway.ID).
		Updates(map[string]interface{}{
			"name":                 m.Name,
			"provider":             m.Provider,
			"supported_currencies": m.SupportedCurrencies,
			"supported_methods":    m.SupportedMethods,
			"is_active":            m.IsActive,
			"api_base_url":         m.APIBaseURL,
			"sealed_credentials":   m.SealedCredentials,
			"updated_at":           m.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrNotFound
	}
	return nil
}

func toPaymentGatewayModel(g *entities.PaymentGateway) (*models.PaymentGateway, error) {
	currencies, err := toJSONColumn(g.SupportedCurrencies)
	if err != nil {
		return nil, err
	}
	methods, err := toJSONColumn(g.SupportedMethods)
	if err != nil {
		return nil, err
	}
	return &models.PaymentGateway{
		ID:                  g.ID,
		Code:                g.Code,
		Name:                g.Name,
		Provider:            g.Provider,
		SupportedCurrencies: currencies,
		SupportedMethods:    methods,
		IsActive:            g.IsActive,
		APIBaseURL:          g.APIBaseURL,
		SealedCredentials:   g.SealedCredentials,
		CreatedAt:           g.CreatedAt,
		UpdatedAt:           g.UpdatedAt,
	}, nil
}

func toPaymentGatewayEntity(m *models.PaymentGateway) (*entities.PaymentGateway, error) {
	g := &entities.PaymentGateway{
		ID:                m.ID,
		Code:              m.Code,
		Name:              m.Name,
		Provider:          m.Provider,
		IsActive:          m.IsActive,
		APIBaseURL:        m.APIBaseURL,
		SealedCredentials: m.SealedCredentials,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
	if err := fromJSONColumn(m.SupportedCurrencies, &g.SupportedCurrencies); err != nil {
		return nil, err
	}
	if err := fromJSONColumn(m.SupportedMethods, &g.SupportedMethods); err != nil {
		return nil, err
	}
	return g, nil
}

// MerchantGatewayRepository implements merchant bindings
type MerchantGatewayRepository struct {
	db *gorm.DB
}

func NewMerchantGatewayRepository(db *gorm.DB) *MerchantGatewayRepository {
	return &MerchantGatewayRepository{db: db}
}

func (r *MerchantGatewayRepository) Create(ctx context.Context, binding *entities.MerchantGateway) error {
	m := &models.MerchantGateway{
		ID:            binding.ID,
		MerchantID:    binding.MerchantID,
		GatewayID:     binding.GatewayID,
		Priority:      binding.Priority,
		IsActive:      binding.IsActive,
		FeePercentage: binding.FeePercentage,
		FeeFixed:      binding.FeeFixed,
		SubAccountID:  binding.SubAccountID,
		CreatedAt:     binding.CreatedAt,
		UpdatedAt:     binding.UpdatedAt,
	}
	if err := GetDB(ctx, r.db).WithContext(ctx).Omit("Gateway").Create(m).Error; err != nil {
		return err
	}
	binding.ID = m.ID
	return nil
}

func (r *MerchantGatewayRepository) ListByMerchant(ctx context.Context, merchantID uuid.UUID) ([]*entities.MerchantGateway, error) {
	var ms []models.MerchantGateway
	if err := r.db.WithContext(ctx).
		Preload("Gateway").
		Where("merchant_id = ?", merchantID).
		Order("priority ASC").
		Find(&ms).Error; err != nil {
		return nil, err
	}
	out := make([]*entities.MerchantGateway, 0, len(ms))
	for i := range ms {
		b, err := toMerchantGatewayEntity(&ms[i])
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

func (r *MerchantGatewayRepository) GetByMerchantAndGateway(ctx context.Context, merchantID, gatewayID uuid.UUID) (*entities.MerchantGateway, error) {
	var m models.MerchantGateway
	if err := GetDB(ctx, r.db).WithContext(ctx).
		Preload("Gateway").
		Where("merchant_id = ? AND gateway_id = ?", merchantID, gatewayID).
		First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainerrors.ErrNotFound
		}
		return nil, err
	}
	return toMerchantGatewayEntity(&m)
}

func (r *MerchantGatewayRepository) Update(ctx context.Context, binding *entities.MerchantGateway) error {
	result := GetDB(ctx, r.db).WithContext(ctx).Model(&models.MerchantGateway{}).
		Where("id = ?", binding.ID).
		Updates(map[string]interface{}{
			"priority":       binding.Priority,
			"is_active":      binding.IsActive,
			"fee_percentage": binding.FeePercentage,
			"fee_fixed":      binding.FeeFixed,
			"sub_account_id": binding.SubAccountID,
			"updated_at":     binding.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrNotFound
	}
	return nil
}

func toMerchantGatewayEntity(m *models.MerchantGateway) (*entities.MerchantGateway, error) {
	b := &entities.MerchantGateway{
		ID:            m.ID,
		MerchantID:    m.MerchantID,
		GatewayID:     m.GatewayID,
		Priority:      m.Priority,
		IsActive:      m.IsActive,
		FeePercentage: m.FeePercentage,
		FeeFixed:      m.FeeFixed,
		SubAccountID:  m.SubAccountID,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
	if m.Gateway.ID != uuid.Nil {
		g, err := toPaymentGatewayEntity(&m.Gateway)
		if err != nil {
			return nil, err
		}
		b.Gateway = g
	}
	return b, nil
}
