package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"payroute.backend/internal/domain/entities"
	domainerrors "payroute.backend/internal/domain/errors"
	domainrepos "payroute.backend/internal/domain/repositories"
	"payroute.backend/internal/infrastructure/models"
)

type routingRuleRepo struct {
	db *gorm.DB
}

func NewRoutingRuleRepository(db *gorm.DB) domainrepos.RoutingRuleRepository {
	return &routingRuleRepo{db: db}
}

func (r *routingRuleRepo) Create(ctx context.Context, rule *entities.RoutingRule) error {
	m, err := toRoutingRuleModel(rule)
	if err != nil {
		return err
	}
	if err := GetDB(ctx, r.db).WithContext(ctx).Create(m).Error; err != nil {
		return err
	}
	rule.ID = m.ID
	return nil
}

func (r *routingRuleRepo) GetByID(ctx context.Context, id uuid.UUID) (*entities.RoutingRule, error) {
	var m models.RoutingRule
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainerrors.ErrNotFound
		}
		return nil, err
	}
	return toRoutingRuleEntity(&m)
}

func (r *routingRuleRepo) ListByMerchant(ctx context.Context, merchantID uuid.UUID) ([]*entities.RoutingRule, error) {
	var ms []models.RoutingRule
	if err := r.db.WithContext(ctx).
		Where("merchant_id = ?", merchantID).
		Order("priority ASC, created_at ASC").
		Find(&ms).Error; err != nil {
		return nil, err
	}
	out := make([]*entities.RoutingRule, 0, len(ms))
	for i := range ms {
		rule, err := toRoutingRuleEntity(&ms[i])
		if err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	return out, nil
}

func (r *routingRuleRepo) Update(ctx context.Context, rule *entities.RoutingRule) error {
	m, err := toRoutingRuleModel(rule)
	if err != nil {
		return err
	}
	result := GetDB(ctx, r.db).WithContext(ctx).Model(&models.RoutingRule{}).
		Where("id = ?", rule.ID).
		Updates(map[string]interface{}{
			"name":        m.Name,
			"rule_type":   m.RuleType,
			"conditions":  m.Conditions,
			"actions":     m.Actions,
			"priority":    m.Priority,
			"is_active":   m.IsActive,
			"valid_from":  m.ValidFrom,
			"valid_until": m.ValidUntil,
			"updated_at":  time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrNotFound
	}
	return nil
}

func (r *routingRuleRepo) Delete(ctx context.Context, id uuid.UUID) error {
	result := GetDB(ctx, r.db).WithContext(ctx).Where("id = ?", id).Delete(&models.RoutingRule{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrNotFound
	}
	return nil
}

func toRoutingRuleModel(rule *entities.RoutingRule) (*models.RoutingRule, error) {
	doc, err := entities.EncodeRuleAction(rule.Action)
	if err != nil {
		return nil, err
	}
	actions, err := toJSONColumn(doc)
	if err != nil {
		return nil, err
	}
	conditions, err := toJSONColumn(rule.Condition)
	if err != nil {
		return nil, err
	}
	return &models.RoutingRule{
		ID:         rule.ID,
		MerchantID: rule.MerchantID,
		Name:       rule.Name,
		RuleType:   string(rule.Type),
		Conditions: conditions,
		Actions:    actions,
		Priority:   rule.Priority,
		IsActive:   rule.IsActive,
		ValidFrom:  rule.ValidFrom,
		ValidUntil: rule.ValidUntil,
		CreatedAt:  rule.CreatedAt,
		UpdatedAt:  rule.UpdatedAt,
	}, nil
}

// A rule row that cannot be decoded is a configuration problem, not a
// storage one, so it surfaces as ErrConfiguration.
func toRoutingRuleEntity(m *models.RoutingRule) (*entities.RoutingRule, error) {
	rule := &entities.RoutingRule{
		ID:         m.ID,
		MerchantID: m.MerchantID,
		Name:       m.Name,
		Type:       entities.RoutingRuleType(m.RuleType),
		Priority:   m.Priority,
		IsActive:   m.IsActive,
		ValidFrom:  m.ValidFrom,
		ValidUntil: m.ValidUntil,
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}
	if err := fromJSONColumn(m.Conditions, &rule.Condition); err != nil {
		return nil, fmt.Errorf("%w: rule %s conditions: %v", domainerrors.ErrConfiguration, m.ID, err)
	}
	var doc entities.RuleActionDocument
	if err := fromJSONColumn(m.Actions, &doc); err != nil {
		return nil, fmt.Errorf("%w: rule %s actions: %v", domainerrors.ErrConfiguration, m.ID, err)
	}
	action, err := doc.Decode()
	if err != nil {
		return nil, fmt.Errorf("%w: rule %s: %v", domainerrors.ErrConfiguration, m.ID, err)
	}
	rule.Action = action
	return rule, nil
}
