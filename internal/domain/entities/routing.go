package entities

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"
)

// RoutingRuleType names the kind of merchant routing rule
type RoutingRuleType string

const (
	RuleTypeAmountRange            RoutingRuleType = "amount_range"
	RuleTypeMethodBased            RoutingRuleType = "method_based"
	RuleTypePercentageDistribution RoutingRuleType = "percentage_distribution"
	RuleTypePriorityDefault        RoutingRuleType = "priority_default"
)

func (t RoutingRuleType) Valid() bool {
	switch t {
	case RuleTypeAmountRange, RuleTypeMethodBased, RuleTypePercentageDistribution, RuleTypePriorityDefault:
		return true
	}
	return false
}

// TimeWindow is a UTC hour-of-day range [StartHour, EndHour). A window whose
// end is before its start wraps past midnight.
type TimeWindow struct {
	StartHour int `json:"startHour"`
	EndHour   int `json:"endHour"`
}

func (w TimeWindow) Contains(at time.Time) bool {
	h := at.UTC().Hour()
	if w.StartHour == w.EndHour {
		return true
	}
	if w.StartHour < w.EndHour {
		return h >= w.StartHour && h < w.EndHour
	}
	return h >= w.StartHour || h < w.EndHour
}

// RuleCondition holds the predicates of a rule. Every populated predicate
// must hold for the rule to match.
type RuleCondition struct {
	MinAmount      *decimal.Decimal `json:"minAmount,omitempty"`
	MaxAmount      *decimal.Decimal `json:"maxAmount,omitempty"`
	Currencies     []string         `json:"currencies,omitempty"`
	PaymentMethods []PaymentMethod  `json:"paymentMethods,omitempty"`
	TimeWindow     *TimeWindow      `json:"timeWindow,omitempty"`
}

// Matches evaluates the condition against a transaction at the given instant.
func (c RuleCondition) Matches(tx *Transaction, at time.Time) bool {
	if c.MinAmount != nil && tx.Amount.LessThan(*c.MinAmount) {
		return false
	}
	if c.MaxAmount != nil && tx.Amount.GreaterThan(*c.MaxAmount) {
		return false
	}
	if len(c.Currencies) > 0 {
		found := false
		for _, cur := range c.Currencies {
			if cur == tx.Currency {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if len(c.PaymentMethods) > 0 {
		found := false
		for _, m := range c.PaymentMethods {
			if m == tx.PaymentMethod {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if c.TimeWindow != nil && !c.TimeWindow.Contains(at) {
		return false
	}
	return true
}

// RuleActionKind discriminates RuleAction variants
type RuleActionKind string

const (
	RuleActionPrefer     RuleActionKind = "prefer"
	RuleActionAvoid      RuleActionKind = "avoid"
	RuleActionDistribute RuleActionKind = "distribute"
)

// RuleAction is the closed set of effects a matching rule applies.
// Implementations: PreferGateway, AvoidGateway, DistributeWeights.
type RuleAction interface {
	Kind() RuleActionKind
	isRuleAction()
}

type PreferGateway struct {
	GatewayCode string
}

type AvoidGateway struct {
	GatewayCode string
}

// DistributeWeights adds a per-gateway weight straight into the score
type DistributeWeights struct {
	Weights map[string]decimal.Decimal
}

func (PreferGateway) Kind() RuleActionKind     { return RuleActionPrefer }
func (AvoidGateway) Kind() RuleActionKind      { return RuleActionAvoid }
func (DistributeWeights) Kind() RuleActionKind { return RuleActionDistribute }

func (PreferGateway) isRuleAction()     {}
func (AvoidGateway) isRuleAction()      {}
func (DistributeWeights) isRuleAction() {}

// RuleActionDocument is the stored and wire form of a RuleAction
type RuleActionDocument struct {
	Type    RuleActionKind             `json:"type"`
	Gateway string                     `json:"gateway,omitempty"`
	Weights map[string]decimal.Decimal `json:"weights,omitempty"`
}

// EncodeRuleAction flattens an action into its document form.
func EncodeRuleAction(action RuleAction) (RuleActionDocument, error) {
	switch a := action.(type) {
	case PreferGateway:
		return RuleActionDocument{Type: RuleActionPrefer, Gateway: a.GatewayCode}, nil
	case AvoidGateway:
		return RuleActionDocument{Type: RuleActionAvoid, Gateway: a.GatewayCode}, nil
	case DistributeWeights:
		return RuleActionDocument{Type: RuleActionDistribute, Weights: a.Weights}, nil
	default:
		return RuleActionDocument{}, fmt.Errorf("unsupported rule action %T", action)
	}
}

// Decode turns the document back into a typed action.
func (d RuleActionDocument) Decode() (RuleAction, error) {
	switch d.Type {
	case RuleActionPrefer:
		if d.Gateway == "" {
			return nil, fmt.Errorf("prefer action requires a gateway")
		}
		return PreferGateway{GatewayCode: d.Gateway}, nil
	case RuleActionAvoid:
		if d.Gateway == "" {
			return nil, fmt.Errorf("avoid action requires a gateway")
		}
		return AvoidGateway{GatewayCode: d.Gateway}, nil
	case RuleActionDistribute:
		if len(d.Weights) == 0 {
			return nil, fmt.Errorf("distribute action requires weights")
		}
		return DistributeWeights{Weights: d.Weights}, nil
	default:
		return nil, fmt.Errorf("unknown rule action type %q", d.Type)
	}
}

// RoutingRule is a merchant-scoped scoring adjustment
type RoutingRule struct {
	ID         uuid.UUID       `json:"id"`
	MerchantID uuid.UUID       `json:"merchantId"`
	Name       string          `json:"name"`
	Type       RoutingRuleType `json:"type"`
	Condition  RuleCondition   `json:"condition"`
	Action     RuleAction      `json:"-"`
	Priority   int             `json:"priority"`
	IsActive   bool            `json:"isActive"`
	ValidFrom  *time.Time      `json:"validFrom,omitempty"`
	ValidUntil *time.Time      `json:"validUntil,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}

// EffectiveAt reports whether the rule is enabled and inside its validity window.
func (r *RoutingRule) EffectiveAt(at time.Time) bool {
	if !r.IsActive {
		return false
	}
	if r.ValidFrom != nil && at.Before(*r.ValidFrom) {
		return false
	}
	if r.ValidUntil != nil && !at.Before(*r.ValidUntil) {
		return false
	}
	return true
}

func (r RoutingRule) MarshalJSON() ([]byte, error) {
	type alias RoutingRule
	doc, err := EncodeRuleAction(r.Action)
	if err != nil {
		return nil, err
	}
	return json.Marshal(struct {
		alias
		Action RuleActionDocument `json:"action"`
	}{alias: alias(r), Action: doc})
}

// AttemptKind separates payment attempts from refund attempts
type AttemptKind string

const (
	AttemptKindPayment AttemptKind = "payment"
	AttemptKindRefund  AttemptKind = "refund"
)

// AttemptStatus is the outcome of a single gateway call
type AttemptStatus string

const (
	AttemptStatusSuccess AttemptStatus = "success"
	AttemptStatusPending AttemptStatus = "pending"
	AttemptStatusFailed  AttemptStatus = "failed"
)

// RoutingAttempt records one gateway call for a transaction
type RoutingAttempt struct {
	ID              uuid.UUID           `json:"id"`
	TransactionID   uuid.UUID           `json:"transactionId"`
	Kind            AttemptKind         `json:"kind"`
	AttemptNumber   int                 `json:"attemptNumber"`
	GatewayID       *uuid.UUID          `json:"gatewayId,omitempty"`
	GatewayCode     string              `json:"gatewayCode,omitempty"`
	Status          AttemptStatus       `json:"status"`
	ErrorMessage    null.String         `json:"errorMessage,omitempty"`
	LatencyMs       int64               `json:"latencyMs"`
	Score           decimal.Decimal     `json:"score"`
	ScoreBreakdown  []ScoreContribution `json:"scoreBreakdown,omitempty"`
	RequestPayload  json.RawMessage     `json:"requestPayload,omitempty"`
	ResponsePayload json.RawMessage     `json:"responsePayload,omitempty"`
	CreatedAt       time.Time           `json:"createdAt"`
}

// GatewayHealthMetric is one rolling-window aggregate for a gateway
type GatewayHealthMetric struct {
	ID           uuid.UUID       `json:"id"`
	GatewayID    uuid.UUID       `json:"gatewayId"`
	SuccessRate  decimal.Decimal `json:"successRate"`
	AvgLatencyMs int64           `json:"avgLatencyMs"`
	SampleCount  int             `json:"sampleCount"`
	WindowStart  time.Time       `json:"windowStart"`
	WindowEnd    time.Time       `json:"windowEnd"`
	CreatedAt    time.Time       `json:"createdAt"`
}

// GatewayAttemptStats is a raw per-gateway aggregate over routing attempts
type GatewayAttemptStats struct {
	GatewayID    uuid.UUID
	Total        int
	Succeeded    int
	AvgLatencyMs float64
}

// ScoreContribution is one term added to a candidate's score
type ScoreContribution struct {
	GatewayCode string          `json:"gatewayCode"`
	Term        string          `json:"term"`
	Delta       decimal.Decimal `json:"delta"`
	Detail      string          `json:"detail,omitempty"`
}

// CandidateScore is the scored view of one eligible binding
type CandidateScore struct {
	Binding      MerchantGateway     `json:"binding"`
	GatewayCode  string              `json:"gatewayCode"`
	Score        decimal.Decimal     `json:"score"`
	Fee          decimal.Decimal     `json:"fee"`
	Healthy      bool                `json:"healthy"`
	Provisional  bool                `json:"provisionalHealth"`
	SuccessRate  decimal.Decimal     `json:"successRate"`
	AvgLatencyMs int64               `json:"avgLatencyMs"`
	Breakdown    []ScoreContribution `json:"breakdown"`
}

// GatewaySelection is the routing engine's decision
type GatewaySelection struct {
	Selected               CandidateScore   `json:"selected"`
	Candidates             []CandidateScore `json:"candidates"`
	FallbackToAvailability bool             `json:"fallbackToAvailability"`
}
