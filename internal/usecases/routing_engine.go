package usecases

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"payroute.backend/internal/domain/entities"
	domainerrors "payroute.backend/internal/domain/errors"
)

// RoutingInput is everything SelectGateway looks at. Nothing else is read.
type RoutingInput struct {
	Transaction *entities.Transaction
	Bindings    []*entities.MerchantGateway
	// Health holds the latest metric per gateway id; missing or stale
	// entries use the provisional defaults.
	Health   map[uuid.UUID]*entities.GatewayHealthMetric
	Rules    []*entities.RoutingRule
	Exclude  map[uuid.UUID]bool
	Strategy entities.ProcessingStrategy
	// At is the evaluation instant for rule windows and health freshness.
	// Zero means the transaction's creation time.
	At time.Time
}

// RoutingEngine scores merchant gateway bindings. It has no side effects:
// identical inputs always produce the identical selection.
type RoutingEngine struct {
	availabilityFallback bool
	healthMaxAge         time.Duration
}

func NewRoutingEngine(availabilityFallback bool) *RoutingEngine {
	return &RoutingEngine{availabilityFallback: availabilityFallback}
}

// WithHealthMaxAge makes metrics whose window ended more than maxAge before
// the evaluation instant count as missing. Zero keeps every metric.
func (e *RoutingEngine) WithHealthMaxAge(maxAge time.Duration) *RoutingEngine {
	e.healthMaxAge = maxAge
	return e
}

// HealthSince is the oldest window end still usable at the given instant,
// or the zero time when metrics never expire.
func (e *RoutingEngine) HealthSince(at time.Time) time.Time {
	if e.healthMaxAge <= 0 {
		return time.Time{}
	}
	return at.Add(-e.healthMaxAge)
}

// SelectGateway picks the gateway for in.Transaction.
func (e *RoutingEngine) SelectGateway(in RoutingInput) (*entities.GatewaySelection, error) {
	tx := in.Transaction
	if tx == nil {
		return nil, fmt.Errorf("%w: transaction is required", domainerrors.ErrInvalidInput)
	}
	at := in.At
	if at.IsZero() {
		at = tx.CreatedAt
	}

	candidates := e.eligible(tx, in.Bindings, in.Exclude)
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: %s %s", domainerrors.ErrNoEligibleGateway, tx.Currency, tx.PaymentMethod)
	}

	for i := range candidates {
		scoreBase(&candidates[i], tx, in.Health, e.HealthSince(at))
	}
	applyRules(candidates, orderedRules(in.Rules), tx, at)

	healthy := make([]entities.CandidateScore, 0, len(candidates))
	for _, c := range candidates {
		if c.Healthy {
			healthy = append(healthy, c)
		}
	}

	selection := &entities.GatewaySelection{}
	pool := healthy
	if len(healthy) == 0 {
		if !e.availabilityFallback {
			return nil, fmt.Errorf("%w: %d candidates below health thresholds", domainerrors.ErrNoHealthyGateway, len(candidates))
		}
		pool = candidates
		selection.FallbackToAvailability = true
	}
	if len(pool) == 0 {
		return nil, domainerrors.ErrNoHealthyGateway
	}

	rank(pool)
	selection.Candidates = pool
	selection.Selected = pool[0]
	if in.Strategy == entities.StrategyLoadBalance {
		selection.Selected = pool[rendezvous(tx.ID, pool)]
	}
	return selection, nil
}

func (e *RoutingEngine) eligible(tx *entities.Transaction, bindings []*entities.MerchantGateway, exclude map[uuid.UUID]bool) []entities.CandidateScore {
	out := make([]entities.CandidateScore, 0, len(bindings))
	for _, b := range bindings {
		if b == nil || !b.IsActive || b.Gateway == nil || !b.Gateway.IsActive {
			continue
		}
		if exclude[b.GatewayID] {
			continue
		}
		if !b.Gateway.SupportsCurrency(tx.Currency) || !b.Gateway.SupportsMethod(tx.PaymentMethod) {
			continue
		}
		out = append(out, entities.CandidateScore{
			Binding:     *b,
			GatewayCode: b.Gateway.Code,
		})
	}
	return out
}

func scoreBase(c *entities.CandidateScore, tx *entities.Transaction, health map[uuid.UUID]*entities.GatewayHealthMetric, since time.Time) {
	add := func(term string, delta decimal.Decimal, detail string) {
		c.Score = c.Score.Add(delta)
		c.Breakdown = append(c.Breakdown, entities.ScoreContribution{
			GatewayCode: c.GatewayCode,
			Term:        term,
			Delta:       delta,
			Detail:      detail,
		})
	}

	add("base", BaseScore, "")

	priority := decimal.NewFromInt(int64(c.Binding.Priority))
	add("priority", PriorityCeiling.Sub(priority).Mul(PriorityWeight), fmt.Sprintf("priority %d", c.Binding.Priority))

	m := health[c.Binding.GatewayID]
	stale := m != nil && !since.IsZero() && m.WindowEnd.Before(since)
	if m != nil && !stale {
		c.SuccessRate = m.SuccessRate
		c.AvgLatencyMs = m.AvgLatencyMs
		penalty := decimal.NewFromInt(m.AvgLatencyMs).Div(LatencyPenaltyFactor)
		add("health", m.SuccessRate.Sub(penalty), fmt.Sprintf("success %s%%, latency %dms", m.SuccessRate.String(), m.AvgLatencyMs))
	} else {
		c.Provisional = true
		c.SuccessRate = ProvisionalSuccessRate
		c.AvgLatencyMs = ProvisionalLatencyMs
		detail := "no health data"
		if stale {
			detail = "health data expired " + m.WindowEnd.UTC().Format(time.RFC3339)
		}
		add("health", ProvisionalHealth, detail)
	}
	c.Healthy = c.SuccessRate.GreaterThanOrEqual(MinHealthySuccessRate) && c.AvgLatencyMs <= MaxHealthyLatencyMs

	c.Fee = c.Binding.Fee(tx.Amount)
	add("fee", c.Fee.Neg(), fmt.Sprintf("%s%% + %s", c.Binding.FeePercentage.String(), c.Binding.FeeFixed.String()))
}

func orderedRules(rules []*entities.RoutingRule) []*entities.RoutingRule {
	out := make([]*entities.RoutingRule, 0, len(rules))
	for _, r := range rules {
		if r != nil && r.Action != nil {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

func applyRules(candidates []entities.CandidateScore, rules []*entities.RoutingRule, tx *entities.Transaction, at time.Time) {
	for _, rule := range rules {
		if !rule.EffectiveAt(at) || !rule.Condition.Matches(tx, at) {
			continue
		}
		term := "rule:" + rule.Name
		for i := range candidates {
			c := &candidates[i]
			delta, ok := ruleDelta(rule.Action, c.GatewayCode)
			if !ok {
				continue
			}
			c.Score = c.Score.Add(delta)
			c.Breakdown = append(c.Breakdown, entities.ScoreContribution{
				GatewayCode: c.GatewayCode,
				Term:        term,
				Delta:       delta,
				Detail:      string(rule.Action.Kind()),
			})
		}
	}
}

func ruleDelta(action entities.RuleAction, code string) (decimal.Decimal, bool) {
	switch a := action.(type) {
	case entities.PreferGateway:
		if strings.EqualFold(a.GatewayCode, code) {
			return PreferDelta, true
		}
	case entities.AvoidGateway:
		if strings.EqualFold(a.GatewayCode, code) {
			return AvoidDelta, true
		}
	case entities.DistributeWeights:
		if w, ok := a.Weights[code]; ok {
			return w, true
		}
	}
	return decimal.Zero, false
}

// rank orders by score, then lower priority number, then gateway code.
func rank(c []entities.CandidateScore) {
	sort.SliceStable(c, func(i, j int) bool {
		if cmp := c[i].Score.Cmp(c[j].Score); cmp != 0 {
			return cmp > 0
		}
		if c[i].Binding.Priority != c[j].Binding.Priority {
			return c[i].Binding.Priority < c[j].Binding.Priority
		}
		return c[i].GatewayCode < c[j].GatewayCode
	})
}

// rendezvous performs weighted rendezvous hashing of the transaction id over
// the ranked pool. Candidates with a non-positive score only win when no
// candidate has a positive one.
func rendezvous(txID uuid.UUID, pool []entities.CandidateScore) int {
	best, bestKey := 0, math.Inf(-1)
	for i, c := range pool {
		weight := c.Score.InexactFloat64()
		if weight <= 0 {
			continue
		}
		sum := sha256.Sum256([]byte(txID.String() + "/" + c.GatewayCode))
		// Map the hash into (0,1).
		u := (float64(binary.BigEndian.Uint64(sum[:8])>>11) + 0.5) / float64(uint64(1)<<53)
		key := -weight / math.Log(u)
		if key > bestKey {
			best, bestKey = i, key
		}
	}
	return best
}
