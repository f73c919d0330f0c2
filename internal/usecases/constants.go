package usecases

import (
	"time"

	"github.com/shopspring/decimal"
)

// Scoring weights of the routing engine
var (
	BaseScore            = decimal.NewFromInt(100)
	PriorityCeiling      = decimal.NewFromInt(10)
	PriorityWeight       = decimal.NewFromInt(5)
	ProvisionalHealth    = decimal.NewFromInt(95)
	PreferDelta          = decimal.NewFromInt(50)
	AvoidDelta           = decimal.NewFromInt(-50)
	LatencyPenaltyFactor = decimal.NewFromInt(100)
)

// Health thresholds. Gateways without a metric are treated as having the
// provisional success rate and latency below.
var (
	MinHealthySuccessRate     = decimal.NewFromInt(80)
	ProvisionalSuccessRate    = decimal.NewFromInt(95)
	ProvisionalLatencyMs      = int64(1000)
	MaxHealthyLatencyMs       = int64(5000)
	DefaultGatewayCallTimeout = 30 * time.Second
	DefaultHealthRetention    = 7 * 24 * time.Hour
)

// Attempt and notification sources
const (
	SourceProcess = "process"
	SourceWebhook = "webhook"
	SourceRefund  = "refund"
	SourceCancel  = "cancel"
	SourceSync    = "sync"
)

const (
	errorMessageMaxLength = 1000
	notifyTimeout         = 5 * time.Second
	// Listing caps for the read-side helpers that bypass pagination.
	maxStuckBatch = 500
)
