package services

import (
	"github.com/shopspring/decimal"
)

// DefaultTaskType is substituted when a usage call names no task type or an
// unrecognized one. The substitution is deliberate leniency, not rejection,
// and the effective type is always echoed back to the caller.
const DefaultTaskType = "CODE_GEN"

// UsageMeter converts token usage into monetary cost. It is stateless: each
// call stands alone and aggregation belongs to the billing system.
type UsageMeter struct {
	baseRate    decimal.Decimal // cost per 1K tokens
	multipliers map[string]decimal.Decimal
	currency    string
}

// NewUsageMeter creates a meter with the fixed base rate and multiplier table
func NewUsageMeter() *UsageMeter {
	return &UsageMeter{
		baseRate: decimal.NewFromFloat(0.01),
		multipliers: map[string]decimal.Decimal{
			"CODE_GEN":  decimal.NewFromFloat(1.0),
			"CHAT":      decimal.NewFromFloat(0.8),
			"REASONING": decimal.NewFromFloat(1.5),
			"EMBEDDING": decimal.NewFromFloat(0.1),
			"SEARCH":    decimal.NewFromFloat(1.2),
		},
		currency: "usd",
	}
}

// UsageCost is the result of a single metering calculation
type UsageCost struct {
	Tokens     int64
	TaskType   string // effective task type after the CODE_GEN fallback
	Multiplier decimal.Decimal
	Cost       decimal.Decimal
	Currency   string
}

// ComputeCost prices the given token count:
// cost = (tokens / 1000) * baseRate * multiplier.
// Tokens must already be validated non-negative by the caller.
func (m *UsageMeter) ComputeCost(tokens int64, taskType string) UsageCost {
	effective := taskType
	multiplier, ok := m.multipliers[taskType]
	if !ok {
		effective = DefaultTaskType
		multiplier = m.multipliers[DefaultTaskType]
	}

	cost := decimal.NewFromInt(tokens).
		Div(decimal.NewFromInt(1000)).
		Mul(m.baseRate).
		Mul(multiplier)

	return UsageCost{
		Tokens:     tokens,
		TaskType:   effective,
		Multiplier: multiplier,
		Cost:       cost,
		Currency:   m.currency,
	}
}
