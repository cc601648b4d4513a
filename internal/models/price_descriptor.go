package models

import "github.com/shopspring/decimal"

// PriceDescriptor is an immutable catalog entry for a priced resource type.
// Amount is in major currency units (dollars for usd).
type PriceDescriptor struct {
	ResourceType string          `json:"resource_type"`
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency"`
	Description  string          `json:"description"`
}

// AmountCents returns the price in the smallest currency unit
func (p PriceDescriptor) AmountCents() int64 {
	return p.Amount.Mul(decimal.NewFromInt(100)).IntPart()
}
