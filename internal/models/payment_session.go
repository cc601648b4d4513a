package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Rail identifies the settlement network a session pays through
type Rail string

const (
	RailCard   Rail = "card"
	RailCrypto Rail = "crypto"
)

// ValidRail reports whether r is a supported payment rail
func ValidRail(r Rail) bool {
	return r == RailCard || r == RailCrypto
}

// SessionStatus is the lifecycle state of a payment session.
// Transitions are one-way: pending -> completed|failed|expired, all terminal.
type SessionStatus string

const (
	SessionPending   SessionStatus = "pending"
	SessionCompleted SessionStatus = "completed"
	SessionFailed    SessionStatus = "failed"
	SessionExpired   SessionStatus = "expired"
)

// Terminal reports whether the status can never change again
func (s SessionStatus) Terminal() bool {
	return s == SessionCompleted || s == SessionFailed || s == SessionExpired
}

// PaymentSession represents a single priced-resource payment attempt,
// from checkout until confirmation or expiry. Sessions are never deleted;
// expiry flips the status so expired confirm attempts stay auditable.
type PaymentSession struct {
	ID           string          `gorm:"primaryKey;type:varchar(64)" json:"id"`
	ResourceType string          `gorm:"type:varchar(100);index" json:"resource_type"`
	ResourceID   string          `gorm:"type:varchar(100)" json:"resource_id"`
	Amount       decimal.Decimal `gorm:"type:decimal(15,2)" json:"amount"`
	AmountCents  int64           `json:"amount_cents"`
	Currency     string          `gorm:"type:varchar(10)" json:"currency"`
	Rail         Rail            `gorm:"type:varchar(20);not null" json:"rail"`
	Status       SessionStatus   `gorm:"type:varchar(20);not null;index" json:"status"`

	// Receipt is set exactly once, on the transition into completed.
	Receipt        string `gorm:"type:varchar(128);index" json:"receipt,omitempty"`
	PaymentProofID string `gorm:"type:varchar(200)" json:"payment_proof_id,omitempty"`

	AgentID  string          `gorm:"type:varchar(100)" json:"agent_id,omitempty"`
	Metadata json.RawMessage `gorm:"type:jsonb" json:"metadata,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	ExpiresAt   time.Time  `gorm:"index" json:"expires_at"`
}

// Clone returns a deep copy so callers can never mutate a stored record
// outside the store's compare-and-swap path.
func (s *PaymentSession) Clone() *PaymentSession {
	cp := *s
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		cp.CompletedAt = &t
	}
	if s.Metadata != nil {
		cp.Metadata = append(json.RawMessage(nil), s.Metadata...)
	}
	return &cp
}
