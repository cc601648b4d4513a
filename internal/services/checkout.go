package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"x402router/internal/models"
	"x402router/internal/store"
)

// SessionTTL is how long a pending session stays confirmable
const SessionTTL = 30 * time.Minute

var (
	// ErrMissingField is returned when a required checkout field is absent
	ErrMissingField = errors.New("missing required field")
	// ErrUnknownResource is returned for a resource type outside the catalog
	ErrUnknownResource = errors.New("unknown resource type")
	// ErrInvalidRail is returned for a rail other than card or crypto
	ErrInvalidRail = errors.New("invalid payment rail")
)

// CheckoutRequest is what an agent submits to open a payment session
type CheckoutRequest struct {
	ResourceType string
	ResourceID   string
	Rail         string
	AgentID      string
	Metadata     json.RawMessage
}

// ConfirmInstruction tells the agent how to confirm once it has paid
type ConfirmInstruction struct {
	Endpoint   string `json:"endpoint"`
	ProofField string `json:"proofField"`
}

// CheckoutInstructions are the rail-specific payment directions
type CheckoutInstructions struct {
	Method        models.Rail        `json:"method"`
	CheckoutURL   string             `json:"checkoutUrl,omitempty"`
	WalletAddress string             `json:"walletAddress,omitempty"`
	Chain         string             `json:"chain,omitempty"`
	Token         string             `json:"token,omitempty"`
	Confirm       ConfirmInstruction `json:"confirm"`
}

// CheckoutResult pairs the new pending session with its instructions
type CheckoutResult struct {
	Session      *models.PaymentSession
	Instructions CheckoutInstructions
}

// CheckoutInitiator opens payment sessions: it validates the request,
// snapshots the catalog price, and writes exactly one pending session.
// No rail is contacted at checkout; the verification happens at confirm time.
type CheckoutInitiator struct {
	catalog *PricingCatalog
	store   store.SessionStore

	checkoutBaseURL string
	walletAddress   string
	chain           string
	token           string
	now             func() time.Time
}

// NewCheckoutInitiator wires a checkout service over the catalog and store
func NewCheckoutInitiator(catalog *PricingCatalog, sessions store.SessionStore, checkoutBaseURL, walletAddress string) *CheckoutInitiator {
	if checkoutBaseURL == "" {
		checkoutBaseURL = "https://pay.example.com/checkout"
	}
	if walletAddress == "" {
		walletAddress = "0x0000000000000000000000000000000000000402"
	}
	return &CheckoutInitiator{
		catalog:         catalog,
		store:           sessions,
		checkoutBaseURL: checkoutBaseURL,
		walletAddress:   walletAddress,
		chain:           "base",
		token:           "USDC",
		now:             time.Now,
	}
}

// SetClock overrides the clock used for session timestamps. Test hook.
func (s *CheckoutInitiator) SetClock(now func() time.Time) { s.now = now }

// Checkout validates the request and opens a pending session
func (s *CheckoutInitiator) Checkout(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	// 1. Required fields
	if req.ResourceType == "" {
		return nil, fmt.Errorf("%w: resourceType", ErrMissingField)
	}
	if req.ResourceID == "" {
		return nil, fmt.Errorf("%w: resourceId", ErrMissingField)
	}

	// 2. Price lookup
	price, ok := s.catalog.Lookup(req.ResourceType)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownResource, req.ResourceType)
	}

	// 3. Rail selection, card by default
	rail := models.RailCard
	if req.Rail != "" {
		rail = models.Rail(req.Rail)
		if !models.ValidRail(rail) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidRail, req.Rail)
		}
	}

	// 4. New pending session with the price snapshotted; later catalog
	// changes must not touch an open session.
	now := s.now()
	session := &models.PaymentSession{
		ID:           "ps_" + uuid.NewString(),
		ResourceType: req.ResourceType,
		ResourceID:   req.ResourceID,
		Amount:       price.Amount,
		AmountCents:  price.AmountCents(),
		Currency:     price.Currency,
		Rail:         rail,
		Status:       models.SessionPending,
		AgentID:      req.AgentID,
		Metadata:     req.Metadata,
		ExpiresAt:    now.Add(SessionTTL),
	}

	if err := s.store.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create payment session: %w", err)
	}

	return &CheckoutResult{
		Session:      session,
		Instructions: s.instructionsFor(session),
	}, nil
}

func (s *CheckoutInitiator) instructionsFor(session *models.PaymentSession) CheckoutInstructions {
	if session.Rail == models.RailCrypto {
		return CheckoutInstructions{
			Method:        models.RailCrypto,
			WalletAddress: s.walletAddress,
			Chain:         s.chain,
			Token:         s.token,
			Confirm: ConfirmInstruction{
				Endpoint:   "/confirm",
				ProofField: "txHash",
			},
		}
	}
	return CheckoutInstructions{
		Method:      models.RailCard,
		CheckoutURL: fmt.Sprintf("%s/%s", s.checkoutBaseURL, session.ID),
		Confirm: ConfirmInstruction{
			Endpoint:   "/confirm",
			ProofField: "cardPaymentIntentId",
		},
	}
}
