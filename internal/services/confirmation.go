package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"x402router/internal/models"
	"x402router/internal/rails"
	"x402router/internal/store"
)

// ErrPaymentFailed is returned when the rail rejected the payment proof.
// The session is terminal at that point; the caller must open a new one.
var ErrPaymentFailed = errors.New("payment verification failed")

// NotConfirmableError reports a confirm attempt against a session already in
// a terminal non-completed state, carrying that state for caller diagnostics.
type NotConfirmableError struct {
	Status models.SessionStatus
}

func (e *NotConfirmableError) Error() string {
	return fmt.Sprintf("session is not confirmable: status is %s", e.Status)
}

// ConfirmProof carries the rail-specific payment evidence
type ConfirmProof struct {
	CardPaymentIntentID string
	TxHash              string
}

// ConfirmResult is a successful (or idempotently replayed) confirmation
type ConfirmResult struct {
	Session          *models.PaymentSession
	Receipt          string
	AlreadyCompleted bool
}

// ConfirmationHandler orchestrates verification, the idempotent state
// transition, and receipt issuance. All mutation goes through the store's
// compare-and-swap, so concurrent confirms (or a confirm racing expiry)
// resolve to exactly one completed transition.
type ConfirmationHandler struct {
	store     store.SessionStore
	verifiers rails.VerifierSet
	issuer    *ReceiptIssuer
	cache     *RedisCache

	verifyTimeout time.Duration
	maxAttempts   int
}

// NewConfirmationHandler wires the confirmation service. cache may be nil.
func NewConfirmationHandler(sessions store.SessionStore, verifiers rails.VerifierSet, issuer *ReceiptIssuer, cache *RedisCache) *ConfirmationHandler {
	return &ConfirmationHandler{
		store:         sessions,
		verifiers:     verifiers,
		issuer:        issuer,
		cache:         cache,
		verifyTimeout: 15 * time.Second,
		maxAttempts:   3,
	}
}

// Confirm drives a session to its terminal state for the given proof.
// Confirming an already-completed session is a success that replays the
// stored receipt unchanged; callers retry after lost responses.
func (h *ConfirmationHandler) Confirm(ctx context.Context, sessionID string, proof ConfirmProof) (*ConfirmResult, error) {
	session, err := h.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if result, err := h.resolveTerminal(session); result != nil || err != nil {
		return result, err
	}

	// Resolve the proof field matching the session's rail. A missing proof
	// gets a synthetic id so the audit trail stays total; a production
	// deployment should reject instead.
	paymentID := proof.CardPaymentIntentID
	if session.Rail == models.RailCrypto {
		paymentID = proof.TxHash
	}
	if paymentID == "" {
		paymentID = "sim_" + uuid.NewString()
		log.Printf("Warning: confirm for session %s carried no payment proof, using synthetic id %s", session.ID, paymentID)
	}

	ok, err := h.verify(ctx, session.Rail, paymentID)
	if err != nil {
		// Could not ask the rail, even after retries. Distinct from a
		// rejection in the logs, identical terminal state for the caller.
		log.Printf("Verifier unreachable for session %s: %v", session.ID, err)
		return h.fail(ctx, session, paymentID)
	}
	if !ok {
		log.Printf("Rail rejected payment %s for session %s", paymentID, session.ID)
		return h.fail(ctx, session, paymentID)
	}

	receipt := h.issuer.Issue(session, paymentID)
	completedAt := time.Now()
	applied, current, err := h.store.TryTransition(ctx, session.ID, models.SessionPending, models.SessionCompleted, func(s *models.PaymentSession) {
		s.Receipt = receipt
		s.PaymentProofID = paymentID
		s.CompletedAt = &completedAt
	})
	if err != nil {
		return nil, err
	}
	if !applied {
		// Lost the race to another confirm or to expiry; report whatever
		// state won.
		if result, terr := h.resolveTerminal(current); result != nil || terr != nil {
			return result, terr
		}
		return nil, &NotConfirmableError{Status: current.Status}
	}

	h.cache.CacheReceipt(ctx, receipt, current.ID, 24*time.Hour)

	return &ConfirmResult{Session: current, Receipt: current.Receipt}, nil
}

// resolveTerminal maps a terminal session to its confirm outcome:
// completed replays the receipt, expired/failed are not confirmable,
// pending yields (nil, nil) so confirmation proceeds.
func (h *ConfirmationHandler) resolveTerminal(session *models.PaymentSession) (*ConfirmResult, error) {
	switch session.Status {
	case models.SessionCompleted:
		return &ConfirmResult{Session: session, Receipt: session.Receipt, AlreadyCompleted: true}, nil
	case models.SessionExpired, models.SessionFailed:
		return nil, &NotConfirmableError{Status: session.Status}
	default:
		return nil, nil
	}
}

// verify asks the rail, retrying bounded times on transport errors only.
// A rejection is final on the first answer.
func (h *ConfirmationHandler) verify(ctx context.Context, rail models.Rail, paymentID string) (bool, error) {
	verifier := h.verifiers.ForRail(rail)

	var lastErr error
	for attempt := 1; attempt <= h.maxAttempts; attempt++ {
		vctx, cancel := context.WithTimeout(ctx, h.verifyTimeout)
		ok, err := verifier.Verify(vctx, paymentID)
		cancel()

		if err == nil {
			return ok, nil
		}
		lastErr = err
		log.Printf("Verify attempt %d/%d on %s rail failed: %v", attempt, h.maxAttempts, rail, err)
	}
	return false, lastErr
}

// fail drives the session to failed, yielding to any concurrent success
func (h *ConfirmationHandler) fail(ctx context.Context, session *models.PaymentSession, paymentID string) (*ConfirmResult, error) {
	applied, current, err := h.store.TryTransition(ctx, session.ID, models.SessionPending, models.SessionFailed, func(s *models.PaymentSession) {
		s.PaymentProofID = paymentID
	})
	if err != nil {
		return nil, err
	}
	if !applied && current.Status == models.SessionCompleted {
		// A concurrent confirm won with a successful verification; the
		// completed state stands and its receipt is replayed.
		return &ConfirmResult{Session: current, Receipt: current.Receipt, AlreadyCompleted: true}, nil
	}
	return nil, ErrPaymentFailed
}
