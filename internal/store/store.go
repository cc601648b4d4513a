// Package store holds payment sessions and owns the only mutation path
// for their status: a compare-and-swap transition keyed by session id.
package store

import (
	"context"
	"errors"

	"x402router/internal/models"
)

var (
	// ErrSessionNotFound is returned when no session exists for an id or receipt
	ErrSessionNotFound = errors.New("payment session not found")
	// ErrDuplicateSession is returned when Create sees an id that already exists.
	// Ids are generated from crypto-random UUIDs, so hitting this indicates a bug.
	ErrDuplicateSession = errors.New("payment session id already exists")
)

// MutateFunc adjusts a session's non-status fields during a transition.
// It runs only when the compare-and-swap applies.
type MutateFunc func(*models.PaymentSession)

// SessionStore is keyed, concurrency-safe storage for payment sessions.
//
// Both implementations evaluate expiry lazily: any Get or TryTransition on a
// pending session past its ExpiresAt first flips it to expired through the
// same compare-and-swap path, so a stale pending session is never confirmable
// after its window closes, with or without the background sweeper.
type SessionStore interface {
	// Create inserts a brand-new pending session. ErrDuplicateSession on
	// id collision.
	Create(ctx context.Context, session *models.PaymentSession) error

	// Get returns a copy of the session, or ErrSessionNotFound.
	Get(ctx context.Context, id string) (*models.PaymentSession, error)

	// GetByReceipt resolves a completed session from its receipt token.
	GetByReceipt(ctx context.Context, receipt string) (*models.PaymentSession, error)

	// TryTransition applies mutate and sets status to next only if the stored
	// record's status currently equals expected. It reports whether the swap
	// applied and returns the resulting current record either way. This is
	// what keeps two racing confirmations, or a confirmation racing expiry,
	// from double-completing a session.
	TryTransition(ctx context.Context, id string, expected, next models.SessionStatus, mutate MutateFunc) (bool, *models.PaymentSession, error)

	// ExpireOverdue flips every overdue pending session to expired and
	// returns how many it touched. Cleanup/metrics only; correctness never
	// depends on it.
	ExpireOverdue(ctx context.Context) (int64, error)
}
