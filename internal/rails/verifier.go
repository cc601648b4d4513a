// Package rails adapts the external payment networks behind a single
// verification contract. Real settlement lives on the rail; the engine only
// asks "did this proof pay?".
package rails

import (
	"context"

	"x402router/internal/models"
)

// Verifier confirms a payment proof against one rail.
//
// The (bool, error) split matters downstream: (false, nil) means the rail
// rejected the proof and the session must fail; a non-nil error means the
// rail could not be asked (timeout, unreachable) and the call may be retried.
type Verifier interface {
	Verify(ctx context.Context, paymentID string) (bool, error)
}

// VerifierFunc adapts a plain function to the Verifier interface
type VerifierFunc func(ctx context.Context, paymentID string) (bool, error)

func (f VerifierFunc) Verify(ctx context.Context, paymentID string) (bool, error) {
	return f(ctx, paymentID)
}

// VerifierSet maps each rail to its verifier
type VerifierSet struct {
	Card   Verifier
	Crypto Verifier
}

// ForRail selects the verifier matching the session's rail
func (v VerifierSet) ForRail(rail models.Rail) Verifier {
	if rail == models.RailCrypto {
		return v.Crypto
	}
	return v.Card
}

// StaticVerifier accepts or rejects every proof unconditionally. It is the
// default when no rail credentials are configured and the workhorse in tests.
// Accepting without asking the rail is NOT production-safe: wire a real
// verifier before trusting receipts for anything of value.
type StaticVerifier struct {
	Accept bool
}

func (s StaticVerifier) Verify(ctx context.Context, paymentID string) (bool, error) {
	return s.Accept, nil
}
