package rails

import (
	"context"
	"fmt"

	"github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/coreapi"
)

// MidtransVerifier checks a card payment-intent id against Midtrans by
// looking up the transaction status for that order id.
type MidtransVerifier struct {
	client coreapi.Client
}

// NewMidtransVerifier builds a card-rail verifier from a Midtrans server key
func NewMidtransVerifier(serverKey string, production bool) *MidtransVerifier {
	env := midtrans.Sandbox
	if production {
		env = midtrans.Production
	}

	var c coreapi.Client
	c.New(serverKey, env)

	return &MidtransVerifier{client: c}
}

// Verify treats settlement/capture as paid, every other known status as
// rejected, and a gateway-side failure as a retryable transport error.
// The Midtrans client manages its own HTTP deadlines; ctx is accepted for
// contract symmetry.
func (v *MidtransVerifier) Verify(ctx context.Context, paymentID string) (bool, error) {
	resp, err := v.client.CheckTransaction(paymentID)
	if err != nil {
		if err.StatusCode == 0 || err.StatusCode >= 500 {
			return false, fmt.Errorf("midtrans check transaction: %w", err)
		}
		// 4xx from the gateway: the proof does not exist or is not ours.
		return false, nil
	}

	switch resp.TransactionStatus {
	case "settlement", "capture":
		return true, nil
	default:
		// deny, expire, cancel, failure, or still pending on the rail.
		return false, nil
	}
}
