package services

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"log"
	"strings"

	"x402router/internal/models"
)

// ReceiptIssuer derives the opaque receipt token bound to a completed
// session. The token is an HMAC-SHA256 over the session's immutable fields
// plus the payment proof, keyed with a server-held secret, so a receipt
// holder cannot forge one for a different resource or amount and the
// resource gate can recompute it without trusting the caller.
type ReceiptIssuer struct {
	secret []byte
}

// NewReceiptIssuer creates an issuer from the configured secret. When the
// secret is empty a process-local random one is generated; receipts then do
// not survive a restart, which only suits the in-memory store.
func NewReceiptIssuer(secret string) *ReceiptIssuer {
	key := []byte(secret)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			log.Fatalf("Failed to generate receipt secret: %v", err)
		}
		log.Println("Warning: RECEIPT_SECRET not set, using a process-local secret")
	}
	return &ReceiptIssuer{secret: key}
}

// Issue derives the receipt token. The derivation is deterministic: the same
// session and payment id always yield the same token, which is what lets a
// retried confirmation replay the identical receipt.
func (r *ReceiptIssuer) Issue(session *models.PaymentSession, paymentID string) string {
	mac := hmac.New(sha256.New, r.secret)
	mac.Write([]byte(strings.Join([]string{
		session.ID,
		paymentID,
		string(session.Rail),
		session.Amount.String(),
		session.Currency,
		session.ResourceID,
	}, "|")))
	return "rcpt_" + hex.EncodeToString(mac.Sum(nil))
}
