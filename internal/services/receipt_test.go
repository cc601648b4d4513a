package services

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"x402router/internal/models"
)

func receiptSession(id string) *models.PaymentSession {
	return &models.PaymentSession{
		ID:           id,
		ResourceType: "report",
		ResourceID:   "r1",
		Amount:       decimal.NewFromFloat(5.00),
		Currency:     "usd",
		Rail:         models.RailCard,
	}
}

func TestIssueIsDeterministic(t *testing.T) {
	issuer := NewReceiptIssuer("test-secret")
	session := receiptSession("ps_1")

	first := issuer.Issue(session, "pi_1")
	second := issuer.Issue(session, "pi_1")

	if first != second {
		t.Errorf("same inputs issued different receipts: %s vs %s", first, second)
	}
	if !strings.HasPrefix(first, "rcpt_") {
		t.Errorf("receipt %q lacks rcpt_ prefix", first)
	}
}

func TestIssueBindsToSessionFields(t *testing.T) {
	issuer := NewReceiptIssuer("test-secret")
	base := issuer.Issue(receiptSession("ps_1"), "pi_1")

	variants := map[string]*models.PaymentSession{
		"different session id": receiptSession("ps_2"),
	}

	other := receiptSession("ps_1")
	other.ResourceID = "r2"
	variants["different resource"] = other

	amended := receiptSession("ps_1")
	amended.Amount = decimal.NewFromFloat(50.00)
	variants["different amount"] = amended

	railed := receiptSession("ps_1")
	railed.Rail = models.RailCrypto
	variants["different rail"] = railed

	for name, session := range variants {
		if got := issuer.Issue(session, "pi_1"); got == base {
			t.Errorf("%s produced an identical receipt", name)
		}
	}

	if got := issuer.Issue(receiptSession("ps_1"), "pi_2"); got == base {
		t.Error("different payment proof produced an identical receipt")
	}
}

func TestIssueDependsOnSecret(t *testing.T) {
	session := receiptSession("ps_1")

	a := NewReceiptIssuer("secret-a").Issue(session, "pi_1")
	b := NewReceiptIssuer("secret-b").Issue(session, "pi_1")

	if a == b {
		t.Error("different secrets produced an identical receipt")
	}
}
