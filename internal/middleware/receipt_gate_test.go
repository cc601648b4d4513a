package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"x402router/internal/models"
	"x402router/internal/store"
)

func gateServer(t *testing.T) (*echo.Echo, *store.MemoryStore) {
	t.Helper()

	sessions := store.NewMemoryStore()

	e := echo.New()
	e.HTTPErrorHandler = JSONErrorHandler
	premium := e.Group("/premium")
	premium.Use(RequireReceipt(sessions, nil))
	premium.GET("/report/:id", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"sessionId": c.Get("paymentSessionID"),
		})
	})
	return e, sessions
}

func completedSession(t *testing.T, sessions *store.MemoryStore, id, receipt string) {
	t.Helper()

	session := &models.PaymentSession{
		ID:           id,
		ResourceType: "report",
		ResourceID:   "r1",
		Amount:       decimal.NewFromFloat(5.00),
		Currency:     "usd",
		Rail:         models.RailCard,
		Status:       models.SessionPending,
		ExpiresAt:    time.Now().Add(30 * time.Minute),
	}
	if err := sessions.Create(context.Background(), session); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if _, _, err := sessions.TryTransition(context.Background(), id, models.SessionPending, models.SessionCompleted, func(s *models.PaymentSession) {
		s.Receipt = receipt
	}); err != nil {
		t.Fatalf("TryTransition returned error: %v", err)
	}
}

func TestRequireReceiptAdmitsCompletedSession(t *testing.T) {
	e, sessions := gateServer(t)
	completedSession(t, sessions, "ps_1", "rcpt_valid")

	req := httptest.NewRequest(http.MethodGet, "/premium/report/42", nil)
	req.Header.Set(ReceiptHeader, "rcpt_valid")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d; want 200, body %s", rec.Code, rec.Body.String())
	}
}

func TestRequireReceiptRejects(t *testing.T) {
	e, sessions := gateServer(t)
	completedSession(t, sessions, "ps_1", "rcpt_valid")

	// A pending session's receipt cannot exist, but simulate a stale token
	// pointing at a non-completed session anyway.
	pending := &models.PaymentSession{
		ID:        "ps_2",
		Status:    models.SessionPending,
		Rail:      models.RailCard,
		Currency:  "usd",
		ExpiresAt: time.Now().Add(30 * time.Minute),
	}
	if err := sessions.Create(context.Background(), pending); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	tests := []struct {
		name    string
		receipt string
	}{
		{"missing header", ""},
		{"unknown receipt", "rcpt_forged"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/premium/report/42", nil)
			if tt.receipt != "" {
				req.Header.Set(ReceiptHeader, tt.receipt)
			}
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			if rec.Code != http.StatusPaymentRequired {
				t.Errorf("status = %d; want 402", rec.Code)
			}
		})
	}
}
