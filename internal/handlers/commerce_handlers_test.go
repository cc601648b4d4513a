package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	x402middleware "x402router/internal/middleware"
	"x402router/internal/rails"
	"x402router/internal/services"
	"x402router/internal/store"
)

// testServer wires an Echo instance the way cmd/server does, against the
// in-memory store and accept-all verifiers.
func testServer(t *testing.T) (*echo.Echo, *store.MemoryStore) {
	t.Helper()

	sessions := store.NewMemoryStore()
	catalog := services.DefaultCatalog()
	meter := services.NewUsageMeter()
	issuer := services.NewReceiptIssuer("test-secret")
	checkout := services.NewCheckoutInitiator(catalog, sessions, "", "")
	confirmer := services.NewConfirmationHandler(sessions, rails.VerifierSet{
		Card:   rails.StaticVerifier{Accept: true},
		Crypto: rails.StaticVerifier{Accept: true},
	}, issuer, nil)

	h := NewCommerceHandler(catalog, meter, checkout, confirmer, sessions, nil)

	e := echo.New()
	e.HTTPErrorHandler = x402middleware.JSONErrorHandler
	e.GET("/pricing", h.Pricing)
	e.POST("/checkout", h.Checkout)
	e.POST("/confirm", h.Confirm)
	e.GET("/receipt/:sessionId", h.Receipt)
	e.GET("/session/:sessionId", h.Session)
	e.POST("/usage", h.Usage)
	return e, sessions
}

func doJSON(t *testing.T, e *echo.Echo, method, path, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()

	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	var decoded map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
		t.Fatalf("response %q is not JSON: %v", rec.Body.String(), err)
	}
	return rec, decoded
}

func TestPricingDocument(t *testing.T) {
	e, _ := testServer(t)

	rec, body := doJSON(t, e, http.MethodGet, "/pricing", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d; want 200", rec.Code)
	}

	resources, ok := body["resources"].([]interface{})
	if !ok || len(resources) == 0 {
		t.Fatal("pricing document has no resources")
	}
	first := resources[0].(map[string]interface{})
	for _, key := range []string{"type", "price", "priceSmallest", "currency", "description"} {
		if _, ok := first[key]; !ok {
			t.Errorf("resource entry missing %q", key)
		}
	}

	networks, ok := body["acceptedNetworks"].([]interface{})
	if !ok || len(networks) != 2 {
		t.Fatalf("acceptedNetworks = %v; want [card crypto]", body["acceptedNetworks"])
	}
}

func TestCheckoutConfirmHappyPath(t *testing.T) {
	e, _ := testServer(t)

	rec, body := doJSON(t, e, http.MethodPost, "/checkout",
		`{"resourceType":"report","resourceId":"r1","rail":"card"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("checkout status = %d, body %v", rec.Code, body)
	}
	if body["status"] != "pending" {
		t.Errorf("checkout status field = %v; want pending", body["status"])
	}
	if body["amount"] != "5.00" {
		t.Errorf("amount = %v; want catalog price 5.00", body["amount"])
	}
	sessionID, _ := body["sessionId"].(string)
	if sessionID == "" {
		t.Fatal("checkout returned no sessionId")
	}
	if _, ok := body["checkoutInstructions"].(map[string]interface{}); !ok {
		t.Error("checkout returned no instructions")
	}
	if _, err := time.Parse(time.RFC3339, body["expiresAt"].(string)); err != nil {
		t.Errorf("expiresAt %v is not RFC3339", body["expiresAt"])
	}

	rec, body = doJSON(t, e, http.MethodPost, "/confirm",
		`{"sessionId":"`+sessionID+`","cardPaymentIntentId":"pi_1"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("confirm status = %d, body %v", rec.Code, body)
	}
	if body["status"] != "completed" {
		t.Errorf("confirm status = %v; want completed", body["status"])
	}
	receipt, _ := body["receipt"].(string)
	if receipt == "" {
		t.Fatal("confirm returned no receipt")
	}
	hint, ok := body["usageHint"].(map[string]interface{})
	if !ok || hint["header"] != ReceiptHeader || hint["value"] != receipt {
		t.Errorf("usageHint = %v; want header %s carrying the receipt", body["usageHint"], ReceiptHeader)
	}

	// Double confirm replays the same receipt as already_completed.
	rec, body = doJSON(t, e, http.MethodPost, "/confirm",
		`{"sessionId":"`+sessionID+`","cardPaymentIntentId":"pi_other"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("second confirm status = %d", rec.Code)
	}
	if body["status"] != "already_completed" {
		t.Errorf("second confirm status = %v; want already_completed", body["status"])
	}
	if body["receipt"] != receipt {
		t.Errorf("second confirm receipt = %v; want %v", body["receipt"], receipt)
	}

	// Receipt endpoint reflects the completed session.
	rec, body = doJSON(t, e, http.MethodGet, "/receipt/"+sessionID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("receipt status = %d", rec.Code)
	}
	if body["receipt"] != receipt || body["resourceType"] != "report" || body["resourceId"] != "r1" {
		t.Errorf("receipt body = %v", body)
	}
}

func TestCheckoutErrors(t *testing.T) {
	e, _ := testServer(t)

	tests := []struct {
		name string
		body string
	}{
		{"missing resourceType", `{"resourceId":"r1"}`},
		{"missing resourceId", `{"resourceType":"report"}`},
		{"unknown resource", `{"resourceType":"yacht","resourceId":"r1"}`},
		{"invalid rail", `{"resourceType":"report","resourceId":"r1","rail":"barter"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := doJSON(t, e, http.MethodPost, "/checkout", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d; want 400", rec.Code)
			}
			if msg, _ := body["error"].(string); msg == "" {
				t.Errorf(`error body = %v; want {"error": string}`, body)
			}
		})
	}
}

func TestConfirmErrors(t *testing.T) {
	e, _ := testServer(t)

	rec, body := doJSON(t, e, http.MethodPost, "/confirm", `{"cardPaymentIntentId":"pi_1"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing sessionId status = %d; want 400", rec.Code)
	}

	rec, body = doJSON(t, e, http.MethodPost, "/confirm", `{"sessionId":"ps_ghost"}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown session status = %d; want 404", rec.Code)
	}
	if msg, _ := body["error"].(string); msg == "" {
		t.Errorf(`error body = %v; want {"error": string}`, body)
	}
}

func TestConfirmExpiredSessionOverHTTP(t *testing.T) {
	e, sessions := testServer(t)

	_, body := doJSON(t, e, http.MethodPost, "/checkout",
		`{"resourceType":"report","resourceId":"r1"}`)
	sessionID := body["sessionId"].(string)

	sessions.SetClock(func() time.Time { return time.Now().Add(31 * time.Minute) })

	rec, body := doJSON(t, e, http.MethodPost, "/confirm",
		`{"sessionId":"`+sessionID+`","cardPaymentIntentId":"pi_1"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expired confirm status = %d; want 400", rec.Code)
	}
	if msg, _ := body["error"].(string); !strings.Contains(msg, "expired") {
		t.Errorf("error = %q; want mention of expired", msg)
	}
}

func TestReceiptNotCompleted(t *testing.T) {
	e, _ := testServer(t)

	_, body := doJSON(t, e, http.MethodPost, "/checkout",
		`{"resourceType":"report","resourceId":"r1"}`)
	sessionID := body["sessionId"].(string)

	rec, _ := doJSON(t, e, http.MethodGet, "/receipt/"+sessionID, "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("receipt for pending session status = %d; want 400", rec.Code)
	}

	rec, _ = doJSON(t, e, http.MethodGet, "/receipt/ps_ghost", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("receipt for unknown session status = %d; want 404", rec.Code)
	}
}

func TestSessionIntrospection(t *testing.T) {
	e, _ := testServer(t)

	_, body := doJSON(t, e, http.MethodPost, "/checkout",
		`{"resourceType":"report","resourceId":"r1","rail":"crypto"}`)
	sessionID := body["sessionId"].(string)

	rec, body := doJSON(t, e, http.MethodGet, "/session/"+sessionID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("session status = %d; want 200", rec.Code)
	}
	if body["status"] != "pending" || body["rail"] != "crypto" {
		t.Errorf("session body = %v", body)
	}
}

func TestUsageEndpoint(t *testing.T) {
	e, _ := testServer(t)

	rec, body := doJSON(t, e, http.MethodPost, "/usage",
		`{"agentId":"agent-7","tokens":2000,"taskType":"REASONING"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("usage status = %d, body %v", rec.Code, body)
	}
	if body["taskType"] != "REASONING" || body["multiplier"] != 1.5 {
		t.Errorf("usage body = %v", body)
	}
	if body["cost"] != 0.03 {
		t.Errorf("cost = %v; want 0.03", body["cost"])
	}

	// Unknown task type is echoed back as the CODE_GEN fallback.
	_, body = doJSON(t, e, http.MethodPost, "/usage",
		`{"agentId":"agent-7","tokens":1000,"taskType":"JUGGLING"}`)
	if body["taskType"] != "CODE_GEN" || body["multiplier"] != 1.0 {
		t.Errorf("fallback usage body = %v", body)
	}

	for name, payload := range map[string]string{
		"missing agentId": `{"tokens":1000}`,
		"missing tokens":  `{"agentId":"agent-7"}`,
		"negative tokens": `{"agentId":"agent-7","tokens":-5}`,
	} {
		t.Run(name, func(t *testing.T) {
			rec, _ := doJSON(t, e, http.MethodPost, "/usage", payload)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d; want 400", rec.Code)
			}
		})
	}
}
