package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"x402router/internal/models"
	"x402router/internal/services"
	"x402router/internal/store"
)

// ReceiptHeader is the header a downstream resource gate checks
const ReceiptHeader = "X-402-Receipt"

// CommerceHandler serves the payment session and usage endpoints
type CommerceHandler struct {
	catalog   *services.PricingCatalog
	meter     *services.UsageMeter
	checkout  *services.CheckoutInitiator
	confirmer *services.ConfirmationHandler
	sessions  store.SessionStore
	cache     *services.RedisCache
}

// NewCommerceHandler wires the handler with its injected services
func NewCommerceHandler(catalog *services.PricingCatalog, meter *services.UsageMeter, checkout *services.CheckoutInitiator, confirmer *services.ConfirmationHandler, sessions store.SessionStore, cache *services.RedisCache) *CommerceHandler {
	return &CommerceHandler{
		catalog:   catalog,
		meter:     meter,
		checkout:  checkout,
		confirmer: confirmer,
		sessions:  sessions,
		cache:     cache,
	}
}

type pricingResource struct {
	Type          string `json:"type"`
	Price         string `json:"price"`
	PriceSmallest int64  `json:"priceSmallest"`
	Currency      string `json:"currency"`
	Description   string `json:"description"`
}

// Pricing renders the public pricing document
func (h *CommerceHandler) Pricing(c echo.Context) error {
	descriptors := h.catalog.ListAll()
	resources := make([]pricingResource, 0, len(descriptors))
	for _, d := range descriptors {
		resources = append(resources, pricingResource{
			Type:          d.ResourceType,
			Price:         d.Amount.StringFixed(2),
			PriceSmallest: d.AmountCents(),
			Currency:      d.Currency,
			Description:   d.Description,
		})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"resources":        resources,
		"acceptedNetworks": []models.Rail{models.RailCard, models.RailCrypto},
	})
}

type checkoutRequest struct {
	ResourceType string          `json:"resourceType"`
	ResourceID   string          `json:"resourceId"`
	Rail         string          `json:"rail"`
	AgentID      string          `json:"agentId"`
	Metadata     json.RawMessage `json:"metadata"`
}

// Checkout opens a new pending payment session
func (h *CommerceHandler) Checkout(c echo.Context) error {
	var req checkoutRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}

	result, err := h.checkout.Checkout(c.Request().Context(), services.CheckoutRequest{
		ResourceType: req.ResourceType,
		ResourceID:   req.ResourceID,
		Rail:         req.Rail,
		AgentID:      req.AgentID,
		Metadata:     req.Metadata,
	})
	if err != nil {
		switch {
		case errors.Is(err, services.ErrMissingField),
			errors.Is(err, services.ErrUnknownResource),
			errors.Is(err, services.ErrInvalidRail):
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, "Failed to create payment session")
		}
	}

	session := result.Session
	return c.JSON(http.StatusOK, map[string]interface{}{
		"sessionId":            session.ID,
		"status":               session.Status,
		"rail":                 session.Rail,
		"amount":               session.Amount.StringFixed(2),
		"currency":             session.Currency,
		"checkoutInstructions": result.Instructions,
		"expiresAt":            session.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

type confirmRequest struct {
	SessionID           string `json:"sessionId"`
	CardPaymentIntentID string `json:"cardPaymentIntentId"`
	TxHash              string `json:"txHash"`
}

// Confirm verifies a payment proof and settles the session
func (h *CommerceHandler) Confirm(c echo.Context) error {
	var req confirmRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}
	if req.SessionID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Missing required field: sessionId")
	}

	result, err := h.confirmer.Confirm(c.Request().Context(), req.SessionID, services.ConfirmProof{
		CardPaymentIntentID: req.CardPaymentIntentID,
		TxHash:              req.TxHash,
	})
	if err != nil {
		var notConfirmable *services.NotConfirmableError
		switch {
		case errors.Is(err, store.ErrSessionNotFound):
			return echo.NewHTTPError(http.StatusNotFound, "Payment session not found")
		case errors.As(err, &notConfirmable):
			return echo.NewHTTPError(http.StatusBadRequest, notConfirmable.Error())
		case errors.Is(err, services.ErrPaymentFailed):
			return echo.NewHTTPError(http.StatusPaymentRequired, err.Error())
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, "Failed to confirm payment session")
		}
	}

	status := "completed"
	if result.AlreadyCompleted {
		status = "already_completed"
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":  status,
		"receipt": result.Receipt,
		"usageHint": map[string]string{
			"header": ReceiptHeader,
			"value":  result.Receipt,
		},
	})
}

// Receipt returns the receipt record for a completed session
func (h *CommerceHandler) Receipt(c echo.Context) error {
	sessionID := c.Param("sessionId")

	session, err := h.sessions.Get(c.Request().Context(), sessionID)
	if err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "Payment session not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to load payment session")
	}
	if session.Status != models.SessionCompleted {
		return echo.NewHTTPError(http.StatusBadRequest, "Payment session is not completed")
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"sessionId":    session.ID,
		"receipt":      session.Receipt,
		"resourceType": session.ResourceType,
		"resourceId":   session.ResourceID,
		"amount":       session.Amount.StringFixed(2),
		"rail":         session.Rail,
		"completedAt":  session.CompletedAt.UTC().Format(time.RFC3339),
	})
}

// Session returns session status so agents can poll without confirming
func (h *CommerceHandler) Session(c echo.Context) error {
	sessionID := c.Param("sessionId")

	session, err := h.sessions.Get(c.Request().Context(), sessionID)
	if err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "Payment session not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to load payment session")
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"sessionId":    session.ID,
		"status":       session.Status,
		"rail":         session.Rail,
		"amount":       session.Amount.StringFixed(2),
		"currency":     session.Currency,
		"resourceType": session.ResourceType,
		"resourceId":   session.ResourceID,
		"expiresAt":    session.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

type usageRequest struct {
	AgentID  string `json:"agentId"`
	Tokens   *int64 `json:"tokens"`
	TaskType string `json:"taskType"`
}

// Usage prices a token count independently of any session
func (h *CommerceHandler) Usage(c echo.Context) error {
	var req usageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}
	if req.AgentID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Missing required field: agentId")
	}
	if req.Tokens == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Missing required field: tokens")
	}
	if *req.Tokens < 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "tokens must be non-negative")
	}

	usage := h.meter.ComputeCost(*req.Tokens, req.TaskType)
	h.cache.AddUsage(c.Request().Context(), req.AgentID, usage.Cost)

	return c.JSON(http.StatusOK, map[string]interface{}{
		"agentId":    req.AgentID,
		"tokens":     usage.Tokens,
		"taskType":   usage.TaskType,
		"multiplier": usage.Multiplier.InexactFloat64(),
		"cost":       usage.Cost.InexactFloat64(),
		"currency":   usage.Currency,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	})
}

// Healthz reports process liveness and backend connectivity
func (h *CommerceHandler) Healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status": "ok",
		"redis":  h.cache.Ping(c.Request().Context()),
	})
}
