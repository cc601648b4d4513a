package middleware

import (
	"crypto/hmac"
	"net/http"

	"github.com/labstack/echo/v4"

	"x402router/internal/models"
	"x402router/internal/services"
	"x402router/internal/store"
)

// ReceiptHeader carries the receipt token that gates premium resources
const ReceiptHeader = "X-402-Receipt"

// RequireReceipt returns a middleware that admits only requests presenting a
// receipt from a completed payment session. Redis, when configured, fronts
// the session lookup; the store stays authoritative. The session id is set
// in context for downstream handlers. cache may be nil.
func RequireReceipt(sessions store.SessionStore, cache *services.RedisCache) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			receipt := c.Request().Header.Get(ReceiptHeader)
			if receipt == "" {
				return echo.NewHTTPError(http.StatusPaymentRequired, "Missing "+ReceiptHeader+" header")
			}

			ctx := c.Request().Context()

			sessionID := cache.LookupReceipt(ctx, receipt)
			var session *models.PaymentSession
			var err error
			if sessionID != "" {
				session, err = sessions.Get(ctx, sessionID)
			} else {
				session, err = sessions.GetByReceipt(ctx, receipt)
			}
			if err != nil {
				return echo.NewHTTPError(http.StatusPaymentRequired, "Unknown receipt")
			}

			if session.Status != models.SessionCompleted ||
				!hmac.Equal([]byte(session.Receipt), []byte(receipt)) {
				return echo.NewHTTPError(http.StatusPaymentRequired, "Receipt does not match a completed session")
			}

			c.Set("paymentSessionID", session.ID)
			c.Set("paidResourceType", session.ResourceType)
			c.Set("paidResourceID", session.ResourceID)

			return next(c)
		}
	}
}
