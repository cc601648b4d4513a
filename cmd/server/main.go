package main

import (
	"log"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"x402router/internal/handlers"
	x402middleware "x402router/internal/middleware"
	"x402router/internal/rails"
	"x402router/internal/services"
	"x402router/internal/store"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment")
	}

	// Session store: Postgres when configured, in-memory otherwise
	var sessions store.SessionStore
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL != "" {
		db, err := services.InitDB(databaseURL)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		if err := services.AutoMigrate(db); err != nil {
			log.Fatalf("Failed to run database migrations: %v", err)
		}
		sessions = store.NewGormStore(db)
	} else {
		log.Println("Warning: DATABASE_URL not set, sessions are kept in memory and will not survive restarts")
		sessions = store.NewMemoryStore()
	}

	// Optional Redis cache
	var cache *services.RedisCache
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		var err error
		cache, err = services.NewRedisCache(redisURL)
		if err != nil {
			log.Printf("Warning: Redis initialization failed: %v", err)
			cache = nil
		}
	}

	// Rail verifiers. Without credentials a rail falls back to the
	// accept-all stub, which trusts the proof without asking the network.
	verifiers := rails.VerifierSet{
		Card:   rails.StaticVerifier{Accept: true},
		Crypto: rails.StaticVerifier{Accept: true},
	}
	if serverKey := os.Getenv("MIDTRANS_SERVER_KEY"); serverKey != "" {
		verifiers.Card = rails.NewMidtransVerifier(serverKey, os.Getenv("MIDTRANS_IS_PRODUCTION") == "true")
	} else {
		log.Println("Warning: MIDTRANS_SERVER_KEY not set, card payments are NOT verified against the network")
	}
	if facilitatorURL := os.Getenv("CHAIN_VERIFIER_URL"); facilitatorURL != "" {
		verifiers.Crypto = rails.NewChainVerifier(facilitatorURL, os.Getenv("CHAIN_VERIFIER_API_KEY"))
	} else {
		log.Println("Warning: CHAIN_VERIFIER_URL not set, crypto payments are NOT verified against the chain")
	}

	// Core services
	catalog := services.DefaultCatalog()
	meter := services.NewUsageMeter()
	issuer := services.NewReceiptIssuer(os.Getenv("RECEIPT_SECRET"))
	checkout := services.NewCheckoutInitiator(catalog, sessions, os.Getenv("CHECKOUT_BASE_URL"), os.Getenv("PAYMENT_WALLET_ADDRESS"))
	confirmer := services.NewConfirmationHandler(sessions, verifiers, issuer, cache)

	// Create Echo instance
	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = x402middleware.JSONErrorHandler

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	// Initialize handlers
	commerceHandler := handlers.NewCommerceHandler(catalog, meter, checkout, confirmer, sessions, cache)

	// Commerce routes
	e.GET("/pricing", commerceHandler.Pricing)
	e.POST("/checkout", commerceHandler.Checkout)
	e.POST("/confirm", commerceHandler.Confirm)
	e.GET("/receipt/:sessionId", commerceHandler.Receipt)
	e.GET("/session/:sessionId", commerceHandler.Session)
	e.POST("/usage", commerceHandler.Usage)
	e.GET("/healthz", commerceHandler.Healthz)

	// Receipt-gated resources
	premium := e.Group("/premium")
	premium.Use(x402middleware.RequireReceipt(sessions, cache))
	premium.GET("/report/:id", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"reportId":  c.Param("id"),
			"sessionId": c.Get("paymentSessionID"),
			"content":   "premium report payload",
		})
	})

	// Start server
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	log.Printf("Server starting on port %s", port)
	e.Logger.Fatal(e.Start(":" + port))
}
