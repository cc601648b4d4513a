// The sweeper flips overdue pending sessions to expired on a fixed tick.
// It exists for cleanup and metrics only: the store expires lazily on every
// read and transition, so correctness never waits on this process.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"x402router/internal/services"
	"x402router/internal/store"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment")
	}

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		log.Fatal("DATABASE_URL not set; the sweeper only makes sense against the persistent store")
	}

	db, err := services.InitDB(databaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	sessions := store.NewGormStore(db)

	log.Println("Sweeper started")

	// Create context that cancels on interrupt
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		log.Println("Shutting down sweeper...")
		cancel()
	}()

	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	// Run once on start, then on every tick.
	sweep(ctx, sessions)

	for {
		select {
		case <-ticker.C:
			sweep(ctx, sessions)
		case <-ctx.Done():
			return
		}
	}
}

func sweep(ctx context.Context, sessions store.SessionStore) {
	n, err := sessions.ExpireOverdue(ctx)
	if err != nil {
		log.Printf("Error expiring overdue sessions: %v", err)
		return
	}
	if n > 0 {
		log.Printf("Expired %d overdue sessions", n)
	}
}
