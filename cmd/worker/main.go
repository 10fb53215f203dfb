// Package main is the entry point for the retailcore background worker.
// It releases stale stock reservations and prunes expired idempotency
// records on fixed intervals.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"retailcore/internal/core/security"
	"retailcore/internal/domain/inventory"
	"retailcore/internal/infrastructure/storage/postgres"
	"retailcore/internal/infrastructure/storage/postgres/inventory_repo"
	"retailcore/pkg/logger"
)

func main() {
	log, err := logger.New(logger.Config{
		Level:       getEnv("LOG_LEVEL", "info"),
		Development: getEnv("APP_ENV", "development") == "development",
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log.Info("starting retailcore worker")

	pool, err := postgres.NewPool(ctx, postgres.DefaultPoolConfig(mustEnv("DATABASE_URL")))
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()

	txManager := postgres.NewTxManager(pool)

	capabilities, err := security.NewCELChecker(security.DefaultRules())
	if err != nil {
		log.Fatalw("failed to compile capability rules", "error", err)
	}

	inventoryService := inventory.NewService(inventory_repo.New(txManager), txManager, capabilities)

	guard := postgres.NewIdempotencyStore(pool,
		getEnvDuration("IDEMPOTENCY_LOCK_TTL", time.Minute),
		getEnvDuration("IDEMPOTENCY_TTL", 24*time.Hour),
	)

	worker := &Worker{
		stock:          inventoryService,
		guard:          guard,
		reservationAge: getEnvDuration("RESERVATION_MAX_AGE", 2*time.Hour),
		sweepInterval:  getEnvDuration("SWEEP_INTERVAL", 5*time.Minute),
		log:            log.WithComponent("worker"),
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Run(ctx)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down worker...")
	cancel()

	wg.Wait()
	log.Info("worker stopped")
}

// Worker runs the periodic maintenance jobs.
type Worker struct {
	stock          *inventory.Service
	guard          *postgres.IdempotencyStore
	reservationAge time.Duration
	sweepInterval  time.Duration
	log            *logger.Logger
}

// Run loops until the context is cancelled.
func (w *Worker) Run(ctx context.Context) {
	sweepTicker := time.NewTicker(w.sweepInterval)
	defer sweepTicker.Stop()

	cleanupTicker := time.NewTicker(time.Hour)
	defer cleanupTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sweepTicker.C:
			w.sweepReservations(ctx)
		case <-cleanupTicker.C:
			w.cleanupIdempotency(ctx)
		}
	}
}

func (w *Worker) sweepReservations(ctx context.Context) {
	released, err := w.stock.SweepReservations(ctx, w.reservationAge)
	if err != nil {
		w.log.Errorw("reservation sweep failed", "error", err)
		return
	}
	if released > 0 {
		w.log.Infow("released stale reservations", "count", released)
	}
}

func (w *Worker) cleanupIdempotency(ctx context.Context) {
	deleted, err := w.guard.CleanupExpired(ctx)
	if err != nil {
		w.log.Errorw("idempotency cleanup failed", "error", err)
		return
	}
	if deleted > 0 {
		w.log.Infow("cleaned up expired idempotency records", "count", deleted)
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func mustEnv(key string) string {
	value := os.Getenv(key)
	if value == "" {
		fmt.Printf("required environment variable %s not set\n", key)
		os.Exit(1)
	}
	return value
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
