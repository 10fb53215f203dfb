// Package main is the entry point for the retailcore API server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"retailcore/internal/core/security"
	"retailcore/internal/domain/auth"
	"retailcore/internal/domain/inventory"
	"retailcore/internal/domain/ledger"
	"retailcore/internal/domain/receipt"
	"retailcore/internal/domain/telebirr"
	v1 "retailcore/internal/infrastructure/http/v1"
	"retailcore/internal/infrastructure/storage/postgres"
	"retailcore/internal/infrastructure/storage/postgres/auth_repo"
	"retailcore/internal/infrastructure/storage/postgres/inventory_repo"
	"retailcore/internal/infrastructure/storage/postgres/ledger_repo"
	"retailcore/internal/infrastructure/storage/postgres/receipt_repo"
	"retailcore/internal/infrastructure/storage/postgres/telebirr_repo"
	"retailcore/pkg/logger"
	"retailcore/pkg/numerator"
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

	ctx := context.Background()
	log.Info("starting retailcore server")

	// --- Database ---
	poolCfg := postgres.DefaultPoolConfig(mustEnv("DATABASE_URL"))
	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()
	log.Info("database connection established")

	txManager := postgres.NewTxManager(pool)

	// --- Infrastructure services ---
	numeratorService := numerator.New(pool)

	guard := postgres.NewIdempotencyStore(pool,
		getEnvDuration("IDEMPOTENCY_LOCK_TTL", time.Minute),
		getEnvDuration("IDEMPOTENCY_TTL", 24*time.Hour),
	)

	auditor, err := postgres.NewAuditService(txManager, pool)
	if err != nil {
		log.Fatalw("failed to initialize audit service", "error", err)
	}

	capabilities, err := security.NewCELChecker(security.DefaultRules())
	if err != nil {
		log.Fatalw("failed to compile capability rules", "error", err)
	}

	var postingPolicy security.PostingPolicy = security.OpenPolicy{}
	if closed := getEnv("POSTING_CLOSED_UNTIL", ""); closed != "" {
		closedUntil, err := time.Parse("2006-01-02", closed)
		if err != nil {
			log.Fatalw("invalid POSTING_CLOSED_UNTIL, expected YYYY-MM-DD", "error", err)
		}
		postingPolicy = security.NewStrictPolicy(closedUntil)
	}

	// --- Repositories ---
	inventoryRepo := inventory_repo.New(txManager)
	ledgerRepo := ledger_repo.New(txManager)
	receiptRepo := receipt_repo.New(txManager)
	telebirrRepo := telebirr_repo.New(txManager)
	userRepo := auth_repo.New(txManager)

	// --- Posting rules ---
	rulesPath := getEnv("POSTING_RULES_FILE", "configs/posting_rules.yaml")
	rules, err := ledger.LoadRules(rulesPath)
	if err != nil {
		log.Fatalw("failed to load posting rules", "path", rulesPath, "error", err)
	}
	if err := rules.Validate(ctx, ledgerRepo); err != nil {
		log.Fatalw("posting rules reference invalid accounts", "error", err)
	}
	log.Infow("posting rules loaded", "types", rules.Types())

	// --- Domain services ---
	inventoryService := inventory.NewService(inventoryRepo, txManager, capabilities)
	ledgerService := ledger.NewService(ledgerRepo, txManager, numeratorService, postingPolicy)
	receiptService := receipt.NewService(
		receiptRepo, inventoryService, ledgerService, rules,
		guard, txManager, numeratorService, auditor, capabilities,
	)
	telebirrService := telebirr.NewService(
		telebirrRepo, ledgerService, rules,
		guard, txManager, numeratorService, auditor, capabilities,
	)

	// --- Auth ---
	jwtSecret := mustEnv("JWT_SECRET")
	jwtService := auth.NewJWTService(auth.DefaultJWTConfig(jwtSecret))
	authService := auth.NewService(userRepo, jwtService, auth.DefaultServiceConfig())

	// --- Router ---
	router := v1.NewRouter(v1.RouterConfig{
		Pool:             pool,
		Logger:           log,
		JWTValidator:     jwtService,
		AuthService:      authService,
		InventoryService: inventoryService,
		LedgerService:    ledgerService,
		ReceiptService:   receiptService,
		TelebirrService:  telebirrService,
	})

	// --- HTTP Server ---
	port := getEnv("APP_PORT", "8080")
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infow("server starting", "port", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("server failed", "error", err)
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalw("server forced to shutdown", "error", err)
	}

	log.Info("server stopped")
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
