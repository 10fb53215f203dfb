// Package main provides a CLI tool for seeding the database with initial data:
// chart of accounts, roles and permissions, an admin user and optional demo data.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5"

	"retailcore/internal/core/id"
	"retailcore/internal/domain/auth"
	"retailcore/internal/infrastructure/storage/postgres"
	"retailcore/pkg/logger"
)

func main() {
	log, err := logger.New(logger.Config{
		Level:       "info",
		Development: true,
	})
	if err != nil {
		fmt.Printf("failed to create logger: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL environment variable is required")
	}

	pool, err := postgres.NewPool(ctx, postgres.DefaultPoolConfig(dbURL))
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()

	log.Info("connected to database")

	if err := seedAccounts(ctx, pool); err != nil {
		log.Fatalw("failed to seed chart of accounts", "error", err)
	}
	log.Info("chart of accounts seeded")

	if err := seedRolesAndPermissions(ctx, pool); err != nil {
		log.Fatalw("failed to seed roles and permissions", "error", err)
	}
	log.Info("roles and permissions seeded")

	adminID, err := seedAdminUser(ctx, pool, log)
	if err != nil {
		log.Fatalw("failed to seed admin user", "error", err)
	}
	log.Infow("admin user ready", "user_id", adminID)

	if os.Getenv("SEED_DEMO_DATA") == "true" {
		if err := seedDemoData(ctx, pool); err != nil {
			log.Fatalw("failed to seed demo data", "error", err)
		}
		log.Info("demo data seeded")
	}

	log.Info("seeding completed successfully")
}

type accountSeed struct {
	code, name, accType, normal string
}

func seedAccounts(ctx context.Context, pool *postgres.Pool) error {
	accounts := []accountSeed{
		{"1000", "Cash on Hand", "ASSET", "DEBIT"},
		{"1100", "Bank - Settlement", "ASSET", "DEBIT"},
		{"1150", "Telebirr Float", "ASSET", "DEBIT"},
		{"1200", "Agent Receivable", "ASSET", "DEBIT"},
		{"2100", "VAT Payable", "LIABILITY", "CREDIT"},
		{"2200", "Agent Payable", "LIABILITY", "CREDIT"},
		{"4000", "Sales Revenue", "REVENUE", "CREDIT"},
		{"4100", "Sales Discounts", "CONTRA_REVENUE", "DEBIT"},
		{"5100", "Commission Expense", "EXPENSE", "DEBIT"},
	}

	now := time.Now().UTC()
	for _, a := range accounts {
		_, err := pool.Exec(ctx, `
			INSERT INTO gl_accounts (id, code, name, type, normal_balance, parent_id, postable, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, NULL, true, 'ACTIVE', $6, $6)
			ON CONFLICT (code) DO NOTHING
		`, id.New(), a.code, a.name, a.accType, a.normal, now)
		if err != nil {
			return fmt.Errorf("insert account %s: %w", a.code, err)
		}
	}
	return nil
}

func seedRolesAndPermissions(ctx context.Context, pool *postgres.Pool) error {
	permissions := []string{
		"inventory.read", "inventory.write", "inventory.adjust",
		"ledger.read", "ledger.write", "ledger.admin",
		"pos.receipt.create", "pos.receipt.read", "pos.receipt.void",
		"telebirr.transaction.post", "telebirr.transaction.read", "telebirr.transaction.void",
		"telebirr.admin",
	}

	for _, code := range permissions {
		_, err := pool.Exec(ctx, `
			INSERT INTO sys_permissions (id, code)
			VALUES ($1, $2)
			ON CONFLICT (code) DO NOTHING
		`, id.New(), code)
		if err != nil {
			return fmt.Errorf("insert permission %s: %w", code, err)
		}
	}

	roles := map[string][]string{
		"cashier": {
			"inventory.read",
			"pos.receipt.create", "pos.receipt.read",
		},
		"stock.keeper": {
			"inventory.read", "inventory.write",
		},
		"finance.manager": {
			"inventory.read", "inventory.adjust",
			"ledger.read", "ledger.write",
			"pos.receipt.read", "pos.receipt.void",
			"telebirr.transaction.post", "telebirr.transaction.read", "telebirr.transaction.void",
		},
	}

	for roleCode, perms := range roles {
		roleID := id.New()
		_, err := pool.Exec(ctx, `
			INSERT INTO sys_roles (id, code)
			VALUES ($1, $2)
			ON CONFLICT (code) DO NOTHING
		`, roleID, roleCode)
		if err != nil {
			return fmt.Errorf("insert role %s: %w", roleCode, err)
		}

		for _, perm := range perms {
			_, err := pool.Exec(ctx, `
				INSERT INTO sys_role_permissions (role_id, permission_id)
				SELECT r.id, p.id FROM sys_roles r, sys_permissions p
				WHERE r.code = $1 AND p.code = $2
				ON CONFLICT DO NOTHING
			`, roleCode, perm)
			if err != nil {
				return fmt.Errorf("link role %s to %s: %w", roleCode, perm, err)
			}
		}
	}
	return nil
}

func seedAdminUser(ctx context.Context, pool *postgres.Pool, log *logger.Logger) (id.ID, error) {
	adminEmail := os.Getenv("ADMIN_EMAIL")
	if adminEmail == "" {
		adminEmail = "admin@retailcore.local"
	}

	adminPassword := os.Getenv("ADMIN_PASSWORD")
	if adminPassword == "" {
		adminPassword = "Admin123!"
	}

	var existingID id.ID
	err := pool.QueryRow(ctx,
		`SELECT id FROM sys_users WHERE lower(email) = lower($1)`,
		adminEmail,
	).Scan(&existingID)
	if err == nil {
		log.Infow("admin user already exists", "email", adminEmail)
		return existingID, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return id.Nil(), fmt.Errorf("check admin exists: %w", err)
	}

	passwordHash, err := auth.HashPassword(adminPassword)
	if err != nil {
		return id.Nil(), fmt.Errorf("hash password: %w", err)
	}

	userID := id.New()
	now := time.Now().UTC()
	_, err = pool.Exec(ctx, `
		INSERT INTO sys_users (id, email, password_hash, full_name, status, is_admin,
			failed_logins, locked_until, last_login_at, created_at, updated_at)
		VALUES ($1, $2, $3, 'System Admin', 'ACTIVE', true, 0, NULL, NULL, $4, $4)
	`, userID, adminEmail, passwordHash, now)
	if err != nil {
		return id.Nil(), fmt.Errorf("insert admin user: %w", err)
	}

	return userID, nil
}

func seedDemoData(ctx context.Context, pool *postgres.Pool) error {
	now := time.Now().UTC()

	agents := []struct{ code, name, phone string }{
		{"A0001", "Meskel Square Kiosk", "+251911000001"},
		{"A0002", "Bole Road Shop", "+251911000002"},
	}
	for _, a := range agents {
		_, err := pool.Exec(ctx, `
			INSERT INTO tlb_agents (id, code, name, phone, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, 'ACTIVE', $5, $5)
			ON CONFLICT (code) DO NOTHING
		`, id.New(), a.code, a.name, a.phone, now)
		if err != nil {
			return fmt.Errorf("insert agent %s: %w", a.code, err)
		}
	}

	_, err := pool.Exec(ctx, `
		INSERT INTO tlb_bank_accounts (id, name, account_number, bank_name, gl_account_code, status, created_at)
		VALUES ($1, 'Settlement Account', '1000222333444', 'Commercial Bank of Ethiopia', '1100', 'ACTIVE', $2)
		ON CONFLICT (account_number) DO NOTHING
	`, id.New(), now)
	if err != nil {
		return fmt.Errorf("insert bank account: %w", err)
	}

	return nil
}
