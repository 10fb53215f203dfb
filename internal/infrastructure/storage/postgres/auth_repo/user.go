// Package auth_repo provides the PostgreSQL implementation of the user
// repository.
package auth_repo

import (
	"context"
	"fmt"

	"github.com/georgysavva/scany/v2/pgxscan"

	"retailcore/internal/core/apperror"
	"retailcore/internal/core/id"
	"retailcore/internal/domain/auth"
	"retailcore/internal/infrastructure/storage/postgres"
)

var _ auth.Repository = (*UserRepo)(nil)

// UserRepo implements auth.Repository.
type UserRepo struct {
	txManager *postgres.TxManager
}

// New creates the user repository.
func New(txManager *postgres.TxManager) *UserRepo {
	return &UserRepo{txManager: txManager}
}

const userColumns = `id, email, password_hash, full_name, status, is_admin,
	failed_logins, locked_until, last_login_at, created_at, updated_at`

// Create inserts a user.
func (r *UserRepo) Create(ctx context.Context, u *auth.User) error {
	_, err := r.txManager.GetQuerier(ctx).Exec(ctx, `
		INSERT INTO sys_users (id, email, password_hash, full_name, status, is_admin,
			failed_logins, locked_until, last_login_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, u.ID, u.Email, u.PasswordHash, u.FullName, u.Status, u.IsAdmin,
		u.FailedLogins, u.LockedUntil, u.LastLoginAt, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		return apperror.NewDatabase(fmt.Errorf("create user: %w", err))
	}
	return nil
}

// GetByID loads a user by id.
func (r *UserRepo) GetByID(ctx context.Context, userID id.ID) (*auth.User, error) {
	var u auth.User
	err := pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), &u,
		`SELECT `+userColumns+` FROM sys_users WHERE id = $1`, userID)
	if err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("user", userID.String())
		}
		return nil, apperror.NewDatabase(fmt.Errorf("get user: %w", err))
	}
	return &u, nil
}

// GetByEmail loads a user by email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	var u auth.User
	err := pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), &u,
		`SELECT `+userColumns+` FROM sys_users WHERE lower(email) = lower($1)`, email)
	if err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("user", email)
		}
		return nil, apperror.NewDatabase(fmt.Errorf("get user by email: %w", err))
	}
	return &u, nil
}

// Update persists mutable user fields.
func (r *UserRepo) Update(ctx context.Context, u *auth.User) error {
	tag, err := r.txManager.GetQuerier(ctx).Exec(ctx, `
		UPDATE sys_users
		SET email = $1, password_hash = $2, full_name = $3, status = $4, is_admin = $5,
			failed_logins = $6, locked_until = $7, last_login_at = $8, updated_at = $9
		WHERE id = $10
	`, u.Email, u.PasswordHash, u.FullName, u.Status, u.IsAdmin,
		u.FailedLogins, u.LockedUntil, u.LastLoginAt, u.UpdatedAt, u.ID)
	if err != nil {
		return apperror.NewDatabase(fmt.Errorf("update user: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound("user", u.ID.String())
	}
	return nil
}

// LoadGrants populates roles, permissions and branch grants.
func (r *UserRepo) LoadGrants(ctx context.Context, u *auth.User) error {
	querier := r.txManager.GetQuerier(ctx)

	var roles []string
	err := pgxscan.Select(ctx, querier, &roles, `
		SELECT r.code FROM sys_roles r
		JOIN sys_user_roles ur ON ur.role_id = r.id
		WHERE ur.user_id = $1
		ORDER BY r.code
	`, u.ID)
	if err != nil {
		return apperror.NewDatabase(fmt.Errorf("load roles: %w", err))
	}
	u.Roles = roles

	var permissions []string
	err = pgxscan.Select(ctx, querier, &permissions, `
		SELECT DISTINCT p.code FROM sys_permissions p
		JOIN sys_role_permissions rp ON rp.permission_id = p.id
		JOIN sys_user_roles ur ON ur.role_id = rp.role_id
		WHERE ur.user_id = $1
		ORDER BY p.code
	`, u.ID)
	if err != nil {
		return apperror.NewDatabase(fmt.Errorf("load permissions: %w", err))
	}
	u.Permissions = permissions

	var branchIDs []string
	err = pgxscan.Select(ctx, querier, &branchIDs, `
		SELECT branch_id::text FROM sys_user_branches
		WHERE user_id = $1
		ORDER BY branch_id
	`, u.ID)
	if err != nil {
		return apperror.NewDatabase(fmt.Errorf("load branches: %w", err))
	}
	u.BranchIDs = branchIDs

	return nil
}
