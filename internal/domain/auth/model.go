// Package auth provides authentication domain logic: users, credentials
// and JWT issuance for the API surface.
package auth

import (
	"context"
	"fmt"
	"time"

	"retailcore/internal/core/apperror"
	"retailcore/internal/core/id"
)

// UserStatus is the user lifecycle state.
type UserStatus string

const (
	UserActive   UserStatus = "ACTIVE"
	UserDisabled UserStatus = "DISABLED"
)

// User is an operator account. BranchIDs limits which branches the user
// may act on; admins bypass the branch check.
type User struct {
	ID           id.ID      `db:"id" json:"id"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	FullName     string     `db:"full_name" json:"fullName"`
	Status       UserStatus `db:"status" json:"status"`
	IsAdmin      bool       `db:"is_admin" json:"isAdmin"`
	FailedLogins int        `db:"failed_logins" json:"-"`
	LockedUntil  *time.Time `db:"locked_until" json:"-"`
	LastLoginAt  *time.Time `db:"last_login_at" json:"lastLoginAt,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updatedAt"`

	Roles       []string `db:"-" json:"roles,omitempty"`
	Permissions []string `db:"-" json:"permissions,omitempty"`
	BranchIDs   []string `db:"-" json:"branchIds,omitempty"`
}

// NewUser creates an active user.
func NewUser(email, passwordHash string) *User {
	now := time.Now().UTC()
	return &User{
		ID:           id.New(),
		Email:        email,
		PasswordHash: passwordHash,
		Status:       UserActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// CanLogin checks the account is usable.
func (u *User) CanLogin() error {
	if u.Status != UserActive {
		return apperror.NewForbidden("account is disabled")
	}
	if u.LockedUntil != nil && u.LockedUntil.After(time.Now()) {
		return apperror.NewForbidden(
			fmt.Sprintf("account is locked until %s", u.LockedUntil.Format(time.RFC3339)))
	}
	return nil
}

// RecordFailedLogin bumps the failure counter and locks the account when
// the attempt limit is reached.
func (u *User) RecordFailedLogin(maxAttempts int, lockDuration time.Duration) {
	u.FailedLogins++
	if u.FailedLogins >= maxAttempts {
		lockedUntil := time.Now().Add(lockDuration)
		u.LockedUntil = &lockedUntil
	}
	u.UpdatedAt = time.Now().UTC()
}

// RecordSuccessfulLogin resets the failure counter.
func (u *User) RecordSuccessfulLogin() {
	now := time.Now().UTC()
	u.FailedLogins = 0
	u.LockedUntil = nil
	u.LastLoginAt = &now
	u.UpdatedAt = now
}

// Repository defines storage operations for users.
type Repository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, userID id.ID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	Update(ctx context.Context, u *User) error

	// LoadGrants populates Roles, Permissions and BranchIDs.
	LoadGrants(ctx context.Context, u *User) error
}
