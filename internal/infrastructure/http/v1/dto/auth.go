package dto

import "retailcore/internal/domain/auth"

// LoginRequest carries login credentials.
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// UserResponse is the public view of a user.
type UserResponse struct {
	ID          string   `json:"id"`
	Email       string   `json:"email"`
	FullName    string   `json:"fullName"`
	IsAdmin     bool     `json:"isAdmin"`
	Roles       []string `json:"roles,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
	BranchIDs   []string `json:"branchIds,omitempty"`
}

// FromUser maps a domain user.
func FromUser(u *auth.User) UserResponse {
	return UserResponse{
		ID:          u.ID.String(),
		Email:       u.Email,
		FullName:    u.FullName,
		IsAdmin:     u.IsAdmin,
		Roles:       u.Roles,
		Permissions: u.Permissions,
		BranchIDs:   u.BranchIDs,
	}
}

// LoginResponse returns the issued token and the authenticated user.
type LoginResponse struct {
	AccessToken string       `json:"accessToken"`
	TokenType   string       `json:"tokenType"`
	ExpiresAt   string       `json:"expiresAt"`
	User        UserResponse `json:"user"`
}
