package auth

import (
	"context"
	"time"

	"golang.org/x/crypto/bcrypt"

	"retailcore/internal/core/apperror"
	"retailcore/internal/core/id"
	"retailcore/pkg/logger"
)

// ServiceConfig holds auth service configuration.
type ServiceConfig struct {
	MaxLoginAttempts  int
	LockDuration      time.Duration
	PasswordMinLength int
}

// DefaultServiceConfig returns default configuration.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		MaxLoginAttempts:  5,
		LockDuration:      15 * time.Minute,
		PasswordMinLength: 8,
	}
}

// Credentials is a login request.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Token is an issued access token.
type Token struct {
	AccessToken string    `json:"accessToken"`
	ExpiresAt   time.Time `json:"expiresAt"`
	TokenType   string    `json:"tokenType"`
}

// Service provides authentication logic.
type Service struct {
	repo       Repository
	jwtService *JWTService
	config     ServiceConfig
}

// NewService creates a new auth service.
func NewService(repo Repository, jwtService *JWTService, config ServiceConfig) *Service {
	return &Service{
		repo:       repo,
		jwtService: jwtService,
		config:     config,
	}
}

// Login authenticates a user and returns an access token.
func (s *Service) Login(ctx context.Context, creds Credentials) (*Token, *User, error) {
	user, err := s.repo.GetByEmail(ctx, creds.Email)
	if err != nil {
		return nil, nil, apperror.NewUnauthorized("invalid credentials")
	}
	if err := user.CanLogin(); err != nil {
		return nil, nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(creds.Password)); err != nil {
		user.RecordFailedLogin(s.config.MaxLoginAttempts, s.config.LockDuration)
		_ = s.repo.Update(ctx, user)
		return nil, nil, apperror.NewUnauthorized("invalid credentials")
	}

	if err := s.repo.LoadGrants(ctx, user); err != nil {
		return nil, nil, err
	}

	accessToken, expiresAt, err := s.jwtService.GenerateAccessToken(user)
	if err != nil {
		return nil, nil, err
	}

	user.RecordSuccessfulLogin()
	_ = s.repo.Update(ctx, user)

	logger.Info(ctx, "user logged in", "user_id", user.ID, "email", user.Email)

	return &Token{
		AccessToken: accessToken,
		ExpiresAt:   expiresAt,
		TokenType:   "Bearer",
	}, user, nil
}

// HashPassword hashes a plaintext password for storage.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// GetUser retrieves a user with grants loaded.
func (s *Service) GetUser(ctx context.Context, userID id.ID) (*User, error) {
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return nil, apperror.NewNotFound("user", userID.String())
	}
	if err := s.repo.LoadGrants(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}
