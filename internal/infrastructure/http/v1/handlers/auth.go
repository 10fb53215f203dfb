package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"retailcore/internal/core/apperror"
	appctx "retailcore/internal/core/context"
	"retailcore/internal/core/id"
	"retailcore/internal/domain/auth"
	"retailcore/internal/infrastructure/http/v1/dto"
)

// AuthHandler handles authentication endpoints.
type AuthHandler struct {
	*BaseHandler
	service *auth.Service
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(base *BaseHandler, service *auth.Service) *AuthHandler {
	return &AuthHandler{BaseHandler: base, service: service}
}

// Login handles POST /auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if !h.BindJSON(c, &req) {
		return
	}

	token, user, err := h.service.Login(c.Request.Context(), auth.Credentials{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.LoginResponse{
		AccessToken: token.AccessToken,
		TokenType:   token.TokenType,
		ExpiresAt:   token.ExpiresAt.Format(time.RFC3339),
		User:        dto.FromUser(user),
	})
}

// Me handles GET /auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	userCtx := appctx.GetUser(c.Request.Context())
	if userCtx == nil {
		h.Error(c, apperror.NewUnauthorized("authentication required"))
		return
	}

	userID, err := id.Parse(userCtx.UserID)
	if err != nil {
		h.Error(c, apperror.NewUnauthorized("invalid token subject"))
		return
	}

	user, err := h.service.GetUser(c.Request.Context(), userID)
	if err != nil {
		h.Error(c, err)
		return
	}

	user.Roles = userCtx.Roles
	user.Permissions = userCtx.Permissions
	user.BranchIDs = userCtx.BranchIDs
	h.OK(c, dto.FromUser(user))
}
