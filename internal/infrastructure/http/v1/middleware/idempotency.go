package middleware

import (
	"github.com/gin-gonic/gin"

	"retailcore/internal/core/apperror"
)

// HeaderIdempotencyKey carries the caller-chosen key for exactly-once
// money-adjacent operations.
const HeaderIdempotencyKey = "X-Idempotency-Key"

const idempotencyKeyContextKey = "idempotency_key"

// RequireIdempotencyKey rejects mutating requests that arrive without an
// idempotency key. The key itself is consumed by the domain orchestrators,
// which own the stored-verdict lifecycle; this middleware only enforces
// presence and basic shape at the edge.
func RequireIdempotencyKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" {
			_ = c.Error(apperror.NewValidation("missing " + HeaderIdempotencyKey + " header"))
			c.Abort()
			return
		}
		if len(key) > 255 {
			_ = c.Error(apperror.NewValidation(HeaderIdempotencyKey+" header too long").
				WithDetail("max_length", 255))
			c.Abort()
			return
		}

		c.Set(idempotencyKeyContextKey, key)
		c.Next()
	}
}

// IdempotencyKey returns the key stored by RequireIdempotencyKey, or "".
func IdempotencyKey(c *gin.Context) string {
	return c.GetString(idempotencyKeyContextKey)
}
