package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// Context keys set by the middleware
const (
	ContextKeyUserID = "user_id"
	ContextKeyEmail  = "user_email"
)

// Middleware validates the Bearer token and stores the caller's identity
// on the request context. Requests without a valid token are rejected.
func Middleware(service *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			abortUnauthorized(c, ErrUnauthorized)
			return
		}

		const prefix = "Bearer "
		if !strings.HasPrefix(header, prefix) {
			abortUnauthorized(c, ErrInvalidToken)
			return
		}

		claims, err := service.ValidateToken(strings.TrimPrefix(header, prefix))
		if err != nil {
			var authErr AuthError
			if e, ok := err.(AuthError); ok {
				authErr = e
			} else {
				authErr = ErrInvalidToken
			}
			abortUnauthorized(c, authErr)
			return
		}

		c.Set(ContextKeyUserID, claims.UserID)
		c.Set(ContextKeyEmail, claims.Email)
		c.Next()
	}
}

// UserID returns the authenticated user's ID from the request context
func UserID(c *gin.Context) string {
	return c.GetString(ContextKeyUserID)
}

func abortUnauthorized(c *gin.Context, err AuthError) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error":   err.Code,
		"message": err.Message,
	})
}
