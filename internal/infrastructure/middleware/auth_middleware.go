package middleware

import (
	"net/http"
	"strings"

	"lexmeet/internal/core/services"
	"lexmeet/pkg/errors"

	"github.com/gin-gonic/gin"
)

const (
	ContextUserID = "user_id"
	ContextRole   = "role"
)

// bearerToken reads the token from the Authorization header, falling back to
// the token query parameter that browser WebSocket clients have to use.
func bearerToken(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return c.Query("token")
}

// SignalAuthMiddleware admits only credentialed participants to the relay.
func SignalAuthMiddleware(authService services.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   string(errors.ErrCodeUnauthorized),
				"message": "authorization token required",
			})
			return
		}

		claims, err := authService.ValidateToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   string(errors.ErrCodeUnauthorized),
				"message": err.Error(),
			})
			return
		}

		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextRole, claims.Role)
		c.Next()
	}
}
