package http

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"lexmeet/internal/core/domain"
	"lexmeet/internal/core/services"
	"lexmeet/pkg/errors"

	"github.com/gin-gonic/gin"
)

// IssuerKeyHeader carries the shared key of the application backend that asks for relay tokens.
const IssuerKeyHeader = "X-Issuer-Key"

// AuthHandler mints the relay access tokens participants present when joining a call.
type AuthHandler struct {
	authService services.AuthService
	issuerKey   string
}

func NewAuthHandler(authService services.AuthService, issuerKey string) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		issuerKey:   issuerKey,
	}
}

func (h *AuthHandler) SetupRoutes(router *gin.Engine) {
	api := router.Group("/api/v1/auth")
	{
		api.POST("/token", h.IssueToken)
	}
}

type TokenRequest struct {
	UserID string `json:"userId" binding:"required,max=128"`
	Role   string `json:"role" binding:"required,oneof=lawyer user"`
}

func (h *AuthHandler) IssueToken(c *gin.Context) {
	key := c.GetHeader(IssuerKeyHeader)
	if subtle.ConstantTimeCompare([]byte(key), []byte(h.issuerKey)) != 1 {
		c.Error(errors.NewUnauthorizedError("invalid issuer key"))
		return
	}

	var req TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewInvalidInputError("invalid request format"))
		return
	}

	role, err := domain.ParseRole(req.Role)
	if err != nil {
		c.Error(errors.NewInvalidInputError(err.Error()))
		return
	}
	userID := strings.TrimSpace(req.UserID)

	token, err := h.authService.GenerateToken(userID, role)
	if err != nil {
		c.Error(errors.WrapError(err, errors.ErrCodeInternal, "failed to generate token", http.StatusInternalServerError))
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"user_id":      userID,
		"role":         role,
		"access_token": token,
	})
}
