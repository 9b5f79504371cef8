package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"lexmeet/internal/core/domain"
	"lexmeet/internal/core/services"
	"lexmeet/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSignalAuthMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	auth := services.NewAuthService("secret", time.Hour)
	token, err := auth.GenerateToken("lawyer-1", domain.RoleLawyer)
	require.NoError(t, err)

	router := gin.New()
	router.Use(SignalAuthMiddleware(auth))
	router.GET("/ws", func(c *gin.Context) {
		c.String(http.StatusOK, "%s/%s", c.GetString(ContextUserID), c.MustGet(ContextRole))
	})

	tests := []struct {
		name   string
		header string
		query  string
		status int
	}{
		{"header", "Bearer " + token, "", http.StatusOK},
		{"query", "", "?token=" + token, http.StatusOK},
		{"missing", "", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + token, "", http.StatusUnauthorized},
		{"garbage", "Bearer nope", "", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/ws"+tt.query, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			router.ServeHTTP(w, req)
			assert.Equal(t, tt.status, w.Code)
			if tt.status == http.StatusOK {
				assert.Equal(t, "lawyer-1/lawyer", w.Body.String())
			}
		})
	}
}

func TestErrorHandlerMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop().Sugar()

	router := gin.New()
	router.Use(RecoveryMiddleware(logger), ErrorHandlerMiddleware(logger))
	router.GET("/app", func(c *gin.Context) {
		_ = c.Error(errors.NewInvalidInputError("room id is required"))
	})
	router.GET("/internal", func(c *gin.Context) {
		_ = c.Error(errors.NewInternalError("redis: connection refused"))
	})
	router.GET("/panic", func(c *gin.Context) {
		panic("boom")
	})

	decode := func(w *httptest.ResponseRecorder) map[string]string {
		var body map[string]string
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		return body
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/app", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "room id is required", decode(w)["message"])

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/internal", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Internal server error", decode(w)["message"])

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, string(errors.ErrCodeInternal), decode(w)["error"])
}
