package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"sepolia-wallet.backend/pkg/logger"
)

func TestRequestIDMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestIDMiddleware())

	var fromGin, fromCtx string
	r.GET("/x", func(c *gin.Context) {
		fromGin = c.GetString(RequestIDKey)
		fromCtx, _ = c.Request.Context().Value(logger.RequestIDKey).(string)
		c.Status(http.StatusOK)
	})

	t.Run("keeps caller id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req.Header.Set(RequestIDHeader, "req-123")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, "req-123", fromGin)
		assert.Equal(t, "req-123", fromCtx)
		assert.Equal(t, "req-123", w.Header().Get(RequestIDHeader))
	})

	t.Run("generates id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		require.NotEmpty(t, fromGin)
		assert.Len(t, fromGin, 36)
		assert.Equal(t, fromGin, fromCtx)
		assert.Equal(t, fromGin, w.Header().Get(RequestIDHeader))
	})
}

func TestLoggerMiddleware_PassesThrough(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestIDMiddleware(), LoggerMiddleware())
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusTeapot) })

	req := httptest.NewRequest(http.MethodGet, "/x?page=2", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusTeapot, w.Code)
}

func TestLoggerMiddleware_Fields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	restore := logger.Replace(zap.New(core))
	defer restore()

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestIDMiddleware(), LoggerMiddleware())
	r.GET("/wallets/:address", func(c *gin.Context) { c.Status(http.StatusNotFound) })
	r.GET("/transactions/:id", func(c *gin.Context) { c.Status(http.StatusBadGateway) })
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, path := range []string{"/wallets/0xabc?x=1", "/transactions/tx-1", "/health"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set(RequestIDHeader, "req-42")
		r.ServeHTTP(httptest.NewRecorder(), req)
	}

	entries := logs.FilterMessage("HTTP Request").All()
	require.Len(t, entries, 3)

	wallet := entries[0].ContextMap()
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	assert.Equal(t, "0xabc", wallet["address"])
	assert.Equal(t, "/wallets/:address", wallet["route"])
	assert.Equal(t, "x=1", wallet["query"])
	assert.Equal(t, "req-42", wallet["request_id"])

	tx := entries[1].ContextMap()
	assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)
	assert.Equal(t, "tx-1", tx["id"])
	assert.EqualValues(t, http.StatusBadGateway, tx["status"])

	assert.Equal(t, zapcore.InfoLevel, entries[2].Level)
	assert.NotContains(t, entries[2].ContextMap(), "address")
}
