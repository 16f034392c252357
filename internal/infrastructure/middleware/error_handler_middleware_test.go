package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	apperrors "nexo/pkg/errors"
	"nexo/pkg/logger"
)

func TestErrorHandlerMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	log := zaptest.NewLogger(t).Sugar()

	router := gin.New()
	router.Use(RecoveryMiddleware(log), ErrorHandlerMiddleware(log), TracingMiddleware())
	router.POST("/busy", func(c *gin.Context) {
		c.Error(apperrors.NewCallBusyError())
	})
	router.GET("/plain", func(c *gin.Context) {
		c.Error(errors.New("boom"))
	})
	router.GET("/panic", func(c *gin.Context) {
		panic("bad")
	})

	tests := []struct {
		method string
		path   string
		status int
		code   string
	}{
		{http.MethodPost, "/busy", http.StatusConflict, "CALL_BUSY"},
		{http.MethodGet, "/plain", http.StatusInternalServerError, "INTERNAL_ERROR"},
		{http.MethodGet, "/panic", http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(tt.method, tt.path, nil)
			router.ServeHTTP(w, req)
			assert.Equal(t, tt.status, w.Code)
			assert.Contains(t, w.Body.String(), tt.code)
		})
	}
}

func TestRequestLogMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.InfoLevel)

	router := gin.New()
	router.Use(RequestLogMiddleware(logger.NewContextLogger(zap.New(core))))
	router.GET("/health", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	entries := logs.FilterMessage("http_request").All()
	if assert.Len(t, entries, 1) {
		fields := entries[0].ContextMap()
		assert.Equal(t, "/health", fields["path"])
		assert.Equal(t, int64(http.StatusNoContent), fields["status_code"])
	}
}
