package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"payroute.backend/pkg/crypto"
	"payroute.backend/pkg/logger"
)

func TestRequestIDMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestIDMiddleware())
	r.GET("/x", func(c *gin.Context) {
		id := c.GetString(RequestIDKey)
		require.NotEmpty(t, id)
		assert.Equal(t, id, c.Request.Context().Value(RequestIDKey))
		c.Status(http.StatusNoContent)
	})

	t.Run("generates an id", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
		assert.Len(t, w.Header().Get(RequestIDHeader), 36)
	})

	t.Run("reuses the caller's id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req.Header.Set(RequestIDHeader, "req-123")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, "req-123", w.Header().Get(RequestIDHeader))
	})
}

func TestLoggerMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logger.Init("test")
	logger.SetLevel(zapcore.ErrorLevel)

	r := gin.New()
	r.Use(RequestIDMiddleware(), LoggerMiddleware())
	r.GET("/x", func(c *gin.Context) {
		_ = c.Error(assert.AnError)
		c.Status(http.StatusTeapot)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x?page=2", nil))
	assert.Equal(t, http.StatusTeapot, w.Code)
}

func TestAdminTokenMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	checkToken = func(token, hash string) bool { return token == "operator" && hash == "hash" }
	t.Cleanup(func() { checkToken = crypto.CheckToken })

	router := func(hash string) *gin.Engine {
		r := gin.New()
		r.Use(AdminTokenMiddleware(hash))
		r.GET("/admin", func(c *gin.Context) { c.Status(http.StatusOK) })
		return r
	}
	call := func(r *gin.Engine, token string) int {
		req := httptest.NewRequest(http.MethodGet, "/admin", nil)
		if token != "" {
			req.Header.Set(AdminTokenHeader, token)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, call(router("hash"), "operator"))
	assert.Equal(t, http.StatusUnauthorized, call(router("hash"), "intruder"))
	assert.Equal(t, http.StatusUnauthorized, call(router("hash"), ""))
	assert.Equal(t, http.StatusServiceUnavailable, call(router(""), "operator"))
}

func TestAdminTokenMiddleware_RealHash(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hash, err := crypto.HashToken("operator-token")
	require.NoError(t, err)

	r := gin.New()
	r.Use(AdminTokenMiddleware(hash))
	r.GET("/admin", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set(AdminTokenHeader, "operator-token")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}
