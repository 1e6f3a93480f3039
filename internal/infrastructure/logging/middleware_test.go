package logging

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestRequestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	newRouter := func() (*gin.Engine, *observer.ObservedLogs) {
		core, logs := observer.New(zap.DebugLevel)
		r := gin.New()
		r.Use(RequestMiddleware(zap.New(core)))
		r.GET("/ok", func(c *gin.Context) {
			assert.NotNil(t, GetLogger(c))
			c.Status(http.StatusOK)
		})
		r.GET("/boom", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })
		return r, logs
	}

	t.Run("Propagates upstream request ID", func(t *testing.T) {
		r, logs := newRouter()
		req := httptest.NewRequest(http.MethodGet, "/ok", nil)
		req.Header.Set("X-Request-ID", "req-123")
		w := httptest.NewRecorder()

		r.ServeHTTP(w, req)

		assert.Equal(t, "req-123", w.Header().Get("X-Request-ID"))
		assert.Equal(t, 1, logs.FilterMessage("request completed").Len())
	})

	t.Run("Server errors logged at error level", func(t *testing.T) {
		r, logs := newRouter()
		w := httptest.NewRecorder()

		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))

		assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
		assert.Equal(t, 1, logs.FilterMessage("request failed").Len())
	})
}
