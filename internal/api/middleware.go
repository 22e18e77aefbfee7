package api

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/your-org/mot/internal/observability"
)

// RequestLog emits one log line per request and feeds the duration
// histogram. The metric label is the matched route template, not the raw
// URL, so parameterized paths cannot inflate the label set.
func RequestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		elapsed := time.Since(start)

		fields := []any{
			"method", c.Request.Method,
			"route", route,
			"status", status,
			"bytes", c.Writer.Size(),
			"elapsed_ms", elapsed.Milliseconds(),
			"client", c.ClientIP(),
		}
		if len(c.Errors) > 0 {
			slog.Error("http", append(fields, "errors", c.Errors.String())...)
		} else {
			slog.Info("http", fields...)
		}

		observability.HTTPRequestDuration.WithLabelValues(
			c.Request.Method, route, strconv.Itoa(status),
		).Observe(elapsed.Seconds())
	}
}

// RequireKey gates the v1 routes on a shared key. Browser WebSocket clients
// cannot attach custom headers to the dial, so the key is also accepted as
// an api_key query parameter. An empty configured key disables the check.
func RequireKey(key string) gin.HandlerFunc {
	if key == "" {
		return func(*gin.Context) {}
	}
	want := []byte(key)
	return func(c *gin.Context) {
		got := c.GetHeader("X-API-Key")
		if got == "" {
			got = c.Query("api_key")
		}
		if subtle.ConstantTimeCompare([]byte(got), want) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		}
	}
}
