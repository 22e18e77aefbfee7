package api

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/mot/internal/api/ws"
	"github.com/your-org/mot/internal/config"
	"github.com/your-org/mot/pkg/dto"
)

// RouterConfig wires the HTTP surface to the running pipeline.
type RouterConfig struct {
	APIKey string
	Feed   *ws.FrameFeed
	// StatusFn snapshots the pipeline state for GET /v1/status.
	StatusFn func() dto.StatusResponse
	// AppConfig is the effective configuration, served read-only.
	AppConfig *config.Config
}

// NewRouter builds the gin engine serving health, metrics, status, and the
// WebSocket frame feed.
func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLog())
	r.Use(cors.Default())

	// System endpoints (no auth)
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1 (with auth)
	v1 := r.Group("/v1")
	v1.Use(RequireKey(cfg.APIKey))

	v1.GET("/ws", cfg.Feed.HandleWS)

	v1.GET("/status", func(c *gin.Context) {
		if cfg.StatusFn == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "pipeline not running"})
			return
		}
		c.JSON(http.StatusOK, cfg.StatusFn())
	})

	v1.GET("/config", func(c *gin.Context) {
		c.YAML(http.StatusOK, cfg.AppConfig)
	})

	return r
}
