package api

import (
	"net/http"
	"sync/atomic"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"stock-service/internal/metrics"
)

// AlertsHandler serves health and metrics for the alerts processor.
// Health turns unhealthy once the consumer loop has stopped.
type AlertsHandler struct {
	consuming atomic.Bool
}

// NewAlertsHandler creates a new alerts processor handler
func NewAlertsHandler() *AlertsHandler {
	return &AlertsHandler{}
}

// SetConsuming records whether the consumer loop is running
func (h *AlertsHandler) SetConsuming(running bool) {
	h.consuming.Store(running)
}

// SetupRoutes sets up the HTTP routes for the alerts processor
func (h *AlertsHandler) SetupRoutes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(metrics.Middleware)
	r.Use(corsMiddleware("GET, OPTIONS"))

	r.GET("/health", h.healthCheck)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func (h *AlertsHandler) healthCheck(c *gin.Context) {
	if !h.consuming.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "unhealthy",
			"service": "stock-alerts",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "stock-alerts",
	})
}
