package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"stock-service/internal/interfaces"
	"stock-service/internal/metrics"
	"stock-service/internal/models"
	"stock-service/internal/tracing"
)

// HealthCheck probes one dependency
type HealthCheck func(ctx context.Context) error

// StockHandler handles HTTP requests for the stock API
type StockHandler struct {
	stock  interfaces.StockService
	bulk   interfaces.BulkQuery
	checks map[string]HealthCheck
}

// NewStockHandler creates a new stock API handler. checks may be nil.
func NewStockHandler(stock interfaces.StockService, bulk interfaces.BulkQuery, checks map[string]HealthCheck) *StockHandler {
	return &StockHandler{
		stock:  stock,
		bulk:   bulk,
		checks: checks,
	}
}

// SetupRoutes sets up the HTTP routes for the stock service
func (h *StockHandler) SetupRoutes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	r.Use(tracing.Middleware())
	r.Use(metrics.Middleware)
	r.Use(RequestIDMiddleware())
	r.Use(ErrorHandlerMiddleware())
	r.Use(corsMiddleware("GET, POST, PUT, OPTIONS"))

	r.GET("/health", h.healthCheck)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")
	{
		api.GET("/stock", h.getBulkByQuery)
		api.POST("/stock/bulk", h.getBulk)
		api.GET("/stock/:productId", h.getStock)
		api.PUT("/stock/:productId", h.setStock)
		api.POST("/stock/:productId/reservations", h.reserve)
		api.POST("/stock/:productId/decrement", h.decrement)
		api.POST("/stock/:productId/restock", h.restock)
	}

	return r
}

// getStock handles single product reads
func (h *StockHandler) getStock(c *gin.Context) {
	productID, ok := productIDParam(c)
	if !ok {
		return
	}

	level, err := h.stock.GetStock(c.Request.Context(), productID)
	if err != nil {
		Response.StockError(c, err)
		return
	}

	Response.Success(c, level)
}

// reserve handles availability checks
func (h *StockHandler) reserve(c *gin.Context) {
	productID, ok := productIDParam(c)
	if !ok {
		return
	}
	var req models.QuantityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handleValidationError(c, err)
		return
	}

	result, err := h.stock.Reserve(c.Request.Context(), productID, req.Quantity)
	if err != nil {
		log.Debug().Err(err).Int64("product_id", productID).Int("quantity", req.Quantity).Msg("Reservation rejected")
		Response.StockError(c, err)
		return
	}

	Response.Success(c, result)
}

// decrement handles stock removal
func (h *StockHandler) decrement(c *gin.Context) {
	h.adjust(c, h.stock.Decrement)
}

// restock handles stock replenishment
func (h *StockHandler) restock(c *gin.Context) {
	h.adjust(c, h.stock.Restock)
}

func (h *StockHandler) adjust(c *gin.Context, op func(context.Context, int64, int) (*models.AdjustmentResult, error)) {
	productID, ok := productIDParam(c)
	if !ok {
		return
	}
	var req models.QuantityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handleValidationError(c, err)
		return
	}

	result, err := op(c.Request.Context(), productID, req.Quantity)
	if err != nil {
		Response.StockError(c, err)
		return
	}

	Response.Success(c, result)
}

// setStock handles absolute quantity updates, creating the record when missing
func (h *StockHandler) setStock(c *gin.Context) {
	productID, ok := productIDParam(c)
	if !ok {
		return
	}
	var req models.SetStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handleValidationError(c, err)
		return
	}

	level, created, err := h.stock.SetStock(c.Request.Context(), productID, *req.Quantity)
	if err != nil {
		Response.StockError(c, err)
		return
	}

	resp := &models.SetStockResponse{StockLevel: *level, Created: created}
	if created {
		c.Header("Location", "/api/v1/stock/"+strconv.FormatInt(productID, 10))
		Response.Created(c, resp)
		return
	}
	Response.Success(c, resp)
}

// getBulkByQuery handles GET /stock?ids=1,2,3
func (h *StockHandler) getBulkByQuery(c *gin.Context) {
	raw := c.Query("ids")
	if raw == "" {
		Response.ValidationError(c, "ids", "Query parameter ids is required")
		return
	}

	parts := strings.Split(raw, ",")
	ids := make([]int64, 0, len(parts))
	for _, part := range parts {
		id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil || id <= 0 {
			Response.ValidationError(c, "ids", "Product ids must be positive integers")
			return
		}
		ids = append(ids, id)
	}

	h.respondBulk(c, ids)
}

// getBulk handles POST /stock/bulk
func (h *StockHandler) getBulk(c *gin.Context) {
	var req models.BulkStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handleValidationError(c, err)
		return
	}

	h.respondBulk(c, req.ProductIDs)
}

func (h *StockHandler) respondBulk(c *gin.Context, ids []int64) {
	snapshot, err := h.bulk.GetBulk(c.Request.Context(), ids)
	if err != nil {
		Response.StockError(c, err)
		return
	}

	Response.Success(c, models.NewBulkStockResponse(snapshot))
}

// healthCheck reports healthy only when every dependency answers
func (h *StockHandler) healthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	deps := make(gin.H, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			log.Warn().Err(err).Str("dependency", name).Msg("Health check failed")
			deps[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		deps[name] = "ok"
	}

	state := "healthy"
	if status != http.StatusOK {
		state = "unhealthy"
	}
	c.JSON(status, gin.H{
		"status":       state,
		"service":      "stock-service",
		"dependencies": deps,
	})
}

func productIDParam(c *gin.Context) (int64, bool) {
	productID, err := strconv.ParseInt(c.Param("productId"), 10, 64)
	if err != nil || productID <= 0 {
		Response.ValidationError(c, "product_id", "Product id must be a positive integer")
		return 0, false
	}
	return productID, true
}
