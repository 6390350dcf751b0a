package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"stock-service/internal/models"
)

// RequestIDMiddleware adds a unique request ID to each request
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}

		c.Header("X-Request-ID", requestID)
		c.Set("request_id", requestID)
		c.Next()
	}
}

// ErrorHandlerMiddleware renders errors attached with c.Error that no handler answered
func ErrorHandlerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		err := c.Errors.Last()
		switch err.Type {
		case gin.ErrorTypeBind:
			handleValidationError(c, err.Err)
		default:
			Response.StockError(c, err.Err)
		}
	}
}

// corsMiddleware handles CORS headers
func corsMiddleware(methods string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", methods)
		c.Header("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, X-Request-ID, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// ResponseHelpers provides methods for REST-native responses
type ResponseHelpers struct{}

// Success sends the resource directly (no wrapper)
func (h *ResponseHelpers) Success(c *gin.Context, resource interface{}) {
	c.JSON(http.StatusOK, resource)
}

// Created sends a 201 created response with the created resource
func (h *ResponseHelpers) Created(c *gin.Context, resource interface{}) {
	c.JSON(http.StatusCreated, resource)
}

func (h *ResponseHelpers) ValidationError(c *gin.Context, field, message string) {
	problem := models.NewValidationProblem(field, message, models.ErrorCodeInvalidField)
	h.problem(c, problem)
}

func (h *ResponseHelpers) MultiValidationError(c *gin.Context, violations []models.ValidationError) {
	h.problem(c, models.NewMultiValidationProblem(violations))
}

// BusinessError sends a business logic error (409 or 422)
func (h *ResponseHelpers) BusinessError(c *gin.Context, status int, title, detail string, code models.ErrorCode) {
	h.problem(c, models.NewBusinessLogicProblem(status, title, detail, code))
}

// NotFound sends a 404 not found response
func (h *ResponseHelpers) NotFound(c *gin.Context, resource string) {
	h.problem(c, models.NewNotFoundProblem(resource))
}

// InternalError sends a 500 internal server error response
func (h *ResponseHelpers) InternalError(c *gin.Context, err error) {
	// Log the error for debugging but don't expose internals
	log.Error().
		Str("request_id", getRequestID(c)).
		Err(err).
		Msg("Internal server error")

	h.problem(c, models.NewInternalErrorProblem())
}

// StockError maps an error returned by the stock services onto a problem response
func (h *ResponseHelpers) StockError(c *gin.Context, err error) {
	var insufficient *models.InsufficientStockError
	var validationErr *models.ValidationError

	switch {
	case errors.As(err, &validationErr):
		h.ValidationError(c, validationErr.Field, validationErr.Message)
	case errors.Is(err, models.ErrInvalidQuantity):
		h.ValidationError(c, "quantity", err.Error())
	case errors.Is(err, models.ErrInvalidProductID):
		h.ValidationError(c, "product_id", err.Error())
	case errors.Is(err, models.ErrInvalidRequest):
		h.ValidationError(c, "request", err.Error())
	case errors.Is(err, models.ErrNotFound):
		h.NotFound(c, "Stock record")
	case errors.As(err, &insufficient):
		h.problem(c, models.NewInsufficientStockProblem(insufficient))
	case errors.Is(err, models.ErrOutOfStock):
		h.BusinessError(c, http.StatusConflict, "Out Of Stock", err.Error(), models.ErrorCodeOutOfStock)
	case errors.Is(err, models.ErrConflict), errors.Is(err, models.ErrVersionConflict):
		h.BusinessError(c, http.StatusConflict, "Concurrent Update", "The stock record kept changing, retry the request", models.ErrorCodeConcurrentUpdate)
	case errors.Is(err, models.ErrAlreadyExists):
		h.BusinessError(c, http.StatusConflict, "Already Exists", err.Error(), models.ErrorCodeAlreadyExists)
	case errors.Is(err, models.ErrTimeout):
		h.logUnavailable(c, err)
		h.problem(c, models.NewUnavailableProblem(http.StatusGatewayTimeout, "Stock Store Timeout", models.ErrorCodeStoreTimeout))
	case errors.Is(err, models.ErrStoreUnavailable):
		h.logUnavailable(c, err)
		h.problem(c, models.NewUnavailableProblem(http.StatusServiceUnavailable, "Stock Store Unavailable", models.ErrorCodeStoreUnavailable))
	default:
		h.InternalError(c, err)
	}
}

func (h *ResponseHelpers) logUnavailable(c *gin.Context, err error) {
	log.Warn().
		Str("request_id", getRequestID(c)).
		Str("path", c.FullPath()).
		Err(err).
		Msg("Stock store unavailable")
}

func (h *ResponseHelpers) problem(c *gin.Context, problem *models.ProblemDetails) {
	if requestID := getRequestID(c); requestID != "" {
		c.Header("X-Request-ID", requestID)
	}
	problem.Instance = c.Request.URL.Path
	c.AbortWithStatusJSON(problem.Status, problem)
}

// Helper functions

func getRequestID(c *gin.Context) string {
	if requestID, exists := c.Get("request_id"); exists {
		return requestID.(string)
	}
	return ""
}

func handleValidationError(c *gin.Context, err error) {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		violations := make([]models.ValidationError, 0, len(validationErrors))
		for _, validationError := range validationErrors {
			violations = append(violations, models.ValidationError{
				Field:   strings.ToLower(validationError.Field()),
				Message: getValidationMessage(validationError),
				Code:    validationError.Tag(),
			})
		}

		Response.MultiValidationError(c, violations)
		return
	}

	// Malformed JSON or wrong types
	Response.problem(c, models.NewValidationProblem("request", "Invalid request format", models.ErrorCodeInvalidFormat))
}

func getValidationMessage(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return "This field is required"
	case "min":
		return "Value is too small"
	case "max":
		return "Value is too large"
	case "gt":
		return "Value must be positive"
	default:
		return "Invalid value"
	}
}

// Response is the shared set of response helpers
var Response = &ResponseHelpers{}
