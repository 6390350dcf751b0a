package models

import (
	"time"
)

// ErrorCode represents standardized error codes
type ErrorCode string

const (
	// Error codes for API responses
	ErrorCodeInvalidField        ErrorCode = "INVALID_FIELD"
	ErrorCodeMissingField        ErrorCode = "MISSING_FIELD"
	ErrorCodeInvalidFormat       ErrorCode = "INVALID_FORMAT"
	ErrorCodeValidationError     ErrorCode = "VALIDATION_ERROR"
	ErrorCodeStockNotFound       ErrorCode = "STOCK_NOT_FOUND"
	ErrorCodeAlreadyExists       ErrorCode = "ALREADY_EXISTS"
	ErrorCodeOutOfStock          ErrorCode = "OUT_OF_STOCK"
	ErrorCodeInsufficientStock   ErrorCode = "INSUFFICIENT_STOCK"
	ErrorCodeConcurrentUpdate    ErrorCode = "CONCURRENT_UPDATE"
	ErrorCodeStoreTimeout        ErrorCode = "STORE_TIMEOUT"
	ErrorCodeStoreUnavailable    ErrorCode = "STORE_UNAVAILABLE"
	ErrorCodeNotificationFailure ErrorCode = "NOTIFICATION_FAILURE"
	ErrorCodeInternalError       ErrorCode = "INTERNAL_ERROR"
)

const (
	ProblemTypeValidationError = "validation-error"
	ProblemTypeBusinessError   = "business-logic-error"
	ProblemTypeNotFound        = "not-found"
	ProblemTypeUnavailable     = "service-unavailable"
	ProblemTypeInternalError   = "internal-error"
)

// API Request Models

// QuantityRequest is the body of reserve, decrement and restock calls
type QuantityRequest struct {
	Quantity int `json:"quantity" binding:"required,min=1"`
}

// SetStockRequest sets an absolute quantity. Zero is allowed.
type SetStockRequest struct {
	Quantity *int `json:"quantity" binding:"required,min=0"`
}

// BulkStockRequest asks for a snapshot of several products
type BulkStockRequest struct {
	ProductIDs []int64 `json:"product_ids" binding:"required,min=1,dive,gt=0"`
}

// API Response Models

// BulkStockResponse is the listing-page view of a snapshot. Unknown ids are
// absent from Items.
type BulkStockResponse struct {
	Items      map[int64]StockLevel `json:"items"`
	Count      int                  `json:"count"`
	LowStock   []int64              `json:"low_stock"`
	OutOfStock []int64              `json:"out_of_stock"`
	TakenAt    time.Time            `json:"taken_at"`
}

// NewBulkStockResponse flattens a snapshot for JSON.
func NewBulkStockResponse(snapshot *StockSnapshot) *BulkStockResponse {
	resp := &BulkStockResponse{
		Items:      make(map[int64]StockLevel, snapshot.Len()),
		Count:      snapshot.Len(),
		LowStock:   []int64{},
		OutOfStock: []int64{},
		TakenAt:    snapshot.TakenAt,
	}
	for id, level := range snapshot.Entries {
		resp.Items[id] = level
	}
	for _, level := range snapshot.LowStock() {
		resp.LowStock = append(resp.LowStock, level.ProductID)
	}
	for _, level := range snapshot.OutOfStock() {
		resp.OutOfStock = append(resp.OutOfStock, level.ProductID)
	}
	return resp
}

// SetStockResponse is returned by PUT /stock/:productId
type SetStockResponse struct {
	StockLevel
	Created bool `json:"created"`
}

type ProblemDetails struct {
	Type      string      `json:"type"`
	Title     string      `json:"title"`
	Status    int         `json:"status"`
	Detail    string      `json:"detail,omitempty"`
	Instance  string      `json:"instance,omitempty"`
	Field     string      `json:"field,omitempty"`
	Code      string      `json:"code,omitempty"`
	Available *int        `json:"available,omitempty"`
	Errors    interface{} `json:"errors,omitempty"`
}

func NewProblemDetails(status int, title, detail string) *ProblemDetails {
	return &ProblemDetails{
		Type:   getProblemType(status),
		Title:  title,
		Status: status,
		Detail: detail,
	}
}

// NewValidationProblem creates a validation error problem
func NewValidationProblem(field, message string, code ErrorCode) *ProblemDetails {
	return &ProblemDetails{
		Type:   ProblemTypeValidationError,
		Title:  "Validation Failed",
		Status: 400,
		Detail: message,
		Field:  field,
		Code:   string(code),
	}
}

// NewMultiValidationProblem creates a multi-field validation error problem
func NewMultiValidationProblem(violations []ValidationError) *ProblemDetails {
	return &ProblemDetails{
		Type:   ProblemTypeValidationError,
		Title:  "Validation Failed",
		Status: 400,
		Detail: "Multiple validation errors occurred",
		Errors: violations,
	}
}

// NewBusinessLogicProblem creates a business logic error problem
func NewBusinessLogicProblem(status int, title, detail string, code ErrorCode) *ProblemDetails {
	return &ProblemDetails{
		Type:   ProblemTypeBusinessError,
		Title:  title,
		Status: status,
		Detail: detail,
		Code:   string(code),
	}
}

// NewInsufficientStockProblem carries the available quantity so callers can offer a partial amount
func NewInsufficientStockProblem(err *InsufficientStockError) *ProblemDetails {
	problem := NewBusinessLogicProblem(409, "Insufficient Stock", err.Error(), ErrorCodeInsufficientStock)
	available := err.Available
	problem.Available = &available
	return problem
}

// NewNotFoundProblem creates a not found error problem
func NewNotFoundProblem(resource string) *ProblemDetails {
	return &ProblemDetails{
		Type:   ProblemTypeNotFound,
		Title:  "Resource Not Found",
		Status: 404,
		Detail: resource + " not found",
		Code:   string(ErrorCodeStockNotFound),
	}
}

// NewUnavailableProblem covers store timeouts (504) and outages (503)
func NewUnavailableProblem(status int, title string, code ErrorCode) *ProblemDetails {
	return &ProblemDetails{
		Type:   ProblemTypeUnavailable,
		Title:  title,
		Status: status,
		Detail: "Stock data is temporarily unavailable, retry later",
		Code:   string(code),
	}
}

// NewInternalErrorProblem creates an internal server error problem
func NewInternalErrorProblem() *ProblemDetails {
	return &ProblemDetails{
		Type:   ProblemTypeInternalError,
		Title:  "Internal Server Error",
		Status: 500,
		Detail: "An unexpected error occurred",
		Code:   string(ErrorCodeInternalError),
	}
}

// Helper function to get problem type URI based on status code
func getProblemType(status int) string {
	switch status {
	case 400:
		return ProblemTypeValidationError
	case 404:
		return ProblemTypeNotFound
	case 409, 422:
		return ProblemTypeBusinessError
	case 503, 504:
		return ProblemTypeUnavailable
	default:
		return ProblemTypeInternalError
	}
}
