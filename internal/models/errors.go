package models

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by stores, the controller and the HTTP layer.
var (
	ErrNotFound          = errors.New("stock record not found")
	ErrAlreadyExists     = errors.New("stock record already exists")
	ErrOutOfStock        = errors.New("product is out of stock")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrVersionConflict   = errors.New("stock version mismatch")
	ErrConflict          = errors.New("concurrent update conflict")
	ErrTimeout           = errors.New("stock store timeout")
	ErrStoreUnavailable  = errors.New("stock store unavailable")
	ErrInvalidQuantity   = errors.New("quantity must be positive")
	ErrInvalidProductID  = errors.New("product id must be positive")
	ErrInvalidRequest    = errors.New("invalid request")
)

// InsufficientStockError reports how much stock is actually available.
type InsufficientStockError struct {
	ProductID int64 `json:"product_id"`
	Requested int   `json:"requested"`
	Available int   `json:"available"`
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// ValidationError represents validation errors with detailed field information
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Value   any    `json:"value,omitempty"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// SystemError represents system-level errors (store, cache, broker)
type SystemError struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Cause     error     `json:"-"`
	Component string    `json:"component"`
}

func (e *SystemError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s in %s: %s (caused by: %v)", e.Code, e.Component, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s in %s: %s", e.Code, e.Component, e.Message)
}

func (e *SystemError) Unwrap() error {
	return e.Cause
}

// Is lets callers match a SystemError against the sentinel for its code.
func (e *SystemError) Is(target error) bool {
	switch e.Code {
	case ErrorCodeStoreTimeout:
		return target == ErrTimeout
	case ErrorCodeStoreUnavailable:
		return target == ErrStoreUnavailable
	}
	return false
}

func NewValidationError(field, message string, value any) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	}
}

func NewSystemError(code ErrorCode, component, message string, cause error) *SystemError {
	return &SystemError{
		Code:      code,
		Message:   message,
		Cause:     cause,
		Component: component,
	}
}

// GetErrorCode maps an error chain onto its API error code
func GetErrorCode(err error) ErrorCode {
	var validationErr *ValidationError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &validationErr):
		return ErrorCodeValidationError
	case errors.Is(err, ErrInvalidQuantity), errors.Is(err, ErrInvalidProductID), errors.Is(err, ErrInvalidRequest):
		return ErrorCodeInvalidField
	case errors.Is(err, ErrNotFound):
		return ErrorCodeStockNotFound
	case errors.Is(err, ErrAlreadyExists):
		return ErrorCodeAlreadyExists
	case errors.Is(err, ErrOutOfStock):
		return ErrorCodeOutOfStock
	case errors.Is(err, ErrInsufficientStock):
		return ErrorCodeInsufficientStock
	case errors.Is(err, ErrConflict), errors.Is(err, ErrVersionConflict):
		return ErrorCodeConcurrentUpdate
	case errors.Is(err, ErrTimeout):
		return ErrorCodeStoreTimeout
	case errors.Is(err, ErrStoreUnavailable):
		return ErrorCodeStoreUnavailable
	default:
		return ErrorCodeInternalError
	}
}
