package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"stock-service/internal/metrics"
	"stock-service/internal/models"
	"stock-service/internal/tracing"
)

const storeComponent = "stock-store"

// callStore bounds one store access by timeout and normalizes its failure.
// Domain errors pass through; deadline expiry becomes ErrTimeout and anything
// else becomes ErrStoreUnavailable.
func callStore[T any](ctx context.Context, timeout time.Duration, call string, fn func(context.Context) (T, error)) (T, error) {
	spanCtx, span := tracing.StartSpan(ctx, "stock_store."+call, attribute.String("store.call", call))
	defer span.End()

	callCtx, cancel := context.WithTimeout(spanCtx, timeout)
	defer cancel()

	start := time.Now()
	result, err := fn(callCtx)
	metrics.ObserveStoreCall(call, start)
	if err == nil {
		return result, nil
	}

	err = classifyStoreError(callCtx, ctx, call, err)
	if errors.Is(err, models.ErrTimeout) || errors.Is(err, models.ErrStoreUnavailable) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	var zero T
	return zero, err
}

func classifyStoreError(callCtx, parent context.Context, call string, err error) error {
	switch {
	case errors.Is(err, models.ErrNotFound),
		errors.Is(err, models.ErrVersionConflict),
		errors.Is(err, models.ErrAlreadyExists),
		errors.Is(err, models.ErrInvalidQuantity),
		errors.Is(err, models.ErrTimeout),
		errors.Is(err, models.ErrStoreUnavailable):
		return err
	case errors.Is(parent.Err(), context.Canceled):
		return fmt.Errorf("%s: %w", call, context.Canceled)
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(callCtx.Err(), context.DeadlineExceeded),
		isNetTimeout(err):
		return models.NewSystemError(models.ErrorCodeStoreTimeout, storeComponent, call+" timed out", err)
	default:
		return models.NewSystemError(models.ErrorCodeStoreUnavailable, storeComponent, call+" failed", err)
	}
}

func isNetTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
