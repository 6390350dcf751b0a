package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"stock-service/internal/interfaces"
	"stock-service/internal/metrics"
	"stock-service/internal/models"
)

// StockController handles reads, availability checks and conditional writes
// against the stock store. It keeps no state between calls.
type StockController struct {
	store      interfaces.StockStore
	sink       interfaces.NotificationSink
	classifier Classifier
	config     ControllerConfig
	now        func() time.Time
}

// ControllerConfig holds controller configuration
type ControllerConfig struct {
	LowStockThreshold  int
	MaxConflictRetries int           // Retries after the first attempt before surfacing ErrConflict
	StoreTimeout       time.Duration // Bound on every store call
	NotifyTimeout      time.Duration // Bound on every sink call
}

// DefaultControllerConfig returns the documented defaults
func DefaultControllerConfig() ControllerConfig {
	return ControllerConfig{
		LowStockThreshold:  DefaultLowStockThreshold,
		MaxConflictRetries: 3,
		StoreTimeout:       3 * time.Second,
		NotifyTimeout:      2 * time.Second,
	}
}

// Validate validates the controller configuration
func (c ControllerConfig) Validate() error {
	if c.LowStockThreshold < 1 {
		return fmt.Errorf("low stock threshold must be positive, got %d", c.LowStockThreshold)
	}
	if c.MaxConflictRetries < 0 {
		return fmt.Errorf("max conflict retries must not be negative, got %d", c.MaxConflictRetries)
	}
	if c.StoreTimeout <= 0 {
		return fmt.Errorf("store timeout must be positive, got %v", c.StoreTimeout)
	}
	if c.NotifyTimeout <= 0 {
		return fmt.Errorf("notify timeout must be positive, got %v", c.NotifyTimeout)
	}
	return nil
}

// NewStockController creates a new stock controller with dependency injection and validation
func NewStockController(
	store interfaces.StockStore,
	sink interfaces.NotificationSink,
	config ControllerConfig,
) (*StockController, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid controller configuration: %w", err)
	}
	if store == nil {
		return nil, errors.New("stock store is required")
	}
	classifier, err := NewClassifier(config.LowStockThreshold)
	if err != nil {
		return nil, err
	}

	return &StockController{
		store:      store,
		sink:       sink,
		classifier: classifier,
		config:     config,
		now:        time.Now,
	}, nil
}

// GetStock returns the current record and its state
func (s *StockController) GetStock(ctx context.Context, productID int64) (*models.StockLevel, error) {
	if productID <= 0 {
		return nil, models.ErrInvalidProductID
	}

	record, err := s.read(ctx, productID)
	if err != nil {
		s.countOutcome("get", err)
		return nil, err
	}

	level := s.classifier.Level(*record)
	return &level, nil
}

// Reserve checks that quantity units are available. It does not hold or
// decrement anything; the authoritative step is Decrement.
func (s *StockController) Reserve(ctx context.Context, productID int64, quantity int) (*models.ReservationResult, error) {
	if productID <= 0 {
		return nil, models.ErrInvalidProductID
	}
	if quantity <= 0 {
		return nil, fmt.Errorf("%w, got %d", models.ErrInvalidQuantity, quantity)
	}

	record, err := s.read(ctx, productID)
	if err != nil {
		s.countOutcome("reserve", err)
		return nil, err
	}

	if record.Quantity == 0 {
		metrics.StockOperations.WithLabelValues("reserve", metrics.OutcomeRejected).Inc()
		return nil, fmt.Errorf("product %d: %w", productID, models.ErrOutOfStock)
	}
	if record.Quantity < quantity {
		metrics.StockOperations.WithLabelValues("reserve", metrics.OutcomeRejected).Inc()
		return nil, &models.InsufficientStockError{
			ProductID: productID,
			Requested: quantity,
			Available: record.Quantity,
		}
	}

	metrics.StockOperations.WithLabelValues("reserve", metrics.OutcomeSuccess).Inc()
	return &models.ReservationResult{
		ProductID: productID,
		Requested: quantity,
		Available: record.Quantity,
		State:     s.classifier.Classify(record.Quantity),
		Reserved:  true,
	}, nil
}

// Decrement removes up to quantity units with a conditional write. The result
// is clamped at zero, so asking for more than is available empties the stock
// rather than failing.
func (s *StockController) Decrement(ctx context.Context, productID int64, quantity int) (*models.AdjustmentResult, error) {
	if productID <= 0 {
		return nil, models.ErrInvalidProductID
	}
	if quantity <= 0 {
		return nil, fmt.Errorf("%w, got %d", models.ErrInvalidQuantity, quantity)
	}

	return s.adjust(ctx, "decrement", productID, quantity, func(current int) int {
		return max(0, current-quantity)
	})
}

// Restock adds quantity units through the same conditional write path
func (s *StockController) Restock(ctx context.Context, productID int64, quantity int) (*models.AdjustmentResult, error) {
	if productID <= 0 {
		return nil, models.ErrInvalidProductID
	}
	if quantity <= 0 {
		return nil, fmt.Errorf("%w, got %d", models.ErrInvalidQuantity, quantity)
	}

	return s.adjust(ctx, "restock", productID, quantity, func(current int) int {
		return current + quantity
	})
}

// SetStock overwrites the quantity, creating the record when it does not exist.
// The boolean result reports whether a record was created.
func (s *StockController) SetStock(ctx context.Context, productID int64, quantity int) (*models.StockLevel, bool, error) {
	if productID <= 0 {
		return nil, false, models.ErrInvalidProductID
	}
	if quantity < 0 {
		return nil, false, fmt.Errorf("%w, got %d", models.ErrInvalidQuantity, quantity)
	}

	record := &models.StockRecord{
		ProductID:   productID,
		Quantity:    quantity,
		Version:     1,
		LastUpdated: s.now().UTC(),
	}
	_, err := callStore(ctx, s.config.StoreTimeout, "create", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.store.Create(ctx, record)
	})
	if err == nil {
		log.Info().Int64("product_id", productID).Int("quantity", quantity).Msg("Stock record created")
		metrics.StockOperations.WithLabelValues("set", metrics.OutcomeSuccess).Inc()
		level := s.classifier.Level(*record)
		return &level, true, nil
	}
	if !errors.Is(err, models.ErrAlreadyExists) {
		s.countOutcome("set", err)
		return nil, false, err
	}

	result, err := s.adjust(ctx, "set", productID, quantity, func(int) int { return quantity })
	if err != nil {
		return nil, false, err
	}

	level := s.classifier.Level(models.StockRecord{
		ProductID:   productID,
		Quantity:    result.NewQuantity,
		Version:     result.Version,
		LastUpdated: result.UpdatedAt,
	})
	return &level, false, nil
}

// adjust runs the read-compute-write cycle. A lost race restarts the cycle
// from a fresh read; after the first attempt plus MaxConflictRetries retries
// it gives up with ErrConflict.
func (s *StockController) adjust(ctx context.Context, op string, productID int64, requested int, next func(current int) int) (*models.AdjustmentResult, error) {
	attempts := s.config.MaxConflictRetries + 1

	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%s product %d: %w", op, productID, err)
		}

		current, err := s.read(ctx, productID)
		if err != nil {
			s.countOutcome(op, err)
			return nil, err
		}

		newQty := next(current.Quantity)
		now := s.now().UTC()
		write := models.StockWrite{
			ProductID:       productID,
			Quantity:        newQty,
			ExpectedVersion: current.Version,
			UpdatedAt:       now,
		}

		version, err := callStore(ctx, s.config.StoreTimeout, "conditional_write", func(ctx context.Context) (int64, error) {
			return s.store.ConditionalWrite(ctx, write)
		})
		if errors.Is(err, models.ErrVersionConflict) {
			metrics.VersionConflicts.WithLabelValues(op).Inc()
			log.Debug().
				Str("operation", op).
				Int64("product_id", productID).
				Int64("expected_version", current.Version).
				Int("attempt", attempt).
				Msg("Stock version conflict, re-reading")
			continue
		}
		if err != nil {
			s.countOutcome(op, err)
			return nil, err
		}

		result := &models.AdjustmentResult{
			ProductID:        productID,
			Requested:        requested,
			Applied:          abs(current.Quantity - newQty),
			PreviousQuantity: current.Quantity,
			NewQuantity:      newQty,
			Version:          version,
			OldState:         s.classifier.Classify(current.Quantity),
			NewState:         s.classifier.Classify(newQty),
			Attempts:         attempt,
			UpdatedAt:        now,
		}

		metrics.StockOperations.WithLabelValues(op, metrics.OutcomeSuccess).Inc()
		log.Debug().
			Str("operation", op).
			Int64("product_id", productID).
			Int("previous_qty", result.PreviousQuantity).
			Int("new_qty", result.NewQuantity).
			Int64("version", version).
			Msg("Stock updated")

		s.notifyStateChange(ctx, result)
		return result, nil
	}

	metrics.StockOperations.WithLabelValues(op, metrics.OutcomeConflict).Inc()
	log.Warn().
		Str("operation", op).
		Int64("product_id", productID).
		Int("attempts", attempts).
		Msg("Giving up after repeated version conflicts")
	return nil, fmt.Errorf("%s product %d after %d attempts: %w", op, productID, attempts, models.ErrConflict)
}

func (s *StockController) read(ctx context.Context, productID int64) (*models.StockRecord, error) {
	return callStore(ctx, s.config.StoreTimeout, "read", func(ctx context.Context) (*models.StockRecord, error) {
		return s.store.Read(ctx, productID)
	})
}

// notifyStateChange sends at most one event per committed write. Sink errors
// are logged and dropped; the write has already been committed.
func (s *StockController) notifyStateChange(ctx context.Context, result *models.AdjustmentResult) {
	if !result.StateChanged() || s.sink == nil {
		return
	}

	event := models.NewStockStateChanged(result.ProductID, result.OldState, result.NewState, result.NewQuantity, result.UpdatedAt)
	metrics.StateChanges.WithLabelValues(string(event.NewState)).Inc()

	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.NotifyTimeout)
	defer cancel()

	if err := s.sink.Notify(notifyCtx, event); err != nil {
		metrics.NotificationFailures.WithLabelValues("controller").Inc()
		log.Warn().Err(err).
			Str("event_id", event.EventID).
			Int64("product_id", event.ProductID).
			Str("old_state", string(event.OldState)).
			Str("new_state", string(event.NewState)).
			Msg("Failed to deliver stock state notification")
	}
}

func (s *StockController) countOutcome(op string, err error) {
	outcome := metrics.OutcomeError
	switch {
	case errors.Is(err, models.ErrNotFound):
		outcome = metrics.OutcomeNotFound
	case errors.Is(err, models.ErrTimeout):
		outcome = metrics.OutcomeTimeout
	}
	metrics.StockOperations.WithLabelValues(op, outcome).Inc()
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
