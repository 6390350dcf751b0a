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

// DefaultMaxBulkIDs caps one bulk request
const DefaultMaxBulkIDs = 500

// BulkStockQuery serves listing pages from a single batched read
type BulkStockQuery struct {
	store      interfaces.StockStore
	classifier Classifier
	config     BulkQueryConfig
	now        func() time.Time
}

// BulkQueryConfig holds bulk read configuration
type BulkQueryConfig struct {
	LowStockThreshold int
	StoreTimeout      time.Duration
	MaxIDs            int
}

// NewBulkStockQuery creates a bulk query over store
func NewBulkStockQuery(store interfaces.StockStore, config BulkQueryConfig) (*BulkStockQuery, error) {
	if store == nil {
		return nil, errors.New("stock store is required")
	}
	if config.StoreTimeout <= 0 {
		return nil, fmt.Errorf("store timeout must be positive, got %v", config.StoreTimeout)
	}
	if config.MaxIDs <= 0 {
		config.MaxIDs = DefaultMaxBulkIDs
	}
	classifier, err := NewClassifier(config.LowStockThreshold)
	if err != nil {
		return nil, err
	}

	return &BulkStockQuery{
		store:      store,
		classifier: classifier,
		config:     config,
		now:        time.Now,
	}, nil
}

// GetBulk returns a snapshot of the requested products. Unknown ids are absent
// from the snapshot; they are never reported as zero stock.
func (q *BulkStockQuery) GetBulk(ctx context.Context, productIDs []int64) (*models.StockSnapshot, error) {
	ids, err := q.normalize(productIDs)
	if err != nil {
		return nil, err
	}

	snapshot := &models.StockSnapshot{
		Entries: make(map[int64]models.StockLevel, len(ids)),
		TakenAt: q.now().UTC(),
	}
	if len(ids) == 0 {
		return snapshot, nil
	}

	records, err := callStore(ctx, q.config.StoreTimeout, "batch_read", func(ctx context.Context) (map[int64]models.StockRecord, error) {
		return q.store.BatchRead(ctx, ids)
	})
	if err != nil {
		metrics.StockOperations.WithLabelValues("bulk", metrics.OutcomeError).Inc()
		log.Error().Err(err).Int("ids", len(ids)).Msg("Failed to read stock snapshot")
		return nil, err
	}

	for id, record := range records {
		snapshot.Entries[id] = q.classifier.Level(record)
	}

	metrics.StockOperations.WithLabelValues("bulk", metrics.OutcomeSuccess).Inc()
	log.Debug().
		Int("requested", len(ids)).
		Int("found", snapshot.Len()).
		Msg("Stock snapshot read")

	return snapshot, nil
}

// normalize de-duplicates ids, preserving first-seen order
func (q *BulkStockQuery) normalize(productIDs []int64) ([]int64, error) {
	seen := make(map[int64]struct{}, len(productIDs))
	ids := make([]int64, 0, len(productIDs))
	for _, id := range productIDs {
		if id <= 0 {
			return nil, fmt.Errorf("%w: %d", models.ErrInvalidProductID, id)
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	if len(ids) > q.config.MaxIDs {
		return nil, fmt.Errorf("%w: %d product ids exceeds limit of %d", models.ErrInvalidRequest, len(ids), q.config.MaxIDs)
	}
	return ids, nil
}
