package repository

import (
	"context"
	"sync"

	"stock-service/internal/models"
)

// MemoryStore implements StockStore with in-memory storage. Conditional
// writes are serialized by the mutex.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[int64]models.StockRecord
}

// NewMemoryStore creates a new in-memory stock store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[int64]models.StockRecord),
	}
}

// Read returns the record for productID
func (s *MemoryStore) Read(ctx context.Context, productID int64) (*models.StockRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[productID]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &record, nil
}

// ConditionalWrite applies w if the stored version still matches
func (s *MemoryStore) ConditionalWrite(ctx context.Context, w models.StockWrite) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if w.Quantity < 0 {
		return 0, models.ErrInvalidQuantity
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[w.ProductID]
	if !ok {
		return 0, models.ErrNotFound
	}
	if record.Version != w.ExpectedVersion {
		return 0, models.ErrVersionConflict
	}

	record.Quantity = w.Quantity
	record.Version++
	record.LastUpdated = w.UpdatedAt
	s.records[w.ProductID] = record

	return record.Version, nil
}

// BatchRead returns the records that exist among productIDs
func (s *MemoryStore) BatchRead(ctx context.Context, productIDs []int64) (map[int64]models.StockRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[int64]models.StockRecord, len(productIDs))
	for _, id := range productIDs {
		if record, exists := s.records[id]; exists {
			result[id] = record
		}
	}
	return result, nil
}

// Create inserts a new record at version 1
func (s *MemoryStore) Create(ctx context.Context, record *models.StockRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if record.Quantity < 0 {
		return models.ErrInvalidQuantity
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[record.ProductID]; exists {
		return models.ErrAlreadyExists
	}

	record.Version = 1
	s.records[record.ProductID] = *record
	return nil
}
