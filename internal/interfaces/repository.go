package interfaces

import (
	"context"

	"stock-service/internal/models"
)

// StockStore defines the contract for durable stock records. Implementations
// return models.ErrNotFound for unknown ids and models.ErrVersionConflict when a
// conditional write loses its race.
type StockStore interface {
	Read(ctx context.Context, productID int64) (*models.StockRecord, error)
	// ConditionalWrite applies w only if the stored version equals
	// w.ExpectedVersion and returns the new version.
	ConditionalWrite(ctx context.Context, w models.StockWrite) (int64, error)
	// BatchRead issues one round trip; ids that do not exist are left out.
	BatchRead(ctx context.Context, productIDs []int64) (map[int64]models.StockRecord, error)
	Create(ctx context.Context, record *models.StockRecord) error
}

// StockCache defines the contract for the bulk read cache
type StockCache interface {
	GetMany(ctx context.Context, productIDs []int64) (map[int64]models.StockRecord, error)
	SetMany(ctx context.Context, records []models.StockRecord) error
	Delete(ctx context.Context, productID int64) error
	Close() error
}
