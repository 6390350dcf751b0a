package interfaces

import (
	"context"

	"stock-service/internal/models"
)

// StockService defines the contract for single-product stock operations
type StockService interface {
	GetStock(ctx context.Context, productID int64) (*models.StockLevel, error)
	Reserve(ctx context.Context, productID int64, quantity int) (*models.ReservationResult, error)
	Decrement(ctx context.Context, productID int64, quantity int) (*models.AdjustmentResult, error)
	Restock(ctx context.Context, productID int64, quantity int) (*models.AdjustmentResult, error)
	SetStock(ctx context.Context, productID int64, quantity int) (*models.StockLevel, bool, error)
}

// BulkQuery defines the contract for listing-page reads
type BulkQuery interface {
	GetBulk(ctx context.Context, productIDs []int64) (*models.StockSnapshot, error)
}
