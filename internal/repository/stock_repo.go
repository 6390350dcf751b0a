package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"stock-service/internal/models"
)

const uniqueViolation = "23505"

// StockRepository handles database operations for stock records
type StockRepository struct {
	db *sqlx.DB
}

// NewStockRepository creates a new stock repository
func NewStockRepository(db *sqlx.DB) *StockRepository {
	return &StockRepository{db: db}
}

// Read retrieves a stock record by product id
func (r *StockRepository) Read(ctx context.Context, productID int64) (*models.StockRecord, error) {
	var record models.StockRecord
	query := `SELECT product_id, quantity, version, updated_at
			  FROM stock_records WHERE product_id = $1`

	err := r.db.GetContext(ctx, &record, query, productID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		log.Error().Err(err).Int64("product_id", productID).Msg("Failed to get stock record")
		return nil, fmt.Errorf("failed to get stock record: %w", err)
	}

	return &record, nil
}

// ConditionalWrite updates quantity only while the row still carries the expected version
func (r *StockRepository) ConditionalWrite(ctx context.Context, w models.StockWrite) (int64, error) {
	query := `UPDATE stock_records
			  SET quantity = $2, version = version + 1, updated_at = $3
			  WHERE product_id = $1 AND version = $4
			  RETURNING version`

	var version int64
	err := r.db.GetContext(ctx, &version, query, w.ProductID, w.Quantity, w.UpdatedAt, w.ExpectedVersion)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, r.missOrConflict(ctx, w.ProductID)
		}
		log.Error().Err(err).Int64("product_id", w.ProductID).Msg("Failed to update stock record")
		return 0, fmt.Errorf("failed to update stock record: %w", err)
	}

	return version, nil
}

// missOrConflict tells a deleted row apart from a lost race after an update matched nothing
func (r *StockRepository) missOrConflict(ctx context.Context, productID int64) error {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM stock_records WHERE product_id = $1)`, productID)
	if err != nil {
		return fmt.Errorf("failed to check stock record: %w", err)
	}
	if !exists {
		return models.ErrNotFound
	}
	return models.ErrVersionConflict
}

// BatchRead fetches all existing records among productIDs in one query
func (r *StockRepository) BatchRead(ctx context.Context, productIDs []int64) (map[int64]models.StockRecord, error) {
	result := make(map[int64]models.StockRecord, len(productIDs))
	if len(productIDs) == 0 {
		return result, nil
	}

	var records []models.StockRecord
	query := `SELECT product_id, quantity, version, updated_at
			  FROM stock_records WHERE product_id = ANY($1)`

	if err := r.db.SelectContext(ctx, &records, query, pq.Array(productIDs)); err != nil {
		log.Error().Err(err).Int("ids", len(productIDs)).Msg("Failed to batch read stock records")
		return nil, fmt.Errorf("failed to batch read stock records: %w", err)
	}

	for _, record := range records {
		result[record.ProductID] = record
	}
	return result, nil
}

// Create inserts a new stock record at version 1
func (r *StockRepository) Create(ctx context.Context, record *models.StockRecord) error {
	query := `INSERT INTO stock_records (product_id, quantity, version, updated_at)
			  VALUES ($1, $2, 1, $3)`

	_, err := r.db.ExecContext(ctx, query, record.ProductID, record.Quantity, record.LastUpdated)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return models.ErrAlreadyExists
		}
		log.Error().Err(err).Int64("product_id", record.ProductID).Msg("Failed to create stock record")
		return fmt.Errorf("failed to create stock record: %w", err)
	}

	record.Version = 1
	return nil
}

// Ping checks database connectivity
func (r *StockRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
