package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"stock-service/internal/models"
)

// Script results below 1 are status codes, not versions.
const (
	scriptMissing  = -1
	scriptConflict = -2
	scriptExists   = 0
)

// casScript sets quantity and bumps version only if the stored version matches.
var casScript = redis.NewScript(`
local v = redis.call('HGET', KEYS[1], 'version')
if not v then return -1 end
if tonumber(v) ~= tonumber(ARGV[1]) then return -2 end
local nv = tonumber(v) + 1
redis.call('HSET', KEYS[1], 'quantity', ARGV[2], 'version', nv, 'updated_at', ARGV[3])
return nv
`)

// createScript inserts a record at version 1 unless it already exists.
var createScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then return 0 end
redis.call('HSET', KEYS[1], 'product_id', ARGV[1], 'quantity', ARGV[2], 'version', 1, 'updated_at', ARGV[3])
return 1
`)

// StockStore keeps stock records as Redis hashes. Conditional writes run as
// Lua scripts so the version check and the update are atomic on the server.
type StockStore struct {
	client    redis.UniversalClient
	keyPrefix string
}

// NewStockStore creates a Redis-backed stock store
func NewStockStore(client redis.UniversalClient, keyPrefix string) *StockStore {
	return &StockStore{client: client, keyPrefix: keyPrefix}
}

// Read retrieves a stock record by product id
func (s *StockStore) Read(ctx context.Context, productID int64) (*models.StockRecord, error) {
	vals, err := s.client.HMGet(ctx, s.recordKey(productID), "quantity", "version", "updated_at").Result()
	if err != nil {
		log.Error().Err(err).Int64("product_id", productID).Msg("Failed to get stock record from redis")
		return nil, fmt.Errorf("failed to get stock record: %w", err)
	}

	record, ok, err := parseRecord(productID, vals)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, models.ErrNotFound
	}
	return record, nil
}

// ConditionalWrite runs the compare-and-swap script
func (s *StockStore) ConditionalWrite(ctx context.Context, w models.StockWrite) (int64, error) {
	if w.Quantity < 0 {
		return 0, models.ErrInvalidQuantity
	}

	res, err := casScript.Run(ctx, s.client, []string{s.recordKey(w.ProductID)},
		w.ExpectedVersion, w.Quantity, w.UpdatedAt.UnixMilli()).Int64()
	if err != nil {
		log.Error().Err(err).Int64("product_id", w.ProductID).Msg("Failed to update stock record in redis")
		return 0, fmt.Errorf("failed to update stock record: %w", err)
	}

	switch res {
	case scriptMissing:
		return 0, models.ErrNotFound
	case scriptConflict:
		return 0, models.ErrVersionConflict
	}
	return res, nil
}

// BatchRead pipelines one HMGET per id
func (s *StockStore) BatchRead(ctx context.Context, productIDs []int64) (map[int64]models.StockRecord, error) {
	result := make(map[int64]models.StockRecord, len(productIDs))
	if len(productIDs) == 0 {
		return result, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.SliceCmd, len(productIDs))
	for i, id := range productIDs {
		cmds[i] = pipe.HMGet(ctx, s.recordKey(id), "quantity", "version", "updated_at")
	}
	if _, err := pipe.Exec(ctx); err != nil {
		log.Error().Err(err).Int("ids", len(productIDs)).Msg("Failed to batch read stock records from redis")
		return nil, fmt.Errorf("failed to batch read stock records: %w", err)
	}

	for i, cmd := range cmds {
		record, ok, err := parseRecord(productIDs[i], cmd.Val())
		if err != nil {
			return nil, err
		}
		if ok {
			result[productIDs[i]] = *record
		}
	}
	return result, nil
}

// Create inserts a new record at version 1
func (s *StockStore) Create(ctx context.Context, record *models.StockRecord) error {
	if record.Quantity < 0 {
		return models.ErrInvalidQuantity
	}

	res, err := createScript.Run(ctx, s.client, []string{s.recordKey(record.ProductID)},
		record.ProductID, record.Quantity, record.LastUpdated.UnixMilli()).Int64()
	if err != nil {
		log.Error().Err(err).Int64("product_id", record.ProductID).Msg("Failed to create stock record in redis")
		return fmt.Errorf("failed to create stock record: %w", err)
	}
	if res == scriptExists {
		return models.ErrAlreadyExists
	}

	record.Version = 1
	return nil
}

// Ping checks if Redis is available
func (s *StockStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *StockStore) recordKey(productID int64) string {
	return fmt.Sprintf("%sstock:%d", s.keyPrefix, productID)
}

// parseRecord decodes an HMGET reply. A reply of all nils means the hash does not exist.
func parseRecord(productID int64, vals []interface{}) (*models.StockRecord, bool, error) {
	if len(vals) != 3 || vals[0] == nil || vals[1] == nil {
		return nil, false, nil
	}

	quantity, err := strconv.Atoi(fmt.Sprint(vals[0]))
	if err != nil {
		return nil, false, fmt.Errorf("corrupt quantity for product %d: %w", productID, err)
	}
	version, err := strconv.ParseInt(fmt.Sprint(vals[1]), 10, 64)
	if err != nil {
		return nil, false, fmt.Errorf("corrupt version for product %d: %w", productID, err)
	}

	var updatedAt time.Time
	if vals[2] != nil {
		millis, err := strconv.ParseInt(fmt.Sprint(vals[2]), 10, 64)
		if err != nil {
			return nil, false, fmt.Errorf("corrupt updated_at for product %d: %w", productID, err)
		}
		updatedAt = time.UnixMilli(millis).UTC()
	}

	return &models.StockRecord{
		ProductID:   productID,
		Quantity:    quantity,
		Version:     version,
		LastUpdated: updatedAt,
	}, true, nil
}
