package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"stock-service/internal/models"
)

// setIfNewerScript stores a record unless the cached copy already carries the
// same or a higher version. Versions only grow, so a late fill of an old read
// can never replace what a later write put there.
var setIfNewerScript = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if cur then
  local v = tonumber(string.match(cur, '"version":(%d+)'))
  if v and v >= tonumber(ARGV[1]) then return 0 end
end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
return 1
`)

// CacheClient caches stock records for the bulk read path. Entries expire
// after ttl and are refreshed on every write that goes through CachedStore.
type CacheClient struct {
	client    redis.UniversalClient // Universal client supports both single and cluster
	ttl       time.Duration
	keyPrefix string
}

// NewCacheClient creates a new Redis cache client
func NewCacheClient(client redis.UniversalClient, ttl time.Duration, keyPrefix string) *CacheClient {
	return &CacheClient{
		client:    client,
		ttl:       ttl,
		keyPrefix: keyPrefix,
	}
}

// GetMany fetches cached records in one pipelined round trip. Misses are absent.
func (c *CacheClient) GetMany(ctx context.Context, productIDs []int64) (map[int64]models.StockRecord, error) {
	result := make(map[int64]models.StockRecord, len(productIDs))
	if len(productIDs) == 0 {
		return result, nil
	}

	pipe := c.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(productIDs))
	for i, id := range productIDs {
		cmds[i] = pipe.Get(ctx, c.stockKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		log.Error().Err(err).Int("ids", len(productIDs)).Msg("Failed to get stock from cache")
		return nil, fmt.Errorf("failed to get stock from cache: %w", err)
	}

	for i, cmd := range cmds {
		val, err := cmd.Result()
		if errors.Is(err, redis.Nil) {
			// Cache miss
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get stock from cache: %w", err)
		}
		var record models.StockRecord
		if err := json.Unmarshal([]byte(val), &record); err != nil {
			log.Warn().Err(err).Int64("product_id", productIDs[i]).Msg("Dropping unreadable cached stock")
			continue
		}
		result[productIDs[i]] = record
	}

	log.Debug().Int("requested", len(productIDs)).Int("hits", len(result)).Msg("Stock cache lookup")
	return result, nil
}

// SetMany stores records with the configured TTL. A record is skipped when
// the cache already holds the same or a newer version of it.
func (c *CacheClient) SetMany(ctx context.Context, records []models.StockRecord) error {
	if len(records) == 0 {
		return nil
	}

	pipe := c.client.Pipeline()
	for _, record := range records {
		data, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("failed to marshal stock record: %w", err)
		}
		setIfNewerScript.Eval(ctx, pipe, []string{c.stockKey(record.ProductID)},
			record.Version, data, c.ttl.Milliseconds())
	}

	if _, err := pipe.Exec(ctx); err != nil {
		log.Error().Err(err).Int("records", len(records)).Msg("Failed to set stock in cache")
		return fmt.Errorf("failed to set stock in cache: %w", err)
	}
	return nil
}

// Delete removes a cached record
func (c *CacheClient) Delete(ctx context.Context, productID int64) error {
	err := c.client.Del(ctx, c.stockKey(productID)).Err()
	if err != nil {
		log.Error().Err(err).Int64("product_id", productID).Msg("Failed to delete stock from cache")
		return fmt.Errorf("failed to delete stock from cache: %w", err)
	}

	log.Debug().Int64("product_id", productID).Msg("Deleted stock from cache")
	return nil
}

// Ping checks if Redis is available
func (c *CacheClient) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *CacheClient) Close() error {
	return c.client.Close()
}

// stockKey generates the cache key for a product with prefix
func (c *CacheClient) stockKey(productID int64) string {
	return fmt.Sprintf("%sstock-cache:%d", c.keyPrefix, productID)
}
