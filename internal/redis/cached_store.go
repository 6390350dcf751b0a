package redis

import (
	"context"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"stock-service/internal/interfaces"
	"stock-service/internal/metrics"
	"stock-service/internal/models"
)

const (
	// defaultLoadTimeout bounds a shared miss load when the caller set no deadline
	defaultLoadTimeout = 5 * time.Second
	cacheWriteTimeout  = time.Second
)

// CachedStore puts a TTL-bounded cache in front of the bulk read path only.
// Single reads and all writes go to the primary store. Every successful write
// stores the new record in the cache, and fills never replace a newer version,
// so a bulk read racing a write cannot put the old quantity back.
type CachedStore struct {
	primary interfaces.StockStore
	cache   interfaces.StockCache
	group   singleflight.Group
}

// NewCachedStore wraps primary with cache
func NewCachedStore(primary interfaces.StockStore, cache interfaces.StockCache) *CachedStore {
	return &CachedStore{primary: primary, cache: cache}
}

func (s *CachedStore) Read(ctx context.Context, productID int64) (*models.StockRecord, error) {
	return s.primary.Read(ctx, productID)
}

func (s *CachedStore) ConditionalWrite(ctx context.Context, w models.StockWrite) (int64, error) {
	version, err := s.primary.ConditionalWrite(ctx, w)
	if err != nil {
		return 0, err
	}
	s.refresh(ctx, models.StockRecord{
		ProductID:   w.ProductID,
		Quantity:    w.Quantity,
		Version:     version,
		LastUpdated: w.UpdatedAt,
	})
	return version, nil
}

func (s *CachedStore) Create(ctx context.Context, record *models.StockRecord) error {
	if err := s.primary.Create(ctx, record); err != nil {
		return err
	}
	s.refresh(ctx, *record)
	return nil
}

// BatchRead serves hits from the cache and loads all misses with one primary
// BatchRead. Identical concurrent miss sets share a single load, and each
// caller stops waiting when its own context ends.
func (s *CachedStore) BatchRead(ctx context.Context, productIDs []int64) (map[int64]models.StockRecord, error) {
	cached, err := s.cache.GetMany(ctx, productIDs)
	if err != nil {
		log.Warn().Err(err).Msg("Stock cache unavailable, reading from primary store")
		return s.primary.BatchRead(ctx, productIDs)
	}

	misses := make([]int64, 0, len(productIDs))
	for _, id := range productIDs {
		if _, ok := cached[id]; !ok {
			misses = append(misses, id)
		}
	}
	metrics.BulkCacheLookups.WithLabelValues("hit").Add(float64(len(cached)))
	metrics.BulkCacheLookups.WithLabelValues("miss").Add(float64(len(misses)))
	if len(misses) == 0 {
		return cached, nil
	}

	ch := s.group.DoChan(missKey(misses), func() (interface{}, error) {
		loadCtx, cancel := loadContext(ctx)
		defer cancel()
		return s.load(loadCtx, misses)
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if res.Err != nil {
		return nil, res.Err
	}

	for id, record := range res.Val.(map[int64]models.StockRecord) {
		cached[id] = record
	}
	return cached, nil
}

func (s *CachedStore) load(ctx context.Context, misses []int64) (map[int64]models.StockRecord, error) {
	records, err := s.primary.BatchRead(ctx, misses)
	if err != nil {
		return nil, err
	}
	fill := make([]models.StockRecord, 0, len(records))
	for _, record := range records {
		fill = append(fill, record)
	}
	if err := s.cache.SetMany(ctx, fill); err != nil {
		log.Warn().Err(err).Int("records", len(fill)).Msg("Failed to fill stock cache")
	}
	return records, nil
}

// refresh stores a freshly written record. When that fails the entry is
// dropped instead so the next bulk read goes to the primary store.
func (s *CachedStore) refresh(ctx context.Context, record models.StockRecord) {
	cacheCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cacheWriteTimeout)
	defer cancel()

	err := s.cache.SetMany(cacheCtx, []models.StockRecord{record})
	if err == nil {
		return
	}
	log.Warn().Err(err).Int64("product_id", record.ProductID).Msg("Failed to refresh cached stock, invalidating")
	if err := s.cache.Delete(cacheCtx, record.ProductID); err != nil {
		log.Warn().Err(err).Int64("product_id", record.ProductID).Msg("Failed to invalidate cached stock")
	}
}

// loadContext detaches a shared load from the caller that started it, keeping
// that caller's deadline.
func loadContext(ctx context.Context) (context.Context, context.CancelFunc) {
	detached := context.WithoutCancel(ctx)
	if deadline, ok := ctx.Deadline(); ok {
		return context.WithDeadline(detached, deadline)
	}
	return context.WithTimeout(detached, defaultLoadTimeout)
}

func missKey(ids []int64) string {
	sorted := slices.Clone(ids)
	slices.Sort(sorted)
	parts := make([]string, len(sorted))
	for i, id := range sorted {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}
