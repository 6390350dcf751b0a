package redis

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"stock-service/internal/models"
	"stock-service/internal/repository"
)

// MockStockStore records primary store calls
type MockStockStore struct {
	mock.Mock
}

func (m *MockStockStore) Read(ctx context.Context, productID int64) (*models.StockRecord, error) {
	args := m.Called(ctx, productID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.StockRecord), args.Error(1)
}

func (m *MockStockStore) ConditionalWrite(ctx context.Context, w models.StockWrite) (int64, error) {
	args := m.Called(ctx, w)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockStockStore) BatchRead(ctx context.Context, productIDs []int64) (map[int64]models.StockRecord, error) {
	args := m.Called(ctx, productIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[int64]models.StockRecord), args.Error(1)
}

func (m *MockStockStore) Create(ctx context.Context, record *models.StockRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func TestCachedStore_MissesLoadedOnceThenServedFromCache(t *testing.T) {
	// Arrange
	_, client := setupTestRedis(t)
	primary := new(MockStockStore)
	store := NewCachedStore(primary, NewCacheClient(client, time.Minute, "test:"))
	ctx := context.Background()

	primary.On("BatchRead", mock.Anything, []int64{1, 2, 3}).
		Return(map[int64]models.StockRecord{
			1: {ProductID: 1, Quantity: 10, Version: 1},
			2: {ProductID: 2, Quantity: 3, Version: 1},
		}, nil).Once()
	primary.On("BatchRead", mock.Anything, []int64{3}).
		Return(map[int64]models.StockRecord{}, nil).Once()

	// Act
	first, err := store.BatchRead(ctx, []int64{1, 2, 3})
	require.NoError(t, err)
	second, err := store.BatchRead(ctx, []int64{1, 2, 3})
	require.NoError(t, err)

	// Assert
	assert.Len(t, first, 2)
	assert.Len(t, second, 2)
	assert.Equal(t, first[1].Quantity, second[1].Quantity)
	assert.Equal(t, first[2].Quantity, second[2].Quantity)
	primary.AssertExpectations(t)
}

func TestCachedStore_WriteRefreshesCachedEntry(t *testing.T) {
	_, client := setupTestRedis(t)
	primary := new(MockStockStore)
	cache := NewCacheClient(client, time.Minute, "test:")
	store := NewCachedStore(primary, cache)
	ctx := context.Background()
	require.NoError(t, cache.SetMany(ctx, []models.StockRecord{{ProductID: 1, Quantity: 10, Version: 1}}))

	write := models.StockWrite{ProductID: 1, Quantity: 4, ExpectedVersion: 1}
	primary.On("ConditionalWrite", mock.Anything, write).Return(int64(2), nil).Once()

	version, err := store.ConditionalWrite(ctx, write)

	require.NoError(t, err)
	assert.Equal(t, int64(2), version)
	got, err := cache.GetMany(ctx, []int64{1})
	require.NoError(t, err)
	assert.Equal(t, 4, got[1].Quantity)
	assert.Equal(t, int64(2), got[1].Version)
}

// writeDuringBatchRead commits a write through the cached store after the
// primary batch read has returned, before the cache is filled.
type writeDuringBatchRead struct {
	*repository.MemoryStore
	once  sync.Once
	write func()
}

func (s *writeDuringBatchRead) BatchRead(ctx context.Context, productIDs []int64) (map[int64]models.StockRecord, error) {
	records, err := s.MemoryStore.BatchRead(ctx, productIDs)
	s.once.Do(s.write)
	return records, err
}

func TestCachedStore_FillDoesNotOverwriteConcurrentWrite(t *testing.T) {
	_, client := setupTestRedis(t)
	ctx := context.Background()
	memory := repository.NewMemoryStore()
	require.NoError(t, memory.Create(ctx, &models.StockRecord{ProductID: 1, Quantity: 10}))

	primary := &writeDuringBatchRead{MemoryStore: memory}
	store := NewCachedStore(primary, NewCacheClient(client, time.Minute, "test:"))
	primary.write = func() {
		_, err := store.ConditionalWrite(ctx, models.StockWrite{ProductID: 1, Quantity: 0, ExpectedVersion: 1, UpdatedAt: time.Now().UTC()})
		assert.NoError(t, err)
	}

	first, err := store.BatchRead(ctx, []int64{1})
	require.NoError(t, err)
	assert.Equal(t, 10, first[1].Quantity)

	second, err := store.BatchRead(ctx, []int64{1})
	require.NoError(t, err)
	assert.Equal(t, 0, second[1].Quantity)
	assert.Equal(t, int64(2), second[1].Version)
}

func TestCachedStore_CancelledCallerDoesNotFailSharedLoad(t *testing.T) {
	_, client := setupTestRedis(t)
	primary := new(MockStockStore)
	store := NewCachedStore(primary, NewCacheClient(client, time.Minute, "test:"))

	var startOnce sync.Once
	started := make(chan struct{})
	release := make(chan struct{})
	primary.On("BatchRead", mock.Anything, []int64{1}).
		Run(func(args mock.Arguments) {
			startOnce.Do(func() { close(started) })
			<-release
			assert.NoError(t, args.Get(0).(context.Context).Err())
		}).
		Return(map[int64]models.StockRecord{1: {ProductID: 1, Quantity: 7, Version: 3}}, nil)

	leaderCtx, cancelLeader := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, err := store.BatchRead(leaderCtx, []int64{1})
		leaderErr <- err
	}()
	<-started

	followerResult := make(chan map[int64]models.StockRecord, 1)
	followerErr := make(chan error, 1)
	go func() {
		records, err := store.BatchRead(context.Background(), []int64{1})
		followerResult <- records
		followerErr <- err
	}()
	// let the follower join the in-flight load
	time.Sleep(50 * time.Millisecond)

	cancelLeader()
	assert.ErrorIs(t, <-leaderErr, context.Canceled)
	close(release)

	require.NoError(t, <-followerErr)
	assert.Equal(t, 7, (<-followerResult)[1].Quantity)
}

func TestCachedStore_FailedWriteKeepsCache(t *testing.T) {
	mr, client := setupTestRedis(t)
	primary := new(MockStockStore)
	cache := NewCacheClient(client, time.Minute, "test:")
	store := NewCachedStore(primary, cache)
	ctx := context.Background()
	require.NoError(t, cache.SetMany(ctx, []models.StockRecord{{ProductID: 1, Quantity: 10, Version: 1}}))

	write := models.StockWrite{ProductID: 1, Quantity: 4, ExpectedVersion: 0}
	primary.On("ConditionalWrite", mock.Anything, write).Return(int64(0), models.ErrVersionConflict).Once()

	_, err := store.ConditionalWrite(ctx, write)

	assert.ErrorIs(t, err, models.ErrVersionConflict)
	assert.True(t, mr.Exists("test:stock-cache:1"))
}

func TestCachedStore_ReadAlwaysHitsPrimary(t *testing.T) {
	_, client := setupTestRedis(t)
	primary := new(MockStockStore)
	cache := NewCacheClient(client, time.Minute, "test:")
	store := NewCachedStore(primary, cache)
	ctx := context.Background()
	require.NoError(t, cache.SetMany(ctx, []models.StockRecord{{ProductID: 1, Quantity: 99, Version: 1}}))

	primary.On("Read", mock.Anything, int64(1)).Return(&models.StockRecord{ProductID: 1, Quantity: 5, Version: 4}, nil).Once()

	record, err := store.Read(ctx, 1)

	require.NoError(t, err)
	assert.Equal(t, 5, record.Quantity)
	primary.AssertExpectations(t)
}

func TestCachedStore_CacheDownFallsBackToPrimary(t *testing.T) {
	mr, client := setupTestRedis(t)
	primary := new(MockStockStore)
	store := NewCachedStore(primary, NewCacheClient(client, time.Minute, "test:"))
	mr.Close()

	primary.On("BatchRead", mock.Anything, []int64{1}).
		Return(map[int64]models.StockRecord{1: {ProductID: 1, Quantity: 2, Version: 1}}, nil).Once()

	records, err := store.BatchRead(context.Background(), []int64{1})

	require.NoError(t, err)
	assert.Equal(t, 2, records[1].Quantity)
}

func TestCachedStore_PrimaryErrorPropagates(t *testing.T) {
	_, client := setupTestRedis(t)
	primary := new(MockStockStore)
	store := NewCachedStore(primary, NewCacheClient(client, time.Minute, "test:"))

	primary.On("BatchRead", mock.Anything, []int64{1}).Return(nil, assert.AnError).Once()

	_, err := store.BatchRead(context.Background(), []int64{1})

	assert.ErrorIs(t, err, assert.AnError)
}
