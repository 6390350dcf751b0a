package service

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"stock-service/internal/models"
)

// MockStockStore implements interfaces.StockStore for testing
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

// recordingSink keeps every event it receives and can be told to fail
type recordingSink struct {
	mu     sync.Mutex
	events []*models.StockStateChanged
	err    error
}

func (s *recordingSink) Notify(_ context.Context, event *models.StockStateChanged) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return s.err
}

func (s *recordingSink) Events() []*models.StockStateChanged {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*models.StockStateChanged(nil), s.events...)
}
