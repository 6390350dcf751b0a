package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"stock-service/internal/models"
)

// MockStockService implements interfaces.StockService for testing
type MockStockService struct {
	mock.Mock
}

func (m *MockStockService) GetStock(ctx context.Context, productID int64) (*models.StockLevel, error) {
	args := m.Called(ctx, productID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.StockLevel), args.Error(1)
}

func (m *MockStockService) Reserve(ctx context.Context, productID int64, quantity int) (*models.ReservationResult, error) {
	args := m.Called(ctx, productID, quantity)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ReservationResult), args.Error(1)
}

func (m *MockStockService) Decrement(ctx context.Context, productID int64, quantity int) (*models.AdjustmentResult, error) {
	args := m.Called(ctx, productID, quantity)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.AdjustmentResult), args.Error(1)
}

func (m *MockStockService) Restock(ctx context.Context, productID int64, quantity int) (*models.AdjustmentResult, error) {
	args := m.Called(ctx, productID, quantity)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.AdjustmentResult), args.Error(1)
}

func (m *MockStockService) SetStock(ctx context.Context, productID int64, quantity int) (*models.StockLevel, bool, error) {
	args := m.Called(ctx, productID, quantity)
	if args.Get(0) == nil {
		return nil, false, args.Error(2)
	}
	return args.Get(0).(*models.StockLevel), args.Bool(1), args.Error(2)
}

// MockBulkQuery implements interfaces.BulkQuery for testing
type MockBulkQuery struct {
	mock.Mock
}

func (m *MockBulkQuery) GetBulk(ctx context.Context, productIDs []int64) (*models.StockSnapshot, error) {
	args := m.Called(ctx, productIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.StockSnapshot), args.Error(1)
}

func newTestRouter(stock *MockStockService, bulk *MockBulkQuery, checks map[string]HealthCheck) http.Handler {
	return NewStockHandler(stock, bulk, checks).SetupRoutes()
}

func doRequest(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeProblem(t *testing.T, w *httptest.ResponseRecorder) models.ProblemDetails {
	t.Helper()
	var problem models.ProblemDetails
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &problem))
	return problem
}

func TestGetStock_ReturnsLevel(t *testing.T) {
	stock := new(MockStockService)
	stock.On("GetStock", mock.Anything, int64(42)).Return(&models.StockLevel{
		StockRecord: models.StockRecord{ProductID: 42, Quantity: 3, Version: 7},
		State:       models.StockStateLowStock,
	}, nil)
	router := newTestRouter(stock, new(MockBulkQuery), nil)

	w := doRequest(t, router, http.MethodGet, "/api/v1/stock/42", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	var level models.StockLevel
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &level))
	assert.Equal(t, 3, level.Quantity)
	assert.Equal(t, models.StockStateLowStock, level.State)
}

func TestGetStock_InvalidID(t *testing.T) {
	stock := new(MockStockService)
	router := newTestRouter(stock, new(MockBulkQuery), nil)

	w := doRequest(t, router, http.MethodGet, "/api/v1/stock/abc", nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "product_id", decodeProblem(t, w).Field)
	stock.AssertNotCalled(t, "GetStock", mock.Anything, mock.Anything)
}

func TestStockErrors_MapToProblemDetails(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   models.ErrorCode
	}{
		{"not found", models.ErrNotFound, http.StatusNotFound, models.ErrorCodeStockNotFound},
		{"conflict", models.ErrConflict, http.StatusConflict, models.ErrorCodeConcurrentUpdate},
		{"out of stock", models.ErrOutOfStock, http.StatusConflict, models.ErrorCodeOutOfStock},
		{
			"timeout",
			models.NewSystemError(models.ErrorCodeStoreTimeout, "stock-store", "read timed out", context.DeadlineExceeded),
			http.StatusGatewayTimeout, models.ErrorCodeStoreTimeout,
		},
		{
			"unavailable",
			models.NewSystemError(models.ErrorCodeStoreUnavailable, "stock-store", "read failed", errors.New("refused")),
			http.StatusServiceUnavailable, models.ErrorCodeStoreUnavailable,
		},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError, models.ErrorCodeInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stock := new(MockStockService)
			stock.On("Decrement", mock.Anything, int64(1), 2).Return(nil, tt.err)
			router := newTestRouter(stock, new(MockBulkQuery), nil)

			w := doRequest(t, router, http.MethodPost, "/api/v1/stock/1/decrement", models.QuantityRequest{Quantity: 2})

			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, string(tt.code), decodeProblem(t, w).Code)
		})
	}
}

func TestReserve_InsufficientStockCarriesAvailable(t *testing.T) {
	stock := new(MockStockService)
	stock.On("Reserve", mock.Anything, int64(5), 3).
		Return(nil, &models.InsufficientStockError{ProductID: 5, Requested: 3, Available: 2})
	router := newTestRouter(stock, new(MockBulkQuery), nil)

	w := doRequest(t, router, http.MethodPost, "/api/v1/stock/5/reservations", models.QuantityRequest{Quantity: 3})

	require.Equal(t, http.StatusConflict, w.Code)
	problem := decodeProblem(t, w)
	assert.Equal(t, string(models.ErrorCodeInsufficientStock), problem.Code)
	require.NotNil(t, problem.Available)
	assert.Equal(t, 2, *problem.Available)
}

func TestReserve_RejectsNonPositiveQuantity(t *testing.T) {
	stock := new(MockStockService)
	router := newTestRouter(stock, new(MockBulkQuery), nil)

	w := doRequest(t, router, http.MethodPost, "/api/v1/stock/5/reservations", map[string]int{"quantity": -1})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	stock.AssertNotCalled(t, "Reserve", mock.Anything, mock.Anything, mock.Anything)
}

func TestDecrement_ReturnsAdjustment(t *testing.T) {
	stock := new(MockStockService)
	stock.On("Decrement", mock.Anything, int64(1), 10).Return(&models.AdjustmentResult{
		ProductID:        1,
		Requested:        10,
		Applied:          4,
		PreviousQuantity: 4,
		NewQuantity:      0,
		Version:          9,
		OldState:         models.StockStateLowStock,
		NewState:         models.StockStateOutOfStock,
		Attempts:         1,
	}, nil)
	router := newTestRouter(stock, new(MockBulkQuery), nil)

	w := doRequest(t, router, http.MethodPost, "/api/v1/stock/1/decrement", models.QuantityRequest{Quantity: 10})

	require.Equal(t, http.StatusOK, w.Code)
	var result models.AdjustmentResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, 4, result.Applied)
	assert.Equal(t, models.StockStateOutOfStock, result.NewState)
}

func TestSetStock_CreatedAndUpdated(t *testing.T) {
	level := &models.StockLevel{
		StockRecord: models.StockRecord{ProductID: 8, Quantity: 0, Version: 1},
		State:       models.StockStateOutOfStock,
	}
	stock := new(MockStockService)
	stock.On("SetStock", mock.Anything, int64(8), 0).Return(level, true, nil).Once()
	stock.On("SetStock", mock.Anything, int64(8), 0).Return(level, false, nil).Once()
	router := newTestRouter(stock, new(MockBulkQuery), nil)

	w := doRequest(t, router, http.MethodPut, "/api/v1/stock/8", map[string]int{"quantity": 0})
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "/api/v1/stock/8", w.Header().Get("Location"))

	w = doRequest(t, router, http.MethodPut, "/api/v1/stock/8", map[string]int{"quantity": 0})
	assert.Equal(t, http.StatusOK, w.Code)

	w = doRequest(t, router, http.MethodPut, "/api/v1/stock/8", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	stock.AssertNumberOfCalls(t, "SetStock", 2)
}

func TestBulk_QueryAndBody(t *testing.T) {
	snapshot := &models.StockSnapshot{
		Entries: map[int64]models.StockLevel{
			1: {StockRecord: models.StockRecord{ProductID: 1, Quantity: 10}, State: models.StockStateInStock},
			3: {StockRecord: models.StockRecord{ProductID: 3, Quantity: 0}, State: models.StockStateOutOfStock},
		},
		TakenAt: time.Now().UTC(),
	}
	bulk := new(MockBulkQuery)
	bulk.On("GetBulk", mock.Anything, []int64{1, 2, 3}).Return(snapshot, nil)
	router := newTestRouter(new(MockStockService), bulk, nil)

	for _, w := range []*httptest.ResponseRecorder{
		doRequest(t, router, http.MethodGet, "/api/v1/stock?ids=1,2,3", nil),
		doRequest(t, router, http.MethodPost, "/api/v1/stock/bulk", models.BulkStockRequest{ProductIDs: []int64{1, 2, 3}}),
	} {
		require.Equal(t, http.StatusOK, w.Code)
		var resp models.BulkStockResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, 2, resp.Count)
		assert.NotContains(t, resp.Items, int64(2))
		assert.Equal(t, []int64{3}, resp.OutOfStock)
		assert.Empty(t, resp.LowStock)
	}
	bulk.AssertNumberOfCalls(t, "GetBulk", 2)
}

func TestBulk_RejectsMalformedIDs(t *testing.T) {
	bulk := new(MockBulkQuery)
	router := newTestRouter(new(MockStockService), bulk, nil)

	w := doRequest(t, router, http.MethodGet, "/api/v1/stock?ids=1,x", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(t, router, http.MethodGet, "/api/v1/stock", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(t, router, http.MethodPost, "/api/v1/stock/bulk", models.BulkStockRequest{ProductIDs: []int64{0}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	bulk.AssertNotCalled(t, "GetBulk", mock.Anything, mock.Anything)
}

func TestHealthCheck(t *testing.T) {
	healthy := newTestRouter(new(MockStockService), new(MockBulkQuery), map[string]HealthCheck{
		"store": func(context.Context) error { return nil },
	})
	w := doRequest(t, healthy, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	unhealthy := newTestRouter(new(MockStockService), new(MockBulkQuery), map[string]HealthCheck{
		"store": func(context.Context) error { return errors.New("connection refused") },
	})
	w = doRequest(t, unhealthy, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	router := newTestRouter(new(MockStockService), new(MockBulkQuery), nil)

	w := doRequest(t, router, http.MethodGet, "/metrics", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestAlertsHandler_Health(t *testing.T) {
	handler := NewAlertsHandler()
	router := handler.SetupRoutes()

	w := doRequest(t, router, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	handler.SetConsuming(true)
	w = doRequest(t, router, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
