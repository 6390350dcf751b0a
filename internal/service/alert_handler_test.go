package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stock-service/internal/models"
)

func TestAlertHandler_SkipsRedeliveredEvents(t *testing.T) {
	relay := &recordingSink{}
	handler := NewAlertHandler(relay, 8)
	event := models.NewStockStateChanged(1, models.StockStateLowStock, models.StockStateOutOfStock, 0, time.Now())

	require.NoError(t, handler.HandleStateChange(context.Background(), event))
	require.NoError(t, handler.HandleStateChange(context.Background(), event))

	assert.Len(t, relay.Events(), 1)
}

func TestAlertHandler_RelayFailureAllowsRetry(t *testing.T) {
	relay := &recordingSink{err: errors.New("exchange closed")}
	handler := NewAlertHandler(relay, 8)
	event := models.NewStockStateChanged(1, models.StockStateInStock, models.StockStateLowStock, 3, time.Now())

	err := handler.HandleStateChange(context.Background(), event)
	require.Error(t, err)

	relay.mu.Lock()
	relay.err = nil
	relay.mu.Unlock()

	require.NoError(t, handler.HandleStateChange(context.Background(), event))
	assert.Len(t, relay.Events(), 2)
}

func TestAlertHandler_RetriedEventStaysDeduplicated(t *testing.T) {
	relay := &recordingSink{err: errors.New("exchange closed")}
	handler := NewAlertHandler(relay, 2)
	retried := &models.StockStateChanged{EventID: "evt-retried", ProductID: 1, NewState: models.StockStateOutOfStock}
	other := &models.StockStateChanged{EventID: "evt-other", ProductID: 2, NewState: models.StockStateLowStock}
	ctx := context.Background()

	require.Error(t, handler.HandleStateChange(ctx, retried))

	relay.mu.Lock()
	relay.err = nil
	relay.mu.Unlock()

	require.NoError(t, handler.HandleStateChange(ctx, retried))
	require.NoError(t, handler.HandleStateChange(ctx, other))
	require.NoError(t, handler.HandleStateChange(ctx, retried))

	// failed attempt, successful retry, other; the last redelivery is skipped
	assert.Len(t, relay.Events(), 3)
}

func TestAlertHandler_WindowEvictsOldest(t *testing.T) {
	relay := &recordingSink{}
	handler := NewAlertHandler(relay, 2)

	events := make([]*models.StockStateChanged, 3)
	for i := range events {
		events[i] = &models.StockStateChanged{
			EventID:   fmt.Sprintf("evt-%d", i),
			ProductID: int64(i + 1),
			NewState:  models.StockStateLowStock,
		}
		require.NoError(t, handler.HandleStateChange(context.Background(), events[i]))
	}

	// evt-0 has left the window and is handled again
	require.NoError(t, handler.HandleStateChange(context.Background(), events[0]))
	assert.Len(t, relay.Events(), 4)
}

func TestAlertHandler_WithoutRelay(t *testing.T) {
	handler := NewAlertHandler(nil, 0)
	event := models.NewStockStateChanged(9, models.StockStateOutOfStock, models.StockStateInStock, 40, time.Now())

	assert.NoError(t, handler.HandleStateChange(context.Background(), event))
}
