package interfaces

import (
	"context"

	"stock-service/internal/models"
)

// NotificationSink receives stock state transitions. Delivery is best effort
// from the controller's point of view.
type NotificationSink interface {
	Notify(ctx context.Context, event *models.StockStateChanged) error
}

// StateChangeHandler processes consumed state transitions
type StateChangeHandler interface {
	HandleStateChange(ctx context.Context, event *models.StockStateChanged) error
}
