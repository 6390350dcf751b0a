package notify

import (
	"context"

	"github.com/rs/zerolog/log"

	"stock-service/internal/models"
)

// LogSink writes each transition as a structured log line
type LogSink struct{}

func NewLogSink() *LogSink {
	return &LogSink{}
}

func (s *LogSink) Notify(_ context.Context, event *models.StockStateChanged) error {
	log.Info().
		Str("event_type", models.EventTypeStockStateChanged).
		Str("event_id", event.EventID).
		Int64("product_id", event.ProductID).
		Str("old_state", string(event.OldState)).
		Str("new_state", string(event.NewState)).
		Int("quantity", event.Quantity).
		Time("timestamp", event.Timestamp).
		Msg("Stock state changed")
	return nil
}
