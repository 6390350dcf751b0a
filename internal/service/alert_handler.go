package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"stock-service/internal/interfaces"
	"stock-service/internal/metrics"
	"stock-service/internal/models"
)

// AlertHandler turns consumed state transitions into operator alerts and
// optionally relays them to a downstream sink.
type AlertHandler struct {
	relay interfaces.NotificationSink

	mu     sync.Mutex
	seen   map[string]struct{}
	order  []string
	next   int
	window int
}

// NewAlertHandler remembers the last window event ids for de-duplication.
// relay may be nil.
func NewAlertHandler(relay interfaces.NotificationSink, window int) *AlertHandler {
	if window <= 0 {
		window = 1024
	}
	return &AlertHandler{
		relay:  relay,
		seen:   make(map[string]struct{}, window),
		order:  make([]string, window),
		window: window,
	}
}

// HandleStateChange logs the transition and relays it. Redelivered events are
// skipped. A relay failure is returned so the consumer retries the message.
func (h *AlertHandler) HandleStateChange(ctx context.Context, event *models.StockStateChanged) error {
	if h.isDuplicate(event.EventID) {
		metrics.AlertsHandled.WithLabelValues(string(event.NewState), metrics.OutcomeDuplicate).Inc()
		log.Debug().Str("event_id", event.EventID).Msg("Skipping duplicate stock alert")
		return nil
	}

	logEvent := log.Info()
	if event.NewState == models.StockStateOutOfStock {
		logEvent = log.Warn()
	}
	logEvent.
		Str("event_id", event.EventID).
		Int64("product_id", event.ProductID).
		Str("old_state", string(event.OldState)).
		Str("new_state", string(event.NewState)).
		Int("quantity", event.Quantity).
		Time("changed_at", event.Timestamp).
		Msg("Stock alert")

	if h.relay != nil {
		if err := h.relay.Notify(ctx, event); err != nil {
			metrics.AlertsHandled.WithLabelValues(string(event.NewState), metrics.OutcomeError).Inc()
			h.forget(event.EventID)
			return fmt.Errorf("failed to relay stock alert: %w", err)
		}
	}

	metrics.AlertsHandled.WithLabelValues(string(event.NewState), metrics.OutcomeSuccess).Inc()
	return nil
}

// isDuplicate records id and reports whether it was already present
func (h *AlertHandler) isDuplicate(id string) bool {
	if id == "" {
		return false
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.seen[id]; ok {
		return true
	}
	if evicted := h.order[h.next]; evicted != "" {
		delete(h.seen, evicted)
	}
	h.order[h.next] = id
	h.next = (h.next + 1) % h.window
	h.seen[id] = struct{}{}
	return false
}

// forget lets a failed event be handled again on redelivery. Its ring slot is
// cleared too, otherwise evicting that slot later would drop the entry the
// redelivery recorded.
func (h *AlertHandler) forget(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.seen, id)
	for i, recorded := range h.order {
		if recorded == id {
			h.order[i] = ""
		}
	}
}
