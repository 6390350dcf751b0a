package notify

import (
	"context"
	"errors"
	"fmt"

	"stock-service/internal/interfaces"
	"stock-service/internal/metrics"
	"stock-service/internal/models"
)

// NamedSink pairs a sink with the label used in errors and metrics
type NamedSink struct {
	Name string
	Sink interfaces.NotificationSink
}

// MultiSink delivers every event to all sinks, in order. One failing sink
// does not stop delivery to the rest.
type MultiSink struct {
	sinks []NamedSink
}

func NewMultiSink(sinks ...NamedSink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

func (m *MultiSink) Notify(ctx context.Context, event *models.StockStateChanged) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Sink.Notify(ctx, event); err != nil {
			metrics.NotificationFailures.WithLabelValues(s.Name).Inc()
			errs = append(errs, fmt.Errorf("%s sink: %w", s.Name, err))
		}
	}
	return errors.Join(errs...)
}

// Len returns the number of configured sinks
func (m *MultiSink) Len() int {
	return len(m.sinks)
}
