package notify

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker/v2"

	"stock-service/internal/interfaces"
	"stock-service/internal/models"
)

// BreakerConfig controls when a sink is taken out of rotation
type BreakerConfig struct {
	MaxFailures uint32        // Consecutive failures that open the breaker
	OpenTimeout time.Duration // Time before a half-open probe is allowed
}

// BreakerSink fails fast while the wrapped sink keeps failing, so a dead
// broker does not add NotifyTimeout to every stock write.
type BreakerSink struct {
	sink interfaces.NotificationSink
	cb   *gobreaker.CircuitBreaker[struct{}]
}

func NewBreakerSink(name string, sink interfaces.NotificationSink, cfg BreakerConfig) *BreakerSink {
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 5
	}
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("sink", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Notification circuit breaker state changed")
		},
	}

	return &BreakerSink{
		sink: sink,
		cb:   gobreaker.NewCircuitBreaker[struct{}](settings),
	}
}

func (b *BreakerSink) Notify(ctx context.Context, event *models.StockStateChanged) error {
	_, err := b.cb.Execute(func() (struct{}, error) {
		return struct{}{}, b.sink.Notify(ctx, event)
	})
	return err
}

// State reports the breaker state
func (b *BreakerSink) State() gobreaker.State {
	return b.cb.State()
}
