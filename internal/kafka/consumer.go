package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"stock-service/internal/interfaces"
	"stock-service/internal/models"
)

// ErrInvalidEvent marks messages that will never succeed and are skipped
var ErrInvalidEvent = errors.New("invalid stock event")

// messageReader is the part of kafka.Reader the consumer uses
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer consumes stock state transitions from Kafka
type Consumer struct {
	reader     messageReader
	maxRetries int
	baseDelay  time.Duration
}

// NewConsumer creates a new Kafka consumer in consumerGroup
func NewConsumer(brokers []string, consumerGroup, topic string) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: brokers,
		Topic:   topic,
		GroupID: consumerGroup,

		MinBytes:       1,
		MaxBytes:       10e6, // 10MB max message size
		CommitInterval: time.Second,
		StartOffset:    kafka.LastOffset,
		MaxWait:        1 * time.Second,

		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			log.Error().Msgf("Kafka stock events reader error: "+msg, args...)
		}),
	})

	return &Consumer{
		reader:     reader,
		maxRetries: 3,
		baseDelay:  100 * time.Millisecond,
	}
}

// ConsumeStateChanges fetches events until ctx is done. A message is
// committed only once handler succeeds or the message is undecodable.
func (c *Consumer) ConsumeStateChanges(ctx context.Context, handler interfaces.StateChangeHandler) error {
	log.Info().Msg("Starting to consume stock state changes")

	for {
		message, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Info().Msg("Stopping stock state change consumption")
				return nil
			}
			log.Error().Err(err).Msg("Failed to fetch stock event message")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		event, err := decodeEvent(message)
		if err != nil {
			log.Error().Err(err).
				Str("topic", message.Topic).
				Int("partition", message.Partition).
				Int64("offset", message.Offset).
				Msg("Failed to decode stock event, skipping")

			if commitErr := c.reader.CommitMessages(ctx, message); commitErr != nil {
				log.Error().Err(commitErr).Msg("Failed to commit invalid message")
			}
			continue
		}

		if err := c.processWithRetry(ctx, handler, event); err != nil {
			log.Error().Err(err).
				Str("event_id", event.EventID).
				Int64("product_id", event.ProductID).
				Msg("Failed to handle stock event after retries")
			// Left uncommitted so it is redelivered after a rebalance or restart
			continue
		}

		if err := c.reader.CommitMessages(ctx, message); err != nil {
			log.Error().Err(err).
				Str("event_id", event.EventID).
				Msg("Failed to commit stock event message")
		} else {
			log.Debug().
				Str("event_id", event.EventID).
				Int64("product_id", event.ProductID).
				Msg("Processed and committed stock event")
		}
	}
}

// processWithRetry retries with exponential backoff: 100ms, 200ms, 400ms
func (c *Consumer) processWithRetry(ctx context.Context, handler interfaces.StateChangeHandler, event *models.StockStateChanged) error {
	var err error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		err = handler.HandleStateChange(ctx, event)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrInvalidEvent) {
			log.Warn().Err(err).Str("event_id", event.EventID).Msg("Non-retryable error, skipping event")
			return err
		}

		if attempt < c.maxRetries {
			backoff := c.baseDelay * time.Duration(1<<attempt)
			log.Warn().Err(err).
				Str("event_id", event.EventID).
				Int("attempt", attempt+1).
				Int("max_attempts", c.maxRetries+1).
				Dur("backoff", backoff).
				Msg("Stock event handling failed, retrying after backoff")

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
	}

	return fmt.Errorf("stock event handling failed after %d attempts: %w", c.maxRetries+1, err)
}

func decodeEvent(message kafka.Message) (*models.StockStateChanged, error) {
	var event models.StockStateChanged
	if err := json.Unmarshal(message.Value, &event); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	if event.ProductID <= 0 || event.NewState == "" {
		return nil, fmt.Errorf("%w: missing product id or state", ErrInvalidEvent)
	}
	return &event, nil
}

// Close closes the Kafka reader
func (c *Consumer) Close() error {
	if err := c.reader.Close(); err != nil {
		return fmt.Errorf("failed to close kafka reader: %w", err)
	}
	return nil
}
