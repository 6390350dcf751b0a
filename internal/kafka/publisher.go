package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"stock-service/internal/models"
)

// messageWriter is the part of kafka.Writer the publisher uses
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher publishes stock state transitions to Kafka
type Publisher struct {
	writer messageWriter
	topic  string
}

// NewPublisher creates a new Kafka publisher
func NewPublisher(brokers []string, topic string) *Publisher {
	// Hash balancer routes messages with the same key (product id) to the same
	// partition, preserving per-product ordering.
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll, // Wait for all replicas
		Async:                  false,
		AllowAutoTopicCreation: true,

		BatchTimeout: 10 * time.Millisecond,
		BatchSize:    1,
		MaxAttempts:  3,
		WriteTimeout: 10 * time.Second,
	}

	return &Publisher{writer: writer, topic: topic}
}

// Notify publishes a state change event
func (p *Publisher) Notify(ctx context.Context, event *models.StockStateChanged) error {
	message, err := buildMessage(event)
	if err != nil {
		return err
	}

	if err := p.writer.WriteMessages(ctx, message); err != nil {
		log.Error().Err(err).
			Str("topic", p.topic).
			Int64("product_id", event.ProductID).
			Str("event_id", event.EventID).
			Msg("Failed to publish stock state change")
		return fmt.Errorf("failed to publish stock state change: %w", err)
	}

	log.Info().
		Str("topic", p.topic).
		Int64("product_id", event.ProductID).
		Str("event_id", event.EventID).
		Str("new_state", string(event.NewState)).
		Msg("Published stock state change")

	return nil
}

// Close closes the Kafka writer
func (p *Publisher) Close() error {
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("failed to close kafka writer: %w", err)
	}
	return nil
}

func buildMessage(event *models.StockStateChanged) (kafka.Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to marshal event: %w", err)
	}

	return kafka.Message{
		Key:   []byte(strconv.FormatInt(event.ProductID, 10)),
		Value: data,
		Time:  event.Timestamp,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(models.EventTypeStockStateChanged)},
			{Key: "event-id", Value: []byte(event.EventID)},
			{Key: "new-state", Value: []byte(event.NewState)},
		},
	}, nil
}
