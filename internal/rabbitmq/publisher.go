package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"

	"stock-service/internal/models"
)

// channelPublisher is the part of amqp.Channel the publisher uses
type channelPublisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Publisher sends stock state transitions to a topic exchange
type Publisher struct {
	ch       channelPublisher
	exchange string
}

// NewPublisher creates a RabbitMQ notification sink on ch
func NewPublisher(ch *amqp.Channel, exchange string) *Publisher {
	return &Publisher{ch: ch, exchange: exchange}
}

// Notify publishes event with routing key stock.<new state>.<product id>
func (p *Publisher) Notify(ctx context.Context, event *models.StockStateChanged) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("could not marshal stock event: %w", err)
	}

	routingKey := RoutingKey(event)
	err = p.ch.PublishWithContext(ctx,
		p.exchange, // exchange
		routingKey, // routing key
		false,      // mandatory
		false,      // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    event.EventID,
			Timestamp:    event.Timestamp,
			Type:         models.EventTypeStockStateChanged,
			Body:         body,
		},
	)
	if err != nil {
		log.Error().Err(err).
			Str("exchange", p.exchange).
			Str("routing_key", routingKey).
			Str("event_id", event.EventID).
			Msg("Failed to publish stock event to RabbitMQ")
		return fmt.Errorf("failed to publish stock event: %w", err)
	}

	log.Debug().Str("routing_key", routingKey).Str("event_id", event.EventID).Msg("Published stock event to RabbitMQ")
	return nil
}

// RoutingKey builds stock.<state>.<product id>, e.g. stock.out_of_stock.42
func RoutingKey(event *models.StockStateChanged) string {
	return fmt.Sprintf("stock.%s.%d", strings.ToLower(string(event.NewState)), event.ProductID)
}
