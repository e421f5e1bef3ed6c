package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"messenger-relay/internal/domain"
	"messenger-relay/internal/ports"

	amqp "github.com/rabbitmq/amqp091-go"
)

var _ ports.NotificationConsumer = (*Consumer)(nil)

// Consumer implements ports.NotificationConsumer using RabbitMQ.
type Consumer struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	log     *slog.Logger
}

// NewConsumer dials RabbitMQ, declares topology, and returns a Consumer.
func NewConsumer(amqpURL string, log *slog.Logger) (*Consumer, error) {
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	// One notification at a time; a delivery can block for several seconds of retries.
	if err := ch.Qos(1, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("set qos: %w", err)
	}

	if err := declare(ch); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	return &Consumer{conn: conn, channel: ch, log: log}, nil
}

// Consume registers a consumer on the notify queue and calls handler for each
// delivery. It acknowledges only if the handler returns nil.
// It blocks until ctx is cancelled.
func (c *Consumer) Consume(ctx context.Context, handler func(ctx context.Context, n domain.Notification) error) error {
	deliveries, err := c.channel.Consume(
		notifyQueue,
		"",    // auto-generated consumer tag
		false, // manual ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("deliveries channel closed")
			}
			c.dispatch(ctx, d, handler)
		}
	}
}

// dispatch decodes one delivery, runs handler and settles the delivery:
// malformed bodies are dropped, handler errors are requeued.
func (c *Consumer) dispatch(ctx context.Context, d amqp.Delivery, handler func(ctx context.Context, n domain.Notification) error) {
	var n domain.Notification
	if err := json.Unmarshal(d.Body, &n); err != nil {
		c.log.Error("unmarshal notification", "err", err)
		_ = d.Nack(false, false) // dead-letter; don't requeue malformed payloads
		return
	}

	if err := handler(ctx, n); err != nil {
		c.log.Error("handler error", "notification_id", n.ID, "err", err)
		_ = d.Nack(false, true) // requeue for retry
		return
	}

	_ = d.Ack(false)
}

// Close cleanly shuts down the channel and connection.
func (c *Consumer) Close() {
	c.channel.Close()
	c.conn.Close()
}
