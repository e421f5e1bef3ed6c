package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"

	"messenger-relay/internal/domain"
	"messenger-relay/internal/ports"

	amqp "github.com/rabbitmq/amqp091-go"
)

const exchangeName = "messenger"

const (
	notifyQueue      = "messenger.notify"
	notifyRoutingKey = "messenger.notify"
	optInQueue       = "messenger.optin"
	optInRoutingKey  = "messenger.optin"
)

var (
	_ ports.Notifier  = (*Publisher)(nil)
	_ ports.OptInSink = (*Publisher)(nil)
)

// Publisher implements ports.Notifier and ports.OptInSink using RabbitMQ.
type Publisher struct {
	conn    *amqp.Connection
	channel *amqp.Channel
}

// NewPublisher dials RabbitMQ, declares the exchange and queues, and binds them.
func NewPublisher(amqpURL string) (*Publisher, error) {
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := declare(ch); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	return &Publisher{conn: conn, channel: ch}, nil
}

// Notify queues a notification for the relay worker.
func (p *Publisher) Notify(ctx context.Context, n domain.Notification) error {
	return p.publish(ctx, notifyRoutingKey, n.ID.String(), n)
}

// HandOff queues an OTN grant for the external token store.
func (p *Publisher) HandOff(ctx context.Context, grant domain.OptInGrant) error {
	return p.publish(ctx, optInRoutingKey, grant.PSID, grant)
}

func (p *Publisher) publish(ctx context.Context, routingKey, messageID string, v any) error {
	msg, err := newPublishing(messageID, v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", routingKey, err)
	}

	return p.channel.PublishWithContext(
		ctx,
		exchangeName,
		routingKey,
		false, // mandatory
		false, // immediate
		msg,
	)
}

func newPublishing(messageID string, v any) (amqp.Publishing, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return amqp.Publishing{}, err
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    messageID,
		Body:         body,
	}, nil
}

// Close cleanly shuts down the channel and connection.
func (p *Publisher) Close() {
	p.channel.Close()
	p.conn.Close()
}

// declare idempotently sets up the exchange, queues, and bindings.
func declare(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(exchangeName, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	bindings := []struct{ queue, key string }{
		{notifyQueue, notifyRoutingKey},
		{optInQueue, optInRoutingKey},
	}
	for _, b := range bindings {
		if _, err := ch.QueueDeclare(b.queue, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare queue %s: %w", b.queue, err)
		}
		if err := ch.QueueBind(b.queue, b.key, exchangeName, false, nil); err != nil {
			return fmt.Errorf("bind queue %s: %w", b.queue, err)
		}
	}

	return nil
}
