// Package amqp publishes lifecycle events to a RabbitMQ topic exchange,
// the alternative to Kafka selected with EVENT_BUS=amqp.
package amqp

import (
	"context"
	"fmt"
	"github.com/ariefcatur/go-storefront-orders/internal/outbox"
	amqp "github.com/rabbitmq/amqp091-go"
	"log/slog"
	"strings"
	"time"
)

// Channel is the subset of *amqp.Channel the publisher uses.
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type Publisher struct {
	log      *slog.Logger
	conn     *amqp.Connection
	ch       Channel
	exchange string
}

var _ outbox.Publisher = (*Publisher)(nil)

// Dial connects with retry and declares the durable topic exchange.
func Dial(log *slog.Logger, url, exchange string) (*Publisher, error) {
	if exchange == "" {
		return nil, fmt.Errorf("exchange name cannot be empty")
	}
	var conn *amqp.Connection
	var err error
	for i := 0; i < 5; i++ {
		conn, err = amqp.Dial(url)
		if err == nil {
			break
		}
		retry := time.Duration(i*i)*time.Second + time.Second
		log.Warn("rabbitmq dial failed, retrying", "in", retry.String(), "err", err)
		time.Sleep(retry)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ after retries: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}
	log.Info("rabbitmq exchange ready", "exchange", exchange)
	return &Publisher{log: log, conn: conn, ch: ch, exchange: exchange}, nil
}

func newPublisher(log *slog.Logger, ch Channel, exchange string) *Publisher {
	return &Publisher{log: log, ch: ch, exchange: exchange}
}

// RoutingKey maps an event type to a key under "order.", e.g.
// OrderConfirmed -> order.confirmed, PaymentNeedsRefund -> order.payment_needs_refund.
func RoutingKey(eventType string) string {
	name := strings.TrimPrefix(eventType, "Order")
	var b strings.Builder
	for i, r := range name {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return "order." + b.String()
}

func (p *Publisher) Publish(ctx context.Context, event outbox.Event) error {
	headers := amqp.Table{"event_type": event.Type}
	for k, v := range event.Headers {
		headers[k] = v
	}
	if event.Traceparent != "" {
		headers["traceparent"] = event.Traceparent
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		MessageId:    event.Headers["event_id"],
		Headers:      headers,
		Body:         event.Payload,
	}
	key := RoutingKey(event.Type)
	if err := p.ch.PublishWithContext(ctx, p.exchange, key, false, false, msg); err != nil {
		return fmt.Errorf("failed to publish message to exchange %s with routing key %s: %w", p.exchange, key, err)
	}
	p.log.Debug("amqp published", "event_id", event.ID, "routing_key", key)
	return nil
}

func (p *Publisher) Close() error {
	if p.ch != nil {
		if err := p.ch.Close(); err != nil {
			return err
		}
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
