package outbox

import (
	"context"
	"github.com/ariefcatur/go-storefront-orders/internal/tracing"
	"github.com/segmentio/kafka-go"
	"log/slog"
)

// Publisher delivers one outbox row to the event bus. A nil error means
// the bus accepted it and the row may be marked sent.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaDispatcher publishes rows keyed by order id so one order's events
// stay on one partition, in order.
type KafkaDispatcher struct {
	log    *slog.Logger
	writer MessageWriter
	topic  string
}

var _ Publisher = (*KafkaDispatcher)(nil)

func NewKafkaDispatcher(log *slog.Logger, writer MessageWriter, topic string) *KafkaDispatcher {
	return &KafkaDispatcher{log: log, writer: writer, topic: topic}
}

func (d *KafkaDispatcher) Publish(ctx context.Context, event Event) error {
	headers := make([]kafka.Header, 0, len(event.Headers)+2)

	for k, v := range event.Headers {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	headers = append(headers, kafka.Header{Key: "event_type", Value: []byte(event.Type)})
	headers = tracing.InjectKafkaHeaders(tracing.ContextWithTraceparent(ctx, event.Traceparent), headers)

	msg := kafka.Message{
		Topic:   d.topic,
		Key:     []byte(event.AggregateID),
		Value:   event.Payload,
		Headers: headers,
	}
	if err := d.writer.WriteMessages(ctx, msg); err != nil {
		d.log.Error("outbox dispatch failed", "event_id", event.ID, "err", err)
		return err
	}
	d.log.Debug("outbox dispatched", "event_id", event.ID, "type", event.Type)
	return nil
}
