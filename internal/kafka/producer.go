package kafka

import (
	"context"
	"github.com/segmentio/kafka-go"
	"time"
)

// Producer is a synchronous writer: WriteMessages returns only after the
// brokers acked, so the outbox relay knows what it may mark sent.
type Producer struct {
	w *kafka.Writer
}

func NewProducer(brokers []string, topic string) *Producer {
	return &Producer{
		w: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{}, // key = order_id, satu order satu partisi
			RequiredAcks:           kafka.RequireAll,
			BatchTimeout:           10 * time.Millisecond,
			AllowAutoTopicCreation: true,
		},
	}
}

// WriteMessages tolerates messages that carry the writer's own topic;
// kafka-go rejects a Topic on the message when the writer has one.
func (p *Producer) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	for i := range msgs {
		if msgs[i].Topic == p.w.Topic {
			msgs[i].Topic = ""
		}
		if msgs[i].Time.IsZero() {
			msgs[i].Time = time.Now()
		}
	}
	return p.w.WriteMessages(ctx, msgs...)
}

func (p *Producer) Close() error { return p.w.Close() }
