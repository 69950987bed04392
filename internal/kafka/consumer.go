package kafka

import (
	"context"
	"github.com/ariefcatur/go-storefront-orders/internal/tracing"
	"github.com/segmentio/kafka-go"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"
)

// Handler harus return nil hanya jika proses sukses & boleh commit offset.
type Handler func(ctx context.Context, m kafka.Message) error

// MessageReader is the part of *kafka.Reader the consumer drives.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	log     *slog.Logger
	r       MessageReader
	workers int
}

func NewConsumer(log *slog.Logger, brokers []string, group, topic string, workers int) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        group,
		Topic:          topic,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // manual commit
	})
	return newConsumer(log, r, workers)
}

func newConsumer(log *slog.Logger, r MessageReader, workers int) *Consumer {
	if workers <= 0 {
		workers = 1
	}
	return &Consumer{log: log, r: r, workers: workers}
}

// Start blocks until ctx ends or the reader fails. Messages are sharded
// to workers by key so one order's events are handled in order.
func (c *Consumer) Start(ctx context.Context, h Handler) error {
	defer c.r.Close()

	jobs := make([]chan kafka.Message, c.workers)
	var wg sync.WaitGroup
	for i := range jobs {
		jobs[i] = make(chan kafka.Message, 64)
		wg.Add(1)
		go func(in <-chan kafka.Message) {
			defer wg.Done()
			for m := range in {
				c.handle(ctx, h, m)
			}
		}(jobs[i])
	}
	stop := func() {
		for _, ch := range jobs {
			close(ch)
		}
		wg.Wait()
	}

	// dispatcher loop
	for {
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			stop()
			// kecilkan noise saat shutdown
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		select {
		case jobs[shard(m.Key, c.workers)] <- m:
		case <-ctx.Done():
			stop()
			return nil
		}
	}
}

func (c *Consumer) handle(ctx context.Context, h Handler, m kafka.Message) {
	mctx := tracing.ExtractKafkaHeaders(ctx, m.Headers)
	for attempt := 1; ; attempt++ {
		err := h(mctx, m)
		if err == nil {
			break
		}
		c.log.Error("consumer handler", "topic", m.Topic, "partition", m.Partition, "offset", m.Offset, "attempt", attempt, "err", err)
		if attempt >= 3 {
			// pesan beracun: commit supaya partisi tidak macet
			c.log.Error("consumer dropping message", "offset", m.Offset, "key", string(m.Key))
			break
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Duration(attempt) * 200 * time.Millisecond): // backoff ringan
		}
	}
	if err := c.r.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
		c.log.Error("commit offset", "offset", m.Offset, "err", err)
	}
}

func shard(key []byte, n int) int {
	h := fnv.New32a()
	_, _ = h.Write(key)
	return int(h.Sum32() % uint32(n))
}
