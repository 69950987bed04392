package outbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ariefcatur/go-storefront-orders/internal/logging"
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type memStore struct {
	mu     sync.Mutex
	rows   []Event
	sent   []int64
	failed map[int64]string
}

func (s *memStore) LockBatch(_ context.Context, _ string, n int, _ time.Duration) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Event
	for i := range s.rows {
		if s.rows[i].Status == StatusPending && len(out) < n {
			s.rows[i].Status = StatusInProgress
			out = append(out, s.rows[i])
		}
	}
	return out, nil
}

func (s *memStore) MarkSent(_ context.Context, ids []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, ids...)
	return nil
}

func (s *memStore) MarkFailed(_ context.Context, id int64, msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed[id] = msg
	return nil
}

func (s *memStore) sentIDs() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64(nil), s.sent...)
}

type memWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
	fail map[string]bool // by aggregate id
}

func (w *memWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, m := range msgs {
		if w.fail[string(m.Key)] {
			return errors.New("broker down")
		}
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func envelopeRow(t *testing.T, id int64, orderID, typ string) Event {
	t.Helper()
	env, err := orders.NewEnvelope(typ, "order-api", "", orderID, map[string]string{"order_id": orderID})
	require.NoError(t, err)
	ev, err := FromEnvelope(env, "")
	require.NoError(t, err)
	ev.ID = id
	return ev
}

func TestFlushMarksSentAndFailed(t *testing.T) {
	store := &memStore{failed: map[int64]string{}, rows: []Event{
		envelopeRow(t, 1, "ord-1", orders.EventOrderPlaced),
		envelopeRow(t, 2, "ord-2", orders.EventOrderPlaced),
		envelopeRow(t, 3, "ord-1", orders.EventOrderConfirmed),
	}}
	w := &memWriter{fail: map[string]bool{"ord-2": true}}
	r := NewRelay(logging.Discard(), store, NewKafkaDispatcher(logging.Discard(), w, orders.TopicOrderLifecycle), "relay-1")

	n, err := r.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []int64{1, 3}, store.sentIDs())
	assert.Contains(t, store.failed[2], "broker down")

	require.Len(t, w.msgs, 2)
	m := w.msgs[0]
	assert.Equal(t, "ord-1", string(m.Key))
	assert.Equal(t, orders.TopicOrderLifecycle, m.Topic)
	headers := map[string]string{}
	for _, h := range m.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, orders.EventOrderPlaced, headers["event_type"])
	assert.NotEmpty(t, headers["event_id"])

	n, err = r.Flush(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRunStopsOnCancel(t *testing.T) {
	store := &memStore{failed: map[int64]string{}, rows: []Event{envelopeRow(t, 1, "ord-1", orders.EventOrderPlaced)}}
	w := &memWriter{}
	r := NewRelay(logging.Discard(), store, NewKafkaDispatcher(logging.Discard(), w, orders.TopicOrderLifecycle), "relay-1").
		WithInterval(5 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	require.Eventually(t, func() bool { return len(store.sentIDs()) == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("relay did not stop")
	}
}
