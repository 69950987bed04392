package sweep

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ariefcatur/go-storefront-orders/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type countingSweeper struct {
	calls     atomic.Int32
	threshold time.Duration
	err       error
}

func (c *countingSweeper) Sweep(_ context.Context, threshold time.Duration) (int, error) {
	c.calls.Add(1)
	c.threshold = threshold
	return 3, c.err
}

type memLocker struct {
	mu       sync.Mutex
	held     bool
	unlocked int
}

func (l *memLocker) TryLock(context.Context, string, time.Duration) (func(context.Context) error, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held {
		return nil, false, nil
	}
	l.held = true
	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.held = false
		l.unlocked++
		return nil
	}, true, nil
}

func TestRunOnce(t *testing.T) {
	sw := &countingSweeper{}
	lk := &memLocker{}
	s := New(logging.Discard(), sw, lk, 30*time.Minute)

	assert.Equal(t, 3, s.RunOnce(context.Background()))
	assert.Equal(t, 30*time.Minute, sw.threshold)
	assert.Equal(t, 1, lk.unlocked)

	lk.held = true
	assert.Equal(t, -1, s.RunOnce(context.Background()))
	assert.EqualValues(t, 1, sw.calls.Load())
}

func TestRunOnceWithoutLocker(t *testing.T) {
	sw := &countingSweeper{err: errors.New("db down")}
	s := New(logging.Discard(), sw, nil, time.Hour)
	assert.Equal(t, 3, s.RunOnce(context.Background()))
}

func TestRunStopsCleanly(t *testing.T) {
	sw := &countingSweeper{}
	s := New(logging.Discard(), sw, &memLocker{}, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, "@every 1s") }()

	require.Eventually(t, func() bool { return sw.calls.Load() >= 1 }, 3*time.Second, 20*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestRunRejectsBadSchedule(t *testing.T) {
	s := New(logging.Discard(), &countingSweeper{}, nil, time.Minute)
	assert.Error(t, s.Run(context.Background(), "not a schedule"))
}
