package gateway

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ariefcatur/go-storefront-orders/internal/logging"
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSigner(t *testing.T) {
	s := Signer{KeySecret: "key_secret", WebhookSecret: "hook_secret"}

	sig := s.SignPayment("order_1", "pay_1")
	assert.True(t, s.VerifyPayment("order_1", "pay_1", sig))
	assert.False(t, s.VerifyPayment("order_1", "pay_2", sig))
	assert.False(t, s.VerifyPayment("order_1", "pay_1", ""))

	body := []byte(`{"event":"payment.captured"}`)
	hook := s.SignWebhook(body)
	assert.True(t, s.VerifyWebhook(body, hook))
	assert.False(t, s.VerifyWebhook([]byte(`{"event":"payment.captured" }`), hook), "raw bytes, not re-encoded json")
	assert.False(t, Signer{}.VerifyWebhook(body, hook), "no secret, nothing verifies")
}

type stubOrders struct {
	mu    sync.Mutex
	body  map[string]interface{}
	err   error
	delay time.Duration
	got   map[string]interface{}
	calls int
}

func (s *stubOrders) Create(data map[string]interface{}, _ map[string]string) (map[string]interface{}, error) {
	s.mu.Lock()
	s.got = data
	s.calls++
	body, err, delay := s.body, s.err, s.delay
	s.mu.Unlock()
	time.Sleep(delay)
	return body, err
}

func (s *stubOrders) set(body map[string]interface{}, err error, delay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.body, s.err, s.delay = body, err, delay
}

func (s *stubOrders) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type stubPayments struct{ amount int }

func (s *stubPayments) Refund(_ string, amount int, _ map[string]interface{}, _ map[string]string) (map[string]interface{}, error) {
	s.amount = amount
	return map[string]interface{}{"id": "rfnd_1"}, nil
}

func newTestRazorpay(o orderAPI, p paymentAPI, timeout time.Duration) *Razorpay {
	log := logging.Discard()
	return &Razorpay{log: log, timeout: timeout, orders: o, payments: p, cb: newBreaker(log, "test", 50*time.Millisecond)}
}

func TestRazorpay_CreateOrder(t *testing.T) {
	o := &stubOrders{body: map[string]interface{}{"id": "order_X", "amount": float64(50000), "currency": "INR"}}
	r := newTestRazorpay(o, nil, time.Second)

	got, err := r.CreateOrder(context.Background(), 50000, "INR", "receipt_1", map[string]string{"userId": "u1"})
	require.NoError(t, err)
	assert.Equal(t, Order{ID: "order_X", AmountMinor: 50000, Currency: "INR", Receipt: "receipt_1"}, got)
	assert.Equal(t, int64(50000), o.got["amount"])
}

func TestRazorpay_TimeoutIsRetryable(t *testing.T) {
	o := &stubOrders{delay: 200 * time.Millisecond, body: map[string]interface{}{"id": "late"}}
	r := newTestRazorpay(o, nil, 20*time.Millisecond)

	_, err := r.CreateOrder(context.Background(), 100, "INR", "r", nil)
	assert.ErrorIs(t, err, orders.ErrGatewayUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded, "callers can tell an unknown outcome from a refusal")
}

func TestRazorpay_BreakerOpens(t *testing.T) {
	o := &stubOrders{err: errors.New("connection refused")}
	r := newTestRazorpay(o, nil, time.Second)
	for i := 0; i < breakerThreshold; i++ {
		_, err := r.CreateOrder(context.Background(), 100, "INR", "r", nil)
		require.ErrorIs(t, err, orders.ErrGatewayUnavailable)
	}
	assert.Equal(t, "open", r.cb.State().String())

	o.set(map[string]interface{}{"id": "order_ok"}, nil, 0)
	_, err := r.CreateOrder(context.Background(), 100, "INR", "r", nil)
	assert.ErrorContains(t, err, "circuit open")
	assert.Equal(t, breakerThreshold, o.Calls(), "open circuit must not reach the processor")

	require.Eventually(t, func() bool { return r.cb.State().String() == "half-open" }, time.Second, 10*time.Millisecond)
	got, err := r.CreateOrder(context.Background(), 100, "INR", "r", nil)
	require.NoError(t, err)
	assert.Equal(t, "order_ok", got.ID)
	assert.Equal(t, "closed", r.cb.State().String())
}

func TestRazorpay_HalfOpenAdmitsOneRequest(t *testing.T) {
	o := &stubOrders{err: errors.New("connection refused")}
	r := newTestRazorpay(o, nil, time.Second)
	for i := 0; i < breakerThreshold; i++ {
		_, _ = r.CreateOrder(context.Background(), 100, "INR", "r", nil)
	}
	require.Eventually(t, func() bool { return r.cb.State().String() == "half-open" }, time.Second, 10*time.Millisecond)

	o.set(map[string]interface{}{"id": "order_ok"}, nil, 150*time.Millisecond)
	var wg sync.WaitGroup
	errs := make([]error, 6)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = r.CreateOrder(context.Background(), 100, "INR", "r", nil)
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, orders.ErrGatewayUnavailable)
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, breakerThreshold+1, o.Calls())
}

func TestRazorpay_Refund(t *testing.T) {
	p := &stubPayments{}
	r := newTestRazorpay(nil, p, time.Second)

	id, err := r.Refund(context.Background(), "pay_1", 25000)
	require.NoError(t, err)
	assert.Equal(t, "rfnd_1", id)
	assert.Equal(t, 25000, p.amount)

	_, err = r.Refund(context.Background(), "pay_1", 0)
	assert.ErrorIs(t, err, orders.ErrValidation)
}

func TestOpen(t *testing.T) {
	log := logging.Discard()
	full := Settings{Provider: ProviderRazorpay, KeyID: "rzp_live_x", KeySecret: "ks", WebhookSecret: "ws", Timeout: time.Second}

	gw, err := Open(log, full)
	require.NoError(t, err)
	assert.IsType(t, &Razorpay{}, gw)

	missingKey := full
	missingKey.KeyID = ""
	_, err = Open(log, missingKey)
	assert.ErrorContains(t, err, "RAZORPAY_API_KEY")

	// no silent fallback to the fake when credentials are absent
	_, err = Open(log, Settings{Provider: ProviderRazorpay})
	assert.Error(t, err)
	_, err = Open(log, Settings{Provider: ProviderFake})
	assert.Error(t, err, "the fake still needs real secrets")

	gw, err = Open(log, Settings{Provider: ProviderFake, KeySecret: "ks", WebhookSecret: "ws"})
	require.NoError(t, err)
	assert.IsType(t, &Fake{}, gw)
	assert.False(t, gw.VerifyWebhook([]byte("{}"), Signer{WebhookSecret: "dev_webhook_secret"}.SignWebhook([]byte("{}"))))

	_, err = Open(log, Settings{Provider: "stripe", KeySecret: "ks", WebhookSecret: "ws"})
	assert.ErrorContains(t, err, "unknown provider")
}
