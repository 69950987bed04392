package gateway

import (
	"context"
	"fmt"
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
	"sync"
)

// Fake is an in-process Gateway used by tests and by local runs without
// processor credentials. Signatures are real HMACs over the given secrets.
type Fake struct {
	Signer

	mu      sync.Mutex
	seq     int
	orders  []Order
	refunds map[string]int64
	calls   int

	// FailCreate and FailRefund, when set, are returned wrapped in
	// orders.ErrGatewayUnavailable.
	FailCreate error
	FailRefund error
}

var _ Gateway = (*Fake)(nil)

func NewFake(keySecret, webhookSecret string) *Fake {
	return &Fake{
		Signer:  Signer{KeySecret: keySecret, WebhookSecret: webhookSecret},
		refunds: map[string]int64{},
	}
}

func (f *Fake) KeyID() string { return "rzp_test_fake" }

func (f *Fake) CreateOrder(_ context.Context, amountMinor int64, currency, receipt string, _ map[string]string) (Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailCreate != nil {
		return Order{}, fmt.Errorf("%w: %v", orders.ErrGatewayUnavailable, f.FailCreate)
	}
	f.seq++
	o := Order{ID: fmt.Sprintf("order_fake%04d", f.seq), AmountMinor: amountMinor, Currency: currency, Receipt: receipt}
	f.orders = append(f.orders, o)
	return o, nil
}

func (f *Fake) Refund(_ context.Context, gatewayPaymentID string, amountMinor int64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.FailRefund != nil {
		return "", fmt.Errorf("%w: %w", orders.ErrGatewayUnavailable, f.FailRefund)
	}
	f.seq++
	f.refunds[gatewayPaymentID] += amountMinor
	return fmt.Sprintf("rfnd_fake%04d", f.seq), nil
}

// Orders returns every gateway order created so far.
func (f *Fake) Orders() []Order {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Order(nil), f.orders...)
}

// RefundCalls counts Refund requests, failed ones included.
func (f *Fake) RefundCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *Fake) Refunded(gatewayPaymentID string) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refunds[gatewayPaymentID]
}
