package gateway

import (
	"context"
	"errors"
	"fmt"
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
	razorpay "github.com/razorpay/razorpay-go"
	"github.com/sony/gobreaker"
	"log/slog"
	"time"
)

// orderAPI and paymentAPI are the slices of the razorpay-go client we call.
type orderAPI interface {
	Create(data map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
}

type paymentAPI interface {
	Refund(paymentID string, amount int, data map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
}

type Razorpay struct {
	Signer
	log      *slog.Logger
	keyID    string
	timeout  time.Duration
	orders   orderAPI
	payments paymentAPI
	cb       *gobreaker.CircuitBreaker
}

func NewRazorpay(log *slog.Logger, keyID, keySecret, webhookSecret string, timeout time.Duration) *Razorpay {
	c := razorpay.NewClient(keyID, keySecret)
	return &Razorpay{
		Signer:   Signer{KeySecret: keySecret, WebhookSecret: webhookSecret},
		log:      log,
		keyID:    keyID,
		timeout:  timeout,
		orders:   c.Order,
		payments: c.Payment,
		cb:       newBreaker(log, "razorpay", breakerCooldown),
	}
}

var _ Gateway = (*Razorpay)(nil)

func (r *Razorpay) KeyID() string { return r.keyID }

func (r *Razorpay) CreateOrder(ctx context.Context, amountMinor int64, currency, receipt string, notes map[string]string) (Order, error) {
	data := map[string]interface{}{
		"amount":   amountMinor,
		"currency": currency,
		"receipt":  receipt,
	}
	if len(notes) > 0 {
		data["notes"] = notes
	}
	body, err := r.call(ctx, "create order", func() (map[string]interface{}, error) {
		return r.orders.Create(data, nil)
	})
	if err != nil {
		return Order{}, err
	}
	id, _ := body["id"].(string)
	if id == "" {
		return Order{}, fmt.Errorf("%w: create order returned no id", orders.ErrGatewayUnavailable)
	}
	out := Order{ID: id, AmountMinor: amountMinor, Currency: currency, Receipt: receipt}
	if amt, ok := body["amount"].(float64); ok {
		out.AmountMinor = int64(amt)
	}
	if cur, ok := body["currency"].(string); ok && cur != "" {
		out.Currency = cur
	}
	return out, nil
}

func (r *Razorpay) Refund(ctx context.Context, gatewayPaymentID string, amountMinor int64) (string, error) {
	if amountMinor <= 0 {
		return "", orders.Validationf("refund amount must be positive")
	}
	body, err := r.call(ctx, "refund", func() (map[string]interface{}, error) {
		return r.payments.Refund(gatewayPaymentID, int(amountMinor), nil, nil)
	})
	if err != nil {
		return "", err
	}
	id, _ := body["id"].(string)
	if id == "" {
		return "", fmt.Errorf("%w: refund returned no id", orders.ErrGatewayUnavailable)
	}
	return id, nil
}

// call runs a blocking SDK request under the configured deadline. The SDK
// takes no context, so a timed-out request is abandoned, not cancelled.
func (r *Razorpay) call(ctx context.Context, op string, fn func() (map[string]interface{}, error)) (map[string]interface{}, error) {
	out, err := r.cb.Execute(func() (interface{}, error) {
		return r.timed(ctx, op, fn)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: circuit %s", orders.ErrGatewayUnavailable, r.cb.State())
	}
	if err != nil {
		return nil, err
	}
	return out.(map[string]interface{}), nil
}

type result struct {
	body map[string]interface{}
	err  error
}

func (r *Razorpay) timed(ctx context.Context, op string, fn func() (map[string]interface{}, error)) (map[string]interface{}, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	done := make(chan result, 1)
	go func() {
		body, err := fn()
		done <- result{body, err}
	}()

	select {
	case <-ctx.Done():
		r.log.Warn("gateway call timed out", "op", op, "timeout", r.timeout)
		return nil, fmt.Errorf("%w: %s: %w", orders.ErrGatewayUnavailable, op, ctx.Err())
	case res := <-done:
		if res.err != nil {
			r.log.Error("gateway call failed", "op", op, "err", res.err)
			return nil, fmt.Errorf("%w: %s: %v", orders.ErrGatewayUnavailable, op, res.err)
		}
		return res.body, nil
	}
}
