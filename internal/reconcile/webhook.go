package reconcile

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
)

const (
	EventPaymentAuthorized = "payment.authorized"
	EventPaymentCaptured   = "payment.captured"
	EventPaymentFailed     = "payment.failed"
	EventOrderPaid         = "order.paid"
	EventRefundCreated     = "refund.created"
	EventRefundProcessed   = "refund.processed"
)

type PaymentEntity struct {
	ID               string `json:"id"`
	OrderID          string `json:"order_id"`
	Amount           int64  `json:"amount"`
	Currency         string `json:"currency"`
	Status           string `json:"status"`
	Method           string `json:"method"`
	ErrorDescription string `json:"error_description"`
}

type RefundEntity struct {
	ID        string `json:"id"`
	PaymentID string `json:"payment_id"`
	Amount    int64  `json:"amount"`
	Status    string `json:"status"`
}

type OrderEntity struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type WebhookEvent struct {
	Event   string `json:"event"`
	Payload struct {
		Payment *struct {
			Entity PaymentEntity `json:"entity"`
		} `json:"payment"`
		Refund *struct {
			Entity RefundEntity `json:"entity"`
		} `json:"refund"`
		Order *struct {
			Entity OrderEntity `json:"entity"`
		} `json:"order"`
	} `json:"payload"`
}

type WebhookResult struct {
	Event   string `json:"event"`
	Status  string `json:"status"` // processed | ignored | duplicate
	OrderID string `json:"order_id,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

func ignored(event, reason string) WebhookResult {
	return WebhookResult{Event: event, Status: "ignored", Reason: reason}
}

// HandleWebhook verifies and dispatches one gateway delivery. Unknown
// events and records this service does not track are acknowledged, not
// failed: the gateway does not order events relative to our writes.
func (e *Engine) HandleWebhook(ctx context.Context, body []byte, signature, deliveryID string) (WebhookResult, error) {
	if !e.gw.VerifyWebhook(body, signature) {
		e.log.Warn("webhook signature rejected", "delivery_id", deliveryID)
		return WebhookResult{}, orders.ErrInvalidSignature
	}
	var ev WebhookEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return WebhookResult{}, orders.Validationf("webhook body: %v", err)
	}

	key := deliveryID
	if key == "" {
		sum := sha256.Sum256(body)
		key = hex.EncodeToString(sum[:])
	}
	if e.dedup != nil {
		seen, err := e.dedup.Seen(ctx, key)
		if err != nil {
			// replays are harmless, the machine is idempotent
			e.log.Warn("webhook dedup unavailable", "err", err)
		} else if seen {
			return WebhookResult{Event: ev.Event, Status: "duplicate"}, nil
		}
	}

	res, err := e.dispatch(ctx, ev, deliveryID)
	if err != nil {
		e.log.Error("webhook processing failed", "event", ev.Event, "delivery_id", deliveryID, "err", err)
		return WebhookResult{}, err
	}
	if e.dedup != nil {
		// effects are committed; the caller may already be gone
		if merr := e.dedup.Mark(context.WithoutCancel(ctx), key); merr != nil {
			e.log.Warn("webhook dedup mark", "delivery_id", deliveryID, "err", merr)
		}
	}
	e.log.Info("webhook handled", "event", ev.Event, "status", res.Status, "order_id", res.OrderID, "reason", res.Reason)
	return res, nil
}

func (e *Engine) dispatch(ctx context.Context, ev WebhookEvent, traceID string) (WebhookResult, error) {
	switch ev.Event {
	case EventPaymentAuthorized, EventPaymentCaptured, EventPaymentFailed:
		if ev.Payload.Payment == nil {
			return ignored(ev.Event, "no payment entity"), nil
		}
		return e.onPayment(ctx, ev.Event, ev.Payload.Payment.Entity, traceID)
	case EventRefundCreated, EventRefundProcessed:
		if ev.Payload.Refund == nil {
			return ignored(ev.Event, "no refund entity"), nil
		}
		var pe *PaymentEntity
		if ev.Payload.Payment != nil {
			pe = &ev.Payload.Payment.Entity
		}
		return e.onRefund(ctx, ev.Event, ev.Payload.Refund.Entity, pe, traceID)
	case EventOrderPaid:
		// payment.captured carries the state change; this one is informational
		if ev.Payload.Order != nil {
			e.log.Info("gateway order paid", "gateway_order_id", ev.Payload.Order.Entity.ID)
		}
		return ignored(ev.Event, "informational"), nil
	}
	return ignored(ev.Event, "unhandled event"), nil
}

var paymentTriggers = map[string]orders.Trigger{
	EventPaymentAuthorized: orders.TriggerAuthorized,
	EventPaymentCaptured:   orders.TriggerCaptured,
	EventPaymentFailed:     orders.TriggerFailed,
}

func (e *Engine) onPayment(ctx context.Context, event string, ent PaymentEntity, traceID string) (WebhookResult, error) {
	pay, err := e.store.FindPaymentByGatewayOrder(ctx, ent.OrderID)
	if errors.Is(err, orders.ErrNotFound) {
		return ignored(event, "payment not tracked"), nil
	}
	if err != nil {
		return WebhookResult{}, err
	}
	if event == EventPaymentFailed && ent.ErrorDescription != "" {
		e.log.Info("gateway reported payment failure", "order_id", pay.OrderID, "reason", ent.ErrorDescription)
	}

	s := step{
		orderID: pay.OrderID,
		trigger: paymentTriggers[event],
		traceID: traceID,
		patch: func(p *orders.Payment) bool {
			changed := false
			if p.GatewayPaymentID == "" && ent.ID != "" {
				p.GatewayPaymentID = ent.ID
				changed = true
			}
			if ent.Method != "" && p.MethodDetail != ent.Method {
				p.MethodDetail = ent.Method
				changed = true
			}
			return changed
		},
	}
	res, err := e.apply(ctx, s)
	switch {
	case errors.Is(err, orders.ErrNotFound):
		return ignored(event, "order not tracked"), nil
	case errors.Is(err, orders.ErrInsufficientStock):
		if herr := e.holdCapture(ctx, s, err); herr != nil {
			return WebhookResult{}, herr
		}
		return WebhookResult{Event: event, Status: "processed", OrderID: pay.OrderID, Reason: "captured without stock, refund required"}, nil
	case err != nil:
		return WebhookResult{}, err
	}
	return processed(event, res), nil
}

func (e *Engine) onRefund(ctx context.Context, event string, ref RefundEntity, pe *PaymentEntity, traceID string) (WebhookResult, error) {
	pay, err := e.store.FindPaymentByGatewayPayment(ctx, ref.PaymentID)
	if errors.Is(err, orders.ErrNotFound) && pe != nil && pe.OrderID != "" {
		pay, err = e.store.FindPaymentByGatewayOrder(ctx, pe.OrderID)
	}
	if errors.Is(err, orders.ErrNotFound) {
		return ignored(event, "payment not tracked"), nil
	}
	if err != nil {
		return WebhookResult{}, err
	}

	trig := orders.TriggerRefundCreated
	if event == EventRefundProcessed {
		trig = orders.TriggerRefundProcessed
	}
	res, err := e.apply(ctx, step{
		orderID: pay.OrderID,
		trigger: trig,
		traceID: traceID,
		patch: func(p *orders.Payment) bool {
			changed := false
			if p.RefundID == "" && ref.ID != "" {
				p.RefundID = ref.ID
				changed = true
			}
			if p.RefundAmount == nil && ref.Amount > 0 {
				amt := orders.FromMinor(ref.Amount)
				p.RefundAmount = &amt
				changed = true
			}
			return changed
		},
	})
	if errors.Is(err, orders.ErrNotFound) {
		return ignored(event, "order not tracked"), nil
	}
	if err != nil {
		return WebhookResult{}, err
	}
	return processed(event, res), nil
}

func processed(event string, res Result) WebhookResult {
	out := WebhookResult{Event: event, Status: "processed", OrderID: res.Order.ID}
	if !res.Outcome.Changed() {
		out.Reason = "already applied"
	}
	return out
}
