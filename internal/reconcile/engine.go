package reconcile

import (
	"context"
	"errors"
	"fmt"
	"github.com/ariefcatur/go-storefront-orders/internal/gateway"
	"github.com/ariefcatur/go-storefront-orders/internal/inventory"
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
	"log/slog"
	"time"
)

// Deduper remembers webhook deliveries already handled.
type Deduper interface {
	Seen(ctx context.Context, key string) (bool, error)
	// Mark is called only after the delivery's effects are committed.
	Mark(ctx context.Context, key string) error
}

type Result struct {
	Order   orders.Order    `json:"order"`
	Payment *orders.Payment `json:"payment,omitempty"`
	Outcome orders.Outcome  `json:"-"`
}

// Engine advances Order, Payment and stock together. Every trigger runs
// as one store transaction: lock order, lock payment, evaluate the state
// machine, apply its effects, compare-and-set the status, append the
// lifecycle event.
type Engine struct {
	log      *slog.Logger
	store    orders.Store
	ledger   *inventory.Ledger
	gw       gateway.Gateway
	dedup    Deduper
	producer string
	now      func() time.Time
}

func NewEngine(log *slog.Logger, store orders.Store, ledger *inventory.Ledger, gw gateway.Gateway, dedup Deduper, producer string) *Engine {
	return &Engine{
		log:      log,
		store:    store,
		ledger:   ledger,
		gw:       gw,
		dedup:    dedup,
		producer: producer,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

type step struct {
	orderID string
	trigger orders.Trigger
	traceID string
	// decide replaces orders.Transition (admin moves).
	decide func(orders.State) (orders.Outcome, error)
	// guard rejects before anything is evaluated (ownership checks).
	guard func(o orders.Order, p *orders.Payment) error
	// patch copies gateway details onto the payment; returns true if it changed anything.
	patch func(p *orders.Payment) bool
}

func (e *Engine) apply(ctx context.Context, s step) (Result, error) {
	var res Result
	err := e.store.InTx(ctx, func(tx orders.Tx) error {
		o, err := tx.LockOrder(ctx, s.orderID)
		if err != nil {
			return err
		}
		var p *orders.Payment
		if o.PaymentMethod == orders.MethodOnline {
			pay, err := tx.LockPaymentByOrder(ctx, o.ID)
			switch {
			case err == nil:
				p = &pay
			case !errors.Is(err, orders.ErrNotFound):
				return err
			}
		}
		if s.guard != nil {
			if err := s.guard(o, p); err != nil {
				return err
			}
		}

		decide := s.decide
		if decide == nil {
			decide = func(st orders.State) (orders.Outcome, error) { return orders.Transition(st, s.trigger) }
		}
		out, err := decide(orders.StateOf(o, p))
		if err != nil {
			return err
		}
		if err := e.execute(ctx, tx, &o, p, out, s); err != nil {
			return err
		}
		res = Result{Order: o, Payment: p, Outcome: out}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	if res.Outcome.Changed() {
		e.log.Info("order reconciled", "order_id", res.Order.ID, "trigger", s.trigger,
			"order_from", res.Outcome.Prev.Order, "order_to", res.Outcome.Next.Order,
			"payment_from", res.Outcome.Prev.Payment, "payment_to", res.Outcome.Next.Payment)
	}
	if a := res.Outcome.Effects.Alert; a != "" {
		e.alert(res.Order.ID, s.trigger, a)
	}
	return res, nil
}

func (e *Engine) execute(ctx context.Context, tx orders.Tx, o *orders.Order, p *orders.Payment, out orders.Outcome, s step) error {
	fx := out.Effects
	// cart before products, the same order checkout locks them in
	if fx.ClearCart {
		c, err := tx.LockCart(ctx, o.UserID)
		if err != nil {
			return err
		}
		if !c.Empty() {
			c.Clear()
			if err := tx.SaveCart(ctx, c); err != nil {
				return fmt.Errorf("clear cart: %w", err)
			}
		}
	}
	if fx.DeductStock {
		if err := e.ledger.Deduct(ctx, tx, o.ID, o.StockLines()); err != nil {
			return err
		}
	}
	if fx.RestoreStock {
		if err := e.ledger.Restore(ctx, tx, o.ID, o.StockLines()); err != nil {
			return err
		}
	}
	if out.OrderChanged() {
		if err := tx.CompareAndSetStatus(ctx, o.ID, out.Prev.Order, out.Next.Order); err != nil {
			return fmt.Errorf("order %s %s -> %s: %w", o.ID, out.Prev.Order, out.Next.Order, err)
		}
		o.Status = out.Next.Order
		o.UpdatedAt = e.now()
	}
	if p != nil {
		patched := s.patch != nil && s.patch(p)
		if out.PaymentChanged() || patched {
			p.Status = out.Next.Payment
			p.RefundStatus = out.Next.Refund
			p.UpdatedAt = e.now()
			if err := tx.UpdatePayment(ctx, *p); err != nil {
				return fmt.Errorf("update payment: %w", err)
			}
		}
	}
	for _, evType := range orders.EventsFor(out) {
		if err := e.appendEvent(ctx, tx, evType, *o, p, out, s.trigger, s.traceID); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) appendEvent(ctx context.Context, tx orders.Tx, evType string, o orders.Order, p *orders.Payment, out orders.Outcome, trig orders.Trigger, traceID string) error {
	payload := orders.OrderStatusPayload{
		OrderID:    o.ID,
		UserID:     o.UserID,
		Status:     o.Status,
		Trigger:    trig,
		StockMoved: out.Effects.DeductStock || out.Effects.RestoreStock,
		Reason:     out.Effects.Alert,
	}
	if p != nil {
		payload.PaymentStatus = p.Status
	}
	ev, err := orders.NewEnvelope(evType, e.producer, traceID, o.ID, payload)
	if err != nil {
		return err
	}
	return tx.AppendEvent(ctx, ev)
}

// alert marks a payment the order could not follow. These lines are what
// on-call searches for; they must never be dropped.
func (e *Engine) alert(orderID string, trig orders.Trigger, msg string) {
	e.log.Error("reconciliation alert", "alert", "reconciliation", "order_id", orderID, "trigger", trig, "detail", msg)
}

// holdCapture records a capture whose stock could not be deducted. The
// order stays Pending, the payment is marked captured so the sweep leaves
// it alone, and a refund request is emitted the first time only.
func (e *Engine) holdCapture(ctx context.Context, s step, cause error) error {
	raised := false
	err := e.store.InTx(ctx, func(tx orders.Tx) error {
		o, err := tx.LockOrder(ctx, s.orderID)
		if err != nil {
			return err
		}
		p, err := tx.LockPaymentByOrder(ctx, o.ID)
		if err != nil {
			return err
		}
		prev := orders.StateOf(o, &p)
		patched := s.patch != nil && s.patch(&p)
		if p.Status != orders.PaymentRefunded {
			p.Status = orders.PaymentCaptured
		}
		raised = p.Status != prev.Payment
		if !raised && !patched {
			return nil
		}
		p.UpdatedAt = e.now()
		if err := tx.UpdatePayment(ctx, p); err != nil {
			return err
		}
		if !raised {
			return nil
		}
		out := orders.Outcome{Prev: prev, Next: orders.StateOf(o, &p), Effects: orders.Effects{Alert: cause.Error()}}
		return e.appendEvent(ctx, tx, orders.EventPaymentNeedsRefund, o, &p, out, s.trigger, s.traceID)
	})
	if err == nil && raised {
		e.alert(s.orderID, s.trigger, "captured payment without stock: "+cause.Error())
	}
	return err
}
