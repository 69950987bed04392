package orders

import "fmt"

// Trigger is anything that can move an order or its payment.
type Trigger string

const (
	TriggerVerify          Trigger = "verify"
	TriggerAuthorized      Trigger = "payment.authorized"
	TriggerCaptured        Trigger = "payment.captured"
	TriggerFailed          Trigger = "payment.failed"
	TriggerRefundCreated   Trigger = "refund.created"
	TriggerRefundProcessed Trigger = "refund.processed"
	TriggerAbandon         Trigger = "abandon"
	TriggerCancel          Trigger = "cancel"
)

// State is the joint status of an order and its payment. Payment and
// Refund are empty for COD orders.
type State struct {
	Method  PaymentMethod
	Order   OrderStatus
	Payment PaymentStatus
	Refund  RefundStatus
}

func StateOf(o Order, p *Payment) State {
	s := State{Method: o.PaymentMethod, Order: o.Status}
	if p != nil {
		s.Payment = p.Status
		s.Refund = p.RefundStatus
	}
	return s
}

// StockHeld reports whether the order's items are currently deducted from
// inventory. COD deducts at creation, Online on entering Processing.
func (s State) StockHeld() bool {
	if s.Order.Fulfilling() {
		return true
	}
	return s.Method == MethodCOD && s.Order == StatusPending
}

// Effects are executed by the caller inside the same store transaction
// that persists Next.
type Effects struct {
	DeductStock  bool
	RestoreStock bool
	ClearCart    bool
	Alert        string
}

type Outcome struct {
	Prev    State
	Next    State
	Effects Effects
}

func (o Outcome) Changed() bool      { return o.Prev != o.Next }
func (o Outcome) OrderChanged() bool { return o.Prev.Order != o.Next.Order }
func (o Outcome) PaymentChanged() bool {
	return o.Prev.Payment != o.Next.Payment || o.Prev.Refund != o.Next.Refund
}

func noop(s State) Outcome { return Outcome{Prev: s, Next: s} }

// Transition is pure: it never touches storage.
func Transition(s State, t Trigger) (Outcome, error) {
	switch t {
	case TriggerVerify, TriggerCaptured:
		return capture(s, t == TriggerVerify)
	case TriggerAuthorized:
		return authorize(s)
	case TriggerFailed:
		return fail(s)
	case TriggerRefundCreated:
		return refundCreated(s)
	case TriggerRefundProcessed:
		return refundProcessed(s)
	case TriggerAbandon:
		return abandon(s), nil
	case TriggerCancel:
		return cancel(s)
	}
	return noop(s), fmt.Errorf("%w: unknown trigger %q", ErrInvalidTransition, t)
}

func requireOnline(s State, t Trigger) error {
	if s.Method != MethodOnline {
		return fmt.Errorf("%w: %s on %s order", ErrInvalidTransition, t, s.Method)
	}
	return nil
}

func capture(s State, verify bool) (Outcome, error) {
	if err := requireOnline(s, TriggerCaptured); err != nil {
		return noop(s), err
	}
	out := noop(s)
	if s.Payment != PaymentRefunded {
		out.Next.Payment = PaymentCaptured
	}
	switch {
	case s.Order == StatusPending:
		// the only path into Processing for Online orders
		out.Next.Order = StatusProcessing
		out.Effects.DeductStock = true
	case s.Order == StatusCancelled && out.Next.Payment != s.Payment:
		// replays of a capture already recorded raise nothing new
		out.Effects.Alert = "payment captured on cancelled order; refund required"
	}
	if verify && out.Next.Order.Fulfilling() {
		out.Effects.ClearCart = true
	}
	return out, nil
}

func authorize(s State) (Outcome, error) {
	if err := requireOnline(s, TriggerAuthorized); err != nil {
		return noop(s), err
	}
	out := noop(s)
	if s.Payment.rank() < PaymentAuthorized.rank() {
		out.Next.Payment = PaymentAuthorized
	}
	return out, nil
}

func fail(s State) (Outcome, error) {
	if err := requireOnline(s, TriggerFailed); err != nil {
		return noop(s), err
	}
	out := noop(s)
	// a stale failure must not undo a capture
	if s.Payment.rank() >= PaymentCaptured.rank() {
		return out, nil
	}
	out.Next.Payment = PaymentFailed
	if s.Order == StatusPending {
		out.Next.Order = StatusCancelled
	}
	return out, nil
}

func refundCreated(s State) (Outcome, error) {
	if err := requireOnline(s, TriggerRefundCreated); err != nil {
		return noop(s), err
	}
	out := noop(s)
	if s.Refund.pending() {
		out.Next.Refund = RefundCreated
	}
	return out, nil
}

func refundProcessed(s State) (Outcome, error) {
	if err := requireOnline(s, TriggerRefundProcessed); err != nil {
		return noop(s), err
	}
	out := noop(s)
	out.Next.Payment = PaymentRefunded
	out.Next.Refund = RefundProcessed
	if s.Order != StatusRefunded {
		out.Next.Order = StatusRefunded
		out.Effects.RestoreStock = s.StockHeld()
	}
	return out, nil
}

func abandon(s State) Outcome {
	if s.Method != MethodOnline || s.Order != StatusPending || s.Payment != PaymentCreated {
		return noop(s)
	}
	out := noop(s)
	out.Next.Order = StatusCancelled
	out.Next.Payment = PaymentFailed
	return out
}

func cancel(s State) (Outcome, error) {
	if s.Order != StatusPending {
		return noop(s), fmt.Errorf("%w: only pending orders can be cancelled (order is %s)", ErrAlreadyProcessed, s.Order)
	}
	out := noop(s)
	if s.Method == MethodOnline {
		if s.Payment != PaymentCreated {
			return noop(s), fmt.Errorf("%w: payment is %s", ErrAlreadyProcessed, s.Payment)
		}
		out.Next.Payment = PaymentFailed
	}
	out.Next.Order = StatusCancelled
	out.Effects.RestoreStock = s.StockHeld()
	return out, nil
}

// AdminTransition forces an order status from the operator console.
// Stock moves only when entering Cancelled with stock held, or when an
// Online order with a captured payment is promoted out of Pending.
func AdminTransition(s State, to OrderStatus) (Outcome, error) {
	out := noop(s)
	if s.Order == to {
		return out, nil
	}
	if to == StatusRefunded {
		return out, fmt.Errorf("%w: refunds are settled by the payment gateway", ErrInvalidTransition)
	}
	if !CanTransition(s.Order, to) {
		return out, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.Order, to)
	}
	if s.Method == MethodOnline && s.Order == StatusPending && to != StatusCancelled {
		if to != StatusProcessing || s.Payment != PaymentCaptured {
			return out, fmt.Errorf("%w: payment for pending order is %s", ErrInvalidTransition, s.Payment)
		}
		out.Effects.DeductStock = true
	}
	out.Next.Order = to
	if to == StatusCancelled {
		out.Effects.RestoreStock = s.StockHeld()
		if s.Method == MethodOnline {
			switch s.Payment {
			case PaymentCreated, PaymentAuthorized:
				out.Next.Payment = PaymentFailed
			case PaymentCaptured:
				out.Effects.Alert = "cancelled order holds a captured payment; refund required"
			}
		}
	}
	return out, nil
}
