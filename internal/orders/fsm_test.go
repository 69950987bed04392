package orders

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func online(o OrderStatus, p PaymentStatus) State {
	return State{Method: MethodOnline, Order: o, Payment: p}
}

func TestTransition_Capture(t *testing.T) {
	tests := []struct {
		name      string
		from      State
		trigger   Trigger
		wantOrder OrderStatus
		wantPay   PaymentStatus
		deduct    bool
		clearCart bool
		alert     bool
	}{
		{"verify pending", online(StatusPending, PaymentCreated), TriggerVerify, StatusProcessing, PaymentCaptured, true, true, false},
		{"webhook pending", online(StatusPending, PaymentAuthorized), TriggerCaptured, StatusProcessing, PaymentCaptured, true, false, false},
		{"webhook after verify", online(StatusProcessing, PaymentCaptured), TriggerCaptured, StatusProcessing, PaymentCaptured, false, false, false},
		{"verify after webhook clears cart only", online(StatusProcessing, PaymentCaptured), TriggerVerify, StatusProcessing, PaymentCaptured, false, true, false},
		{"heals captured-but-pending gap", online(StatusPending, PaymentCaptured), TriggerCaptured, StatusProcessing, PaymentCaptured, true, false, false},
		{"late capture on cancelled", online(StatusCancelled, PaymentFailed), TriggerCaptured, StatusCancelled, PaymentCaptured, false, false, true},
		{"replayed late capture stays quiet", online(StatusCancelled, PaymentCaptured), TriggerCaptured, StatusCancelled, PaymentCaptured, false, false, false},
		{"capture after refund keeps refund", online(StatusRefunded, PaymentRefunded), TriggerCaptured, StatusRefunded, PaymentRefunded, false, false, false},
		{"shipped order untouched", online(StatusShipped, PaymentCaptured), TriggerCaptured, StatusShipped, PaymentCaptured, false, false, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			out, err := Transition(tc.from, tc.trigger)
			require.NoError(t, err)
			assert.Equal(t, tc.wantOrder, out.Next.Order)
			assert.Equal(t, tc.wantPay, out.Next.Payment)
			assert.Equal(t, tc.deduct, out.Effects.DeductStock)
			assert.False(t, out.Effects.RestoreStock)
			assert.Equal(t, tc.clearCart, out.Effects.ClearCart)
			assert.Equal(t, tc.alert, out.Effects.Alert != "")
		})
	}
}

func TestTransition_FailedAndAuthorized(t *testing.T) {
	out, err := Transition(online(StatusPending, PaymentCreated), TriggerFailed)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, out.Next.Order)
	assert.Equal(t, PaymentFailed, out.Next.Payment)
	assert.False(t, out.Effects.RestoreStock, "nothing was deducted")

	out, err = Transition(online(StatusProcessing, PaymentCaptured), TriggerFailed)
	require.NoError(t, err)
	assert.False(t, out.Changed(), "stale failure after capture is ignored")

	out, err = Transition(online(StatusPending, PaymentCreated), TriggerAuthorized)
	require.NoError(t, err)
	assert.Equal(t, PaymentAuthorized, out.Next.Payment)
	assert.Equal(t, StatusPending, out.Next.Order)

	out, err = Transition(online(StatusProcessing, PaymentCaptured), TriggerAuthorized)
	require.NoError(t, err)
	assert.False(t, out.Changed(), "authorized never regresses a capture")
}

func TestTransition_Refund(t *testing.T) {
	for _, from := range []OrderStatus{StatusProcessing, StatusShipped, StatusOutForDelivery, StatusDelivered} {
		out, err := Transition(online(from, PaymentCaptured), TriggerRefundProcessed)
		require.NoError(t, err)
		assert.Equal(t, StatusRefunded, out.Next.Order)
		assert.Equal(t, PaymentRefunded, out.Next.Payment)
		assert.Equal(t, RefundProcessed, out.Next.Refund)
		assert.True(t, out.Effects.RestoreStock, from)
	}

	out, err := Transition(online(StatusCancelled, PaymentCaptured), TriggerRefundProcessed)
	require.NoError(t, err)
	assert.Equal(t, StatusRefunded, out.Next.Order)
	assert.False(t, out.Effects.RestoreStock)

	out, err = Transition(State{Method: MethodOnline, Order: StatusRefunded, Payment: PaymentRefunded, Refund: RefundProcessed}, TriggerRefundProcessed)
	require.NoError(t, err)
	assert.False(t, out.Changed())
	assert.False(t, out.Effects.RestoreStock)

	out, err = Transition(online(StatusProcessing, PaymentCaptured), TriggerRefundCreated)
	require.NoError(t, err)
	assert.Equal(t, RefundCreated, out.Next.Refund)
	assert.Equal(t, StatusProcessing, out.Next.Order)

	out, err = Transition(State{Method: MethodOnline, Order: StatusRefunded, Payment: PaymentRefunded, Refund: RefundProcessed}, TriggerRefundCreated)
	require.NoError(t, err)
	assert.Equal(t, RefundProcessed, out.Next.Refund, "late refund.created does not regress")
}

func TestTransition_AbandonAndCancel(t *testing.T) {
	out, err := Transition(online(StatusPending, PaymentCreated), TriggerAbandon)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, out.Next.Order)
	assert.Equal(t, PaymentFailed, out.Next.Payment)

	for _, p := range []PaymentStatus{PaymentAuthorized, PaymentCaptured} {
		out, err = Transition(online(StatusPending, p), TriggerAbandon)
		require.NoError(t, err)
		assert.False(t, out.Changed(), p)
	}

	_, err = Transition(online(StatusPending, PaymentAuthorized), TriggerCancel)
	assert.ErrorIs(t, err, ErrAlreadyProcessed)
	_, err = Transition(online(StatusProcessing, PaymentCaptured), TriggerCancel)
	assert.ErrorIs(t, err, ErrAlreadyProcessed)

	out, err = Transition(State{Method: MethodCOD, Order: StatusPending}, TriggerCancel)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, out.Next.Order)
	assert.True(t, out.Effects.RestoreStock, "COD stock was taken at checkout")

	_, err = Transition(State{Method: MethodCOD, Order: StatusPending}, TriggerCaptured)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestAdminTransition(t *testing.T) {
	cod := State{Method: MethodCOD, Order: StatusPending}

	out, err := AdminTransition(cod, StatusShipped)
	require.NoError(t, err)
	assert.Equal(t, StatusShipped, out.Next.Order)
	assert.False(t, out.Effects.DeductStock)
	assert.False(t, out.Effects.RestoreStock)

	out, err = AdminTransition(State{Method: MethodCOD, Order: StatusShipped}, StatusCancelled)
	require.NoError(t, err)
	assert.True(t, out.Effects.RestoreStock)

	out, err = AdminTransition(online(StatusPending, PaymentCreated), StatusCancelled)
	require.NoError(t, err)
	assert.False(t, out.Effects.RestoreStock, "online pending never held stock")
	assert.Equal(t, PaymentFailed, out.Next.Payment)

	out, err = AdminTransition(online(StatusCancelled, PaymentFailed), StatusCancelled)
	require.NoError(t, err)
	assert.False(t, out.Changed())

	_, err = AdminTransition(online(StatusCancelled, PaymentFailed), StatusProcessing)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = AdminTransition(online(StatusPending, PaymentCreated), StatusShipped)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = AdminTransition(online(StatusProcessing, PaymentCaptured), StatusRefunded)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	out, err = AdminTransition(online(StatusPending, PaymentCaptured), StatusProcessing)
	require.NoError(t, err)
	assert.True(t, out.Effects.DeductStock)

	out, err = AdminTransition(online(StatusProcessing, PaymentCaptured), StatusCancelled)
	require.NoError(t, err)
	assert.True(t, out.Effects.RestoreStock)
	assert.NotEmpty(t, out.Effects.Alert)
}

var allTriggers = []Trigger{
	TriggerVerify, TriggerAuthorized, TriggerCaptured, TriggerFailed,
	TriggerRefundCreated, TriggerRefundProcessed, TriggerAbandon, TriggerCancel,
}

// Stock is off the shelf exactly when StockHeld says so, whatever sequence
// of gateway events, sweeps, cancels and admin moves hits the order.
func TestStockHeldInvariant(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		method := rapid.SampledFrom([]PaymentMethod{MethodCOD, MethodOnline}).Draw(t, "method")
		s := State{Method: method, Order: StatusPending}
		deducted := 0
		if method == MethodCOD {
			deducted = 1
		} else {
			s.Payment = PaymentCreated
		}

		steps := rapid.IntRange(1, 30).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			var out Outcome
			var err error
			if rapid.Bool().Draw(t, "admin") {
				out, err = AdminTransition(s, rapid.SampledFrom(allOrderStatuses).Draw(t, "to"))
			} else {
				out, err = Transition(s, rapid.SampledFrom(allTriggers).Draw(t, "trigger"))
			}
			if err != nil {
				continue
			}
			if out.Effects.DeductStock {
				deducted++
			}
			if out.Effects.RestoreStock {
				deducted--
			}
			s = out.Next
			if deducted < 0 || deducted > 1 {
				t.Fatalf("stock moved %d times net, state %+v", deducted, s)
			}
			if (deducted == 1) != s.StockHeld() {
				t.Fatalf("deducted=%d but StockHeld=%v for %+v", deducted, s.StockHeld(), s)
			}
		}
	})
}

func TestTransitionIdempotent(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := State{
			Method:  MethodOnline,
			Order:   rapid.SampledFrom(allOrderStatuses).Draw(t, "order"),
			Payment: rapid.SampledFrom([]PaymentStatus{PaymentCreated, PaymentAuthorized, PaymentCaptured, PaymentRefunded, PaymentFailed}).Draw(t, "payment"),
		}
		trig := rapid.SampledFrom(allTriggers).Draw(t, "trigger")
		first, err := Transition(s, trig)
		if err != nil {
			return
		}
		second, err := Transition(first.Next, trig)
		if err != nil {
			// cancel is the only trigger that refuses its own result
			if trig != TriggerCancel {
				t.Fatalf("replay of %s failed: %v", trig, err)
			}
			return
		}
		if second.Changed() || second.Effects.DeductStock || second.Effects.RestoreStock || second.Effects.Alert != "" {
			t.Fatalf("replay of %s from %+v changed state: %+v", trig, s, second)
		}
	})
}
