package orders

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCart_AddMergesBySizeAndSnapshotsPrice(t *testing.T) {
	p := Product{ID: "p1", Category: CategoryDark, Price: decimal.NewFromInt(500)}
	c := Cart{UserID: "u1"}

	require.NoError(t, c.Add(p, 1, ""))
	require.NoError(t, c.Add(p, 2, SizeM))
	require.NoError(t, c.Add(p, 1, SizeXL))
	require.Len(t, c.Items, 2)
	assert.Equal(t, 3, c.Items[0].Quantity)
	assert.Equal(t, SizeM, c.Items[0].Size)
	assert.Equal(t, CategoryDark, c.Items[1].Category)

	// later price changes do not reach existing lines
	p.Price = decimal.NewFromInt(900)
	require.NoError(t, c.Add(p, 1, SizeM))
	assert.True(t, c.Items[0].PriceSnapshot.Equal(decimal.NewFromInt(500)))
	assert.True(t, c.Total().Equal(decimal.NewFromInt(2500)))
}

func TestCart_Validation(t *testing.T) {
	p := Product{ID: "p1", Price: decimal.NewFromInt(10)}
	c := Cart{UserID: "u1"}

	assert.ErrorIs(t, c.Add(p, 0, SizeM), ErrValidation)
	assert.ErrorIs(t, c.Add(p, 1, Size("XXL")), ErrValidation)
	assert.ErrorIs(t, c.Remove("p1", SizeM), ErrNotFound)
	assert.ErrorIs(t, c.SetQuantity("p1", SizeM, 2), ErrNotFound)

	require.NoError(t, c.Add(p, 1, SizeL))
	assert.ErrorIs(t, c.SetQuantity("p1", SizeL, 0), ErrValidation)
	require.NoError(t, c.SetQuantity("p1", SizeL, 4))
	assert.True(t, c.Total().Equal(decimal.NewFromInt(40)))

	require.NoError(t, c.Remove("p1", SizeL))
	assert.True(t, c.Empty())
	assert.NotNil(t, c.Items)
}

func TestMergeLines(t *testing.T) {
	lines := MergeLines([]OrderItem{
		{ProductID: "a", Size: SizeS, Quantity: 1},
		{ProductID: "b", Size: SizeM, Quantity: 2},
		{ProductID: "a", Size: SizeXL, Quantity: 3},
	})
	assert.Equal(t, []ItemQty{{ProductID: "a", Qty: 4}, {ProductID: "b", Qty: 2}}, lines)
}

func TestMinorUnits(t *testing.T) {
	assert.Equal(t, int64(50000), ToMinor(decimal.NewFromInt(500)))
	assert.Equal(t, int64(129999), ToMinor(decimal.RequireFromString("1299.99")))
	assert.True(t, FromMinor(49950).Equal(decimal.RequireFromString("499.5")))
}

func TestEventsFor(t *testing.T) {
	out, _ := Transition(online(StatusPending, PaymentCreated), TriggerCaptured)
	assert.Equal(t, []string{EventOrderConfirmed}, EventsFor(out))

	out, _ = Transition(online(StatusPending, PaymentCreated), TriggerAuthorized)
	assert.Equal(t, []string{EventPaymentAuthorized}, EventsFor(out))

	out, _ = Transition(online(StatusCancelled, PaymentFailed), TriggerCaptured)
	assert.Equal(t, []string{EventPaymentNeedsRefund}, EventsFor(out))

	// the same capture replayed once the payment is already recorded
	out, _ = Transition(online(StatusCancelled, PaymentCaptured), TriggerCaptured)
	assert.Empty(t, out.Effects.Alert)
	assert.Empty(t, EventsFor(out))

	out, _ = Transition(online(StatusProcessing, PaymentCaptured), TriggerCaptured)
	assert.Empty(t, EventsFor(out))

	// operator cancel over a captured payment: the order event and the alert
	out, _ = AdminTransition(online(StatusProcessing, PaymentCaptured), StatusCancelled)
	assert.Equal(t, []string{EventOrderCancelled, EventPaymentNeedsRefund}, EventsFor(out))

	out, _ = Transition(State{Method: MethodOnline, Order: StatusProcessing, Payment: PaymentCaptured, Refund: RefundRequested}, TriggerRefundCreated)
	assert.Equal(t, RefundCreated, out.Next.Refund)
	assert.Equal(t, []string{EventRefundInitiated}, EventsFor(out))
}
