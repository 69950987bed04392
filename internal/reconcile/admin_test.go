package reconcile

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ariefcatur/go-storefront-orders/internal/checkout"
	"github.com/ariefcatur/go-storefront-orders/internal/inventory"
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
	"github.com/shopspring/decimal"
)

func (s *EngineSuite) placeCOD(user string) orders.Order {
	s.Require().NoError(s.store.InTx(s.ctx, func(tx orders.Tx) error {
		p, _ := tx.GetProduct(s.ctx, "p1")
		c := orders.Cart{UserID: user}
		_ = c.Add(p, 1, orders.SizeM)
		return tx.SaveCart(s.ctx, c)
	}))
	o, err := s.checkout.PlaceCOD(s.ctx, checkout.Request{UserID: user, TotalAmount: decimal.NewFromInt(500), Address: addr})
	s.Require().NoError(err)
	return o
}

func (s *EngineSuite) TestAdminFulfillmentNeverMovesStock() {
	o := s.placeCOD("u1")
	s.Equal(4, s.stock())

	for _, st := range []string{"Processing", "Shipped", "Out for Delivery", "Delivered"} {
		res, err := s.admin.SetOrderStatus(s.ctx, o.ID, st, "")
		s.Require().NoError(err)
		s.Equal(st, string(res.Order.Status))
		s.Equal(4, s.stock())
	}

	_, err := s.admin.SetOrderStatus(s.ctx, o.ID, "Cancelled", "")
	s.Require().NoError(err)
	s.Equal(5, s.stock())

	// already cancelled: no second restore
	_, err = s.admin.SetOrderStatus(s.ctx, o.ID, "Cancelled", "")
	s.Require().NoError(err)
	s.Equal(5, s.stock())

	_, err = s.admin.SetOrderStatus(s.ctx, o.ID, "Shipped", "")
	s.ErrorIs(err, orders.ErrInvalidTransition)
}

func (s *EngineSuite) TestAdminRejectsUnknownStatus() {
	o := s.placeCOD("u1")
	_, err := s.admin.SetOrderStatus(s.ctx, o.ID, "Lost", "")
	s.ErrorIs(err, orders.ErrValidation)
	_, err = s.admin.SetOrderStatus(s.ctx, "missing", "Shipped", "")
	s.ErrorIs(err, orders.ErrNotFound)
}

func (s *EngineSuite) TestAdminCancelOnlinePendingDoesNotInventStock() {
	r := s.placeOnline("u1")
	res, err := s.admin.SetOrderStatus(s.ctx, r.Order.ID, "Cancelled", "")
	s.Require().NoError(err)
	s.Equal(orders.PaymentFailed, res.Payment.Status)
	s.Equal(5, s.stock())
}

func (s *EngineSuite) TestAdminCancelCapturedEmitsOrderEventAndAlert() {
	r := s.placeOnline("u1")
	_, err := s.verify("u1", r, "pay_1")
	s.Require().NoError(err)

	_, err = s.admin.SetOrderStatus(s.ctx, r.Order.ID, "Cancelled", "")
	s.Require().NoError(err)
	s.Equal(5, s.stock())
	s.Equal(1, s.countEvents(orders.EventOrderCancelled))
	s.Equal(1, s.countEvents(orders.EventPaymentNeedsRefund))

	evs := s.store.Events()
	s.Equal(orders.EventOrderCancelled, evs[len(evs)-2].EventType)
	s.Equal(orders.EventPaymentNeedsRefund, evs[len(evs)-1].EventType)
}

func (s *EngineSuite) TestAdminRefundFlow() {
	r := s.placeOnline("u1")
	_, err := s.verify("u1", r, "pay_1")
	s.Require().NoError(err)

	half := decimal.NewFromInt(250)
	res, err := s.admin.RefundOrder(s.ctx, r.Order.ID, &half, "")
	s.Require().NoError(err)
	s.Equal(orders.RefundCreated, res.Payment.RefundStatus)
	s.NotEmpty(res.Payment.RefundID)
	s.Equal(int64(25000), s.gw.Refunded("pay_1"))
	s.Equal(orders.StatusProcessing, res.Order.Status)

	_, err = s.admin.RefundOrder(s.ctx, r.Order.ID, nil, "")
	s.ErrorIs(err, orders.ErrAlreadyProcessed)

	s.webhook(refundEvent(EventRefundProcessed, res.Payment.RefundID, "pay_1", 25000), "")
	s.Equal(orders.StatusRefunded, s.order(r.Order.ID).Status)
	s.Equal(5, s.stock())
	p := s.payment(r.Order.ID)
	s.True(p.RefundAmount.Equal(half), "amount recorded at request time is kept")
}

func (s *EngineSuite) TestAdminConcurrentRefundsReachGatewayOnce() {
	r := s.placeOnline("u1")
	_, err := s.verify("u1", r, "pay_1")
	s.Require().NoError(err)

	amt := decimal.NewFromInt(200)
	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.admin.RefundOrder(s.ctx, r.Order.ID, &amt, "")
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		s.ErrorIs(err, orders.ErrAlreadyProcessed)
	}
	s.Equal(1, ok)
	s.Equal(1, s.gw.RefundCalls())
	s.Equal(int64(20000), s.gw.Refunded("pay_1"))
	p := s.payment(r.Order.ID)
	s.Equal(orders.RefundCreated, p.RefundStatus)
	s.True(p.RefundAmount.Equal(amt))
	s.Equal(1, s.countEvents(orders.EventRefundInitiated))
}

func (s *EngineSuite) TestAdminRefundRefusedReleasesClaim() {
	r := s.placeOnline("u1")
	_, err := s.verify("u1", r, "pay_1")
	s.Require().NoError(err)

	s.gw.FailRefund = errors.New("refund window closed")
	_, err = s.admin.RefundOrder(s.ctx, r.Order.ID, nil, "")
	s.ErrorIs(err, orders.ErrGatewayUnavailable)
	p := s.payment(r.Order.ID)
	s.Equal(orders.RefundNone, p.RefundStatus)
	s.Nil(p.RefundAmount)

	s.gw.FailRefund = nil
	res, err := s.admin.RefundOrder(s.ctx, r.Order.ID, nil, "")
	s.Require().NoError(err)
	s.Equal(orders.RefundCreated, res.Payment.RefundStatus)
	s.Equal(int64(50000), s.gw.Refunded("pay_1"))
}

func (s *EngineSuite) TestAdminRefundTimeoutHoldsClaim() {
	r := s.placeOnline("u1")
	_, err := s.verify("u1", r, "pay_1")
	s.Require().NoError(err)

	s.gw.FailRefund = context.DeadlineExceeded
	_, err = s.admin.RefundOrder(s.ctx, r.Order.ID, nil, "")
	s.ErrorIs(err, context.DeadlineExceeded)
	s.Equal(orders.RefundRequested, s.payment(r.Order.ID).RefundStatus)

	s.gw.FailRefund = nil
	_, err = s.admin.RefundOrder(s.ctx, r.Order.ID, nil, "")
	s.ErrorIs(err, orders.ErrAlreadyProcessed, "no second refund while the first is unaccounted for")

	// the gateway did refund after all
	s.webhook(refundEvent(EventRefundCreated, "rfnd_9", "pay_1", 50000), "")
	p := s.payment(r.Order.ID)
	s.Equal(orders.RefundCreated, p.RefundStatus)
	s.Equal("rfnd_9", p.RefundID)
}

func (s *EngineSuite) TestAdminCleanupUsesOperatorThreshold() {
	r := s.placeOnline("u1")
	s.engine.now = func() time.Time { return time.Now().UTC().Add(2 * time.Hour) }
	n, err := s.admin.CleanupAbandoned(s.ctx)
	s.Require().NoError(err)
	s.Zero(n, "two hours is under the 24h operator threshold")

	s.engine.now = func() time.Time { return time.Now().UTC().Add(25 * time.Hour) }
	n, err = s.admin.CleanupAbandoned(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, n)
	s.Equal(orders.StatusCancelled, s.order(r.Order.ID).Status)
}

func (s *EngineSuite) TestAdminBulkStockReportsPartialResults() {
	s.store.PutProduct(orders.Product{ID: "p2", Name: "Morty Cap", Category: orders.CategoryRickNMorty, Price: decimal.NewFromInt(300), Stock: 2})

	res, err := s.admin.BulkUpdateStock(s.ctx, []inventory.StockUpdate{
		{ProductID: "p1", Stock: 20, Operation: inventory.OpAdd},
		{ProductID: "ghost", Stock: 1},
		{ProductID: "p2", Stock: 5, Operation: inventory.OpSubtract},
		{ProductID: "p1", Stock: 1, Operation: "double"},
	})
	s.Require().NoError(err)
	s.Require().Len(res.Updated, 2)
	s.Equal(inventory.StockChange{ProductID: "p1", Name: "Rick Portal Tee", Previous: 5, Current: 25}, res.Updated[0])
	s.Equal(0, res.Updated[1].Current)
	s.Require().Len(res.Errors, 2)
	s.Equal("ghost", res.Errors[0].ProductID)
	s.Equal("p1", res.Errors[1].ProductID)
	s.Equal(25, s.stock())

	_, err = s.admin.BulkUpdateStock(s.ctx, nil)
	s.ErrorIs(err, orders.ErrValidation)
}

func (s *EngineSuite) TestAdminStockAlerts() {
	s.store.PutProduct(orders.Product{ID: "p2", Name: "Morty Cap", Category: orders.CategoryRickNMorty, Price: decimal.NewFromInt(300), Stock: 0})
	s.store.PutProduct(orders.Product{ID: "p3", Name: "Shiva Hoodie", Category: orders.CategoryShiva, Price: decimal.NewFromInt(1500), Stock: 40})

	a, err := s.admin.StockAlerts(s.ctx, 0)
	s.Require().NoError(err)
	s.Equal(inventory.LowStockThreshold, a.Threshold)
	s.Require().Len(a.LowStock, 1)
	s.Equal("p1", a.LowStock[0].ID)
	s.Require().Len(a.OutOfStock, 1)
	s.Equal("p2", a.OutOfStock[0].ID)

	a, err = s.admin.StockAlerts(s.ctx, 4)
	s.Require().NoError(err)
	s.Empty(a.LowStock)
	s.Len(a.OutOfStock, 1)

	_, err = s.admin.StockAlerts(s.ctx, -1)
	s.ErrorIs(err, orders.ErrValidation)
}

func (s *EngineSuite) TestAdminStockEditRacesCheckout() {
	s.Require().NoError(s.store.InTx(s.ctx, func(tx orders.Tx) error {
		p, _ := tx.GetProduct(s.ctx, "p1")
		c := orders.Cart{UserID: "u1"}
		_ = c.Add(p, 1, orders.SizeM)
		return tx.SaveCart(s.ctx, c)
	}))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := s.checkout.PlaceCOD(s.ctx, checkout.Request{UserID: "u1", TotalAmount: decimal.NewFromInt(500), Address: addr})
		s.NoError(err)
	}()
	go func() {
		defer wg.Done()
		_, err := s.admin.UpdateStock(s.ctx, inventory.StockUpdate{ProductID: "p1", Stock: 10, Operation: inventory.OpAdd})
		s.NoError(err)
	}()
	wg.Wait()
	s.Equal(14, s.stock())
}
