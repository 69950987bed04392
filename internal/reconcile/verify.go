package reconcile

import (
	"context"
	"errors"
	"fmt"
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
)

type VerifyRequest struct {
	UserID           string
	OrderID          string
	GatewayOrderID   string
	GatewayPaymentID string
	Signature        string
	TraceID          string
}

// VerifyPayment handles the client's post-checkout call. The signature is
// checked before anything is read; a replay after the webhook already
// confirmed the order only empties the cart.
func (e *Engine) VerifyPayment(ctx context.Context, req VerifyRequest) (Result, error) {
	if req.OrderID == "" || req.GatewayOrderID == "" || req.GatewayPaymentID == "" || req.Signature == "" {
		return Result{}, orders.Validationf("orderId, gateway order id, payment id and signature are required")
	}
	if !e.gw.VerifyPayment(req.GatewayOrderID, req.GatewayPaymentID, req.Signature) {
		e.log.Warn("payment signature rejected", "order_id", req.OrderID, "gateway_order_id", req.GatewayOrderID)
		return Result{}, orders.ErrInvalidSignature
	}

	s := step{
		orderID: req.OrderID,
		trigger: orders.TriggerVerify,
		traceID: req.TraceID,
		guard: func(o orders.Order, p *orders.Payment) error {
			if o.UserID != req.UserID {
				return orders.NotFoundf("order %s", req.OrderID)
			}
			if p == nil || p.GatewayOrderID != req.GatewayOrderID {
				return orders.NotFoundf("payment for gateway order %s", req.GatewayOrderID)
			}
			return nil
		},
		patch: func(p *orders.Payment) bool {
			changed := false
			if p.GatewayPaymentID == "" {
				p.GatewayPaymentID = req.GatewayPaymentID
				changed = true
			}
			if p.Signature == "" {
				p.Signature = req.Signature
				changed = true
			}
			return changed
		},
	}
	res, err := e.apply(ctx, s)
	if errors.Is(err, orders.ErrInsufficientStock) {
		if herr := e.holdCapture(ctx, s, err); herr != nil {
			e.log.Error("hold captured payment", "order_id", req.OrderID, "err", herr)
		}
		return Result{}, fmt.Errorf("payment captured but order cannot be fulfilled: %w", err)
	}
	return res, err
}

// Cancel is the owner's cancel of an order still awaiting payment.
func (e *Engine) Cancel(ctx context.Context, userID, orderID, traceID string) (Result, error) {
	return e.apply(ctx, step{
		orderID: orderID,
		trigger: orders.TriggerCancel,
		traceID: traceID,
		guard: func(o orders.Order, _ *orders.Payment) error {
			if o.UserID != userID {
				return orders.NotFoundf("order %s", orderID)
			}
			return nil
		},
	})
}

// DeleteOrder hard-deletes an order. Only Cancelled orders may go; an
// empty userID means the caller is an operator.
func (e *Engine) DeleteOrder(ctx context.Context, userID, orderID string) error {
	err := e.store.InTx(ctx, func(tx orders.Tx) error {
		o, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if userID != "" && o.UserID != userID {
			return orders.NotFoundf("order %s", orderID)
		}
		if o.Status != orders.StatusCancelled {
			return fmt.Errorf("%w: only cancelled orders can be deleted (order is %s)", orders.ErrInvalidTransition, o.Status)
		}
		return tx.DeleteOrder(ctx, orderID)
	})
	if err == nil {
		e.log.Info("order deleted", "order_id", orderID)
	}
	return err
}
