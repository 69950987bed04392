package reconcile

import (
	"context"
	"errors"
	"fmt"
	"github.com/ariefcatur/go-storefront-orders/internal/inventory"
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
	"github.com/shopspring/decimal"
	"time"
)

// Admin is the operator console. It shares the engine's transaction
// discipline so overrides obey the same stock rules as gateway events.
type Admin struct {
	engine           *Engine
	cleanupThreshold time.Duration
}

func NewAdmin(engine *Engine, cleanupThreshold time.Duration) *Admin {
	return &Admin{engine: engine, cleanupThreshold: cleanupThreshold}
}

// SetOrderStatus forces a status. Entering Cancelled restores stock that
// was held; fulfillment moves never touch stock.
func (a *Admin) SetOrderStatus(ctx context.Context, orderID, status, traceID string) (Result, error) {
	to, err := orders.ParseOrderStatus(status)
	if err != nil {
		return Result{}, err
	}
	return a.engine.apply(ctx, step{
		orderID: orderID,
		trigger: orders.Trigger("admin:" + string(to)),
		traceID: traceID,
		decide: func(s orders.State) (orders.Outcome, error) {
			return orders.AdminTransition(s, to)
		},
	})
}

// CleanupAbandoned is the on-demand sweep with the operator threshold.
func (a *Admin) CleanupAbandoned(ctx context.Context) (int, error) {
	return a.engine.Sweep(ctx, a.cleanupThreshold)
}

// RefundOrder asks the gateway to refund a captured payment. amount nil
// means the full payment. The refund is claimed under the row locks before
// the gateway is called, so concurrent requests cannot both reach it. The
// order moves to Refunded only when the gateway confirms with
// refund.processed.
func (a *Admin) RefundOrder(ctx context.Context, orderID string, amount *decimal.Decimal, traceID string) (Result, error) {
	e := a.engine
	pay, err := a.claimRefund(ctx, orderID, amount)
	if err != nil {
		return Result{}, err
	}
	refund := *pay.RefundAmount

	refundID, err := e.gw.Refund(ctx, pay.GatewayPaymentID, orders.ToMinor(refund))
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		// outcome unknown: keep the claim, refund.created settles it
		e.alert(orderID, orders.TriggerRefundCreated, "refund call timed out; claim held until the gateway reports")
		return Result{}, err
	}
	if err != nil {
		if rerr := a.releaseRefund(context.WithoutCancel(ctx), orderID); rerr != nil {
			e.log.Error("release refund claim", "order_id", orderID, "err", rerr)
		}
		return Result{}, err
	}
	e.log.Info("refund requested", "order_id", orderID, "refund_id", refundID, "amount", refund.String())

	return e.apply(context.WithoutCancel(ctx), step{
		orderID: orderID,
		trigger: orders.TriggerRefundCreated,
		traceID: traceID,
		patch: func(p *orders.Payment) bool {
			if p.RefundID != "" {
				return false
			}
			p.RefundID = refundID
			return true
		},
	})
}

func (a *Admin) claimRefund(ctx context.Context, orderID string, amount *decimal.Decimal) (orders.Payment, error) {
	var claimed orders.Payment
	err := a.engine.store.InTx(ctx, func(tx orders.Tx) error {
		o, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		p, err := tx.LockPaymentByOrder(ctx, o.ID)
		if err != nil {
			return err
		}
		if p.Status != orders.PaymentCaptured || p.RefundStatus != orders.RefundNone {
			return fmt.Errorf("%w: payment is %s, refund %q", orders.ErrAlreadyProcessed, p.Status, p.RefundStatus)
		}
		refund := p.Amount
		if amount != nil {
			if !amount.IsPositive() || amount.GreaterThan(p.Amount) {
				return orders.Validationf("refund amount must be in (0, %s]", p.Amount)
			}
			refund = *amount
		}
		p.RefundStatus = orders.RefundRequested
		p.RefundAmount = &refund
		p.UpdatedAt = a.engine.now()
		if err := tx.UpdatePayment(ctx, p); err != nil {
			return err
		}
		claimed = p
		return nil
	})
	return claimed, err
}

// releaseRefund drops a claim the gateway refused. Anything past requested
// was moved by the gateway's own webhook and is left alone.
func (a *Admin) releaseRefund(ctx context.Context, orderID string) error {
	return a.engine.store.InTx(ctx, func(tx orders.Tx) error {
		o, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		p, err := tx.LockPaymentByOrder(ctx, o.ID)
		if err != nil {
			return err
		}
		if p.RefundStatus != orders.RefundRequested {
			return nil
		}
		p.RefundStatus = orders.RefundNone
		p.RefundAmount = nil
		p.UpdatedAt = a.engine.now()
		return tx.UpdatePayment(ctx, p)
	})
}

// UpdateStock applies one operator stock edit.
func (a *Admin) UpdateStock(ctx context.Context, u inventory.StockUpdate) (inventory.StockChange, error) {
	var ch inventory.StockChange
	err := a.engine.store.InTx(ctx, func(tx orders.Tx) error {
		var err error
		ch, err = a.engine.ledger.Apply(ctx, tx, u)
		return err
	})
	return ch, err
}

type StockFailure struct {
	ProductID string `json:"product_id"`
	Error     string `json:"error"`
}

type BulkStockResult struct {
	Updated []inventory.StockChange `json:"updated"`
	Errors  []StockFailure          `json:"errors"`
}

// BulkUpdateStock applies each edit in its own transaction; one bad line
// does not hold back the rest.
func (a *Admin) BulkUpdateStock(ctx context.Context, updates []inventory.StockUpdate) (BulkStockResult, error) {
	if len(updates) == 0 {
		return BulkStockResult{}, orders.Validationf("updates must not be empty")
	}
	res := BulkStockResult{Updated: []inventory.StockChange{}, Errors: []StockFailure{}}
	for _, u := range updates {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		ch, err := a.UpdateStock(ctx, u)
		if err != nil {
			res.Errors = append(res.Errors, StockFailure{ProductID: u.ProductID, Error: err.Error()})
			continue
		}
		res.Updated = append(res.Updated, ch)
	}
	a.engine.log.Info("bulk stock update", "updated", len(res.Updated), "failed", len(res.Errors))
	return res, nil
}

type StockAlerts struct {
	Threshold  int              `json:"threshold"`
	LowStock   []orders.Product `json:"low_stock"`
	OutOfStock []orders.Product `json:"out_of_stock"`
}

// StockAlerts splits products at or below threshold into low and sold out.
// threshold 0 means the default.
func (a *Admin) StockAlerts(ctx context.Context, threshold int) (StockAlerts, error) {
	if threshold < 0 {
		return StockAlerts{}, orders.Validationf("threshold must not be negative")
	}
	if threshold == 0 {
		threshold = inventory.LowStockThreshold
	}
	list, err := a.engine.store.ListLowStock(ctx, threshold)
	if err != nil {
		return StockAlerts{}, err
	}
	out := StockAlerts{Threshold: threshold, LowStock: []orders.Product{}, OutOfStock: []orders.Product{}}
	for _, p := range list {
		if p.Stock == 0 {
			out.OutOfStock = append(out.OutOfStock, p)
			continue
		}
		out.LowStock = append(out.LowStock, p)
	}
	return out, nil
}
