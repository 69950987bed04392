package inventory

import (
	"context"
	"errors"
	"fmt"
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
	"log/slog"
)

// ProductReader is the read side Check needs.
type ProductReader interface {
	GetProduct(ctx context.Context, id string) (orders.Product, error)
}

// StockWriter is the transactional side Deduct and Restore need.
type StockWriter interface {
	AdjustStock(ctx context.Context, productID string, delta int) error
}

type Ledger struct {
	log *slog.Logger
}

func NewLedger(log *slog.Logger) *Ledger {
	return &Ledger{log: log}
}

// Check is advisory: it places no hold. The conditional decrement in
// Deduct is what actually keeps stock from going negative.
func (l *Ledger) Check(ctx context.Context, r ProductReader, items []orders.ItemQty) error {
	for _, it := range items {
		if it.Qty < 1 {
			return orders.Validationf("invalid qty for product %s", it.ProductID)
		}
		p, err := r.GetProduct(ctx, it.ProductID)
		if err != nil {
			return err
		}
		if p.Stock < it.Qty {
			return &orders.StockError{ProductID: p.ID, Name: p.Name, Available: p.Stock, Requested: it.Qty}
		}
	}
	return nil
}

// Deduct must run inside the transaction that also moves the order; the
// first line that cannot be covered fails the whole unit.
func (l *Ledger) Deduct(ctx context.Context, w StockWriter, orderID string, items []orders.ItemQty) error {
	for _, it := range items {
		if err := w.AdjustStock(ctx, it.ProductID, -it.Qty); err != nil {
			var se *orders.StockError
			if errors.As(err, &se) {
				l.log.Warn("stock deduct rejected", "order_id", orderID, "product_id", it.ProductID,
					"requested", it.Qty, "available", se.Available)
			}
			return fmt.Errorf("deduct %s: %w", it.ProductID, err)
		}
	}
	l.log.Info("stock deducted", "order_id", orderID, "lines", len(items))
	return nil
}

func (l *Ledger) Restore(ctx context.Context, w StockWriter, orderID string, items []orders.ItemQty) error {
	for _, it := range items {
		if err := w.AdjustStock(ctx, it.ProductID, it.Qty); err != nil {
			if errors.Is(err, orders.ErrNotFound) {
				l.log.Warn("restore skipped, product gone", "order_id", orderID, "product_id", it.ProductID)
				continue
			}
			return fmt.Errorf("restore %s: %w", it.ProductID, err)
		}
	}
	l.log.Info("stock restored", "order_id", orderID, "lines", len(items))
	return nil
}

// LowStockThreshold is the default cut-off for the low-stock alert.
const LowStockThreshold = 10

type StockOp string

const (
	OpSet      StockOp = "set"
	OpAdd      StockOp = "add"
	OpSubtract StockOp = "subtract"
)

func ParseStockOp(s string) (StockOp, error) {
	switch StockOp(s) {
	case "", OpSet:
		return OpSet, nil
	case OpAdd, OpSubtract:
		return StockOp(s), nil
	}
	return "", orders.Validationf("operation must be set, add or subtract")
}

// StockUpdate is one operator edit of a product's stock.
type StockUpdate struct {
	ProductID string  `json:"product_id"`
	Stock     int     `json:"stock"`
	Operation StockOp `json:"operation"`
}

type StockChange struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Previous  int    `json:"previous"`
	Current   int    `json:"current"`
}

// StockAdmin is the transactional side Apply needs.
type StockAdmin interface {
	StockWriter
	LockProduct(ctx context.Context, id string) (orders.Product, error)
}

// Apply runs an operator stock edit under the product's row lock. Subtract
// clamps at zero instead of failing.
func (l *Ledger) Apply(ctx context.Context, w StockAdmin, u StockUpdate) (StockChange, error) {
	op, err := ParseStockOp(string(u.Operation))
	if err != nil {
		return StockChange{}, err
	}
	if u.Stock < 0 {
		return StockChange{}, orders.Validationf("stock must not be negative")
	}
	if op != OpSet && u.Stock == 0 {
		return StockChange{}, orders.Validationf("stock must be positive for %s", op)
	}
	p, err := w.LockProduct(ctx, u.ProductID)
	if err != nil {
		return StockChange{}, err
	}
	next := u.Stock
	switch op {
	case OpAdd:
		next = p.Stock + u.Stock
	case OpSubtract:
		next = max(p.Stock-u.Stock, 0)
	}
	if delta := next - p.Stock; delta != 0 {
		if err := w.AdjustStock(ctx, p.ID, delta); err != nil {
			return StockChange{}, fmt.Errorf("adjust %s: %w", p.ID, err)
		}
	}
	l.log.Info("stock updated", "product_id", p.ID, "operation", string(op), "previous", p.Stock, "current", next)
	if next <= LowStockThreshold {
		l.log.Warn("low stock", "product_id", p.ID, "name", p.Name, "stock", next)
	}
	return StockChange{ProductID: p.ID, Name: p.Name, Previous: p.Stock, Current: next}, nil
}
