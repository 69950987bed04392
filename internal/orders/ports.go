package orders

import (
	"context"
	"time"
)

type OrderFilter struct {
	UserID string
	Status OrderStatus
	Method PaymentMethod
}

// Reader is the non-locking read side of the store. Lookups of a missing
// record return an error wrapping ErrNotFound; a missing cart is returned
// as an empty cart.
type Reader interface {
	GetProduct(ctx context.Context, id string) (Product, error)
	GetCart(ctx context.Context, userID string) (Cart, error)
	GetOrder(ctx context.Context, id string) (Order, error)
	GetPaymentByOrder(ctx context.Context, orderID string) (Payment, error)
	FindPaymentByGatewayOrder(ctx context.Context, gatewayOrderID string) (Payment, error)
	FindPaymentByGatewayPayment(ctx context.Context, gatewayPaymentID string) (Payment, error)
	ListOrders(ctx context.Context, f OrderFilter) ([]Order, error)
	ListPaymentsByUser(ctx context.Context, userID string) ([]Payment, error)
	// ListAbandoned returns Pending Online orders created before the cutoff
	// whose payment is still created, oldest first.
	ListAbandoned(ctx context.Context, before time.Time, limit int) ([]Order, error)
	// ListLowStock returns products with stock at or below threshold, emptiest first.
	ListLowStock(ctx context.Context, threshold int) ([]Product, error)
}

// Tx is one atomic unit of work. Lock order is order row, then payment
// row, then cart row, then product rows.
type Tx interface {
	Reader
	LockOrder(ctx context.Context, id string) (Order, error)
	LockPaymentByOrder(ctx context.Context, orderID string) (Payment, error)
	// LockCart holds the user's cart until commit; a missing cart is created empty.
	LockCart(ctx context.Context, userID string) (Cart, error)
	LockProduct(ctx context.Context, id string) (Product, error)
	InsertOrder(ctx context.Context, o Order) error
	InsertPayment(ctx context.Context, p Payment) error
	// CompareAndSetStatus fails with ErrConflict unless the stored status is from.
	CompareAndSetStatus(ctx context.Context, orderID string, from, to OrderStatus) error
	UpdatePayment(ctx context.Context, p Payment) error
	// AdjustStock applies delta atomically; a decrement below zero fails
	// with *StockError and changes nothing.
	AdjustStock(ctx context.Context, productID string, delta int) error
	SaveCart(ctx context.Context, c Cart) error
	DeleteOrder(ctx context.Context, id string) error
	AppendEvent(ctx context.Context, ev Envelope) error
}

type Store interface {
	Reader
	// InTx commits when fn returns nil and rolls back otherwise.
	InTx(ctx context.Context, fn func(tx Tx) error) error
}
