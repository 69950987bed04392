// Package memstore is an in-process orders.Store. InTx runs against a
// private copy of the data and swaps it in on success, so a failing unit
// of work leaves nothing behind.
package memstore

import (
	"context"
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
	"sort"
	"sync"
	"time"
)

var _ orders.Store = (*Store)(nil)

type Store struct {
	mu   sync.Mutex
	data *state
}

type state struct {
	products map[string]orders.Product
	carts    map[string]orders.Cart
	orders   map[string]orders.Order
	payments map[string]orders.Payment // by order id
	events   []orders.Envelope
}

func New() *Store {
	return &Store{data: &state{
		products: map[string]orders.Product{},
		carts:    map[string]orders.Cart{},
		orders:   map[string]orders.Order{},
		payments: map[string]orders.Payment{},
	}}
}

func (st *state) clone() *state {
	c := &state{
		products: make(map[string]orders.Product, len(st.products)),
		carts:    make(map[string]orders.Cart, len(st.carts)),
		orders:   make(map[string]orders.Order, len(st.orders)),
		payments: make(map[string]orders.Payment, len(st.payments)),
		events:   append([]orders.Envelope(nil), st.events...),
	}
	for k, v := range st.products {
		c.products[k] = v
	}
	for k, v := range st.carts {
		c.carts[k] = copyCart(v)
	}
	for k, v := range st.orders {
		c.orders[k] = v
	}
	for k, v := range st.payments {
		c.payments[k] = v
	}
	return c
}

func copyCart(c orders.Cart) orders.Cart {
	c.Items = append([]orders.CartItem{}, c.Items...)
	return c
}

// PutProduct seeds or replaces a catalog entry.
func (s *Store) PutProduct(p orders.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.products[p.ID] = p
}

// Events returns everything appended to the outbox so far.
func (s *Store) Events() []orders.Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]orders.Envelope(nil), s.data.events...)
}

func (s *Store) InTx(ctx context.Context, fn func(tx orders.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	work := s.data.clone()
	if err := fn(&tx{view{work}}); err != nil {
		return err
	}
	s.data = work
	return nil
}

func (s *Store) read() view {
	return view{s.data}
}

func (s *Store) GetProduct(ctx context.Context, id string) (orders.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().GetProduct(ctx, id)
}

func (s *Store) GetCart(ctx context.Context, userID string) (orders.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().GetCart(ctx, userID)
}

func (s *Store) GetOrder(ctx context.Context, id string) (orders.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().GetOrder(ctx, id)
}

func (s *Store) GetPaymentByOrder(ctx context.Context, orderID string) (orders.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().GetPaymentByOrder(ctx, orderID)
}

func (s *Store) FindPaymentByGatewayOrder(ctx context.Context, id string) (orders.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().FindPaymentByGatewayOrder(ctx, id)
}

func (s *Store) FindPaymentByGatewayPayment(ctx context.Context, id string) (orders.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().FindPaymentByGatewayPayment(ctx, id)
}

func (s *Store) ListOrders(ctx context.Context, f orders.OrderFilter) ([]orders.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().ListOrders(ctx, f)
}

func (s *Store) ListPaymentsByUser(ctx context.Context, userID string) ([]orders.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().ListPaymentsByUser(ctx, userID)
}

func (s *Store) ListAbandoned(ctx context.Context, before time.Time, limit int) ([]orders.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().ListAbandoned(ctx, before, limit)
}

func (s *Store) ListLowStock(ctx context.Context, threshold int) ([]orders.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().ListLowStock(ctx, threshold)
}

type view struct{ st *state }

func (v view) GetProduct(_ context.Context, id string) (orders.Product, error) {
	p, ok := v.st.products[id]
	if !ok {
		return orders.Product{}, orders.NotFoundf("product %s", id)
	}
	return p, nil
}

func (v view) GetCart(_ context.Context, userID string) (orders.Cart, error) {
	c, ok := v.st.carts[userID]
	if !ok {
		return orders.Cart{UserID: userID, Items: []orders.CartItem{}}, nil
	}
	return copyCart(c), nil
}

func (v view) GetOrder(_ context.Context, id string) (orders.Order, error) {
	o, ok := v.st.orders[id]
	if !ok {
		return orders.Order{}, orders.NotFoundf("order %s", id)
	}
	return o, nil
}

func (v view) GetPaymentByOrder(_ context.Context, orderID string) (orders.Payment, error) {
	p, ok := v.st.payments[orderID]
	if !ok {
		return orders.Payment{}, orders.NotFoundf("payment for order %s", orderID)
	}
	return p, nil
}

func (v view) FindPaymentByGatewayOrder(_ context.Context, id string) (orders.Payment, error) {
	for _, p := range v.st.payments {
		if p.GatewayOrderID == id {
			return p, nil
		}
	}
	return orders.Payment{}, orders.NotFoundf("payment for gateway order %s", id)
}

func (v view) FindPaymentByGatewayPayment(_ context.Context, id string) (orders.Payment, error) {
	for _, p := range v.st.payments {
		if id != "" && p.GatewayPaymentID == id {
			return p, nil
		}
	}
	return orders.Payment{}, orders.NotFoundf("payment %s", id)
}

func (v view) ListOrders(_ context.Context, f orders.OrderFilter) ([]orders.Order, error) {
	var out []orders.Order
	for _, o := range v.st.orders {
		if f.UserID != "" && o.UserID != f.UserID {
			continue
		}
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		if f.Method != "" && o.PaymentMethod != f.Method {
			continue
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (v view) ListPaymentsByUser(_ context.Context, userID string) ([]orders.Payment, error) {
	var out []orders.Payment
	for orderID, p := range v.st.payments {
		if o, ok := v.st.orders[orderID]; ok && o.UserID == userID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (v view) ListAbandoned(_ context.Context, before time.Time, limit int) ([]orders.Order, error) {
	var out []orders.Order
	for _, o := range v.st.orders {
		if o.Status != orders.StatusPending || o.PaymentMethod != orders.MethodOnline || !o.CreatedAt.Before(before) {
			continue
		}
		if p, ok := v.st.payments[o.ID]; ok && p.Status == orders.PaymentCreated {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (v view) ListLowStock(_ context.Context, threshold int) ([]orders.Product, error) {
	var out []orders.Product
	for _, p := range v.st.products {
		if p.Stock <= threshold {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Stock != out[j].Stock {
			return out[i].Stock < out[j].Stock
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// tx needs no row locks: InTx already holds the store mutex.
type tx struct{ view }

func (t *tx) LockCart(ctx context.Context, userID string) (orders.Cart, error) {
	return t.GetCart(ctx, userID)
}

func (t *tx) LockProduct(ctx context.Context, id string) (orders.Product, error) {
	return t.GetProduct(ctx, id)
}

func (t *tx) LockOrder(ctx context.Context, id string) (orders.Order, error) {
	return t.GetOrder(ctx, id)
}

func (t *tx) LockPaymentByOrder(ctx context.Context, orderID string) (orders.Payment, error) {
	return t.GetPaymentByOrder(ctx, orderID)
}

func (t *tx) InsertOrder(_ context.Context, o orders.Order) error {
	if _, ok := t.st.orders[o.ID]; ok {
		return orders.ErrConflict
	}
	t.st.orders[o.ID] = o
	return nil
}

func (t *tx) InsertPayment(_ context.Context, p orders.Payment) error {
	if _, ok := t.st.payments[p.OrderID]; ok {
		return orders.ErrConflict
	}
	t.st.payments[p.OrderID] = p
	return nil
}

func (t *tx) CompareAndSetStatus(_ context.Context, orderID string, from, to orders.OrderStatus) error {
	o, ok := t.st.orders[orderID]
	if !ok {
		return orders.NotFoundf("order %s", orderID)
	}
	if o.Status != from {
		return orders.ErrConflict
	}
	o.Status = to
	o.UpdatedAt = time.Now().UTC()
	t.st.orders[orderID] = o
	return nil
}

func (t *tx) UpdatePayment(_ context.Context, p orders.Payment) error {
	if _, ok := t.st.payments[p.OrderID]; !ok {
		return orders.NotFoundf("payment for order %s", p.OrderID)
	}
	p.UpdatedAt = time.Now().UTC()
	t.st.payments[p.OrderID] = p
	return nil
}

func (t *tx) AdjustStock(_ context.Context, productID string, delta int) error {
	p, ok := t.st.products[productID]
	if !ok {
		return orders.NotFoundf("product %s", productID)
	}
	if p.Stock+delta < 0 {
		return &orders.StockError{ProductID: p.ID, Name: p.Name, Available: p.Stock, Requested: -delta}
	}
	p.Stock += delta
	t.st.products[productID] = p
	return nil
}

func (t *tx) SaveCart(_ context.Context, c orders.Cart) error {
	c.UpdatedAt = time.Now().UTC()
	t.st.carts[c.UserID] = copyCart(c)
	return nil
}

func (t *tx) DeleteOrder(_ context.Context, id string) error {
	if _, ok := t.st.orders[id]; !ok {
		return orders.NotFoundf("order %s", id)
	}
	delete(t.st.orders, id)
	delete(t.st.payments, id)
	return nil
}

func (t *tx) AppendEvent(_ context.Context, ev orders.Envelope) error {
	t.st.events = append(t.st.events, ev)
	return nil
}
