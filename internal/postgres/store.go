package postgres

import (
	"context"
	"errors"
	"fmt"
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"log/slog"
	"strings"
	"time"
)

var _ orders.Store = (*Store)(nil)

// querier is satisfied by both the pool and an open transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

type Store struct {
	reader
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewStore(log *slog.Logger, pool *pgxpool.Pool) *Store {
	return &Store{reader: reader{q: pool}, log: log, pool: pool}
}

func (s *Store) InTx(ctx context.Context, fn func(tx orders.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(&txStore{reader: reader{q: tx}}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// UpsertProduct seeds the catalog. Catalog management lives elsewhere.
func (s *Store) UpsertProduct(ctx context.Context, p orders.Product) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO products (id, name, category, price, stock)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (id) DO UPDATE SET name=$2, category=$3, price=$4, stock=$5, updated_at=now()`,
		p.ID, p.Name, p.Category, p.Price, p.Stock)
	return err
}

func notFound(err error, format string, args ...any) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return orders.NotFoundf(format, args...)
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

type reader struct{ q querier }

func (r reader) GetProduct(ctx context.Context, id string) (orders.Product, error) {
	p, err := scanProduct(r.q.QueryRow(ctx, `SELECT `+productCols+` FROM products WHERE id=$1`, id))
	if err != nil {
		return orders.Product{}, notFound(err, "product %s", id)
	}
	return p, nil
}

func (r reader) GetCart(ctx context.Context, userID string) (orders.Cart, error) {
	c := orders.Cart{UserID: userID}
	err := r.q.QueryRow(ctx, `SELECT items, updated_at FROM carts WHERE user_id=$1`, userID).
		Scan(&c.Items, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		c.Items = []orders.CartItem{}
		return c, nil
	}
	if err != nil {
		return orders.Cart{}, err
	}
	if c.Items == nil {
		c.Items = []orders.CartItem{}
	}
	return c, nil
}

const orderCols = `o.id, o.user_id, o.total_amount, o.address, o.payment_method, o.status, o.created_at, o.updated_at`

func scanOrder(row pgx.Row) (orders.Order, error) {
	var o orders.Order
	err := row.Scan(&o.ID, &o.UserID, &o.TotalAmount, &o.Address, &o.PaymentMethod, &o.Status, &o.CreatedAt, &o.UpdatedAt)
	return o, err
}

func (r reader) getOrder(ctx context.Context, id, suffix string) (orders.Order, error) {
	o, err := scanOrder(r.q.QueryRow(ctx, `SELECT `+orderCols+` FROM orders o WHERE o.id=$1`+suffix, id))
	if err != nil {
		return orders.Order{}, notFound(err, "order %s", id)
	}
	items, err := r.loadItems(ctx, []string{id})
	if err != nil {
		return orders.Order{}, err
	}
	o.Items = items[id]
	return o, nil
}

func (r reader) GetOrder(ctx context.Context, id string) (orders.Order, error) {
	return r.getOrder(ctx, id, "")
}

func (r reader) loadItems(ctx context.Context, orderIDs []string) (map[string][]orders.OrderItem, error) {
	out := make(map[string][]orders.OrderItem, len(orderIDs))
	if len(orderIDs) == 0 {
		return out, nil
	}
	rows, err := r.q.Query(ctx, `
		SELECT order_id, product_id, category, size, quantity, price
		FROM order_items WHERE order_id = ANY($1)
		ORDER BY order_id, line`, orderIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var orderID string
		var it orders.OrderItem
		if err := rows.Scan(&orderID, &it.ProductID, &it.Category, &it.Size, &it.Quantity, &it.Price); err != nil {
			return nil, err
		}
		out[orderID] = append(out[orderID], it)
	}
	return out, rows.Err()
}

func (r reader) listOrders(ctx context.Context, sql string, args ...any) ([]orders.Order, error) {
	rows, err := r.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	var list []orders.Order
	var ids []string
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		list = append(list, o)
		ids = append(ids, o.ID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	items, err := r.loadItems(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range list {
		list[i].Items = items[list[i].ID]
	}
	return list, nil
}

func (r reader) ListOrders(ctx context.Context, f orders.OrderFilter) ([]orders.Order, error) {
	var where []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.UserID != "" {
		add("o.user_id = $%d", f.UserID)
	}
	if f.Status != "" {
		add("o.status = $%d", f.Status)
	}
	if f.Method != "" {
		add("o.payment_method = $%d", f.Method)
	}
	q := `SELECT ` + orderCols + ` FROM orders o`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY o.created_at DESC`
	return r.listOrders(ctx, q, args...)
}

func (r reader) ListAbandoned(ctx context.Context, before time.Time, limit int) ([]orders.Order, error) {
	return r.listOrders(ctx, `
		SELECT `+orderCols+`
		FROM orders o JOIN payments p ON p.order_id = o.id
		WHERE o.status = $1 AND o.payment_method = $2 AND p.status = $3 AND o.created_at < $4
		ORDER BY o.created_at
		LIMIT $5`,
		orders.StatusPending, orders.MethodOnline, orders.PaymentCreated, before, limit)
}

const paymentCols = `p.id, p.order_id, p.gateway_order_id, p.gateway_payment_id, p.signature, p.amount, p.currency,
	p.status, p.method_detail, p.refund_id, p.refund_status, p.refund_amount, p.created_at, p.updated_at`

func scanPayment(row pgx.Row) (orders.Payment, error) {
	var p orders.Payment
	var refund decimal.NullDecimal
	err := row.Scan(&p.ID, &p.OrderID, &p.GatewayOrderID, &p.GatewayPaymentID, &p.Signature, &p.Amount, &p.Currency,
		&p.Status, &p.MethodDetail, &p.RefundID, &p.RefundStatus, &refund, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return orders.Payment{}, err
	}
	if refund.Valid {
		amt := refund.Decimal
		p.RefundAmount = &amt
	}
	return p, nil
}

func (r reader) paymentWhere(ctx context.Context, cond string, arg any, what string) (orders.Payment, error) {
	p, err := scanPayment(r.q.QueryRow(ctx, `SELECT `+paymentCols+` FROM payments p WHERE `+cond, arg))
	if err != nil {
		return orders.Payment{}, notFound(err, "%s", what)
	}
	return p, nil
}

func (r reader) GetPaymentByOrder(ctx context.Context, orderID string) (orders.Payment, error) {
	return r.paymentWhere(ctx, `p.order_id=$1`, orderID, "payment for order "+orderID)
}

func (r reader) FindPaymentByGatewayOrder(ctx context.Context, id string) (orders.Payment, error) {
	return r.paymentWhere(ctx, `p.gateway_order_id=$1`, id, "payment for gateway order "+id)
}

func (r reader) FindPaymentByGatewayPayment(ctx context.Context, id string) (orders.Payment, error) {
	if id == "" {
		return orders.Payment{}, orders.NotFoundf("payment without gateway id")
	}
	return r.paymentWhere(ctx, `p.gateway_payment_id=$1`, id, "payment "+id)
}

func (r reader) ListPaymentsByUser(ctx context.Context, userID string) ([]orders.Payment, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+paymentCols+`
		FROM payments p JOIN orders o ON o.id = p.order_id
		WHERE o.user_id = $1
		ORDER BY p.created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []orders.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// txStore is the orders.Tx over one pgx transaction.
type txStore struct {
	reader
}

func (t *txStore) LockOrder(ctx context.Context, id string) (orders.Order, error) {
	return t.getOrder(ctx, id, " FOR UPDATE")
}

func (t *txStore) LockPaymentByOrder(ctx context.Context, orderID string) (orders.Payment, error) {
	p, err := scanPayment(t.q.QueryRow(ctx, `SELECT `+paymentCols+` FROM payments p WHERE p.order_id=$1 FOR UPDATE`, orderID))
	if err != nil {
		return orders.Payment{}, notFound(err, "payment for order %s", orderID)
	}
	return p, nil
}

// LockCart: baris kosong dibuat dulu supaya ada yang bisa dikunci.
func (t *txStore) LockCart(ctx context.Context, userID string) (orders.Cart, error) {
	if _, err := t.q.Exec(ctx, `INSERT INTO carts (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`, userID); err != nil {
		return orders.Cart{}, err
	}
	c := orders.Cart{UserID: userID}
	err := t.q.QueryRow(ctx, `SELECT items, updated_at FROM carts WHERE user_id=$1 FOR UPDATE`, userID).
		Scan(&c.Items, &c.UpdatedAt)
	if err != nil {
		return orders.Cart{}, err
	}
	if c.Items == nil {
		c.Items = []orders.CartItem{}
	}
	return c, nil
}

func (t *txStore) InsertOrder(ctx context.Context, o orders.Order) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO orders (id, user_id, total_amount, address, payment_method, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		o.ID, o.UserID, o.TotalAmount, o.Address, o.PaymentMethod, o.Status, o.CreatedAt, o.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("order %s: %w", o.ID, orders.ErrConflict)
	}
	if err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for i, it := range o.Items {
		batch.Queue(`INSERT INTO order_items (order_id, line, product_id, category, size, quantity, price)
			VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			o.ID, i, it.ProductID, it.Category, it.Size, it.Quantity, it.Price)
	}
	return t.q.SendBatch(ctx, batch).Close()
}

func (t *txStore) InsertPayment(ctx context.Context, p orders.Payment) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO payments (id, order_id, gateway_order_id, amount, currency, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		p.ID, p.OrderID, p.GatewayOrderID, p.Amount, p.Currency, p.Status, p.CreatedAt, p.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("payment for order %s: %w", p.OrderID, orders.ErrConflict)
	}
	return err
}

func (t *txStore) CompareAndSetStatus(ctx context.Context, orderID string, from, to orders.OrderStatus) error {
	ct, err := t.q.Exec(ctx, `UPDATE orders SET status=$3, updated_at=now() WHERE id=$1 AND status=$2`, orderID, from, to)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return orders.ErrConflict
	}
	return nil
}

func (t *txStore) UpdatePayment(ctx context.Context, p orders.Payment) error {
	var refund decimal.NullDecimal
	if p.RefundAmount != nil {
		refund = decimal.NewNullDecimal(*p.RefundAmount)
	}
	ct, err := t.q.Exec(ctx, `
		UPDATE payments SET
			gateway_payment_id=$2, signature=$3, status=$4, method_detail=$5,
			refund_id=$6, refund_status=$7, refund_amount=$8, updated_at=now()
		WHERE order_id=$1`,
		p.OrderID, p.GatewayPaymentID, p.Signature, p.Status, p.MethodDetail, p.RefundID, p.RefundStatus, refund)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return orders.NotFoundf("payment for order %s", p.OrderID)
	}
	return nil
}

func (t *txStore) SaveCart(ctx context.Context, c orders.Cart) error {
	items := c.Items
	if items == nil {
		items = []orders.CartItem{}
	}
	_, err := t.q.Exec(ctx, `
		INSERT INTO carts (user_id, items, updated_at) VALUES ($1,$2,now())
		ON CONFLICT (user_id) DO UPDATE SET items=EXCLUDED.items, updated_at=now()`,
		c.UserID, items)
	return err
}

func (t *txStore) DeleteOrder(ctx context.Context, id string) error {
	ct, err := t.q.Exec(ctx, `DELETE FROM orders WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return orders.NotFoundf("order %s", id)
	}
	return nil
}
