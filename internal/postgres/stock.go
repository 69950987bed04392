package postgres

import (
	"context"
	"errors"
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
	"github.com/jackc/pgx/v5"
)

// AdjustStock: update bersyarat satu baris, stok tidak pernah negatif.
// Kalau kondisi gagal, baca ulang stok untuk detail penolakan.
func (t *txStore) AdjustStock(ctx context.Context, productID string, delta int) error {
	ct, err := t.q.Exec(ctx, `
		UPDATE products SET stock = stock + $2, updated_at = now()
		WHERE id = $1 AND stock + $2 >= 0`, productID, delta)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 1 {
		return nil
	}

	var name string
	var stock int
	err = t.q.QueryRow(ctx, `SELECT name, stock FROM products WHERE id=$1`, productID).Scan(&name, &stock)
	if errors.Is(err, pgx.ErrNoRows) {
		return orders.NotFoundf("product %s", productID)
	}
	if err != nil {
		return err
	}
	return &orders.StockError{ProductID: productID, Name: name, Available: stock, Requested: -delta}
}

const productCols = `id, name, category, price, stock, created_at, updated_at`

func scanProduct(row pgx.Row) (orders.Product, error) {
	var p orders.Product
	err := row.Scan(&p.ID, &p.Name, &p.Category, &p.Price, &p.Stock, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (t *txStore) LockProduct(ctx context.Context, id string) (orders.Product, error) {
	p, err := scanProduct(t.q.QueryRow(ctx, `SELECT `+productCols+` FROM products WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		return orders.Product{}, notFound(err, "product %s", id)
	}
	return p, nil
}

func (r reader) ListLowStock(ctx context.Context, threshold int) ([]orders.Product, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+productCols+` FROM products
		WHERE stock <= $1
		ORDER BY stock, name`, threshold)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []orders.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
