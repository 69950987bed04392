package cart

import (
	"context"
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
	"github.com/shopspring/decimal"
	"log/slog"
)

type View struct {
	orders.Cart
	Total decimal.Decimal `json:"total"`
}

func viewOf(c orders.Cart) View {
	if c.Items == nil {
		c.Items = []orders.CartItem{}
	}
	return View{Cart: c, Total: c.Total()}
}

type Service struct {
	log   *slog.Logger
	store orders.Store
}

func NewService(log *slog.Logger, store orders.Store) *Service {
	return &Service{log: log, store: store}
}

func (s *Service) Read(ctx context.Context, userID string) (View, error) {
	c, err := s.store.GetCart(ctx, userID)
	if err != nil {
		return View{}, err
	}
	return viewOf(c), nil
}

func (s *Service) AddItem(ctx context.Context, userID, productID string, qty int, size orders.Size) (View, error) {
	return s.mutate(ctx, userID, func(tx orders.Tx, c *orders.Cart) error {
		p, err := tx.GetProduct(ctx, productID)
		if err != nil {
			return err
		}
		return c.Add(p, qty, size)
	})
}

func (s *Service) RemoveItem(ctx context.Context, userID, productID string, size orders.Size) (View, error) {
	return s.mutate(ctx, userID, func(_ orders.Tx, c *orders.Cart) error {
		return c.Remove(productID, size)
	})
}

func (s *Service) UpdateQuantity(ctx context.Context, userID, productID string, size orders.Size, qty int) (View, error) {
	return s.mutate(ctx, userID, func(_ orders.Tx, c *orders.Cart) error {
		return c.SetQuantity(productID, size, qty)
	})
}

func (s *Service) Clear(ctx context.Context, userID string) (View, error) {
	return s.mutate(ctx, userID, func(_ orders.Tx, c *orders.Cart) error {
		c.Clear()
		return nil
	})
}

func (s *Service) mutate(ctx context.Context, userID string, fn func(orders.Tx, *orders.Cart) error) (View, error) {
	var out orders.Cart
	err := s.store.InTx(ctx, func(tx orders.Tx) error {
		c, err := tx.LockCart(ctx, userID)
		if err != nil {
			return err
		}
		c.UserID = userID
		if err := fn(tx, &c); err != nil {
			return err
		}
		out = c
		return tx.SaveCart(ctx, c)
	})
	if err != nil {
		return View{}, err
	}
	s.log.Debug("cart updated", "user_id", userID, "lines", len(out.Items))
	return viewOf(out), nil
}
