package checkout

import (
	"context"
	"fmt"
	"github.com/ariefcatur/go-storefront-orders/internal/gateway"
	"github.com/ariefcatur/go-storefront-orders/internal/inventory"
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"log/slog"
	"time"
)

type Request struct {
	UserID      string
	TotalAmount decimal.Decimal
	Address     orders.Address
	TraceID     string
}

type OnlineResult struct {
	Order        orders.Order   `json:"order"`
	Payment      orders.Payment `json:"payment"`
	GatewayOrder gateway.Order  `json:"gateway_order"`
	KeyID        string         `json:"key"`
}

type Service struct {
	log      *slog.Logger
	store    orders.Store
	ledger   *inventory.Ledger
	gw       gateway.Gateway
	currency string
	producer string
	now      func() time.Time
}

func NewService(log *slog.Logger, store orders.Store, ledger *inventory.Ledger, gw gateway.Gateway, currency, producer string) *Service {
	return &Service{
		log:      log,
		store:    store,
		ledger:   ledger,
		gw:       gw,
		currency: currency,
		producer: producer,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func validateRequest(req Request) error {
	if req.UserID == "" {
		return orders.Validationf("missing user")
	}
	return req.Address.Validate()
}

// validate runs every check that needs no write: cart present, declared
// total equal to the snapshot total, and advisory stock.
func (s *Service) validate(ctx context.Context, r orders.Reader, c orders.Cart, req Request) (orders.Cart, error) {
	if c.Empty() {
		return orders.Cart{}, orders.ErrEmptyCart
	}
	if total := c.Total(); !total.Equal(req.TotalAmount) {
		return orders.Cart{}, fmt.Errorf("%w: declared %s, cart %s", orders.ErrAmountMismatch, req.TotalAmount, total)
	}
	if err := s.ledger.Check(ctx, r, c.StockLines()); err != nil {
		return orders.Cart{}, err
	}
	return c, nil
}

// PlaceCOD deducts stock, records the order and empties the cart in one
// transaction. COD orders never enter the payment machine.
func (s *Service) PlaceCOD(ctx context.Context, req Request) (orders.Order, error) {
	if err := validateRequest(req); err != nil {
		return orders.Order{}, err
	}
	var placed orders.Order
	err := s.store.InTx(ctx, func(tx orders.Tx) error {
		// a second submit of the same cart waits here, then sees it empty
		locked, err := tx.LockCart(ctx, req.UserID)
		if err != nil {
			return err
		}
		c, err := s.validate(ctx, tx, locked, req)
		if err != nil {
			return err
		}
		o := orders.NewOrderFromCart(uuid.NewString(), c, req.Address, orders.MethodCOD, s.now())
		if err := s.ledger.Deduct(ctx, tx, o.ID, o.StockLines()); err != nil {
			return err
		}
		if err := tx.InsertOrder(ctx, o); err != nil {
			return fmt.Errorf("insert order: %w", err)
		}
		c.Clear()
		if err := tx.SaveCart(ctx, c); err != nil {
			return fmt.Errorf("clear cart: %w", err)
		}
		if err := s.appendPlaced(ctx, tx, o, req.TraceID); err != nil {
			return err
		}
		placed = o
		return nil
	})
	if err != nil {
		return orders.Order{}, err
	}
	s.log.Info("cod order placed", "order_id", placed.ID, "user_id", placed.UserID, "total", placed.TotalAmount.String())
	return placed, nil
}

// PlaceOnline opens a gateway order and records Order(Pending) with
// Payment(created). Stock is untouched and the cart is kept until the
// payment is confirmed.
func (s *Service) PlaceOnline(ctx context.Context, req Request) (OnlineResult, error) {
	if err := validateRequest(req); err != nil {
		return OnlineResult{}, err
	}
	snapshot, err := s.store.GetCart(ctx, req.UserID)
	if err != nil {
		return OnlineResult{}, err
	}
	c, err := s.validate(ctx, s.store, snapshot, req)
	if err != nil {
		return OnlineResult{}, err
	}
	now := s.now()
	o := orders.NewOrderFromCart(uuid.NewString(), c, req.Address, orders.MethodOnline, now)

	gwOrder, err := s.gw.CreateOrder(ctx, orders.ToMinor(o.TotalAmount), s.currency,
		fmt.Sprintf("receipt_%d", now.UnixMilli()),
		map[string]string{"userId": req.UserID, "orderId": o.ID})
	if err != nil {
		return OnlineResult{}, fmt.Errorf("create gateway order: %w", err)
	}

	p := orders.Payment{
		ID:             uuid.NewString(),
		OrderID:        o.ID,
		GatewayOrderID: gwOrder.ID,
		Amount:         o.TotalAmount,
		Currency:       s.currency,
		Status:         orders.PaymentCreated,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	err = s.store.InTx(ctx, func(tx orders.Tx) error {
		if err := tx.InsertOrder(ctx, o); err != nil {
			return fmt.Errorf("insert order: %w", err)
		}
		if err := tx.InsertPayment(ctx, p); err != nil {
			return fmt.Errorf("insert payment: %w", err)
		}
		return s.appendPlaced(ctx, tx, o, req.TraceID)
	})
	if err != nil {
		// the gateway order is left to expire on the processor side
		s.log.Error("online order not recorded", "gateway_order_id", gwOrder.ID, "err", err)
		return OnlineResult{}, err
	}
	s.log.Info("online order placed", "order_id", o.ID, "gateway_order_id", gwOrder.ID, "amount_minor", gwOrder.AmountMinor)
	return OnlineResult{Order: o, Payment: p, GatewayOrder: gwOrder, KeyID: s.gw.KeyID()}, nil
}

func (s *Service) appendPlaced(ctx context.Context, tx orders.Tx, o orders.Order, traceID string) error {
	ev, err := orders.NewEnvelope(orders.EventOrderPlaced, s.producer, traceID, o.ID, orders.OrderPlacedPayload{
		OrderID:       o.ID,
		UserID:        o.UserID,
		PaymentMethod: o.PaymentMethod,
		Items:         o.StockLines(),
		TotalAmount:   o.TotalAmount,
	})
	if err != nil {
		return err
	}
	return tx.AppendEvent(ctx, ev)
}
