package orders

import (
	"github.com/shopspring/decimal"
	"time"
)

type Category string

const (
	CategoryShiva      Category = "Shiva"
	CategoryShrooms    Category = "Shrooms"
	CategoryLSD        Category = "LSD"
	CategoryChakras    Category = "Chakras"
	CategoryDark       Category = "Dark"
	CategoryRickNMorty Category = "Rick n Morty"
)

func (c Category) Valid() bool {
	switch c {
	case CategoryShiva, CategoryShrooms, CategoryLSD, CategoryChakras, CategoryDark, CategoryRickNMorty:
		return true
	}
	return false
}

type Size string

const (
	SizeS  Size = "S"
	SizeM  Size = "M"
	SizeL  Size = "L"
	SizeXL Size = "XL"

	DefaultSize = SizeM
)

func (s Size) Valid() bool {
	switch s {
	case SizeS, SizeM, SizeL, SizeXL:
		return true
	}
	return false
}

type Product struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Category  Category        `json:"category"`
	Price     decimal.Decimal `json:"price"`
	Stock     int             `json:"stock"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// CartItem.PriceSnapshot dicopy saat add, tidak pernah dibaca ulang dari product.
type CartItem struct {
	ProductID     string          `json:"product_id"`
	Category      Category        `json:"category"`
	Size          Size            `json:"size"`
	Quantity      int             `json:"quantity"`
	PriceSnapshot decimal.Decimal `json:"price_snapshot"`
}

type Cart struct {
	UserID    string     `json:"user_id"`
	Items     []CartItem `json:"items"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Total sums snapshot prices; live product prices are never consulted.
func (c Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, it := range c.Items {
		total = total.Add(it.PriceSnapshot.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return total
}

func (c Cart) find(productID string, size Size) int {
	for i, it := range c.Items {
		if it.ProductID == productID && it.Size == size {
			return i
		}
	}
	return -1
}

type OrderItem struct {
	ProductID string          `json:"product_id"`
	Category  Category        `json:"category"`
	Size      Size            `json:"size"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

type Address struct {
	Line1   string `json:"line1"`
	City    string `json:"city"`
	State   string `json:"state"`
	Pincode string `json:"pincode"`
	Country string `json:"country"`
}

func (a Address) Validate() error {
	if a.Line1 == "" || a.City == "" || a.State == "" || a.Pincode == "" || a.Country == "" {
		return Validationf("address requires line1, city, state, pincode and country")
	}
	return nil
}

type Order struct {
	ID            string          `json:"id"`
	UserID        string          `json:"user_id"`
	Items         []OrderItem     `json:"items"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	Address       Address         `json:"address"`
	PaymentMethod PaymentMethod   `json:"payment_method"`
	Status        OrderStatus     `json:"status"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// StockLines collapses the order into per-product quantities for the ledger.
func (o Order) StockLines() []ItemQty {
	return MergeLines(o.Items)
}

type Payment struct {
	ID               string           `json:"id"`
	OrderID          string           `json:"order_id"`
	GatewayOrderID   string           `json:"gateway_order_id"`
	GatewayPaymentID string           `json:"gateway_payment_id,omitempty"`
	Signature        string           `json:"signature,omitempty"`
	Amount           decimal.Decimal  `json:"amount"`
	Currency         string           `json:"currency"`
	Status           PaymentStatus    `json:"status"`
	MethodDetail     string           `json:"method_detail,omitempty"`
	RefundID         string           `json:"refund_id,omitempty"`
	RefundStatus     RefundStatus     `json:"refund_status,omitempty"`
	RefundAmount     *decimal.Decimal `json:"refund_amount,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// NewOrderFromCart copies snapshot prices into immutable order lines.
func NewOrderFromCart(id string, c Cart, addr Address, method PaymentMethod, now time.Time) Order {
	items := make([]OrderItem, 0, len(c.Items))
	for _, it := range c.Items {
		items = append(items, OrderItem{
			ProductID: it.ProductID,
			Category:  it.Category,
			Size:      it.Size,
			Quantity:  it.Quantity,
			Price:     it.PriceSnapshot,
		})
	}
	return Order{
		ID:            id,
		UserID:        c.UserID,
		Items:         items,
		TotalAmount:   c.Total(),
		Address:       addr,
		PaymentMethod: method,
		Status:        StatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// MergeLines sums quantities per product, keeping first-seen order.
func MergeLines(items []OrderItem) []ItemQty {
	idx := map[string]int{}
	out := make([]ItemQty, 0, len(items))
	for _, it := range items {
		if i, ok := idx[it.ProductID]; ok {
			out[i].Qty += it.Quantity
			continue
		}
		idx[it.ProductID] = len(out)
		out = append(out, ItemQty{ProductID: it.ProductID, Qty: it.Quantity})
	}
	return out
}
