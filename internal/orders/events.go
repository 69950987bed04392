package orders

import (
	"encoding/json"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"time"
)

const (
	EventOrderPlaced        = "OrderPlaced"
	EventPaymentAuthorized  = "PaymentAuthorized"
	EventOrderConfirmed     = "OrderConfirmed"
	EventOrderCancelled     = "OrderCancelled"
	EventOrderRefunded      = "OrderRefunded"
	EventRefundInitiated    = "RefundInitiated"
	EventOrderStatusChanged = "OrderStatusChanged"
	EventPaymentNeedsRefund = "PaymentNeedsRefund"
)

type Envelope struct {
	EventID       string          `json:"event_id"`      // uuid
	EventType     string          `json:"event_type"`    // salah satu const di atas
	EventVersion  int             `json:"event_version"` // 1
	OccurredAt    time.Time       `json:"occurred_at"`   // RFC3339
	Producer      string          `json:"producer"`      // e.g., "order-api"
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order_id
	Payload       json.RawMessage `json:"payload"`
}

func NewEnvelope(eventType, producer, traceID, orderID string, payload any) (Envelope, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      producer,
		TraceID:       traceID,
		CorrelationID: orderID,
		Payload:       b,
	}, nil
}

// ---- Payloads ----

type ItemQty struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}

type OrderPlacedPayload struct {
	OrderID       string          `json:"order_id"`
	UserID        string          `json:"user_id"`
	PaymentMethod PaymentMethod   `json:"payment_method"`
	Items         []ItemQty       `json:"items"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
}

// OrderStatusPayload is shared by every lifecycle event after placement.
type OrderStatusPayload struct {
	OrderID       string        `json:"order_id"`
	UserID        string        `json:"user_id"`
	Status        OrderStatus   `json:"status"`
	PaymentStatus PaymentStatus `json:"payment_status,omitempty"`
	Trigger       Trigger       `json:"trigger,omitempty"`
	StockMoved    bool          `json:"stock_moved"`
	Reason        string        `json:"reason,omitempty"`
}

// EventsFor lists the lifecycle events describing an outcome: at most one
// for the order or payment move, then PaymentNeedsRefund when the outcome
// raised an alert. Empty when nothing observable changed.
func EventsFor(out Outcome) []string {
	var evs []string
	switch {
	case out.OrderChanged() && out.Next.Order == StatusProcessing && out.Prev.Order == StatusPending:
		evs = append(evs, EventOrderConfirmed)
	case out.OrderChanged() && out.Next.Order == StatusCancelled:
		evs = append(evs, EventOrderCancelled)
	case out.OrderChanged() && out.Next.Order == StatusRefunded:
		evs = append(evs, EventOrderRefunded)
	case out.OrderChanged():
		evs = append(evs, EventOrderStatusChanged)
	case out.Next.Payment == PaymentAuthorized && out.Prev.Payment != PaymentAuthorized:
		evs = append(evs, EventPaymentAuthorized)
	case out.Next.Refund == RefundCreated && out.Prev.Refund.pending():
		evs = append(evs, EventRefundInitiated)
	}
	if out.Effects.Alert != "" {
		evs = append(evs, EventPaymentNeedsRefund)
	}
	return evs
}
