package orders

type OrderStatus string

const (
	StatusPending        OrderStatus = "Pending"
	StatusProcessing     OrderStatus = "Processing"
	StatusShipped        OrderStatus = "Shipped"
	StatusOutForDelivery OrderStatus = "Out for Delivery"
	StatusDelivered      OrderStatus = "Delivered"
	StatusCancelled      OrderStatus = "Cancelled"
	StatusRefunded       OrderStatus = "Refunded"
)

var allOrderStatuses = []OrderStatus{
	StatusPending, StatusProcessing, StatusShipped, StatusOutForDelivery,
	StatusDelivered, StatusCancelled, StatusRefunded,
}

func ParseOrderStatus(s string) (OrderStatus, error) {
	for _, st := range allOrderStatuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", Validationf("invalid order status %q", s)
}

// Terminal statuses never move again.
func (s OrderStatus) Terminal() bool {
	return s == StatusCancelled || s == StatusRefunded
}

// Fulfilling reports statuses reached only after stock left the shelf.
func (s OrderStatus) Fulfilling() bool {
	switch s {
	case StatusProcessing, StatusShipped, StatusOutForDelivery, StatusDelivered:
		return true
	}
	return false
}

type PaymentMethod string

const (
	MethodCOD    PaymentMethod = "COD"
	MethodOnline PaymentMethod = "Online"
)

func ParsePaymentMethod(s string) (PaymentMethod, error) {
	switch PaymentMethod(s) {
	case MethodCOD, MethodOnline:
		return PaymentMethod(s), nil
	}
	return "", Validationf("invalid payment method %q", s)
}

type PaymentStatus string

const (
	PaymentCreated    PaymentStatus = "created"
	PaymentAuthorized PaymentStatus = "authorized"
	PaymentCaptured   PaymentStatus = "captured"
	PaymentRefunded   PaymentStatus = "refunded"
	PaymentFailed     PaymentStatus = "failed"
)

// rank orders the forward path created -> authorized -> captured -> refunded.
// failed sits outside the path.
func (s PaymentStatus) rank() int {
	switch s {
	case PaymentCreated:
		return 0
	case PaymentAuthorized:
		return 1
	case PaymentCaptured:
		return 2
	case PaymentRefunded:
		return 3
	}
	return -1
}

type RefundStatus string

const (
	RefundNone RefundStatus = ""
	// RefundRequested is the operator's claim, held while the gateway call runs.
	RefundRequested RefundStatus = "requested"
	RefundCreated   RefundStatus = "created"
	RefundProcessed RefundStatus = "processed"
)

// pending reports whether the gateway has not yet acknowledged a refund.
func (r RefundStatus) pending() bool {
	return r == RefundNone || r == RefundRequested
}

// Admin moves. Anything not listed is rejected; Cancelled and Refunded are terminal.
var validNext = map[OrderStatus]map[OrderStatus]bool{
	StatusPending:        {StatusProcessing: true, StatusShipped: true, StatusOutForDelivery: true, StatusDelivered: true, StatusCancelled: true},
	StatusProcessing:     {StatusShipped: true, StatusOutForDelivery: true, StatusDelivered: true, StatusCancelled: true},
	StatusShipped:        {StatusProcessing: true, StatusOutForDelivery: true, StatusDelivered: true, StatusCancelled: true},
	StatusOutForDelivery: {StatusProcessing: true, StatusShipped: true, StatusDelivered: true, StatusCancelled: true},
	StatusDelivered:      {StatusProcessing: true, StatusShipped: true, StatusOutForDelivery: true, StatusCancelled: true},
	StatusCancelled:      {},
	StatusRefunded:       {},
}

func CanTransition(from, to OrderStatus) bool {
	return validNext[from][to]
}

func (s OrderStatus) String() string { return string(s) }

func (m PaymentMethod) String() string { return string(m) }

func (s PaymentStatus) String() string { return string(s) }
