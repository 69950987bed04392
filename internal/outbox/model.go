package outbox

import (
	"encoding/json"
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
	"time"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusSent       Status = "sent"
	StatusFailed     Status = "failed"
)

// MaxAttempts is how many dispatch failures a row survives before it is
// parked as failed for an operator.
const MaxAttempts = 10

type Event struct {
	ID            int64
	AggregateType string
	AggregateID   string
	Type          string
	Payload       []byte
	Headers       map[string]string
	Traceparent   string
	CreatedAt     time.Time
	Status        Status
	RetryCount    int
	LastError     *string
}

// FromEnvelope turns a lifecycle envelope into an outbox row. The whole
// envelope travels as the payload so consumers see event id and version.
func FromEnvelope(ev orders.Envelope, traceparent string) (Event, error) {
	b, err := json.Marshal(ev)
	if err != nil {
		return Event{}, err
	}
	return Event{
		AggregateType: "order",
		AggregateID:   ev.CorrelationID,
		Type:          ev.EventType,
		Payload:       b,
		Headers: map[string]string{
			"event_id": ev.EventID,
			"producer": ev.Producer,
		},
		Traceparent: traceparent,
		CreatedAt:   ev.OccurredAt,
		Status:      StatusPending,
	}, nil
}
