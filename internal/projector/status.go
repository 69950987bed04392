// Package projector keeps the Redis order status cache in step with the
// lifecycle topic.
package projector

import (
	"context"
	kafkax "github.com/ariefcatur/go-storefront-orders/internal/kafka"
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
	"github.com/ariefcatur/go-storefront-orders/internal/redisx"
	"github.com/segmentio/kafka-go"
	"log/slog"
)

type Cache interface {
	Set(ctx context.Context, orderID string, e redisx.StatusEntry) error
}

type StatusProjector struct {
	log   *slog.Logger
	cache Cache
}

func NewStatusProjector(log *slog.Logger, cache Cache) *StatusProjector {
	return &StatusProjector{log: log, cache: cache}
}

// Handle is a kafka.Handler. Malformed messages are logged and skipped;
// only cache failures are returned for retry.
func (p *StatusProjector) Handle(ctx context.Context, m kafka.Message) error {
	env, err := kafkax.DecodeEnvelope(m.Value)
	if err != nil {
		p.log.Warn("projector skip", "offset", m.Offset, "err", err)
		return nil
	}
	entry, ok := p.entryFor(env)
	if !ok {
		return nil
	}
	if err := p.cache.Set(ctx, env.CorrelationID, entry); err != nil {
		return err
	}
	p.log.Debug("status projected", "order_id", env.CorrelationID, "event", env.EventType, "status", entry.Status)
	return nil
}

func (p *StatusProjector) entryFor(env orders.Envelope) (redisx.StatusEntry, bool) {
	if env.EventType == orders.EventOrderPlaced {
		pl, err := kafkax.UnwrapPayload[orders.OrderPlacedPayload](env.Payload)
		if err != nil {
			p.log.Warn("projector skip", "event_id", env.EventID, "err", err)
			return redisx.StatusEntry{}, false
		}
		e := redisx.StatusEntry{UserID: pl.UserID, Status: orders.StatusPending, UpdatedAt: env.OccurredAt}
		if pl.PaymentMethod == orders.MethodOnline {
			e.PaymentStatus = orders.PaymentCreated
		}
		return e, true
	}

	pl, err := kafkax.UnwrapPayload[orders.OrderStatusPayload](env.Payload)
	if err != nil || pl.Status == "" {
		p.log.Warn("projector skip", "event_id", env.EventID, "type", env.EventType, "err", err)
		return redisx.StatusEntry{}, false
	}
	return redisx.StatusEntry{
		UserID:        pl.UserID,
		Status:        pl.Status,
		PaymentStatus: pl.PaymentStatus,
		UpdatedAt:     env.OccurredAt,
	}, true
}
