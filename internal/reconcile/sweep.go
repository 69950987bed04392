package reconcile

import (
	"context"
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
	"time"
)

const sweepBatch = 100

// Sweep cancels Online orders left Pending longer than threshold whose
// payment never left created. It returns how many orders it cancelled.
func (e *Engine) Sweep(ctx context.Context, threshold time.Duration) (int, error) {
	cutoff := e.now().Add(-threshold)
	cancelled := 0
	for {
		batch, err := e.store.ListAbandoned(ctx, cutoff, sweepBatch)
		if err != nil {
			return cancelled, err
		}
		progressed := 0
		for _, o := range batch {
			if err := ctx.Err(); err != nil {
				return cancelled, err
			}
			// the machine re-checks status under lock; a webhook that got
			// here first turns this into a no-op
			res, err := e.apply(ctx, step{orderID: o.ID, trigger: orders.TriggerAbandon})
			if err != nil {
				e.log.Error("sweep order", "order_id", o.ID, "err", err)
				continue
			}
			progressed++
			if res.Outcome.OrderChanged() {
				cancelled++
			}
		}
		if len(batch) < sweepBatch || progressed == 0 {
			break
		}
	}
	e.log.Info("abandoned orders swept", "cancelled", cancelled, "threshold", threshold.String())
	return cancelled, nil
}
