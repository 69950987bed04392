package gateway

import (
	"github.com/sony/gobreaker"
	"log/slog"
	"time"
)

const (
	breakerThreshold = 5
	breakerCooldown  = 30 * time.Second
)

// newBreaker opens after consecutive transport failures so checkout fails
// fast instead of stacking up requests on a dead processor. Half-open
// admits a single request.
func newBreaker(log *slog.Logger, name string, cooldown time.Duration) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     cooldown,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= breakerThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("gateway circuit", "name", name, "from", from.String(), "to", to.String())
		},
	})
}
