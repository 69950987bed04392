package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
	"github.com/redis/go-redis/v9"
	"time"
)

type StatusEntry struct {
	UserID        string               `json:"user_id"`
	Status        orders.OrderStatus   `json:"status"`
	PaymentStatus orders.PaymentStatus `json:"payment_status,omitempty"`
	UpdatedAt     time.Time            `json:"updated_at"`
}

// StatusCache is the read model behind GET /orders/{id}/status. It is
// refreshed from lifecycle events and may lag the store.
type StatusCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewStatusCache(rdb *redis.Client) *StatusCache {
	return &StatusCache{rdb: rdb, ttl: TTLStatusCache}
}

func (c *StatusCache) Get(ctx context.Context, orderID string) (StatusEntry, bool, error) {
	b, err := c.rdb.Get(ctx, fmt.Sprintf(KeyOrderStatus, orderID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return StatusEntry{}, false, nil
	}
	if err != nil {
		return StatusEntry{}, false, err
	}
	var e StatusEntry
	if err := json.Unmarshal(b, &e); err != nil {
		return StatusEntry{}, false, err
	}
	return e, true, nil
}

// Set stores e unless the cached entry is newer; events can arrive out of
// order across partitions after a rebalance.
func (c *StatusCache) Set(ctx context.Context, orderID string, e StatusEntry) error {
	cur, ok, err := c.Get(ctx, orderID)
	if err != nil {
		return err
	}
	if ok && cur.UpdatedAt.After(e.UpdatedAt) {
		return nil
	}
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, fmt.Sprintf(KeyOrderStatus, orderID), b, c.ttl).Err()
}

func (c *StatusCache) Delete(ctx context.Context, orderID string) error {
	return c.rdb.Del(ctx, fmt.Sprintf(KeyOrderStatus, orderID)).Err()
}
