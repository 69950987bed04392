package redisx

import (
	"context"
	"fmt"
	"github.com/redis/go-redis/v9"
	"time"
)

// Deduper remembers webhook deliveries for TTLDedup.
type Deduper struct {
	rdb     *redis.Client
	service string
	ttl     time.Duration
}

func NewDeduper(rdb *redis.Client, service string) *Deduper {
	return &Deduper{rdb: rdb, service: service, ttl: TTLDedup}
}

func (d *Deduper) key(id string) string { return fmt.Sprintf(KeyDedup, d.service, id) }

// Seen reports whether the delivery was already handled. It does not mark.
func (d *Deduper) Seen(ctx context.Context, id string) (bool, error) {
	return Exists(ctx, d.rdb, d.key(id))
}

// Mark records a delivery once its effects are committed. A crash before
// Mark only means the redelivery is applied again, which is a no-op.
func (d *Deduper) Mark(ctx context.Context, id string) error {
	return d.rdb.Set(ctx, d.key(id), "1", d.ttl).Err()
}
