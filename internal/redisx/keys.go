package redisx

import "time"

const (
	// Cache status order: order_status:{order_id} -> {"status": "...", "payment_status": "...", "updated_at": "..."}
	KeyOrderStatus = "order_status:%s"

	// Dedup webhook: dedup:{service}:{delivery_id atau sha256 body}
	KeyDedup = "dedup:%s:%s"

	// Lock sweep antar replika: lock:{job}
	KeyLock = "lock:%s"
)

var (
	TTLStatusCache = 10 * time.Minute
	TTLDedup       = 48 * time.Hour
)
