package redisx

import "time"

const (
	// idem:order:place:{buyer_id}:{idempotency_key} -> receipt json, or the
	// in-flight marker while the first request is still settling
	KeyIdemPlaceOrder = "idem:order:place:%d:%s"

	// dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLInFlight    = 30 * time.Second
	TTLDedup       = 48 * time.Hour
)
