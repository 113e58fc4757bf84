package redisx

import "time"

const (
	// Cached order status view: order_status:{order_id} -> {"shippingStatus":...,"paymentStatus":...}
	KeyOrderStatus = "order_status:%s"

	// Checkout idempotency: idem:checkout:{user_id}:{request_id} -> order_id
	KeyIdemCheckout = "idem:checkout:%s:%s"

	// Dedup for consumed events: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLStatusCache = 5 * time.Minute
	TTLIdempotency = 24 * time.Hour
	TTLDedup       = 48 * time.Hour
)
