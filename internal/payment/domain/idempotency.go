package domain

import "time"

const DefaultIdempotencyTTL = 24 * time.Hour

// IdempotencyKey caches the response of the first payment created under
// (MerchantID, Key).
type IdempotencyKey struct {
	MerchantID string
	Key        string
	Response   []byte
	ExpiresAt  time.Time
}

func (k IdempotencyKey) Expired(now time.Time) bool {
	return !now.Before(k.ExpiresAt)
}
