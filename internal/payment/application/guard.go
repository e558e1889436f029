package application

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dmehra2102/payment-gateway/internal/payment/domain"
	"github.com/dmehra2102/payment-gateway/pkg/apperr"
	"github.com/dmehra2102/payment-gateway/pkg/idempotency"
)

// Guard replays the cached response of a payment created under the same
// (merchant, Idempotency-Key) within the TTL.
type Guard struct {
	log    *slog.Logger
	store  IdempotencyStore
	locker Locker
	ttl    time.Duration
	now    func() time.Time
}

// NewGuard builds a guard. locker may be nil, in which case concurrent first
// requests with one key are not serialized.
func NewGuard(log *slog.Logger, store IdempotencyStore, locker Locker, ttl time.Duration) *Guard {
	if ttl <= 0 {
		ttl = domain.DefaultIdempotencyTTL
	}
	return &Guard{log: log, store: store, locker: locker, ttl: ttl, now: time.Now}
}

// Do returns the cached body for key, or runs create and caches its body.
// An empty key bypasses the cache.
func (g *Guard) Do(ctx context.Context, merchantID, key string, create func(ctx context.Context) ([]byte, error)) ([]byte, error) {
	if key == "" {
		return create(ctx)
	}

	if body, ok, err := g.lookup(ctx, merchantID, key); err != nil || ok {
		return body, err
	}

	if g.locker != nil {
		release, err := g.locker.Acquire(ctx, merchantID, key)
		switch {
		case errors.Is(err, idempotency.ErrHeld):
			return nil, apperr.Conflict(apperr.CodeIdempotencyConflict, "A request with this Idempotency-Key is already in progress")
		case err != nil:
			g.log.Warn("idempotency lock unavailable, continuing unlocked", "merchant_id", merchantID, "err", err)
		default:
			defer release(context.WithoutCancel(ctx))
			// The holder we waited behind may have stored a response.
			if body, ok, err := g.lookup(ctx, merchantID, key); err != nil || ok {
				return body, err
			}
		}
	}

	body, err := create(ctx)
	if err != nil {
		return nil, err
	}

	record := domain.IdempotencyKey{
		MerchantID: merchantID,
		Key:        key,
		Response:   body,
		ExpiresAt:  g.now().Add(g.ttl).UTC(),
	}
	if err := g.store.PutIdempotencyKey(ctx, record); err != nil {
		// The payment exists; failing now would invite the client to create another.
		g.log.Error("idempotency key not stored", "merchant_id", merchantID, "key", key, "err", err)
	}
	return body, nil
}

func (g *Guard) lookup(ctx context.Context, merchantID, key string) ([]byte, bool, error) {
	record, found, err := g.stored(ctx, merchantID, key)
	if err != nil || !found {
		return nil, false, err
	}
	if !record.Expired(g.now()) {
		g.log.Debug("idempotent replay", "merchant_id", merchantID, "key", key)
		return record.Response, true, nil
	}

	if err := g.store.DeleteExpiredIdempotencyKey(ctx, merchantID, key, record.ExpiresAt); err != nil {
		return nil, false, err
	}
	// A concurrent request may have stored a fresh response meanwhile.
	record, found, err = g.stored(ctx, merchantID, key)
	if err != nil || !found || record.Expired(g.now()) {
		return nil, false, err
	}
	g.log.Debug("idempotent replay", "merchant_id", merchantID, "key", key)
	return record.Response, true, nil
}

func (g *Guard) stored(ctx context.Context, merchantID, key string) (domain.IdempotencyKey, bool, error) {
	record, err := g.store.GetIdempotencyKey(ctx, merchantID, key)
	if errors.Is(err, apperr.ErrNotFound) {
		return domain.IdempotencyKey{}, false, nil
	}
	if err != nil {
		return domain.IdempotencyKey{}, false, err
	}
	return record, true, nil
}
