package application

import (
	"context"
	"time"

	"github.com/dmehra2102/payment-gateway/internal/payment/domain"
)

// Repository returns apperr not-found errors for missing rows. The Settle,
// Capture and Process writes are guarded by the status they expect and
// report false when the stored row had already moved on.
type Repository interface {
	CreateOrder(ctx context.Context, o domain.Order) error
	GetOrder(ctx context.Context, merchantID, id string) (domain.Order, error)
	FindOrder(ctx context.Context, id string) (domain.Order, error)

	CreatePayment(ctx context.Context, p domain.Payment) error
	GetPayment(ctx context.Context, merchantID, id string) (domain.Payment, error)
	FindPayment(ctx context.Context, id string) (domain.Payment, error)
	ListPayments(ctx context.Context, merchantID string, limit int) ([]domain.Payment, error)
	SettlePayment(ctx context.Context, p domain.Payment) (bool, error)
	CapturePayment(ctx context.Context, p domain.Payment) (bool, error)

	// CreateRefund inserts r after check accepts the amount already refunded
	// (pending plus processed) on the payment. Check and insert are atomic.
	CreateRefund(ctx context.Context, r domain.Refund, check func(refunded int64) error) error
	GetRefund(ctx context.Context, merchantID, id string) (domain.Refund, error)
	FindRefund(ctx context.Context, id string) (domain.Refund, error)
	ProcessRefund(ctx context.Context, r domain.Refund) (bool, error)
}

type IdempotencyStore interface {
	GetIdempotencyKey(ctx context.Context, merchantID, key string) (domain.IdempotencyKey, error)
	PutIdempotencyKey(ctx context.Context, k domain.IdempotencyKey) error
	// DeleteExpiredIdempotencyKey removes the entry only if it expires no later
	// than expiredBy. An entry rewritten concurrently with a later expiry stays.
	DeleteExpiredIdempotencyKey(ctx context.Context, merchantID, key string, expiredBy time.Time) error
}

// Locker guards a (merchant, key) pair while its first request is running.
type Locker interface {
	Acquire(ctx context.Context, merchantID, key string) (release func(context.Context), err error)
}

// Notifier records a webhook event for a merchant and schedules its delivery.
type Notifier interface {
	Notify(ctx context.Context, merchantID, event string, data any) error
}
