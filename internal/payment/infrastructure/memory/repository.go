package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/dmehra2102/payment-gateway/internal/payment/domain"
	"github.com/dmehra2102/payment-gateway/pkg/apperr"
)

// Repository keeps orders, payments, refunds and idempotency keys in maps
// behind one lock, which also makes refund balance checks atomic.
type Repository struct {
	mu       sync.RWMutex
	orders   map[string]domain.Order
	payments map[string]domain.Payment
	seq      map[string]int
	refunds  map[string]domain.Refund
	keys     map[string]domain.IdempotencyKey
}

func NewRepository() *Repository {
	return &Repository{
		orders:   make(map[string]domain.Order),
		payments: make(map[string]domain.Payment),
		seq:      make(map[string]int),
		refunds:  make(map[string]domain.Refund),
		keys:     make(map[string]domain.IdempotencyKey),
	}
}

func (r *Repository) CreateOrder(_ context.Context, o domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders[o.ID] = o
	return nil
}

func (r *Repository) GetOrder(ctx context.Context, merchantID, id string) (domain.Order, error) {
	o, err := r.FindOrder(ctx, id)
	if err != nil || o.MerchantID != merchantID {
		return domain.Order{}, apperr.NotFound("Order not found")
	}
	return o, nil
}

func (r *Repository) FindOrder(_ context.Context, id string) (domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.orders[id]
	if !ok {
		return domain.Order{}, apperr.NotFound("Order not found")
	}
	return o, nil
}

func (r *Repository) CreatePayment(_ context.Context, p domain.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payments[p.ID] = p
	r.seq[p.ID] = len(r.seq)
	return nil
}

func (r *Repository) GetPayment(ctx context.Context, merchantID, id string) (domain.Payment, error) {
	p, err := r.FindPayment(ctx, id)
	if err != nil || p.MerchantID != merchantID {
		return domain.Payment{}, apperr.NotFound("Payment not found")
	}
	return p, nil
}

func (r *Repository) FindPayment(_ context.Context, id string) (domain.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.payments[id]
	if !ok {
		return domain.Payment{}, apperr.NotFound("Payment not found")
	}
	return p, nil
}

func (r *Repository) ListPayments(_ context.Context, merchantID string, limit int) ([]domain.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.Payment
	for _, p := range r.payments {
		if p.MerchantID == merchantID {
			out = append(out, p)
		}
	}
	slices.SortFunc(out, func(a, b domain.Payment) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return r.seq[b.ID] - r.seq[a.ID]
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *Repository) SettlePayment(_ context.Context, p domain.Payment) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.payments[p.ID]
	if !ok || cur.Status != domain.StatusPending {
		return false, nil
	}
	r.payments[p.ID] = p
	return true, nil
}

func (r *Repository) CapturePayment(_ context.Context, p domain.Payment) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.payments[p.ID]
	if !ok || cur.Status != domain.StatusSuccess || cur.Captured {
		return false, nil
	}
	r.payments[p.ID] = p
	return true, nil
}

func (r *Repository) CreateRefund(_ context.Context, rf domain.Refund, check func(refunded int64) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.payments[rf.PaymentID]; !ok {
		return apperr.NotFound("Payment not found")
	}
	var refunded int64
	for _, existing := range r.refunds {
		if existing.PaymentID == rf.PaymentID {
			refunded += existing.Amount
		}
	}
	if err := check(refunded); err != nil {
		return err
	}
	r.refunds[rf.ID] = rf
	return nil
}

func (r *Repository) GetRefund(ctx context.Context, merchantID, id string) (domain.Refund, error) {
	rf, err := r.FindRefund(ctx, id)
	if err != nil || rf.MerchantID != merchantID {
		return domain.Refund{}, apperr.NotFound("Refund not found")
	}
	return rf, nil
}

func (r *Repository) FindRefund(_ context.Context, id string) (domain.Refund, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rf, ok := r.refunds[id]
	if !ok {
		return domain.Refund{}, apperr.NotFound("Refund not found")
	}
	return rf, nil
}

func (r *Repository) ProcessRefund(_ context.Context, rf domain.Refund) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.refunds[rf.ID]
	if !ok || cur.Status != domain.RefundPending {
		return false, nil
	}
	r.refunds[rf.ID] = rf
	return true, nil
}

func (r *Repository) GetIdempotencyKey(_ context.Context, merchantID, key string) (domain.IdempotencyKey, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	k, ok := r.keys[merchantID+"/"+key]
	if !ok {
		return domain.IdempotencyKey{}, apperr.NotFound("Idempotency key not found")
	}
	return k, nil
}

func (r *Repository) PutIdempotencyKey(_ context.Context, k domain.IdempotencyKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys[k.MerchantID+"/"+k.Key] = k
	return nil
}

func (r *Repository) DeleteExpiredIdempotencyKey(_ context.Context, merchantID, key string, expiredBy time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k, ok := r.keys[merchantID+"/"+key]
	if ok && !k.ExpiresAt.After(expiredBy) {
		delete(r.keys, merchantID+"/"+key)
	}
	return nil
}

// Payments returns every stored payment. Tests use it to count creations.
func (r *Repository) Payments() []domain.Payment {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Payment, 0, len(r.payments))
	for _, p := range r.payments {
		out = append(out, p)
	}
	return out
}
