package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/dmehra2102/payment-gateway/internal/webhook/domain"
	"github.com/dmehra2102/payment-gateway/pkg/apperr"
)

type Repository struct {
	mu    sync.RWMutex
	logs  map[string]domain.Log
	order []string
}

func NewRepository() *Repository {
	return &Repository{logs: make(map[string]domain.Log)}
}

func (r *Repository) Create(_ context.Context, l domain.Log) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs[l.ID] = l
	r.order = append(r.order, l.ID)
	return nil
}

func (r *Repository) Get(_ context.Context, id string) (domain.Log, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.logs[id]
	if !ok {
		return domain.Log{}, apperr.NotFound("Webhook log not found")
	}
	return l, nil
}

func (r *Repository) GetForMerchant(ctx context.Context, merchantID, id string) (domain.Log, error) {
	l, err := r.Get(ctx, id)
	if err != nil || l.MerchantID != merchantID {
		return domain.Log{}, apperr.NotFound("Webhook log not found")
	}
	return l, nil
}

func (r *Repository) List(_ context.Context, merchantID string, limit, offset int) ([]domain.Log, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var all []domain.Log
	for _, id := range slices.Backward(r.order) {
		if l := r.logs[id]; l.MerchantID == merchantID {
			all = append(all, l)
		}
	}
	total := len(all)
	if offset >= total {
		return []domain.Log{}, total, nil
	}
	end := min(offset+limit, total)
	return all[offset:end], total, nil
}

func (r *Repository) Save(_ context.Context, l domain.Log, status domain.Status, attempts int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.logs[l.ID]
	if !ok || cur.Status != status || cur.Attempts != attempts {
		return false, nil
	}
	r.logs[l.ID] = l
	return true, nil
}

// Logs returns every stored log, oldest first.
func (r *Repository) Logs() []domain.Log {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Log, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.logs[id])
	}
	return out
}
