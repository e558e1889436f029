package memory

import (
	"context"
	"sync"

	"github.com/dmehra2102/payment-gateway/internal/merchant/domain"
	"github.com/dmehra2102/payment-gateway/pkg/apperr"
)

type Repository struct {
	mu        sync.RWMutex
	merchants map[string]domain.Merchant
}

func NewRepository() *Repository {
	return &Repository{merchants: make(map[string]domain.Merchant)}
}

func (r *Repository) ByCredentials(_ context.Context, apiKey, apiSecret string) (domain.Merchant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, m := range r.merchants {
		if m.APIKey == apiKey && m.APISecret == apiSecret && m.Active {
			return m, nil
		}
	}
	return domain.Merchant{}, apperr.NotFound("Merchant not found")
}

func (r *Repository) Get(_ context.Context, id string) (domain.Merchant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.merchants[id]
	if !ok {
		return domain.Merchant{}, apperr.NotFound("Merchant not found")
	}
	return m, nil
}

func (r *Repository) ByEmail(_ context.Context, email string) (domain.Merchant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, m := range r.merchants {
		if m.Email == email {
			return m, nil
		}
	}
	return domain.Merchant{}, apperr.NotFound("Merchant not found")
}

func (r *Repository) Create(_ context.Context, m domain.Merchant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.merchants[m.ID] = m
	return nil
}

func (r *Repository) SetWebhookURL(_ context.Context, id, url string) error {
	return r.update(id, func(m *domain.Merchant) { m.WebhookURL = url })
}

func (r *Repository) SetWebhookSecret(_ context.Context, id, secret string) error {
	return r.update(id, func(m *domain.Merchant) { m.WebhookSecret = secret })
}

func (r *Repository) update(id string, fn func(*domain.Merchant)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.merchants[id]
	if !ok {
		return apperr.NotFound("Merchant not found")
	}
	fn(&m)
	r.merchants[id] = m
	return nil
}
