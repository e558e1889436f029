package application

import (
	"context"

	"github.com/dmehra2102/payment-gateway/internal/merchant/domain"
)

type Repository interface {
	// ByCredentials returns the active merchant owning the key pair.
	ByCredentials(ctx context.Context, apiKey, apiSecret string) (domain.Merchant, error)
	Get(ctx context.Context, id string) (domain.Merchant, error)
	ByEmail(ctx context.Context, email string) (domain.Merchant, error)
	Create(ctx context.Context, m domain.Merchant) error
	SetWebhookURL(ctx context.Context, id, url string) error
	SetWebhookSecret(ctx context.Context, id, secret string) error
}
