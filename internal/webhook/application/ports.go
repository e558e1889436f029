package application

import (
	"context"

	merchantdomain "github.com/dmehra2102/payment-gateway/internal/merchant/domain"
	"github.com/dmehra2102/payment-gateway/internal/webhook/domain"
)

type Repository interface {
	Create(ctx context.Context, l domain.Log) error
	Get(ctx context.Context, id string) (domain.Log, error)
	GetForMerchant(ctx context.Context, merchantID, id string) (domain.Log, error)
	// List returns a page of the merchant's logs, newest first, plus the
	// merchant's total log count.
	List(ctx context.Context, merchantID string, limit, offset int) ([]domain.Log, int, error)
	// Save writes l only if the stored row still has the given status and
	// attempt count, and reports whether it did.
	Save(ctx context.Context, l domain.Log, status domain.Status, attempts int) (bool, error)
}

// Merchants resolves the delivery endpoint and signing secret.
type Merchants interface {
	Get(ctx context.Context, id string) (merchantdomain.Merchant, error)
}
