package application_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dmehra2102/payment-gateway/internal/merchant/application"
	"github.com/dmehra2102/payment-gateway/internal/merchant/domain"
	"github.com/dmehra2102/payment-gateway/internal/merchant/infrastructure/memory"
	"github.com/dmehra2102/payment-gateway/pkg/apperr"
	"github.com/dmehra2102/payment-gateway/pkg/logging"
)

func seeded(t *testing.T) (*application.Service, domain.Merchant) {
	t.Helper()
	svc := application.NewService(logging.Discard(), memory.NewRepository())
	m, err := svc.Seed(context.Background(), domain.Merchant{
		ID:            "550e8400-e29b-41d4-a716-446655440000",
		Name:          "Test Merchant",
		Email:         "test@example.com",
		APIKey:        "key_test_abc123",
		APISecret:     "secret_test_xyz789",
		WebhookSecret: "whsec_test_abc123",
	})
	require.NoError(t, err)
	return svc, m
}

func TestAuthenticate(t *testing.T) {
	ctx := context.Background()
	svc, seededMerchant := seeded(t)

	m, err := svc.Authenticate(ctx, "key_test_abc123", "secret_test_xyz789")
	require.NoError(t, err)
	require.Equal(t, seededMerchant.ID, m.ID)

	for _, tc := range []struct{ key, secret string }{
		{"key_test_abc123", "wrong"},
		{"", "secret_test_xyz789"},
		{"key_test_abc123", ""},
	} {
		_, err := svc.Authenticate(ctx, tc.key, tc.secret)
		require.ErrorIs(t, err, apperr.ErrAuth)
	}
}

func TestSeed_IsIdempotentByEmail(t *testing.T) {
	ctx := context.Background()
	svc, first := seeded(t)

	again, err := svc.Seed(ctx, domain.Merchant{ID: "other", Email: "test@example.com"})
	require.NoError(t, err)
	require.Equal(t, first.ID, again.ID)
}

func TestWebhookConfig_SetAndRegenerate(t *testing.T) {
	ctx := context.Background()
	svc, m := seeded(t)

	cfg, err := svc.WebhookConfig(ctx, m.ID)
	require.NoError(t, err)
	require.Empty(t, cfg.URL)
	require.Equal(t, "whsec_test_abc123", cfg.Secret)

	_, err = svc.SetWebhookURL(ctx, m.ID, "ftp://example.com/hook")
	require.ErrorIs(t, err, apperr.ErrValidation)

	saved, err := svc.SetWebhookURL(ctx, m.ID, "https://merchant.example/hooks")
	require.NoError(t, err)
	require.Equal(t, "https://merchant.example/hooks", saved)

	secret, err := svc.RegenerateSecret(ctx, m.ID)
	require.NoError(t, err)
	require.Len(t, secret, 32)

	cfg, err = svc.WebhookConfig(ctx, m.ID)
	require.NoError(t, err)
	require.Equal(t, "https://merchant.example/hooks", cfg.URL)
	require.Equal(t, secret, cfg.Secret)

	_, err = svc.SetWebhookURL(ctx, m.ID, "")
	require.NoError(t, err)
	cfg, err = svc.WebhookConfig(ctx, m.ID)
	require.NoError(t, err)
	require.Empty(t, cfg.URL)
}

func TestRegenerateSecret_UnknownMerchant(t *testing.T) {
	svc, _ := seeded(t)
	_, err := svc.RegenerateSecret(context.Background(), "missing")
	require.ErrorIs(t, err, apperr.ErrNotFound)
}
