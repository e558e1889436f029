package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/dmehra2102/payment-gateway/internal/merchant/domain"
	"github.com/dmehra2102/payment-gateway/pkg/apperr"
)

type Service struct {
	log  *slog.Logger
	repo Repository
	now  func() time.Time
}

func NewService(log *slog.Logger, repo Repository) *Service {
	return &Service{log: log, repo: repo, now: time.Now}
}

// Authenticate resolves an API key pair. Unknown, mismatched or inactive
// credentials all yield the same authentication error.
func (s *Service) Authenticate(ctx context.Context, apiKey, apiSecret string) (domain.Merchant, error) {
	if apiKey == "" || apiSecret == "" {
		return domain.Merchant{}, apperr.Unauthorized()
	}
	m, err := s.repo.ByCredentials(ctx, apiKey, apiSecret)
	if errors.Is(err, apperr.ErrNotFound) {
		return domain.Merchant{}, apperr.Unauthorized()
	}
	if err != nil {
		return domain.Merchant{}, err
	}
	if !m.Active {
		return domain.Merchant{}, apperr.Unauthorized()
	}
	return m, nil
}

type WebhookConfig struct {
	URL    string
	Secret string
}

func (s *Service) WebhookConfig(ctx context.Context, merchantID string) (WebhookConfig, error) {
	m, err := s.repo.Get(ctx, merchantID)
	if err != nil {
		return WebhookConfig{}, err
	}
	return WebhookConfig{URL: m.WebhookURL, Secret: m.WebhookSecret}, nil
}

// SetWebhookURL replaces the delivery endpoint. An empty url disables
// delivery; logs created afterwards are marked delivered without a request.
func (s *Service) SetWebhookURL(ctx context.Context, merchantID, raw string) (string, error) {
	if raw != "" {
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return "", apperr.BadRequest("webhook_url must be an absolute http(s) URL")
		}
	}
	if err := s.repo.SetWebhookURL(ctx, merchantID, raw); err != nil {
		return "", err
	}
	s.log.Info("webhook url updated", "merchant_id", merchantID, "configured", raw != "")
	return raw, nil
}

func (s *Service) RegenerateSecret(ctx context.Context, merchantID string) (string, error) {
	secret, err := domain.NewWebhookSecret()
	if err != nil {
		return "", err
	}
	if err := s.repo.SetWebhookSecret(ctx, merchantID, secret); err != nil {
		return "", err
	}
	s.log.Info("webhook secret regenerated", "merchant_id", merchantID)
	return secret, nil
}

// Seed inserts m unless a merchant with the same email exists, and returns
// the stored merchant.
func (s *Service) Seed(ctx context.Context, m domain.Merchant) (domain.Merchant, error) {
	existing, err := s.repo.ByEmail(ctx, m.Email)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, apperr.ErrNotFound) {
		return domain.Merchant{}, err
	}

	now := s.now().UTC()
	m.Active = true
	m.CreatedAt, m.UpdatedAt = now, now
	if err := s.repo.Create(ctx, m); err != nil {
		return domain.Merchant{}, fmt.Errorf("seed merchant %s: %w", m.Email, err)
	}
	s.log.Info("merchant seeded", "merchant_id", m.ID, "email", m.Email)
	return m, nil
}

// ByEmail is used by the test-merchant lookup endpoint.
func (s *Service) ByEmail(ctx context.Context, email string) (domain.Merchant, error) {
	return s.repo.ByEmail(ctx, email)
}
