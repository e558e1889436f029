package domain

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

type Merchant struct {
	ID            string
	Name          string
	Email         string
	APIKey        string
	APISecret     string
	WebhookURL    string
	WebhookSecret string
	Active        bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// HasWebhook reports whether the merchant configured an endpoint.
func (m Merchant) HasWebhook() bool {
	return m.WebhookURL != ""
}

// NewWebhookSecret returns 32 hex characters of fresh randomness.
func NewWebhookSecret() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate webhook secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}
