package domain

import (
	"time"

	"github.com/dmehra2102/payment-gateway/pkg/apperr"
)

type OrderStatus string

const OrderCreated OrderStatus = "created"

const (
	MinOrderAmount  = 100
	DefaultCurrency = "INR"
)

// Order amount and currency never change after creation.
type Order struct {
	ID         string
	MerchantID string
	Amount     int64
	Currency   string
	Receipt    *string
	Notes      map[string]any
	Status     OrderStatus
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func NewOrder(merchantID string, amount int64, currency string, receipt *string, notes map[string]any, now time.Time) (Order, error) {
	if amount < MinOrderAmount {
		return Order{}, apperr.BadRequest("amount must be at least 100")
	}
	if currency == "" {
		currency = DefaultCurrency
	}
	if notes == nil {
		notes = map[string]any{}
	}
	now = now.UTC()
	return Order{
		ID:         NewID(OrderPrefix),
		MerchantID: merchantID,
		Amount:     amount,
		Currency:   currency,
		Receipt:    receipt,
		Notes:      notes,
		Status:     OrderCreated,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}
