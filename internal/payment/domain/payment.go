package domain

import (
	"errors"
	"time"

	"github.com/dmehra2102/payment-gateway/pkg/apperr"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

const (
	FailureCode        = "PAYMENT_FAILED"
	FailureDescription = "Payment processing failed"

	UnavailableCode        = "PROCESSING_UNAVAILABLE"
	UnavailableDescription = "Payment could not be scheduled for processing"
)

// ErrNotPending is returned when settling a payment that already left pending.
var ErrNotPending = errors.New("payment is not pending")

type Payment struct {
	ID               string
	OrderID          string
	MerchantID       string
	Amount           int64
	Currency         string
	Instrument       Instrument
	Status           Status
	Captured         bool
	ErrorCode        *string
	ErrorDescription *string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// NewPayment copies amount and currency from the order.
func NewPayment(order Order, merchantID string, inst Instrument, now time.Time) Payment {
	now = now.UTC()
	return Payment{
		ID:         NewID(PaymentPrefix),
		OrderID:    order.ID,
		MerchantID: merchantID,
		Amount:     order.Amount,
		Currency:   order.Currency,
		Instrument: inst,
		Status:     StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func (p Payment) Method() Method { return p.Instrument.Method() }

func (p Payment) Terminal() bool { return p.Status != StatusPending }

// Settle moves a pending payment to success or failed.
func (p Payment) Settle(success bool, now time.Time) (Payment, error) {
	if p.Status != StatusPending {
		return p, ErrNotPending
	}
	p.UpdatedAt = now.UTC()
	if success {
		p.Status = StatusSuccess
		return p, nil
	}
	code, desc := FailureCode, FailureDescription
	p.Status = StatusFailed
	p.ErrorCode = &code
	p.ErrorDescription = &desc
	return p, nil
}

// Abandon fails a pending payment that never reached the processor.
func (p Payment) Abandon(now time.Time) (Payment, error) {
	if p.Status != StatusPending {
		return p, ErrNotPending
	}
	code, desc := UnavailableCode, UnavailableDescription
	p.Status = StatusFailed
	p.ErrorCode = &code
	p.ErrorDescription = &desc
	p.UpdatedAt = now.UTC()
	return p, nil
}

// Capture marks a successful payment captured. amount, when given, must
// equal the payment amount.
func (p Payment) Capture(amount *int64, now time.Time) (Payment, error) {
	if p.Status != StatusSuccess || p.Captured {
		return p, apperr.Conflict(apperr.CodeBadRequest, "Payment not in capturable state")
	}
	if amount != nil && *amount != p.Amount {
		return p, apperr.Conflict(apperr.CodeBadRequest, "Capture amount mismatch")
	}
	p.Captured = true
	p.UpdatedAt = now.UTC()
	return p, nil
}

// Event names the lifecycle event for the payment's current status.
func (p Payment) Event() string {
	switch p.Status {
	case StatusSuccess:
		return EventPaymentSuccess
	case StatusFailed:
		return EventPaymentFailed
	default:
		return EventPaymentCreated
	}
}
