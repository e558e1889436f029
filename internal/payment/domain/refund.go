package domain

import (
	"time"

	"github.com/dmehra2102/payment-gateway/pkg/apperr"
)

type RefundStatus string

const (
	RefundPending   RefundStatus = "pending"
	RefundProcessed RefundStatus = "processed"
)

type Refund struct {
	ID          string
	PaymentID   string
	MerchantID  string
	Amount      int64
	Reason      *string
	Status      RefundStatus
	CreatedAt   time.Time
	ProcessedAt *time.Time
}

// NewRefund validates the request against the payment alone. The balance
// check needs the sum of existing refunds, see CheckBalance.
func NewRefund(p Payment, amount int64, reason *string, now time.Time) (Refund, error) {
	if amount <= 0 {
		return Refund{}, apperr.BadRequest("Refund amount required")
	}
	if p.Status != StatusSuccess {
		return Refund{}, apperr.Conflict(apperr.CodeBadRequest, "Payment not in refundable state")
	}
	if amount > p.Amount {
		return Refund{}, errExceeds()
	}
	return Refund{
		ID:         NewID(RefundPrefix),
		PaymentID:  p.ID,
		MerchantID: p.MerchantID,
		Amount:     amount,
		Reason:     reason,
		Status:     RefundPending,
		CreatedAt:  now.UTC(),
	}, nil
}

// CheckBalance rejects a refund that would take pending plus processed
// refunds past the payment amount.
func CheckBalance(paymentAmount, refunded, amount int64) error {
	if amount > paymentAmount-refunded {
		return errExceeds()
	}
	return nil
}

func errExceeds() error {
	return apperr.Conflict(apperr.CodeBadRequest, "Refund amount exceeds available amount")
}

// Process settles a pending refund. It reports false if already processed.
func (r Refund) Process(now time.Time) (Refund, bool) {
	if r.Status == RefundProcessed {
		return r, false
	}
	t := now.UTC()
	r.Status = RefundProcessed
	r.ProcessedAt = &t
	return r, true
}
