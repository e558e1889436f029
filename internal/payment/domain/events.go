package domain

import "time"

// Lifecycle events. The success, failed and processed events are also the
// webhook event names.
const (
	EventPaymentCreated  = "payment.created"
	EventPaymentSuccess  = "payment.success"
	EventPaymentFailed   = "payment.failed"
	EventRefundCreated   = "refund.created"
	EventRefundProcessed = "refund.processed"
)

// PaymentSnapshot is the full stored payment as published in webhooks and
// lifecycle events. Card numbers are never part of it.
type PaymentSnapshot struct {
	ID               string    `json:"id"`
	OrderID          string    `json:"order_id"`
	MerchantID       string    `json:"merchant_id"`
	Amount           int64     `json:"amount"`
	Currency         string    `json:"currency"`
	Method           Method    `json:"method"`
	Status           Status    `json:"status"`
	VPA              *string   `json:"vpa"`
	CardNetwork      *string   `json:"card_network"`
	CardLast4        *string   `json:"card_last4"`
	Captured         bool      `json:"captured"`
	ErrorCode        *string   `json:"error_code"`
	ErrorDescription *string   `json:"error_description"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func (p Payment) Snapshot() PaymentSnapshot {
	s := PaymentSnapshot{
		ID:               p.ID,
		OrderID:          p.OrderID,
		MerchantID:       p.MerchantID,
		Amount:           p.Amount,
		Currency:         p.Currency,
		Method:           p.Method(),
		Status:           p.Status,
		Captured:         p.Captured,
		ErrorCode:        p.ErrorCode,
		ErrorDescription: p.ErrorDescription,
		CreatedAt:        p.CreatedAt,
		UpdatedAt:        p.UpdatedAt,
	}
	switch inst := p.Instrument.(type) {
	case UPI:
		s.VPA = &inst.VPA
	case Card:
		s.CardNetwork = &inst.Network
		s.CardLast4 = &inst.Last4
	}
	return s
}

type RefundSnapshot struct {
	ID          string       `json:"id"`
	PaymentID   string       `json:"payment_id"`
	MerchantID  string       `json:"merchant_id"`
	Amount      int64        `json:"amount"`
	Reason      *string      `json:"reason"`
	Status      RefundStatus `json:"status"`
	CreatedAt   time.Time    `json:"created_at"`
	ProcessedAt *time.Time   `json:"processed_at"`
}

func (r Refund) Snapshot() RefundSnapshot {
	return RefundSnapshot{
		ID:          r.ID,
		PaymentID:   r.PaymentID,
		MerchantID:  r.MerchantID,
		Amount:      r.Amount,
		Reason:      r.Reason,
		Status:      r.Status,
		CreatedAt:   r.CreatedAt,
		ProcessedAt: r.ProcessedAt,
	}
}
