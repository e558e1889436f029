package application

import (
	"time"

	"github.com/dmehra2102/payment-gateway/internal/payment/domain"
)

type OrderView struct {
	ID         string         `json:"id"`
	MerchantID string         `json:"merchant_id"`
	Amount     int64          `json:"amount"`
	Currency   string         `json:"currency"`
	Receipt    *string        `json:"receipt"`
	Notes      map[string]any `json:"notes"`
	Status     string         `json:"status"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

func NewOrderView(o domain.Order) OrderView {
	notes := o.Notes
	if notes == nil {
		notes = map[string]any{}
	}
	return OrderView{
		ID:         o.ID,
		MerchantID: o.MerchantID,
		Amount:     o.Amount,
		Currency:   o.Currency,
		Receipt:    o.Receipt,
		Notes:      notes,
		Status:     string(o.Status),
		CreatedAt:  o.CreatedAt,
		UpdatedAt:  o.UpdatedAt,
	}
}

type PublicOrderView struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Status   string `json:"status"`
}

func NewPublicOrderView(o domain.Order) PublicOrderView {
	return PublicOrderView{ID: o.ID, Amount: o.Amount, Currency: o.Currency, Status: string(o.Status)}
}

// PaymentView is the merchant API projection. Only the fields of the
// payment's own method are present.
type PaymentView struct {
	ID          string    `json:"id"`
	OrderID     string    `json:"order_id"`
	MerchantID  string    `json:"merchant_id"`
	Amount      int64     `json:"amount"`
	Currency    string    `json:"currency"`
	Method      string    `json:"method"`
	Status      string    `json:"status"`
	Captured    bool      `json:"captured"`
	VPA         string    `json:"vpa,omitempty"`
	CardNetwork string    `json:"card_network,omitempty"`
	CardLast4   string    `json:"card_last4,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func NewPaymentView(p domain.Payment) PaymentView {
	v := PaymentView{
		ID:         p.ID,
		OrderID:    p.OrderID,
		MerchantID: p.MerchantID,
		Amount:     p.Amount,
		Currency:   p.Currency,
		Method:     string(p.Method()),
		Status:     string(p.Status),
		Captured:   p.Captured,
		CreatedAt:  p.CreatedAt,
		UpdatedAt:  p.UpdatedAt,
	}
	switch inst := p.Instrument.(type) {
	case domain.UPI:
		v.VPA = inst.VPA
	case domain.Card:
		v.CardNetwork = inst.Network
		v.CardLast4 = inst.Last4
	}
	return v
}

// PublicPaymentView is served to the checkout page.
type PublicPaymentView struct {
	ID          string    `json:"id"`
	OrderID     string    `json:"order_id"`
	Amount      int64     `json:"amount"`
	Currency    string    `json:"currency"`
	Method      string    `json:"method"`
	Status      string    `json:"status"`
	VPA         *string   `json:"vpa"`
	CardNetwork *string   `json:"card_network"`
	CardLast4   *string   `json:"card_last4"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func NewPublicPaymentView(p domain.Payment) PublicPaymentView {
	s := p.Snapshot()
	return PublicPaymentView{
		ID:          s.ID,
		OrderID:     s.OrderID,
		Amount:      s.Amount,
		Currency:    s.Currency,
		Method:      string(s.Method),
		Status:      string(s.Status),
		VPA:         s.VPA,
		CardNetwork: s.CardNetwork,
		CardLast4:   s.CardLast4,
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
	}
}

type RefundView struct {
	ID          string     `json:"id"`
	PaymentID   string     `json:"payment_id"`
	Amount      int64      `json:"amount"`
	Reason      *string    `json:"reason"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
}

func NewRefundView(r domain.Refund) RefundView {
	return RefundView{
		ID:          r.ID,
		PaymentID:   r.PaymentID,
		Amount:      r.Amount,
		Reason:      r.Reason,
		Status:      string(r.Status),
		CreatedAt:   r.CreatedAt,
		ProcessedAt: r.ProcessedAt,
	}
}
