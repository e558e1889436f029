package domain

import (
	"encoding/hex"

	"github.com/google/uuid"
)

const (
	OrderPrefix   = "order"
	PaymentPrefix = "pay"
	RefundPrefix  = "rfnd"
)

// NewID returns prefix_ followed by 16 hex characters.
func NewID(prefix string) string {
	u := uuid.New()
	return prefix + "_" + hex.EncodeToString(u[:8])
}
