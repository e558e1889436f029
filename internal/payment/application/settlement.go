package application

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/dmehra2102/payment-gateway/internal/payment/domain"
)

type SettlementConfig struct {
	// TestMode replaces the random delays and outcomes with TestDelay and
	// TestSuccess.
	TestMode    bool
	TestDelay   time.Duration
	TestSuccess bool

	DelayMin       time.Duration
	DelayMax       time.Duration
	RefundDelayMin time.Duration
	RefundDelayMax time.Duration

	UPISuccessRate  float64
	CardSuccessRate float64
}

// Simulator stands in for the card network and UPI switch.
type Simulator struct {
	cfg SettlementConfig
}

func NewSimulator(cfg SettlementConfig) *Simulator {
	return &Simulator{cfg: cfg}
}

func (s *Simulator) PaymentDelay() time.Duration {
	if s.cfg.TestMode {
		return s.cfg.TestDelay
	}
	return between(s.cfg.DelayMin, s.cfg.DelayMax)
}

func (s *Simulator) RefundDelay() time.Duration {
	if s.cfg.TestMode {
		return s.cfg.TestDelay
	}
	return between(s.cfg.RefundDelayMin, s.cfg.RefundDelayMax)
}

func (s *Simulator) Succeeds(m domain.Method) bool {
	if s.cfg.TestMode {
		return s.cfg.TestSuccess
	}
	rate := s.cfg.CardSuccessRate
	if m == domain.MethodUPI {
		rate = s.cfg.UPISuccessRate
	}
	return rand.Float64() < rate
}

// between is inclusive of both bounds.
func between(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + rand.N(hi-lo+1)
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
