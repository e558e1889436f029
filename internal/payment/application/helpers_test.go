package application_test

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dmehra2102/payment-gateway/internal/payment/application"
	"github.com/dmehra2102/payment-gateway/internal/payment/infrastructure/memory"
	"github.com/dmehra2102/payment-gateway/pkg/logging"
	"github.com/dmehra2102/payment-gateway/pkg/queue"
)

const merchantID = "550e8400-e29b-41d4-a716-446655440000"

type notification struct {
	MerchantID string
	Event      string
	Data       any
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []notification
	err  error
}

func (f *fakeNotifier) Notify(_ context.Context, merchantID, event string, data any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, notification{MerchantID: merchantID, Event: event, Data: data})
	return nil
}

func (f *fakeNotifier) events() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.sent))
	for _, n := range f.sent {
		out = append(out, n.Event)
	}
	return out
}

type fixture struct {
	repo  *memory.Repository
	queue *queue.Memory
	svc   *application.Service
}

func newFixture(t *testing.T, locker application.Locker) fixture {
	t.Helper()
	repo := memory.NewRepository()
	q := queue.NewMemory()
	guard := application.NewGuard(logging.Discard(), repo, locker, 24*time.Hour)
	return fixture{
		repo:  repo,
		queue: q,
		svc:   application.NewService(logging.Discard(), repo, q, guard),
	}
}

func (f fixture) order(t *testing.T, amount int64) application.OrderView {
	t.Helper()
	o, err := f.svc.CreateOrder(context.Background(), merchantID, application.CreateOrderInput{Amount: amount, Currency: "INR"})
	require.NoError(t, err)
	return o
}

func testSimulator(success bool) *application.Simulator {
	return application.NewSimulator(application.SettlementConfig{
		TestMode:    true,
		TestDelay:   0,
		TestSuccess: success,
	})
}

func discard() *slog.Logger { return logging.Discard() }
