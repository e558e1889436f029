package application

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/payment-gateway/internal/payment/domain"
	"github.com/dmehra2102/payment-gateway/pkg/apperr"
	"github.com/dmehra2102/payment-gateway/pkg/queue"
)

const DefaultListLimit = 50

type Service struct {
	log    *slog.Logger
	repo   Repository
	queue  queue.Queue
	guard  *Guard
	tracer trace.Tracer
	now    func() time.Time
}

func NewService(log *slog.Logger, repo Repository, q queue.Queue, guard *Guard) *Service {
	return &Service{
		log:    log,
		repo:   repo,
		queue:  q,
		guard:  guard,
		tracer: otel.Tracer("payment-service"),
		now:    time.Now,
	}
}

type CreateOrderInput struct {
	Amount   int64
	Currency string
	Receipt  *string
	Notes    map[string]any
}

func (s *Service) CreateOrder(ctx context.Context, merchantID string, in CreateOrderInput) (OrderView, error) {
	o, err := domain.NewOrder(merchantID, in.Amount, in.Currency, in.Receipt, in.Notes, s.now())
	if err != nil {
		return OrderView{}, err
	}
	if err := s.repo.CreateOrder(ctx, o); err != nil {
		return OrderView{}, fmt.Errorf("create order: %w", err)
	}
	s.log.Info("order created", "order_id", o.ID, "merchant_id", merchantID, "amount", o.Amount)
	return NewOrderView(o), nil
}

func (s *Service) GetOrder(ctx context.Context, merchantID, id string) (OrderView, error) {
	o, err := s.repo.GetOrder(ctx, merchantID, id)
	if err != nil {
		return OrderView{}, err
	}
	return NewOrderView(o), nil
}

func (s *Service) GetPublicOrder(ctx context.Context, id string) (PublicOrderView, error) {
	o, err := s.repo.FindOrder(ctx, id)
	if err != nil {
		return PublicOrderView{}, err
	}
	return NewPublicOrderView(o), nil
}

type CreatePaymentInput struct {
	OrderID string
	Method  string
	VPA     string
	Card    *domain.CardInput
}

// CreatePayment creates a pending payment and queues it for settlement. The
// returned body is the exact JSON sent to the client, replayed verbatim for
// a repeated idempotency key.
func (s *Service) CreatePayment(ctx context.Context, merchantID, idempotencyKey string, in CreatePaymentInput) (json.RawMessage, error) {
	ctx, span := s.tracer.Start(ctx, "CreatePayment", trace.WithAttributes(
		attribute.String("merchant.id", merchantID),
		attribute.Bool("idempotent", idempotencyKey != ""),
	))
	defer span.End()

	return s.guard.Do(ctx, merchantID, idempotencyKey, func(ctx context.Context) ([]byte, error) {
		p, err := s.createPayment(ctx, in, func(ctx context.Context, orderID string) (domain.Order, error) {
			return s.repo.GetOrder(ctx, merchantID, orderID)
		})
		if err != nil {
			return nil, err
		}
		return json.Marshal(NewPaymentView(p))
	})
}

// CreatePublicPayment serves the hosted checkout: no credentials, the
// merchant is the order's owner and no idempotency key applies.
func (s *Service) CreatePublicPayment(ctx context.Context, in CreatePaymentInput) (PublicPaymentView, error) {
	p, err := s.createPayment(ctx, in, s.repo.FindOrder)
	if err != nil {
		return PublicPaymentView{}, err
	}
	return NewPublicPaymentView(p), nil
}

func (s *Service) createPayment(ctx context.Context, in CreatePaymentInput, order func(context.Context, string) (domain.Order, error)) (domain.Payment, error) {
	if in.OrderID == "" {
		return domain.Payment{}, apperr.BadRequest("order_id is required")
	}
	method := domain.Method(in.Method)
	if method != domain.MethodUPI && method != domain.MethodCard {
		return domain.Payment{}, apperr.BadRequest("method must be upi or card")
	}
	o, err := order(ctx, in.OrderID)
	if err != nil {
		return domain.Payment{}, err
	}

	var inst domain.Instrument
	if method == domain.MethodUPI {
		inst, err = domain.NewUPI(in.VPA)
	} else {
		if in.Card == nil {
			return domain.Payment{}, apperr.BadRequest("Card details incomplete")
		}
		inst, err = in.Card.Tokenize(s.now())
	}
	if err != nil {
		return domain.Payment{}, err
	}

	p := domain.NewPayment(o, o.MerchantID, inst, s.now())
	if err := s.repo.CreatePayment(ctx, p); err != nil {
		return domain.Payment{}, fmt.Errorf("create payment: %w", err)
	}
	if err := s.enqueue(ctx, queue.Payments, PaymentJob{PaymentID: p.ID}); err != nil {
		s.abandon(context.WithoutCancel(ctx), p)
		return domain.Payment{}, err
	}
	s.log.Info("payment created", "payment_id", p.ID, "order_id", o.ID, "method", string(method))
	return p, nil
}

// abandon fails a payment whose job could not be queued, so it does not sit
// pending forever. A client retry then creates a fresh payment.
func (s *Service) abandon(ctx context.Context, p domain.Payment) {
	failed, err := p.Abandon(s.now())
	if err != nil {
		return
	}
	if _, err := s.repo.SettlePayment(ctx, failed); err != nil {
		s.log.Error("abandoned payment left pending", "payment_id", p.ID, "err", err)
		return
	}
	s.log.Warn("payment abandoned, job not queued", "payment_id", p.ID)
}

func (s *Service) GetPayment(ctx context.Context, merchantID, id string) (PaymentView, error) {
	p, err := s.repo.GetPayment(ctx, merchantID, id)
	if err != nil {
		return PaymentView{}, err
	}
	return NewPaymentView(p), nil
}

func (s *Service) GetPublicPayment(ctx context.Context, id string) (PublicPaymentView, error) {
	p, err := s.repo.FindPayment(ctx, id)
	if err != nil {
		return PublicPaymentView{}, err
	}
	return NewPublicPaymentView(p), nil
}

// ListPayments returns the merchant's payments, newest first.
func (s *Service) ListPayments(ctx context.Context, merchantID string, limit int) ([]PaymentView, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	payments, err := s.repo.ListPayments(ctx, merchantID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]PaymentView, 0, len(payments))
	for _, p := range payments {
		out = append(out, NewPaymentView(p))
	}
	return out, nil
}

func (s *Service) CapturePayment(ctx context.Context, merchantID, id string, amount *int64) (PaymentView, error) {
	p, err := s.repo.GetPayment(ctx, merchantID, id)
	if err != nil {
		return PaymentView{}, err
	}
	captured, err := p.Capture(amount, s.now())
	if err != nil {
		return PaymentView{}, err
	}
	ok, err := s.repo.CapturePayment(ctx, captured)
	if err != nil {
		return PaymentView{}, fmt.Errorf("capture payment: %w", err)
	}
	if !ok {
		return PaymentView{}, apperr.Conflict(apperr.CodeBadRequest, "Payment not in capturable state")
	}
	s.log.Info("payment captured", "payment_id", id)
	return NewPaymentView(captured), nil
}

func (s *Service) CreateRefund(ctx context.Context, merchantID, paymentID string, amount int64, reason *string) (RefundView, error) {
	if amount <= 0 {
		return RefundView{}, apperr.BadRequest("Refund amount required")
	}
	p, err := s.repo.GetPayment(ctx, merchantID, paymentID)
	if err != nil {
		return RefundView{}, err
	}
	r, err := domain.NewRefund(p, amount, reason, s.now())
	if err != nil {
		return RefundView{}, err
	}
	err = s.repo.CreateRefund(ctx, r, func(refunded int64) error {
		return domain.CheckBalance(p.Amount, refunded, r.Amount)
	})
	if err != nil {
		return RefundView{}, err
	}
	if err := s.enqueue(ctx, queue.Refunds, RefundJob{RefundID: r.ID}); err != nil {
		return RefundView{}, err
	}
	s.log.Info("refund created", "refund_id", r.ID, "payment_id", p.ID, "amount", r.Amount)
	return NewRefundView(r), nil
}

func (s *Service) GetRefund(ctx context.Context, merchantID, id string) (RefundView, error) {
	r, err := s.repo.GetRefund(ctx, merchantID, id)
	if err != nil {
		return RefundView{}, err
	}
	return NewRefundView(r), nil
}

func (s *Service) enqueue(ctx context.Context, name queue.Name, payload any) error {
	job, err := queue.NewJob(ctx, name, JobProcess, payload)
	if err != nil {
		return err
	}
	if err := s.queue.Enqueue(ctx, job, 0); err != nil {
		return fmt.Errorf("enqueue %s job: %w", name, err)
	}
	return nil
}
