package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmehra2102/payment-gateway/internal/payment/domain"
	"github.com/dmehra2102/payment-gateway/pkg/apperr"
	"github.com/dmehra2102/payment-gateway/pkg/outbox"
	"github.com/dmehra2102/payment-gateway/pkg/tracing"
)

const (
	orderColumns   = `id, merchant_id, amount, currency, receipt, notes, status, created_at, updated_at`
	paymentColumns = `id, order_id, merchant_id, amount, currency, method, status, vpa, card_network, card_last4, captured, error_code, error_description, created_at, updated_at`
	refundColumns  = `id, payment_id, merchant_id, amount, reason, status, created_at, processed_at`
)

// Repository stores orders, payments, refunds and idempotency keys. Every
// payment and refund mutation appends its lifecycle event to the outbox in
// the same transaction.
type Repository struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewRepository(log *slog.Logger, pool *pgxpool.Pool) *Repository {
	return &Repository{log: log, pool: pool}
}

func (r *Repository) withTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func appendEvent(ctx context.Context, tx pgx.Tx, aggregateType, aggregateID, eventType string, snapshot any) error {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	return outbox.Append(ctx, tx, outbox.Event{
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		Type:          eventType,
		Payload:       payload,
		Headers:       tracing.Inject(ctx, nil),
		Traceparent:   tracing.Traceparent(ctx),
	})
}

func (r *Repository) CreateOrder(ctx context.Context, o domain.Order) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO orders (`+orderColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		o.ID, o.MerchantID, o.Amount, o.Currency, o.Receipt, o.Notes, string(o.Status), o.CreatedAt, o.UpdatedAt)
	return err
}

func (r *Repository) GetOrder(ctx context.Context, merchantID, id string) (domain.Order, error) {
	return r.order(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1 AND merchant_id=$2`, id, merchantID)
}

func (r *Repository) FindOrder(ctx context.Context, id string) (domain.Order, error) {
	return r.order(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, id)
}

func (r *Repository) order(ctx context.Context, sql string, args ...any) (domain.Order, error) {
	var o domain.Order
	var status string
	err := r.pool.QueryRow(ctx, sql, args...).Scan(&o.ID, &o.MerchantID, &o.Amount, &o.Currency, &o.Receipt, &o.Notes, &status, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Order{}, apperr.NotFound("Order not found")
	}
	o.Status = domain.OrderStatus(status)
	return o, err
}

func (r *Repository) CreatePayment(ctx context.Context, p domain.Payment) error {
	s := p.Snapshot()
	return r.withTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `INSERT INTO payments (`+paymentColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
			s.ID, s.OrderID, s.MerchantID, s.Amount, s.Currency, string(s.Method), string(s.Status),
			s.VPA, s.CardNetwork, s.CardLast4, s.Captured, s.ErrorCode, s.ErrorDescription, s.CreatedAt, s.UpdatedAt)
		if err != nil {
			return err
		}
		return appendEvent(ctx, tx, "payment", p.ID, domain.EventPaymentCreated, s)
	})
}

func (r *Repository) GetPayment(ctx context.Context, merchantID, id string) (domain.Payment, error) {
	return r.payment(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id=$1 AND merchant_id=$2`, id, merchantID)
}

func (r *Repository) FindPayment(ctx context.Context, id string) (domain.Payment, error) {
	return r.payment(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id=$1`, id)
}

func (r *Repository) ListPayments(ctx context.Context, merchantID string, limit int) ([]domain.Payment, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+paymentColumns+` FROM payments WHERE merchant_id=$1 ORDER BY created_at DESC LIMIT $2`, merchantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *Repository) payment(ctx context.Context, sql string, args ...any) (domain.Payment, error) {
	p, err := scanPayment(r.pool.QueryRow(ctx, sql, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Payment{}, apperr.NotFound("Payment not found")
	}
	return p, err
}

func scanPayment(row pgx.Row) (domain.Payment, error) {
	var (
		p                       domain.Payment
		method, status          string
		vpa, cardNetwork, last4 *string
	)
	err := row.Scan(&p.ID, &p.OrderID, &p.MerchantID, &p.Amount, &p.Currency, &method, &status,
		&vpa, &cardNetwork, &last4, &p.Captured, &p.ErrorCode, &p.ErrorDescription, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return domain.Payment{}, err
	}

	switch domain.Method(method) {
	case domain.MethodUPI:
		p.Instrument = domain.UPI{VPA: deref(vpa)}
	case domain.MethodCard:
		p.Instrument = domain.Card{Network: deref(cardNetwork), Last4: deref(last4)}
	default:
		return domain.Payment{}, fmt.Errorf("payment %s has unknown method %q", p.ID, method)
	}
	p.Status = domain.Status(status)
	return p, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (r *Repository) SettlePayment(ctx context.Context, p domain.Payment) (bool, error) {
	settled := false
	err := r.withTx(ctx, func(tx pgx.Tx) error {
		ct, err := tx.Exec(ctx, `UPDATE payments SET status=$2, error_code=$3, error_description=$4, updated_at=$5
			WHERE id=$1 AND status='pending'`,
			p.ID, string(p.Status), p.ErrorCode, p.ErrorDescription, p.UpdatedAt)
		if err != nil {
			return err
		}
		if ct.RowsAffected() == 0 {
			return nil
		}
		settled = true
		return appendEvent(ctx, tx, "payment", p.ID, p.Event(), p.Snapshot())
	})
	return settled && err == nil, err
}

func (r *Repository) CapturePayment(ctx context.Context, p domain.Payment) (bool, error) {
	ct, err := r.pool.Exec(ctx, `UPDATE payments SET captured=TRUE, updated_at=$2
		WHERE id=$1 AND status='success' AND NOT captured`, p.ID, p.UpdatedAt)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

func (r *Repository) CreateRefund(ctx context.Context, rf domain.Refund, check func(refunded int64) error) error {
	return r.withTx(ctx, func(tx pgx.Tx) error {
		// Lock the payment so concurrent refunds see each other's rows.
		var id string
		err := tx.QueryRow(ctx, `SELECT id FROM payments WHERE id=$1 FOR UPDATE`, rf.PaymentID).Scan(&id)
		if errors.Is(err, pgx.ErrNoRows) {
			return apperr.NotFound("Payment not found")
		}
		if err != nil {
			return err
		}

		var refunded int64
		err = tx.QueryRow(ctx, `SELECT COALESCE(SUM(amount), 0) FROM refunds
			WHERE payment_id=$1 AND status IN ('pending', 'processed')`, rf.PaymentID).Scan(&refunded)
		if err != nil {
			return err
		}
		if err := check(refunded); err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `INSERT INTO refunds (`+refundColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			rf.ID, rf.PaymentID, rf.MerchantID, rf.Amount, rf.Reason, string(rf.Status), rf.CreatedAt, rf.ProcessedAt)
		if err != nil {
			return err
		}
		return appendEvent(ctx, tx, "refund", rf.ID, domain.EventRefundCreated, rf.Snapshot())
	})
}

func (r *Repository) GetRefund(ctx context.Context, merchantID, id string) (domain.Refund, error) {
	return r.refund(ctx, `SELECT `+refundColumns+` FROM refunds WHERE id=$1 AND merchant_id=$2`, id, merchantID)
}

func (r *Repository) FindRefund(ctx context.Context, id string) (domain.Refund, error) {
	return r.refund(ctx, `SELECT `+refundColumns+` FROM refunds WHERE id=$1`, id)
}

func (r *Repository) refund(ctx context.Context, sql string, args ...any) (domain.Refund, error) {
	var rf domain.Refund
	var status string
	err := r.pool.QueryRow(ctx, sql, args...).Scan(&rf.ID, &rf.PaymentID, &rf.MerchantID, &rf.Amount, &rf.Reason, &status, &rf.CreatedAt, &rf.ProcessedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Refund{}, apperr.NotFound("Refund not found")
	}
	rf.Status = domain.RefundStatus(status)
	return rf, err
}

func (r *Repository) ProcessRefund(ctx context.Context, rf domain.Refund) (bool, error) {
	processed := false
	err := r.withTx(ctx, func(tx pgx.Tx) error {
		ct, err := tx.Exec(ctx, `UPDATE refunds SET status='processed', processed_at=$2 WHERE id=$1 AND status='pending'`,
			rf.ID, rf.ProcessedAt)
		if err != nil {
			return err
		}
		if ct.RowsAffected() == 0 {
			return nil
		}
		processed = true
		return appendEvent(ctx, tx, "refund", rf.ID, domain.EventRefundProcessed, rf.Snapshot())
	})
	return processed && err == nil, err
}

func (r *Repository) GetIdempotencyKey(ctx context.Context, merchantID, key string) (domain.IdempotencyKey, error) {
	k := domain.IdempotencyKey{MerchantID: merchantID, Key: key}
	err := r.pool.QueryRow(ctx, `SELECT response, expires_at FROM idempotency_keys WHERE merchant_id=$1 AND key=$2`,
		merchantID, key).Scan(&k.Response, &k.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.IdempotencyKey{}, apperr.NotFound("Idempotency key not found")
	}
	return k, err
}

// PutIdempotencyKey is last-writer-wins on (merchant_id, key). The response
// is stored as bytes so replays are byte-identical.
func (r *Repository) PutIdempotencyKey(ctx context.Context, k domain.IdempotencyKey) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO idempotency_keys (key, merchant_id, response, expires_at)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (merchant_id, key) DO UPDATE SET response=EXCLUDED.response, expires_at=EXCLUDED.expires_at`,
		k.Key, k.MerchantID, k.Response, k.ExpiresAt)
	return err
}

func (r *Repository) DeleteExpiredIdempotencyKey(ctx context.Context, merchantID, key string, expiredBy time.Time) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE merchant_id=$1 AND key=$2 AND expires_at <= $3`,
		merchantID, key, expiredBy)
	return err
}
