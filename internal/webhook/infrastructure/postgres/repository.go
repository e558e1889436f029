package postgres

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmehra2102/payment-gateway/internal/webhook/domain"
	"github.com/dmehra2102/payment-gateway/pkg/apperr"
)

const Schema = `
CREATE TABLE IF NOT EXISTS webhook_logs (
	id              TEXT PRIMARY KEY,
	merchant_id     TEXT NOT NULL REFERENCES merchants(id),
	event           TEXT NOT NULL,
	payload         JSONB NOT NULL,
	status          TEXT NOT NULL DEFAULT 'pending',
	attempts        INT NOT NULL DEFAULT 0,
	last_attempt_at TIMESTAMPTZ,
	next_retry_at   TIMESTAMPTZ,
	response_code   INT,
	response_body   TEXT,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS webhook_logs_merchant_created_idx ON webhook_logs (merchant_id, created_at DESC);
`

const columns = `id, merchant_id, event, payload, status, attempts, last_attempt_at, next_retry_at, response_code, response_body, created_at`

type Repository struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewRepository(log *slog.Logger, pool *pgxpool.Pool) *Repository {
	return &Repository{log: log, pool: pool}
}

func (r *Repository) Create(ctx context.Context, l domain.Log) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO webhook_logs (id, merchant_id, event, payload, status, attempts, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		l.ID, l.MerchantID, l.Event, []byte(l.Payload), string(l.Status), l.Attempts, l.CreatedAt)
	return err
}

func (r *Repository) Get(ctx context.Context, id string) (domain.Log, error) {
	return r.one(ctx, `SELECT `+columns+` FROM webhook_logs WHERE id=$1`, id)
}

func (r *Repository) GetForMerchant(ctx context.Context, merchantID, id string) (domain.Log, error) {
	return r.one(ctx, `SELECT `+columns+` FROM webhook_logs WHERE id=$1 AND merchant_id=$2`, id, merchantID)
}

func (r *Repository) List(ctx context.Context, merchantID string, limit, offset int) ([]domain.Log, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM webhook_logs WHERE merchant_id=$1`, merchantID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx, `SELECT `+columns+` FROM webhook_logs WHERE merchant_id=$1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`, merchantID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := []domain.Log{}
	for rows.Next() {
		l, err := scan(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, l)
	}
	return out, total, rows.Err()
}

func (r *Repository) Save(ctx context.Context, l domain.Log, status domain.Status, attempts int) (bool, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE webhook_logs
		SET status=$2, attempts=$3, last_attempt_at=$4, next_retry_at=$5, response_code=$6, response_body=$7
		WHERE id=$1 AND status=$8 AND attempts=$9`,
		l.ID, string(l.Status), l.Attempts, l.LastAttemptAt, l.NextRetryAt, l.ResponseCode, l.ResponseBody,
		string(status), attempts)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *Repository) one(ctx context.Context, sql string, args ...any) (domain.Log, error) {
	l, err := scan(r.pool.QueryRow(ctx, sql, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Log{}, apperr.NotFound("Webhook log not found")
	}
	return l, err
}

func scan(row pgx.Row) (domain.Log, error) {
	var (
		l       domain.Log
		status  string
		payload []byte
	)
	err := row.Scan(&l.ID, &l.MerchantID, &l.Event, &payload, &status, &l.Attempts,
		&l.LastAttemptAt, &l.NextRetryAt, &l.ResponseCode, &l.ResponseBody, &l.CreatedAt)
	if err != nil {
		return domain.Log{}, err
	}
	l.Payload = payload
	l.Status = domain.Status(status)
	return l, nil
}
