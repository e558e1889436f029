package postgres

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmehra2102/payment-gateway/internal/merchant/domain"
	"github.com/dmehra2102/payment-gateway/pkg/apperr"
)

const Schema = `
CREATE TABLE IF NOT EXISTS merchants (
	id             TEXT PRIMARY KEY,
	name           TEXT NOT NULL,
	email          TEXT NOT NULL UNIQUE,
	api_key        TEXT NOT NULL UNIQUE,
	api_secret     TEXT NOT NULL,
	webhook_url    TEXT,
	webhook_secret TEXT NOT NULL DEFAULT '',
	is_active      BOOLEAN NOT NULL DEFAULT TRUE,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

const columns = `id, name, email, api_key, api_secret, COALESCE(webhook_url, ''), webhook_secret, is_active, created_at, updated_at`

type Repository struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewRepository(log *slog.Logger, pool *pgxpool.Pool) *Repository {
	return &Repository{log: log, pool: pool}
}

func (r *Repository) ByCredentials(ctx context.Context, apiKey, apiSecret string) (domain.Merchant, error) {
	return r.one(ctx, `SELECT `+columns+` FROM merchants WHERE api_key=$1 AND api_secret=$2 AND is_active`, apiKey, apiSecret)
}

func (r *Repository) Get(ctx context.Context, id string) (domain.Merchant, error) {
	return r.one(ctx, `SELECT `+columns+` FROM merchants WHERE id=$1`, id)
}

func (r *Repository) ByEmail(ctx context.Context, email string) (domain.Merchant, error) {
	return r.one(ctx, `SELECT `+columns+` FROM merchants WHERE email=$1 LIMIT 1`, email)
}

func (r *Repository) Create(ctx context.Context, m domain.Merchant) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO merchants (id, name, email, api_key, api_secret, webhook_url, webhook_secret, is_active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,NULLIF($6,''),$7,$8,$9,$10)
		ON CONFLICT (email) DO NOTHING`,
		m.ID, m.Name, m.Email, m.APIKey, m.APISecret, m.WebhookURL, m.WebhookSecret, m.Active, m.CreatedAt, m.UpdatedAt)
	return err
}

func (r *Repository) SetWebhookURL(ctx context.Context, id, url string) error {
	return r.exec(ctx, `UPDATE merchants SET webhook_url=NULLIF($2,''), updated_at=now() WHERE id=$1`, id, url)
}

func (r *Repository) SetWebhookSecret(ctx context.Context, id, secret string) error {
	return r.exec(ctx, `UPDATE merchants SET webhook_secret=$2, updated_at=now() WHERE id=$1`, id, secret)
}

func (r *Repository) exec(ctx context.Context, sql string, args ...any) error {
	ct, err := r.pool.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return apperr.NotFound("Merchant not found")
	}
	return nil
}

func (r *Repository) one(ctx context.Context, sql string, args ...any) (domain.Merchant, error) {
	var m domain.Merchant
	err := r.pool.QueryRow(ctx, sql, args...).Scan(&m.ID, &m.Name, &m.Email, &m.APIKey, &m.APISecret,
		&m.WebhookURL, &m.WebhookSecret, &m.Active, &m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Merchant{}, apperr.NotFound("Merchant not found")
	}
	return m, err
}
