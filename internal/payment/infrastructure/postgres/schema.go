package postgres

const Schema = `
CREATE TABLE IF NOT EXISTS orders (
	id          TEXT PRIMARY KEY,
	merchant_id TEXT NOT NULL REFERENCES merchants(id),
	amount      BIGINT NOT NULL CHECK (amount >= 100),
	currency    TEXT NOT NULL DEFAULT 'INR',
	receipt     TEXT,
	notes       JSONB NOT NULL DEFAULT '{}',
	status      TEXT NOT NULL DEFAULT 'created',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS payments (
	id                TEXT PRIMARY KEY,
	order_id          TEXT NOT NULL REFERENCES orders(id),
	merchant_id       TEXT NOT NULL REFERENCES merchants(id),
	amount            BIGINT NOT NULL,
	currency          TEXT NOT NULL,
	method            TEXT NOT NULL CHECK (method IN ('upi', 'card')),
	status            TEXT NOT NULL DEFAULT 'pending',
	vpa               TEXT,
	card_network      TEXT,
	card_last4        TEXT,
	captured          BOOLEAN NOT NULL DEFAULT FALSE,
	error_code        TEXT,
	error_description TEXT,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS payments_merchant_created_idx ON payments (merchant_id, created_at DESC);

CREATE TABLE IF NOT EXISTS refunds (
	id           TEXT PRIMARY KEY,
	payment_id   TEXT NOT NULL REFERENCES payments(id),
	merchant_id  TEXT NOT NULL REFERENCES merchants(id),
	amount       BIGINT NOT NULL CHECK (amount > 0),
	reason       TEXT,
	status       TEXT NOT NULL DEFAULT 'pending',
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	processed_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS refunds_payment_idx ON refunds (payment_id);

CREATE TABLE IF NOT EXISTS idempotency_keys (
	key         TEXT NOT NULL,
	merchant_id TEXT NOT NULL REFERENCES merchants(id),
	response    BYTEA NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	expires_at  TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (merchant_id, key)
);
`
