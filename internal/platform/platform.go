// Package platform opens the shared Postgres and Redis connections and
// applies the schema.
package platform

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	merchantpg "github.com/dmehra2102/payment-gateway/internal/merchant/infrastructure/postgres"
	paymentpg "github.com/dmehra2102/payment-gateway/internal/payment/infrastructure/postgres"
	webhookpg "github.com/dmehra2102/payment-gateway/internal/webhook/infrastructure/postgres"
	"github.com/dmehra2102/payment-gateway/pkg/outbox"
)

// Schemas in dependency order.
var Schemas = []string{
	merchantpg.Schema,
	paymentpg.Schema,
	webhookpg.Schema,
	outbox.Schema,
}

func OpenPostgres(ctx context.Context, url string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("pg connect: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pg ping: %w", err)
	}
	return pool, nil
}

// Migrate applies every schema. Statements are idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for i, schema := range Schemas {
		if _, err := pool.Exec(ctx, schema); err != nil {
			return fmt.Errorf("apply schema %d: %w", i, err)
		}
	}
	return nil
}

func OpenRedis(ctx context.Context, addr string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}
