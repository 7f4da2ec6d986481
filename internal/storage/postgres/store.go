// Package postgres stores orders in PostgreSQL through a pgx pool.
package postgres

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"marketplace-relay/internal/common/logging"
	"marketplace-relay/internal/storage"
)

const schema = `CREATE TABLE IF NOT EXISTS yemeksepeti_orders (
	id BIGSERIAL PRIMARY KEY,
	order_id TEXT,
	platform TEXT NOT NULL,
	token TEXT,
	code TEXT,
	pre_order BOOLEAN,
	expiry_date TEXT,
	created_at_platform TEXT,
	platform_restaurant_id TEXT,
	customer_id TEXT,
	customer_first_name TEXT,
	customer_last_name TEXT,
	customer_name TEXT,
	customer_phone TEXT,
	payment_type TEXT,
	payment_status TEXT,
	subtotal DOUBLE PRECISION,
	vat_total DOUBLE PRECISION,
	total_price DOUBLE PRECISION,
	currency TEXT,
	delivery_type TEXT,
	delivery_expected_time TEXT,
	delivery_city TEXT,
	delivery_postcode TEXT,
	delivery_street TEXT,
	delivery_address TEXT,
	city TEXT,
	products JSONB,
	comments JSONB,
	raw_payload JSONB NOT NULL,
	received_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_yemeksepeti_orders_order_id ON yemeksepeti_orders(order_id);`

// insertStatement uses pgx's numbered bind parameters
var insertStatement = storage.InsertStatement(func(n int) string { return "$" + strconv.Itoa(n) })

type Store struct {
	pool   *pgxpool.Pool
	insert string
	logger logging.Logger
}

// Open connects to databaseURL, verifies the connection and creates the
// orders table when missing.
func Open(ctx context.Context, databaseURL string, logger logging.Logger) (*Store, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("postgres database url is required")
	}

	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid postgres database url: %w", err)
	}
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to migrate postgres database: %w", err)
	}

	s := &Store{
		pool:   pool,
		insert: insertStatement,
		logger: logger.WithFields(logging.String("store", "postgres")),
	}
	s.logger.Info("PostgreSQL order store ready", logging.Int("max_conns", int(cfg.MaxConns)))
	return s, nil
}

func (s *Store) SaveYemeksepetiOrder(ctx context.Context, order *storage.YemeksepetiOrder) error {
	if order == nil {
		return fmt.Errorf("order is nil")
	}
	if _, err := s.pool.Exec(ctx, s.insert, order.Values()...); err != nil {
		return fmt.Errorf("failed to insert yemeksepeti order: %w", err)
	}
	return nil
}

func (s *Store) Health(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
