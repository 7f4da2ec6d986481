// Package sqlite stores orders in a local SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"marketplace-relay/internal/common/logging"
	"marketplace-relay/internal/storage"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS yemeksepeti_orders (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
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
		subtotal REAL,
		vat_total REAL,
		total_price REAL,
		currency TEXT,
		delivery_type TEXT,
		delivery_expected_time TEXT,
		delivery_city TEXT,
		delivery_postcode TEXT,
		delivery_street TEXT,
		delivery_address TEXT,
		city TEXT,
		products TEXT,
		comments TEXT,
		raw_payload TEXT NOT NULL,
		received_at DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_yemeksepeti_orders_order_id ON yemeksepeti_orders(order_id)`,
}

type Store struct {
	db     *sql.DB
	insert string
	logger logging.Logger
}

// Open opens (creating if needed) the database at path and migrates it
func Open(path string, logger logging.Logger) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite database path is required")
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// single writer avoids SQLITE_BUSY on concurrent webhooks
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	s := &Store{
		db:     db,
		insert: storage.InsertStatement(func(int) string { return "?" }),
		logger: logger.WithFields(logging.String("store", "sqlite")),
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	s.logger.Info("SQLite order store ready", logging.String("path", path))
	return s, nil
}

func (s *Store) migrate() error {
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to migrate sqlite database: %w", err)
		}
	}
	return nil
}

func (s *Store) SaveYemeksepetiOrder(ctx context.Context, order *storage.YemeksepetiOrder) error {
	if order == nil {
		return fmt.Errorf("order is nil")
	}
	if _, err := s.db.ExecContext(ctx, s.insert, order.Values()...); err != nil {
		return fmt.Errorf("failed to insert yemeksepeti order: %w", err)
	}
	return nil
}

func (s *Store) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}
