// Package dbtest opens throwaway in-memory SQLite databases carrying the
// quotepay schema.
package dbtest

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var seq atomic.Int64

// Schema mirrors the postgres migrations using SQLite types. TIMESTAMP is
// used instead of TIMESTAMPTZ so the driver scans into time.Time.
var Schema = []string{
	`CREATE TABLE quotes (
		id BIGINT PRIMARY KEY,
		quote_number TEXT NOT NULL,
		customer_email TEXT NOT NULL,
		customer_name TEXT,
		company_name TEXT,
		customer_phone TEXT,
		customer_siret TEXT,
		amount BIGINT NOT NULL,
		currency TEXT NOT NULL,
		vat_rate REAL NOT NULL DEFAULT 20,
		vat_amount BIGINT NOT NULL DEFAULT 0,
		description TEXT NOT NULL,
		notes TEXT,
		street_and_number TEXT,
		city TEXT,
		region TEXT,
		postal_code TEXT,
		country TEXT,
		expires_at TIMESTAMP,
		provider_order_id TEXT,
		checkout_url TEXT,
		payment_method TEXT,
		status TEXT NOT NULL,
		paid_at TIMESTAMP,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE UNIQUE INDEX ux_quotes_quote_number ON quotes(quote_number)`,
	`CREATE UNIQUE INDEX ux_quotes_provider_order_id ON quotes(provider_order_id)`,
	`CREATE INDEX ix_quotes_status_expires_at ON quotes(status, expires_at)`,
	`CREATE TABLE webhook_events (
		id BIGINT PRIMARY KEY,
		quote_id BIGINT,
		provider_order_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		status TEXT,
		payload TEXT NOT NULL,
		processed BOOLEAN NOT NULL DEFAULT FALSE,
		outcome TEXT,
		created_at TIMESTAMP NOT NULL,
		processed_at TIMESTAMP
	)`,
	`CREATE INDEX ix_webhook_events_provider_order_id ON webhook_events(provider_order_id)`,
	`CREATE INDEX ix_webhook_events_processed ON webhook_events(processed, created_at)`,
}

// Open returns a fresh database with Schema applied.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:quotepay_%d_%d?mode=memory&cache=shared", time.Now().UnixNano(), seq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range Schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("apply schema: %v", err)
		}
	}
	return db
}

// Count runs a COUNT query and returns the result.
func Count(t testing.TB, db *gorm.DB, query string, args ...any) int64 {
	t.Helper()

	var count int64
	if err := db.Raw(query, args...).Scan(&count).Error; err != nil {
		t.Fatalf("query count: %v", err)
	}
	return count
}
