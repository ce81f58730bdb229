package migrate

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// SQLite has no enum types, jsonb or partial-index predicates on our enums, so
// local SQLite runs get a hand-mapped copy of the goose schema instead.
var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		full_name TEXT NOT NULL,
		password_hash TEXT NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT 1,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE IF NOT EXISTS npos (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT,
		email TEXT NOT NULL,
		website TEXT,
		registration_number TEXT,
		ledger_address TEXT NOT NULL UNIQUE,
		is_verified BOOLEAN NOT NULL DEFAULT 0,
		total_received NUMERIC NOT NULL DEFAULT 0,
		total_campaigns INTEGER NOT NULL DEFAULT 0,
		owner_id TEXT REFERENCES users(id),
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE IF NOT EXISTS campaigns (
		id TEXT PRIMARY KEY,
		npo_id TEXT NOT NULL REFERENCES npos(id) ON DELETE CASCADE,
		title TEXT NOT NULL,
		description TEXT,
		goal_amount NUMERIC NOT NULL,
		current_amount NUMERIC NOT NULL DEFAULT 0,
		start_date DATETIME NOT NULL,
		end_date DATETIME,
		is_active BOOLEAN NOT NULL DEFAULT 1,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE IF NOT EXISTS donations (
		id TEXT PRIMARY KEY,
		amount NUMERIC NOT NULL,
		donor_id TEXT REFERENCES users(id),
		npo_id TEXT NOT NULL REFERENCES npos(id),
		campaign_id TEXT REFERENCES campaigns(id) ON DELETE SET NULL,
		message TEXT,
		is_anonymous BOOLEAN NOT NULL DEFAULT 0,
		use_escrow BOOLEAN NOT NULL DEFAULT 0,
		tx_hash TEXT UNIQUE,
		escrow_id TEXT,
		escrow_owner TEXT,
		escrow_sequence INTEGER,
		release_at DATETIME,
		status TEXT NOT NULL DEFAULT 'pending',
		failure_code TEXT,
		created_at DATETIME,
		updated_at DATETIME,
		completed_at DATETIME
	)`,
	`CREATE TABLE IF NOT EXISTS outbox_events (
		id TEXT PRIMARY KEY,
		event_type TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		payload TEXT NOT NULL,
		created_at DATETIME,
		published_at DATETIME,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		last_error TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS outbox_dlq (
		id TEXT PRIMARY KEY,
		event_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		payload_json TEXT NOT NULL,
		error_reason TEXT NOT NULL,
		error_message TEXT,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		failed_at DATETIME,
		created_at DATETIME
	)`,
}

// ApplySQLite creates any missing tables. It is safe to call on every start.
func ApplySQLite(ctx context.Context, conn *gorm.DB) error {
	for _, stmt := range sqliteSchema {
		if err := conn.WithContext(ctx).Exec(stmt).Error; err != nil {
			return fmt.Errorf("apply sqlite schema: %w", err)
		}
	}
	return nil
}
