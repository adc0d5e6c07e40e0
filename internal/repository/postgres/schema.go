package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS stock_records (
		id BIGSERIAL PRIMARY KEY,
		stock_date DATE NOT NULL,
		hospital_id TEXT NOT NULL,
		hospital_name TEXT NOT NULL DEFAULT '',
		medicine_name TEXT NOT NULL,
		opening_stock INTEGER NOT NULL DEFAULT 0 CHECK (opening_stock >= 0),
		received INTEGER NOT NULL DEFAULT 0 CHECK (received >= 0),
		issued INTEGER NOT NULL DEFAULT 0 CHECK (issued >= 0),
		closing_stock INTEGER NOT NULL CHECK (closing_stock >= 0),
		lead_time_days INTEGER NOT NULL CHECK (lead_time_days >= 0),
		min_stock_level INTEGER NOT NULL CHECK (min_stock_level >= 0),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_stock_records_series
		ON stock_records (hospital_id, medicine_name, stock_date, id)`,
	`CREATE TABLE IF NOT EXISTS stock_health (
		id BIGSERIAL PRIMARY KEY,
		run_id UUID NOT NULL,
		stock_date DATE NOT NULL,
		hospital_id TEXT NOT NULL,
		hospital_name TEXT NOT NULL DEFAULT '',
		medicine_name TEXT NOT NULL,
		current_stock INTEGER NOT NULL,
		avg_daily_usage DOUBLE PRECISION NOT NULL,
		lead_time_days INTEGER NOT NULL,
		min_stock_level INTEGER NOT NULL,
		stock_status TEXT NOT NULL,
		days_until_stockout DOUBLE PRECISION,
		recommended_order_quantity INTEGER NOT NULL CHECK (recommended_order_quantity >= 0),
		priority INTEGER NOT NULL,
		computed_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (hospital_id, medicine_name)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_stock_health_status ON stock_health (stock_status)`,
	`CREATE TABLE IF NOT EXISTS pipeline_runs (
		id BIGSERIAL PRIMARY KEY,
		pipeline_name TEXT NOT NULL,
		date DATE NOT NULL,
		status TEXT NOT NULL,
		total_files INTEGER NOT NULL DEFAULT 0,
		processed_files INTEGER NOT NULL DEFAULT 0,
		total_rows INTEGER NOT NULL DEFAULT 0,
		started_at TIMESTAMPTZ NOT NULL,
		completed_at TIMESTAMPTZ,
		error_message TEXT,
		UNIQUE (pipeline_name, date)
	)`,
	`CREATE TABLE IF NOT EXISTS pipeline_file_jobs (
		id BIGSERIAL PRIMARY KEY,
		pipeline_run_id BIGINT NOT NULL REFERENCES pipeline_runs (id) ON DELETE CASCADE,
		file_path TEXT NOT NULL,
		status TEXT NOT NULL,
		rows INTEGER NOT NULL DEFAULT 0,
		error_message TEXT,
		processed_at TIMESTAMPTZ,
		retry_count INTEGER NOT NULL DEFAULT 0
	)`,
}

// EnsureSchema creates the tables used by the service when they are missing.
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
