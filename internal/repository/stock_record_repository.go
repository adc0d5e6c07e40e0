package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/andresuchdata/medstock/backend-go/internal/domain"
	"github.com/andresuchdata/medstock/backend-go/internal/repository/postgres"
	"github.com/jmoiron/sqlx"
)

type StockRecordRepository interface {
	// InsertStockRecords appends records in order and returns how many were written.
	InsertStockRecords(ctx context.Context, records []domain.StockRecord) (int, error)
	// ListStockRecords returns records grouped by series, each series in date
	// then insertion order. A positive perSeries keeps only that many of the
	// latest records of every series.
	ListStockRecords(ctx context.Context, perSeries int) ([]domain.StockRecord, error)
	GetAvailableDates(ctx context.Context, limit int) ([]time.Time, error)
}

type stockRecordRepository struct {
	db *postgres.DB
}

func NewStockRecordRepository(db *postgres.DB) StockRecordRepository {
	return &stockRecordRepository{db: db}
}

func (r *stockRecordRepository) InsertStockRecords(ctx context.Context, records []domain.StockRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	query := `
		INSERT INTO stock_records (
			stock_date, hospital_id, hospital_name, medicine_name,
			opening_stock, received, issued, closing_stock,
			lead_time_days, min_stock_level
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	inserted := 0
	err := r.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		stmt, err := tx.PreparexContext(ctx, query)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer stmt.Close()

		for _, rec := range records {
			if _, err := stmt.ExecContext(ctx,
				rec.Date, rec.HospitalID, rec.HospitalName, rec.MedicineName,
				rec.OpeningStock, rec.Received, rec.Issued, rec.ClosingStock,
				rec.LeadTimeDays, rec.MinStockLevel,
			); err != nil {
				return fmt.Errorf("failed to insert stock record %s: %w", rec.Key(), err)
			}
			inserted++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	return inserted, nil
}

func (r *stockRecordRepository) ListStockRecords(ctx context.Context, perSeries int) ([]domain.StockRecord, error) {
	query := `
		SELECT stock_date, hospital_id, hospital_name, medicine_name,
		       opening_stock, received, issued, closing_stock,
		       lead_time_days, min_stock_level
		FROM (
			SELECT sr.*,
			       ROW_NUMBER() OVER (
			           PARTITION BY hospital_id, medicine_name
			           ORDER BY stock_date DESC, id DESC
			       ) AS recency
			FROM stock_records sr
		) ranked
		WHERE $1 <= 0 OR recency <= $1
		ORDER BY hospital_id, medicine_name, stock_date, id
	`

	records := make([]domain.StockRecord, 0)
	if err := r.db.SelectContext(ctx, &records, query, perSeries); err != nil {
		return nil, fmt.Errorf("error listing stock records: %w", err)
	}

	return records, nil
}

func (r *stockRecordRepository) GetAvailableDates(ctx context.Context, limit int) ([]time.Time, error) {
	if limit <= 0 {
		limit = 30
	}

	query := `
		SELECT DISTINCT stock_date
		FROM stock_records
		ORDER BY stock_date DESC
		LIMIT $1
	`

	var dates []time.Time
	if err := r.db.SelectContext(ctx, &dates, query, limit); err != nil {
		return nil, fmt.Errorf("error getting available dates: %w", err)
	}

	return dates, nil
}
