// backend-go/internal/repository/stock_health_repository.go
package repository

import (
	"context"
	"fmt"

	"github.com/andresuchdata/medstock/backend-go/internal/domain"
	"github.com/andresuchdata/medstock/backend-go/internal/repository/postgres"
	"github.com/jmoiron/sqlx"
)

// saveBatchSize keeps a multi-row insert well under the Postgres parameter limit.
const saveBatchSize = 1000

type StockHealthRepository interface {
	SaveResults(ctx context.Context, runID string, recs []domain.ReorderRecommendation) error
	GetStatusSummary(ctx context.Context, filter domain.StockHealthFilter) ([]domain.StockHealthSummary, error)
	GetRecommendations(ctx context.Context, filter domain.StockHealthFilter) ([]domain.ReorderRecommendation, int, error)
	GetHospitalBreakdown(ctx context.Context, filter domain.StockHealthFilter) ([]domain.HospitalBreakdown, error)
}

type stockHealthRepository struct {
	db *postgres.DB
}

func NewStockHealthRepository(db *postgres.DB) StockHealthRepository {
	return &stockHealthRepository{db: db}
}

type stockHealthRow struct {
	RunID string `db:"run_id"`
	domain.ReorderRecommendation
}

const recommendationColumns = `
	stock_date, hospital_id, hospital_name, medicine_name, current_stock,
	avg_daily_usage, lead_time_days, min_stock_level, stock_status,
	days_until_stockout, recommended_order_quantity, priority`

// SaveResults upserts the recommendations of one run, one row per series, and
// drops series left over from other runs. Saving again under the same runID
// adds to the run instead of replacing it.
func (r *stockHealthRepository) SaveResults(ctx context.Context, runID string, recs []domain.ReorderRecommendation) error {
	query := `
		INSERT INTO stock_health (run_id, ` + recommendationColumns + `)
		VALUES (
			:run_id, :stock_date, :hospital_id, :hospital_name, :medicine_name, :current_stock,
			:avg_daily_usage, :lead_time_days, :min_stock_level, :stock_status,
			:days_until_stockout, :recommended_order_quantity, :priority
		)
		ON CONFLICT (hospital_id, medicine_name) DO UPDATE SET
			run_id = EXCLUDED.run_id,
			stock_date = EXCLUDED.stock_date,
			hospital_name = EXCLUDED.hospital_name,
			current_stock = EXCLUDED.current_stock,
			avg_daily_usage = EXCLUDED.avg_daily_usage,
			lead_time_days = EXCLUDED.lead_time_days,
			min_stock_level = EXCLUDED.min_stock_level,
			stock_status = EXCLUDED.stock_status,
			days_until_stockout = EXCLUDED.days_until_stockout,
			recommended_order_quantity = EXCLUDED.recommended_order_quantity,
			priority = EXCLUDED.priority,
			computed_at = NOW()`

	recs = latestPerSeries(recs)

	return r.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		for start := 0; start < len(recs); start += saveBatchSize {
			end := min(start+saveBatchSize, len(recs))
			rows := make([]stockHealthRow, 0, end-start)
			for _, rec := range recs[start:end] {
				rows = append(rows, stockHealthRow{RunID: runID, ReorderRecommendation: rec})
			}
			if _, err := tx.NamedExecContext(ctx, query, rows); err != nil {
				return fmt.Errorf("error saving stock health batch: %w", err)
			}
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM stock_health WHERE run_id <> $1`, runID); err != nil {
			return fmt.Errorf("error pruning stale stock health: %w", err)
		}
		return nil
	})
}

// latestPerSeries keeps the last recommendation of every series, in first-seen order.
func latestPerSeries(recs []domain.ReorderRecommendation) []domain.ReorderRecommendation {
	index := make(map[domain.SeriesKey]int, len(recs))
	out := make([]domain.ReorderRecommendation, 0, len(recs))
	for _, rec := range recs {
		if i, ok := index[rec.Key()]; ok {
			out[i] = rec
			continue
		}
		index[rec.Key()] = len(out)
		out = append(out, rec)
	}
	return out
}

func (r *stockHealthRepository) GetStatusSummary(ctx context.Context, filter domain.StockHealthFilter) ([]domain.StockHealthSummary, error) {
	clause, args, _ := postgres.BuildStockHealthFilterClause(&filter, "", 1)

	query := `
		SELECT stock_status, COUNT(*) AS count
		FROM stock_health
		WHERE 1=1` + clause + `
		GROUP BY stock_status
		ORDER BY MIN(priority)`

	var summaries []domain.StockHealthSummary
	if err := r.db.SelectContext(ctx, &summaries, query, args...); err != nil {
		return nil, fmt.Errorf("error getting stock health summary: %w", err)
	}

	return summaries, nil
}

// GetRecommendations returns one page of recommendations in presentation
// order and the total matching count. A zero PageSize returns every row.
func (r *stockHealthRepository) GetRecommendations(ctx context.Context, filter domain.StockHealthFilter) ([]domain.ReorderRecommendation, int, error) {
	clause, args, idx := postgres.BuildStockHealthFilterClause(&filter, "", 1)

	countQuery := `SELECT COUNT(*) FROM stock_health WHERE 1=1` + clause

	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("error counting recommendations: %w", err)
	}

	query := `SELECT ` + recommendationColumns + `
		FROM stock_health
		WHERE 1=1` + clause + `
		ORDER BY priority, hospital_id, medicine_name`

	if filter.PageSize > 0 {
		page := max(filter.Page, 1)
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", idx, idx+1)
		args = append(args, filter.PageSize, (page-1)*filter.PageSize)
	}

	recs := make([]domain.ReorderRecommendation, 0)
	if err := r.db.SelectContext(ctx, &recs, query, args...); err != nil {
		return nil, 0, fmt.Errorf("error getting recommendations: %w", err)
	}

	return recs, total, nil
}

func (r *stockHealthRepository) GetHospitalBreakdown(ctx context.Context, filter domain.StockHealthFilter) ([]domain.HospitalBreakdown, error) {
	clause, args, _ := postgres.BuildStockHealthFilterClause(&filter, "", 1)

	query := `
		SELECT
			hospital_id,
			MAX(hospital_name) AS hospital_name,
			COUNT(*) FILTER (WHERE stock_status = 'CRITICAL') AS critical,
			COUNT(*) FILTER (WHERE stock_status = 'WARNING') AS warning,
			COUNT(*) FILTER (WHERE stock_status = 'HEALTHY') AS healthy,
			COALESCE(SUM(current_stock), 0) AS total_stock
		FROM stock_health
		WHERE 1=1` + clause + `
		GROUP BY hospital_id
		ORDER BY hospital_id`

	var breakdown []domain.HospitalBreakdown
	if err := r.db.SelectContext(ctx, &breakdown, query, args...); err != nil {
		return nil, fmt.Errorf("error getting hospital breakdown: %w", err)
	}

	return breakdown, nil
}
