package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/andresuchdata/medstock/backend-go/internal/analytics"
	"github.com/andresuchdata/medstock/backend-go/internal/cache"
	"github.com/andresuchdata/medstock/backend-go/internal/config"
	"github.com/andresuchdata/medstock/backend-go/internal/domain"
	"github.com/andresuchdata/medstock/backend-go/internal/pipeline/stock_health"
	"github.com/andresuchdata/medstock/backend-go/internal/repository"
	"github.com/andresuchdata/medstock/backend-go/internal/repository/postgres"
	"github.com/andresuchdata/medstock/backend-go/internal/service"
	"github.com/andresuchdata/medstock/backend-go/pkg/logger"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
)

// Offline analysis: reads a stock record file, prints the alert summary and
// writes the recommendations as CSV, optionally loading them into Postgres.
func main() {
	input := flag.String("input", "", "Stock record file (.csv or .xlsx)")
	output := flag.String("output", "-", "Output CSV path, - for stdout")
	format := flag.String("format", string(stock_health.FormatComplete), "Output format: complete or reorder")
	window := flag.Int("window", stock_health.DefaultWindowSize, "Trailing records averaged for daily usage")
	criticalBuffer := flag.Int("critical-buffer", stock_health.DefaultCriticalBufferDays, "Days of cover added for CRITICAL reorders")
	warningBuffer := flag.Int("warning-buffer", stock_health.DefaultWarningBufferDays, "Days of cover added for WARNING reorders")
	workers := flag.Int("workers", 0, "Concurrent series workers, 0 for one per CPU")
	dbURL := flag.String("db-url", "", "Optional database URL; when set the results replace the stored stock health")
	logLevel := flag.String("log-level", "info", "Log level")
	flag.Parse()

	logger.SetLevel(*logLevel)

	if *input == "" {
		logger.Log.Fatal().Msg("input file is required (use -input flag)")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	records, err := readRecords(*input)
	if err != nil {
		logger.Log.Fatal().Err(err).Str("file", *input).Msg("failed to read stock records")
	}

	cfg := stock_health.DefaultConfig()
	cfg.WindowSize = *window
	cfg.CriticalBufferDays = *criticalBuffer
	cfg.WarningBufferDays = *warningBuffer
	cfg.Workers = *workers

	start := time.Now()
	recs, err := stock_health.NewAnalyzer(cfg).Analyze(ctx, records)
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("analysis failed")
	}
	logger.Log.Info().
		Int("records", len(records)).
		Int("series", len(recs)).
		Dur("took", time.Since(start)).
		Msg("analysis complete")

	fmt.Fprintln(os.Stderr, stock_health.Summarize(recs, stock_health.DefaultUrgentItems).Message)

	if err := writeOutput(*output, recs, stock_health.OutputFormat(*format)); err != nil {
		logger.Log.Fatal().Err(err).Msg("failed to write output")
	}

	if *dbURL != "" {
		if err := loadResults(ctx, *dbURL, recs); err != nil {
			logger.Log.Fatal().Err(err).Msg("failed to load results")
		}
	}
}

func readRecords(path string) ([]domain.StockRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		return stock_health.ReadRecordsXLSX(f)
	}
	return stock_health.ReadRecords(f)
}

func writeOutput(path string, recs []domain.ReorderRecommendation, format stock_health.OutputFormat) error {
	var w io.Writer = os.Stdout
	if path != "-" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return err
		}
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	return stock_health.WriteRecommendationsCSV(w, recs, format)
}

// loadResults stages the complete export under stock_health/, seeds it
// through the same processor the seed command uses and clears cached
// dashboard responses.
func loadResults(ctx context.Context, dbURL string, recs []domain.ReorderRecommendation) error {
	sqlDB, err := sql.Open("pgx", dbURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	db := postgres.Wrap(sqlx.NewDb(sqlDB, "pgx"))
	defer db.Close()

	if err := postgres.EnsureSchema(ctx, db.DB); err != nil {
		return err
	}

	dir, err := os.MkdirTemp("", "stock_health_load")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "stock_health", time.Now().Format("20060102")+".csv")
	if err := writeOutput(path, recs, stock_health.FormatComplete); err != nil {
		return err
	}

	results := repository.NewStockHealthRepository(db)
	if err := analytics.NewProcessor(results, nil).ProcessFile(ctx, path); err != nil {
		return err
	}

	stockHealthCache, err := cache.NewStockHealthCache(config.Load().Cache)
	if err != nil {
		logger.Log.Warn().Err(err).Msg("Redis unavailable, cache not invalidated")
		return nil
	}
	service.NewStockHealthService(repository.NewStockRecordRepository(db), results, stockHealthCache, nil).InvalidateCache(ctx)
	return nil
}
