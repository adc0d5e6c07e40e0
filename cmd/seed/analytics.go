package main

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/andresuchdata/medstock/backend-go/internal/analytics"
	"github.com/andresuchdata/medstock/backend-go/internal/repository"
	"github.com/andresuchdata/medstock/backend-go/internal/service"
	"github.com/andresuchdata/medstock/backend-go/pkg/logger"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
)

func recordsCommand() *cli.Command {
	return &cli.Command{
		Name:      "records",
		Usage:     "Ingest a directory of stock record files (.csv or .xlsx)",
		ArgsUsage: "<dir>",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "no-refresh",
				Usage: "Skip the stock health refresh after ingesting",
			},
		},
		Action: ingestRecords,
	}
}

func ingestRecords(c *cli.Context) error {
	dir := c.Args().First()
	if dir == "" {
		return fmt.Errorf("records directory is required")
	}

	files, err := collectFiles(dir, ".csv", ".xlsx")
	if err != nil {
		return fmt.Errorf("error walking records directory: %w", err)
	}
	if len(files) == 0 {
		logger.Log.Warn().Str("dir", dir).Msg("No stock record files found")
		return nil
	}

	db, err := dbFromContext(c)
	if err != nil {
		return err
	}
	svc := newStockHealthService(db)

	uploads := make([]service.RecordFile, 0, len(files))
	for _, path := range files {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		uploads = append(uploads, service.RecordFile{Name: filepath.Base(path), Body: f})
	}

	total, err := svc.IngestFiles(c.Context, uploads)
	if err != nil {
		return fmt.Errorf("error ingesting %s: %w", dir, err)
	}
	logger.Log.Info().Int("files", len(files)).Int("records", total).Msg("Stock records ingested")

	if c.Bool("no-refresh") {
		return nil
	}
	return runRefresh(c)
}

func analyticsCommand() *cli.Command {
	return &cli.Command{
		Name:  "analytics",
		Usage: "Load pipeline CSV output (stock_records and stock_health directories)",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "stock-records-dir",
				Usage:   "Directory containing stock record CSV files",
				Value:   "./data/seeds/stock_records",
				EnvVars: []string{"STOCK_RECORDS_DIR"},
			},
			&cli.StringFlag{
				Name:    "stock-health-dir",
				Usage:   "Directory containing stock health CSV files",
				Value:   "./data/seeds/stock_health",
				EnvVars: []string{"STOCK_HEALTH_DIR"},
			},
			&cli.BoolFlag{
				Name:  "stock-health-only",
				Usage: "Only load stock health files, skip stock records",
			},
			&cli.BoolFlag{
				Name:  "records-only",
				Usage: "Only load stock record files, skip stock health",
			},
			&cli.IntFlag{
				Name:    "analytics-workers",
				Usage:   "Concurrent workers for stock record files",
				Value:   runtime.NumCPU(),
				EnvVars: []string{"ANALYTICS_WORKERS"},
			},
		},
		Action: seedAnalyticsData,
	}
}

// seedAnalyticsData loads stock record files concurrently and recomputes stock
// health over the full history, then loads the stock health files one at a
// time in name order. Each stock health file replaces the stored results, so
// the newest snapshot is left in place.
func seedAnalyticsData(c *cli.Context) error {
	healthOnly := c.Bool("stock-health-only")
	recordsOnly := c.Bool("records-only")
	if healthOnly && recordsOnly {
		return fmt.Errorf("cannot specify both --stock-health-only and --records-only")
	}

	db, err := dbFromContext(c)
	if err != nil {
		return err
	}
	processor := analytics.NewProcessor(repository.NewStockHealthRepository(db), repository.NewStockRecordRepository(db))
	svc := newStockHealthService(db)

	if !healthOnly {
		dir := c.String("stock-records-dir")
		files, err := collectFiles(dir, ".csv")
		if err != nil {
			return fmt.Errorf("error walking stock records directory: %w", err)
		}
		if len(files) == 0 {
			logger.Log.Info().Str("dir", dir).Msg("No stock record CSV files found")
		} else {
			workers := c.Int("analytics-workers")
			logger.Log.Info().Int("files", len(files)).Int("workers", workers).Msg("Processing stock record files")
			if err := processFilesWithWorkers(c.Context, files, workers, processor.ProcessFile); err != nil {
				return err
			}
			if err := refreshHook(svc)(c.Context); err != nil {
				return err
			}
		}
	}

	if !recordsOnly {
		dir := c.String("stock-health-dir")
		files, err := collectFiles(dir, ".csv")
		if err != nil {
			return fmt.Errorf("error walking stock health directory: %w", err)
		}
		if len(files) == 0 {
			logger.Log.Info().Str("dir", dir).Msg("No stock health CSV files found")
		} else {
			logger.Log.Info().Int("files", len(files)).Msg("Processing stock health files")
			if err := processFilesWithWorkers(c.Context, files, 1, processor.ProcessFile); err != nil {
				return err
			}
			svc.InvalidateCache(c.Context)
		}
	}

	return nil
}

func collectFiles(root string, exts ...string) ([]string, error) {
	files := make([]string, 0)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		for _, want := range exts {
			if ext == want {
				files = append(files, path)
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// processFilesWithWorkers runs fn over files with at most workers in flight
// and stops handing out files after the first failure.
func processFilesWithWorkers(ctx context.Context, files []string, workers int, fn func(context.Context, string) error) error {
	if len(files) == 0 {
		return nil
	}
	if workers < 1 {
		workers = 1
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, path := range files {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := fn(ctx, path); err != nil {
				return fmt.Errorf("error processing %s: %w", path, err)
			}
			return nil
		})
	}
	return g.Wait()
}
