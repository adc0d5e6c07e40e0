package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/andresuchdata/medstock/backend-go/internal/cache"
	"github.com/andresuchdata/medstock/backend-go/internal/config"
	"github.com/andresuchdata/medstock/backend-go/internal/domain"
	"github.com/andresuchdata/medstock/backend-go/internal/pipeline"
	"github.com/andresuchdata/medstock/backend-go/internal/pipeline/stock_health"
	"github.com/andresuchdata/medstock/backend-go/internal/repository"
	"github.com/andresuchdata/medstock/backend-go/internal/repository/postgres"
	"github.com/andresuchdata/medstock/backend-go/internal/service"
	"github.com/andresuchdata/medstock/backend-go/internal/storage"
	"github.com/andresuchdata/medstock/backend-go/pkg/logger"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/urfave/cli/v2"
)

type contextKey string

const dbKey contextKey = "db"

func newDBURLFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "db-url",
		Usage:   "Database connection string, defaults to the DB_* settings",
		EnvVars: []string{"DATABASE_URL"},
	}
}

func initDB(c *cli.Context) error {
	logger.SetLevel(c.String("log-level"))

	dsn := c.String("db-url")
	if dsn == "" {
		dsn = postgres.DSN(&config.Load().Database)
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.PingContext(c.Context); err != nil {
		db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	if err := postgres.EnsureSchema(c.Context, sqlx.NewDb(db, "pgx")); err != nil {
		db.Close()
		return err
	}

	c.Context = context.WithValue(c.Context, dbKey, db)
	return nil
}

func closeDB(c *cli.Context) error {
	if db, ok := c.Context.Value(dbKey).(*sql.DB); ok && db != nil {
		return db.Close()
	}
	return nil
}

func dbFromContext(c *cli.Context) (*postgres.DB, error) {
	db, ok := c.Context.Value(dbKey).(*sql.DB)
	if !ok || db == nil {
		return nil, fmt.Errorf("database connection not found in context")
	}
	return postgres.Wrap(sqlx.NewDb(db, "pgx")), nil
}

// newStockHealthService wires the service the way the server does, so a
// refresh from the CLI also clears the shared dashboard cache.
func newStockHealthService(db *postgres.DB) *service.StockHealthService {
	cfg := config.Load()

	stockHealthCache, err := cache.NewStockHealthCache(cfg.Cache)
	if err != nil {
		logger.Log.Warn().Err(err).Msg("Redis unavailable, cache will not be invalidated")
		stockHealthCache = cache.NewNoopStockHealthCache()
	}

	return service.NewStockHealthService(
		repository.NewStockRecordRepository(db),
		repository.NewStockHealthRepository(db),
		stockHealthCache,
		stock_health.NewAnalyzer(service.AnalyzerConfig(cfg.Analytics)),
	)
}

func main() {
	app := &cli.App{
		Name:  "seed",
		Usage: "Load stock records and compute stock health",
		Flags: []cli.Flag{
			newDBURLFlag(),
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level",
				Value:   "info",
				EnvVars: []string{"APP_LOG_LEVEL"},
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "migrate",
				Usage:  "Create the database schema",
				Action: func(c *cli.Context) error { return nil },
			},
			recordsCommand(),
			analyticsCommand(),
			stockHealthPipelineCommand(),
			retryCommand(),
			{
				Name:   "refresh",
				Usage:  "Recompute stock health from the stored records",
				Action: runRefresh,
			},
			{
				Name:  "runs",
				Usage: "List recent pipeline runs",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Value: 10, Usage: "Number of runs to show"},
				},
				Action: listRuns,
			},
			exportCommand(),
		},
	}

	for _, cmd := range app.Commands {
		cmd.Before = initDB
		cmd.After = closeDB
	}

	if err := app.Run(os.Args); err != nil {
		logger.Log.Fatal().Err(err).Msg("seed failed")
	}
}

func runRefresh(c *cli.Context) error {
	db, err := dbFromContext(c)
	if err != nil {
		return err
	}

	result, err := newStockHealthService(db).Refresh(c.Context)
	if err != nil {
		return err
	}

	fmt.Printf("run %s: %d records, %d series, %d critical, %d warning (%s)\n",
		result.RunID, result.Records, result.Series, result.Critical, result.Warning, result.Duration.Round(time.Millisecond))
	return nil
}

func listRuns(c *cli.Context) error {
	db, ok := c.Context.Value(dbKey).(*sql.DB)
	if !ok || db == nil {
		return fmt.Errorf("database connection not found in context")
	}

	runs, err := pipeline.NewRepository(db).ListRecentRuns(c.Context, pipelineName, c.Int("limit"))
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no pipeline runs recorded")
		return nil
	}

	for _, run := range runs {
		line := fmt.Sprintf("%d\t%s\t%s\t%d/%d files\t%d rows",
			run.ID, run.Date.Format("2006-01-02"), run.Status, run.ProcessedFiles, run.TotalFiles, run.TotalRows)
		if run.ErrorMessage != "" {
			line += "\t" + run.ErrorMessage
		}
		fmt.Println(line)
	}
	return nil
}

func exportCommand() *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Write the stored recommendations as CSV, optionally uploading to object storage",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "format",
				Usage: "complete or reorder",
				Value: string(stock_health.FormatReorder),
			},
			&cli.StringFlag{
				Name:  "output",
				Usage: "Output file, - for stdout",
				Value: "-",
			},
			&cli.BoolFlag{
				Name:  "upload",
				Usage: "Upload the export to the configured bucket",
			},
			&cli.StringFlag{
				Name:    "upload-prefix",
				Usage:   "Object key prefix for uploaded exports",
				Value:   "exports/",
				EnvVars: []string{"STORAGE_EXPORT_PREFIX"},
			},
		},
		Action: runExport,
	}
}

func runExport(c *cli.Context) error {
	format := stock_health.OutputFormat(strings.ToLower(c.String("format")))
	if format != stock_health.FormatComplete && format != stock_health.FormatReorder {
		return fmt.Errorf("unknown export format %q", c.String("format"))
	}

	db, err := dbFromContext(c)
	if err != nil {
		return err
	}

	var buf strings.Builder
	if err := newStockHealthService(db).ExportCSV(c.Context, &buf, domain.StockHealthFilter{}, format); err != nil {
		return err
	}

	switch output := c.String("output"); output {
	case "-":
		fmt.Print(buf.String())
	default:
		if err := os.MkdirAll(filepath.Dir(output), 0755); err != nil {
			return err
		}
		if err := os.WriteFile(output, []byte(buf.String()), 0644); err != nil {
			return err
		}
		logger.Log.Info().Str("file", output).Msg("Export written")
	}

	if !c.Bool("upload") {
		return nil
	}

	client, err := storage.NewS3Client(config.Load().Storage)
	if err != nil {
		return err
	}
	key := storage.ExportKey(c.String("upload-prefix"), fmt.Sprintf("stock_health_%s_%s.csv", format, time.Now().Format("20060102")))
	if err := client.UploadObject(c.Context, key, []byte(buf.String())); err != nil {
		return fmt.Errorf("failed to upload export: %w", err)
	}
	logger.Log.Info().Str("key", key).Msg("Export uploaded")
	return nil
}
