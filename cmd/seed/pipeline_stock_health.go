package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/andresuchdata/medstock/backend-go/internal/analytics"
	"github.com/andresuchdata/medstock/backend-go/internal/config"
	"github.com/andresuchdata/medstock/backend-go/internal/drive"
	"github.com/andresuchdata/medstock/backend-go/internal/pipeline"
	"github.com/andresuchdata/medstock/backend-go/internal/pipeline/stock_health"
	"github.com/andresuchdata/medstock/backend-go/internal/repository"
	"github.com/andresuchdata/medstock/backend-go/internal/repository/postgres"
	"github.com/andresuchdata/medstock/backend-go/internal/service"
	"github.com/andresuchdata/medstock/backend-go/internal/storage"
	"github.com/andresuchdata/medstock/backend-go/pkg/logger"
	"github.com/jmoiron/sqlx"
	"github.com/urfave/cli/v2"
)

const pipelineName = "stock_health"

// pipelineOutputTable is the directory name the processor loads into stock_records.
const pipelineOutputTable = "stock_records"

const (
	sourceLocal = "local"
	sourceDrive = "drive"
	sourceS3    = "s3"
)

func stockHealthPipelineFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "intermediate-dir",
			Usage:   "Root directory for stock health intermediate outputs",
			Value:   "./data/intermediate/stock_health",
			EnvVars: []string{"STOCK_HEALTH_INTERMEDIATE_DIR"},
		},
		&cli.StringFlag{
			Name:    "output-dir",
			Usage:   "Directory for consolidated validated record CSVs, must be named stock_records",
			Value:   "./data/seeds/stock_records",
			EnvVars: []string{"STOCK_HEALTH_OUTPUT_DIR"},
		},
		&cli.StringFlag{
			Name:    "input-date-format",
			Usage:   "Date format used in filenames to extract snapshot date (Go layout)",
			Value:   "20060102",
			EnvVars: []string{"STOCK_HEALTH_INPUT_DATE_FORMAT"},
		},
		&cli.BoolFlag{
			Name:    "persist-debug-layers",
			Usage:   "Persist the validated records layer for debugging",
			EnvVars: []string{"STOCK_HEALTH_PERSIST_DEBUG_LAYERS"},
		},
		&cli.IntFlag{
			Name:    "pipeline-workers",
			Usage:   "Number of concurrent file workers",
			Value:   runtime.NumCPU(),
			EnvVars: []string{"PIPELINE_WORKERS"},
		},
	}
}

func stockHealthPipelineCommand() *cli.Command {
	flags := append(stockHealthPipelineFlags(),
		&cli.StringFlag{
			Name:  "source",
			Usage: "Where stock record files come from: local, drive or s3",
			Value: sourceLocal,
		},
		&cli.StringFlag{
			Name:    "input-dir",
			Usage:   "Local directory of stock record files (source=local)",
			Value:   "./data/uploads/stock_records",
			EnvVars: []string{"STOCK_RECORDS_INPUT_DIR"},
		},
		&cli.StringFlag{
			Name:    "drive-folder-id",
			Usage:   "Google Drive folder ID holding stock record files (source=drive)",
			EnvVars: []string{"STOCK_DRIVE_FOLDER_ID"},
		},
		&cli.StringFlag{
			Name:  "object",
			Usage: "Single object key or path under the storage prefix (source=s3)",
		},
		&cli.StringFlag{
			Name:    "download-dir",
			Usage:   "Local directory where remote or converted files are staged",
			Value:   "./data/uploads/stock_health/raw",
			EnvVars: []string{"STOCK_HEALTH_DOWNLOAD_DIR"},
		},
	)

	return &cli.Command{
		Name:   "stock-health",
		Usage:  "Run the stock record file pipeline, load its output and refresh stock health",
		Flags:  flags,
		Action: runStockHealthPipeline,
	}
}

func retryCommand() *cli.Command {
	return &cli.Command{
		Name:   "retry",
		Usage:  "Retry failed stock health file jobs",
		Flags:  stockHealthPipelineFlags(),
		Action: retryStockHealthPipeline,
	}
}

func runStockHealthPipeline(c *cli.Context) error {
	ctx := c.Context

	localFiles, err := fetchSourceFiles(ctx, c)
	if err != nil {
		return err
	}
	if len(localFiles) == 0 {
		logger.Log.Info().Str("source", c.String("source")).Msg("No stock record files found; nothing to process")
		return nil
	}

	orch, pipelineImpl, err := newOrchestrator(c)
	if err != nil {
		return err
	}

	logger.Log.Info().Int("files", len(localFiles)).Msg("Running stock health pipeline")
	if err := orch.Run(ctx, pipelineImpl, localFiles); err != nil {
		return fmt.Errorf("stock health pipeline run failed: %w", err)
	}

	logger.Log.Info().Msg("Stock health pipeline completed successfully")
	return nil
}

func retryStockHealthPipeline(c *cli.Context) error {
	orch, pipelineImpl, err := newOrchestrator(c)
	if err != nil {
		return err
	}

	if err := orch.RetryFailed(c.Context, pipelineImpl); err != nil {
		return fmt.Errorf("stock health retry failed: %w", err)
	}
	logger.Log.Info().Msg("Stock health retry completed")
	return nil
}

func newOrchestrator(c *cli.Context) (*pipeline.Orchestrator, *stock_health.StockHealthPipeline, error) {
	sqlDB, ok := c.Context.Value(dbKey).(*sql.DB)
	if !ok || sqlDB == nil {
		return nil, nil, fmt.Errorf("database connection not found in context")
	}
	db := postgres.Wrap(sqlx.NewDb(sqlDB, "pgx"))

	outputDir := c.String("output-dir")
	if filepath.Base(filepath.Clean(outputDir)) != pipelineOutputTable {
		return nil, nil, fmt.Errorf("output-dir %s must end in a %s directory", outputDir, pipelineOutputTable)
	}
	intermediateDir := c.String("intermediate-dir")

	stockCfg := service.AnalyzerConfig(config.Load().Analytics)
	stockCfg.InputDateFormat = c.String("input-date-format")
	stockCfg.OutputDir = outputDir
	stockCfg.IntermediateDir = intermediateDir
	stockCfg.PersistDebugLayers = c.Bool("persist-debug-layers")
	pipelineImpl := stock_health.NewStockHealthPipeline(stockCfg)

	pCfg := pipeline.DefaultPipelineConfig(pipelineImpl.Name())
	pCfg.OutputDir = outputDir
	pCfg.IntermediateDir = intermediateDir
	pCfg.WorkerCount = c.Int("pipeline-workers")

	processor := analytics.NewProcessor(repository.NewStockHealthRepository(db), repository.NewStockRecordRepository(db))
	orch := pipeline.NewOrchestrator(pipeline.NewRepository(sqlDB), pCfg, processor.ProcessFile)
	orch.OnBatchComplete(refreshHook(newStockHealthService(db)))
	return orch, pipelineImpl, nil
}

// refreshHook recomputes stock health from the whole stored history once a
// batch of records has landed, which also clears the dashboard cache.
func refreshHook(svc service.Refresher) pipeline.BatchHook {
	return func(ctx context.Context) error {
		result, err := svc.Refresh(ctx)
		if err != nil {
			return err
		}
		logger.Log.Info().
			Str("run_id", result.RunID).
			Int("series", result.Series).
			Int("critical", result.Critical).
			Msg("Stock health refreshed after batch")
		return nil
	}
}

func fetchSourceFiles(ctx context.Context, c *cli.Context) ([]string, error) {
	downloadDir := c.String("download-dir")

	switch source := strings.ToLower(c.String("source")); source {
	case sourceLocal:
		return stageLocalFiles(c.String("input-dir"), downloadDir)

	case sourceDrive:
		folderID := c.String("drive-folder-id")
		if folderID == "" {
			return nil, fmt.Errorf("drive-folder-id is required")
		}
		creds := config.Load().Drive.CredentialsJSON
		if strings.TrimSpace(creds) == "" {
			return nil, fmt.Errorf("GOOGLE_DRIVE_CREDENTIALS_JSON env is required")
		}
		driveSvc, err := drive.NewService(ctx, creds)
		if err != nil {
			return nil, fmt.Errorf("failed to create Drive service: %w", err)
		}
		logger.Log.Info().Str("folder", folderID).Str("dir", downloadDir).Msg("Downloading stock record files from Drive")
		return drive.NewDownloader(driveSvc).DownloadFolderCSV(ctx, drive.DownloadOptions{
			FolderID:    folderID,
			DownloadDir: downloadDir,
		})

	case sourceS3:
		cfg := config.Load().Storage
		client, err := storage.NewS3Client(cfg)
		if err != nil {
			return nil, err
		}
		logger.Log.Info().Str("bucket", cfg.Bucket).Str("prefix", cfg.Prefix).Msg("Downloading stock record files from object storage")
		return storage.NewDownloader(client, downloadDir).Download(ctx, cfg.Prefix, c.String("object"))

	default:
		return nil, fmt.Errorf("unknown source %q (want local, drive or s3)", source)
	}
}

// stageLocalFiles returns the CSV files of inputDir and converts any workbook
// to a CSV under stageDir, since the pipeline only reads CSV.
func stageLocalFiles(inputDir, stageDir string) ([]string, error) {
	files, err := collectFiles(inputDir, ".csv", ".xlsx")
	if err != nil {
		return nil, fmt.Errorf("error walking input directory: %w", err)
	}

	staged := make([]string, 0, len(files))
	for _, path := range files {
		if strings.ToLower(filepath.Ext(path)) == ".csv" {
			staged = append(staged, path)
			continue
		}
		csvPath, err := convertWorkbook(path, stageDir)
		if err != nil {
			return nil, err
		}
		staged = append(staged, csvPath)
	}
	return staged, nil
}

func convertWorkbook(path, stageDir string) (string, error) {
	if err := os.MkdirAll(stageDir, 0755); err != nil {
		return "", err
	}

	in, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer in.Close()

	csvPath := filepath.Join(stageDir, strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))+".csv")
	out, err := os.Create(csvPath)
	if err != nil {
		return "", err
	}
	defer out.Close()

	if err := stock_health.XLSXToCSV(in, out); err != nil {
		return "", fmt.Errorf("failed to convert %s: %w", path, err)
	}
	return csvPath, nil
}
