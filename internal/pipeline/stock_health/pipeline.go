package stock_health

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/andresuchdata/medstock/backend-go/internal/domain"
	"github.com/andresuchdata/medstock/backend-go/internal/pipeline"
)

// StockHealthPipeline implements the generic pipeline.Pipeline interface for
// stock record files. It validates and normalizes records only; a series can
// span many files, so analysis runs over the stored history once a batch is in.
type StockHealthPipeline struct {
	config Config
}

// NewStockHealthPipeline creates a new stock health pipeline instance.
func NewStockHealthPipeline(cfg Config) *StockHealthPipeline {
	if cfg.IntermediateDir == "" {
		cfg.IntermediateDir = filepath.Join("data", "intermediate", "stock_health")
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = filepath.Join("data", "seeds", "stock_records")
	}

	return &StockHealthPipeline{config: cfg.withDefaults()}
}

// Name returns the unique identifier of this pipeline.
func (p *StockHealthPipeline) Name() string {
	return "stock_health"
}

// GetOutputTable returns the target database table for analytics ingestion.
func (p *StockHealthPipeline) GetOutputTable() string {
	return "stock_records"
}

// Columns fixes the column order of the aggregated CSV.
func (p *StockHealthPipeline) Columns() []string {
	return RecordColumns
}

// GetSnapshotDate extracts the snapshot date from the filename using the configured format.
func (p *StockHealthPipeline) GetSnapshotDate(filename string) (time.Time, error) {
	base := filepath.Base(filename)
	base = strings.TrimSuffix(base, filepath.Ext(base))

	layout := p.config.InputDateFormat
	if len(base) < len(layout) {
		return time.Time{}, fmt.Errorf("filename %s does not contain date with layout %s", filename, layout)
	}

	return time.Parse(layout, base[:len(layout)])
}

// Validate performs basic validation on the input file.
func (p *StockHealthPipeline) Validate(inputFile string) error {
	info, err := os.Stat(inputFile)
	if err != nil {
		return fmt.Errorf("cannot stat input file %s: %w", inputFile, err)
	}
	if info.IsDir() {
		return fmt.Errorf("input path %s is a directory, expected file", inputFile)
	}
	ext := strings.ToLower(filepath.Ext(inputFile))
	if ext != ".csv" {
		return fmt.Errorf("unsupported file extension %s for %s (only CSV supported)", ext, inputFile)
	}
	return nil
}

// Transform reads and validates the stock records of one file and returns
// one row per record in the canonical record layout.
func (p *StockHealthPipeline) Transform(ctx context.Context, inputFile string) ([]pipeline.TransformedRow, error) {
	// 1) Parse snapshot date from filename
	snapshotDate, err := p.GetSnapshotDate(inputFile)
	if err != nil {
		return nil, fmt.Errorf("failed to parse snapshot date: %w", err)
	}

	// 2) Read and validate raw records
	records, err := p.readRecords(inputFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", inputFile, err)
	}
	if err := ValidateRecords(records); err != nil {
		return nil, fmt.Errorf("invalid records in %s: %w", inputFile, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if p.config.PersistDebugLayers {
		if err := p.writeIntermediate(snapshotDate, "1_validated", inputFile, func(f *os.File) error {
			return WriteRecordsCSV(f, records)
		}); err != nil {
			return nil, fmt.Errorf("failed to write validated intermediate: %w", err)
		}
	}

	// 3) Map to generic TransformedRow format expected by StreamingAggregator
	result := make([]pipeline.TransformedRow, 0, len(records))
	for _, rec := range records {
		data := make(map[string]interface{}, len(RecordColumns))
		for k, v := range recordFields(rec) {
			data[k] = v
		}
		result = append(result, pipeline.TransformedRow{Data: data})
	}

	return result, nil
}

func (p *StockHealthPipeline) readRecords(path string) ([]domain.StockRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return ReadRecords(f)
}

func (p *StockHealthPipeline) writeIntermediate(date time.Time, stage, inputFile string, write func(*os.File) error) error {
	if p.config.IntermediateDir == "" {
		return nil
	}

	baseDir := filepath.Join(p.config.IntermediateDir, stage, date.Format("20060102"))
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return err
	}

	path := filepath.Join(baseDir, filepath.Base(inputFile))
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return write(f)
}
