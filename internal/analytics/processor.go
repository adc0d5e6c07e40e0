// internal/analytics/processor.go
package analytics

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/andresuchdata/medstock/backend-go/internal/domain"
	"github.com/andresuchdata/medstock/backend-go/internal/pipeline/stock_health"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// RecommendationWriter stores the recommendations of one analysis run.
type RecommendationWriter interface {
	SaveResults(ctx context.Context, runID string, recs []domain.ReorderRecommendation) error
}

// RecordWriter appends raw stock records.
type RecordWriter interface {
	InsertStockRecords(ctx context.Context, records []domain.StockRecord) (int, error)
}

// Processor seeds the database from CSV files produced by the file pipeline
// or dropped into the records directory.
type Processor struct {
	recommendations RecommendationWriter
	records         RecordWriter
}

func NewProcessor(recommendations RecommendationWriter, records RecordWriter) *Processor {
	return &Processor{
		recommendations: recommendations,
		records:         records,
	}
}

// ProcessFile loads a CSV file, picking the loader from the name of the directory it lives in
func (p *Processor) ProcessFile(ctx context.Context, filePath string) error {
	dir := filepath.Base(filepath.Dir(filePath))
	log.Info().Str("file", filePath).Str("directory", dir).Msg("Processing file")

	switch dir {
	case "stock_health":
		return p.processRecommendationsFile(ctx, filePath)
	case "stock_records":
		return p.processRecordsFile(ctx, filePath)
	default:
		return fmt.Errorf("unknown file type in directory: %s", dir)
	}
}

func (p *Processor) processRecommendationsFile(ctx context.Context, filePath string) error {
	if p.recommendations == nil {
		return fmt.Errorf("no recommendation writer configured for %s", filePath)
	}

	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	recs, err := stock_health.ReadRecommendationsCSV(file)
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", filePath, err)
	}

	runID := runIDFromFile(filePath)
	if err := p.recommendations.SaveResults(ctx, runID, recs); err != nil {
		return fmt.Errorf("failed to save recommendations: %w", err)
	}

	log.Info().Str("file", filePath).Str("run_id", runID).Int("rows", len(recs)).Msg("Seeded recommendations")
	return nil
}

func (p *Processor) processRecordsFile(ctx context.Context, filePath string) error {
	if p.records == nil {
		return fmt.Errorf("no record writer configured for %s", filePath)
	}

	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	records, err := stock_health.ReadRecords(file)
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", filePath, err)
	}
	if err := stock_health.ValidateRecords(records); err != nil {
		return err
	}

	n, err := p.records.InsertStockRecords(ctx, records)
	if err != nil {
		return fmt.Errorf("failed to insert stock records: %w", err)
	}

	log.Info().Str("file", filePath).Int("rows", n).Msg("Seeded stock records")
	return nil
}

// runIDFromFile derives a stable run id from the file name. All parts flushed
// for one snapshot date share it.
func runIDFromFile(filePath string) string {
	name := strings.TrimSuffix(filepath.Base(filePath), filepath.Ext(filePath))
	if i := strings.Index(name, "_part"); i > 0 {
		name = name[:i]
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("stock_health/"+name)).String()
}
