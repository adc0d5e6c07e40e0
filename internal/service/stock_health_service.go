package service

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/andresuchdata/medstock/backend-go/internal/cache"
	"github.com/andresuchdata/medstock/backend-go/internal/domain"
	"github.com/andresuchdata/medstock/backend-go/internal/pipeline/stock_health"
	"github.com/andresuchdata/medstock/backend-go/internal/repository"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// RefreshResult describes one recomputation of the stored recommendations.
type RefreshResult struct {
	RunID    string        `json:"run_id"`
	Records  int           `json:"records"`
	Series   int           `json:"series"`
	Critical int           `json:"critical"`
	Warning  int           `json:"warning"`
	Duration time.Duration `json:"duration_ns"`
}

type StockHealthService struct {
	records  repository.StockRecordRepository
	results  repository.StockHealthRepository
	cache    cache.StockHealthCache
	analyzer *stock_health.Analyzer
}

func NewStockHealthService(
	records repository.StockRecordRepository,
	results repository.StockHealthRepository,
	cacheImpl cache.StockHealthCache,
	analyzer *stock_health.Analyzer,
) *StockHealthService {
	if cacheImpl == nil {
		cacheImpl = cache.NewNoopStockHealthCache()
	}
	if analyzer == nil {
		analyzer = stock_health.NewAnalyzer(stock_health.DefaultConfig())
	}
	return &StockHealthService{records: records, results: results, cache: cacheImpl, analyzer: analyzer}
}

// Refresh recomputes every series from the stored records and replaces the
// stored recommendations.
func (s *StockHealthService) Refresh(ctx context.Context) (*RefreshResult, error) {
	start := time.Now()

	// only the trailing window of each series affects its latest snapshot
	records, err := s.records.ListStockRecords(ctx, s.analyzer.Config().WindowSize)
	if err != nil {
		return nil, fmt.Errorf("load stock records: %w", err)
	}

	recs, err := s.analyzer.Analyze(ctx, records)
	if err != nil {
		return nil, fmt.Errorf("analyze stock records: %w", err)
	}

	runID := uuid.NewString()
	if err := s.results.SaveResults(ctx, runID, recs); err != nil {
		return nil, fmt.Errorf("save stock health: %w", err)
	}

	s.invalidate(ctx)

	alerts := stock_health.Summarize(recs, 0)
	result := &RefreshResult{
		RunID:    runID,
		Records:  len(records),
		Series:   len(recs),
		Critical: alerts.CriticalCount,
		Warning:  alerts.WarningCount,
		Duration: time.Since(start),
	}

	log.Info().
		Str("run_id", runID).
		Int("records", result.Records).
		Int("series", result.Series).
		Int("critical", result.Critical).
		Int("warning", result.Warning).
		Dur("took", result.Duration).
		Msg("stock health: refreshed")

	return result, nil
}

// RecordFile is one named stock record upload.
type RecordFile struct {
	Name string
	Body io.Reader
}

// IngestRecords parses a CSV or XLSX upload, validates it as a whole and
// appends the records. Nothing is stored when any record is invalid.
func (s *StockHealthService) IngestRecords(ctx context.Context, filename string, r io.Reader) (int, error) {
	return s.IngestFiles(ctx, []RecordFile{{Name: filename, Body: r}})
}

// IngestFiles parses and validates every file before storing anything, then
// appends all records in a single insert. One bad file rejects the whole set.
func (s *StockHealthService) IngestFiles(ctx context.Context, files []RecordFile) (int, error) {
	var records []domain.StockRecord
	for _, f := range files {
		parsed, err := parseRecordFile(f.Name, f.Body)
		if err != nil {
			return 0, err
		}
		if err := stock_health.ValidateRecords(parsed); err != nil {
			return 0, fmt.Errorf("%s: %w", f.Name, err)
		}
		records = append(records, parsed...)
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	n, err := s.records.InsertStockRecords(ctx, records)
	if err != nil {
		return 0, err
	}

	log.Info().Int("files", len(files)).Int("rows", n).Msg("stock health: records ingested")
	return n, nil
}

func parseRecordFile(filename string, r io.Reader) ([]domain.StockRecord, error) {
	var (
		records []domain.StockRecord
		err     error
	)
	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".csv", "":
		records, err = stock_health.ReadRecords(r)
	case ".xlsx":
		records, err = stock_health.ReadRecordsXLSX(r)
	default:
		return nil, fmt.Errorf("%w: unsupported file type %q", domain.ErrInvalidRecord, ext)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrInvalidRecord, filename, err)
	}
	return records, nil
}

// InvalidateCache drops every cached dashboard response. Loaders that write
// results outside Refresh call it once they are done.
func (s *StockHealthService) InvalidateCache(ctx context.Context) {
	s.invalidate(ctx)
}

func (s *StockHealthService) GetSummary(ctx context.Context, filter domain.StockHealthFilter) ([]domain.StockHealthSummary, error) {
	if summaries, ok, err := s.cache.GetSummary(ctx, filter); err == nil && ok {
		return summaries, nil
	} else if err != nil {
		log.Warn().Err(err).Msg("stock health: cache get summary failed")
	}

	summaries, err := s.results.GetStatusSummary(ctx, filter)
	if err != nil {
		return nil, err
	}
	if summaries == nil {
		summaries = make([]domain.StockHealthSummary, 0)
	}

	if err := s.cache.SetSummary(ctx, filter, summaries); err != nil {
		log.Warn().Err(err).Msg("stock health: cache set summary failed")
	}

	return summaries, nil
}

// GetRecommendations returns one page of recommendations in presentation order
// and the total number of matches.
func (s *StockHealthService) GetRecommendations(ctx context.Context, filter domain.StockHealthFilter) ([]domain.ReorderRecommendation, int, error) {
	if page, ok, err := s.cache.GetRecommendations(ctx, filter); err == nil && ok {
		return page.Items, page.Total, nil
	} else if err != nil {
		log.Warn().Err(err).Msg("stock health: cache get recommendations failed")
	}

	items, total, err := s.results.GetRecommendations(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	if err := s.cache.SetRecommendations(ctx, filter, &cache.RecommendationPage{Items: items, Total: total}); err != nil {
		log.Warn().Err(err).Msg("stock health: cache set recommendations failed")
	}

	return items, total, nil
}

// GetReorderList returns the CRITICAL and WARNING series, most urgent first.
func (s *StockHealthService) GetReorderList(ctx context.Context, filter domain.StockHealthFilter) ([]domain.ReorderRecommendation, error) {
	recs, err := s.all(ctx, filter)
	if err != nil {
		return nil, err
	}
	return stock_health.Actionable(recs), nil
}

// GetStatuses returns the current status of every series ordered by hospital
// and medicine.
func (s *StockHealthService) GetStatuses(ctx context.Context, filter domain.StockHealthFilter) ([]domain.StockStatus, error) {
	recs, err := s.all(ctx, filter)
	if err != nil {
		return nil, err
	}
	return stock_health.CurrentStatuses(recs), nil
}

func (s *StockHealthService) GetAlertSummary(ctx context.Context, filter domain.StockHealthFilter) (*domain.AlertSummary, error) {
	recs, err := s.all(ctx, filter)
	if err != nil {
		return nil, err
	}
	summary := stock_health.Summarize(recs, stock_health.DefaultUrgentItems)
	return &summary, nil
}

func (s *StockHealthService) GetHospitalBreakdown(ctx context.Context, filter domain.StockHealthFilter) ([]domain.HospitalBreakdown, error) {
	breakdown, err := s.results.GetHospitalBreakdown(ctx, filter)
	if err != nil {
		return nil, err
	}
	if breakdown == nil {
		breakdown = make([]domain.HospitalBreakdown, 0)
	}
	return breakdown, nil
}

func (s *StockHealthService) GetDashboard(ctx context.Context, filter domain.StockHealthFilter) (*domain.StockHealthDashboard, error) {
	summary, err := s.GetSummary(ctx, filter)
	if err != nil {
		return nil, err
	}

	breakdown, err := s.GetHospitalBreakdown(ctx, filter)
	if err != nil {
		return nil, err
	}

	recs, err := s.all(ctx, filter)
	if err != nil {
		return nil, err
	}

	return &domain.StockHealthDashboard{
		Summary:           summary,
		HospitalBreakdown: breakdown,
		Alerts:            stock_health.Summarize(recs, stock_health.DefaultUrgentItems),
		Reorder:           stock_health.Actionable(recs),
	}, nil
}

func (s *StockHealthService) GetAvailableDates(ctx context.Context, limit int) ([]time.Time, error) {
	dates, err := s.records.GetAvailableDates(ctx, limit)
	if err != nil {
		return nil, err
	}
	if dates == nil {
		dates = make([]time.Time, 0)
	}
	return dates, nil
}

// ExportCSV writes the stored recommendations matching filter in the given format.
func (s *StockHealthService) ExportCSV(ctx context.Context, w io.Writer, filter domain.StockHealthFilter, format stock_health.OutputFormat) error {
	recs, err := s.all(ctx, filter)
	if err != nil {
		return err
	}
	return stock_health.WriteRecommendationsCSV(w, recs, format)
}

// all returns every stored recommendation matching filter, ignoring pagination.
func (s *StockHealthService) all(ctx context.Context, filter domain.StockHealthFilter) ([]domain.ReorderRecommendation, error) {
	filter.Page, filter.PageSize = 0, 0
	recs, _, err := s.results.GetRecommendations(ctx, filter)
	return recs, err
}

func (s *StockHealthService) invalidate(ctx context.Context) {
	if err := s.cache.InvalidateAll(ctx); err != nil {
		log.Warn().Err(err).Msg("stock health: cache invalidation failed")
	}
}
