package analytics

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/andresuchdata/medstock/backend-go/internal/cache"
	"github.com/andresuchdata/medstock/backend-go/internal/domain"
	"github.com/andresuchdata/medstock/backend-go/internal/pipeline"
	"github.com/andresuchdata/medstock/backend-go/internal/pipeline/stock_health"
	"github.com/andresuchdata/medstock/backend-go/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryRunStore struct {
	mu   sync.Mutex
	runs []*pipeline.PipelineRun
	jobs []*pipeline.FileJob
}

func (m *memoryRunStore) CreatePipelineRun(_ context.Context, run *pipeline.PipelineRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run.ID = int64(len(m.runs) + 1)
	m.runs = append(m.runs, run)
	return nil
}

func (m *memoryRunStore) UpdatePipelineRun(context.Context, *pipeline.PipelineRun) error { return nil }

func (m *memoryRunStore) GetPipelineRun(_ context.Context, id int64) (*pipeline.PipelineRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.runs {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, nil
}

func (m *memoryRunStore) GetPipelineRunByDate(_ context.Context, name string, date time.Time) (*pipeline.PipelineRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.runs {
		if r.PipelineName == name && r.Date.Equal(date) {
			return r, nil
		}
	}
	return nil, nil
}

func (m *memoryRunStore) CreateFileJob(_ context.Context, job *pipeline.FileJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job.ID = int64(len(m.jobs) + 1)
	m.jobs = append(m.jobs, job)
	return nil
}

func (m *memoryRunStore) UpdateFileJob(context.Context, *pipeline.FileJob) error { return nil }

func (m *memoryRunStore) GetFailedFileJobs(context.Context, string, int) ([]*pipeline.FileJob, error) {
	return nil, nil
}

func (m *memoryRunStore) RecordFileProcessed(context.Context, int64, int) error { return nil }

// recordStore keeps inserted records and serves them back as the history.
type recordStore struct {
	mu      sync.Mutex
	records []domain.StockRecord
}

func (s *recordStore) InsertStockRecords(_ context.Context, records []domain.StockRecord) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, records...)
	return len(records), nil
}

func (s *recordStore) ListStockRecords(context.Context, int) ([]domain.StockRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.StockRecord(nil), s.records...), nil
}

func (s *recordStore) GetAvailableDates(context.Context, int) ([]time.Time, error) { return nil, nil }

type resultStore struct {
	fakeRecommendationWriter
	saves int
}

func (s *resultStore) SaveResults(ctx context.Context, runID string, recs []domain.ReorderRecommendation) error {
	s.saves++
	return s.fakeRecommendationWriter.SaveResults(ctx, runID, recs)
}

func (s *resultStore) GetStatusSummary(context.Context, domain.StockHealthFilter) ([]domain.StockHealthSummary, error) {
	return nil, nil
}

func (s *resultStore) GetRecommendations(context.Context, domain.StockHealthFilter) ([]domain.ReorderRecommendation, int, error) {
	return s.recs, len(s.recs), nil
}

func (s *resultStore) GetHospitalBreakdown(context.Context, domain.StockHealthFilter) ([]domain.HospitalBreakdown, error) {
	return nil, nil
}

type countingCache struct {
	cache.StockHealthCache
	invalidations int
}

func (c *countingCache) InvalidateAll(context.Context) error {
	c.invalidations++
	return nil
}

const recordHeader = "date,hospital_id,hospital_name,medicine_name,opening_stock,received,issued,closing_stock,lead_time_days,min_stock_level\n"

func TestStockHealthPipeline_AveragesAcrossFiles(t *testing.T) {
	dir := t.TempDir()
	files := []string{
		writeFile(t, dir, "in", "20250103.csv", recordHeader+
			"2025-01-01,H1,General,Insulin,200,0,10,190,5,10\n"+
			"2025-01-02,H1,General,Insulin,190,0,10,180,5,10\n"+
			"2025-01-03,H1,General,Insulin,180,0,10,170,5,10\n"),
		writeFile(t, dir, "in", "20250104.csv", recordHeader+
			"2025-01-04,H1,General,Insulin,170,0,100,70,5,10\n"),
	}

	outputDir := filepath.Join(dir, "seeds", "stock_records")
	p := stock_health.NewStockHealthPipeline(stock_health.Config{
		IntermediateDir: filepath.Join(dir, "intermediate"),
		OutputDir:       outputDir,
	})
	cfg := pipeline.DefaultPipelineConfig(p.Name())
	cfg.OutputDir = outputDir
	cfg.IntermediateDir = filepath.Join(dir, "intermediate")
	cfg.WorkerCount = 2

	records := &recordStore{}
	results := &resultStore{}
	c := &countingCache{StockHealthCache: cache.NewNoopStockHealthCache()}
	svc := service.NewStockHealthService(records, results, c, stock_health.NewAnalyzer(stock_health.DefaultConfig()))

	var averages []float64
	orch := pipeline.NewOrchestrator(&memoryRunStore{}, cfg, NewProcessor(results, records).ProcessFile)
	orch.OnBatchComplete(func(ctx context.Context) error {
		if _, err := svc.Refresh(ctx); err != nil {
			return err
		}
		require.Len(t, results.recs, 1)
		averages = append(averages, results.recs[0].AvgDailyUsage)
		return nil
	})

	require.NoError(t, orch.Run(context.Background(), p, files))

	assert.Len(t, records.records, 4)
	assert.Equal(t, []float64{10, 32.5}, averages)
	assert.Equal(t, 2, results.saves)
	assert.Equal(t, 2, c.invalidations)

	latest := results.recs[0]
	assert.Equal(t, 70, latest.CurrentStock)
	assert.Equal(t, domain.StatusWarning, latest.Status)
}
