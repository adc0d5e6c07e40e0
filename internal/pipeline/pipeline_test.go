package pipeline

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePipeline emits one row per line of the input file.
type fakePipeline struct {
	failOn  string
	columns []string
}

func (f *fakePipeline) Name() string           { return "fake" }
func (f *fakePipeline) GetOutputTable() string { return "fake_rows" }
func (f *fakePipeline) Validate(string) error  { return nil }

func (f *fakePipeline) GetSnapshotDate(filename string) (time.Time, error) {
	return time.Parse("20060102", filename[:8])
}

func (f *fakePipeline) Transform(_ context.Context, inputFile string) ([]TransformedRow, error) {
	if f.failOn != "" && strings.Contains(inputFile, f.failOn) {
		return nil, errors.New("boom")
	}
	data, err := os.ReadFile(inputFile)
	if err != nil {
		return nil, err
	}
	var rows []TransformedRow
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		rows = append(rows, TransformedRow{Data: map[string]interface{}{"value": line, "file": filepath.Base(inputFile)}})
	}
	return rows, nil
}

type orderedPipeline struct{ fakePipeline }

func (o *orderedPipeline) Columns() []string { return []string{"value", "file"} }

// memoryRunStore keeps runs and jobs in memory.
type memoryRunStore struct {
	mu     sync.Mutex
	nextID int64
	runs   map[int64]*PipelineRun
	jobs   map[int64]*FileJob
}

func newMemoryRunStore() *memoryRunStore {
	return &memoryRunStore{runs: map[int64]*PipelineRun{}, jobs: map[int64]*FileJob{}}
}

func (m *memoryRunStore) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *memoryRunStore) CreatePipelineRun(_ context.Context, run *PipelineRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run.ID = m.id()
	cp := *run
	m.runs[run.ID] = &cp
	return nil
}

func (m *memoryRunStore) UpdatePipelineRun(_ context.Context, run *PipelineRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := m.runs[run.ID]
	stored.Status, stored.TotalFiles, stored.CompletedAt, stored.ErrorMessage =
		run.Status, run.TotalFiles, run.CompletedAt, run.ErrorMessage
	return nil
}

func (m *memoryRunStore) GetPipelineRun(_ context.Context, id int64) (*PipelineRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok {
		return nil, fmt.Errorf("run %d not found", id)
	}
	cp := *run
	return &cp, nil
}

func (m *memoryRunStore) GetPipelineRunByDate(_ context.Context, name string, date time.Time) (*PipelineRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, run := range m.runs {
		if run.PipelineName == name && run.Date.Equal(date) {
			cp := *run
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memoryRunStore) CreateFileJob(_ context.Context, job *FileJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job.ID = m.id()
	cp := *job
	m.jobs[job.ID] = &cp
	return nil
}

func (m *memoryRunStore) UpdateFileJob(_ context.Context, job *FileJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *job
	m.jobs[job.ID] = &cp
	return nil
}

func (m *memoryRunStore) GetFailedFileJobs(_ context.Context, _ string, maxRetries int) ([]*FileJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*FileJob
	for _, job := range m.jobs {
		if job.Status == FileStatusFailed && job.RetryCount < maxRetries {
			cp := *job
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memoryRunStore) RecordFileProcessed(_ context.Context, runID int64, rows int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[runID].ProcessedFiles++
	m.runs[runID].TotalRows += rows
	return nil
}

func writeInput(t *testing.T, dir, name string, lines ...string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")), 0644))
	return path
}

func testConfig(dir string) PipelineConfig {
	cfg := DefaultPipelineConfig("fake")
	cfg.OutputDir = filepath.Join(dir, "out")
	cfg.WorkerCount = 2
	return cfg
}

func TestOrchestrator_RunSeedsOneCSVPerDate(t *testing.T) {
	dir := t.TempDir()
	files := []string{
		writeInput(t, dir, "20250102_a.csv", "a1", "a2"),
		writeInput(t, dir, "20250101_b.csv", "b1"),
		writeInput(t, dir, "20250102_c.csv", "c1"),
	}

	var seeded []string
	store := newMemoryRunStore()
	o := NewOrchestrator(store, testConfig(dir), func(_ context.Context, csvPath string) error {
		seeded = append(seeded, filepath.Base(csvPath))
		return nil
	})

	require.NoError(t, o.Run(context.Background(), &fakePipeline{}, files))

	assert.Equal(t, []string{"20250101.csv", "20250102.csv"}, seeded)
	require.Len(t, store.runs, 2)
	for _, run := range store.runs {
		assert.Equal(t, StatusCompleted, run.Status)
		assert.Equal(t, run.TotalFiles, run.ProcessedFiles)
	}

	f, err := os.Open(filepath.Join(dir, "out", "20250102.csv"))
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, []string{"file", "value"}, rows[0])
	assert.Len(t, rows, 4)
}

func TestOrchestrator_BatchHookRunsAfterEachBatch(t *testing.T) {
	dir := t.TempDir()
	files := []string{
		writeInput(t, dir, "20250102_a.csv", "a1"),
		writeInput(t, dir, "20250101_b.csv", "b1"),
	}

	var events []string
	o := NewOrchestrator(newMemoryRunStore(), testConfig(dir), func(_ context.Context, csvPath string) error {
		events = append(events, "seed "+filepath.Base(csvPath))
		return nil
	})
	o.OnBatchComplete(func(context.Context) error {
		events = append(events, "hook")
		return nil
	})

	require.NoError(t, o.Run(context.Background(), &fakePipeline{}, files))
	assert.Equal(t, []string{"seed 20250101.csv", "hook", "seed 20250102.csv", "hook"}, events)

	events = nil
	require.NoError(t, o.RetryFailed(context.Background(), &fakePipeline{}))
	assert.Equal(t, []string{"hook"}, events)
}

func TestOrchestrator_BatchHookErrorStopsRun(t *testing.T) {
	dir := t.TempDir()
	files := []string{
		writeInput(t, dir, "20250101_a.csv", "a1"),
		writeInput(t, dir, "20250102_b.csv", "b1"),
	}

	hooks := 0
	o := NewOrchestrator(newMemoryRunStore(), testConfig(dir), nil)
	o.OnBatchComplete(func(context.Context) error {
		hooks++
		return errors.New("refresh failed")
	})

	err := o.Run(context.Background(), &fakePipeline{}, files)

	require.ErrorContains(t, err, "batch hook failed for 2025-01-01")
	assert.Equal(t, 1, hooks)
}

func TestWorker_FailedFileFailsRun(t *testing.T) {
	dir := t.TempDir()
	files := []string{
		writeInput(t, dir, "20250101_ok.csv", "x"),
		writeInput(t, dir, "20250101_bad.csv", "y"),
	}
	store := newMemoryRunStore()
	w := NewWorker(&fakePipeline{failOn: "bad"}, testConfig(dir), store, nil)

	err := w.ProcessBatch(context.Background(), time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), files)

	require.ErrorContains(t, err, "transformation failed")
	run := store.runs[1]
	assert.Equal(t, StatusFailed, run.Status)
	assert.NotNil(t, run.CompletedAt)

	failed, err := store.GetFailedFileJobs(context.Background(), "fake", 3)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Contains(t, failed[0].FilePath, "bad")
	assert.Equal(t, 1, failed[0].RetryCount)
}

func TestWorker_RetryFailedReprocessesJobs(t *testing.T) {
	dir := t.TempDir()
	bad := writeInput(t, dir, "20250101_bad.csv", "y")
	store := newMemoryRunStore()
	p := &fakePipeline{failOn: "bad"}
	cfg := testConfig(dir)
	date := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	require.Error(t, NewWorker(p, cfg, store, nil).ProcessBatch(context.Background(), date, []string{bad}))

	p.failOn = ""
	seeds := 0
	w := NewWorker(p, cfg, store, func(context.Context, string) error { seeds++; return nil })
	require.NoError(t, w.RetryFailed(context.Background()))

	assert.Equal(t, 1, seeds)
	failed, err := store.GetFailedFileJobs(context.Background(), "fake", 3)
	require.NoError(t, err)
	assert.Empty(t, failed)
}

func TestStreamingAggregator_FlushesAtBatchSize(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)
	cfg.BatchSize = 2

	var flushed []string
	sa := NewStreamingAggregator(&orderedPipeline{}, cfg, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		func(_ context.Context, p string) error {
			flushed = append(flushed, filepath.Base(p))
			return nil
		})
	row := []TransformedRow{{Data: map[string]interface{}{"value": 1, "file": "f"}}}

	require.NoError(t, sa.AddFileData(context.Background(), row))
	files, _ := sa.GetBufferStats()
	assert.Equal(t, 1, files)

	require.NoError(t, sa.AddFileData(context.Background(), row))
	require.NoError(t, sa.AddFileData(context.Background(), row))
	require.NoError(t, sa.Finalize(context.Background()))

	assert.Equal(t, []string{"20250301.csv", "20250301_part2.csv"}, flushed)

	data, err := os.ReadFile(filepath.Join(cfg.OutputDir, "20250301.csv"))
	require.NoError(t, err)
	assert.Equal(t, "value,file\n1,f\n1,f\n", string(data))
}

func TestStreamingAggregator_FinalizeEmptyIsNoop(t *testing.T) {
	called := false
	sa := NewStreamingAggregator(&fakePipeline{}, testConfig(t.TempDir()), time.Now(),
		func(context.Context, string) error { called = true; return nil })

	require.NoError(t, sa.Finalize(context.Background()))
	assert.False(t, called)
}
