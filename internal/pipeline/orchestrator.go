package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"time"
)

// Orchestrator runs a Pipeline over a set of local files grouped by snapshot date.
type Orchestrator struct {
	repo       RunStore
	cfg        PipelineConfig
	seed       SeedFunc
	afterBatch BatchHook
}

// BatchHook runs once a batch has been transformed and seeded.
type BatchHook func(ctx context.Context) error

// NewOrchestrator creates a new Orchestrator.
func NewOrchestrator(repo RunStore, cfg PipelineConfig, seed SeedFunc) *Orchestrator {
	return &Orchestrator{
		repo: repo,
		cfg:  cfg,
		seed: seed,
	}
}

// OnBatchComplete registers a hook that runs after every successful batch
// and after a retry pass.
func (o *Orchestrator) OnBatchComplete(hook BatchHook) {
	o.afterBatch = hook
}

func (o *Orchestrator) batchComplete(ctx context.Context) error {
	if o.afterBatch == nil {
		return nil
	}
	return o.afterBatch(ctx)
}

// Run groups the provided files by snapshot date (using p.GetSnapshotDate) and
// runs one Worker batch per date, oldest date first.
func (o *Orchestrator) Run(ctx context.Context, p Pipeline, files []string) error {
	if len(files) == 0 {
		return nil
	}

	byDate := make(map[time.Time][]string)
	for _, f := range files {
		date, err := p.GetSnapshotDate(filepath.Base(f))
		if err != nil {
			return fmt.Errorf("failed to get snapshot date for %s: %w", f, err)
		}

		date = date.Truncate(24 * time.Hour)
		byDate[date] = append(byDate[date], f)
	}

	dates := make([]time.Time, 0, len(byDate))
	for d := range byDate {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	worker := NewWorker(p, o.cfg, o.repo, o.seed)
	for _, date := range dates {
		if err := worker.ProcessBatch(ctx, date, byDate[date]); err != nil {
			return fmt.Errorf("failed to process batch for %s: %w", date.Format("2006-01-02"), err)
		}
		if err := o.batchComplete(ctx); err != nil {
			return fmt.Errorf("batch hook failed for %s: %w", date.Format("2006-01-02"), err)
		}
	}

	return nil
}

// RetryFailed reprocesses failed file jobs of p.
func (o *Orchestrator) RetryFailed(ctx context.Context, p Pipeline) error {
	if err := NewWorker(p, o.cfg, o.repo, o.seed).RetryFailed(ctx); err != nil {
		return err
	}
	if err := o.batchComplete(ctx); err != nil {
		return fmt.Errorf("batch hook failed after retry: %w", err)
	}
	return nil
}
