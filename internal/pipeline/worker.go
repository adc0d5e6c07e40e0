package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Worker processes the files of one snapshot date for a pipeline
type Worker struct {
	pipeline   Pipeline
	config     PipelineConfig
	repo       RunStore
	seed       SeedFunc
	aggregator *StreamingAggregator
}

// NewWorker creates a new pipeline worker. seed is called with every
// aggregated CSV the worker flushes.
func NewWorker(pipeline Pipeline, config PipelineConfig, repo RunStore, seed SeedFunc) *Worker {
	return &Worker{
		pipeline: pipeline,
		config:   config,
		repo:     repo,
		seed:     seed,
	}
}

func (w *Worker) newAggregator(date time.Time) *StreamingAggregator {
	return NewStreamingAggregator(w.pipeline, w.config, date, func(ctx context.Context, csvPath string) error {
		if w.seed == nil {
			return nil
		}
		log.Info().Str("pipeline", w.pipeline.Name()).Str("file", csvPath).Msg("Seeding aggregated data")
		return w.seed(ctx, csvPath)
	})
}

// ProcessBatch processes a batch of files for a specific date
func (w *Worker) ProcessBatch(ctx context.Context, date time.Time, files []string) error {
	logger := log.With().Str("pipeline", w.pipeline.Name()).Str("date", date.Format("2006-01-02")).Logger()
	logger.Info().Int("files", len(files)).Msg("Starting batch processing")

	run, err := w.getOrCreatePipelineRun(ctx, date, len(files))
	if err != nil {
		return fmt.Errorf("failed to create pipeline run: %w", err)
	}

	w.aggregator = w.newAggregator(date)

	jobs := make([]*FileJob, len(files))
	for i, file := range files {
		job := &FileJob{
			PipelineRunID: run.ID,
			FilePath:      file,
			Status:        FileStatusQueued,
		}
		if err := w.repo.CreateFileJob(ctx, job); err != nil {
			return fmt.Errorf("failed to create file job: %w", err)
		}
		jobs[i] = job
	}

	run.Status = StatusProcessing
	if err := w.repo.UpdatePipelineRun(ctx, run); err != nil {
		return fmt.Errorf("failed to update pipeline run: %w", err)
	}

	if err := w.processFilesParallel(ctx, run, jobs); err != nil {
		w.failRun(ctx, run, err.Error())
		return err
	}

	if err := w.aggregator.Finalize(ctx); err != nil {
		w.failRun(ctx, run, fmt.Sprintf("aggregation failed: %v", err))
		return fmt.Errorf("failed to finalize aggregation: %w", err)
	}

	run.Status = StatusCompleted
	now := time.Now()
	run.CompletedAt = &now
	if err := w.repo.UpdatePipelineRun(ctx, run); err != nil {
		return fmt.Errorf("failed to complete pipeline run: %w", err)
	}

	logger.Info().Int64("run_id", run.ID).Int("files", len(files)).Msg("Batch processing completed")
	return nil
}

func (w *Worker) failRun(ctx context.Context, run *PipelineRun, msg string) {
	run.Status = StatusFailed
	run.ErrorMessage = msg
	now := time.Now()
	run.CompletedAt = &now
	if err := w.repo.UpdatePipelineRun(ctx, run); err != nil {
		log.Error().Err(err).Int64("run_id", run.ID).Msg("Failed to mark pipeline run as failed")
	}
}

// processFilesParallel processes files using a worker pool. Every file is
// attempted; the first failure is returned.
func (w *Worker) processFilesParallel(ctx context.Context, run *PipelineRun, jobs []*FileJob) error {
	workerCount := w.config.WorkerCount
	if workerCount < 1 {
		workerCount = 1
	}

	jobChan := make(chan *FileJob)
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)

	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for job := range jobChan {
				if err := w.processFile(ctx, run, job); err != nil {
					log.Error().Err(err).
						Str("pipeline", w.pipeline.Name()).
						Int("worker", workerID).
						Str("file", job.FilePath).
						Msg("Failed to process file")
					mu.Lock()
					if firstErr == nil {
						firstErr = err
					}
					mu.Unlock()
				}
			}
		}(i)
	}

	var enqueueErr error
enqueue:
	for _, job := range jobs {
		select {
		case <-ctx.Done():
			enqueueErr = ctx.Err()
			break enqueue
		case jobChan <- job:
		}
	}
	close(jobChan)
	wg.Wait()

	if enqueueErr != nil {
		return enqueueErr
	}
	return firstErr
}

// processFile processes a single file
func (w *Worker) processFile(ctx context.Context, run *PipelineRun, job *FileJob) error {
	start := time.Now()

	job.Status = FileStatusProcessing
	if err := w.repo.UpdateFileJob(ctx, job); err != nil {
		return err
	}

	if err := w.pipeline.Validate(job.FilePath); err != nil {
		return w.markJobFailed(ctx, job, fmt.Errorf("validation failed: %w", err))
	}

	rows, err := w.pipeline.Transform(ctx, job.FilePath)
	if err != nil {
		return w.markJobFailed(ctx, job, fmt.Errorf("transformation failed: %w", err))
	}

	if err := w.aggregator.AddFileData(ctx, rows); err != nil {
		return w.markJobFailed(ctx, job, fmt.Errorf("aggregation failed: %w", err))
	}

	job.Status = FileStatusCompleted
	job.Rows = len(rows)
	job.ErrorMessage = ""
	now := time.Now()
	job.ProcessedAt = &now
	if err := w.repo.UpdateFileJob(ctx, job); err != nil {
		return err
	}

	if err := w.repo.RecordFileProcessed(ctx, run.ID, len(rows)); err != nil {
		log.Warn().Err(err).Int64("run_id", run.ID).Msg("Failed to update run counters")
	}

	log.Info().
		Str("pipeline", w.pipeline.Name()).
		Str("file", job.FilePath).
		Int("rows", len(rows)).
		Dur("took", time.Since(start)).
		Msg("Processed file")

	return nil
}

// markJobFailed records the failure on the job and returns err
func (w *Worker) markJobFailed(ctx context.Context, job *FileJob, err error) error {
	job.Status = FileStatusFailed
	job.ErrorMessage = err.Error()
	job.RetryCount++

	if uerr := w.repo.UpdateFileJob(ctx, job); uerr != nil {
		log.Error().Err(uerr).Str("file", job.FilePath).Msg("Failed to update job status")
	}

	if job.RetryCount < w.config.RetryAttempts {
		log.Warn().
			Str("pipeline", w.pipeline.Name()).
			Str("file", job.FilePath).
			Int("attempt", job.RetryCount).
			Int("max_attempts", w.config.RetryAttempts).
			Msg("File will be retried by RetryFailed")
	}

	return err
}

func (w *Worker) getOrCreatePipelineRun(ctx context.Context, date time.Time, totalFiles int) (*PipelineRun, error) {
	run, err := w.repo.GetPipelineRunByDate(ctx, w.pipeline.Name(), date)
	if err != nil {
		return nil, err
	}

	if run != nil {
		if run.TotalFiles != totalFiles {
			run.TotalFiles = totalFiles
			if err := w.repo.UpdatePipelineRun(ctx, run); err != nil {
				return nil, err
			}
		}
		return run, nil
	}

	run = &PipelineRun{
		PipelineName: w.pipeline.Name(),
		Date:         date,
		Status:       StatusPending,
		TotalFiles:   totalFiles,
		StartedAt:    time.Now(),
	}
	if err := w.repo.CreatePipelineRun(ctx, run); err != nil {
		return nil, err
	}

	return run, nil
}

// RetryFailed reprocesses failed jobs that still have attempts left, one run at a time
func (w *Worker) RetryFailed(ctx context.Context) error {
	jobs, err := w.repo.GetFailedFileJobs(ctx, w.pipeline.Name(), w.config.RetryAttempts)
	if err != nil {
		return fmt.Errorf("failed to get failed jobs: %w", err)
	}

	if len(jobs) == 0 {
		log.Info().Str("pipeline", w.pipeline.Name()).Msg("No failed jobs to retry")
		return nil
	}

	log.Info().Str("pipeline", w.pipeline.Name()).Int("jobs", len(jobs)).Msg("Retrying failed jobs")

	var runIDs []int64
	jobsByRun := make(map[int64][]*FileJob)
	for _, job := range jobs {
		if _, ok := jobsByRun[job.PipelineRunID]; !ok {
			runIDs = append(runIDs, job.PipelineRunID)
		}
		jobsByRun[job.PipelineRunID] = append(jobsByRun[job.PipelineRunID], job)
	}

	var errs []error
	for _, runID := range runIDs {
		run, err := w.repo.GetPipelineRun(ctx, runID)
		if err != nil {
			errs = append(errs, fmt.Errorf("run %d: %w", runID, err))
			continue
		}

		w.aggregator = w.newAggregator(run.Date)
		if err := w.processFilesParallel(ctx, run, jobsByRun[runID]); err != nil {
			errs = append(errs, fmt.Errorf("run %d: %w", runID, err))
			continue
		}
		if err := w.aggregator.Finalize(ctx); err != nil {
			errs = append(errs, fmt.Errorf("run %d: finalize: %w", runID, err))
		}
	}

	return errors.Join(errs...)
}
