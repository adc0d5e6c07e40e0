package pipeline

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

const runColumns = `id, pipeline_name, date, status, total_files,
		processed_files, total_rows, started_at, completed_at, COALESCE(error_message, '')`

const jobColumns = `fj.id, fj.pipeline_run_id, fj.file_path, fj.status, fj.rows,
		COALESCE(fj.error_message, ''), fj.processed_at, fj.retry_count`

// Repository tracks pipeline runs and file jobs in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new pipeline repository
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(s rowScanner) (*PipelineRun, error) {
	run := &PipelineRun{}
	err := s.Scan(
		&run.ID, &run.PipelineName, &run.Date, &run.Status,
		&run.TotalFiles, &run.ProcessedFiles, &run.TotalRows,
		&run.StartedAt, &run.CompletedAt, &run.ErrorMessage,
	)
	if err != nil {
		return nil, err
	}
	return run, nil
}

func scanJob(s rowScanner) (*FileJob, error) {
	job := &FileJob{}
	err := s.Scan(
		&job.ID, &job.PipelineRunID, &job.FilePath, &job.Status, &job.Rows,
		&job.ErrorMessage, &job.ProcessedAt, &job.RetryCount,
	)
	if err != nil {
		return nil, err
	}
	return job, nil
}

// CreatePipelineRun inserts a run and sets its ID
func (r *Repository) CreatePipelineRun(ctx context.Context, run *PipelineRun) error {
	query := `
		INSERT INTO pipeline_runs (
			pipeline_name, date, status, total_files,
			processed_files, total_rows, started_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`

	return r.db.QueryRowContext(
		ctx, query,
		run.PipelineName, run.Date, run.Status, run.TotalFiles,
		run.ProcessedFiles, run.TotalRows, run.StartedAt,
	).Scan(&run.ID)
}

// UpdatePipelineRun writes the status fields of a run. Counters are owned by
// RecordFileProcessed and are not overwritten here.
func (r *Repository) UpdatePipelineRun(ctx context.Context, run *PipelineRun) error {
	query := `
		UPDATE pipeline_runs
		SET status = $1, total_files = $2, completed_at = $3, error_message = $4
		WHERE id = $5
	`

	_, err := r.db.ExecContext(
		ctx, query,
		run.Status, run.TotalFiles, run.CompletedAt, run.ErrorMessage, run.ID,
	)
	return err
}

// GetPipelineRun retrieves a pipeline run by ID
func (r *Repository) GetPipelineRun(ctx context.Context, id int64) (*PipelineRun, error) {
	query := `SELECT ` + runColumns + ` FROM pipeline_runs WHERE id = $1`
	return scanRun(r.db.QueryRowContext(ctx, query, id))
}

// GetPipelineRunByDate returns the run of a pipeline for a snapshot date, or
// nil when there is none yet.
func (r *Repository) GetPipelineRunByDate(ctx context.Context, pipelineName string, date time.Time) (*PipelineRun, error) {
	query := `SELECT ` + runColumns + ` FROM pipeline_runs WHERE pipeline_name = $1 AND date = $2`

	run, err := scanRun(r.db.QueryRowContext(ctx, query, pipelineName, date))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return run, err
}

// ListRecentRuns returns the latest runs of a pipeline, newest first.
func (r *Repository) ListRecentRuns(ctx context.Context, pipelineName string, limit int) ([]*PipelineRun, error) {
	query := `SELECT ` + runColumns + `
		FROM pipeline_runs
		WHERE pipeline_name = $1
		ORDER BY started_at DESC
		LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, pipelineName, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*PipelineRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// CreateFileJob creates a new file job record
func (r *Repository) CreateFileJob(ctx context.Context, job *FileJob) error {
	query := `
		INSERT INTO pipeline_file_jobs (pipeline_run_id, file_path, status, error_message)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`

	return r.db.QueryRowContext(
		ctx, query,
		job.PipelineRunID, job.FilePath, job.Status, job.ErrorMessage,
	).Scan(&job.ID)
}

// UpdateFileJob updates an existing file job
func (r *Repository) UpdateFileJob(ctx context.Context, job *FileJob) error {
	query := `
		UPDATE pipeline_file_jobs
		SET status = $1, rows = $2, error_message = $3, processed_at = $4, retry_count = $5
		WHERE id = $6
	`

	_, err := r.db.ExecContext(
		ctx, query,
		job.Status, job.Rows, job.ErrorMessage, job.ProcessedAt, job.RetryCount, job.ID,
	)
	return err
}

// GetFailedFileJobs retrieves failed jobs that still have retries left
func (r *Repository) GetFailedFileJobs(ctx context.Context, pipelineName string, maxRetries int) ([]*FileJob, error) {
	query := `SELECT ` + jobColumns + `
		FROM pipeline_file_jobs fj
		JOIN pipeline_runs pr ON fj.pipeline_run_id = pr.id
		WHERE pr.pipeline_name = $1
		  AND fj.status = $2
		  AND fj.retry_count < $3
		ORDER BY fj.id`

	rows, err := r.db.QueryContext(ctx, query, pipelineName, FileStatusFailed, maxRetries)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*FileJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// RecordFileProcessed atomically bumps the processed file and row counters of a run
func (r *Repository) RecordFileProcessed(ctx context.Context, runID int64, rows int) error {
	query := `
		UPDATE pipeline_runs
		SET processed_files = processed_files + 1,
		    total_rows = total_rows + $1
		WHERE id = $2
	`

	_, err := r.db.ExecContext(ctx, query, rows, runID)
	return err
}
