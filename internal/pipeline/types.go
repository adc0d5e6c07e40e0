package pipeline

import (
	"context"
	"time"
)

// Pipeline defines the interface that all file pipelines must implement
type Pipeline interface {
	// Name returns the unique identifier for this pipeline
	Name() string

	// Transform processes a single input file and returns one row per output record
	Transform(ctx context.Context, inputFile string) ([]TransformedRow, error)

	// GetOutputTable returns the table the seeded rows end up in
	GetOutputTable() string

	// GetSnapshotDate extracts the date from the filename
	GetSnapshotDate(filename string) (time.Time, error)

	// Validate checks if the input file is valid for this pipeline
	Validate(inputFile string) error
}

// ColumnOrderer is implemented by pipelines that want the aggregated CSV
// written with a fixed column order. Other pipelines get sorted keys.
type ColumnOrderer interface {
	Columns() []string
}

// TransformedRow represents a single row of transformed data keyed by column name
type TransformedRow struct {
	Data map[string]interface{}
}

// SeedFunc loads an aggregated CSV into its destination.
type SeedFunc func(ctx context.Context, csvPath string) error

// PipelineConfig holds configuration for a pipeline instance
type PipelineConfig struct {
	Name            string
	BatchSize       int           // Number of files to buffer before flushing
	BatchSizeBytes  int64         // Size in bytes to buffer before flushing
	FlushInterval   time.Duration // Max time to wait before flushing
	WorkerCount     int           // Number of concurrent workers
	OutputDir       string        // Directory for final aggregated CSVs
	IntermediateDir string        // Directory for per-file outputs
	RetryAttempts   int
}

// DefaultPipelineConfig returns the defaults used by the seed command
func DefaultPipelineConfig(name string) PipelineConfig {
	return PipelineConfig{
		Name:            name,
		BatchSize:       5,
		BatchSizeBytes:  10 * 1024 * 1024, // 10MB
		FlushInterval:   5 * time.Minute,
		WorkerCount:     4,
		OutputDir:       "data/seeds/" + name,
		IntermediateDir: "data/intermediate/" + name,
		RetryAttempts:   3,
	}
}

// PipelineStatus represents the current state of a pipeline run
type PipelineStatus string

const (
	StatusPending    PipelineStatus = "pending"
	StatusProcessing PipelineStatus = "processing"
	StatusCompleted  PipelineStatus = "completed"
	StatusFailed     PipelineStatus = "failed"
)

// FileJobStatus represents the state of a single file processing job
type FileJobStatus string

const (
	FileStatusQueued     FileJobStatus = "queued"
	FileStatusProcessing FileJobStatus = "processing"
	FileStatusCompleted  FileJobStatus = "completed"
	FileStatusFailed     FileJobStatus = "failed"
)

// PipelineRun tracks a single execution of a pipeline for one snapshot date
type PipelineRun struct {
	ID             int64
	PipelineName   string
	Date           time.Time
	Status         PipelineStatus
	TotalFiles     int
	ProcessedFiles int
	TotalRows      int
	StartedAt      time.Time
	CompletedAt    *time.Time
	ErrorMessage   string
}

// FileJob tracks the processing of a single file
type FileJob struct {
	ID            int64
	PipelineRunID int64
	FilePath      string
	Status        FileJobStatus
	Rows          int
	ErrorMessage  string
	ProcessedAt   *time.Time
	RetryCount    int
}

// RunStore persists run and file job progress.
type RunStore interface {
	CreatePipelineRun(ctx context.Context, run *PipelineRun) error
	UpdatePipelineRun(ctx context.Context, run *PipelineRun) error
	GetPipelineRun(ctx context.Context, id int64) (*PipelineRun, error)
	GetPipelineRunByDate(ctx context.Context, pipelineName string, date time.Time) (*PipelineRun, error)
	CreateFileJob(ctx context.Context, job *FileJob) error
	UpdateFileJob(ctx context.Context, job *FileJob) error
	GetFailedFileJobs(ctx context.Context, pipelineName string, maxRetries int) ([]*FileJob, error)
	RecordFileProcessed(ctx context.Context, runID int64, rows int) error
}
