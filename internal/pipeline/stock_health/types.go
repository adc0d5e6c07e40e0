package stock_health

import (
	"runtime"

	"github.com/andresuchdata/medstock/backend-go/internal/domain"
)

const (
	DefaultWindowSize         = 7  // trailing records averaged for daily usage
	DefaultCriticalBufferDays = 30 // days of cover added on top of lead time for CRITICAL reorders
	DefaultWarningBufferDays  = 15 // days of cover added on top of lead time for WARNING reorders
)

// Config holds configuration for the stock health analytics and its file pipeline.
// A policy with WindowSize, CriticalBufferDays and WarningBufferDays all zero
// is unset and takes the defaults above. Otherwise a buffer of 0 days is kept
// and only negative buffers fall back.
type Config struct {
	WindowSize         int // records in the trailing usage window, current row included
	CriticalBufferDays int
	WarningBufferDays  int
	Workers            int // concurrent series workers, defaults to runtime.NumCPU()

	InputDateFormat string // Date format in input filenames
	OutputDir       string // Directory for aggregated record CSVs

	// IntermediateDir is the root directory for per-file intermediate outputs
	// The pipeline will use the following subdirectories under this root:
	//   1_validated/     - parsed and validated stock records (only if PersistDebugLayers is true)
	IntermediateDir    string
	PersistDebugLayers bool
}

// DefaultConfig returns the standard reorder policy.
func DefaultConfig() Config {
	return Config{
		WindowSize:         DefaultWindowSize,
		CriticalBufferDays: DefaultCriticalBufferDays,
		WarningBufferDays:  DefaultWarningBufferDays,
		Workers:            runtime.NumCPU(),
		InputDateFormat:    "20060102",
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.WindowSize == 0 && c.CriticalBufferDays == 0 && c.WarningBufferDays == 0 {
		c.CriticalBufferDays = d.CriticalBufferDays
		c.WarningBufferDays = d.WarningBufferDays
	}
	if c.WindowSize < 1 {
		c.WindowSize = d.WindowSize
	}
	if c.CriticalBufferDays < 0 {
		c.CriticalBufferDays = d.CriticalBufferDays
	}
	if c.WarningBufferDays < 0 {
		c.WarningBufferDays = d.WarningBufferDays
	}
	if c.Workers < 1 {
		c.Workers = d.Workers
	}
	if c.InputDateFormat == "" {
		c.InputDateFormat = d.InputDateFormat
	}
	return c
}

// Series is the date-ordered sequence of records for one (hospital, medicine) pair.
type Series struct {
	Key     domain.SeriesKey
	Records []domain.StockRecord
}

// Snapshot is the latest record of a series together with its trailing usage.
type Snapshot struct {
	Record        domain.StockRecord
	AvgDailyUsage float64
}

// OutputFormat defines the type of output CSV to generate
type OutputFormat string

const (
	FormatComplete OutputFormat = "complete" // every series with all columns
	FormatReorder  OutputFormat = "reorder"  // CRITICAL and WARNING series in urgency order
)
