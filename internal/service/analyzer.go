package service

import (
	"github.com/andresuchdata/medstock/backend-go/internal/config"
	"github.com/andresuchdata/medstock/backend-go/internal/pipeline/stock_health"
)

// AnalyzerConfig maps the analytics settings onto the reorder policy.
// An all-zero policy keeps the defaults; otherwise buffers of 0 days are
// honored and only negative values fall back.
func AnalyzerConfig(cfg config.AnalyticsConfig) stock_health.Config {
	sc := stock_health.DefaultConfig()
	if cfg.WindowSize == 0 && cfg.CriticalBufferDays == 0 && cfg.WarningBufferDays == 0 {
		if cfg.Workers > 0 {
			sc.Workers = cfg.Workers
		}
		return sc
	}

	if cfg.WindowSize > 0 {
		sc.WindowSize = cfg.WindowSize
	}
	if cfg.CriticalBufferDays >= 0 {
		sc.CriticalBufferDays = cfg.CriticalBufferDays
	}
	if cfg.WarningBufferDays >= 0 {
		sc.WarningBufferDays = cfg.WarningBufferDays
	}
	if cfg.Workers > 0 {
		sc.Workers = cfg.Workers
	}
	return sc
}
