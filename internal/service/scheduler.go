package service

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Refresher recomputes stored stock health.
type Refresher interface {
	Refresh(ctx context.Context) (*RefreshResult, error)
}

// RunRefreshLoop refreshes once immediately and then on every tick until ctx
// is cancelled. A failed refresh is logged and retried on the next tick.
func RunRefreshLoop(ctx context.Context, r Refresher, interval time.Duration) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Info().Dur("interval", interval).Msg("stock health: refresh loop started")

	for {
		if _, err := r.Refresh(ctx); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("stock health: scheduled refresh failed")
		}

		select {
		case <-ctx.Done():
			log.Info().Msg("stock health: refresh loop stopped")
			return
		case <-ticker.C:
		}
	}
}
