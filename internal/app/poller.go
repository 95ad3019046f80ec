package app

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
)

// Run polls the view every interval until ctx is done or the view is closed.
// Failed polls are logged and retried on the next tick.
func (v *SchedulerView) Run(ctx context.Context, every time.Duration) {
	logger := log.With().Str("module", "app.poller").Str("view", v.ID).Str("room", string(v.RoomID)).Logger()
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Debug().Msg("poll loop stopped")
			return
		case <-ticker.C:
		}
		err := v.Poll(ctx)
		switch {
		case errors.Is(err, ErrViewClosed):
			logger.Debug().Msg("view closed, poll loop exits")
			return
		case err != nil && ctx.Err() == nil:
			logger.Warn().Err(err).Msg("poll failed, keeping previous snapshot")
		}
	}
}
