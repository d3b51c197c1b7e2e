package app

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/five82/berth/internal/portainer"
	"github.com/five82/berth/internal/state"
)

const (
	defaultPollInterval = 5 * time.Second
	maxBackoff          = 30 * time.Second
)

// refresher is the part of the coordinator the poller drives.
type refresher interface {
	RefreshAll(ctx context.Context) (state.Snapshot, error)
	Snapshot() state.Snapshot
}

// StartPoller launches a background goroutine that refreshes the coordinator,
// backing off while the server keeps failing. It returns immediately.
func StartPoller(ctx context.Context, r refresher, interval time.Duration, logger zerolog.Logger) {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	go runPoller(ctx, r, interval, logger)
}

func runPoller(ctx context.Context, r refresher, interval time.Duration, logger zerolog.Logger) {
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		failures := poll(ctx, r, logger)
		timer.Reset(calculateBackoff(failures, interval))
	}
}

// poll runs one refresh and returns the consecutive failure count.
// Nothing is fetched while logged out.
func poll(ctx context.Context, r refresher, logger zerolog.Logger) int {
	if r.Snapshot().LoggedOut {
		return 0
	}
	_, err := r.RefreshAll(ctx)
	failures := r.Snapshot().ConsecutiveFailures
	if err != nil && !portainer.IsCancelled(err) {
		logger.Warn().Err(err).Int("failures", failures).Msg("refresh failed")
	}
	return failures
}

// calculateBackoff doubles base for every consecutive failure, capped at maxBackoff.
func calculateBackoff(failures int, base time.Duration) time.Duration {
	if failures <= 0 {
		return base
	}
	backoff := base
	for i := 0; i < failures; i++ {
		backoff *= 2
		if backoff >= maxBackoff {
			return maxBackoff
		}
	}
	return backoff
}
