package session

import (
	"context"
	"log/slog"
	"time"
)

// ExpireCallback is called for each session removed by the sweeper.
type ExpireCallback func(sessionID string)

// StartSweeper runs a background goroutine that periodically removes
// sessions idle for longer than ttl. It stops when ctx is done.
func StartSweeper(ctx context.Context, reg *Registry, ttl, interval time.Duration, onExpire ExpireCallback) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		slog.Info("Session sweeper started", "interval", interval, "ttl", ttl)

		for {
			select {
			case <-ticker.C:
				sweepOnce(reg, ttl, onExpire)
			case <-ctx.Done():
				slog.Info("Session sweeper shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

func sweepOnce(reg *Registry, ttl time.Duration, onExpire ExpireCallback) {
	expired := reg.Sweep(ttl)
	if len(expired) == 0 {
		return
	}

	for _, id := range expired {
		slog.Debug("Session sweeper expired session", "session_id", id)
		if onExpire != nil {
			onExpire(id)
		}
	}
	slog.Info("Session sweeper cleanup completed", "expired", len(expired), "live", reg.Len())
}
