package store

import (
	"context"
	"log/slog"
	"time"
)

// StartRetentionWorker periodically deletes journal records older than
// retention. It stops when ctx is done.
func StartRetentionWorker(ctx context.Context, j Journal, retention, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		slog.Info("Journal retention worker started", "interval", interval, "retention", retention)

		for {
			select {
			case <-ticker.C:
				deleted, err := j.CleanupOlderThan(ctx, retention)
				if err != nil {
					slog.Error("Journal retention cleanup failed", "error", err)
					continue
				}
				if deleted > 0 {
					slog.Info("Journal retention removed old turns", "count", deleted)
				}
			case <-ctx.Done():
				slog.Info("Journal retention worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}
