package audit

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// RunRetentionPruner runs Prune once a day until ctx is cancelled,
// grounded on original_source/app/audit/sqlite_backend.py's
// run_retention_pruner (there scheduled for 3am UTC; here driven by a
// plain daily ticker since the proxy has no daily-cron primitive of its
// own to hook into).
func RunRetentionPruner(ctx context.Context, s *Sink, retentionDays int, log *zap.Logger) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := s.Prune(ctx, retentionDays)
			if err != nil {
				if log != nil {
					log.Error("audit retention prune failed", zap.Error(err))
				}
				continue
			}
			if deleted > 0 && log != nil {
				log.Info("audit retention prune complete", zap.Int64("deleted", deleted), zap.Int("retention_days", retentionDays))
			}
		}
	}
}
