package analytics

import (
	"context"
	"time"

	"github.com/Adithya-Monish-Kumar-K/gutensearch/pkg/logger"
)

// SnapshotStore persists aggregated stats.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, stats AggregatedStats) error
}

// StartPeriodicSave snapshots agg every interval, and once more when ctx is
// cancelled. It returns a channel closed after the final snapshot.
func StartPeriodicSave(ctx context.Context, store SnapshotStore, agg *Aggregator, interval time.Duration) <-chan struct{} {
	log := logger.WithComponent("analytics-snapshot")
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := store.SaveSnapshot(ctx, agg.Stats()); err != nil {
					log.Error("periodic snapshot failed", "error", err)
				}
			case <-ctx.Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := store.SaveSnapshot(shutdownCtx, agg.Stats()); err != nil {
					log.Error("final snapshot failed", "error", err)
				}
				return
			}
		}
	}()
	log.Info("periodic snapshot started", "interval", interval)
	return done
}
