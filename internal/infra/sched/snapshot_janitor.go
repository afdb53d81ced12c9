package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"ai-playground/internal/infra/metrics"
)

// SnapshotPruner removes snapshots past retention and reports how many.
type SnapshotPruner interface {
	PruneSnapshots(ctx context.Context) (int64, error)
}

// SnapshotJanitor periodically applies snapshot retention via the use case.
type SnapshotJanitor struct {
	interval time.Duration
	pruner   SnapshotPruner
	log      *zerolog.Logger
}

func NewSnapshotJanitor(interval time.Duration, pruner SnapshotPruner, logger *zerolog.Logger) *SnapshotJanitor {
	l := logger.With().Str("component", "SnapshotJanitor").Logger()
	return &SnapshotJanitor{
		interval: interval,
		pruner:   pruner,
		log:      &l,
	}
}

func (w *SnapshotJanitor) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("Starting snapshot janitor")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping snapshot janitor")
			return ctx.Err()
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *SnapshotJanitor) tick(ctx context.Context) {
	n, err := w.pruner.PruneSnapshots(ctx)
	if err != nil {
		w.log.Error().Err(err).Msg("snapshot janitor error")
		return
	}
	if n > 0 {
		metrics.AddSnapshotsPruned(n)
		w.log.Info().Int64("count", n).Msg("expired snapshots removed")
	}
}
