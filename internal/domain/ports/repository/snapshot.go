package repository

import (
	"context"
	"time"

	"ai-playground/internal/domain/model"
)

// -----------------------------
// Project snapshots
// -----------------------------

type SnapshotRepository interface {
	Save(ctx context.Context, qx any, snap *model.Snapshot) error
	FindByID(ctx context.Context, qx any, id string) (*model.Snapshot, error)
	ListBySession(ctx context.Context, qx any, sessionID string, limit int) ([]*model.Snapshot, error)
	// PruneSession keeps only the newest keep snapshots of a session.
	PruneSession(ctx context.Context, qx any, sessionID string, keep int) (int64, error)
	// DeleteOlderThan removes snapshots created before cutoff and reports how many.
	DeleteOlderThan(ctx context.Context, qx any, cutoff time.Time) (int64, error)
}
