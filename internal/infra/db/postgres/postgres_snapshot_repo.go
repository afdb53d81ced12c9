// File: internal/infra/db/postgres/postgres_snapshot_repo.go
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"ai-playground/internal/domain"
	"ai-playground/internal/domain/model"
	"ai-playground/internal/domain/ports/repository"
)

var _ repository.SnapshotRepository = (*SnapshotRepo)(nil)

// SnapshotRepo stores named copies of a session's files. The files column is
// jsonb holding the ordered file list.
type SnapshotRepo struct {
	pool *pgxpool.Pool
}

func NewSnapshotRepo(pool *pgxpool.Pool) *SnapshotRepo {
	return &SnapshotRepo{pool: pool}
}

func (r *SnapshotRepo) Save(ctx context.Context, qx any, s *model.Snapshot) error {
	const q = `
INSERT INTO playground_snapshots (id, session_id, name, files, created_at)
VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (id) DO UPDATE SET
  name = EXCLUDED.name,
  files = EXCLUDED.files;`
	files, err := json.Marshal(s.Files)
	if err != nil {
		return fmt.Errorf("encode snapshot files: %w", err)
	}
	ex, err := querierFor(r.pool, qx)
	if err != nil {
		return err
	}
	if _, err := ex.Exec(ctx, q, s.ID, s.SessionID, s.Name, files, s.CreatedAt); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

func (r *SnapshotRepo) FindByID(ctx context.Context, qx any, id string) (*model.Snapshot, error) {
	const q = `
SELECT id, session_id, name, files, created_at
FROM playground_snapshots WHERE id=$1;`
	ex, err := querierFor(r.pool, qx)
	if err != nil {
		return nil, err
	}
	s, err := scanSnapshot(ex.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find snapshot: %w", err)
	}
	return s, nil
}

// ListBySession returns newest first.
func (r *SnapshotRepo) ListBySession(ctx context.Context, qx any, sessionID string, limit int) ([]*model.Snapshot, error) {
	if limit <= 0 {
		limit = 50
	}
	const q = `
SELECT id, session_id, name, files, created_at
FROM playground_snapshots
WHERE session_id=$1
ORDER BY created_at DESC
LIMIT $2;`
	ex, err := querierFor(r.pool, qx)
	if err != nil {
		return nil, err
	}
	rows, err := ex.Query(ctx, q, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var out []*model.Snapshot
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *SnapshotRepo) DeleteOlderThan(ctx context.Context, qx any, cutoff time.Time) (int64, error) {
	const q = `DELETE FROM playground_snapshots WHERE created_at < $1;`
	ex, err := querierFor(r.pool, qx)
	if err != nil {
		return 0, err
	}
	tag, err := ex.Exec(ctx, q, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete snapshots: %w", err)
	}
	return tag.RowsAffected(), nil
}

// PruneSession keeps the newest keep snapshots of a session.
func (r *SnapshotRepo) PruneSession(ctx context.Context, qx any, sessionID string, keep int) (int64, error) {
	const q = `
DELETE FROM playground_snapshots
WHERE session_id=$1 AND id NOT IN (
  SELECT id FROM playground_snapshots
  WHERE session_id=$1
  ORDER BY created_at DESC
  LIMIT $2
);`
	ex, err := querierFor(r.pool, qx)
	if err != nil {
		return 0, err
	}
	tag, err := ex.Exec(ctx, q, sessionID, keep)
	if err != nil {
		return 0, fmt.Errorf("prune snapshots: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanSnapshot(row pgx.Row) (*model.Snapshot, error) {
	var (
		s   model.Snapshot
		raw []byte
	)
	if err := row.Scan(&s.ID, &s.SessionID, &s.Name, &raw, &s.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &s.Files); err != nil {
		return nil, fmt.Errorf("%w: snapshot %s: %v", domain.ErrCorruptState, s.ID, err)
	}
	return &s, nil
}
