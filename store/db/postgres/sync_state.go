package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/tensai/store"
)

func (d *DB) GetSyncState(ctx context.Context, job string) (*store.SyncState, error) {
	var lastSyncedAt, updatedAt int64
	err := d.db.QueryRowContext(ctx,
		`SELECT last_synced_at, updated_at FROM sync_state WHERE job = `+placeholder(1), job,
	).Scan(&lastSyncedAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get sync state of %s", job)
	}
	return &store.SyncState{
		Job:          job,
		LastSyncedAt: store.FromMicros(lastSyncedAt),
		UpdatedAt:    store.FromMicros(updatedAt),
	}, nil
}

func (d *DB) UpsertSyncState(ctx context.Context, upsert *store.SyncState) error {
	if upsert.UpdatedAt.IsZero() {
		upsert.UpdatedAt = time.Now()
	}
	stmt := `
		INSERT INTO sync_state (job, last_synced_at, updated_at)
		VALUES (` + placeholders(3) + `)
		ON CONFLICT (job) DO UPDATE SET
			last_synced_at = EXCLUDED.last_synced_at,
			updated_at = EXCLUDED.updated_at`
	if _, err := d.db.ExecContext(ctx, stmt, upsert.Job, store.ToMicros(upsert.LastSyncedAt), store.ToMicros(upsert.UpdatedAt)); err != nil {
		return errors.Wrapf(err, "failed to upsert sync state of %s", upsert.Job)
	}
	return nil
}
