package store

import (
	"context"
	"time"
)

// SyncState is the persisted watermark of one sync job.
type SyncState struct {
	Job          string
	LastSyncedAt time.Time
	UpdatedAt    time.Time
}

// GetSyncState returns the state of job, or nil when the job never ran.
func (s *Store) GetSyncState(ctx context.Context, job string) (*SyncState, error) {
	return s.vector.GetSyncState(ctx, job)
}

func (s *Store) UpsertSyncState(ctx context.Context, upsert *SyncState) error {
	return s.vector.UpsertSyncState(ctx, upsert)
}
