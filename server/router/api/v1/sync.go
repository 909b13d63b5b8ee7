package v1

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	aierrors "github.com/hrygo/tensai/server/internal/errors"
	"github.com/hrygo/tensai/server/runner/messagesync"
	"github.com/hrygo/tensai/server/scheduler/syncjob"
)

// RunSync runs one incremental sync.
// POST /api/v1/sync
func (s *APIV1Service) RunSync(c echo.Context) error {
	rc := s.newRequestContext(c, "sync")
	if s.Syncer == nil {
		return s.respondError(c, rc, aierrors.ServiceUnavailable("Sync is not configured"))
	}

	result, err := s.Syncer.SyncNow(c.Request().Context(), s.SyncMaxRetries)
	s.record(rc, err != nil)
	if err != nil {
		code := aierrors.ErrCodeStoreFailed
		if errors.Is(err, messagesync.ErrEmbeddingUnavailable) {
			code = aierrors.ErrCodeEmbeddingFailed
		}
		return s.respondError(c, rc, aierrors.Wrap(err, code, "Sync failed"))
	}

	rc.Info(c.Request().Context(), "sync triggered",
		slog.Int("processed", result.MessagesProcessed),
		slog.Int("batches", result.TotalBatches))
	return c.JSON(http.StatusOK, result)
}

// SyncStatsResponse is the body of GET /api/v1/sync/stats.
type SyncStatsResponse struct {
	syncjob.Stats
	Running bool      `json:"running"`
	NextRun time.Time `json:"nextRun"`
}

// GetSyncStats reports the run statistics of the scheduler.
// GET /api/v1/sync/stats
func (s *APIV1Service) GetSyncStats(c echo.Context) error {
	rc := s.newRequestContext(c, "sync_stats")
	if s.Syncer == nil {
		return s.respondError(c, rc, aierrors.ServiceUnavailable("Sync is not configured"))
	}
	return c.JSON(http.StatusOK, SyncStatsResponse{
		Stats:   s.Syncer.Stats(),
		Running: s.Syncer.IsRunning(),
		NextRun: s.Syncer.NextRun(),
	})
}

// GetSyncState returns the watermark.
// GET /api/v1/sync/state
func (s *APIV1Service) GetSyncState(c echo.Context) error {
	rc := s.newRequestContext(c, "sync_state")
	if s.SyncState == nil {
		return s.respondError(c, rc, aierrors.ServiceUnavailable("Sync is not configured"))
	}
	state, err := s.SyncState.GetSyncState(c.Request().Context())
	if err != nil {
		return s.respondError(c, rc, aierrors.Wrap(err, aierrors.ErrCodeStoreFailed, "Failed to load sync state"))
	}
	return c.JSON(http.StatusOK, state)
}

// SetSyncStateRequest is the body of PUT /api/v1/sync/state.
type SetSyncStateRequest struct {
	LastSyncedAt time.Time `json:"lastSyncedAt"`
	// Force allows moving the watermark backwards, which re-syncs later messages.
	Force bool `json:"force,omitempty"`
}

// SetSyncState checkpoints the watermark.
// PUT /api/v1/sync/state
func (s *APIV1Service) SetSyncState(c echo.Context) error {
	rc := s.newRequestContext(c, "sync_state")
	if s.SyncState == nil {
		return s.respondError(c, rc, aierrors.ServiceUnavailable("Sync is not configured"))
	}

	var req SetSyncStateRequest
	if err := c.Bind(&req); err != nil {
		return s.respondError(c, rc, aierrors.Wrap(err, aierrors.ErrCodeInvalidArgument, "Invalid request body"))
	}
	if req.LastSyncedAt.IsZero() {
		return s.respondError(c, rc, aierrors.InvalidArgument("lastSyncedAt is required"))
	}

	ctx := c.Request().Context()
	if err := s.SyncState.SetSyncState(ctx, req.LastSyncedAt, req.Force); err != nil {
		if errors.Is(err, messagesync.ErrWatermarkRegression) {
			return s.respondError(c, rc, aierrors.Wrap(err, aierrors.ErrCodeInvalidArgument, "Watermark cannot move backwards without force"))
		}
		return s.respondError(c, rc, aierrors.Wrap(err, aierrors.ErrCodeStoreFailed, "Failed to save sync state"))
	}

	state, err := s.SyncState.GetSyncState(ctx)
	if err != nil {
		return s.respondError(c, rc, aierrors.Wrap(err, aierrors.ErrCodeStoreFailed, "Failed to load sync state"))
	}
	return c.JSON(http.StatusOK, state)
}
