package v1

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/hrygo/tensai/internal/profile"
	"github.com/hrygo/tensai/plugin/ai/cache"
	"github.com/hrygo/tensai/plugin/ai/persona"
	aierrors "github.com/hrygo/tensai/server/internal/errors"
	"github.com/hrygo/tensai/server/internal/observability"
	ratelimit "github.com/hrygo/tensai/server/middleware"
	"github.com/hrygo/tensai/server/retrieval"
	"github.com/hrygo/tensai/server/runner/messagesync"
	"github.com/hrygo/tensai/server/scheduler/syncjob"
	"github.com/hrygo/tensai/store"
)

// UserStore resolves users and their message history.
type UserStore interface {
	GetUserByName(ctx context.Context, username string) (*store.User, error)
}

// ContextRetriever ranks the messages that ground a reply.
type ContextRetriever interface {
	Retrieve(ctx context.Context, opts *retrieval.Options) ([]*retrieval.ContextItem, error)
}

// ResponseGenerator writes the persona reply.
type ResponseGenerator interface {
	Generate(ctx context.Context, req *persona.Request) (string, error)
}

// SyncRunner triggers sync runs and reports their statistics.
type SyncRunner interface {
	SyncNow(ctx context.Context, maxRetries int) (*messagesync.Result, error)
	Stats() syncjob.Stats
	IsRunning() bool
	NextRun() time.Time
}

// SyncStateManager exposes the sync watermark.
type SyncStateManager interface {
	GetSyncState(ctx context.Context) (*messagesync.State, error)
	SetSyncState(ctx context.Context, lastSyncedAt time.Time, force bool) error
}

// APIV1Service serves the chat and sync endpoints. Retriever, Generator,
// Syncer and SyncState may be nil when AI is disabled; the affected
// endpoints then answer 503.
type APIV1Service struct {
	Profile   *profile.Profile
	Users     UserStore
	Retriever ContextRetriever
	Generator ResponseGenerator
	Syncer    SyncRunner
	SyncState SyncStateManager

	// SyncMaxRetries is the retry budget of HTTP-triggered syncs.
	SyncMaxRetries int

	Caches      *cache.RequestCaches
	Metrics     *observability.Metrics
	RateLimiter *ratelimit.RateLimiter
}

// NewAPIV1Service creates the service with fresh caches, metrics and rate limiter.
func NewAPIV1Service(p *profile.Profile, users UserStore) *APIV1Service {
	return &APIV1Service{
		Profile:     p,
		Users:       users,
		Caches:      cache.NewRequestCaches(0, nil),
		Metrics:     observability.NewMetrics(0),
		RateLimiter: ratelimit.NewRateLimiter(0, 0),
	}
}

// RegisterRoutes registers the HTTP routes on the given Echo instance.
func (s *APIV1Service) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", s.Health)

	g := e.Group("/api/v1")
	g.Use(middleware.CORS())

	// Rate limited before authentication.
	g.POST("/chat", s.Chat, s.RateLimiter.Middleware(ratelimit.ClientKey), s.apiKeyAuth)
	g.GET("/system/metrics/overview", s.GetMetricsOverview, s.apiKeyAuth)

	// Cron callers authenticate with the cron secret.
	g.POST("/sync", s.RunSync, s.cronAuth)
	g.GET("/sync/stats", s.GetSyncStats, s.cronAuth)
	g.GET("/sync/state", s.GetSyncState, s.cronAuth)
	g.PUT("/sync/state", s.SetSyncState, s.cronAuth)
}

// HealthResponse is the body of GET /healthz.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Mode    string `json:"mode"`
}

// Health reports liveness.
// GET /healthz
func (s *APIV1Service) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{
		Status:  "ok",
		Version: s.Profile.Version,
		Mode:    s.Profile.Mode,
	})
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string             `json:"error"`
	Code  aierrors.ErrorCode `json:"code"`
}

// respondError logs err with full detail and writes its classified form.
// Production responses carry a generic message.
func (s *APIV1Service) respondError(c echo.Context, rc *observability.RequestContext, err error) error {
	code := aierrors.GetCodeFromError(err, aierrors.ErrCodeInternal)
	message := code.GenericMessage()
	var aiErr *aierrors.AIError
	if errors.As(err, &aiErr) && s.Profile.IsDev() {
		message = aiErr.Message
	}

	status := code.HTTPStatus()
	if status >= http.StatusInternalServerError {
		rc.Error(c.Request().Context(), "request failed", err, slog.String(observability.LogFieldErrorCode, string(code)))
	} else {
		rc.Warn(c.Request().Context(), "request rejected",
			slog.String(observability.LogFieldErrorCode, string(code)),
			slog.String("error", err.Error()))
	}
	return c.JSON(status, ErrorResponse{Error: message, Code: code})
}

// newRequestContext binds a request context to the echo request ID.
func (s *APIV1Service) newRequestContext(c echo.Context, route string) *observability.RequestContext {
	requestID := c.Response().Header().Get(echo.HeaderXRequestID)
	if requestID == "" {
		requestID = c.Request().Header.Get(echo.HeaderXRequestID)
	}
	rc := observability.NewRequestContext(nil, requestID, route)
	c.SetRequest(c.Request().WithContext(observability.WithRequestContext(c.Request().Context(), rc)))
	return rc
}

func (s *APIV1Service) record(rc *observability.RequestContext, failed bool) {
	if s.Metrics != nil {
		s.Metrics.Record(rc.Route, rc.Duration(), failed)
	}
}
