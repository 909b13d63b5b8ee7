package v1

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"

	"github.com/hrygo/tensai/internal/profile"
	"github.com/hrygo/tensai/plugin/ai/persona"
	ratelimit "github.com/hrygo/tensai/server/middleware"
	"github.com/hrygo/tensai/server/retrieval"
	"github.com/hrygo/tensai/server/runner/messagesync"
	"github.com/hrygo/tensai/server/scheduler/syncjob"
	"github.com/hrygo/tensai/store"
)

// MockUserStore is a mock for UserStore.
type MockUserStore struct {
	mock.Mock
}

func (m *MockUserStore) GetUserByName(ctx context.Context, username string) (*store.User, error) {
	args := m.Called(ctx, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*store.User), args.Error(1)
}

// MockRetriever is a mock for ContextRetriever.
type MockRetriever struct {
	mock.Mock
}

func (m *MockRetriever) Retrieve(ctx context.Context, opts *retrieval.Options) ([]*retrieval.ContextItem, error) {
	args := m.Called(ctx, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*retrieval.ContextItem), args.Error(1)
}

// MockGenerator is a mock for ResponseGenerator.
type MockGenerator struct {
	mock.Mock
}

func (m *MockGenerator) Generate(ctx context.Context, req *persona.Request) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

// fakeSyncer implements SyncRunner and SyncStateManager.
type fakeSyncer struct {
	mu        sync.Mutex
	result    *messagesync.Result
	err       error
	retries   []int
	watermark time.Time
}

func (f *fakeSyncer) SyncNow(_ context.Context, maxRetries int) (*messagesync.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.retries = append(f.retries, maxRetries)
	return f.result, f.err
}

func (f *fakeSyncer) Stats() syncjob.Stats {
	return syncjob.Stats{TotalRuns: 4, TotalSuccesses: 3, TotalFailures: 1}
}

func (f *fakeSyncer) IsRunning() bool { return true }

func (f *fakeSyncer) NextRun() time.Time {
	return time.Date(2024, 1, 1, 0, 5, 0, 0, time.UTC)
}

func (f *fakeSyncer) GetSyncState(context.Context) (*messagesync.State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &messagesync.State{Job: messagesync.DefaultJob, LastSyncedAt: f.watermark, Phase: messagesync.PhaseIdle}, nil
}

func (f *fakeSyncer) SetSyncState(_ context.Context, ts time.Time, force bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ts.Before(f.watermark) && !force {
		return fmt.Errorf("%w: test", messagesync.ErrWatermarkRegression)
	}
	f.watermark = ts
	return nil
}

var ada = &store.User{ID: "u-ada", Username: "ada", AvatarURL: "https://example.com/ada.png"}

type testServer struct {
	echo      *echo.Echo
	service   *APIV1Service
	users     *MockUserStore
	retriever *MockRetriever
	generator *MockGenerator
	syncer    *fakeSyncer
}

func newTestServer(t *testing.T, mode string) *testServer {
	t.Helper()
	p := &profile.Profile{Mode: mode, Version: "test", CronSecret: "cron-secret"}
	ts := &testServer{
		echo:      echo.New(),
		users:     new(MockUserStore),
		retriever: new(MockRetriever),
		generator: new(MockGenerator),
		syncer:    &fakeSyncer{result: &messagesync.Result{MessagesProcessed: 3, TotalBatches: 1}},
	}
	ts.service = NewAPIV1Service(p, ts.users)
	ts.service.Retriever = ts.retriever
	ts.service.Generator = ts.generator
	ts.service.Syncer = ts.syncer
	ts.service.SyncState = ts.syncer
	ts.service.RegisterRoutes(ts.echo)
	return ts
}

func (ts *testServer) do(method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	ts.echo.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestChat_EchoesWithoutMention(t *testing.T) {
	ts := newTestServer(t, profile.ModeDevelopment)

	rec := ts.do(http.MethodPost, "/api/v1/chat", `{"message":"hello there"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[ChatResponse](t, rec)
	assert.Equal(t, ChatResponse{Content: "Echo: hello there", Username: DefaultBotName}, resp)
	ts.users.AssertNotCalled(t, "GetUserByName", mock.Anything, mock.Anything)
	ts.retriever.AssertNotCalled(t, "Retrieve", mock.Anything, mock.Anything)
}

func TestChat_RepliesAsMentionedUser(t *testing.T) {
	ts := newTestServer(t, profile.ModeDevelopment)
	ts.users.On("GetUserByName", mock.Anything, "ada").Return(ada, nil).Once()
	ts.retriever.On("Retrieve", mock.Anything, mock.MatchedBy(func(o *retrieval.Options) bool {
		return o.Query == "how is the baby?" && o.AuthorID == ada.ID && o.Threshold == 0.6 && o.RequestID != ""
	})).Return([]*retrieval.ContextItem{
		{MessageID: "m1", Content: "my baby started walking"},
		{MessageID: "m2", Content: "so tired lol"},
	}, nil).Once()
	ts.generator.On("Generate", mock.Anything, &persona.Request{
		Message:  "how is the baby?",
		Username: "ada",
		Context:  []string{"my baby started walking", "so tired lol"},
	}).Return("she's walking now!! so tired lol", nil).Once()

	rec := ts.do(http.MethodPost, "/api/v1/chat",
		`{"message":"how is the baby?","mentionedUsername":"ada","matchThreshold":0.6,"environment":"development"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decode[ChatResponse](t, rec)
	assert.Equal(t, "she's walking now!! so tired lol", resp.Content)
	assert.Equal(t, "ada", resp.Username)
	assert.Equal(t, ada.AvatarURL, resp.AvatarURL)

	ts.users.AssertExpectations(t)
	ts.retriever.AssertExpectations(t)
	ts.generator.AssertExpectations(t)
}

func TestChat_Errors(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(ts *testServer)
		body     string
		status   int
		expected string
	}{
		{
			name:     "invalid environment",
			body:     `{"message":"hi","mentionedUsername":"ada","environment":"staging"}`,
			status:   http.StatusBadRequest,
			expected: "Invalid environment: staging",
		},
		{
			name:     "missing message",
			body:     `{"mentionedUsername":"ada"}`,
			status:   http.StatusBadRequest,
			expected: "message is required",
		},
		{
			name:     "malformed body",
			body:     `{"message":`,
			status:   http.StatusBadRequest,
			expected: "Invalid request body",
		},
		{
			name: "unknown user",
			setup: func(ts *testServer) {
				ts.users.On("GetUserByName", mock.Anything, "bob").Return(nil, nil)
			},
			body:     `{"message":"hi","mentionedUsername":"bob"}`,
			status:   http.StatusNotFound,
			expected: "User bob not found",
		},
		{
			name: "user without messages",
			setup: func(ts *testServer) {
				ts.users.On("GetUserByName", mock.Anything, "ada").Return(ada, nil)
				ts.retriever.On("Retrieve", mock.Anything, mock.Anything).Return([]*retrieval.ContextItem{}, nil)
			},
			body:     `{"message":"hi","mentionedUsername":"ada"}`,
			status:   http.StatusNotFound,
			expected: "No messages found for user ada",
		},
		{
			name: "user store failure",
			setup: func(ts *testServer) {
				ts.users.On("GetUserByName", mock.Anything, "ada").Return(nil, errors.New("connection refused"))
			},
			body:     `{"message":"hi","mentionedUsername":"ada"}`,
			status:   http.StatusInternalServerError,
			expected: "Failed to load user",
		},
		{
			name: "invalid threshold",
			setup: func(ts *testServer) {
				ts.users.On("GetUserByName", mock.Anything, "ada").Return(ada, nil)
				ts.retriever.On("Retrieve", mock.Anything, mock.Anything).Return(nil, retrieval.ErrInvalidThreshold)
			},
			body:     `{"message":"hi","mentionedUsername":"ada","matchThreshold":3}`,
			status:   http.StatusBadRequest,
			expected: "Invalid retrieval parameters",
		},
		{
			name: "unknown embedding model",
			setup: func(ts *testServer) {
				ts.users.On("GetUserByName", mock.Anything, "ada").Return(ada, nil)
				ts.retriever.On("Retrieve", mock.Anything, mock.Anything).Return(nil, retrieval.ErrInvalidModel)
			},
			body:     `{"message":"hi","mentionedUsername":"ada","embeddingModel":"huge"}`,
			status:   http.StatusBadRequest,
			expected: "Invalid retrieval parameters",
		},
		{
			name: "generation timeout",
			setup: func(ts *testServer) {
				ts.users.On("GetUserByName", mock.Anything, "ada").Return(ada, nil)
				ts.retriever.On("Retrieve", mock.Anything, mock.Anything).Return([]*retrieval.ContextItem{{Content: "x"}}, nil)
				ts.generator.On("Generate", mock.Anything, mock.Anything).Return("", persona.ErrGenerationTimeout)
			},
			body:     `{"message":"hi","mentionedUsername":"ada"}`,
			status:   http.StatusInternalServerError,
			expected: "Response generation timed out",
		},
		{
			name: "generation failure",
			setup: func(ts *testServer) {
				ts.users.On("GetUserByName", mock.Anything, "ada").Return(ada, nil)
				ts.retriever.On("Retrieve", mock.Anything, mock.Anything).Return([]*retrieval.ContextItem{{Content: "x"}}, nil)
				ts.generator.On("Generate", mock.Anything, mock.Anything).Return("", persona.ErrGenerationFailed)
			},
			body:     `{"message":"hi","mentionedUsername":"ada"}`,
			status:   http.StatusInternalServerError,
			expected: "Failed to generate response",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, profile.ModeDevelopment)
			if tt.setup != nil {
				tt.setup(ts)
			}
			rec := ts.do(http.MethodPost, "/api/v1/chat", tt.body, nil)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.expected, decode[ErrorResponse](t, rec).Error)
		})
	}
}

func TestChat_ErrorCodes(t *testing.T) {
	ts := newTestServer(t, profile.ModeDevelopment)
	ts.users.On("GetUserByName", mock.Anything, "ada").Return(ada, nil)
	ts.retriever.On("Retrieve", mock.Anything, mock.Anything).Return([]*retrieval.ContextItem{{Content: "x"}}, nil)
	ts.generator.On("Generate", mock.Anything, mock.Anything).Return("", persona.ErrGenerationTimeout)

	rec := ts.do(http.MethodPost, "/api/v1/chat", `{"message":"hi","mentionedUsername":"ada"}`, nil)
	assert.EqualValues(t, "TIMEOUT", decode[ErrorResponse](t, rec).Code)
}

func TestChat_ProductionHidesDetails(t *testing.T) {
	ts := newTestServer(t, profile.ModeProduction)
	ts.service.Profile.APIKey = "k"
	ts.users.On("GetUserByName", mock.Anything, "bob").Return(nil, nil)

	rec := ts.do(http.MethodPost, "/api/v1/chat", `{"message":"hi","mentionedUsername":"bob"}`, map[string]string{HeaderAPIKey: "k"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Not found", decode[ErrorResponse](t, rec).Error)
}

func TestChat_APIKey(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)

	for name, configured := range map[string]string{"plain": "s3cret", "bcrypt": string(hash)} {
		t.Run(name, func(t *testing.T) {
			ts := newTestServer(t, profile.ModeProduction)
			ts.service.Profile.APIKey = configured

			rec := ts.do(http.MethodPost, "/api/v1/chat", `{"message":"hi"}`, nil)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)

			rec = ts.do(http.MethodPost, "/api/v1/chat", `{"message":"hi"}`, map[string]string{HeaderAPIKey: "wrong"})
			assert.Equal(t, http.StatusUnauthorized, rec.Code)

			rec = ts.do(http.MethodPost, "/api/v1/chat", `{"message":"hi"}`, map[string]string{HeaderAPIKey: "s3cret"})
			assert.Equal(t, http.StatusOK, rec.Code)
		})
	}
}

func TestChat_AIDisabled(t *testing.T) {
	ts := newTestServer(t, profile.ModeDevelopment)
	ts.service.Retriever = nil
	ts.service.Generator = nil

	rec := ts.do(http.MethodPost, "/api/v1/chat", `{"message":"hi","mentionedUsername":"ada"}`, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	// The echo path needs no AI.
	rec = ts.do(http.MethodPost, "/api/v1/chat", `{"message":"hi"}`, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestChat_CachesUsers(t *testing.T) {
	ts := newTestServer(t, profile.ModeDevelopment)
	ts.users.On("GetUserByName", mock.Anything, "ada").Return(ada, nil).Once()
	ts.retriever.On("Retrieve", mock.Anything, mock.Anything).Return([]*retrieval.ContextItem{{Content: "x"}}, nil)
	ts.generator.On("Generate", mock.Anything, mock.Anything).Return("ok", nil)

	for i := 0; i < 3; i++ {
		rec := ts.do(http.MethodPost, "/api/v1/chat", `{"message":"hi","mentionedUsername":"ada"}`, nil)
		require.Equal(t, http.StatusOK, rec.Code)
	}
	ts.users.AssertNumberOfCalls(t, "GetUserByName", 1)
}

func TestChat_ConcurrentRequests(t *testing.T) {
	ts := newTestServer(t, profile.ModeDevelopment)
	ts.service.RateLimiter = ratelimit.NewRateLimiter(rate.Inf, 1)
	ts.echo = echo.New()
	ts.service.RegisterRoutes(ts.echo)

	ts.users.On("GetUserByName", mock.Anything, "ada").Return(ada, nil)
	ts.retriever.On("Retrieve", mock.Anything, mock.Anything).Return([]*retrieval.ContextItem{{Content: "similar message"}}, nil)
	ts.generator.On("Generate", mock.Anything, mock.Anything).Return("reply", nil)

	const n = 50
	codes := make([]int, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			body := fmt.Sprintf(`{"message":"question %d","mentionedUsername":"ada"}`, i)
			codes[i] = ts.do(http.MethodPost, "/api/v1/chat", body, nil).Code
		}()
	}
	wg.Wait()

	for i, code := range codes {
		assert.Equal(t, http.StatusOK, code, "request %d", i)
	}
	assert.EqualValues(t, n, ts.service.Metrics.Snapshot().Routes["chat"].Count)
}

func TestChat_EmbeddingModel(t *testing.T) {
	ts := newTestServer(t, profile.ModeDevelopment)
	ts.service.Profile.RetrievalModel = "large"
	ts.users.On("GetUserByName", mock.Anything, "ada").Return(ada, nil)
	ts.retriever.On("Retrieve", mock.Anything, mock.MatchedBy(func(o *retrieval.Options) bool {
		return o.Query == "configured" && o.Model == store.EmbeddingModelLarge
	})).Return([]*retrieval.ContextItem{{Content: "x"}}, nil).Once()
	ts.retriever.On("Retrieve", mock.Anything, mock.MatchedBy(func(o *retrieval.Options) bool {
		return o.Query == "requested" && o.Model == store.EmbeddingModelSmall
	})).Return([]*retrieval.ContextItem{{Content: "x"}}, nil).Once()
	ts.generator.On("Generate", mock.Anything, mock.Anything).Return("ok", nil)

	rec := ts.do(http.MethodPost, "/api/v1/chat", `{"message":"configured","mentionedUsername":"ada"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = ts.do(http.MethodPost, "/api/v1/chat", `{"message":"requested","mentionedUsername":"ada","embeddingModel":"small"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	ts.retriever.AssertExpectations(t)
}

func TestChat_RateLimited(t *testing.T) {
	ts := newTestServer(t, profile.ModeDevelopment)
	ts.service.RateLimiter = ratelimit.NewRateLimiter(rate.Every(time.Hour), 1)
	ts.echo = echo.New()
	ts.service.RegisterRoutes(ts.echo)

	assert.Equal(t, http.StatusOK, ts.do(http.MethodPost, "/api/v1/chat", `{"message":"a"}`, nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, ts.do(http.MethodPost, "/api/v1/chat", `{"message":"b"}`, nil).Code)
}

func TestChat_RateLimitedBeforeAuth(t *testing.T) {
	ts := newTestServer(t, profile.ModeProduction)
	ts.service.Profile.APIKey = "s3cret"
	ts.service.RateLimiter = ratelimit.NewRateLimiter(rate.Every(time.Hour), 2)
	ts.echo = echo.New()
	ts.service.RegisterRoutes(ts.echo)

	for _, key := range []string{"guess-1", "guess-2"} {
		rec := ts.do(http.MethodPost, "/api/v1/chat", `{"message":"hi"}`, map[string]string{HeaderAPIKey: key})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}
	// Wrong keys spent the budget, so even the right key is throttled now.
	rec := ts.do(http.MethodPost, "/api/v1/chat", `{"message":"hi"}`, map[string]string{HeaderAPIKey: "guess-3"})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	rec = ts.do(http.MethodPost, "/api/v1/chat", `{"message":"hi"}`, map[string]string{HeaderAPIKey: "s3cret"})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

var cronHeader = map[string]string{echo.HeaderAuthorization: "Bearer cron-secret"}

func TestRunSync(t *testing.T) {
	ts := newTestServer(t, profile.ModeDevelopment)
	ts.service.SyncMaxRetries = 2

	rec := ts.do(http.MethodPost, "/api/v1/sync", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(http.MethodPost, "/api/v1/sync", "", map[string]string{echo.HeaderAuthorization: "Bearer nope"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(http.MethodPost, "/api/v1/sync", "", cronHeader)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.EqualValues(t, 3, body["messagesProcessed"])
	assert.EqualValues(t, 1, body["totalBatches"])
	assert.Equal(t, []int{2}, ts.syncer.retries)
}

func TestRunSync_Failure(t *testing.T) {
	ts := newTestServer(t, profile.ModeDevelopment)
	ts.syncer.err = fmt.Errorf("run abc: %w", messagesync.ErrEmbeddingUnavailable)

	rec := ts.do(http.MethodPost, "/api/v1/sync", "", cronHeader)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.EqualValues(t, "EMBEDDING_FAILED", decode[ErrorResponse](t, rec).Code)
}

func TestCronAuth_ProductionWithoutSecret(t *testing.T) {
	ts := newTestServer(t, profile.ModeProduction)
	ts.service.Profile.CronSecret = ""

	rec := ts.do(http.MethodPost, "/api/v1/sync", "", cronHeader)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSyncStats(t *testing.T) {
	ts := newTestServer(t, profile.ModeDevelopment)

	rec := ts.do(http.MethodGet, "/api/v1/sync/stats", "", cronHeader)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.EqualValues(t, 4, body["totalRuns"])
	assert.EqualValues(t, 1, body["totalFailures"])
	assert.Equal(t, true, body["running"])
	assert.Equal(t, "2024-01-01T00:05:00Z", body["nextRun"])
}

func TestSyncState(t *testing.T) {
	ts := newTestServer(t, profile.ModeDevelopment)

	rec := ts.do(http.MethodPut, "/api/v1/sync/state", `{"lastSyncedAt":"2024-06-01T00:00:00Z"}`, cronHeader)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	state := decode[messagesync.State](t, rec)
	assert.Equal(t, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), state.LastSyncedAt.UTC())

	rec = ts.do(http.MethodPut, "/api/v1/sync/state", `{"lastSyncedAt":"2024-05-01T00:00:00Z"}`, cronHeader)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(http.MethodPut, "/api/v1/sync/state", `{"lastSyncedAt":"2024-05-01T00:00:00Z","force":true}`, cronHeader)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(http.MethodPut, "/api/v1/sync/state", `{}`, cronHeader)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(http.MethodGet, "/api/v1/sync/state", "", cronHeader)
	require.Equal(t, http.StatusOK, rec.Code)
	state = decode[messagesync.State](t, rec)
	assert.Equal(t, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), state.LastSyncedAt.UTC())
	assert.Equal(t, messagesync.DefaultJob, state.Job)
}

func TestSyncEndpoints_NotConfigured(t *testing.T) {
	ts := newTestServer(t, profile.ModeDevelopment)
	ts.service.Syncer = nil
	ts.service.SyncState = nil

	assert.Equal(t, http.StatusServiceUnavailable, ts.do(http.MethodPost, "/api/v1/sync", "", cronHeader).Code)
	assert.Equal(t, http.StatusServiceUnavailable, ts.do(http.MethodGet, "/api/v1/sync/stats", "", cronHeader).Code)
	assert.Equal(t, http.StatusServiceUnavailable, ts.do(http.MethodGet, "/api/v1/sync/state", "", cronHeader).Code)
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, profile.ModeDevelopment)

	rec := ts.do(http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, HealthResponse{Status: "ok", Version: "test", Mode: profile.ModeDevelopment}, decode[HealthResponse](t, rec))
}

func TestMetricsOverview(t *testing.T) {
	ts := newTestServer(t, profile.ModeDevelopment)
	ts.do(http.MethodPost, "/api/v1/chat", `{"message":"hi"}`, nil)
	ts.do(http.MethodPost, "/api/v1/chat", `{}`, nil)

	rec := ts.do(http.MethodGet, "/api/v1/system/metrics/overview", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[MetricsOverviewResponse](t, rec)
	assert.EqualValues(t, 2, resp.TotalRequests)
	assert.EqualValues(t, 1, resp.ErrorCount)
	assert.EqualValues(t, 2, resp.Routes["chat"].Count)
	assert.InDelta(t, 50.0, resp.SuccessRate, 1e-9)
}
