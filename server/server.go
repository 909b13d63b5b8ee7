package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/hrygo/tensai/internal/profile"
	"github.com/hrygo/tensai/plugin/ai"
	"github.com/hrygo/tensai/plugin/ai/persona"
	"github.com/hrygo/tensai/plugin/ai/timeout"
	"github.com/hrygo/tensai/server/retrieval"
	apiv1 "github.com/hrygo/tensai/server/router/api/v1"
	"github.com/hrygo/tensai/server/runner/messagesync"
	"github.com/hrygo/tensai/server/scheduler/syncjob"
	"github.com/hrygo/tensai/store"
)

// httpSyncMaxRetries is the retry budget of HTTP-triggered syncs. The
// external cron caller retries on its own schedule.
const httpSyncMaxRetries = 0

type Server struct {
	Profile *profile.Profile
	Store   *store.Store

	// Engine and Scheduler are nil when AI is disabled.
	Engine    *messagesync.Engine
	Scheduler *syncjob.Scheduler

	echoServer *echo.Echo
	apiV1      *apiv1.APIV1Service
	startedAt  time.Time
}

// NewServer wires the store, the AI clients and the HTTP routes.
func NewServer(ctx context.Context, p *profile.Profile, s *store.Store) (*Server, error) {
	srv := &Server{
		Profile:   p,
		Store:     s,
		startedAt: time.Now(),
	}

	echoServer := echo.New()
	echoServer.Debug = p.IsDev()
	echoServer.HideBanner = true
	echoServer.HidePort = true
	echoServer.Use(middleware.RequestID())
	echoServer.Use(middleware.Recover())
	srv.echoServer = echoServer

	srv.apiV1 = apiv1.NewAPIV1Service(p, s)
	srv.apiV1.SyncMaxRetries = httpSyncMaxRetries

	aiConfig := ai.NewConfigFromProfile(p)
	if aiConfig.Enabled {
		if err := aiConfig.Validate(); err != nil {
			return nil, errors.Wrap(err, "invalid AI configuration")
		}
		if err := srv.wireAI(aiConfig); err != nil {
			return nil, err
		}
	} else {
		slog.Warn("AI is disabled; chat answers echo replies only and sync is off")
	}

	srv.apiV1.RegisterRoutes(echoServer)

	count, err := s.CountMessageEmbeddings(ctx)
	if err != nil {
		slog.Warn("failed to count message embeddings", slog.String("error", err.Error()))
	} else {
		slog.Info("vector store ready", slog.Int("embeddings", count))
	}

	return srv, nil
}

func (s *Server) wireAI(cfg *ai.Config) error {
	small, err := ai.NewEmbeddingService(&cfg.Small)
	if err != nil {
		return errors.Wrap(err, "failed to create small embedding service")
	}
	large, err := ai.NewEmbeddingService(&cfg.Large)
	if err != nil {
		return errors.Wrap(err, "failed to create large embedding service")
	}
	embeddings := ai.NewEmbeddingClient(small, large, cfg.Embedding)

	llm, err := ai.NewLLMService(&cfg.LLM)
	if err != nil {
		return errors.Wrap(err, "failed to create LLM service")
	}

	ranking := retrieval.DefaultRanking()
	ranking.Boost = s.Profile.RetrievalBoost
	if len(s.Profile.RetrievalBoostKeywords) > 0 {
		ranking.BoostKeywords = s.Profile.RetrievalBoostKeywords
	}

	s.Engine = messagesync.NewEngine(s.Store, s.Store, s.Store, embeddings, messagesync.Config{
		BatchSize: s.Profile.SyncBatchSize,
	})
	s.Scheduler = syncjob.NewScheduler(s.Engine, syncjob.Options{})

	s.apiV1.Retriever = retrieval.NewRetriever(embeddings, s.Store, s.Store, ranking, s.apiV1.Caches.QueryEmbeddings)
	s.apiV1.Generator = persona.NewGenerator(llm, s.Profile.AIGenerationTimeout)
	s.apiV1.Syncer = s.Scheduler
	s.apiV1.SyncState = s.Engine
	return nil
}

// Start starts the sync scheduler and serves HTTP until Shutdown.
func (s *Server) Start(ctx context.Context) error {
	if s.Scheduler != nil && s.Profile.SyncEnabled {
		if err := s.Scheduler.Start(s.Profile.SyncSchedule); err != nil {
			return errors.Wrap(err, "failed to start sync scheduler")
		}
	}

	address := fmt.Sprintf("%s:%d", s.Profile.Addr, s.Profile.Port)
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return errors.Wrap(err, "failed to listen")
	}

	s.echoServer.Listener = listener
	go func() {
		if err := s.echoServer.Start(address); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("failed to start echo server", slog.String("error", err.Error()))
		}
	}()
	slog.Info("server listening", slog.String("address", address), slog.String("mode", s.Profile.Mode))
	return nil
}

// Shutdown stops the scheduler, drains in-flight requests and closes the store.
func (s *Server) Shutdown(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, timeout.ShutdownTimeout)
	defer cancel()

	slog.Info("server shutting down")

	if s.Scheduler != nil {
		s.Scheduler.Stop()
	}

	if err := s.echoServer.Shutdown(ctx); err != nil {
		slog.Error("failed to shutdown server", slog.String("error", err.Error()))
	}

	if err := s.Store.Close(); err != nil {
		slog.Error("failed to close database", slog.String("error", err.Error()))
	}

	slog.Info("server stopped properly", slog.Duration("uptime", time.Since(s.startedAt)))
}

// Handler exposes the HTTP handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.echoServer
}
