// Package messagesync keeps the message embedding table in step with the
// message store by walking a creation-time watermark.
package messagesync

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/tensai/plugin/ai"
	"github.com/hrygo/tensai/store"
)

const (
	// DefaultJob is the sync state key of the message embedding job.
	DefaultJob = "message_embeddings"

	defaultBatchSize          = 100
	defaultMaxMessageAttempts = 3
)

var (
	// ErrWatermarkRegression is returned when a checkpoint would move the watermark backwards.
	ErrWatermarkRegression = errors.New("watermark cannot move backwards")
	// ErrEmbeddingUnavailable is returned when no message of a batch could be embedded.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")
)

// MessageSource reads messages in creation order.
type MessageSource interface {
	ListMessagesAfter(ctx context.Context, ts time.Time, limit int) ([]*store.Message, error)
}

// VectorStore persists embedding rows.
type VectorStore interface {
	ListExistingEmbeddingIDs(ctx context.Context, messageIDs []string) (map[string]bool, error)
	BeginVectorTx(ctx context.Context) (store.VectorTx, error)
}

// StateStore persists the watermark across process restarts.
type StateStore interface {
	GetSyncState(ctx context.Context, job string) (*store.SyncState, error)
	UpsertSyncState(ctx context.Context, upsert *store.SyncState) error
}

// Embedder embeds texts with per-text outcomes.
type Embedder interface {
	EmbedEach(ctx context.Context, texts []string) []ai.EmbedResult
}

// Config configures an Engine.
type Config struct {
	// Job names the persisted sync state.
	Job string
	// BatchSize is the number of messages fetched per batch.
	BatchSize int
	// MaxMessageAttempts is the number of runs a message may fail before it is abandoned.
	MaxMessageAttempts int
}

// Result summarises one Sync call.
type Result struct {
	// MessagesProcessed counts messages the watermark moved past.
	MessagesProcessed int `json:"messagesProcessed"`
	// TotalBatches counts committed batches.
	TotalBatches int `json:"totalBatches"`
	// EmbeddingsCreated counts inserted rows.
	EmbeddingsCreated int `json:"embeddingsCreated"`
	// SkippedIDs lists messages whose embedding failed during this call.
	SkippedIDs []string `json:"skippedIds,omitempty"`
	// AbandonedIDs lists skipped messages that will not be retried.
	AbandonedIDs []string `json:"abandonedIds,omitempty"`
	// LastBatchSize is the size of the last fetched batch.
	LastBatchSize int `json:"lastBatchSize"`
}

// State is the externally visible sync state.
type State struct {
	Job          string    `json:"job"`
	LastSyncedAt time.Time `json:"lastSyncedAt"`
	Phase        Phase     `json:"phase"`
}

// Engine runs incremental syncs. One Engine must be the only writer of its job.
type Engine struct {
	messages MessageSource
	vectors  VectorStore
	state    StateStore
	embedder Embedder
	config   Config
	logger   *slog.Logger

	// mu serialises Sync and checkpoint calls.
	mu       sync.Mutex
	failures map[string]int

	// stateMu guards the watermark so readers never wait for a running Sync.
	// Writes after the first load also hold mu.
	stateMu   sync.RWMutex
	loaded    bool
	watermark time.Time

	phase atomic.Value
}

// NewEngine creates a sync engine. state may be nil, in which case the
// watermark lives in memory only.
func NewEngine(messages MessageSource, vectors VectorStore, state StateStore, embedder Embedder, config Config) *Engine {
	if config.Job == "" {
		config.Job = DefaultJob
	}
	if config.BatchSize <= 0 {
		config.BatchSize = defaultBatchSize
	}
	if config.MaxMessageAttempts <= 0 {
		config.MaxMessageAttempts = defaultMaxMessageAttempts
	}

	e := &Engine{
		messages:  messages,
		vectors:   vectors,
		state:     state,
		embedder:  embedder,
		config:    config,
		logger:    slog.Default().With("job", config.Job),
		watermark: time.Unix(0, 0).UTC(),
		failures:  map[string]int{},
	}
	e.phase.Store(PhaseIdle)
	return e
}

// Phase returns the current state machine phase.
func (e *Engine) Phase() Phase {
	return e.phase.Load().(Phase)
}

func (e *Engine) setPhase(p Phase) {
	e.phase.Store(p)
}

// Sync embeds every message created after the watermark, batch by batch.
func (e *Engine) Sync(ctx context.Context) (*Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	result := &Result{}
	if err := e.load(ctx); err != nil {
		e.setPhase(PhaseFailed)
		return result, err
	}

	for {
		if err := ctx.Err(); err != nil {
			e.setPhase(PhaseFailed)
			return result, err
		}

		more, err := e.syncBatch(ctx, result)
		if err != nil {
			e.setPhase(PhaseFailed)
			e.logger.Error("sync failed",
				"watermark", e.watermark,
				"processed", result.MessagesProcessed,
				"error", err)
			return result, err
		}
		if !more {
			break
		}
	}

	e.setPhase(PhaseDone)
	e.logger.Info("sync completed",
		"processed", result.MessagesProcessed,
		"batches", result.TotalBatches,
		"embeddings", result.EmbeddingsCreated,
		"skipped", len(result.SkippedIDs),
		"watermark", e.watermark)
	return result, nil
}

// syncBatch processes one batch and reports whether another batch should follow.
func (e *Engine) syncBatch(ctx context.Context, result *Result) (bool, error) {
	e.setPhase(PhaseFetching)
	batch, err := e.messages.ListMessagesAfter(ctx, e.watermark, e.config.BatchSize)
	if err != nil {
		return false, errors.Wrap(err, "failed to fetch messages")
	}
	if len(batch) == 0 {
		return false, nil
	}
	result.LastBatchSize = len(batch)

	e.setPhase(PhaseDeduping)
	ids := make([]string, len(batch))
	for i, m := range batch {
		ids[i] = m.ID
	}
	existing, err := e.vectors.ListExistingEmbeddingIDs(ctx, ids)
	if err != nil {
		return false, errors.Wrap(err, "failed to check existing embeddings")
	}

	e.setPhase(PhaseEmbedding)
	var pending []*store.Message
	for _, m := range batch {
		if !existing[m.ID] && !e.abandoned(m.ID) {
			pending = append(pending, m)
		}
	}
	rows, failed := e.embed(ctx, pending)
	if len(pending) > 0 && len(rows) == 0 && e.outage(failed) {
		// Nothing went through, so the failures say nothing about the messages.
		return false, errors.Wrapf(ErrEmbeddingUnavailable, "all %d messages failed", len(pending))
	}

	e.setPhase(PhaseStoring)
	if err := e.store(ctx, rows); err != nil {
		return false, err
	}
	result.EmbeddingsCreated += len(rows)
	result.TotalBatches++

	e.setPhase(PhaseAdvancing)
	// Failures are counted only once the batch is durable.
	for _, row := range rows {
		delete(e.failures, row.MessageID)
	}
	for _, f := range failed {
		if f.permanent {
			e.failures[f.message.ID] = e.config.MaxMessageAttempts
		} else {
			e.failures[f.message.ID]++
		}
		result.SkippedIDs = append(result.SkippedIDs, f.message.ID)
	}

	advanced := 0
	for _, m := range batch {
		if existing[m.ID] {
			advanced++
			continue
		}
		if n, ok := e.failures[m.ID]; ok {
			if n < e.config.MaxMessageAttempts {
				break
			}
			e.logger.Error("message abandoned after repeated embedding failures",
				"message_id", m.ID,
				"attempts", n)
			result.AbandonedIDs = append(result.AbandonedIDs, m.ID)
			delete(e.failures, m.ID)
		}
		advanced++
	}

	if advanced > 0 {
		e.advance(ctx, batch[advanced-1].CreatedAt)
		result.MessagesProcessed += advanced
	}
	e.logger.Info("batch synced",
		"fetched", len(batch),
		"existing", len(existing),
		"embedded", len(rows),
		"failed", len(failed),
		"advanced", advanced)

	// A blocked message stops this run; the next run starts at it.
	if advanced < len(batch) {
		return false, nil
	}
	return len(batch) == e.config.BatchSize, nil
}

func (e *Engine) abandoned(id string) bool {
	return e.failures[id] >= e.config.MaxMessageAttempts
}

type failedMessage struct {
	message *store.Message
	// permanent failures are not retried.
	permanent bool
}

// outage reports whether a batch in which every message failed points at the
// embedding service rather than at the messages. Messages that already failed
// while others succeeded keep being counted, so they cannot block forever.
func (e *Engine) outage(failed []failedMessage) bool {
	fresh := false
	for _, f := range failed {
		if f.permanent {
			return false
		}
		if _, ok := e.failures[f.message.ID]; !ok {
			fresh = true
		}
	}
	return fresh
}

// embed returns rows for the messages that were embedded and the messages that failed.
func (e *Engine) embed(ctx context.Context, pending []*store.Message) ([]*store.MessageEmbedding, []failedMessage) {
	if len(pending) == 0 {
		return nil, nil
	}

	texts := make([]string, len(pending))
	for i, m := range pending {
		texts[i] = m.Content
	}

	var rows []*store.MessageEmbedding
	var failed []failedMessage
	for i, res := range e.embedder.EmbedEach(ctx, texts) {
		m := pending[i]
		if res.Err != nil {
			e.logger.Warn("failed to embed message",
				"message_id", m.ID,
				"author_id", m.AuthorID,
				"error", res.Err)
			failed = append(failed, failedMessage{message: m, permanent: errors.Is(res.Err, ai.ErrEmptyText)})
			continue
		}
		rows = append(rows, &store.MessageEmbedding{
			MessageID: m.ID,
			AuthorID:  m.AuthorID,
			Small:     res.Vectors.Small,
			Large:     res.Vectors.Large,
		})
	}
	return rows, failed
}

// store inserts rows in a single vector transaction.
func (e *Engine) store(ctx context.Context, rows []*store.MessageEmbedding) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := e.vectors.BeginVectorTx(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to begin vector transaction")
	}
	defer tx.Rollback()

	if err := tx.InsertMessageEmbeddings(ctx, rows); err != nil {
		return errors.Wrap(err, "failed to store embeddings")
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit embeddings")
	}
	return nil
}

// advance moves the watermark forward and persists it. A persistence failure
// is logged; the rows are committed, so replaying the batch is harmless.
func (e *Engine) advance(ctx context.Context, ts time.Time) {
	if !ts.After(e.watermark) {
		return
	}
	e.setWatermark(ts)
	if err := e.persist(ctx); err != nil {
		e.logger.Error("failed to persist watermark", "watermark", ts, "error", err)
	}
}

func (e *Engine) persist(ctx context.Context) error {
	if e.state == nil {
		return nil
	}
	return e.state.UpsertSyncState(ctx, &store.SyncState{
		Job:          e.config.Job,
		LastSyncedAt: e.watermark,
		UpdatedAt:    time.Now(),
	})
}

func (e *Engine) setWatermark(ts time.Time) {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	e.watermark = ts
}

// load reads the persisted watermark on first use.
func (e *Engine) load(ctx context.Context) error {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()

	if e.loaded || e.state == nil {
		e.loaded = true
		return nil
	}
	state, err := e.state.GetSyncState(ctx, e.config.Job)
	if err != nil {
		return errors.Wrap(err, "failed to load sync state")
	}
	if state != nil && state.LastSyncedAt.After(e.watermark) {
		e.watermark = state.LastSyncedAt
	}
	e.loaded = true
	return nil
}

// GetSyncState returns the current watermark. It does not wait for a running
// Sync, which may have committed batches past the returned value.
func (e *Engine) GetSyncState(ctx context.Context) (*State, error) {
	if err := e.load(ctx); err != nil {
		return nil, err
	}

	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	return &State{Job: e.config.Job, LastSyncedAt: e.watermark, Phase: e.Phase()}, nil
}

// SetSyncState checkpoints the watermark. Moving it backwards requires force.
func (e *Engine) SetSyncState(ctx context.Context, lastSyncedAt time.Time, force bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.load(ctx); err != nil {
		return err
	}
	lastSyncedAt = lastSyncedAt.UTC()
	if lastSyncedAt.Before(e.watermark) && !force {
		return fmt.Errorf("%w: %s is before %s", ErrWatermarkRegression, lastSyncedAt.Format(time.RFC3339Nano), e.watermark.Format(time.RFC3339Nano))
	}

	previous := e.watermark
	e.setWatermark(lastSyncedAt)
	if err := e.persist(ctx); err != nil {
		e.setWatermark(previous)
		return errors.Wrap(err, "failed to persist sync state")
	}
	e.logger.Info("watermark checkpointed", "from", previous, "to", lastSyncedAt, "force", force)
	return nil
}
