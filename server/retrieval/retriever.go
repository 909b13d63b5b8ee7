// Package retrieval selects the messages that ground a persona response.
package retrieval

import (
	"context"
	"log/slog"
	"sync"
	"unicode/utf8"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/hrygo/tensai/plugin/ai/cache"
	"github.com/hrygo/tensai/plugin/ai/timeout"
	"github.com/hrygo/tensai/store"
)

const (
	// DefaultThreshold is the similarity threshold of the candidate query.
	DefaultThreshold = 0.5

	maxQueryLength  = 1000
	joinParallelism = 8
)

var (
	// ErrInvalidQuery is returned for an empty or oversized query.
	ErrInvalidQuery = errors.New("invalid query")
	// ErrInvalidThreshold is returned for a threshold outside [0, 1].
	ErrInvalidThreshold = errors.New("threshold must be between 0 and 1")
	// ErrInvalidModel is returned for an unknown embedding model.
	ErrInvalidModel = errors.New("unknown embedding model")
)

// QueryEmbedder embeds query text in either stored form.
type QueryEmbedder interface {
	EmbedSmall(ctx context.Context, text string) ([]float32, error)
	EmbedLarge(ctx context.Context, text string) ([]float32, error)
}

// VectorSearcher runs nearest neighbour queries.
type VectorSearcher interface {
	QueryMessageEmbeddings(ctx context.Context, query *store.VectorQuery) ([]*store.EmbeddingMatch, error)
}

// MessageReader resolves message content.
type MessageReader interface {
	GetMessage(ctx context.Context, id string) (*store.Message, error)
	ListMessagesByAuthor(ctx context.Context, authorID string, limit int) ([]*store.Message, error)
}

// Options are the inputs of one retrieval.
type Options struct {
	Query string
	// AuthorID restricts candidates to one author. Empty searches everyone.
	AuthorID string
	// Threshold is the minimum raw similarity. Zero means DefaultThreshold.
	Threshold float64
	// ContextSize overrides the ranking context size when positive.
	ContextSize int
	// Model picks the vector searched. Empty means small.
	Model store.EmbeddingModel

	RequestID string
	Logger    *slog.Logger
}

// Retriever runs the two-stage retrieval: a wide vector query followed by ranking.
type Retriever struct {
	embedder QueryEmbedder
	vectors  VectorSearcher
	messages MessageReader
	ranking  Ranking
	// embeddings caches query embeddings. May be nil.
	embeddings *cache.TTLCache[string, []float32]
}

// NewRetriever creates a Retriever. embeddings may be nil.
func NewRetriever(embedder QueryEmbedder, vectors VectorSearcher, messages MessageReader, ranking Ranking, embeddings *cache.TTLCache[string, []float32]) *Retriever {
	return &Retriever{
		embedder:   embedder,
		vectors:    vectors,
		messages:   messages,
		ranking:    ranking,
		embeddings: embeddings,
	}
}

// Retrieve returns ranked context items for opts.Query. When nothing passes
// ranking and an author is given, the author's recent messages are returned
// with Fallback set.
func (r *Retriever) Retrieve(ctx context.Context, opts *Options) ([]*ContextItem, error) {
	if opts == nil || opts.Query == "" {
		return nil, errors.Wrap(ErrInvalidQuery, "query is required")
	}
	if n := utf8.RuneCountInString(opts.Query); n > maxQueryLength {
		return nil, errors.Wrapf(ErrInvalidQuery, "query too long: %d characters (max %d)", n, maxQueryLength)
	}
	threshold := opts.Threshold
	if threshold == 0 {
		threshold = DefaultThreshold
	}
	if threshold < 0 || threshold > 1 {
		return nil, errors.Wrapf(ErrInvalidThreshold, "got %v", threshold)
	}
	model := opts.Model
	switch model {
	case "":
		model = store.EmbeddingModelSmall
	case store.EmbeddingModelSmall, store.EmbeddingModelLarge:
	default:
		return nil, errors.Wrapf(ErrInvalidModel, "got %q", model)
	}
	ranking := r.ranking
	if opts.ContextSize > 0 {
		ranking.ContextSize = opts.ContextSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("request_id", opts.RequestID)

	vector, err := r.embedQuery(ctx, model, opts.Query)
	if err != nil {
		return nil, errors.Wrap(err, "failed to embed query")
	}

	query := &store.VectorQuery{
		Model:     model,
		Vector:    vector,
		Threshold: threshold,
		Limit:     ranking.CandidateLimit,
	}
	if opts.AuthorID != "" {
		query.AuthorID = &opts.AuthorID
	}
	matches, err := r.vectors.QueryMessageEmbeddings(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "vector query failed")
	}

	candidates, err := r.join(ctx, logger, matches)
	if err != nil {
		return nil, err
	}

	items := Rank(candidates, threshold, ranking)
	logger.InfoContext(ctx, "retrieval completed",
		"author_id", opts.AuthorID,
		"model", model,
		"candidates", len(matches),
		"joined", len(candidates),
		"ranked", len(items))

	if len(items) == 0 && opts.AuthorID != "" {
		return r.fallback(ctx, logger, opts.AuthorID, ranking.ContextSize)
	}
	return items, nil
}

func (r *Retriever) embedQuery(ctx context.Context, model store.EmbeddingModel, text string) ([]float32, error) {
	key := string(model) + ":" + text
	if r.embeddings != nil {
		if v, ok := r.embeddings.Get(key); ok {
			return v, nil
		}
	}

	ctx, cancel := context.WithTimeout(ctx, timeout.EmbeddingTimeout)
	defer cancel()
	embed := r.embedder.EmbedSmall
	if model == store.EmbeddingModelLarge {
		embed = r.embedder.EmbedLarge
	}
	v, err := embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if r.embeddings != nil {
		r.embeddings.Set(key, v)
	}
	return v, nil
}

// join loads the content of each match. Matches whose message is gone are dropped.
func (r *Retriever) join(ctx context.Context, logger *slog.Logger, matches []*store.EmbeddingMatch) ([]*Candidate, error) {
	joined := make([]*Candidate, len(matches))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(joinParallelism)
	var mu sync.Mutex
	missing := 0
	for i, m := range matches {
		g.Go(func() error {
			message, err := r.messages.GetMessage(gctx, m.MessageID)
			if err != nil {
				return errors.Wrapf(err, "failed to load message %s", m.MessageID)
			}
			if message == nil {
				mu.Lock()
				missing++
				mu.Unlock()
				logger.WarnContext(gctx, "embedding refers to a missing message", "message_id", m.MessageID)
				return nil
			}
			joined[i] = &Candidate{
				MessageID:  message.ID,
				AuthorID:   message.AuthorID,
				Content:    message.Content,
				Similarity: m.Similarity,
				CreatedAt:  message.CreatedAt,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	candidates := make([]*Candidate, 0, len(matches)-missing)
	for _, c := range joined {
		if c != nil {
			candidates = append(candidates, c)
		}
	}
	return candidates, nil
}

func (r *Retriever) fallback(ctx context.Context, logger *slog.Logger, authorID string, limit int) ([]*ContextItem, error) {
	messages, err := r.messages.ListMessagesByAuthor(ctx, authorID, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list recent messages")
	}
	items := make([]*ContextItem, 0, len(messages))
	for _, m := range messages {
		items = append(items, &ContextItem{
			MessageID: m.ID,
			AuthorID:  m.AuthorID,
			Content:   m.Content,
			CreatedAt: m.CreatedAt,
			Fallback:  true,
		})
	}
	logger.InfoContext(ctx, "no ranked context, using recent messages", "author_id", authorID, "count", len(items))
	return items, nil
}
