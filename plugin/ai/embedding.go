package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/sync/errgroup"
)

const (
	// SmallDimensions is the output size of the small embedding model.
	SmallDimensions = 1536
	// LargeDimensions is the output size of the large embedding model.
	LargeDimensions = 3072

	defaultBatchSize     = 100
	defaultRetryAttempts = 3

	// maxParallelTexts bounds the texts of one chunk embedded at the same time.
	maxParallelTexts = 16
)

// EmbeddingService is the vector embedding service interface.
type EmbeddingService interface {
	// Embed generates vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates vectors for multiple texts.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the vector dimension.
	Dimensions() int

	// Model returns the model identifier.
	Model() string
}

type embeddingService struct {
	client     *openai.Client
	model      string
	dimensions int
}

// NewEmbeddingService creates an OpenAI compatible EmbeddingService for one model.
func NewEmbeddingService(cfg *EmbeddingConfig) (EmbeddingService, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("embedding model is required")
	}
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("invalid embedding dimensions: %d", cfg.Dimensions)
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	return &embeddingService{
		client:     openai.NewClientWithConfig(clientConfig),
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
	}, nil
}

func (s *embeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := s.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, ErrEmptyEmbedding
	}
	return vectors[0], nil
}

func (s *embeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyText
	}

	req := openai.EmbeddingRequest{
		Input:      texts,
		Model:      openai.EmbeddingModel(s.model),
		Dimensions: s.dimensions,
	}

	resp, err := s.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("create embeddings failed: %w", err)
	}

	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", ErrEmptyEmbedding, len(resp.Data), len(texts))
	}

	// The provider may answer out of order; Index is authoritative.
	vectors := make([][]float32, len(texts))
	for _, data := range resp.Data {
		if data.Index < 0 || data.Index >= len(vectors) {
			return nil, fmt.Errorf("embedding index %d out of range", data.Index)
		}
		vectors[data.Index] = data.Embedding
	}

	return vectors, nil
}

func (s *embeddingService) Dimensions() int {
	return s.dimensions
}

func (s *embeddingService) Model() string {
	return s.model
}

// MessageVectors holds both embedding forms of one text.
type MessageVectors struct {
	Small []float32
	Large []float32
}

// EmbedResult is the outcome for one text of EmbedEach.
type EmbedResult struct {
	Vectors *MessageVectors
	Err     error
}

// EmbeddingClient generates small and large embeddings with bounded retries.
type EmbeddingClient struct {
	small         EmbeddingService
	large         EmbeddingService
	batchSize     int
	retryAttempts int
	backoff       time.Duration
}

// NewEmbeddingClient creates a new EmbeddingClient.
func NewEmbeddingClient(small, large EmbeddingService, cfg EmbeddingClientConfig) *EmbeddingClient {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.RetryAttempts < 0 {
		cfg.RetryAttempts = defaultRetryAttempts
	}

	return &EmbeddingClient{
		small:         small,
		large:         large,
		batchSize:     cfg.BatchSize,
		retryAttempts: cfg.RetryAttempts,
		backoff:       cfg.Backoff,
	}
}

// EmbedSmall returns the small embedding of text.
func (c *EmbeddingClient) EmbedSmall(ctx context.Context, text string) ([]float32, error) {
	return c.embedWithRetry(ctx, c.small, 0, text)
}

// EmbedLarge returns the large embedding of text.
func (c *EmbeddingClient) EmbedLarge(ctx context.Context, text string) ([]float32, error) {
	return c.embedWithRetry(ctx, c.large, 0, text)
}

// EmbedMessage generates the small and large embeddings of text concurrently.
func (c *EmbeddingClient) EmbedMessage(ctx context.Context, text string) (*MessageVectors, error) {
	return c.embedMessage(ctx, 0, text)
}

func (c *EmbeddingClient) embedMessage(ctx context.Context, index int, text string) (*MessageVectors, error) {
	var vectors MessageVectors
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		v, err := c.embedWithRetry(gctx, c.small, index, text)
		vectors.Small = v
		return err
	})
	g.Go(func() error {
		v, err := c.embedWithRetry(gctx, c.large, index, text)
		vectors.Large = v
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &vectors, nil
}

// EmbedBatch embeds texts in chunks of at most BatchSize. Chunks run one
// after another; the texts of a chunk run concurrently. The first failure
// stops the batch with an *EmbeddingError naming the failed text.
func (c *EmbeddingClient) EmbedBatch(ctx context.Context, texts []string) ([]*MessageVectors, error) {
	results := make([]*MessageVectors, len(texts))
	for start := 0; start < len(texts); start += c.batchSize {
		end := min(start+c.batchSize, len(texts))

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(maxParallelTexts)
		for i := start; i < end; i++ {
			g.Go(func() error {
				vectors, err := c.embedMessage(gctx, i, texts[i])
				if err != nil {
					return err
				}
				results[i] = vectors
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}
	return results, nil
}

// EmbedEach embeds every text and reports the outcome per text, so that one
// failure does not affect the others.
func (c *EmbeddingClient) EmbedEach(ctx context.Context, texts []string) []EmbedResult {
	results := make([]EmbedResult, len(texts))
	for start := 0; start < len(texts); start += c.batchSize {
		end := min(start+c.batchSize, len(texts))

		var g errgroup.Group
		g.SetLimit(maxParallelTexts)
		for i := start; i < end; i++ {
			g.Go(func() error {
				vectors, err := c.embedMessage(ctx, i, texts[i])
				results[i] = EmbedResult{Vectors: vectors, Err: err}
				return nil
			})
		}
		_ = g.Wait()
	}
	return results
}

// embedWithRetry makes one attempt plus up to retryAttempts retries.
func (c *EmbeddingClient) embedWithRetry(ctx context.Context, svc EmbeddingService, index int, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, &EmbeddingError{Index: index, Model: svc.Model(), Cause: ErrEmptyText}
	}

	var lastErr error
	attempts := 0
	for attempt := 0; attempt <= c.retryAttempts; attempt++ {
		if attempt > 0 && c.backoff > 0 {
			select {
			case <-ctx.Done():
				return nil, &EmbeddingError{Index: index, Model: svc.Model(), Attempts: attempts, Cause: ctx.Err()}
			case <-time.After(time.Duration(attempt) * c.backoff):
			}
		}

		attempts++
		vector, err := svc.Embed(ctx, text)
		if err == nil {
			if len(vector) == 0 {
				err = ErrEmptyEmbedding
			} else if len(vector) != svc.Dimensions() {
				err = &DimensionError{Model: svc.Model(), Got: len(vector), Expected: svc.Dimensions()}
			} else {
				return vector, nil
			}
		}
		lastErr = err

		if ctx.Err() != nil {
			break
		}
	}

	return nil, &EmbeddingError{Index: index, Model: svc.Model(), Attempts: attempts, Cause: lastErr}
}
