package store

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

const (
	// SmallDimensions is the length of the small embedding vector.
	SmallDimensions = 1536
	// LargeDimensions is the length of the large embedding vector.
	LargeDimensions = 3072
)

// MessageEmbedding is the derived vector row of a message. At most one row exists per message.
type MessageEmbedding struct {
	MessageID string
	AuthorID  string
	Small     []float32
	Large     []float32
	CreatedAt time.Time
}

// EmbeddingModel selects which of the two stored vectors a query searches.
type EmbeddingModel string

const (
	EmbeddingModelSmall EmbeddingModel = "small"
	EmbeddingModelLarge EmbeddingModel = "large"
)

// Dimensions returns the vector length of the model. The zero value is small.
func (m EmbeddingModel) Dimensions() int {
	if m == EmbeddingModelLarge {
		return LargeDimensions
	}
	return SmallDimensions
}

// Column returns the embedding column searched for the model.
func (m EmbeddingModel) Column() string {
	if m == EmbeddingModelLarge {
		return "embedding_large"
	}
	return "embedding_small"
}

// VectorQuery is a nearest neighbour query on one of the stored vectors.
type VectorQuery struct {
	// Model picks the searched vector. Empty means small.
	Model     EmbeddingModel
	Vector    []float32
	Threshold float64 // minimum cosine similarity, inclusive
	Limit     int
	AuthorID  *string // restricts matches to one owner
}

// EmbeddingMatch is a candidate returned by a vector query.
type EmbeddingMatch struct {
	MessageID  string
	AuthorID   string
	Similarity float64
}

// BeginVectorTx opens a transaction on the vector store.
func (s *Store) BeginVectorTx(ctx context.Context) (VectorTx, error) {
	return s.vector.BeginVectorTx(ctx)
}

// InsertMessageEmbeddings inserts rows in one transaction.
func (s *Store) InsertMessageEmbeddings(ctx context.Context, rows []*MessageEmbedding) error {
	tx, err := s.vector.BeginVectorTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := tx.InsertMessageEmbeddings(ctx, rows); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) ListExistingEmbeddingIDs(ctx context.Context, messageIDs []string) (map[string]bool, error) {
	if len(messageIDs) == 0 {
		return map[string]bool{}, nil
	}
	return s.vector.ListExistingEmbeddingIDs(ctx, messageIDs)
}

func (s *Store) QueryMessageEmbeddings(ctx context.Context, query *VectorQuery) ([]*EmbeddingMatch, error) {
	switch query.Model {
	case "", EmbeddingModelSmall, EmbeddingModelLarge:
	default:
		return nil, errors.Errorf("unknown embedding model %q", query.Model)
	}
	if want := query.Model.Dimensions(); len(query.Vector) != want {
		return nil, errors.Errorf("query vector has %d dimensions, %s expects %d", len(query.Vector), query.Model.Column(), want)
	}
	return s.vector.QueryMessageEmbeddings(ctx, query)
}

func (s *Store) CountMessageEmbeddings(ctx context.Context) (int, error) {
	return s.vector.CountMessageEmbeddings(ctx)
}
