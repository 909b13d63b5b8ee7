package ai

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyEmbedding is returned when the provider answers without a vector.
	ErrEmptyEmbedding = errors.New("empty embedding result")
	// ErrEmptyText is returned for blank input. It is never retried.
	ErrEmptyText = errors.New("no text provided for embedding")
)

// EmbeddingError reports a text whose embedding could not be generated after
// every attempt was used.
type EmbeddingError struct {
	// Index is the position of the failed text in the caller's input.
	Index    int
	Model    string
	Attempts int
	Cause    error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("embedding text %d with %s failed after %d attempt(s): %v", e.Index, e.Model, e.Attempts, e.Cause)
}

func (e *EmbeddingError) Unwrap() error {
	return e.Cause
}

// DimensionError is returned when a provider vector has an unexpected length.
type DimensionError struct {
	Model    string
	Got      int
	Expected int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("%s returned %d dimensions, expected %d", e.Model, e.Got, e.Expected)
}
