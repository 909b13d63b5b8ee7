package store

import (
	"context"
	"time"
)

// Message is an immutable chat message. CreatedAt is assigned by the store on insert.
type Message struct {
	ID        string
	AuthorID  string
	Content   string
	CreatedAt time.Time
}

type FindMessage struct {
	ID       *string
	AuthorID *string
	// CreatedAfter selects messages with created_at strictly greater than the value.
	CreatedAfter *time.Time

	// OrderDesc orders by created_at descending. The default is ascending.
	OrderDesc bool
	Limit     *int
}

func (s *Store) CreateMessage(ctx context.Context, create *Message) (*Message, error) {
	return s.driver.CreateMessage(ctx, create)
}

func (s *Store) ListMessages(ctx context.Context, find *FindMessage) ([]*Message, error) {
	return s.driver.ListMessages(ctx, find)
}

// GetMessage returns the message with the given id, or nil.
func (s *Store) GetMessage(ctx context.Context, id string) (*Message, error) {
	list, err := s.ListMessages(ctx, &FindMessage{ID: &id})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

// ListMessagesAfter returns up to limit messages created strictly after ts, oldest first.
func (s *Store) ListMessagesAfter(ctx context.Context, ts time.Time, limit int) ([]*Message, error) {
	return s.ListMessages(ctx, &FindMessage{CreatedAfter: &ts, Limit: &limit})
}

// ListMessagesByAuthor returns up to limit messages of an author, newest first.
func (s *Store) ListMessagesByAuthor(ctx context.Context, authorID string, limit int) ([]*Message, error) {
	return s.ListMessages(ctx, &FindMessage{AuthorID: &authorID, OrderDesc: true, Limit: &limit})
}
