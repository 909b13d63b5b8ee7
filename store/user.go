package store

import (
	"context"
	"time"
)

// User is an author of messages.
type User struct {
	ID        string
	Username  string
	AvatarURL string
	CreatedAt time.Time
}

type FindUser struct {
	ID       *string
	Username *string

	// Limit caps the result size; rows are returned newest first.
	Limit *int
}

func (s *Store) CreateUser(ctx context.Context, create *User) (*User, error) {
	return s.driver.CreateUser(ctx, create)
}

func (s *Store) ListUsers(ctx context.Context, find *FindUser) ([]*User, error) {
	return s.driver.ListUsers(ctx, find)
}

// GetUserByName returns the most recently created user with the given username, or nil.
func (s *Store) GetUserByName(ctx context.Context, username string) (*User, error) {
	limit := 1
	list, err := s.ListUsers(ctx, &FindUser{Username: &username, Limit: &limit})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}
