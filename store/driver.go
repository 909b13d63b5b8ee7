package store

import (
	"context"
	"database/sql"
	"time"
)

// Driver is the message store driver. It holds users and their messages.
type Driver interface {
	GetDB() *sql.DB
	Close() error

	IsInitialized(ctx context.Context) (bool, error)

	// User model related methods.
	CreateUser(ctx context.Context, create *User) (*User, error)
	ListUsers(ctx context.Context, find *FindUser) ([]*User, error)

	// Message model related methods.
	CreateMessage(ctx context.Context, create *Message) (*Message, error)
	ListMessages(ctx context.Context, find *FindMessage) ([]*Message, error)
}

// VectorDriver is the embedding store driver. It holds message embeddings and sync state.
type VectorDriver interface {
	GetDB() *sql.DB
	Close() error

	// BeginVectorTx starts a unit of work for embedding inserts.
	// Handles are independent; callers serialise writers themselves.
	BeginVectorTx(ctx context.Context) (VectorTx, error)
	// ListExistingEmbeddingIDs reports which of the given message ids already have an embedding row.
	ListExistingEmbeddingIDs(ctx context.Context, messageIDs []string) (map[string]bool, error)
	// QueryMessageEmbeddings returns matches ordered by descending similarity.
	QueryMessageEmbeddings(ctx context.Context, query *VectorQuery) ([]*EmbeddingMatch, error)
	CountMessageEmbeddings(ctx context.Context) (int, error)

	// SyncState model related methods.
	GetSyncState(ctx context.Context, job string) (*SyncState, error)
	UpsertSyncState(ctx context.Context, upsert *SyncState) error
}

// VectorTx is an open embedding transaction.
type VectorTx interface {
	// InsertMessageEmbeddings writes all rows or none.
	InsertMessageEmbeddings(ctx context.Context, rows []*MessageEmbedding) error
	Commit() error
	// Rollback is a no-op after Commit.
	Rollback() error
}

// ToMicros converts t to the integer representation stored in the database.
func ToMicros(t time.Time) int64 {
	return t.UnixMicro()
}

// FromMicros converts a stored timestamp back to UTC time.
func FromMicros(us int64) time.Time {
	return time.UnixMicro(us).UTC()
}
