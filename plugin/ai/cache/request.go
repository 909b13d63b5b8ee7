package cache

import (
	"time"

	"github.com/hrygo/tensai/store"
)

const (
	// UserTTL is how long a resolved user stays cached.
	UserTTL = 5 * time.Minute
	// QueryEmbeddingTTL is how long a query embedding stays cached.
	QueryEmbeddingTTL = time.Minute
)

// RequestCaches memoizes lookups of the chat read path.
type RequestCaches struct {
	// Users maps a username to its resolved user.
	Users *TTLCache[string, *store.User]
	// QueryEmbeddings maps an exact query text to its small embedding.
	QueryEmbeddings *TTLCache[string, []float32]
}

// NewRequestCaches creates the caches with their default TTLs. now may be nil.
func NewRequestCaches(maxItems int, now func() time.Time) *RequestCaches {
	return &RequestCaches{
		Users:           NewTTLCache[string, *store.User](Options{TTL: UserTTL, MaxItems: maxItems, Now: now}),
		QueryEmbeddings: NewTTLCache[string, []float32](Options{TTL: QueryEmbeddingTTL, MaxItems: maxItems, Now: now}),
	}
}
