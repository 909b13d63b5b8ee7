package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/tensai/store"
)

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestTTLCache_GetSet(t *testing.T) {
	clock := newFakeClock()
	c := NewTTLCache[string, int](Options{TTL: time.Minute, Now: clock.Now})

	_, ok := c.Get("a")
	assert.False(t, ok)

	c.Set("a", 1)
	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	// Last writer wins.
	c.Set("a", 2)
	v, _ = c.Get("a")
	assert.Equal(t, 2, v)

	c.Delete("a")
	_, ok = c.Get("a")
	assert.False(t, ok)
}

func TestTTLCache_ExpiredEntryIsMiss(t *testing.T) {
	clock := newFakeClock()
	c := NewTTLCache[string, int](Options{TTL: time.Minute, SweepInterval: time.Hour, Now: clock.Now})

	c.Set("a", 1)
	clock.Advance(59 * time.Second)
	_, ok := c.Get("a")
	assert.True(t, ok)

	clock.Advance(time.Second)
	_, ok = c.Get("a")
	assert.False(t, ok, "an entry is expired once its TTL has fully elapsed")
	assert.Zero(t, c.Len())
}

func TestTTLCache_InlineSweep(t *testing.T) {
	clock := newFakeClock()
	c := NewTTLCache[string, int](Options{TTL: time.Minute, SweepInterval: 2 * time.Minute, Now: clock.Now})

	c.Set("a", 1)
	c.Set("b", 2)
	clock.Advance(90 * time.Second)
	c.Set("c", 3)

	// Expired but not yet swept.
	assert.Equal(t, 3, c.Len())

	clock.Advance(31 * time.Second)
	// Any access after the sweep interval removes every expired entry.
	_, ok := c.Get("c")
	assert.True(t, ok)
	assert.Equal(t, 1, c.Len())
}

func TestTTLCache_Sweep(t *testing.T) {
	clock := newFakeClock()
	c := NewTTLCache[string, int](Options{TTL: time.Minute, Now: clock.Now})

	c.Set("a", 1)
	clock.Advance(30 * time.Second)
	c.Set("b", 2)
	clock.Advance(45 * time.Second)

	assert.Equal(t, 1, c.Sweep())
	assert.Equal(t, 1, c.Len())
}

func TestTTLCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c := NewTTLCache[string, int](Options{TTL: time.Minute, MaxItems: 2})

	c.Set("a", 1)
	c.Set("b", 2)
	_, _ = c.Get("a")
	c.Set("c", 3)

	_, ok := c.Get("b")
	assert.False(t, ok, "b was least recently used")
	_, ok = c.Get("a")
	assert.True(t, ok)
	_, ok = c.Get("c")
	assert.True(t, ok)
	assert.Equal(t, 2, c.Len())
}

func TestTTLCache_ConcurrentAccess(t *testing.T) {
	c := NewTTLCache[string, int](Options{TTL: time.Minute, MaxItems: 50})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := fmt.Sprintf("k%d", j%60)
				c.Set(key, i)
				c.Get(key)
			}
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, c.Len(), 50)
}

func TestRequestCaches(t *testing.T) {
	clock := newFakeClock()
	caches := NewRequestCaches(0, clock.Now)

	caches.Users.Set("alice", &store.User{ID: "u1", Username: "alice"})
	caches.QueryEmbeddings.Set("hi", []float32{1, 2})

	clock.Advance(time.Minute)
	_, ok := caches.QueryEmbeddings.Get("hi")
	assert.False(t, ok, "query embeddings live for one minute")
	user, ok := caches.Users.Get("alice")
	require.True(t, ok)
	assert.Equal(t, "u1", user.ID)

	clock.Advance(4 * time.Minute)
	_, ok = caches.Users.Get("alice")
	assert.False(t, ok, "users live for five minutes")
}
