package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/example/phonicsbot/pkg/models"
)

func newTestCache(maxBytes int) (*Cache, *time.Time) {
	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c := New(maxBytes, 24*time.Hour, time.Hour, nil, zap.NewNop())
	c.now = func() time.Time { return current }
	return c, &current
}

func text(s string) models.GeneratedContent {
	return models.GeneratedContent{Text: s}
}

func TestStoreLookupRoundTrip(t *testing.T) {
	c, _ := newTestCache(1024)

	c.Store("fp-1", text("the cat sat"), TTLStatic)

	got, ok := c.Lookup("fp-1")
	require.True(t, ok)
	assert.Equal(t, "the cat sat", got.Text)

	_, ok = c.Lookup("fp-2")
	assert.False(t, ok)
}

func TestExpiredEntryIsLogicallyAbsent(t *testing.T) {
	c, current := newTestCache(1024)

	c.Store("fp-1", text("short lived"), TTLVariable)
	*current = current.Add(time.Hour + time.Second)

	_, ok := c.Lookup("fp-1")
	assert.False(t, ok, "expired entries must read as misses")
}

func TestTTLClassesDiffer(t *testing.T) {
	c, current := newTestCache(1024)

	c.Store("static", text("fixed content"), TTLStatic)
	c.Store("variable", text("personalized"), TTLVariable)

	*current = current.Add(2 * time.Hour)

	_, ok := c.Lookup("static")
	assert.True(t, ok, "static content should outlive the variable TTL")
	_, ok = c.Lookup("variable")
	assert.False(t, ok)
}

func TestLRUEvictionUnderPressure(t *testing.T) {
	c, _ := newTestCache(30)

	c.Store("a", text("aaaaaaaaaa"), TTLStatic) // 10 bytes
	c.Store("b", text("bbbbbbbbbb"), TTLStatic)
	c.Store("c", text("cccccccccc"), TTLStatic)

	// Touch "a" so "b" becomes least recently used
	_, ok := c.Lookup("a")
	require.True(t, ok)

	c.Store("d", text("dddddddddd"), TTLStatic)

	_, ok = c.Lookup("b")
	assert.False(t, ok, "least recently used entry should be evicted")
	for _, fp := range []string{"a", "c", "d"} {
		_, ok := c.Lookup(fp)
		assert.True(t, ok, "entry %q should survive", fp)
	}
}

func TestExpiredPreferredOverRecentForEviction(t *testing.T) {
	c, current := newTestCache(30)

	c.Store("old", text("oooooooooo"), TTLVariable)
	*current = current.Add(2 * time.Hour) // "old" expires

	c.Store("live1", text("1111111111"), TTLStatic)
	c.Store("live2", text("2222222222"), TTLStatic)

	// "old" was most recently stored before the jump but is expired, so it
	// must go before either live entry.
	c.Store("live3", text("3333333333"), TTLStatic)

	for _, fp := range []string{"live1", "live2", "live3"} {
		_, ok := c.Lookup(fp)
		assert.True(t, ok, "live entry %q should survive", fp)
	}
}

func TestOversizedEntryIsNotCached(t *testing.T) {
	c, _ := newTestCache(5)

	c.Store("big", text("far too large for the cache"), TTLStatic)

	_, ok := c.Lookup("big")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Stats().Entries)
}

func TestEvictExpired(t *testing.T) {
	c, current := newTestCache(1024)

	c.Store("a", text("aaa"), TTLVariable)
	c.Store("b", text("bbb"), TTLVariable)
	c.Store("keep", text("ccc"), TTLStatic)

	*current = current.Add(2 * time.Hour)
	removed := c.EvictExpired()

	assert.Equal(t, 2, removed)
	assert.Equal(t, 1, c.Stats().Entries)
}

type fakePersister struct {
	mu      sync.Mutex
	saved   map[string]PersistedEntry
	loadErr error
}

func newFakePersister() *fakePersister {
	return &fakePersister{saved: make(map[string]PersistedEntry)}
}

func (p *fakePersister) Save(_ context.Context, e PersistedEntry) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.saved[e.Fingerprint] = e
	return nil
}

func (p *fakePersister) LoadLive(_ context.Context, now time.Time) ([]PersistedEntry, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.loadErr != nil {
		return nil, p.loadErr
	}
	var out []PersistedEntry
	for _, e := range p.saved {
		if e.ExpiresAt.After(now) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (p *fakePersister) DeleteExpired(_ context.Context, now time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for fp, e := range p.saved {
		if !now.Before(e.ExpiresAt) {
			delete(p.saved, fp)
		}
	}
	return nil
}

func TestWarmLoadsLiveEntries(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	p := newFakePersister()
	p.saved["live"] = PersistedEntry{
		Fingerprint: "live",
		Content:     text("warm me"),
		CreatedAt:   now.Add(-time.Hour),
		ExpiresAt:   now.Add(time.Hour),
	}
	p.saved["stale"] = PersistedEntry{
		Fingerprint: "stale",
		Content:     text("too old"),
		CreatedAt:   now.Add(-48 * time.Hour),
		ExpiresAt:   now.Add(-time.Hour),
	}

	c := New(1024, 24*time.Hour, time.Hour, p, zap.NewNop())
	c.now = func() time.Time { return now }

	require.NoError(t, c.Warm(context.Background()))

	got, ok := c.Lookup("live")
	require.True(t, ok)
	assert.Equal(t, "warm me", got.Text)

	_, ok = c.Lookup("stale")
	assert.False(t, ok)
}

func TestWarmFailureIsNotFatal(t *testing.T) {
	p := newFakePersister()
	p.loadErr = fmt.Errorf("store unavailable")

	c := New(1024, 24*time.Hour, time.Hour, p, zap.NewNop())
	err := c.Warm(context.Background())
	assert.Error(t, err)

	// The cache still works cold
	c.Store("fp", text("fresh"), TTLStatic)
	_, ok := c.Lookup("fp")
	assert.True(t, ok)
}
