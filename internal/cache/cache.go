// Package cache is a content-addressed store for AI responses. A hit means
// a repeated request costs nothing: no budget charge, no transport call.
package cache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/example/phonicsbot/pkg/models"
)

// TTLClass selects the expiry policy for a stored entry. Callers classify
// at store time: fixed curriculum content lives long, personalized or
// variable content expires quickly.
type TTLClass int

const (
	// TTLStatic is for content derived only from fixed curriculum data
	TTLStatic TTLClass = iota
	// TTLVariable is for personalized or style-dependent content
	TTLVariable
)

// PersistedEntry is the write-through representation of a cache entry.
type PersistedEntry struct {
	Fingerprint string
	Content     models.GeneratedContent
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

// Persister is the optional backing store for cross-session reuse. All
// calls are best-effort: a failure never affects the in-memory cache.
type Persister interface {
	Save(ctx context.Context, e PersistedEntry) error
	LoadLive(ctx context.Context, now time.Time) ([]PersistedEntry, error)
	DeleteExpired(ctx context.Context, now time.Time) error
}

// Stats reports cache performance counters.
type Stats struct {
	Entries    int
	TotalBytes int
	Hits       int64
	Misses     int64
}

type entry struct {
	fingerprint string
	content     models.GeneratedContent
	createdAt   time.Time
	expiresAt   time.Time
	size        int
}

// Cache is a mutex-guarded LRU bounded by the sum of payload sizes.
// Expired entries are logically absent before they are physically evicted,
// and are the preferred eviction candidates regardless of recency.
type Cache struct {
	mu         sync.Mutex
	maxBytes   int
	ttls       map[TTLClass]time.Duration
	entries    map[string]*list.Element
	lru        *list.List // front = most recently used
	totalBytes int
	hits       int64
	misses     int64

	persister Persister
	logger    *zap.Logger

	now func() time.Time
}

// New creates a cache. persister may be nil to disable write-through.
func New(maxBytes int, staticTTL, variableTTL time.Duration, persister Persister, logger *zap.Logger) *Cache {
	return &Cache{
		maxBytes: maxBytes,
		ttls: map[TTLClass]time.Duration{
			TTLStatic:   staticTTL,
			TTLVariable: variableTTL,
		},
		entries:   make(map[string]*list.Element),
		lru:       list.New(),
		persister: persister,
		logger:    logger,
		now:       time.Now,
	}
}

// Lookup returns the live entry for a fingerprint. An expired entry counts
// as a miss and is dropped on the spot.
func (c *Cache) Lookup(fingerprint string) (models.GeneratedContent, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[fingerprint]
	if !ok {
		c.misses++
		return models.GeneratedContent{}, false
	}

	e := el.Value.(*entry)
	if !c.now().Before(e.expiresAt) {
		c.remove(el)
		c.misses++
		return models.GeneratedContent{}, false
	}

	c.lru.MoveToFront(el)
	c.hits++
	return e.content, true
}

// Store inserts content under a fingerprint with the TTL of its class,
// replacing any previous entry. If the insert pushes the cache past its
// size bound, expired entries are evicted first, then least-recently-used
// live ones, until the new entry fits.
func (c *Cache) Store(fingerprint string, content models.GeneratedContent, class TTLClass) {
	now := c.now()
	e := &entry{
		fingerprint: fingerprint,
		content:     content,
		createdAt:   now,
		expiresAt:   now.Add(c.ttls[class]),
		size:        content.SizeHint(),
	}

	c.mu.Lock()
	if prev, ok := c.entries[fingerprint]; ok {
		c.remove(prev)
	}

	if e.size <= c.maxBytes {
		c.makeRoom(e.size)
		c.entries[fingerprint] = c.lru.PushFront(e)
		c.totalBytes += e.size
	}
	c.mu.Unlock()

	if c.persister != nil {
		// Best-effort write-through for cross-session reuse; never blocks
		// the caller's response path.
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			pe := PersistedEntry{
				Fingerprint: fingerprint,
				Content:     content,
				CreatedAt:   e.createdAt,
				ExpiresAt:   e.expiresAt,
			}
			if err := c.persister.Save(ctx, pe); err != nil {
				c.logger.Warn("cache write-through failed",
					zap.String("fingerprint", fingerprint), zap.Error(err))
			}
		}()
	}
}

// EvictExpired drops all entries whose TTL has elapsed and returns how many
// were removed. Run periodically by the background scheduler.
func (c *Cache) EvictExpired() int {
	now := c.now()

	c.mu.Lock()
	var removed int
	for el := c.lru.Back(); el != nil; {
		prev := el.Prev()
		if e := el.Value.(*entry); !now.Before(e.expiresAt) {
			c.remove(el)
			removed++
		}
		el = prev
	}
	c.mu.Unlock()

	if c.persister != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.persister.DeleteExpired(ctx, now); err != nil {
			c.logger.Warn("failed to delete expired persisted cache entries", zap.Error(err))
		}
	}
	return removed
}

// Warm loads persisted live entries into memory. A failure or partial load
// is acceptable: a cold cache only costs extra transport calls.
func (c *Cache) Warm(ctx context.Context) error {
	if c.persister == nil {
		return nil
	}
	persisted, err := c.persister.LoadLive(ctx, c.now())
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, pe := range persisted {
		if _, ok := c.entries[pe.Fingerprint]; ok {
			continue
		}
		e := &entry{
			fingerprint: pe.Fingerprint,
			content:     pe.Content,
			createdAt:   pe.CreatedAt,
			expiresAt:   pe.ExpiresAt,
			size:        pe.Content.SizeHint(),
		}
		if e.size > c.maxBytes {
			continue
		}
		c.makeRoom(e.size)
		c.entries[pe.Fingerprint] = c.lru.PushFront(e)
		c.totalBytes += e.size
	}
	return nil
}

// Stats returns current counters for observability.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Entries:    len(c.entries),
		TotalBytes: c.totalBytes,
		Hits:       c.hits,
		Misses:     c.misses,
	}
}

// makeRoom evicts until size more bytes fit: expired entries first,
// regardless of recency, then LRU order. Caller must hold c.mu.
func (c *Cache) makeRoom(size int) {
	if c.totalBytes+size <= c.maxBytes {
		return
	}

	now := c.now()
	for el := c.lru.Back(); el != nil && c.totalBytes+size > c.maxBytes; {
		prev := el.Prev()
		if e := el.Value.(*entry); !now.Before(e.expiresAt) {
			c.remove(el)
		}
		el = prev
	}

	for c.totalBytes+size > c.maxBytes {
		el := c.lru.Back()
		if el == nil {
			return
		}
		c.remove(el)
	}
}

// remove drops an element from both the map and the list. Caller must hold c.mu.
func (c *Cache) remove(el *list.Element) {
	e := el.Value.(*entry)
	c.lru.Remove(el)
	delete(c.entries, e.fingerprint)
	c.totalBytes -= e.size
}
