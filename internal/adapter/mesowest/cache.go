package mesowest

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/wx-verification-etl/internal/domain"
	"github.com/couchcryptid/wx-verification-etl/internal/observability"
)

// DefaultCatalogTTL bounds how long a station's sensor catalog is reused.
const DefaultCatalogTTL = 24 * time.Hour

// CachedCatalog wraps an ObservationSource with an in-memory LRU cache of
// sensor catalogs. Timeseries requests pass through uncached.
type CachedCatalog struct {
	domain.ObservationSource
	cache   *lruCache[catalogEntry]
	ttl     time.Duration
	clock   clockwork.Clock
	metrics *observability.Metrics
}

type catalogEntry struct {
	vars      []string
	fetchedAt time.Time
}

// NewCachedCatalog creates a cache decorator around an observation source.
func NewCachedCatalog(inner domain.ObservationSource, maxEntries int, ttl time.Duration, clock clockwork.Clock, metrics *observability.Metrics) *CachedCatalog {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &CachedCatalog{
		ObservationSource: inner,
		cache:             newLRUCache[catalogEntry](maxEntries),
		ttl:               ttl,
		clock:             clock,
		metrics:           metrics,
	}
}

func (c *CachedCatalog) SensorCatalog(ctx context.Context, stationID string) ([]string, error) {
	key := strings.ToUpper(stationID)
	if e, ok := c.cache.get(key); ok && c.clock.Since(e.fetchedAt) < c.ttl {
		c.metrics.CatalogCache.WithLabelValues("hit").Inc()
		return slices.Clone(e.vars), nil
	}
	c.metrics.CatalogCache.WithLabelValues("miss").Inc()

	vars, err := c.ObservationSource.SensorCatalog(ctx, stationID)
	if err != nil {
		return nil, err
	}
	// Empty catalogs are not cached so a station coming back online is seen.
	if len(vars) > 0 {
		c.cache.put(key, catalogEntry{vars: slices.Clone(vars), fetchedAt: c.clock.Now()})
	}
	return vars, nil
}

// lruCache is a simple thread-safe LRU cache.
type lruCache[V any] struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[string]*entry[V]
	head       *entry[V] // most recently used
	tail       *entry[V] // least recently used
}

type entry[V any] struct {
	key   string
	value V
	prev  *entry[V]
	next  *entry[V]
}

func newLRUCache[V any](maxEntries int) *lruCache[V] {
	return &lruCache[V]{
		maxEntries: maxEntries,
		entries:    make(map[string]*entry[V]),
	}
}

func (c *lruCache[V]) get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	c.moveToFront(e)
	return e.value, true
}

func (c *lruCache[V]) put(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		c.moveToFront(e)
		return
	}

	e := &entry[V]{key: key, value: value}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

func (c *lruCache[V]) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *lruCache[V]) moveToFront(e *entry[V]) {
	if e == c.head {
		return
	}
	c.remove(e)
	c.addToFront(e)
}

func (c *lruCache[V]) addToFront(e *entry[V]) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *lruCache[V]) remove(e *entry[V]) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *lruCache[V]) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.remove(c.tail)
}
