// Package cache holds extracted task records per document and a whole
// collection snapshot with a time-to-live.
package cache

import (
	"container/list"
	"slices"
	"sync"
	"time"

	"github.com/msageha/taskscope/internal/model"
)

const DefaultTTL = 5 * time.Minute

// Cache is safe for concurrent use.
//
// Every invalidation bumps a generation counter. Writers that started work
// before an invalidation use the *If setters so their results are dropped
// instead of resurrecting discarded data.
type Cache struct {
	mu      sync.RWMutex
	files   map[string]*list.Element
	lru     *list.List
	maxSize int
	ttl     time.Duration
	now     func() time.Time

	global      []model.Task
	hasGlobal   bool
	lastRefresh time.Time
	generation  uint64

	hits          uint64
	misses        uint64
	invalidations uint64
	evictions     uint64
}

type fileEntry struct {
	path  string
	tasks []model.Task
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithMaxFiles bounds the number of per-document entries. The least recently
// used entry is evicted first. Zero means unbounded.
func WithMaxFiles(n int) Option {
	return func(c *Cache) { c.maxSize = n }
}

// New creates a cache. A non-positive ttl selects DefaultTTL.
func New(ttl time.Duration, opts ...Option) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &Cache{
		files: make(map[string]*list.Element),
		lru:   list.New(),
		ttl:   ttl,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetFileCache returns the cached records of one document.
func (c *Cache) GetFileCache(path string) ([]model.Task, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.files[path]
	if !ok {
		c.misses++
		return nil, false
	}
	c.hits++
	c.lru.MoveToFront(elem)
	return slices.Clone(elem.Value.(*fileEntry).tasks), true
}

// SetFileCache replaces the records of one document.
func (c *Cache) SetFileCache(path string, tasks []model.Task) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setFileLocked(path, tasks)
}

// SetFileCacheIf stores the records only if no invalidation happened since gen
// was read. It reports whether the entry was stored.
func (c *Cache) SetFileCacheIf(path string, tasks []model.Task, gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation != gen {
		return false
	}
	c.setFileLocked(path, tasks)
	return true
}

func (c *Cache) setFileLocked(path string, tasks []model.Task) {
	tasks = slices.Clone(tasks)
	if elem, ok := c.files[path]; ok {
		c.lru.MoveToFront(elem)
		elem.Value.(*fileEntry).tasks = tasks
		return
	}
	c.files[path] = c.lru.PushFront(&fileEntry{path: path, tasks: tasks})
	if c.maxSize > 0 && c.lru.Len() > c.maxSize {
		oldest := c.lru.Back()
		c.lru.Remove(oldest)
		delete(c.files, oldest.Value.(*fileEntry).path)
		c.evictions++
	}
}

func (c *Cache) HasFileCache(path string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.files[path]
	return ok
}

// InvalidateFile drops one document's records and discards the global snapshot.
func (c *Cache) InvalidateFile(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.files[path]; ok {
		c.lru.Remove(elem)
		delete(c.files, path)
	}
	c.dropGlobalLocked()
}

// InvalidateAll clears every entry and resets the refresh timestamp.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.files = make(map[string]*list.Element)
	c.lru = list.New()
	c.dropGlobalLocked()
	c.lastRefresh = time.Time{}
}

func (c *Cache) dropGlobalLocked() {
	c.global = nil
	c.hasGlobal = false
	c.generation++
	c.invalidations++
}

// IsGlobalCacheValid reports whether a snapshot exists and is younger than the TTL.
func (c *Cache) IsGlobalCacheValid() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hasGlobal && c.now().Sub(c.lastRefresh) < c.ttl
}

// GetGlobalCache returns the snapshot, or nil when it was discarded.
// Staleness is not checked.
func (c *Cache) GetGlobalCache() []model.Task {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.hasGlobal {
		return nil
	}
	return slices.Clone(c.global)
}

// SetGlobalCache stores a snapshot and stamps the refresh time.
func (c *Cache) SetGlobalCache(tasks []model.Task) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setGlobalLocked(tasks)
}

// SetGlobalCacheIf is SetGlobalCache guarded by a generation read earlier.
func (c *Cache) SetGlobalCacheIf(tasks []model.Task, gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation != gen {
		return false
	}
	c.setGlobalLocked(tasks)
	return true
}

func (c *Cache) setGlobalLocked(tasks []model.Task) {
	if tasks == nil {
		tasks = []model.Task{}
	}
	c.global = slices.Clone(tasks)
	c.hasGlobal = true
	c.lastRefresh = c.now()
}

// Generation returns the current invalidation generation.
func (c *Cache) Generation() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.generation
}

// Stats represents cache statistics
type Stats struct {
	Files         int           `json:"files"`
	FileRecords   int           `json:"file_records"`
	GlobalRecords int           `json:"global_records"`
	GlobalValid   bool          `json:"global_valid"`
	LastRefresh   time.Time     `json:"last_refresh"`
	Age           time.Duration `json:"age"`
	TTL           time.Duration `json:"ttl"`
	Hits          uint64        `json:"hits"`
	Misses        uint64        `json:"misses"`
	Invalidations uint64        `json:"invalidations"`
	Evictions     uint64        `json:"evictions"`
	Generation    uint64        `json:"generation"`
}

// Stats returns cache statistics
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Stats{
		Files:         len(c.files),
		GlobalRecords: len(c.global),
		LastRefresh:   c.lastRefresh,
		TTL:           c.ttl,
		Hits:          c.hits,
		Misses:        c.misses,
		Invalidations: c.invalidations,
		Evictions:     c.evictions,
		Generation:    c.generation,
	}
	for elem := c.lru.Front(); elem != nil; elem = elem.Next() {
		s.FileRecords += len(elem.Value.(*fileEntry).tasks)
	}
	if c.hasGlobal {
		s.Age = c.now().Sub(c.lastRefresh)
		s.GlobalValid = s.Age < c.ttl
	}
	return s
}
