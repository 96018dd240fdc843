// Package query maintains the collection-wide task snapshot and answers
// filtered, sorted and grouped queries against it.
package query

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/msageha/taskscope/internal/cache"
	"github.com/msageha/taskscope/internal/events"
	"github.com/msageha/taskscope/internal/logging"
	"github.com/msageha/taskscope/internal/model"
)

const DefaultBatchSize = 10

const refreshKey = "all"

// Lister enumerates the documents eligible for extraction.
type Lister interface {
	List(ctx context.Context) ([]string, error)
}

// Extractor returns the records of one document.
type Extractor interface {
	Extract(ctx context.Context, path string) ([]model.Task, error)
}

// CoordinatorStats describes refresh activity.
type CoordinatorStats struct {
	Refreshes         int           `json:"refreshes"`
	FailedRefreshes   int           `json:"failed_refreshes"`
	Extracted         int           `json:"extracted"`
	Reused            int           `json:"reused"`
	FailedDocuments   int           `json:"failed_documents"`
	LastRunID         string        `json:"last_run_id"`
	LastRefresh       time.Time     `json:"last_refresh"`
	LastDuration      time.Duration `json:"last_duration"`
	LastDocumentCount int           `json:"last_document_count"`
	LastTaskCount     int           `json:"last_task_count"`
}

// Coordinator owns the refresh of the global snapshot. Concurrent callers
// that need a refresh share a single execution.
type Coordinator struct {
	lister    Lister
	extractor Extractor
	cache     *cache.Cache
	bus       *events.Bus
	logger    *logging.Logger
	batchSize int
	newRunID  func() string

	sf singleflight.Group

	mu    sync.Mutex
	last  []model.Task
	stats CoordinatorStats
}

type CoordinatorOption func(*Coordinator)

// WithBatchSize sets how many documents are read concurrently per batch.
func WithBatchSize(n int) CoordinatorOption {
	return func(c *Coordinator) {
		if n > 0 {
			c.batchSize = n
		}
	}
}

func WithBus(b *events.Bus) CoordinatorOption {
	return func(c *Coordinator) { c.bus = b }
}

func WithLogger(l *logging.Logger) CoordinatorOption {
	return func(c *Coordinator) { c.logger = l.With("coordinator") }
}

func NewCoordinator(l Lister, x Extractor, c *cache.Cache, opts ...CoordinatorOption) *Coordinator {
	co := &Coordinator{
		lister:    l,
		extractor: x,
		cache:     c,
		batchSize: DefaultBatchSize,
		newRunID:  func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(co)
	}
	return co
}

// Cache returns the cache the coordinator refreshes.
func (c *Coordinator) Cache() *cache.Cache {
	return c.cache
}

// AllTasks returns the global snapshot when valid and refreshes it otherwise.
func (c *Coordinator) AllTasks(ctx context.Context) []model.Task {
	if c.cache.IsGlobalCacheValid() {
		if snap := c.cache.GetGlobalCache(); snap != nil {
			return snap
		}
	}
	return c.Refresh(ctx)
}

// Refresh rebuilds the snapshot, joining a refresh already in flight.
// Cancelling ctx does not abort the refresh.
func (c *Coordinator) Refresh(ctx context.Context) []model.Task {
	detached := context.WithoutCancel(ctx)
	v, _, _ := c.sf.Do(refreshKey, func() (interface{}, error) {
		return c.refresh(detached), nil
	})
	return slices.Clone(v.([]model.Task))
}

// ForceRefresh discards every cached record and rebuilds the snapshot. A
// refresh already in flight is not joined; it started before the invalidation.
func (c *Coordinator) ForceRefresh(ctx context.Context) []model.Task {
	c.cache.InvalidateAll()
	c.sf.Forget(refreshKey)
	return c.Refresh(ctx)
}

func (c *Coordinator) Stats() CoordinatorStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

func (c *Coordinator) refresh(ctx context.Context) []model.Task {
	runID := c.newRunID()
	start := time.Now()
	gen := c.cache.Generation()

	paths, err := c.lister.List(ctx)
	if err != nil {
		c.logger.Errorf("run %s: list documents: %v", runID, err)
		c.mu.Lock()
		c.stats.FailedRefreshes++
		last := c.last
		c.mu.Unlock()
		c.bus.Publish(events.Event{Type: events.EventRefreshFailed, RunID: runID, Reason: err.Error()})
		if last == nil {
			return []model.Task{}
		}
		return last
	}

	var extracted, reused, failed atomic.Int64
	all := make([]model.Task, 0, len(paths))
	for i := 0; i < len(paths); i += c.batchSize {
		batch := paths[i:min(i+c.batchSize, len(paths))]
		results := make([][]model.Task, len(batch))

		var g errgroup.Group
		g.SetLimit(c.batchSize)
		for j, p := range batch {
			g.Go(func() error {
				if recs, ok := c.cache.GetFileCache(p); ok {
					results[j] = recs
					reused.Add(1)
					return nil
				}
				recs, err := c.extractor.Extract(ctx, p)
				if err != nil {
					c.logger.Warnf("run %s: extract %s: %v", runID, p, err)
					failed.Add(1)
					return nil
				}
				c.cache.SetFileCacheIf(p, recs, gen)
				results[j] = recs
				extracted.Add(1)
				return nil
			})
		}
		_ = g.Wait()

		for _, recs := range results {
			all = append(all, recs...)
		}
	}
	all = uniqueIDs(all, c.logger)

	if !c.cache.SetGlobalCacheIf(all, gen) {
		c.logger.Debugf("run %s: snapshot not stored, cache was invalidated during refresh", runID)
	}

	elapsed := time.Since(start)
	c.mu.Lock()
	c.last = all
	c.stats.Refreshes++
	c.stats.Extracted += int(extracted.Load())
	c.stats.Reused += int(reused.Load())
	c.stats.FailedDocuments += int(failed.Load())
	c.stats.LastRunID = runID
	c.stats.LastRefresh = start
	c.stats.LastDuration = elapsed
	c.stats.LastDocumentCount = len(paths)
	c.stats.LastTaskCount = len(all)
	c.mu.Unlock()

	c.logger.Infof("run %s: %d tasks from %d documents (%d extracted, %d cached, %d failed) in %s",
		runID, len(all), len(paths), extracted.Load(), reused.Load(), failed.Load(), elapsed)
	c.bus.Publish(events.Event{Type: events.EventTasksRefreshed, RunID: runID, Count: len(all)})
	return all
}

// uniqueIDs rewrites explicit ids that collide with an earlier record to the
// synthesized path#line form.
func uniqueIDs(tasks []model.Task, logger *logging.Logger) []model.Task {
	seen := make(map[string]bool, len(tasks))
	for i := range tasks {
		t := &tasks[i]
		if seen[t.ID] {
			synthetic := model.SyntheticID(t.File.Path, t.Line.Number)
			logger.Warnf("duplicate task id %q in %s line %d, using %s", t.ID, t.File.Path, t.Line.Number, synthetic)
			t.ID = synthetic
		}
		seen[t.ID] = true
	}
	return tasks
}
