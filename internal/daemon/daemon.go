// Package daemon keeps the task index current by translating filesystem
// changes in a vault into document lifecycle events.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/msageha/taskscope/internal/logging"
	"github.com/msageha/taskscope/internal/model"
	"github.com/msageha/taskscope/internal/query"
	"github.com/msageha/taskscope/internal/vault"
)

const defaultShutdownTimeout = 10 * time.Second

// Service is the part of the query service the daemon drives.
type Service interface {
	HandleDocumentEvent(e query.DocumentEvent)
	GetAllTasks(ctx context.Context) []model.Task
}

type Options struct {
	// Debounce coalesces bursts of changes; 0 forwards every event at once.
	Debounce time.Duration
	// RefreshInterval re-warms the snapshot periodically; 0 disables it.
	RefreshInterval time.Duration
	ShutdownTimeout time.Duration
	Logger          *logging.Logger
}

type Stats struct {
	Events    uint64 `json:"events"`
	Ignored   uint64 `json:"ignored"`
	Flushes   uint64 `json:"flushes"`
	Rewarms   uint64 `json:"rewarms"`
	WatchDirs int    `json:"watch_dirs"`
}

// Daemon watches every non-hidden directory of a vault.
type Daemon struct {
	vault  *vault.Vault
	svc    Service
	opts   Options
	logger *logging.Logger

	watcher *fsnotify.Watcher
	ticker  *time.Ticker

	mu      sync.Mutex
	watched map[string]bool
	pending map[string]query.DocumentEvent
	timer   *time.Timer

	events, ignored, flushes, rewarms atomic.Uint64

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	shutdown sync.Once
}

func New(v *vault.Vault, svc Service, opts Options) *Daemon {
	ctx, cancel := context.WithCancel(context.Background())
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = defaultShutdownTimeout
	}
	return &Daemon{
		vault:   v,
		svc:     svc,
		opts:    opts,
		logger:  opts.Logger.With("daemon"),
		watched: make(map[string]bool),
		pending: make(map[string]query.DocumentEvent),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start registers the watches, warms the snapshot and starts the background
// loops. It returns once the daemon is ready.
func (d *Daemon) Start() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	d.watcher = watcher

	if err := d.watchTree(d.vault.Root()); err != nil {
		watcher.Close()
		return err
	}

	n := len(d.svc.GetAllTasks(d.ctx))
	d.logger.Infof("watching %s (%d directories, %d tasks)", d.vault.Root(), d.Stats().WatchDirs, n)

	d.wg.Add(1)
	go d.fsnotifyLoop()
	if d.opts.RefreshInterval > 0 {
		d.ticker = time.NewTicker(d.opts.RefreshInterval)
		d.wg.Add(1)
		go d.tickerLoop()
	}
	return nil
}

// Run starts the daemon and blocks until a shutdown signal arrives.
func (d *Daemon) Run() error {
	if err := d.Start(); err != nil {
		return err
	}
	d.waitSignals()
	return nil
}

func (d *Daemon) Stats() Stats {
	d.mu.Lock()
	dirs := len(d.watched)
	d.mu.Unlock()
	return Stats{
		Events:    d.events.Load(),
		Ignored:   d.ignored.Load(),
		Flushes:   d.flushes.Load(),
		Rewarms:   d.rewarms.Load(),
		WatchDirs: dirs,
	}
}

// watchTree adds dir and its non-hidden subdirectories to the watcher.
func (d *Daemon) watchTree(dir string) error {
	return filepath.WalkDir(dir, func(p string, e fs.DirEntry, err error) error {
		if err != nil {
			if p == dir {
				return fmt.Errorf("watch %s: %w", p, err)
			}
			d.logger.Warnf("walk %s: %v", p, err)
			return nil
		}
		if !e.IsDir() {
			return nil
		}
		if p != d.vault.Root() && !d.eligibleDir(p) {
			return filepath.SkipDir
		}
		if err := d.watcher.Add(p); err != nil {
			return fmt.Errorf("watch %s: %w", p, err)
		}
		d.mu.Lock()
		d.watched[p] = true
		d.mu.Unlock()
		return nil
	})
}

func (d *Daemon) eligibleDir(p string) bool {
	rel, err := d.vault.Rel(p)
	return err == nil && d.vault.IncludesDir(rel)
}

func (d *Daemon) fsnotifyLoop() {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return
		case event, ok := <-d.watcher.Events:
			if !ok {
				return
			}
			d.logger.Debugf("fsnotify event=%s file=%s", event.Op, event.Name)
			d.handle(event)
		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			d.logger.Errorf("fsnotify error=%v", err)
		}
	}
}

func (d *Daemon) tickerLoop() {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-d.ticker.C:
			d.rewarms.Add(1)
			n := len(d.svc.GetAllTasks(d.ctx))
			d.logger.Debugf("periodic re-warm: %d tasks", n)
		}
	}
}

func (d *Daemon) handle(event fsnotify.Event) {
	de, ok := d.convert(event)
	if !ok {
		d.ignored.Add(1)
		return
	}
	d.events.Add(1)
	if de.IsDir && de.Op == query.OpCreated {
		abs, err := d.vault.Abs(de.Path)
		if err == nil {
			if err := d.watchTree(abs); err != nil {
				d.logger.Warnf("%v", err)
			}
		}
	}
	d.enqueue(de)
}

// convert maps an fsnotify event onto a document event. Rename is reported
// as a delete of the old name; the new name arrives as a create.
func (d *Daemon) convert(event fsnotify.Event) (query.DocumentEvent, bool) {
	rel, err := d.vault.Rel(event.Name)
	if err != nil {
		return query.DocumentEvent{}, false
	}

	var op query.Op
	switch {
	case event.Has(fsnotify.Create):
		op = query.OpCreated
	case event.Has(fsnotify.Write):
		op = query.OpModified
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		op = query.OpDeleted
	default:
		return query.DocumentEvent{}, false
	}

	isDir := false
	if op == query.OpDeleted {
		d.mu.Lock()
		if d.watched[event.Name] {
			isDir = true
			for p := range d.watched {
				if p == event.Name || isWithin(event.Name, p) {
					delete(d.watched, p)
				}
			}
		}
		d.mu.Unlock()
	} else if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
		isDir = true
	}

	if isDir {
		if op == query.OpModified || !d.eligibleDir(event.Name) {
			return query.DocumentEvent{}, false
		}
		return query.DocumentEvent{Op: op, Path: rel, IsDir: true}, true
	}
	if !d.vault.Matches(rel) {
		return query.DocumentEvent{}, false
	}
	return query.DocumentEvent{Op: op, Path: rel}, true
}

func (d *Daemon) enqueue(e query.DocumentEvent) {
	if d.opts.Debounce <= 0 {
		d.flushes.Add(1)
		d.svc.HandleDocumentEvent(e)
		return
	}

	key := e.Path
	if e.IsDir {
		key = "dir:" + e.Path
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending[key] = e
	if d.timer == nil {
		d.timer = time.AfterFunc(d.opts.Debounce, d.Flush)
	} else {
		d.timer.Reset(d.opts.Debounce)
	}
}

// Flush forwards pending events in path order and re-warms the snapshot.
func (d *Daemon) Flush() {
	d.mu.Lock()
	batch := make([]query.DocumentEvent, 0, len(d.pending))
	for _, e := range d.pending {
		batch = append(batch, e)
	}
	d.pending = make(map[string]query.DocumentEvent)
	d.timer = nil
	d.mu.Unlock()

	if len(batch) == 0 {
		return
	}
	sort.Slice(batch, func(i, j int) bool { return batch[i].Path < batch[j].Path })
	for _, e := range batch {
		d.svc.HandleDocumentEvent(e)
	}
	d.flushes.Add(1)

	if d.ctx.Err() == nil {
		n := len(d.svc.GetAllTasks(d.ctx))
		d.logger.Infof("applied %d change(s), %d tasks", len(batch), n)
	}
}

// waitSignals blocks until a shutdown signal is received or Shutdown is called.
func (d *Daemon) waitSignals() {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		d.logger.Infof("received signal=%s, initiating graceful shutdown", sig)
	case <-d.ctx.Done():
		return
	}

	go func() {
		<-sigCh
		d.logger.Warnf("received second signal, forcing exit")
		os.Exit(1)
	}()

	d.Shutdown()
}

// Shutdown stops the watcher and loops. It is idempotent.
func (d *Daemon) Shutdown() {
	d.shutdown.Do(func() {
		d.logger.Infof("shutdown started")
		d.cancel()

		d.mu.Lock()
		if d.timer != nil {
			d.timer.Stop()
			d.timer = nil
		}
		d.mu.Unlock()
		if d.ticker != nil {
			d.ticker.Stop()
		}
		if d.watcher != nil {
			if err := d.watcher.Close(); err != nil && !errors.Is(err, fsnotify.ErrClosed) {
				d.logger.Warnf("close watcher: %v", err)
			}
		}

		done := make(chan struct{})
		go func() {
			d.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
			d.logger.Infof("daemon stopped")
		case <-time.After(d.opts.ShutdownTimeout):
			d.logger.Warnf("shutdown timeout after %s", d.opts.ShutdownTimeout)
		}
	})
}

// Done is closed once shutdown has started.
func (d *Daemon) Done() <-chan struct{} {
	return d.ctx.Done()
}

func isWithin(dir, p string) bool {
	return strings.HasPrefix(p, dir+string(filepath.Separator))
}
