// Package watcher watches a drop directory for feature record files and
// hands settled files to the ingest pipeline.
package watcher

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// defaultDebounce lets upstream writers finish a file before it is ingested.
const defaultDebounce = 500 * time.Millisecond

// DropWatcher watches one directory for *.json feature record files. Each
// create or write is debounced per path, so a file being streamed in only
// fires once it has settled.
type DropWatcher struct {
	dir      string
	onDrop   func(path string)
	debounce time.Duration
	logger   *zap.Logger

	watcher  *fsnotify.Watcher
	mu       sync.Mutex
	pending  map[string]*time.Timer
	done     chan struct{}
	started  bool
	stopOnce sync.Once
}

// Option configures a DropWatcher.
type Option func(*DropWatcher)

// WithDebounce overrides the settle interval.
func WithDebounce(d time.Duration) Option {
	return func(w *DropWatcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// New creates a watcher over dir. onDrop is called with the path of each
// settled JSON file.
func New(dir string, onDrop func(path string), logger *zap.Logger, opts ...Option) *DropWatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &DropWatcher{
		dir:      dir,
		onDrop:   onDrop,
		debounce: defaultDebounce,
		logger:   logger,
		pending:  make(map[string]*time.Timer),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start begins watching. The drop directory is created when missing. Start
// is idempotent.
func (w *DropWatcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return nil
	}
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(w.dir); err != nil {
		watcher.Close()
		return err
	}
	w.watcher = watcher
	w.started = true
	w.logger.Info("watching drop directory", zap.String("dir", w.dir))
	go w.run()
	return nil
}

func (w *DropWatcher) run() {
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			if err != nil {
				w.logger.Warn("watch error", zap.Error(err))
			}
		}
	}
}

func (w *DropWatcher) handleEvent(ev fsnotify.Event) {
	if !isRecordFile(ev.Name) {
		return
	}
	switch {
	case ev.Op.Has(fsnotify.Create) || ev.Op.Has(fsnotify.Write):
		w.logger.Debug("drop file changed", zap.String("op", ev.Op.String()), zap.String("path", ev.Name))
		w.schedule(ev.Name)
	case ev.Op.Has(fsnotify.Remove) || ev.Op.Has(fsnotify.Rename):
		w.cancel(ev.Name)
	}
}

// schedule (re)arms the settle timer for path.
func (w *DropWatcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok {
		t.Stop()
	}
	w.pending[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()
		if _, err := os.Stat(path); err != nil {
			return
		}
		w.logger.Debug("drop file settled", zap.String("path", path))
		if w.onDrop != nil {
			w.onDrop(path)
		}
	})
}

func (w *DropWatcher) cancel(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok {
		t.Stop()
		delete(w.pending, path)
	}
}

// SyncExisting fires onDrop for JSON files already sitting in the drop
// directory. Call after Start to pick up files dropped while the service was
// down.
func (w *DropWatcher) SyncExisting() error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(w.dir, e.Name())
		if !isRecordFile(path) {
			continue
		}
		w.logger.Debug("syncing existing drop file", zap.String("path", path))
		if w.onDrop != nil {
			w.onDrop(path)
		}
	}
	return nil
}

// Stop stops watching and cancels pending timers.
func (w *DropWatcher) Stop() {
	w.mu.Lock()
	if !w.started || w.watcher == nil {
		w.mu.Unlock()
		return
	}
	for path, t := range w.pending {
		t.Stop()
		delete(w.pending, path)
	}
	w.watcher.Close()
	w.watcher = nil
	w.started = false
	w.mu.Unlock()
	w.stopOnce.Do(func() { close(w.done) })
}

func isRecordFile(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".json")
}
