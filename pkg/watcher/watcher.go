package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/0xmhha/usage-ledger/pkg/logger"
)

const (
	defaultDebounce         = 100 * time.Millisecond
	defaultBreakerThreshold = 5

	eventBuffer = 100
	errorBuffer = 10
)

// fsWatcher implements Watcher on top of fsnotify.
type fsWatcher struct {
	fsw *fsnotify.Watcher
	cfg Config
	log logger.Logger

	events chan Event
	errs   chan error

	mu      sync.RWMutex
	running bool
	closed  bool
	stop    chan struct{}

	debounce *debouncer

	// failures counts fsnotify errors over the watcher lifetime.
	failures int
}

// New creates a watcher. Nothing is watched until Start.
func New(cfg Config, log logger.Logger) (Watcher, error) {
	if cfg.DebounceInterval <= 0 {
		cfg.DebounceInterval = defaultDebounce
	}
	if cfg.CircuitBreakerThreshold <= 0 {
		cfg.CircuitBreakerThreshold = defaultBreakerThreshold
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	w := &fsWatcher{
		fsw:    fsw,
		cfg:    cfg,
		log:    log,
		events: make(chan Event, eventBuffer),
		errs:   make(chan error, errorBuffer),
	}
	w.debounce = newDebouncer(cfg.DebounceInterval, w.deliver)

	log.Debug("watcher created",
		"debounce", cfg.DebounceInterval,
		"recursive", cfg.Recursive)

	return w, nil
}

// Start implements Watcher.Start.
func (w *fsWatcher) Start(ctx context.Context, paths []string) error {
	stop, err := w.begin()
	if err != nil {
		return err
	}

	dirs, err := w.resolve(paths)
	if err != nil {
		w.abort()
		return err
	}

	for _, dir := range dirs {
		if err := w.watchTree(dir); err != nil {
			w.abort()
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}

	w.log.Info("watching", "paths", dirs)

	go w.loop(ctx, stop)
	return nil
}

// begin marks the watcher running and returns the stop channel of this run.
func (w *fsWatcher) begin() (chan struct{}, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch {
	case w.closed:
		return nil, ErrWatcherClosed
	case w.running:
		return nil, ErrAlreadyStarted
	}

	w.running = true
	w.stop = make(chan struct{})
	return w.stop, nil
}

// abort undoes begin after a failed Start.
func (w *fsWatcher) abort() {
	w.mu.Lock()
	w.running = false
	w.mu.Unlock()
}

// resolve expands paths and drops the ones that do not exist. It fails with
// ErrInvalidPath when nothing is left.
func (w *fsWatcher) resolve(paths []string) ([]string, error) {
	dirs := make([]string, 0, len(paths))
	for _, p := range paths {
		p = expandHome(p)

		if _, err := os.Stat(p); err != nil {
			if os.IsNotExist(err) {
				w.log.Warn("watch path does not exist, skipping", "path", p)
				continue
			}
			return nil, fmt.Errorf("failed to stat %s: %w", p, err)
		}
		dirs = append(dirs, p)
	}

	if len(dirs) == 0 {
		return nil, ErrInvalidPath
	}
	return dirs, nil
}

// Stop implements Watcher.Stop.
func (w *fsWatcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrWatcherClosed
	}
	if !w.running {
		return ErrNotStarted
	}

	close(w.stop)
	w.running = false

	w.log.Info("watcher stopped")
	return nil
}

// Events implements Watcher.Events.
func (w *fsWatcher) Events() <-chan Event {
	return w.events
}

// Errors implements Watcher.Errors.
func (w *fsWatcher) Errors() <-chan error {
	return w.errs
}

// Close implements Watcher.Close.
func (w *fsWatcher) Close() error {
	w.debounce.stop()

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	if w.running {
		close(w.stop)
		w.running = false
	}
	close(w.events)
	close(w.errs)

	if err := w.fsw.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	return nil
}

func (w *fsWatcher) loop(ctx context.Context, stop <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.fail(err)
		}
	}
}

// handle filters and debounces one fsnotify event. Directories created
// under a recursive watch are added to it and not reported.
func (w *fsWatcher) handle(ev fsnotify.Event) {
	op, ok := translateOp(ev.Op)
	if !ok {
		return
	}

	if op == OpCreate && w.cfg.Recursive {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := w.watchTree(ev.Name); err != nil {
				w.log.Warn("failed to watch new directory", "path", ev.Name, "error", err)
			}
			return
		}
	}

	if w.cfg.Filter != nil && !w.cfg.Filter(ev.Name) {
		return
	}

	w.debounce.push(Event{Path: ev.Name, Op: op, Timestamp: time.Now()})
}

// translateOp maps an fsnotify op to the most significant Op it carries.
func translateOp(op fsnotify.Op) (Op, bool) {
	switch {
	case op.Has(fsnotify.Create):
		return OpCreate, true
	case op.Has(fsnotify.Write):
		return OpWrite, true
	case op.Has(fsnotify.Remove):
		return OpRemove, true
	case op.Has(fsnotify.Rename):
		return OpRename, true
	case op.Has(fsnotify.Chmod):
		return OpChmod, true
	}
	return 0, false
}

// deliver sends a debounced event. The read lock keeps Close from closing
// the channel mid-send.
func (w *fsWatcher) deliver(event Event) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.closed {
		return
	}

	select {
	case w.events <- event:
	default:
		w.log.Warn("event buffer full, dropping event", "path", event.Path, "op", event.Op)
	}
}

// fail reports an fsnotify error. Once the threshold is reached only
// ErrCircuitBreakerOpen is reported.
func (w *fsWatcher) fail(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return
	}

	w.failures++
	w.log.Error("watch error", "error", err, "failures", w.failures)

	if w.failures >= w.cfg.CircuitBreakerThreshold {
		w.log.Error("circuit breaker open", "threshold", w.cfg.CircuitBreakerThreshold)
		err = ErrCircuitBreakerOpen
	}

	select {
	case w.errs <- err:
	default:
	}
}

// watchTree adds dir, and every directory below it when Recursive is set.
// Hidden directories below dir are skipped.
func (w *fsWatcher) watchTree(dir string) error {
	if err := w.fsw.Add(dir); err != nil {
		return err
	}
	if !w.cfg.Recursive {
		return nil
	}

	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			w.log.Warn("failed to walk", "path", p, "error", err)
			return nil
		}
		if !d.IsDir() || p == dir {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}

		if err := w.fsw.Add(p); err != nil {
			w.log.Warn("failed to watch subdirectory", "path", p, "error", err)
		}
		return nil
	})
}

// expandHome replaces a leading ~ with the user's home directory.
func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
