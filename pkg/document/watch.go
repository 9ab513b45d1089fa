package document

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"k8s.io/utils/clock"
)

// DefaultPollInterval is the stat interval in polling mode.
const DefaultPollInterval = 2 * time.Second

var (
	ErrFileRemoved    = errors.New("watched document was removed")
	ErrPermission     = errors.New("permission denied")
	ErrAlreadyStarted = errors.New("watcher already started")
)

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDebounce sets the quiet period before a change is reported.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) { w.debounce = d }
}

// WithPollInterval sets the polling interval.
func WithPollInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.pollInterval = d
		}
	}
}

// WithForcePoll uses polling even when fsnotify works.
func WithForcePoll(force bool) WatcherOption {
	return func(w *Watcher) { w.forcePoll = force }
}

// WithWatchClock sets the clock driving polling and debouncing.
func WithWatchClock(c clock.WithTickerAndDelayedExecution) WatcherOption {
	return func(w *Watcher) {
		if c != nil {
			w.clock = c
		}
	}
}

// OnReload receives each successfully reloaded document.
func OnReload(fn func(*Document)) WatcherOption {
	return func(w *Watcher) {
		if fn != nil {
			w.onReload = fn
		}
	}
}

// OnError receives watch and reload errors.
func OnError(fn func(error)) WatcherOption {
	return func(w *Watcher) {
		if fn != nil {
			w.onError = fn
		}
	}
}

// Watcher reloads a document when its file changes, using fsnotify with a
// polling fallback.
type Watcher struct {
	path         string
	debounce     time.Duration
	pollInterval time.Duration
	forcePoll    bool
	clock        clock.WithTickerAndDelayedExecution
	onReload     func(*Document)
	onError      func(error)

	fsWatcher *fsnotify.Watcher
	debouncer *Debouncer
	polling   bool
	lastMtime time.Time
	lastSize  int64

	cancel  context.CancelFunc
	started bool
	mu      sync.RWMutex
	changed chan *Document
}

// NewWatcher returns a stopped watcher for the document at path.
func NewWatcher(path string, opts ...WatcherOption) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if _, err := FormatOf(abs); err != nil {
		return nil, err
	}
	w := &Watcher{
		path:         abs,
		debounce:     DefaultDebounce,
		pollInterval: DefaultPollInterval,
		clock:        clock.RealClock{},
		onReload:     func(*Document) {},
		onError:      func(error) {},
		changed:      make(chan *Document, 1),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.debouncer = NewDebouncer(w.clock, w.debounce)
	return w, nil
}

// Start begins watching. FG_FORCE_POLL=1 forces polling mode.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return ErrAlreadyStarted
	}

	info, err := os.Stat(w.path)
	switch {
	case err == nil:
		w.lastMtime, w.lastSize = info.ModTime(), info.Size()
	case os.IsPermission(err):
		return ErrPermission
	default:
		// Not there yet; a later create counts as a change.
		w.lastMtime, w.lastSize = time.Time{}, 0
	}

	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.polling = w.forcePoll || envBool("FG_FORCE_POLL")

	if !w.polling {
		fsw, err := fsnotify.NewWatcher()
		if err != nil {
			w.polling = true
		} else if err := fsw.Add(filepath.Dir(w.path)); err != nil {
			// The directory is watched so atomic renames are seen.
			fsw.Close()
			w.polling = true
		} else {
			w.fsWatcher = fsw
			go w.watchEvents(ctx, fsw)
		}
	}
	if w.polling {
		ticker := w.clock.NewTicker(w.pollInterval)
		go w.watchPolling(ctx, ticker)
	}

	w.started = true
	return nil
}

// Stop ends watching and drops a pending reload.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.started {
		return
	}
	w.cancel()
	if w.fsWatcher != nil {
		w.fsWatcher.Close()
		w.fsWatcher = nil
	}
	w.debouncer.Cancel()
	w.started = false
}

// Polling reports whether the watcher fell back to polling.
func (w *Watcher) Polling() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.polling
}

// Started reports whether the watcher is running.
func (w *Watcher) Started() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.started
}

// Path returns the absolute path being watched.
func (w *Watcher) Path() string {
	return w.path
}

// Changed delivers the latest reloaded document. A reader that falls behind
// only sees the newest one.
func (w *Watcher) Changed() <-chan *Document {
	return w.changed
}

func envBool(name string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(name))) {
	case "1", "true", "yes", "y", "on":
		return true
	}
	return false
}

func (w *Watcher) watchEvents(ctx context.Context, fsw *fsnotify.Watcher) {
	target := filepath.Base(w.path)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != target {
				continue
			}
			switch {
			case ev.Op&fsnotify.Remove != 0:
				w.onError(ErrFileRemoved)
			case ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0:
				w.debouncer.Trigger(w.reload)
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.onError(err)
		}
	}
}

func (w *Watcher) watchPolling(ctx context.Context, ticker clock.Ticker) {
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			info, err := os.Stat(w.path)
			if err != nil {
				switch {
				case os.IsNotExist(err):
					w.mu.RLock()
					existed := !w.lastMtime.IsZero()
					w.mu.RUnlock()
					if existed {
						w.onError(ErrFileRemoved)
					}
				case os.IsPermission(err):
					w.onError(ErrPermission)
				default:
					w.onError(err)
				}
				continue
			}

			w.mu.Lock()
			changed := info.ModTime().After(w.lastMtime) || info.Size() != w.lastSize
			if changed {
				w.lastMtime, w.lastSize = info.ModTime(), info.Size()
			}
			w.mu.Unlock()
			if changed {
				w.debouncer.Trigger(w.reload)
			}
		}
	}
}

// reload loads the document and reports it. A half-written file fails to
// parse and is reported as an error; the next write triggers another reload.
func (w *Watcher) reload() {
	if !w.Started() {
		return
	}
	doc, err := Load(w.path)
	if err != nil {
		w.onError(err)
		return
	}
	w.onReload(doc)

	select {
	case w.changed <- doc:
	default:
		select {
		case <-w.changed:
		default:
		}
		select {
		case w.changed <- doc:
		default:
		}
	}
}
