package bundlefile

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads file-backed bundles when their backing files change.
// Directories are watched rather than the files themselves so that the
// atomic-rename update pattern (Kubernetes secret mounts, certbot renewals)
// is observed.
type Watcher struct {
	source   *Source
	fsw      *fsnotify.Watcher
	logger   *slog.Logger
	debounce time.Duration

	// byPath maps a cleaned file path to the bundle names it backs.
	byPath map[string][]string

	mu      sync.Mutex
	pending map[string]*time.Timer

	done   chan struct{}
	closed sync.Once
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDebounce sets the quiet period between the last file event and the
// reload. Writers frequently touch cert and key files back to back; the
// debounce makes one reload out of the burst.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) { w.debounce = d }
}

// WithWatcherLogger sets the logger for watch events and errors.
func WithWatcherLogger(logger *slog.Logger) WatcherOption {
	return func(w *Watcher) { w.logger = logger }
}

// NewWatcher creates a Watcher over every bundle the source declared with
// watch enabled. It returns nil (and no error) when nothing is watched.
func NewWatcher(source *Source, opts ...WatcherOption) (*Watcher, error) {
	watched := source.watchedFiles()
	if len(watched) == 0 {
		return nil, nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}

	w := &Watcher{
		source:   source,
		fsw:      fsw,
		logger:   slog.Default(),
		debounce: 500 * time.Millisecond,
		byPath:   make(map[string][]string),
		pending:  make(map[string]*time.Timer),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	dirs := make(map[string]struct{})
	for name, files := range watched {
		for _, file := range files {
			path := filepath.Clean(file)
			w.byPath[path] = append(w.byPath[path], name)
			dirs[filepath.Dir(path)] = struct{}{}
		}
	}
	for dir := range dirs {
		if err := fsw.Add(dir); err != nil {
			fsw.Close()
			return nil, fmt.Errorf("watching %s: %w", dir, err)
		}
	}
	return w, nil
}

// Start runs the watch loop until Close is called. It returns immediately;
// reloads happen on the watcher's own goroutine, which is the reload-callback
// thread the credential core races against.
func (w *Watcher) Start() {
	go w.run()
}

func (w *Watcher) run() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			for _, name := range w.byPath[filepath.Clean(event.Name)] {
				w.scheduleReload(name)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("bundle watch error", "error", err)
		}
	}
}

// scheduleReload arms (or re-arms) the debounce timer for a bundle.
func (w *Watcher) scheduleReload(name string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if timer, ok := w.pending[name]; ok {
		timer.Reset(w.debounce)
		return
	}
	w.pending[name] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.pending, name)
		w.mu.Unlock()

		// Reload logs and retains previous material on failure.
		_ = w.source.Reload(name)
	})
}

// Close stops the watch loop and releases the underlying watcher.
func (w *Watcher) Close() error {
	var err error
	w.closed.Do(func() {
		close(w.done)
		err = w.fsw.Close()

		w.mu.Lock()
		for name, timer := range w.pending {
			timer.Stop()
			delete(w.pending, name)
		}
		w.mu.Unlock()
	})
	return err
}
