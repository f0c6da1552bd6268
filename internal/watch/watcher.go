package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/hupe1980/libsync/internal/events"
	"github.com/hupe1980/libsync/internal/project"
)

// SetupError reports that watching could not begin for a project, usually
// because its source directory does not exist.
type SetupError struct {
	Project string
	Root    string
	Err     error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("watching %s (%s): %v", e.Project, e.Root, e.Err)
}

func (e *SetupError) Unwrap() error { return e.Err }

// newFSWatcher opens the fsnotify watcher for the tree at root. Tests replace
// it to simulate descriptor exhaustion.
var newFSWatcher = func(string) (*fsnotify.Watcher, error) {
	return fsnotify.NewWatcher()
}

// Options configures a ChangeWatcher.
type Options struct {
	// Debounce is the quiet period before a burst of events triggers.
	// Zero triggers on every qualifying event.
	Debounce time.Duration

	Sink   events.Sink
	Logger *slog.Logger
}

// ChangeWatcher observes one project's source tree and invokes its change
// callback for every qualifying event.
type ChangeWatcher struct {
	project  project.Project
	filter   *Filter
	onChange func(path string)
	opts     Options

	mu   sync.Mutex
	dirs map[string]bool
}

// NewChangeWatcher creates a watcher for p.
func NewChangeWatcher(p project.Project, onChange func(path string), opts Options) *ChangeWatcher {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	if opts.Sink == nil {
		opts.Sink = events.Discard
	}

	return &ChangeWatcher{
		project:  p.Clone(),
		filter:   NewFilter(p),
		onChange: onChange,
		opts:     opts,
		dirs:     make(map[string]bool),
	}
}

// Run watches the source tree until ctx is cancelled. When watching cannot
// begin, for a missing source directory or an exhausted watcher limit, Run
// publishes watch.failed and returns a *SetupError.
func (w *ChangeWatcher) Run(ctx context.Context) error {
	logger := w.opts.Logger.With(slog.String("project", w.project.Name))
	root := filepath.Clean(w.project.Src)

	watcher, err := w.setup(root)
	if err != nil {
		logger.Warn("source not watchable, project stays idle",
			slog.String("src", root),
			slog.String("error", err.Error()),
		)
		w.opts.Sink.Publish(events.New(events.WatchFailed, w.project.Name, "",
			events.WatchFailedPayload{Root: root, Err: err}))

		return err
	}
	defer watcher.Close()

	n := w.watchedCount()

	logger.Info("watching",
		slog.String("src", root),
		slog.Int("directories", n),
		slog.Duration("debounce", w.opts.Debounce),
	)
	w.opts.Sink.Publish(events.New(events.WatchStarted, w.project.Name, "",
		events.WatchStartedPayload{Root: root, Directories: n}))

	trigger := w.onChange

	if w.opts.Debounce > 0 {
		debouncer := NewDebouncer(w.opts.Debounce, logger, func(path string, n int) {
			logger.Debug("change settled", slog.String("path", path), slog.Int("events", n))
			w.onChange(path)
		})

		defer func() {
			if debouncer.Stop() {
				logger.Debug("dropped pending change on shutdown")
			}
		}()

		trigger = debouncer.Trigger
	}

	for {
		select {
		case <-ctx.Done():
			logger.Debug("watch stopped")

			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			if path, ok := w.handle(watcher, event, logger); ok {
				trigger(path)
			}

		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}

			logger.Error("watcher error", slog.String("error", watchErr.Error()))
		}
	}
}

func (w *ChangeWatcher) setup(root string) (*fsnotify.Watcher, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, &SetupError{Project: w.project.Name, Root: root, Err: err}
	}

	if !info.IsDir() {
		return nil, &SetupError{Project: w.project.Name, Root: root, Err: errors.New("not a directory")}
	}

	watcher, err := newFSWatcher(root)
	if err != nil {
		return nil, &SetupError{Project: w.project.Name, Root: root, Err: fmt.Errorf("creating watcher: %w", err)}
	}

	if _, err := w.addRecursive(watcher, root); err != nil {
		_ = watcher.Close()

		return nil, &SetupError{Project: w.project.Name, Root: root, Err: err}
	}

	return watcher, nil
}

// handle updates the watch set for directory events and returns the path
// to report when the event qualifies. A directory created or moved into the
// tree qualifies through the first source file already inside it, since
// those files were written before the directory was watched.
func (w *ChangeWatcher) handle(watcher *fsnotify.Watcher, event fsnotify.Event, logger *slog.Logger) (string, bool) {
	isDir := w.isWatchedDir(event.Name)

	if event.Has(fsnotify.Create) {
		if info, statErr := os.Stat(event.Name); statErr == nil && info.IsDir() {
			if w.filter.SkipDir(event.Name) {
				return "", false
			}

			found, err := w.addRecursive(watcher, event.Name)
			if err != nil {
				logger.Warn("watching new directory",
					slog.String("path", event.Name),
					slog.String("error", err.Error()),
				)
			}

			return found, found != ""
		}
	}

	if isDir && (event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename)) {
		w.forget(event.Name)
	}

	return event.Name, w.filter.Qualifies(event, isDir)
}

// addRecursive walks root, adds every directory the filter keeps and
// returns the first file below root that would qualify as a change.
func (w *ChangeWatcher) addRecursive(watcher *fsnotify.Watcher, root string) (string, error) {
	var found string

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if !d.IsDir() {
			if found == "" && w.filter.Qualifies(fsnotify.Event{Name: path, Op: fsnotify.Create}, false) {
				found = path
			}

			return nil
		}

		if w.filter.SkipDir(path) {
			return filepath.SkipDir
		}

		if err := watcher.Add(path); err != nil {
			return err
		}

		w.mu.Lock()
		w.dirs[filepath.Clean(path)] = true
		w.mu.Unlock()

		return nil
	})

	return found, err
}

func (w *ChangeWatcher) isWatchedDir(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.dirs[filepath.Clean(path)]
}

func (w *ChangeWatcher) forget(path string) {
	path = filepath.Clean(path)
	prefix := path + string(filepath.Separator)

	w.mu.Lock()
	defer w.mu.Unlock()

	for dir := range w.dirs {
		if dir == path || strings.HasPrefix(dir, prefix) {
			delete(w.dirs, dir)
		}
	}
}

func (w *ChangeWatcher) watchedCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()

	return len(w.dirs)
}
