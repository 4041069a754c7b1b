package profile

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads the profile document when the file changes on disk. The
// profile editor saves in place, so writes arrive in bursts; reloads are
// debounced to the trailing write.
type Watcher struct {
	path     string
	onReload func(Profile)
	logger   *slog.Logger
	debounce time.Duration
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithWatchLogger sets the watcher's logger.
func WithWatchLogger(l *slog.Logger) WatcherOption {
	return func(w *Watcher) { w.logger = l }
}

// WithDebounce overrides the reload debounce interval.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) { w.debounce = d }
}

// NewWatcher creates a watcher for the profile at path. onReload is called
// with each successfully loaded profile.
func NewWatcher(path string, onReload func(Profile), opts ...WatcherOption) *Watcher {
	w := &Watcher{
		path:     path,
		onReload: onReload,
		logger:   slog.Default().With("component", "profile-watcher"),
		debounce: 250 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Watch blocks until ctx is cancelled, reloading the profile on changes.
// The parent directory is watched rather than the file itself: editors that
// save via rename would otherwise drop the watch.
func (w *Watcher) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(w.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch profile dir: %w", err)
	}
	w.logger.Info("watching profile", "path", w.path)

	var timer *time.Timer
	var timerCh <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerCh = timer.C
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}

		case <-timerCh:
			timer = nil
			timerCh = nil
			w.reload()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("profile watcher error", "error", err)
		}
	}
}

func (w *Watcher) reload() {
	p, err := Load(w.path)
	if err != nil {
		w.logger.Warn("profile reload failed, keeping current profile", "path", w.path, "error", err)
		return
	}
	if err := p.Validate(); err != nil {
		w.logger.Warn("reloaded profile has issues", "error", err)
	}
	w.logger.Info("profile reloaded", "path", w.path, "menus", len(p))
	w.onReload(p)
}
