package store

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/chatkeep/chatkeep/internal/observability"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watcher notifies the host when session files change underneath it, so a
// UI can refresh its list without polling. Notifications are debounced: a
// burst of writes collapses into one callback.
type Watcher struct {
	watcher  *fsnotify.Watcher
	logger   zerolog.Logger
	onChange func()
	debounce time.Duration
	stopCh   chan struct{}

	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
}

// NewWatcher creates a store watcher. onChange runs on the watcher's
// goroutine after the debounce window closes.
func NewWatcher(logger zerolog.Logger, onChange func()) (*Watcher, error) {
	return newWatcher(logger, 500*time.Millisecond, onChange)
}

func newWatcher(logger zerolog.Logger, debounce time.Duration, onChange func()) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		watcher:  watcher,
		logger:   logger,
		onChange: onChange,
		debounce: debounce,
		stopCh:   make(chan struct{}),
	}

	go w.run()

	return w, nil
}

// Watch starts watching the chats directory.
func (w *Watcher) Watch(dir string) error {
	return w.watcher.Add(dir)
}

// Stop stops the watcher and cancels any pending notification.
func (w *Watcher) Stop() error {
	close(w.stopCh)

	w.mu.Lock()
	w.stopped = true
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()

	return w.watcher.Close()
}

func (w *Watcher) run() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			// Only session records are interesting.
			if filepath.Ext(event.Name) != recordExt {
				continue
			}

			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) ||
				event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				w.logger.Debug().
					Str("file", filepath.Base(event.Name)).
					Str("op", event.Op.String()).
					Msg("Session file change detected")

				w.scheduleNotify()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error().Err(err).Msg("Store watcher error")

		case <-w.stopCh:
			return
		}
	}
}

// scheduleNotify debounces the change notification.
func (w *Watcher) scheduleNotify() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}

	w.timer = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		stopped := w.stopped
		w.mu.Unlock()
		if stopped {
			return
		}

		observability.RecordWatcherEvent()
		w.onChange()
	})
}
