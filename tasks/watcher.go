package tasks

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/thinmintdev/moltbot-dashboard-sub002/log"
	"github.com/thinmintdev/moltbot-dashboard-sub002/notifications"
)

// Watcher publishes tasks-changed when the board file is edited outside
// the gateway. Writes made by the gateway's own FileStore are skipped.
type Watcher struct {
	store    *FileStore
	notifier Notifier

	mu        sync.Mutex // guards watcher against a concurrent Stop
	watcher   *fsnotify.Watcher
	debouncer *debouncer
	stopChan  chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

// ErrWatcherStopped is returned by Start after Stop
var ErrWatcherStopped = errors.New("task watcher stopped")

// NewWatcher creates a watcher for the store's file on the OS filesystem
func NewWatcher(store *FileStore, notifier Notifier) *Watcher {
	return NewWatcherWithDelay(store, notifier, DefaultDebounceDelay)
}

// NewWatcherWithDelay is NewWatcher with a custom debounce delay
func NewWatcherWithDelay(store *FileStore, notifier Notifier, delay time.Duration) *Watcher {
	w := &Watcher{
		store:    store,
		notifier: notifier,
		stopChan: make(chan struct{}),
	}
	w.debouncer = newDebouncer(delay, w.processDebounced)
	return w
}

// Start begins watching the directory holding the board file. The file
// itself is replaced by rename on every save, so watching it directly
// would lose the watch after the first write.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	select {
	case <-w.stopChan:
		return ErrWatcherStopped
	default:
	}
	if w.watcher != nil {
		return nil
	}

	dir := filepath.Dir(w.store.Path())
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return err
	}
	w.watcher = fsw

	w.wg.Add(1)
	go w.eventLoop()

	log.Info().Str("file", w.store.Path()).Msg("task file watcher started")
	return nil
}

// Stop stops the watcher and waits for the event loop to exit
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		w.debouncer.Stop()
		close(w.stopChan)
		if w.watcher != nil {
			w.watcher.Close()
		}
	})
	w.wg.Wait()
}

func (w *Watcher) eventLoop() {
	defer w.wg.Done()

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("task watcher error")

		case <-w.stopChan:
			return
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != w.store.Path() {
		return
	}
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}
	w.debouncer.Queue(event.Name)
}

func (w *Watcher) processDebounced(path string) {
	if w.store.MatchesLastSave() {
		return
	}
	log.Info().Str("file", path).Msg("task file changed externally")
	if w.notifier != nil {
		w.notifier.NotifyTasksChanged(notifications.SourceExternal, "", "")
	}
}
