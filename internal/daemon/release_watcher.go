package daemon

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"git.home.luguber.info/inful/releasekeeper/internal/foundation/errors"
	"git.home.luguber.info/inful/releasekeeper/internal/logfields"
)

// ReleaseWatcher monitors releases roots and reports, debounced per
// application, when a release directory was removed or renamed away.
type ReleaseWatcher struct {
	watcher      *fsnotify.Watcher
	roots        map[string]string // releases root -> app name
	onChange     func(app string)
	debounceTime time.Duration

	mu       sync.Mutex
	timers   map[string]*time.Timer
	stopChan chan struct{}
	stopped  bool
	wg       sync.WaitGroup
}

// NewReleaseWatcher creates a watcher; onChange runs once per quiet period.
func NewReleaseWatcher(debounce time.Duration, onChange func(app string)) (*ReleaseWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.DaemonError("failed to create file watcher").WithCause(err).Build()
	}
	return &ReleaseWatcher{
		watcher:      watcher,
		roots:        make(map[string]string),
		onChange:     onChange,
		debounceTime: debounce,
		timers:       make(map[string]*time.Timer),
		stopChan:     make(chan struct{}),
	}, nil
}

// Watch adds the releases root of app.
func (rw *ReleaseWatcher) Watch(app, root string) error {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return errors.FileSystemError("failed to resolve releases root").WithCause(err).WithContext("root", root).Build()
	}
	if err := rw.watcher.Add(absRoot); err != nil {
		return errors.DaemonError("failed to watch releases root").
			WithCause(err).WithContext("app", app).WithContext("root", absRoot).Build()
	}
	rw.mu.Lock()
	rw.roots[absRoot] = app
	rw.mu.Unlock()
	slog.Info("Watching releases root", logfields.App(app), logfields.Root(absRoot))
	return nil
}

// Start begins processing events.
func (rw *ReleaseWatcher) Start(ctx context.Context) {
	rw.wg.Add(1)
	go func() {
		defer rw.wg.Done()
		rw.watchLoop(ctx)
	}()
}

// Stop stops the watcher and cancels pending callbacks.
func (rw *ReleaseWatcher) Stop() error {
	rw.mu.Lock()
	if rw.stopped {
		rw.mu.Unlock()
		return nil
	}
	rw.stopped = true
	close(rw.stopChan)
	for app, t := range rw.timers {
		t.Stop()
		delete(rw.timers, app)
	}
	rw.mu.Unlock()

	err := rw.watcher.Close()
	rw.wg.Wait()
	return err
}

func (rw *ReleaseWatcher) watchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-rw.stopChan:
			return
		case event, ok := <-rw.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			app, ok := rw.appFor(event.Name)
			if !ok {
				continue
			}
			slog.Debug("Release directory removed", logfields.App(app), logfields.Path(event.Name))
			rw.trigger(app)
		case err, ok := <-rw.watcher.Errors:
			if !ok {
				return
			}
			slog.Error("Release watcher error", logfields.Error(err))
		}
	}
}

// appFor maps an event path to the app whose root directly contains it.
func (rw *ReleaseWatcher) appFor(name string) (string, bool) {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	app, ok := rw.roots[filepath.Dir(name)]
	return app, ok
}

// trigger (re)starts the debounce timer of app.
func (rw *ReleaseWatcher) trigger(app string) {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	if rw.stopped {
		return
	}
	if t, ok := rw.timers[app]; ok {
		t.Stop()
	}
	rw.timers[app] = time.AfterFunc(rw.debounceTime, func() {
		rw.mu.Lock()
		delete(rw.timers, app)
		stopped := rw.stopped
		rw.mu.Unlock()
		if !stopped {
			rw.onChange(app)
		}
	})
}
