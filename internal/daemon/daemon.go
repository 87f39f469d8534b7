// Package daemon keeps release histories reconciled with the filesystem
// between deploys.
package daemon

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/releasekeeper/internal/config"
	"git.home.luguber.info/inful/releasekeeper/internal/foundation/errors"
	"git.home.luguber.info/inful/releasekeeper/internal/logfields"
	"git.home.luguber.info/inful/releasekeeper/internal/releasefs"
	"git.home.luguber.info/inful/releasekeeper/internal/releases"
)

// Status represents the current state of the daemon.
type Status string

const (
	StatusStopped  Status = "stopped"
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusStopping Status = "stopping"
)

// Daemon periodically validates and purges every configured application and
// validates on release directory removal.
type Daemon struct {
	config   *config.Config
	manager  *releases.Manager
	registry *prom.Registry

	status atomic.Value // Status
	mu     sync.Mutex

	scheduler  *Scheduler
	watcher    *ReleaseWatcher
	httpServer *metricsServer
	locks      appLocks
}

// Option configures a Daemon.
type Option func(*Daemon)

// WithRegistry exposes reg on the metrics endpoint.
func WithRegistry(reg *prom.Registry) Option {
	return func(d *Daemon) { d.registry = reg }
}

// NewDaemon creates a daemon for the applications of cfg.
func NewDaemon(cfg *config.Config, manager *releases.Manager, opts ...Option) (*Daemon, error) {
	if cfg == nil || manager == nil {
		return nil, errors.InternalError("daemon requires a configuration and a release manager").Build()
	}
	d := &Daemon{config: cfg, manager: manager}
	for _, opt := range opts {
		opt(d)
	}
	d.status.Store(StatusStopped)
	return d, nil
}

// GetStatus returns the current status.
func (d *Daemon) GetStatus() Status {
	if s, ok := d.status.Load().(Status); ok {
		return s
	}
	return StatusStopped
}

// Reconcile validates the history of app. Unknown release directories are
// purged only when both daemon.purge_unknown and the application allow it.
// Calls for the same app are serialized.
func (d *Daemon) Reconcile(ctx context.Context, app config.Application) error {
	unlock := d.locks.lock(app.Name)
	defer unlock()

	ctx = releases.WithRunID(ctx, uuid.NewString())
	root := releasefs.ReleasesRoot(app.DeployTo)
	if _, err := d.manager.Validate(ctx, app.Name, root); err != nil {
		return err
	}
	if !d.config.Daemon.PurgeUnknown || !app.ShouldPurgeUnknown() {
		return nil
	}
	_, err := d.manager.PurgeUnknown(ctx, app.Name, root)
	return err
}

// validate only drops missing releases; used on watcher events.
func (d *Daemon) validate(ctx context.Context, app config.Application) error {
	unlock := d.locks.lock(app.Name)
	defer unlock()

	ctx = releases.WithRunID(ctx, uuid.NewString())
	_, err := d.manager.Validate(ctx, app.Name, releasefs.ReleasesRoot(app.DeployTo))
	return err
}

// Start reconciles every application once, then starts the schedule, the
// watcher and the metrics endpoint as configured. It does not block.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.GetStatus() != StatusStopped {
		return errors.DaemonError("daemon is not in stopped state").WithContext("status", string(d.GetStatus())).Build()
	}
	d.status.Store(StatusStarting)
	slog.Info("Starting releasekeeper daemon", logfields.Count(len(d.config.Applications)))

	for _, app := range d.config.Applications {
		if err := d.Reconcile(ctx, app); err != nil {
			slog.Error("Initial reconcile failed", logfields.App(app.Name), logfields.Error(err))
		}
	}

	if err := d.startComponents(ctx); err != nil {
		d.stopComponents(ctx)
		d.status.Store(StatusStopped)
		return err
	}

	d.status.Store(StatusRunning)
	slog.Info("Releasekeeper daemon started",
		slog.Duration("interval", d.config.Daemon.Interval),
		slog.Bool("watch", d.config.Daemon.Watch))
	return nil
}

func (d *Daemon) startComponents(ctx context.Context) error {
	scheduler, err := NewScheduler()
	if err != nil {
		return err
	}
	d.scheduler = scheduler
	for _, app := range d.config.Applications {
		if _, err := scheduler.ScheduleEvery("reconcile-"+app.Name, d.config.Daemon.Interval, func() {
			if err := d.Reconcile(ctx, app); err != nil {
				slog.Error("Scheduled reconcile failed", logfields.App(app.Name), logfields.Error(err))
			}
		}); err != nil {
			return err
		}
	}
	scheduler.Start(ctx)

	if d.config.Daemon.Watch {
		apps := make(map[string]config.Application, len(d.config.Applications))
		for _, app := range d.config.Applications {
			apps[app.Name] = app
		}
		watcher, err := NewReleaseWatcher(d.config.Daemon.Debounce, func(name string) {
			if err := d.validate(ctx, apps[name]); err != nil {
				slog.Error("Validate after removal failed", logfields.App(name), logfields.Error(err))
			}
		})
		if err != nil {
			return err
		}
		d.watcher = watcher
		for _, app := range d.config.Applications {
			if err := watcher.Watch(app.Name, releasefs.ReleasesRoot(app.DeployTo)); err != nil {
				slog.Warn("Not watching releases root", logfields.App(app.Name), logfields.Error(err))
			}
		}
		watcher.Start(ctx)
	}

	if d.config.Daemon.MetricsAddr != "" {
		d.httpServer = newMetricsServer(d.config.Daemon.MetricsAddr, d.registry)
		if err := d.httpServer.Start(); err != nil {
			return err
		}
	}
	return nil
}

// Stop shuts down all components. Stopping a stopped daemon is a no-op.
func (d *Daemon) Stop(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if s := d.GetStatus(); s == StatusStopped || s == StatusStopping {
		return nil
	}
	d.status.Store(StatusStopping)
	slog.Info("Stopping releasekeeper daemon")
	d.stopComponents(ctx)
	d.status.Store(StatusStopped)
	return nil
}

func (d *Daemon) stopComponents(ctx context.Context) {
	if d.scheduler != nil {
		if err := d.scheduler.Stop(ctx); err != nil {
			slog.Error("Failed to stop scheduler", logfields.Error(err))
		}
		d.scheduler = nil
	}
	if d.watcher != nil {
		if err := d.watcher.Stop(); err != nil {
			slog.Error("Failed to stop release watcher", logfields.Error(err))
		}
		d.watcher = nil
	}
	if d.httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := d.httpServer.Stop(shutdownCtx); err != nil {
			slog.Error("Failed to stop metrics server", logfields.Error(err))
		}
		d.httpServer = nil
	}
}

// Run starts the daemon and blocks until ctx is cancelled.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return d.Stop(ctx)
}

// appLocks hands out one mutex per application.
type appLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (l *appLocks) lock(app string) func() {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[string]*sync.Mutex)
	}
	m, ok := l.locks[app]
	if !ok {
		m = &sync.Mutex{}
		l.locks[app] = m
	}
	l.mu.Unlock()
	m.Lock()
	return m.Unlock
}
