// Package deploy composes the release history steps of one deploy run.
package deploy

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/releasekeeper/internal/artifacts"
	"git.home.luguber.info/inful/releasekeeper/internal/config"
	"git.home.luguber.info/inful/releasekeeper/internal/logfields"
	"git.home.luguber.info/inful/releasekeeper/internal/releasefs"
	"git.home.luguber.info/inful/releasekeeper/internal/releases"
)

// Syncer places the asset manifests of a revision inside a release.
type Syncer interface {
	Sync(ctx context.Context, app, revision, releasePath string) ([]artifacts.Placement, error)
}

// RevisionFunc resolves the revision a release was checked out at.
type RevisionFunc func(releasePath string, length int) (string, error)

// Workflow runs the history steps of a deploy for one application.
type Workflow struct {
	app      config.Application
	manager  *releases.Manager
	syncer   Syncer
	revision RevisionFunc
	logger   *slog.Logger
}

// Option configures a Workflow.
type Option func(*Workflow)

// WithSyncer enables asset manifest download before restart.
func WithSyncer(s Syncer) Option {
	return func(w *Workflow) { w.syncer = s }
}

// WithRevisionFunc overrides how release revisions are resolved.
func WithRevisionFunc(fn RevisionFunc) Option {
	return func(w *Workflow) { w.revision = fn }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Workflow) { w.logger = l }
}

// NewWorkflow creates the deploy workflow of app.
func NewWorkflow(app config.Application, manager *releases.Manager, revision RevisionFunc, opts ...Option) *Workflow {
	w := &Workflow{
		app:      app,
		manager:  manager,
		revision: revision,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *Workflow) root() string {
	return releasefs.ReleasesRoot(w.app.DeployTo)
}

func (w *Workflow) log(ctx context.Context) *slog.Logger {
	return w.logger.With(logfields.App(w.app.Name), logfields.RunID(releases.RunIDFromContext(ctx)))
}

// Prepare drops history entries of releases removed since the last deploy.
func (w *Workflow) Prepare(ctx context.Context) error {
	_, err := w.manager.Validate(ctx, w.app.Name, w.root())
	return err
}

// Register records release as the newest release of the application.
func (w *Workflow) Register(ctx context.Context, release string) error {
	return w.manager.RecordNewRelease(ctx, w.app.Name, w.root(), release)
}

// BeforeRestart downloads the asset manifests of the release's revision
// when asset download is enabled.
func (w *Workflow) BeforeRestart(ctx context.Context, release string) error {
	if !w.app.Assets.Enabled || w.syncer == nil {
		return nil
	}
	rev, err := w.revision(release, w.app.Assets.RevisionLength)
	if err != nil {
		return err
	}
	w.log(ctx).Info("Downloading manifests for git revision", logfields.Revision(rev))
	placed, err := w.syncer.Sync(ctx, w.app.Name, rev, release)
	if err != nil {
		return err
	}
	w.log(ctx).Info("Manifests in place", logfields.Revision(rev), logfields.Count(len(placed)))
	return nil
}

// Cleanup evicts releases beyond keep_releases and, when enabled, removes
// release directories that are not in history. The purge runs last, after
// every history change is persisted.
func (w *Workflow) Cleanup(ctx context.Context) error {
	if _, err := w.manager.Evict(ctx, w.app.Name, w.root(), w.app.KeepReleases); err != nil {
		return err
	}
	if !w.app.ShouldPurgeUnknown() {
		return nil
	}
	_, err := w.manager.PurgeUnknown(ctx, w.app.Name, w.root())
	return err
}

// Run executes Prepare, Register, BeforeRestart and Cleanup for release
// under a fresh run ID. The first failing step aborts the run.
func (w *Workflow) Run(ctx context.Context, release string) error {
	runID := uuid.NewString()
	ctx = releases.WithRunID(ctx, runID)
	logger := w.log(ctx)
	start := time.Now()
	logger.Info("Deploy history run started", logfields.Release(release))

	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"prepare", w.Prepare},
		{"register", func(ctx context.Context) error { return w.Register(ctx, release) }},
		{"before_restart", func(ctx context.Context) error { return w.BeforeRestart(ctx, release) }},
		{"cleanup", w.Cleanup},
	}
	for _, step := range steps {
		if err := step.fn(ctx); err != nil {
			logger.Error("Deploy step failed", logfields.Stage(step.name), logfields.Error(err))
			return err
		}
		logger.Debug("Deploy step completed", logfields.Stage(step.name))
	}
	logger.Info("Deploy history run completed",
		logfields.Release(release), logfields.DurationMS(float64(time.Since(start).Milliseconds())))
	return nil
}
