package commands

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/releasekeeper/internal/config"
	"git.home.luguber.info/inful/releasekeeper/internal/events"
	"git.home.luguber.info/inful/releasekeeper/internal/logfields"
	"git.home.luguber.info/inful/releasekeeper/internal/metrics"
	"git.home.luguber.info/inful/releasekeeper/internal/releasefs"
	"git.home.luguber.info/inful/releasekeeper/internal/releases"
	"git.home.luguber.info/inful/releasekeeper/internal/store"
)

// Global context passed to subcommands.
type Global struct {
	Logger *slog.Logger
	Out    io.Writer
}

func (g *Global) out() io.Writer {
	if g == nil || g.Out == nil {
		return os.Stdout
	}
	return g.Out
}

// CLI definition & global flags.
type CLI struct {
	Config  string           `short:"c" help:"Configuration file path" default:"releasekeeper.yaml" type:"path"`
	Verbose bool             `short:"v" help:"Enable verbose logging"`
	Version kong.VersionFlag `name:"version" help:"Show version and exit"`

	Init       InitCmd       `cmd:"" help:"Initialize a new configuration file"`
	Record     RecordCmd     `cmd:"" help:"Record a release as the newest release of an application"`
	Forget     ForgetCmd     `cmd:"" help:"Remove a release from an application's history"`
	Validate   ValidateCmd   `cmd:"" help:"Drop history entries whose release directory is gone"`
	List       ListCmd       `cmd:"" help:"Print the release history, oldest first"`
	Active     ActiveCmd     `cmd:"" help:"Print the active (newest) release"`
	Rollback   RollbackCmd   `cmd:"" help:"Make a previously recorded release active again"`
	Purge      PurgeCmd      `cmd:"" help:"Delete release directories that are not in history"`
	SyncAssets SyncAssetsCmd `cmd:"" name:"sync-assets" help:"Download precompiled asset manifests into a release"`
	Deploy     DeployCmd     `cmd:"" help:"Run the history steps of a deploy for a release"`
	Daemon     DaemonCmd     `cmd:"" help:"Keep release histories reconciled in the background"`
}

// AfterApply runs after flag parsing; setup logging once.
// nolint:unparam // AfterApply currently never returns an error.
func (c *CLI) AfterApply() error {
	level := slog.LevelInfo
	if c.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return nil
}

// env bundles the collaborators of the history commands.
type env struct {
	cfg       *config.Config
	store     store.Store
	publisher events.Publisher
	manager   *releases.Manager
}

// openEnv loads the configuration and opens the history store and event
// publisher it names.
func openEnv(ctx context.Context, root *CLI, recorder metrics.Recorder) (*env, error) {
	cfg, err := config.Load(root.Config)
	if err != nil {
		return nil, err
	}
	st, err := store.Open(ctx, cfg.State)
	if err != nil {
		return nil, err
	}

	var publisher events.Publisher = events.Noop{}
	if cfg.Events.NATSURL != "" {
		p, err := events.NewNATSPublisher(cfg.Events.NATSURL, cfg.Events.Subject)
		if err != nil {
			slog.Warn("Release events disabled", logfields.Error(err))
		} else {
			publisher = p
		}
	}
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}

	mgr := releases.NewManager(st, releasefs.NewReconciler(),
		releases.WithLogger(slog.Default()),
		releases.WithRecorder(recorder),
		releases.WithPublisher(publisher))
	return &env{cfg: cfg, store: st, publisher: publisher, manager: mgr}, nil
}

func (e *env) Close() {
	if err := e.publisher.Close(); err != nil {
		slog.Warn("Failed to close event publisher", logfields.Error(err))
	}
	if err := e.store.Close(); err != nil {
		slog.Warn("Failed to close history store", logfields.Error(err))
	}
}

// app returns the configured application and its releases root.
func (e *env) app(name string) (config.Application, string, error) {
	app, err := e.cfg.Application(name)
	if err != nil {
		return config.Application{}, "", err
	}
	return *app, releasefs.ReleasesRoot(app.DeployTo), nil
}

// withApp opens the environment, resolves name and runs fn.
func withApp(root *CLI, name string, fn func(ctx context.Context, e *env, app config.Application, releasesRoot string) error) error {
	ctx := context.Background()
	e, err := openEnv(ctx, root, nil)
	if err != nil {
		return err
	}
	defer e.Close()

	app, releasesRoot, err := e.app(name)
	if err != nil {
		return err
	}
	return fn(ctx, e, app, releasesRoot)
}
