package commands

import (
	"context"
	"fmt"

	"git.home.luguber.info/inful/releasekeeper/internal/artifacts"
	"git.home.luguber.info/inful/releasekeeper/internal/config"
	"git.home.luguber.info/inful/releasekeeper/internal/deploy"
	"git.home.luguber.info/inful/releasekeeper/internal/foundation/errors"
	"git.home.luguber.info/inful/releasekeeper/internal/history"
	"git.home.luguber.info/inful/releasekeeper/internal/retry"
	"git.home.luguber.info/inful/releasekeeper/internal/revision"
)

func newSyncer(ctx context.Context, cfg *config.Config, app config.Application) (*artifacts.ManifestSyncer, error) {
	if !app.Assets.Enabled {
		return nil, errors.ConfigError("asset download is not enabled").WithContext("app", app.Name).Build()
	}
	objects, err := artifacts.NewObjectStore(ctx, app.Assets)
	if err != nil {
		return nil, err
	}
	return artifacts.NewManifestSyncer(objects, artifacts.WithRetryPolicy(retry.FromConfig(cfg.Retry))), nil
}

// SyncAssetsCmd implements the 'sync-assets' command.
type SyncAssetsCmd struct {
	App      string `arg:"" help:"Application name"`
	Release  string `arg:"" help:"Absolute path of the release directory"`
	Revision string `help:"Revision to download manifests for (default: HEAD of the release checkout)"`
}

func (c *SyncAssetsCmd) Run(g *Global, root *CLI) error {
	return withApp(root, c.App, func(ctx context.Context, e *env, app config.Application, _ string) error {
		release, err := history.NormalizeRelease(c.Release)
		if err != nil {
			return err
		}
		syncer, err := newSyncer(ctx, e.cfg, app)
		if err != nil {
			return err
		}
		rev := c.Revision
		if rev == "" {
			if rev, err = revision.Short(release, app.Assets.RevisionLength); err != nil {
				return err
			}
		}
		placed, err := syncer.Sync(ctx, app.Name, rev, release)
		if err != nil {
			return err
		}
		for _, p := range placed {
			if _, err := fmt.Fprintf(g.out(), "%s -> %s\n", p.Key, p.Path); err != nil {
				return err
			}
		}
		return nil
	})
}

// DeployCmd implements the 'deploy' command.
type DeployCmd struct {
	App     string `arg:"" help:"Application name"`
	Release string `arg:"" help:"Absolute path of the release directory"`
}

func (c *DeployCmd) Run(_ *Global, root *CLI) error {
	return withApp(root, c.App, func(ctx context.Context, e *env, app config.Application, _ string) error {
		opts := []deploy.Option{}
		if app.Assets.Enabled {
			syncer, err := newSyncer(ctx, e.cfg, app)
			if err != nil {
				return err
			}
			opts = append(opts, deploy.WithSyncer(syncer))
		}
		return deploy.NewWorkflow(app, e.manager, revision.Short, opts...).Run(ctx, c.Release)
	})
}
