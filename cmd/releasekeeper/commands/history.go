package commands

import (
	"context"
	"encoding/json"
	"fmt"

	"git.home.luguber.info/inful/releasekeeper/internal/config"
	"git.home.luguber.info/inful/releasekeeper/internal/foundation/errors"
)

// RecordCmd implements the 'record' command.
type RecordCmd struct {
	App     string `arg:"" help:"Application name"`
	Release string `arg:"" help:"Absolute path of the release directory"`
}

func (c *RecordCmd) Run(_ *Global, root *CLI) error {
	return withApp(root, c.App, func(ctx context.Context, e *env, app config.Application, releasesRoot string) error {
		return e.manager.RecordNewRelease(ctx, app.Name, releasesRoot, c.Release)
	})
}

// ForgetCmd implements the 'forget' command.
type ForgetCmd struct {
	App     string `arg:"" help:"Application name"`
	Release string `arg:"" help:"Absolute path of the release directory"`
}

func (c *ForgetCmd) Run(_ *Global, root *CLI) error {
	return withApp(root, c.App, func(ctx context.Context, e *env, app config.Application, releasesRoot string) error {
		return e.manager.ForgetRelease(ctx, app.Name, releasesRoot, c.Release)
	})
}

// ValidateCmd implements the 'validate' command.
type ValidateCmd struct {
	App string `arg:"" help:"Application name"`
}

func (c *ValidateCmd) Run(g *Global, root *CLI) error {
	return withApp(root, c.App, func(ctx context.Context, e *env, app config.Application, releasesRoot string) error {
		h, err := e.manager.Validate(ctx, app.Name, releasesRoot)
		if err != nil {
			return err
		}
		return printLines(g, h.Paths())
	})
}

// ListCmd implements the 'list' command.
type ListCmd struct {
	App  string `arg:"" help:"Application name"`
	JSON bool   `help:"Print the history as a JSON array"`
}

func (c *ListCmd) Run(g *Global, root *CLI) error {
	return withApp(root, c.App, func(ctx context.Context, e *env, app config.Application, releasesRoot string) error {
		h, err := e.manager.CurrentReleases(ctx, app.Name, releasesRoot)
		if err != nil {
			return err
		}
		if c.JSON {
			data, err := json.Marshal(h)
			if err != nil {
				return errors.InternalError("failed to encode history").WithCause(err).Build()
			}
			_, err = fmt.Fprintln(g.out(), string(data))
			return err
		}
		return printLines(g, h.Paths())
	})
}

// ActiveCmd implements the 'active' command.
type ActiveCmd struct {
	App string `arg:"" help:"Application name"`
}

func (c *ActiveCmd) Run(g *Global, root *CLI) error {
	return withApp(root, c.App, func(ctx context.Context, e *env, app config.Application, releasesRoot string) error {
		release, ok, err := e.manager.Active(ctx, app.Name, releasesRoot)
		if err != nil {
			return err
		}
		if !ok {
			return errors.NotFoundError("no releases recorded").WithContext("app", app.Name).Build()
		}
		_, err = fmt.Fprintln(g.out(), release)
		return err
	})
}

// RollbackCmd implements the 'rollback' command.
type RollbackCmd struct {
	App     string `arg:"" help:"Application name"`
	Release string `arg:"" help:"Absolute path of a recorded release"`
}

func (c *RollbackCmd) Run(_ *Global, root *CLI) error {
	return withApp(root, c.App, func(ctx context.Context, e *env, app config.Application, releasesRoot string) error {
		return e.manager.Rollback(ctx, app.Name, releasesRoot, c.Release)
	})
}

// PurgeCmd implements the 'purge' command.
type PurgeCmd struct {
	App string `arg:"" help:"Application name"`
}

func (c *PurgeCmd) Run(g *Global, root *CLI) error {
	return withApp(root, c.App, func(ctx context.Context, e *env, app config.Application, releasesRoot string) error {
		removed, err := e.manager.PurgeUnknown(ctx, app.Name, releasesRoot)
		if perr := printLines(g, removed); perr != nil && err == nil {
			err = perr
		}
		return err
	})
}

func printLines(g *Global, lines []string) error {
	for _, l := range lines {
		if _, err := fmt.Fprintln(g.out(), l); err != nil {
			return err
		}
	}
	return nil
}
