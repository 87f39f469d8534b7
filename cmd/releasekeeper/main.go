package main

import (
	"log/slog"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/releasekeeper/cmd/releasekeeper/commands"
	"git.home.luguber.info/inful/releasekeeper/internal/foundation/errors"
	"git.home.luguber.info/inful/releasekeeper/internal/version"
)

func main() {
	cli := &commands.CLI{}
	ctx := kong.Parse(cli,
		kong.Name("releasekeeper"),
		kong.Description("Release history bookkeeping for revision-based deploys"),
		kong.UsageOnError(),
		kong.Vars{"version": version.String()},
	)

	if err := ctx.Run(&commands.Global{Logger: slog.Default()}, cli); err != nil {
		errors.NewCLIErrorAdapter(cli.Verbose, slog.Default()).HandleError(err)
	}
}
