package commands

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"

	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/releasekeeper/internal/daemon"
	"git.home.luguber.info/inful/releasekeeper/internal/metrics"
)

// DaemonCmd implements the 'daemon' command.
type DaemonCmd struct{}

func (d *DaemonCmd) Run(_ *Global, root *CLI) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	reg := prom.NewRegistry()
	e, err := openEnv(ctx, root, metrics.NewPrometheusRecorder(reg))
	if err != nil {
		return err
	}
	defer e.Close()

	dm, err := daemon.NewDaemon(e.cfg, e.manager, daemon.WithRegistry(reg))
	if err != nil {
		return err
	}
	slog.Info("Daemon started, waiting for shutdown signal...")
	if err := dm.Run(ctx); err != nil {
		return err
	}
	slog.Info("Daemon stopped successfully")
	return nil
}
