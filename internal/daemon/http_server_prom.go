package daemon

import (
	"context"
	stderrors "errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	promcollect "github.com/prometheus/client_golang/prometheus/collectors"

	"git.home.luguber.info/inful/releasekeeper/internal/foundation/errors"
	"git.home.luguber.info/inful/releasekeeper/internal/logfields"
	m "git.home.luguber.info/inful/releasekeeper/internal/metrics"
)

// metricsServer serves /metrics for the daemon.
type metricsServer struct {
	addr     string
	registry *prom.Registry
	server   *http.Server
	listener net.Listener
}

func newMetricsServer(addr string, reg *prom.Registry) *metricsServer {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	return &metricsServer{addr: addr, registry: reg}
}

// Start binds the listener and serves in the background.
func (s *metricsServer) Start() error {
	// Collectors may remain registered from an earlier Start.
	for _, c := range []prom.Collector{
		promcollect.NewGoCollector(),
		promcollect.NewProcessCollector(promcollect.ProcessCollectorOpts{}),
	} {
		if err := s.registry.Register(c); err != nil {
			var already prom.AlreadyRegisteredError
			if !stderrors.As(err, &already) {
				return errors.DaemonError("failed to register runtime collectors").WithCause(err).Build()
			}
		}
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.HTTPHandler(s.registry))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return errors.DaemonError("failed to bind metrics listener").WithCause(err).WithContext("addr", s.addr).Build()
	}
	s.listener = ln
	s.server = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := s.server.Serve(ln); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			slog.Error("Metrics server stopped", logfields.Error(err))
		}
	}()
	slog.Info("Serving metrics", slog.String("addr", ln.Addr().String()))
	return nil
}

// Addr returns the bound address, useful when listening on port 0.
func (s *metricsServer) Addr() string {
	if s.listener == nil {
		return s.addr
	}
	return s.listener.Addr().String()
}

// Stop gracefully shuts the server down.
func (s *metricsServer) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
