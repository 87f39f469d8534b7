package daemon

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/releasekeeper/internal/config"
	"git.home.luguber.info/inful/releasekeeper/internal/history"
	"git.home.luguber.info/inful/releasekeeper/internal/metrics"
	"git.home.luguber.info/inful/releasekeeper/internal/releasefs"
	"git.home.luguber.info/inful/releasekeeper/internal/releases"
	"git.home.luguber.info/inful/releasekeeper/internal/store"
)

type daemonFixture struct {
	cfg   *config.Config
	app   config.Application
	root  string
	store *store.MemoryStore
	mgr   *releases.Manager
}

func newDaemonFixture(t *testing.T, watch bool) *daemonFixture {
	t.Helper()
	deployTo := t.TempDir()
	root := releasefs.ReleasesRoot(deployTo)
	require.NoError(t, os.MkdirAll(root, 0o750))

	app := config.Application{Name: "shop", DeployTo: deployTo, KeepReleases: 5}
	st := store.NewMemoryStore()
	return &daemonFixture{
		cfg: &config.Config{
			Applications: []config.Application{app},
			Daemon:       config.DaemonConfig{Interval: time.Hour, Watch: watch, Debounce: 50 * time.Millisecond},
		},
		app:   app,
		root:  root,
		store: st,
		mgr:   releases.NewManager(st, releasefs.NewReconciler()),
	}
}

func (f *daemonFixture) mkrelease(t *testing.T, name string) string {
	t.Helper()
	p := filepath.Join(f.root, name)
	require.NoError(t, os.MkdirAll(p, 0o750))
	return p
}

func (f *daemonFixture) history(t *testing.T) []string {
	t.Helper()
	h, _, err := f.store.Load(context.Background(), f.app.Name)
	require.NoError(t, err)
	return h.Paths()
}

func TestNewDaemon_RequiresCollaborators(t *testing.T) {
	_, err := NewDaemon(nil, nil)
	require.Error(t, err)
}

func TestReconcile_ValidatesAndPurges(t *testing.T) {
	f := newDaemonFixture(t, false)
	f.cfg.Daemon.PurgeUnknown = true
	ctx := context.Background()

	keep := f.mkrelease(t, "2")
	stray := f.mkrelease(t, "stray")
	require.NoError(t, f.store.Save(ctx, f.app.Name, history.New(filepath.Join(f.root, "1"), keep)))

	d, err := NewDaemon(f.cfg, f.mgr)
	require.NoError(t, err)
	require.NoError(t, d.Reconcile(ctx, f.app))

	assert.Equal(t, []string{keep}, f.history(t))
	assert.NoDirExists(t, stray)
}

func TestReconcile_KeepsUnrecordedCheckoutByDefault(t *testing.T) {
	f := newDaemonFixture(t, false)
	ctx := context.Background()

	active := f.mkrelease(t, "20240101")
	require.NoError(t, f.store.Save(ctx, f.app.Name, history.New(filepath.Join(f.root, "20231201"), active)))
	// Checked out by a deploy that has not recorded it yet.
	pending := f.mkrelease(t, "20240202")

	d, err := NewDaemon(f.cfg, f.mgr)
	require.NoError(t, err)
	require.NoError(t, d.Reconcile(ctx, f.app))

	assert.Equal(t, []string{active}, f.history(t))
	assert.DirExists(t, pending)
}

func TestReconcile_PurgeDisabled(t *testing.T) {
	f := newDaemonFixture(t, false)
	f.cfg.Daemon.PurgeUnknown = true
	off := false
	f.app.PurgeUnknown = &off
	ctx := context.Background()

	stray := f.mkrelease(t, "stray")
	require.NoError(t, f.store.Save(ctx, f.app.Name, history.History{}))

	d, err := NewDaemon(f.cfg, f.mgr)
	require.NoError(t, err)
	require.NoError(t, d.Reconcile(ctx, f.app))
	assert.DirExists(t, stray)
}

func TestReconcile_SerializedPerApp(t *testing.T) {
	f := newDaemonFixture(t, false)
	f.mkrelease(t, "1")
	d, err := NewDaemon(f.cfg, f.mgr)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, d.Reconcile(context.Background(), f.app))
		}()
	}
	wg.Wait()
	assert.Equal(t, []string{filepath.Join(f.root, "1")}, f.history(t))
}

func TestDaemon_StartStop(t *testing.T) {
	f := newDaemonFixture(t, true)
	ctx := context.Background()

	r1 := f.mkrelease(t, "1")
	r2 := f.mkrelease(t, "2")
	require.NoError(t, f.store.Save(ctx, f.app.Name, history.New(r1, r2)))

	d, err := NewDaemon(f.cfg, f.mgr)
	require.NoError(t, err)
	require.NoError(t, d.Start(ctx))
	assert.Equal(t, StatusRunning, d.GetStatus())
	require.Error(t, d.Start(ctx), "second start must fail")

	// A removed release is dropped from history by the watcher.
	require.NoError(t, os.RemoveAll(r1))
	require.Eventually(t, func() bool {
		h, _, err := f.store.Load(ctx, f.app.Name)
		return err == nil && h.Len() == 1
	}, 5*time.Second, 25*time.Millisecond)
	assert.Equal(t, []string{r2}, f.history(t))

	require.NoError(t, d.Stop(ctx))
	assert.Equal(t, StatusStopped, d.GetStatus())
	require.NoError(t, d.Stop(ctx))
}

func TestDaemon_ServesMetrics(t *testing.T) {
	f := newDaemonFixture(t, false)
	f.cfg.Daemon.MetricsAddr = "127.0.0.1:0"
	reg := prom.NewRegistry()
	f.mgr = releases.NewManager(f.store, releasefs.NewReconciler(), releases.WithRecorder(metrics.NewPrometheusRecorder(reg)))
	f.mkrelease(t, "1")

	d, err := NewDaemon(f.cfg, f.mgr, WithRegistry(reg))
	require.NoError(t, err)
	require.NoError(t, d.Start(context.Background()))
	t.Cleanup(func() { _ = d.Stop(context.Background()) })

	resp, err := http.Get("http://" + d.httpServer.Addr() + "/metrics")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "releasekeeper_known_releases")
	assert.Contains(t, string(body), "go_goroutines")
}

func TestDaemon_Run(t *testing.T) {
	f := newDaemonFixture(t, false)
	d, err := NewDaemon(f.cfg, f.mgr)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	require.Eventually(t, func() bool { return d.GetStatus() == StatusRunning }, 2*time.Second, 10*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Equal(t, StatusStopped, d.GetStatus())
}
