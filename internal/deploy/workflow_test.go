package deploy

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/releasekeeper/internal/artifacts"
	"git.home.luguber.info/inful/releasekeeper/internal/config"
	"git.home.luguber.info/inful/releasekeeper/internal/events"
	"git.home.luguber.info/inful/releasekeeper/internal/foundation/errors"
	"git.home.luguber.info/inful/releasekeeper/internal/history"
	"git.home.luguber.info/inful/releasekeeper/internal/releasefs"
	"git.home.luguber.info/inful/releasekeeper/internal/releases"
	"git.home.luguber.info/inful/releasekeeper/internal/store"
)

type fakeSyncer struct {
	calls []string
	err   error
}

func (f *fakeSyncer) Sync(_ context.Context, app, revision, releasePath string) ([]artifacts.Placement, error) {
	f.calls = append(f.calls, app+"@"+revision+":"+filepath.Base(releasePath))
	if f.err != nil {
		return nil, f.err
	}
	return []artifacts.Placement{{Key: "manifests/" + revision + "-manifest.json"}}, nil
}

func fixedRevision(string, int) (string, error) { return "abc123def0", nil }

type env struct {
	app       config.Application
	root      string
	store     *store.MemoryStore
	published *events.Recorder
	manager   *releases.Manager
}

func newEnv(t *testing.T, keep int, purge bool) *env {
	t.Helper()
	deployTo := t.TempDir()
	e := &env{
		app:       config.Application{Name: "shop", DeployTo: deployTo, KeepReleases: keep, PurgeUnknown: &purge},
		root:      releasefs.ReleasesRoot(deployTo),
		store:     store.NewMemoryStore(),
		published: &events.Recorder{},
	}
	require.NoError(t, os.MkdirAll(e.root, 0o750))
	e.manager = releases.NewManager(e.store, releasefs.NewReconciler(), releases.WithPublisher(e.published))
	return e
}

func (e *env) mkrelease(t *testing.T, name string) string {
	t.Helper()
	p := filepath.Join(e.root, name)
	require.NoError(t, os.MkdirAll(p, 0o750))
	return p
}

func (e *env) history(t *testing.T) []string {
	t.Helper()
	h, _, err := e.store.Load(context.Background(), e.app.Name)
	require.NoError(t, err)
	return h.Paths()
}

func TestRun_RecordsEvictsAndPurges(t *testing.T) {
	e := newEnv(t, 2, true)
	ctx := context.Background()

	r1, r2, r3 := e.mkrelease(t, "1"), e.mkrelease(t, "2"), e.mkrelease(t, "3")
	require.NoError(t, e.store.Save(ctx, e.app.Name, history.New(r1, r2, r3)))
	stray := e.mkrelease(t, "stray")
	r4 := e.mkrelease(t, "4")

	wf := NewWorkflow(e.app, e.manager, fixedRevision)
	require.NoError(t, wf.Run(ctx, r4))

	assert.Equal(t, []string{r3, r4}, e.history(t))
	assert.NoDirExists(t, r1)
	assert.NoDirExists(t, r2)
	assert.NoDirExists(t, stray)
	assert.DirExists(t, r3)
	assert.DirExists(t, r4)

	published := e.published.Events()
	require.NotEmpty(t, published)
	runID := published[0].RunID
	assert.NotEmpty(t, runID)
	for _, ev := range published {
		assert.Equal(t, runID, ev.RunID)
	}
	assert.Equal(t, events.Purged, published[len(published)-1].Type, "purge runs last")
}

func TestRun_PurgeDisabledKeepsUnknownDirectories(t *testing.T) {
	e := newEnv(t, 5, false)
	ctx := context.Background()

	r1 := e.mkrelease(t, "1")
	require.NoError(t, e.store.Save(ctx, e.app.Name, history.New(r1)))
	stray := e.mkrelease(t, "stray")
	r2 := e.mkrelease(t, "2")

	require.NoError(t, NewWorkflow(e.app, e.manager, fixedRevision).Run(ctx, r2))
	assert.Equal(t, []string{r1, r2}, e.history(t))
	assert.DirExists(t, stray)
}

func TestRun_PrepareDropsExternallyRemovedRelease(t *testing.T) {
	e := newEnv(t, 5, true)
	ctx := context.Background()

	old := e.mkrelease(t, "20230101")
	cur := e.mkrelease(t, "20230115")
	require.NoError(t, e.store.Save(ctx, e.app.Name, history.New(old, cur)))
	require.NoError(t, os.RemoveAll(old))

	require.NoError(t, NewWorkflow(e.app, e.manager, fixedRevision).Prepare(ctx))
	assert.Equal(t, []string{cur}, e.history(t))
}

func TestBeforeRestart_SyncsWhenAssetsEnabled(t *testing.T) {
	e := newEnv(t, 5, true)
	e.app.Assets = config.AssetsConfig{Enabled: true, LocalDir: "/unused", RevisionLength: 10}
	syncer := &fakeSyncer{}
	rel := e.mkrelease(t, "1")

	wf := NewWorkflow(e.app, e.manager, fixedRevision, WithSyncer(syncer))
	require.NoError(t, wf.BeforeRestart(context.Background(), rel))
	assert.Equal(t, []string{"shop@abc123def0:1"}, syncer.calls)
}

func TestBeforeRestart_SkippedWhenDisabled(t *testing.T) {
	e := newEnv(t, 5, true)
	syncer := &fakeSyncer{}
	wf := NewWorkflow(e.app, e.manager, func(string, int) (string, error) {
		t.Fatal("revision must not be resolved")
		return "", nil
	}, WithSyncer(syncer))
	require.NoError(t, wf.BeforeRestart(context.Background(), e.mkrelease(t, "1")))
	assert.Empty(t, syncer.calls)
}

func TestRun_MissingManifestsAbortBeforeCleanup(t *testing.T) {
	e := newEnv(t, 1, true)
	e.app.Assets = config.AssetsConfig{Enabled: true, LocalDir: "/unused"}
	ctx := context.Background()

	r1 := e.mkrelease(t, "1")
	require.NoError(t, e.store.Save(ctx, e.app.Name, history.New(r1)))
	r2 := e.mkrelease(t, "2")

	syncer := &fakeSyncer{err: artifacts.ErrMissingManifests}
	err := NewWorkflow(e.app, e.manager, fixedRevision, WithSyncer(syncer)).Run(ctx, r2)
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryPrecondition))

	// The release is registered but nothing was evicted.
	assert.Equal(t, []string{r1, r2}, e.history(t))
	assert.DirExists(t, r1)
}

func TestRun_RevisionFailureAborts(t *testing.T) {
	e := newEnv(t, 5, true)
	e.app.Assets = config.AssetsConfig{Enabled: true, LocalDir: "/unused"}
	gitErr := errors.GitError("failed to resolve HEAD").Build()

	wf := NewWorkflow(e.app, e.manager, func(string, int) (string, error) { return "", gitErr },
		WithSyncer(&fakeSyncer{}))
	err := wf.Run(context.Background(), e.mkrelease(t, "1"))
	assert.ErrorIs(t, err, gitErr)
}

func TestRun_StoreFailureStopsBeforePurge(t *testing.T) {
	e := newEnv(t, 5, true)
	stray := e.mkrelease(t, "stray")
	e.store.FailLoad = assert.AnError

	err := NewWorkflow(e.app, e.manager, fixedRevision).Run(context.Background(), e.mkrelease(t, "1"))
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryStore))
	assert.DirExists(t, stray)
}
