package commands

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alecthomas/kong"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/releasekeeper/internal/foundation/errors"
)

type cliFixture struct {
	configPath string
	deployTo   string
	root       string
	assetsDir  string
}

func newCLIFixture(t *testing.T) *cliFixture {
	t.Helper()
	dir := t.TempDir()
	f := &cliFixture{
		configPath: filepath.Join(dir, "releasekeeper.yaml"),
		deployTo:   filepath.Join(dir, "srv", "shop"),
		assetsDir:  filepath.Join(dir, "bucket"),
	}
	f.root = filepath.Join(f.deployTo, "releases")
	require.NoError(t, os.MkdirAll(f.root, 0o750))
	require.NoError(t, os.MkdirAll(f.assetsDir, 0o750))

	cfg := fmt.Sprintf(`state:
  backend: file
  dir: %s
applications:
  - name: shop
    deploy_to: %s
    keep_releases: 2
    assets:
      enabled: true
      local_dir: %s
`, filepath.Join(dir, "state"), f.deployTo, f.assetsDir)
	require.NoError(t, os.WriteFile(f.configPath, []byte(cfg), 0o600))
	return f
}

func (f *cliFixture) mkrelease(t *testing.T, name string) string {
	t.Helper()
	p := filepath.Join(f.root, name)
	require.NoError(t, os.MkdirAll(p, 0o750))
	return p
}

// run parses args against a fresh CLI and runs the selected command.
func (f *cliFixture) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var cli CLI
	parser, err := kong.New(&cli, kong.Vars{"version": "test"}, kong.Exit(func(int) { t.Fatal("unexpected exit") }))
	require.NoError(t, err)
	kctx, err := parser.Parse(append([]string{"-c", f.configPath}, args...))
	require.NoError(t, err)

	var out bytes.Buffer
	err = kctx.Run(&Global{Out: &out}, &cli)
	return out.String(), err
}

func lines(s string) []string {
	return strings.Fields(s)
}

func TestRecordListActive(t *testing.T) {
	f := newCLIFixture(t)
	r1 := f.mkrelease(t, "20230101")
	r2 := f.mkrelease(t, "20230115")

	_, err := f.run(t, "record", "shop", r1)
	require.NoError(t, err)
	_, err = f.run(t, "record", "shop", r2)
	require.NoError(t, err)

	out, err := f.run(t, "list", "shop")
	require.NoError(t, err)
	assert.Equal(t, []string{r1, r2}, lines(out))

	out, err = f.run(t, "list", "shop", "--json")
	require.NoError(t, err)
	assert.JSONEq(t, fmt.Sprintf(`[%q, %q]`, r1, r2), out)

	out, err = f.run(t, "active", "shop")
	require.NoError(t, err)
	assert.Equal(t, r2+"\n", out)

	_, err = f.run(t, "rollback", "shop", r1)
	require.NoError(t, err)
	out, err = f.run(t, "active", "shop")
	require.NoError(t, err)
	assert.Equal(t, r1+"\n", out)
}

func TestValidateAndForget(t *testing.T) {
	f := newCLIFixture(t)
	r1 := f.mkrelease(t, "20230101")
	r2 := f.mkrelease(t, "20230115")
	for _, r := range []string{r1, r2} {
		_, err := f.run(t, "record", "shop", r)
		require.NoError(t, err)
	}

	require.NoError(t, os.RemoveAll(r1))
	out, err := f.run(t, "validate", "shop")
	require.NoError(t, err)
	assert.Equal(t, []string{r2}, lines(out))

	_, err = f.run(t, "forget", "shop", r2)
	require.NoError(t, err)
	out, err = f.run(t, "list", "shop")
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.DirExists(t, r2)
}

func TestPurge(t *testing.T) {
	f := newCLIFixture(t)
	a := f.mkrelease(t, "A")
	_, err := f.run(t, "record", "shop", a)
	require.NoError(t, err)
	b := f.mkrelease(t, "B")

	out, err := f.run(t, "purge", "shop")
	require.NoError(t, err)
	assert.Equal(t, []string{b}, lines(out))
	assert.DirExists(t, a)
	assert.NoDirExists(t, b)
}

func TestSyncAssets(t *testing.T) {
	f := newCLIFixture(t)
	rel := f.mkrelease(t, "1")
	for key, body := range map[string]string{
		"manifests/abc123-manifest.json":            `{}`,
		"manifests/abc123-.sprockets-manifest.json": `{}`,
	} {
		p := filepath.Join(f.assetsDir, filepath.FromSlash(key))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o750))
		require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	}

	out, err := f.run(t, "sync-assets", "shop", rel, "--revision", "abc123")
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(out), "\n"), 2)
	assert.FileExists(t, filepath.Join(rel, "public", "packs", "manifest.json"))
	assert.FileExists(t, filepath.Join(rel, "public", "assets", ".sprockets-manifest.json"))
}

func TestSyncAssets_MissingManifest(t *testing.T) {
	f := newCLIFixture(t)
	rel := f.mkrelease(t, "1")
	p := filepath.Join(f.assetsDir, "manifests", "abc123-manifest.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o750))
	require.NoError(t, os.WriteFile(p, []byte(`{}`), 0o600))

	_, err := f.run(t, "sync-assets", "shop", rel, "--revision", "abc123")
	require.Error(t, err)
	assert.Equal(t, 4, errors.NewCLIErrorAdapter(false, nil).ExitCodeFor(err))
	assert.NoDirExists(t, filepath.Join(rel, "public"))
}

func TestUnknownApplication(t *testing.T) {
	f := newCLIFixture(t)
	_, err := f.run(t, "list", "blog")
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryNotFound))
}

func TestActive_Empty(t *testing.T) {
	f := newCLIFixture(t)
	_, err := f.run(t, "active", "shop")
	assert.True(t, errors.HasCategory(err, errors.CategoryNotFound))
}

func TestInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "releasekeeper.yaml")
	f := &cliFixture{configPath: path}

	out, err := f.run(t, "init")
	require.NoError(t, err)
	assert.Contains(t, out, "initialized successfully")
	assert.FileExists(t, path)

	_, err = f.run(t, "init")
	require.Error(t, err, "existing file without --force")

	_, err = f.run(t, "init", "--force")
	require.NoError(t, err)
}
