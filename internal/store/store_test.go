package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/releasekeeper/internal/config"
	"git.home.luguber.info/inful/releasekeeper/internal/foundation/errors"
	"git.home.luguber.info/inful/releasekeeper/internal/history"
)

// backends returns one freshly opened instance of every store, with Redis and
// NATS served in-process.
func backends(t *testing.T) map[string]Store {
	t.Helper()

	fileStore, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	sqliteStore, err := NewSQLiteStore(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	redisStore := NewRedisStoreWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "")

	stores := map[string]Store{
		"file":   fileStore,
		"sqlite": sqliteStore,
		"redis":  redisStore,
		"nats":   newTestKVStore(t, runJetStream(t)),
		"memory": NewMemoryStore(),
	}
	t.Cleanup(func() {
		for _, s := range stores {
			_ = s.Close()
		}
	})
	return stores
}

func TestStores_MissingRecordIsNotAnError(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			h, found, err := s.Load(context.Background(), "shop")
			require.NoError(t, err)
			assert.False(t, found)
			assert.Equal(t, 0, h.Len())
		})
	}
}

func TestStores_RoundTripPreservesOrderAndBytes(t *testing.T) {
	want := history.New(
		"/srv/www/shop/releases/20230115",
		"/srv/www/shop/releases/20230101",
		"/srv/www/shop/releases/with space",
		"/srv/www/shop/releases/ünïcode",
	)

	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.Save(ctx, "shop", want))

			got, found, err := s.Load(ctx, "shop")
			require.NoError(t, err)
			require.True(t, found)
			assert.Equal(t, want.Paths(), got.Paths())
		})
	}
}

func TestStores_SaveReplacesPriorRecord(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.Save(ctx, "shop", history.New("/r/a", "/r/b", "/r/c")))
			require.NoError(t, s.Save(ctx, "shop", history.New("/r/c")))

			got, found, err := s.Load(ctx, "shop")
			require.NoError(t, err)
			require.True(t, found)
			assert.Equal(t, []string{"/r/c"}, got.Paths())
		})
	}
}

func TestStores_EmptyHistoryIsARecord(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.Save(ctx, "shop", history.History{}))

			got, found, err := s.Load(ctx, "shop")
			require.NoError(t, err)
			assert.True(t, found, "an empty saved history must not trigger filesystem seeding")
			assert.Equal(t, 0, got.Len())
		})
	}
}

func TestStores_KeysAreIsolated(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.Save(ctx, "shop", history.New("/shop/1")))
			require.NoError(t, s.Save(ctx, "blog", history.New("/blog/1")))

			got, _, err := s.Load(ctx, "shop")
			require.NoError(t, err)
			assert.Equal(t, []string{"/shop/1"}, got.Paths())
		})
	}
}

func TestStores_RejectInvalidKeys(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_, _, err := s.Load(ctx, "../etc")
			assert.True(t, errors.HasCategory(err, errors.CategoryValidation))
			err = s.Save(ctx, "", history.New("/r/a"))
			assert.True(t, errors.HasCategory(err, errors.CategoryValidation))
		})
	}
}

func TestFileStore_Layout(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)

	require.NoError(t, s.Save(context.Background(), "shop", history.New("/r/a", "/r/b")))

	data, err := os.ReadFile(filepath.Join(dir, "revision-deploys", "shop.json"))
	require.NoError(t, err)
	assert.JSONEq(t, `["/r/a","/r/b"]`, string(data))

	entries, err := os.ReadDir(filepath.Join(dir, "revision-deploys"))
	require.NoError(t, err)
	require.Len(t, entries, 1, "temporary files must not be left behind")
}

func TestFileStore_CorruptRecordIsStoreError(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "revision-deploys", "shop.json"), []byte("{not json"), 0o600))

	_, _, err = s.Load(context.Background(), "shop")
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryStore))
}

func TestFileStore_UnreadableRecordIsStoreError(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)
	// A directory where the record file should be makes ReadFile fail with
	// something other than "not exist".
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "revision-deploys", "shop.json"), 0o750))

	_, found, err := s.Load(context.Background(), "shop")
	require.Error(t, err)
	assert.False(t, found)
	assert.True(t, errors.HasCategory(err, errors.CategoryStore))
}

func TestRedisStore_Namespacing(t *testing.T) {
	mr := miniredis.RunT(t)
	s := NewRedisStoreWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "deploys")
	defer s.Close()

	require.NoError(t, s.Save(context.Background(), "shop", history.New("/r/a")))
	raw, err := mr.Get("deploys:shop")
	require.NoError(t, err)
	assert.JSONEq(t, `["/r/a"]`, raw)
}

func TestRedisStore_ServerFailureIsStoreError(t *testing.T) {
	mr := miniredis.RunT(t)
	s := NewRedisStoreWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1}), "")
	defer s.Close()

	mr.SetError("LOADING dataset in memory")
	_, _, err := s.Load(context.Background(), "shop")
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryStore))
}

func TestMemoryStore_FailuresAreStoreErrors(t *testing.T) {
	m := NewMemoryStore()
	m.FailSave = assert.AnError
	err := m.Save(context.Background(), "shop", history.New("/r/a"))
	assert.ErrorIs(t, err, assert.AnError)
	assert.True(t, errors.HasCategory(err, errors.CategoryStore))
	assert.Equal(t, 1, m.Calls().Save)
}

func TestOpen_SelectsBackend(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, config.StateConfig{Backend: config.StateBackendFile, Dir: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, s)
	require.NoError(t, s.Close())

	s, err = Open(ctx, config.StateConfig{Backend: config.StateBackendSQLite, SQLitePath: ":memory:"})
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, s)
	require.NoError(t, s.Close())

	mr := miniredis.RunT(t)
	s, err = Open(ctx, config.StateConfig{Backend: config.StateBackendRedis, Redis: config.RedisConfig{Addr: mr.Addr()}})
	require.NoError(t, err)
	assert.IsType(t, &RedisStore{}, s)
	require.NoError(t, s.Close())

	_, err = Open(ctx, config.StateConfig{Backend: "etcd"})
	assert.True(t, errors.HasCategory(err, errors.CategoryConfig))
}
