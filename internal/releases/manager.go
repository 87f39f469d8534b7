package releases

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"git.home.luguber.info/inful/releasekeeper/internal/events"
	"git.home.luguber.info/inful/releasekeeper/internal/foundation/errors"
	"git.home.luguber.info/inful/releasekeeper/internal/history"
	"git.home.luguber.info/inful/releasekeeper/internal/logfields"
	"git.home.luguber.info/inful/releasekeeper/internal/metrics"
	"git.home.luguber.info/inful/releasekeeper/internal/store"
	"git.home.luguber.info/inful/releasekeeper/internal/util/sets"
)

// Reconciler is the filesystem view the Manager depends on.
type Reconciler interface {
	ListReleaseDirs(root string) ([]string, error)
	Exists(path string) (bool, error)
	RemoveTree(path string) error
}

// Manager records, reorders, validates and purges release histories.
// It holds no history state between calls.
type Manager struct {
	store     store.Store
	fs        Reconciler
	logger    *slog.Logger
	recorder  metrics.Recorder
	publisher events.Publisher
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(m *Manager) { m.recorder = r }
}

// WithPublisher sets the lifecycle event publisher.
func WithPublisher(p events.Publisher) Option {
	return func(m *Manager) { m.publisher = p }
}

// NewManager creates a Manager over the given store and filesystem view.
func NewManager(st store.Store, fs Reconciler, opts ...Option) *Manager {
	m := &Manager{
		store:     st,
		fs:        fs,
		logger:    slog.Default(),
		recorder:  metrics.NoopRecorder{},
		publisher: events.Noop{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// load returns the persisted history, seeding it from root when no record exists.
func (m *Manager) load(ctx context.Context, key, root string) (history.History, error) {
	h, found, err := m.store.Load(ctx, key)
	if err != nil {
		return history.History{}, err
	}
	if found {
		return h, nil
	}

	dirs, err := m.fs.ListReleaseDirs(root)
	if err != nil {
		return history.History{}, err
	}
	m.logger.Info("No release history recorded, seeding from filesystem",
		logfields.App(key), logfields.Root(root), logfields.Count(len(dirs)))
	return history.New(dirs...), nil
}

func (m *Manager) save(ctx context.Context, key string, h history.History) error {
	if err := m.store.Save(ctx, key, h); err != nil {
		return err
	}
	m.recorder.SetKnownReleases(key, h.Len())
	return nil
}

// mutate runs one load-mutate-save cycle.
func (m *Manager) mutate(ctx context.Context, key, root string, fn func(history.History) history.History) (history.History, error) {
	h, err := m.load(ctx, key, root)
	if err != nil {
		return history.History{}, err
	}
	h = fn(h)
	if err := m.save(ctx, key, h); err != nil {
		return history.History{}, err
	}
	return h, nil
}

// track starts timing op; the returned func records the outcome stored in *errp.
func (m *Manager) track(op string) func(errp *error) {
	start := time.Now()
	return func(errp *error) {
		m.recorder.ObserveOperation(op, time.Since(start), metrics.ResultOf(*errp))
	}
}

func (m *Manager) publish(ctx context.Context, typ events.Type, key string, paths []string) {
	if len(paths) == 0 {
		return
	}
	ev := events.Event{Type: typ, App: key, Releases: paths, RunID: RunIDFromContext(ctx)}
	if err := m.publisher.Publish(ctx, ev); err != nil {
		m.logger.Warn("Failed to publish release event",
			logfields.App(key), slog.String("type", string(typ)), logfields.Error(err))
	}
}

// RecordNewRelease appends release to the history of key, moving it to the
// tail if it was already known, and persists the result. The release must be
// a directory directly under root.
func (m *Manager) RecordNewRelease(ctx context.Context, key, root, release string) (err error) {
	defer m.track("record")(&err)
	release, err = releaseUnderRoot(release, root)
	if err != nil {
		return err
	}
	if _, err = m.mutate(ctx, key, root, func(h history.History) history.History {
		return h.Push(release)
	}); err != nil {
		return err
	}
	m.logger.Info("Recorded release", logfields.App(key), logfields.Release(release))
	m.publish(ctx, events.Recorded, key, []string{release})
	return nil
}

// ForgetRelease removes release from the history of key. Forgetting an
// unknown release is not an error.
func (m *Manager) ForgetRelease(ctx context.Context, key, root, release string) (err error) {
	defer m.track("forget")(&err)
	release, err = history.NormalizeRelease(release)
	if err != nil {
		return err
	}
	known := false
	if _, err = m.mutate(ctx, key, root, func(h history.History) history.History {
		known = h.Contains(release)
		return h.Without(release)
	}); err != nil {
		return err
	}
	if known {
		m.logger.Info("Forgot release", logfields.App(key), logfields.Release(release))
		m.publish(ctx, events.Forgotten, key, []string{release})
	}
	return nil
}

// Validate drops history entries whose directory no longer exists, persists
// the cleaned history and returns it. A stat failure other than a missing
// directory aborts without saving.
func (m *Manager) Validate(ctx context.Context, key, root string) (_ history.History, err error) {
	defer m.track("validate")(&err)
	h, err := m.load(ctx, key, root)
	if err != nil {
		return history.History{}, err
	}

	var statErr error
	h, pruned := h.Filter(func(p string) bool {
		if statErr != nil {
			return true
		}
		ok, err := m.fs.Exists(p)
		if err != nil {
			statErr = err
			return true
		}
		return ok
	})
	if statErr != nil {
		return history.History{}, statErr
	}
	if err := m.save(ctx, key, h); err != nil {
		return history.History{}, err
	}

	for _, p := range pruned {
		m.logger.Info("Pruned missing release from history", logfields.App(key), logfields.Release(p))
	}
	m.recorder.AddPrunedReleases(key, len(pruned))
	m.publish(ctx, events.Pruned, key, pruned)
	return h, nil
}

// CurrentReleases returns the persisted history without modifying it. Call
// Validate first when the result must reflect the filesystem.
func (m *Manager) CurrentReleases(ctx context.Context, key, root string) (_ history.History, err error) {
	defer m.track("current")(&err)
	return m.load(ctx, key, root)
}

// Active returns the tail of the history, the release currently in service.
func (m *Manager) Active(ctx context.Context, key, root string) (string, bool, error) {
	h, err := m.CurrentReleases(ctx, key, root)
	if err != nil {
		return "", false, err
	}
	release, ok := h.Tail()
	return release, ok, nil
}

// Rollback makes an already known release active again by moving it to the
// tail of the history.
func (m *Manager) Rollback(ctx context.Context, key, root, release string) error {
	release, err := releaseUnderRoot(release, root)
	if err != nil {
		return err
	}
	h, err := m.CurrentReleases(ctx, key, root)
	if err != nil {
		return err
	}
	if !h.Contains(release) {
		return errors.NotFoundError("release is not in history").
			WithContext("app", key).WithContext("release", release).Build()
	}
	return m.RecordNewRelease(ctx, key, root, release)
}

// PurgeUnknown deletes every directory under root that is not in the history
// of key and returns the removed paths. A path present in history is never
// deleted. The first removal failure stops the purge.
func (m *Manager) PurgeUnknown(ctx context.Context, key, root string) (removed []string, err error) {
	defer m.track("purge")(&err)
	h, err := m.load(ctx, key, root)
	if err != nil {
		return nil, err
	}
	dirs, err := m.fs.ListReleaseDirs(root)
	if err != nil {
		return nil, err
	}

	defer func() {
		m.recorder.AddPurgedDirectories(key, len(removed))
		m.publish(ctx, events.Purged, key, removed)
	}()
	for _, dir := range sets.New(h.Paths()...).Missing(dirs) {
		m.logger.Info("Removing unknown release", logfields.App(key), logfields.Path(dir))
		if err := m.fs.RemoveTree(dir); err != nil {
			return removed, err
		}
		removed = append(removed, dir)
	}
	return removed, nil
}

// Evict forgets all but the newest keep releases, persists the shortened
// history and only then removes the evicted directories.
func (m *Manager) Evict(ctx context.Context, key, root string, keep int) (evicted []string, err error) {
	defer m.track("evict")(&err)
	if keep < 1 {
		return nil, errors.ValidationError("keep must be at least 1").WithContext("keep", keep).Build()
	}
	var victims []string
	if _, err = m.mutate(ctx, key, root, func(h history.History) history.History {
		victims = h.Oldest(keep)
		for _, v := range victims {
			h = h.Without(v)
		}
		return h
	}); err != nil {
		return nil, err
	}

	defer func() {
		m.recorder.AddEvictedReleases(key, len(evicted))
		m.publish(ctx, events.Evicted, key, evicted)
	}()
	for _, v := range victims {
		if !isUnderRoot(v, root) {
			m.logger.Warn("Forgot release outside the releases root without removing it",
				logfields.App(key), logfields.Release(v), logfields.Root(root))
			continue
		}
		m.logger.Info("Evicting old release", logfields.App(key), logfields.Release(v))
		if err := m.fs.RemoveTree(v); err != nil {
			return evicted, err
		}
		evicted = append(evicted, v)
	}
	return evicted, nil
}

// releaseUnderRoot normalizes release and rejects anything that is not an
// immediate child of root.
func releaseUnderRoot(release, root string) (string, error) {
	release, err := history.NormalizeRelease(release)
	if err != nil {
		return "", err
	}
	if !isUnderRoot(release, root) {
		return "", errors.ValidationError("release must be a directory directly under the releases root").
			WithContext("release", release).WithContext("root", root).Build()
	}
	return release, nil
}

func isUnderRoot(release, root string) bool {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return false
	}
	return filepath.Dir(release) == absRoot
}
