package artifacts

import (
	"context"
	"log/slog"
	"path"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"git.home.luguber.info/inful/releasekeeper/internal/foundation/errors"
	"git.home.luguber.info/inful/releasekeeper/internal/logfields"
	"git.home.luguber.info/inful/releasekeeper/internal/metrics"
	"git.home.luguber.info/inful/releasekeeper/internal/retry"
	"git.home.luguber.info/inful/releasekeeper/internal/workspace"
)

// minManifests is the number of objects a revision needs: the webpack
// manifest and the sprockets manifest.
const minManifests = 2

// ErrMissingManifests is returned when a revision has fewer than two
// manifests published. It is never retried.
var ErrMissingManifests = errors.PreconditionError("missing one or more manifests for revision").Build()

var revisionPrefix = regexp.MustCompile(`^manifests/\w+-`)

// Placement records where one object was written.
type Placement struct {
	Key  string
	Path string
}

// ManifestSyncer places the manifests of a revision inside a release.
type ManifestSyncer struct {
	store    ObjectStore
	policy   retry.Policy
	recorder metrics.Recorder
	logger   *slog.Logger
}

// SyncOption configures a ManifestSyncer.
type SyncOption func(*ManifestSyncer)

// WithRetryPolicy sets the policy for transient listing and fetch failures.
func WithRetryPolicy(p retry.Policy) SyncOption {
	return func(s *ManifestSyncer) { s.policy = p }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r metrics.Recorder) SyncOption {
	return func(s *ManifestSyncer) { s.recorder = r }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) SyncOption {
	return func(s *ManifestSyncer) { s.logger = l }
}

// NewManifestSyncer creates a syncer reading from store.
func NewManifestSyncer(store ObjectStore, opts ...SyncOption) *ManifestSyncer {
	s := &ManifestSyncer{
		store:    store,
		policy:   retry.DefaultPolicy(),
		recorder: metrics.NoopRecorder{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ManifestPrefix returns the object key prefix of a revision.
func ManifestPrefix(revision string) string {
	return "manifests/" + revision + "-"
}

// Destination maps an object key to its path inside releasePath. Keys that
// are neither the webpack manifest nor a sprockets manifest are not placed.
func Destination(releasePath, key string) (string, bool) {
	switch {
	case strings.Contains(key, "manifest.json"):
		return filepath.Join(releasePath, "public", "packs", "manifest.json"), true
	case strings.Contains(key, ".sprockets"):
		name := path.Clean(revisionPrefix.ReplaceAllString(key, ""))
		if name == "." || name == ".." || strings.HasPrefix(name, "../") || path.IsAbs(name) {
			return "", false
		}
		return filepath.Join(releasePath, "public", "assets", filepath.FromSlash(name)), true
	default:
		return "", false
	}
}

// Sync downloads the manifests of revision into releasePath. app labels
// metrics and logs. Nothing is placed unless every object was fetched.
func (s *ManifestSyncer) Sync(ctx context.Context, app, revision, releasePath string) (placed []Placement, err error) {
	start := time.Now()
	defer func() {
		s.recorder.IncAssetSync(app, metrics.ResultOf(err))
		s.recorder.ObserveOperation("sync_assets", time.Since(start), metrics.ResultOf(err))
	}()

	if revision == "" {
		return nil, errors.ValidationError("revision is required").WithContext("app", app).Build()
	}
	if !filepath.IsAbs(releasePath) {
		return nil, errors.ValidationError("release must be an absolute path").WithContext("release", releasePath).Build()
	}
	s.logger.Info("Downloading manifests", logfields.App(app), logfields.Revision(revision))

	prefix := ManifestPrefix(revision)
	var objects []Object
	if err := s.policy.Do(ctx, "list_manifests", func(ctx context.Context) error {
		var lerr error
		objects, lerr = s.store.ListByPrefix(ctx, prefix)
		return lerr
	}); err != nil {
		return nil, err
	}
	if len(objects) < minManifests {
		return nil, errors.PreconditionError(ErrMissingManifests.Message()).
			WithContext("app", app).WithContext("revision", revision).WithContext("found", len(objects)).Build()
	}

	// Staged under the release's tmp dir so promotion is a rename on the same filesystem.
	ws := workspace.NewManager(filepath.Join(releasePath, "tmp"))
	if err := ws.Create(); err != nil {
		return nil, err
	}
	defer func() {
		if cerr := ws.Cleanup(); cerr != nil {
			s.logger.Warn("Failed to remove staging workspace", logfields.Error(cerr))
		}
	}()

	type staged struct {
		Placement
		tmp string
	}
	var plan []staged
	for i, obj := range objects {
		dest, ok := Destination(releasePath, obj.Key)
		if !ok {
			s.logger.Debug("Skipping object", logfields.ObjectKey(obj.Key))
			continue
		}
		tmp := filepath.Join(ws.GetPath(), strconv.Itoa(i))
		if err := s.policy.Do(ctx, "fetch_manifest", func(ctx context.Context) error {
			return s.store.Fetch(ctx, obj.Key, tmp)
		}); err != nil {
			return nil, err
		}
		plan = append(plan, staged{Placement: Placement{Key: obj.Key, Path: dest}, tmp: tmp})
	}

	for _, st := range plan {
		if err := workspace.Promote(st.tmp, st.Path); err != nil {
			return placed, err
		}
		s.logger.Info("Placed manifest", logfields.ObjectKey(st.Key), logfields.Path(st.Path))
		placed = append(placed, st.Placement)
	}
	return placed, nil
}
