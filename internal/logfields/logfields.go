package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyApp       = "app"
	KeyRelease   = "release"
	KeyPath      = "path"
	KeyRoot      = "root"
	KeyCount     = "count"
	KeyRunID     = "run_id"
	KeyStage     = "stage"
	KeyBackend   = "backend"
	KeyRevision  = "revision"
	KeyObjectKey = "object_key"
	KeyDuration  = "duration_ms"
	KeyError     = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func App(name string) slog.Attr       { return slog.String(KeyApp, name) }
func Release(path string) slog.Attr   { return slog.String(KeyRelease, path) }
func Path(p string) slog.Attr         { return slog.String(KeyPath, p) }
func Root(p string) slog.Attr         { return slog.String(KeyRoot, p) }
func Count(n int) slog.Attr           { return slog.Int(KeyCount, n) }
func RunID(id string) slog.Attr       { return slog.String(KeyRunID, id) }
func Stage(name string) slog.Attr     { return slog.String(KeyStage, name) }
func Backend(name string) slog.Attr   { return slog.String(KeyBackend, name) }
func Revision(rev string) slog.Attr   { return slog.String(KeyRevision, rev) }
func ObjectKey(key string) slog.Attr  { return slog.String(KeyObjectKey, key) }
func DurationMS(ms float64) slog.Attr { return slog.Float64(KeyDuration, ms) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
