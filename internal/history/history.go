package history

import (
	"encoding/json"
	"path/filepath"
	"slices"
	"strings"

	"git.home.luguber.info/inful/releasekeeper/internal/foundation/errors"
)

// History is an ordered set of release paths.
type History struct {
	paths []string
}

// New builds a History from paths. Later duplicates are dropped so the first
// occurrence keeps its position.
func New(paths ...string) History {
	seen := make(map[string]struct{}, len(paths))
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return History{paths: out}
}

// Paths returns a copy of the ordered release paths.
func (h History) Paths() []string {
	return slices.Clone(h.paths)
}

// Len returns the number of releases.
func (h History) Len() int { return len(h.paths) }

// Contains reports whether path is a known release.
func (h History) Contains(path string) bool {
	return slices.Contains(h.paths, path)
}

// Tail returns the most recently recorded release.
func (h History) Tail() (string, bool) {
	if len(h.paths) == 0 {
		return "", false
	}
	return h.paths[len(h.paths)-1], true
}

// Without returns h with path removed. Removing an unknown path is a no-op.
func (h History) Without(path string) History {
	return History{paths: slices.DeleteFunc(slices.Clone(h.paths), func(p string) bool { return p == path })}
}

// Push moves path to the tail, removing any earlier occurrence first.
func (h History) Push(path string) History {
	out := h.Without(path)
	out.paths = append(out.paths, path)
	return out
}

// Filter returns the releases for which keep returns true, in order.
// The dropped releases are returned as the second value.
func (h History) Filter(keep func(string) bool) (History, []string) {
	kept := make([]string, 0, len(h.paths))
	var dropped []string
	for _, p := range h.paths {
		if keep(p) {
			kept = append(kept, p)
		} else {
			dropped = append(dropped, p)
		}
	}
	return History{paths: kept}, dropped
}

// Oldest returns the releases beyond the newest keep entries, oldest first.
func (h History) Oldest(keep int) []string {
	if keep < 0 {
		keep = 0
	}
	if len(h.paths) <= keep {
		return nil
	}
	return slices.Clone(h.paths[:len(h.paths)-keep])
}

// Equal reports whether both histories hold the same paths in the same order.
func (h History) Equal(other History) bool {
	return slices.Equal(h.paths, other.paths)
}

// MarshalJSON encodes the history as a JSON array of paths.
func (h History) MarshalJSON() ([]byte, error) {
	if h.paths == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(h.paths)
}

// UnmarshalJSON decodes a JSON array of paths. null decodes to an empty history.
func (h *History) UnmarshalJSON(data []byte) error {
	var paths []string
	if err := json.Unmarshal(data, &paths); err != nil {
		return err
	}
	*h = New(paths...)
	return nil
}

// Encode serializes h into its persisted form.
func Encode(h History) ([]byte, error) {
	return json.Marshal(h)
}

// Decode parses a persisted record.
func Decode(data []byte) (History, error) {
	var h History
	if err := json.Unmarshal(data, &h); err != nil {
		return History{}, err
	}
	return h, nil
}

// ValidateKey checks that key can address a persisted record. Keys become file
// names in the file backend, so separators and dot segments are rejected.
func ValidateKey(key string) error {
	switch {
	case key == "", key == ".", key == "..":
		return errors.ValidationError("invalid application key").WithContext("app", key).Build()
	case strings.ContainsAny(key, "/\\\x00"):
		return errors.ValidationError("application key must not contain path separators").WithContext("app", key).Build()
	}
	return nil
}

// NormalizeRelease validates that release is an absolute path and returns it cleaned.
func NormalizeRelease(release string) (string, error) {
	if release == "" || !filepath.IsAbs(release) {
		return "", errors.ValidationError("release must be an absolute path").WithContext("release", release).Build()
	}
	return filepath.Clean(release), nil
}
