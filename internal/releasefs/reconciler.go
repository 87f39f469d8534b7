// Package releasefs inspects the release directories of a deployment on disk.
package releasefs

import (
	stderrors "errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"git.home.luguber.info/inful/releasekeeper/internal/foundation/errors"
)

// CreationTimeFunc reports when a release directory came into existence.
type CreationTimeFunc func(path string, info fs.FileInfo) time.Time

// Reconciler lists and removes release directories under a releases root.
// It holds no state between calls.
type Reconciler struct {
	createdAt CreationTimeFunc
}

// NewReconciler returns a Reconciler ordering directories by birth time where
// the platform records it.
func NewReconciler() *Reconciler {
	return &Reconciler{createdAt: creationTime}
}

// WithCreationTime returns a copy of r using fn to order directories.
func (r *Reconciler) WithCreationTime(fn CreationTimeFunc) *Reconciler {
	return &Reconciler{createdAt: fn}
}

// ReleasesRoot returns the releases directory of a deployment.
func ReleasesRoot(deployTo string) string {
	return filepath.Join(deployTo, "releases")
}

// ListReleaseDirs returns the absolute paths of the immediate subdirectories
// of root, oldest first. A missing root yields an empty list.
func (r *Reconciler) ListReleaseDirs(root string) ([]string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.FileSystemError("failed to resolve releases root").
			WithCause(err).WithContext("root", root).Build()
	}

	entries, err := os.ReadDir(absRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.FileSystemError("failed to list releases root").
			WithCause(err).WithContext("root", absRoot).Build()
	}

	type dated struct {
		path    string
		created time.Time
	}
	dirs := make([]dated, 0, len(entries))
	for _, entry := range entries {
		path := filepath.Join(absRoot, entry.Name())
		// Stat follows symlinks so a linked release directory is listed too.
		info, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, errors.FileSystemError("failed to stat release directory").
				WithCause(err).WithContext("path", path).Build()
		}
		if !info.IsDir() {
			continue
		}
		dirs = append(dirs, dated{path: path, created: r.createdAt(path, info)})
	}

	sort.SliceStable(dirs, func(i, j int) bool {
		if dirs[i].created.Equal(dirs[j].created) {
			return dirs[i].path < dirs[j].path
		}
		return dirs[i].created.Before(dirs[j].created)
	})

	out := make([]string, len(dirs))
	for i, d := range dirs {
		out[i] = d.path
	}
	return out, nil
}

// Exists reports whether path exists. Only a missing path reports false;
// other stat failures are returned as errors.
func (r *Reconciler) Exists(path string) (bool, error) {
	_, err := os.Stat(path)
	switch {
	case err == nil:
		return true, nil
	case stderrors.Is(err, fs.ErrNotExist):
		return false, nil
	}
	return false, errors.FileSystemError("failed to inspect release directory").
		WithCause(err).WithContext("path", path).Build()
}

// RemoveTree irreversibly deletes path and everything below it.
func (r *Reconciler) RemoveTree(path string) error {
	if err := os.RemoveAll(path); err != nil {
		return errors.FileSystemError("failed to remove release directory").
			WithCause(err).WithContext("path", path).Build()
	}
	return nil
}
