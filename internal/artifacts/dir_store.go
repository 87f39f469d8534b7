package artifacts

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"git.home.luguber.info/inful/releasekeeper/internal/foundation/errors"
)

// DirStore serves a local directory as a bucket. Keys are slash separated
// paths relative to the root.
type DirStore struct {
	root string
}

// NewDirStore returns a store rooted at dir.
func NewDirStore(dir string) *DirStore {
	return &DirStore{root: dir}
}

func (d *DirStore) ListByPrefix(ctx context.Context, prefix string) ([]Object, error) {
	var objects []Object
	err := filepath.WalkDir(d.root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if entry.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(d.root, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		info, err := entry.Info()
		if err != nil {
			return err
		}
		objects = append(objects, Object{Key: key, Size: info.Size()})
		return nil
	})
	if err != nil {
		return nil, errors.ArtifactError("failed to list objects").
			WithCause(err).WithContext("dir", d.root).WithContext("prefix", prefix).Build()
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })
	return objects, nil
}

func (d *DirStore) Fetch(_ context.Context, key, dest string) error {
	src, err := d.resolve(key)
	if err != nil {
		return err
	}
	in, err := os.Open(src) // #nosec G304 -- key resolved inside the store root
	if err != nil {
		if os.IsNotExist(err) {
			return errors.NotFoundError("object not found").WithContext("key", key).Build()
		}
		return errors.ArtifactError("failed to open object").WithCause(err).WithContext("key", key).Build()
	}
	defer func() { _ = in.Close() }()

	if err := writeAtomic(dest, in); err != nil {
		return errors.ArtifactError("failed to store fetched object").
			WithCause(err).WithContext("key", key).WithContext("path", dest).Build()
	}
	return nil
}

func (d *DirStore) resolve(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", errors.ValidationError("object key escapes the store root").WithContext("key", key).Build()
	}
	return filepath.Join(d.root, clean), nil
}
