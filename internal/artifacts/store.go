package artifacts

import (
	"context"

	"git.home.luguber.info/inful/releasekeeper/internal/config"
)

// Object is one entry of a prefix listing.
type Object struct {
	Key  string
	Size int64
}

// ObjectStore is the bucket interface the syncer depends on.
type ObjectStore interface {
	// ListByPrefix returns every object whose key starts with prefix, ordered by key.
	ListByPrefix(ctx context.Context, prefix string) ([]Object, error)
	// Fetch writes the object to dest. dest is either complete or absent afterwards.
	Fetch(ctx context.Context, key, dest string) error
}

// NewObjectStore builds the store configured for an application: a local
// directory when local_dir is set, S3 otherwise.
func NewObjectStore(ctx context.Context, cfg config.AssetsConfig) (ObjectStore, error) {
	if cfg.LocalDir != "" {
		return NewDirStore(cfg.LocalDir), nil
	}
	return NewS3Store(ctx, cfg)
}
