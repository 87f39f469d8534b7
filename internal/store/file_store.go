package store

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"git.home.luguber.info/inful/releasekeeper/internal/foundation/errors"
	"git.home.luguber.info/inful/releasekeeper/internal/history"
)

// recordDir is the cache namespace holding one JSON file per application.
const recordDir = "revision-deploys"

// FileStore keeps each history in its own JSON file:
//
//	<dir>/
//	  revision-deploys/
//	    <key>.json
//
// Saves write a temporary file next to the record, fsync it and rename it
// over the previous record, so a crash mid-save leaves the old record intact.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

// NewFileStore creates a file-backed store rooted at dir.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, errors.ConfigError("file store requires a directory").Build()
	}
	if err := os.MkdirAll(filepath.Join(dir, recordDir), 0o750); err != nil {
		return nil, errors.StoreError("failed to create state directory").WithCause(err).WithContext("dir", dir).Build()
	}
	return &FileStore{dir: dir}, nil
}

func (fs *FileStore) recordPath(key string) string {
	return filepath.Join(fs.dir, recordDir, key+".json")
}

// Load reads the record for key.
func (fs *FileStore) Load(_ context.Context, key string) (history.History, bool, error) {
	if err := history.ValidateKey(key); err != nil {
		return history.History{}, false, err
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()

	// #nosec G304 - key is validated to contain no path separators
	data, err := os.ReadFile(fs.recordPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return history.History{}, false, nil
		}
		return history.History{}, false, loadError(key, err)
	}
	h, err := decodeRecord(key, data)
	if err != nil {
		return history.History{}, false, err
	}
	return h, true, nil
}

// Save atomically replaces the record for key.
func (fs *FileStore) Save(_ context.Context, key string, h history.History) error {
	if err := history.ValidateKey(key); err != nil {
		return err
	}
	data, err := history.Encode(h)
	if err != nil {
		return saveError(key, err)
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	target := fs.recordPath(key)
	if err := writeFileAtomic(target, data); err != nil {
		return saveError(key, err)
	}
	return nil
}

// Close releases resources.
func (fs *FileStore) Close() error { return nil }

func writeFileAtomic(target string, data []byte) error {
	dir := filepath.Dir(target)
	tmp, err := os.CreateTemp(dir, filepath.Base(target)+".*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, target); err != nil {
		return err
	}
	committed = true

	// Persist the rename itself; not every platform supports syncing a directory.
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}
	return nil
}
