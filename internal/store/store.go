// Package store persists release histories keyed by application name.
//
// A Store is the single source of truth for release ordering across process
// runs. Callers always load, mutate in memory and save the whole value; no
// component caches a history between operations. Concurrent writers for the
// same key are not detected: the last save wins.
package store

import (
	"context"

	"git.home.luguber.info/inful/releasekeeper/internal/config"
	"git.home.luguber.info/inful/releasekeeper/internal/foundation/errors"
	"git.home.luguber.info/inful/releasekeeper/internal/history"
)

// Store persists one History per application key.
type Store interface {
	// Load returns the persisted history for key. found is false when no
	// record exists; that is not an error.
	Load(ctx context.Context, key string) (h history.History, found bool, err error)

	// Save replaces the persisted history for key.
	Save(ctx context.Context, key string, h history.History) error

	// Close releases any resources held by the store.
	Close() error
}

// Open creates the store selected by cfg.Backend.
func Open(ctx context.Context, cfg config.StateConfig) (Store, error) {
	switch cfg.Backend {
	case config.StateBackendFile, "":
		return NewFileStore(cfg.Dir)
	case config.StateBackendSQLite:
		return NewSQLiteStore(cfg.SQLitePath)
	case config.StateBackendRedis:
		return NewRedisStore(ctx, cfg.Redis)
	case config.StateBackendNATS:
		return NewKVStore(ctx, cfg.NATS)
	default:
		return nil, errors.ConfigError("unknown state backend").WithContext("backend", string(cfg.Backend)).Build()
	}
}

func loadError(key string, err error) error {
	return errors.StoreError("failed to load release history").WithCause(err).WithContext("app", key).Build()
}

func saveError(key string, err error) error {
	return errors.StoreError("failed to save release history").WithCause(err).WithContext("app", key).Build()
}

func decodeRecord(key string, data []byte) (history.History, error) {
	h, err := history.Decode(data)
	if err != nil {
		return history.History{}, errors.StoreError("corrupt release history record").WithCause(err).WithContext("app", key).Build()
	}
	return h, nil
}
