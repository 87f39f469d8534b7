package store

import (
	"context"
	"database/sql"
	stderrors "errors"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"git.home.luguber.info/inful/releasekeeper/internal/foundation/errors"
	"git.home.luguber.info/inful/releasekeeper/internal/history"
)

// SQLiteStore keeps histories in a single SQLite table.
type SQLiteStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewSQLiteStore opens (and creates if needed) the database at dbPath.
// Use ":memory:" for an in-memory database.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, errors.StoreError("failed to open sqlite database").WithCause(err).WithContext("path", dbPath).Build()
	}
	// A single connection keeps ":memory:" databases shared across calls.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.initialize(); err != nil {
		_ = db.Close() // Best effort cleanup on initialization error
		return nil, errors.StoreError("failed to initialize sqlite schema").WithCause(err).WithContext("path", dbPath).Build()
	}
	return s, nil
}

func (s *SQLiteStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS release_history (
		key TEXT PRIMARY KEY,
		releases TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Load reads the record for key.
func (s *SQLiteStore) Load(ctx context.Context, key string) (history.History, bool, error) {
	if err := history.ValidateKey(key); err != nil {
		return history.History{}, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var data string
	err := s.db.QueryRowContext(ctx, "SELECT releases FROM release_history WHERE key = ?", key).Scan(&data)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return history.History{}, false, nil
		}
		return history.History{}, false, loadError(key, err)
	}
	h, err := decodeRecord(key, []byte(data))
	if err != nil {
		return history.History{}, false, err
	}
	return h, true, nil
}

// Save upserts the record for key.
func (s *SQLiteStore) Save(ctx context.Context, key string, h history.History) error {
	if err := history.ValidateKey(key); err != nil {
		return err
	}
	data, err := history.Encode(h)
	if err != nil {
		return saveError(key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO release_history (key, releases, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET releases = excluded.releases, updated_at = excluded.updated_at`,
		key, string(data), time.Now().Unix(),
	)
	if err != nil {
		return saveError(key, err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
