package store

import (
	"context"
	stderrors "errors"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"git.home.luguber.info/inful/releasekeeper/internal/config"
	"git.home.luguber.info/inful/releasekeeper/internal/foundation/errors"
	"git.home.luguber.info/inful/releasekeeper/internal/history"
)

// KVStore keeps histories in a NATS JetStream key/value bucket that retains
// only the latest revision of each key.
type KVStore struct {
	conn *nats.Conn
	kv   jetstream.KeyValue
}

// NewKVStore connects to NATS and opens (or creates) the configured bucket.
func NewKVStore(ctx context.Context, cfg config.NATSConfig) (*KVStore, error) {
	conn, err := nats.Connect(cfg.URL, nats.Name("releasekeeper"))
	if err != nil {
		return nil, errors.StoreError("failed to connect to NATS").WithCause(err).WithContext("url", cfg.URL).Build()
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, errors.StoreError("failed to create JetStream context").WithCause(err).Build()
	}

	kv, err := openBucket(ctx, js, cfg.Bucket)
	if err != nil {
		conn.Close()
		return nil, errors.StoreError("failed to open KV bucket").WithCause(err).WithContext("bucket", cfg.Bucket).Build()
	}

	return &KVStore{conn: conn, kv: kv}, nil
}

func openBucket(ctx context.Context, js jetstream.JetStream, bucket string) (jetstream.KeyValue, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if kv, err := js.KeyValue(ctx, bucket); err == nil {
		return kv, nil
	}

	kv, err := js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      bucket,
		Description: "Release history per application",
		History:     1,
	})
	if err != nil {
		return nil, err
	}
	slog.Info("Created KV bucket for release history", "bucket", bucket)
	return kv, nil
}

// Load reads the record for key.
func (s *KVStore) Load(ctx context.Context, key string) (history.History, bool, error) {
	if err := history.ValidateKey(key); err != nil {
		return history.History{}, false, err
	}
	entry, err := s.kv.Get(ctx, key)
	if err != nil {
		if stderrors.Is(err, jetstream.ErrKeyNotFound) {
			return history.History{}, false, nil
		}
		return history.History{}, false, loadError(key, err)
	}
	h, err := decodeRecord(key, entry.Value())
	if err != nil {
		return history.History{}, false, err
	}
	return h, true, nil
}

// Save replaces the record for key.
func (s *KVStore) Save(ctx context.Context, key string, h history.History) error {
	if err := history.ValidateKey(key); err != nil {
		return err
	}
	data, err := history.Encode(h)
	if err != nil {
		return saveError(key, err)
	}
	if _, err := s.kv.Put(ctx, key, data); err != nil {
		return saveError(key, err)
	}
	return nil
}

// Close closes the NATS connection.
func (s *KVStore) Close() error {
	s.conn.Close()
	return nil
}
