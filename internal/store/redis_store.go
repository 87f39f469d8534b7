package store

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"git.home.luguber.info/inful/releasekeeper/internal/config"
	"git.home.luguber.info/inful/releasekeeper/internal/foundation/errors"
	"git.home.luguber.info/inful/releasekeeper/internal/history"
)

// RedisStore keeps each history as a JSON string under "{prefix}:{key}".
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore connects to the configured Redis server and verifies it responds.
func NewRedisStore(ctx context.Context, cfg config.RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.StoreError("failed to connect to redis").WithCause(err).WithContext("addr", cfg.Addr).Build()
	}
	return NewRedisStoreWithClient(client, cfg.Prefix), nil
}

// NewRedisStoreWithClient wraps an existing client. Compatible with
// go-redis Client, ClusterClient and Ring.
func NewRedisStoreWithClient(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = config.DefaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (r *RedisStore) redisKey(key string) string {
	return fmt.Sprintf("%s:%s", r.prefix, key)
}

// Load reads the record for key.
func (r *RedisStore) Load(ctx context.Context, key string) (history.History, bool, error) {
	if err := history.ValidateKey(key); err != nil {
		return history.History{}, false, err
	}
	data, err := r.client.Get(ctx, r.redisKey(key)).Bytes()
	if err != nil {
		if stderrors.Is(err, redis.Nil) {
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

// Save replaces the record for key. The value never expires.
func (r *RedisStore) Save(ctx context.Context, key string, h history.History) error {
	if err := history.ValidateKey(key); err != nil {
		return err
	}
	data, err := history.Encode(h)
	if err != nil {
		return saveError(key, err)
	}
	if err := r.client.Set(ctx, r.redisKey(key), data, 0).Err(); err != nil {
		return saveError(key, err)
	}
	return nil
}

// Close closes the client.
func (r *RedisStore) Close() error {
	return r.client.Close()
}
