package objectstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/book-expert/tts-workbench/internal/core"
	"github.com/redis/go-redis/v9"
)

// RedisStore keeps objects as plain string values under a key prefix.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore wraps an existing client. Keys are stored as prefix+key.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

// Download returns the value stored for key.
func (r *RedisStore) Download(ctx context.Context, key string) ([]byte, error) {
	data, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: '%s'", core.ErrObjectNotFound, key)
		}

		return nil, fmt.Errorf("failed to get redis key '%s': %w", r.prefix+key, err)
	}

	return data, nil
}

// Upload stores data under key without expiry.
func (r *RedisStore) Upload(ctx context.Context, key string, data []byte) error {
	err := r.client.Set(ctx, r.prefix+key, data, 0).Err()
	if err != nil {
		return fmt.Errorf("failed to set redis key '%s': %w", r.prefix+key, err)
	}

	return nil
}
