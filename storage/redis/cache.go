// Package redis provides a shared storage.EmbeddingCache on Redis.
package redis

import (
	"context"
	"errors"
	"time"

	"github.com/poiesic/protrieve/core"
	"github.com/poiesic/protrieve/storage"
	goredis "github.com/redis/go-redis/v9"
)

const keyPrefix = "protrieve:emb:"

// Cache stores sequence embeddings in Redis so several processes can share
// one cache.
type Cache struct {
	client *goredis.Client
	ttl    time.Duration
}

var _ storage.EmbeddingCache = (*Cache)(nil)

// NewCache connects to addr. A zero ttl keeps entries until evicted.
func NewCache(ctx context.Context, addr string, ttl time.Duration) (*Cache, error) {
	client := goredis.NewClient(&goredis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return &Cache{client: client, ttl: ttl}, nil
}

// NewCacheFromClient wraps an existing client.
func NewCacheFromClient(client *goredis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func (c *Cache) GetEmbedding(ctx context.Context, key string) ([]float32, error) {
	data, err := c.client.Get(ctx, keyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	return storage.UnmarshalVector(data)
}

func (c *Cache) PutEmbedding(ctx context.Context, key string, vector []float32) error {
	if err := core.ValidateEmbedding(vector); err != nil {
		return err
	}
	return c.client.Set(ctx, keyPrefix+key, storage.MarshalVector(vector), c.ttl).Err()
}

// Close closes the client.
func (c *Cache) Close() error {
	return c.client.Close()
}
