// Package rediscache is a Redis lookaside for extracted document text.
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ahrav/go-verity/internal/domain"
	"github.com/ahrav/go-verity/internal/ports"
)

// DefaultTTL keeps extractions for a week.
const DefaultTTL = 7 * 24 * time.Hour

// Cache implements ports.ExtractionCache.
type Cache struct {
	client redis.Cmdable
	ttl    time.Duration
	prefix string
}

// Option configures a Cache.
type Option func(*Cache)

// WithTTL sets the expiry of new entries. Non-positive values keep
// DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithPrefix namespaces every key.
func WithPrefix(prefix string) Option {
	return func(c *Cache) { c.prefix = prefix }
}

// New creates a Cache on an existing client.
func New(client redis.Cmdable, opts ...Option) *Cache {
	c := &Cache{client: client, ttl: DefaultTTL, prefix: "verity:"}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Connect parses url, opens a client and pings it.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

// Get implements ports.ExtractionCache.
func (c *Cache) Get(ctx context.Context, key string) (domain.Extraction, error) {
	data, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Extraction{}, ports.NewCacheError(key, "get", ports.ErrCacheMiss)
	}
	if err != nil {
		return domain.Extraction{}, ports.NewCacheError(key, "get", err)
	}

	var ext domain.Extraction
	if err := json.Unmarshal(data, &ext); err != nil {
		return domain.Extraction{}, ports.NewCacheError(key, "decode", fmt.Errorf("%w: %v", ports.ErrCacheCorrupted, err))
	}
	return ext, nil
}

// Set implements ports.ExtractionCache.
func (c *Cache) Set(ctx context.Context, key string, value domain.Extraction) error {
	data, err := json.Marshal(value)
	if err != nil {
		return ports.NewCacheError(key, "encode", err)
	}
	if err := c.client.Set(ctx, c.prefix+key, data, c.ttl).Err(); err != nil {
		return ports.NewCacheError(key, "set", err)
	}
	return nil
}

var _ ports.ExtractionCache = (*Cache)(nil)
