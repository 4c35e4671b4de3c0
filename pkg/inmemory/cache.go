package inmemory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nimburion/flowstore/pkg/observability/tracing"
)

const scanBatch = 100

// Cache stores a single JSON-encoded value of type T under its namespace key.
type Cache[T any] struct {
	client redis.Cmdable
	ns     Namespace
	opts   options
}

// NewCache returns a cache over client. The namespace type is always CACHE.
func NewCache[T any](client redis.Cmdable, ns Namespace, opts ...Option) (*Cache[T], error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Cache[T]{client: client, ns: ns.withType(TypeCache), opts: o}, nil
}

// Key returns the namespace key.
func (c *Cache[T]) Key() string { return c.ns.String() }

// TTL returns the configured time-to-live.
func (c *Cache[T]) TTL() time.Duration { return c.opts.ttl }

// WithTTL returns a copy of the cache using ttl.
func (c *Cache[T]) WithTTL(ttl time.Duration) *Cache[T] {
	out := *c
	WithTTL(ttl)(&out.opts)
	return &out
}

// GetValue returns the stored value. found is false when no entry exists.
func (c *Cache[T]) GetValue(ctx context.Context) (value T, found bool, err error) {
	key := c.Key()
	ctx, span := tracing.StartCacheSpan(ctx, tracing.SpanOperationCacheGet, key)
	defer func() {
		tracing.RecordError(span, err)
		span.End()
		c.opts.metrics.ObserveOperation(TypeCache, "get", err)
	}()

	raw, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		c.opts.metrics.ObserveLookup(TypeCache, c.ns.subject(), false)
		return value, false, nil
	}
	if err != nil {
		return value, false, fmt.Errorf("failed to get cache key %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, &value); err != nil {
		return value, false, fmt.Errorf("failed to decode cache key %s: %w", key, err)
	}
	c.opts.metrics.ObserveLookup(TypeCache, c.ns.subject(), true)
	return value, true, nil
}

// SetValue stores v. Without a TTL the entry never expires and any previous expiry is cleared.
func (c *Cache[T]) SetValue(ctx context.Context, v T) (err error) {
	key := c.Key()
	ctx, span := tracing.StartCacheSpan(ctx, tracing.SpanOperationCacheSet, key)
	defer func() {
		tracing.RecordError(span, err)
		span.End()
		c.opts.metrics.ObserveOperation(TypeCache, "set", err)
	}()

	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode cache key %s: %w", key, err)
	}
	if err := c.client.Set(ctx, key, raw, c.opts.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set cache key %s: %w", key, err)
	}
	return nil
}

// Delete removes every key matching the namespace key, which may contain wildcards.
func (c *Cache[T]) Delete(ctx context.Context) (deleted int64, err error) {
	pattern := c.Key()
	ctx, span := tracing.StartCacheSpan(ctx, tracing.SpanOperationCacheDel, pattern)
	defer func() {
		tracing.RecordError(span, err)
		span.End()
		c.opts.metrics.ObserveOperation(TypeCache, "delete", err)
	}()

	deleted, err = deletePattern(ctx, c.client, pattern)
	if err != nil {
		return deleted, err
	}
	c.opts.log.WithContext(ctx).Debug("cache entries deleted", "pattern", pattern, "deleted", deleted)
	return deleted, nil
}

// deletePattern scans for keys matching pattern and deletes them one by one.
func deletePattern(ctx context.Context, client redis.Cmdable, pattern string) (int64, error) {
	var deleted int64
	iter := client.Scan(ctx, 0, pattern, scanBatch).Iterator()
	for iter.Next(ctx) {
		n, err := client.Del(ctx, iter.Val()).Result()
		if err != nil {
			return deleted, fmt.Errorf("failed to delete key %s: %w", iter.Val(), err)
		}
		deleted += n
	}
	if err := iter.Err(); err != nil {
		return deleted, fmt.Errorf("failed to scan keys %s: %w", pattern, err)
	}
	return deleted, nil
}
