package inmemory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"

	"github.com/nimburion/flowstore/pkg/observability/tracing"
)

// FieldValue is one entry of a GetFields result.
type FieldValue struct {
	Name  string `json:"name"`
	Value string `json:"value"`
	Found bool   `json:"found"`
}

// State stores a hash of string fields under its namespace key. Every write re-applies the
// TTL in the same MULTI/EXEC transaction as the write.
type State struct {
	client redis.Cmdable
	ns     Namespace
	opts   options
}

// NewState returns a state store over client. The namespace type is always STATE.
func NewState(client redis.Cmdable, ns Namespace, opts ...Option) (*State, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &State{client: client, ns: ns.withType(TypeState), opts: o}, nil
}

// Key returns the namespace key.
func (s *State) Key() string { return s.ns.String() }

// TTL returns the configured time-to-live.
func (s *State) TTL() time.Duration { return s.opts.ttl }

// WithTTL returns a copy of the state using ttl.
func (s *State) WithTTL(ttl time.Duration) *State {
	out := *s
	WithTTL(ttl)(&out.opts)
	return &out
}

// Exists reports whether the hash is stored.
func (s *State) Exists(ctx context.Context) (bool, error) {
	n, err := s.client.Exists(ctx, s.Key()).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check state key %s: %w", s.Key(), err)
	}
	return n > 0, nil
}

// GetValue returns the whole hash, or nil when it does not exist.
func (s *State) GetValue(ctx context.Context) (value map[string]string, err error) {
	key := s.Key()
	ctx, span := tracing.StartCacheSpan(ctx, tracing.SpanOperationCacheGet, key)
	defer s.finish(span, "get", &err)

	value, err = s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get state key %s: %w", key, err)
	}
	s.opts.metrics.ObserveLookup(TypeState, s.ns.subject(), len(value) > 0)
	if len(value) == 0 {
		return nil, nil
	}
	return value, nil
}

// GetField returns one field. found is false when the field or the hash is missing.
func (s *State) GetField(ctx context.Context, name string) (value string, found bool, err error) {
	key := s.Key()
	ctx, span := tracing.StartCacheSpan(ctx, tracing.SpanOperationCacheGet, key)
	defer s.finish(span, "get_field", &err)

	value, err = s.client.HGet(ctx, key, name).Result()
	if errors.Is(err, redis.Nil) {
		s.opts.metrics.ObserveLookup(TypeState, s.ns.subject(), false)
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get state field %s.%s: %w", key, name, err)
	}
	s.opts.metrics.ObserveLookup(TypeState, s.ns.subject(), true)
	return value, true, nil
}

// GetFields returns the named fields in the requested order.
func (s *State) GetFields(ctx context.Context, names ...string) (fields []FieldValue, err error) {
	key := s.Key()
	ctx, span := tracing.StartCacheSpan(ctx, tracing.SpanOperationCacheGet, key)
	defer s.finish(span, "get_fields", &err)

	if len(names) == 0 {
		return []FieldValue{}, nil
	}
	values, err := s.client.HMGet(ctx, key, names...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get state fields %s: %w", key, err)
	}
	fields = make([]FieldValue, len(names))
	for i, name := range names {
		fields[i] = FieldValue{Name: name}
		if i < len(values) && values[i] != nil {
			fields[i].Value = fmt.Sprint(values[i])
			fields[i].Found = true
		}
	}
	return fields, nil
}

// SetValue replaces the whole hash with data.
func (s *State) SetValue(ctx context.Context, data map[string]interface{}) (err error) {
	key := s.Key()
	ctx, span := tracing.StartCacheSpan(ctx, tracing.SpanOperationCacheSet, key)
	defer s.finish(span, "set", &err)

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		if len(data) > 0 {
			pipe.HSet(ctx, key, data)
			s.expire(ctx, pipe, key)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to set state key %s: %w", key, err)
	}
	return nil
}

// SetField writes one field, keeping the others.
func (s *State) SetField(ctx context.Context, name string, value interface{}) error {
	return s.SetFields(ctx, map[string]interface{}{name: value})
}

// SetFields writes the fields in data, keeping the others.
func (s *State) SetFields(ctx context.Context, data map[string]interface{}) (err error) {
	key := s.Key()
	ctx, span := tracing.StartCacheSpan(ctx, tracing.SpanOperationCacheSet, key)
	defer s.finish(span, "set_fields", &err)

	if len(data) == 0 {
		return nil
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, data)
		s.expire(ctx, pipe, key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to set state fields %s: %w", key, err)
	}
	return nil
}

// ResetValue deletes the hash if it exists.
func (s *State) ResetValue(ctx context.Context) error {
	exists, err := s.Exists(ctx)
	if err != nil || !exists {
		return err
	}
	_, err = s.Delete(ctx)
	return err
}

// Delete removes every key matching the namespace key, which may contain wildcards.
func (s *State) Delete(ctx context.Context) (deleted int64, err error) {
	pattern := s.Key()
	ctx, span := tracing.StartCacheSpan(ctx, tracing.SpanOperationCacheDel, pattern)
	defer s.finish(span, "delete", &err)

	deleted, err = deletePattern(ctx, s.client, pattern)
	if err != nil {
		return deleted, err
	}
	s.opts.log.WithContext(ctx).Debug("state entries deleted", "pattern", pattern, "deleted", deleted)
	return deleted, nil
}

func (s *State) expire(ctx context.Context, pipe redis.Pipeliner, key string) {
	if s.opts.ttl > 0 {
		pipe.Expire(ctx, key, s.opts.ttl)
	}
}

func (s *State) finish(span trace.Span, op string, errp *error) {
	tracing.RecordError(span, *errp)
	span.End()
	s.opts.metrics.ObserveOperation(TypeState, op, *errp)
}
