package pagination

import (
	"context"
	"fmt"
)

// Sequence is anything that can be counted and sliced by position.
type Sequence[T any] interface {
	Count(ctx context.Context) (int, error)
	// Slice materializes items in the half-open window [bottom, top).
	Slice(ctx context.Context, bottom, top int) ([]T, error)
}

// Cloner is implemented by single-pass sequences (live cursors). The paginator clones them
// before every slice so that serving a page never consumes the original.
type Cloner[T any] interface {
	Clone() Sequence[T]
}

// SliceSequence adapts an in-memory slice to Sequence.
type SliceSequence[T any] []T

// Count returns the slice length.
func (s SliceSequence[T]) Count(context.Context) (int, error) {
	return len(s), nil
}

// Slice returns a copy of s[bottom:top].
func (s SliceSequence[T]) Slice(_ context.Context, bottom, top int) ([]T, error) {
	if bottom < 0 || top < bottom || top > len(s) {
		return nil, fmt.Errorf("slice bounds [%d:%d] out of range for length %d", bottom, top, len(s))
	}
	out := make([]T, top-bottom)
	copy(out, s[bottom:top])
	return out, nil
}
