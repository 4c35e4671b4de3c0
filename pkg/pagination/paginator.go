package pagination

import (
	"context"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
)

// Paginator splits a Sequence into pages. The count and page total are computed on first use
// and cached for the paginator's lifetime. A Paginator is not safe for concurrent use.
type Paginator[T any] struct {
	seq                 Sequence[T]
	perPage             int
	orphans             int
	allowEmptyFirstPage bool

	count    int
	counted  bool
	numPages int
	paged    bool
}

// Option configures a Paginator.
type Option func(*options)

type options struct {
	orphans             int
	allowEmptyFirstPage bool
}

// WithOrphans sets the largest trailing remainder that is merged into the previous page.
func WithOrphans(orphans int) Option {
	return func(o *options) {
		o.orphans = orphans
	}
}

// WithAllowEmptyFirstPage controls whether page 1 of an empty sequence is valid. Default true.
func WithAllowEmptyFirstPage(allow bool) Option {
	return func(o *options) {
		o.allowEmptyFirstPage = allow
	}
}

// NewPaginator creates a paginator over seq serving perPage items per page.
func NewPaginator[T any](seq Sequence[T], perPage int, opts ...Option) (*Paginator[T], error) {
	if seq == nil {
		return nil, fmt.Errorf("sequence is required")
	}
	o := options{allowEmptyFirstPage: true}
	for _, opt := range opts {
		opt(&o)
	}
	if perPage < 1 {
		return nil, fmt.Errorf("%w: per page must be greater than 0, got %d", ErrInvalidPage, perPage)
	}
	if o.orphans < 0 {
		return nil, fmt.Errorf("%w: orphans must not be negative, got %d", ErrInvalidPage, o.orphans)
	}
	return &Paginator[T]{
		seq:                 seq,
		perPage:             perPage,
		orphans:             o.orphans,
		allowEmptyFirstPage: o.allowEmptyFirstPage,
	}, nil
}

// PerPage returns the configured page size.
func (p *Paginator[T]) PerPage() int { return p.perPage }

// Orphans returns the configured orphan allowance.
func (p *Paginator[T]) Orphans() int { return p.orphans }

// Count returns the total number of items across all pages.
func (p *Paginator[T]) Count(ctx context.Context) (int, error) {
	if !p.counted {
		n, err := p.seq.Count(ctx)
		if err != nil {
			return 0, fmt.Errorf("failed to count sequence: %w", err)
		}
		p.count = n
		p.counted = true
	}
	return p.count, nil
}

// NumPages returns the total number of pages.
func (p *Paginator[T]) NumPages(ctx context.Context) (int, error) {
	if !p.paged {
		count, err := p.Count(ctx)
		if err != nil {
			return 0, err
		}
		if count == 0 && !p.allowEmptyFirstPage {
			p.numPages = 0
		} else {
			hits := count - p.orphans
			if hits < 1 {
				hits = 1
			}
			p.numPages = int(math.Ceil(float64(hits) / float64(p.perPage)))
		}
		p.paged = true
	}
	return p.numPages, nil
}

// PageRange returns the 1-based page numbers, e.g. [1 2 3 4].
func (p *Paginator[T]) PageRange(ctx context.Context) ([]int, error) {
	n, err := p.NumPages(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]int, n)
	for i := range out {
		out[i] = i + 1
	}
	return out, nil
}

// ValidateNumber checks that number is an integer page within range and returns it as int.
// Integer kinds, integral floats and decimal strings are accepted.
func (p *Paginator[T]) ValidateNumber(ctx context.Context, number interface{}) (int, error) {
	n, ok := toInt(number)
	if !ok {
		return 0, ErrPageNotInteger
	}
	if n < 1 {
		return 0, ErrPageLessThanOne
	}
	numPages, err := p.NumPages(ctx)
	if err != nil {
		return 0, err
	}
	if n > numPages && !(n == 1 && p.allowEmptyFirstPage) {
		return 0, ErrEmptyPage
	}
	return n, nil
}

// Page returns the requested page.
func (p *Paginator[T]) Page(ctx context.Context, number interface{}) (*Page[T], error) {
	n, err := p.ValidateNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	count, err := p.Count(ctx)
	if err != nil {
		return nil, err
	}

	bottom := (n - 1) * p.perPage
	top := bottom + p.perPage
	if top+p.orphans >= count {
		top = count
	}

	seq := p.seq
	if c, ok := seq.(Cloner[T]); ok {
		seq = c.Clone()
	}
	items, err := seq.Slice(ctx, bottom, top)
	if err != nil {
		return nil, fmt.Errorf("failed to slice page %d: %w", n, err)
	}
	if items == nil {
		items = []T{}
	}
	return &Page[T]{Number: n, Items: items, paginator: p}, nil
}

func toInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case nil:
		return 0, false
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, false
		}
		return i, true
	case float32:
		return floatToInt(float64(n))
	case float64:
		return floatToInt(n)
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return int(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u := rv.Uint()
		if u > math.MaxInt {
			return 0, false
		}
		return int(u), true
	default:
		return 0, false
	}
}

func floatToInt(f float64) (int, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	return int(f), true
}
