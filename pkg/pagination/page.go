package pagination

import "fmt"

// Page is one window of a Paginator. Navigation helpers read the paginator's cached totals,
// which are always populated once a page exists.
type Page[T any] struct {
	Number int
	Items  []T

	paginator *Paginator[T]
}

// Paginator returns the paginator that produced the page.
func (p *Page[T]) Paginator() *Paginator[T] { return p.paginator }

// Len returns the number of items on the page.
func (p *Page[T]) Len() int { return len(p.Items) }

func (p *Page[T]) String() string {
	return fmt.Sprintf("<Page %d of %d>", p.Number, p.paginator.numPages)
}

// HasNext reports whether a subsequent page exists.
func (p *Page[T]) HasNext() bool {
	return p.Number < p.paginator.numPages
}

// HasPrevious reports whether a preceding page exists.
func (p *Page[T]) HasPrevious() bool {
	return p.Number > 1
}

// HasOtherPages reports whether the page has any neighbour.
func (p *Page[T]) HasOtherPages() bool {
	return p.HasPrevious() || p.HasNext()
}

// NextPageNumber validates and returns Number+1. It does not check for data beyond bounds.
func (p *Page[T]) NextPageNumber() (int, error) {
	return p.paginator.validateCached(p.Number + 1)
}

// PreviousPageNumber validates and returns Number-1.
func (p *Page[T]) PreviousPageNumber() (int, error) {
	return p.paginator.validateCached(p.Number - 1)
}

// StartIndex is the 1-based position of the first item on this page relative to the whole
// sequence; 0 for an empty sequence.
func (p *Page[T]) StartIndex() int {
	if p.paginator.count == 0 {
		return 0
	}
	return p.paginator.perPage*(p.Number-1) + 1
}

// EndIndex is the 1-based position of the last item on this page. The last page ends at the
// total count because it may hold orphans.
func (p *Page[T]) EndIndex() int {
	if p.Number == p.paginator.numPages {
		return p.paginator.count
	}
	return p.Number * p.paginator.perPage
}

func (p *Paginator[T]) validateCached(n int) (int, error) {
	if n < 1 {
		return 0, ErrPageLessThanOne
	}
	if n > p.numPages && !(n == 1 && p.allowEmptyFirstPage) {
		return 0, ErrEmptyPage
	}
	return n, nil
}
