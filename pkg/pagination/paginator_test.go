package pagination

import (
	"context"
	"errors"
	"testing"
)

func intSequence(n int) SliceSequence[int] {
	out := make(SliceSequence[int], n)
	for i := range out {
		out[i] = i + 1
	}
	return out
}

// countingSequence records how often it is counted and cloned.
type countingSequence struct {
	SliceSequence[int]
	counts *int
	clones *int
	used   bool
}

func (s *countingSequence) Count(ctx context.Context) (int, error) {
	*s.counts++
	return s.SliceSequence.Count(ctx)
}

func (s *countingSequence) Slice(ctx context.Context, bottom, top int) ([]int, error) {
	if s.used {
		return nil, errors.New("cursor already consumed")
	}
	s.used = true
	return s.SliceSequence.Slice(ctx, bottom, top)
}

func (s *countingSequence) Clone() Sequence[int] {
	*s.clones++
	return &countingSequence{SliceSequence: s.SliceSequence, counts: s.counts, clones: s.clones}
}

func TestPaginator_OrphansAbsorbedIntoLastPage(t *testing.T) {
	ctx := context.Background()
	p, err := NewPaginator[int](intSequence(23), 10, WithOrphans(3))
	if err != nil {
		t.Fatalf("NewPaginator() error = %v", err)
	}

	numPages, err := p.NumPages(ctx)
	if err != nil || numPages != 2 {
		t.Fatalf("NumPages() = %d, %v; want 2", numPages, err)
	}

	first, err := p.Page(ctx, 1)
	if err != nil {
		t.Fatalf("Page(1) error = %v", err)
	}
	if first.Len() != 10 {
		t.Fatalf("page 1 has %d items, want 10", first.Len())
	}

	last, err := p.Page(ctx, 2)
	if err != nil {
		t.Fatalf("Page(2) error = %v", err)
	}
	if last.Len() != 13 {
		t.Fatalf("page 2 has %d items, want 13", last.Len())
	}
	if last.Items[0] != 11 || last.Items[12] != 23 {
		t.Fatalf("unexpected page 2 bounds: first=%d last=%d", last.Items[0], last.Items[12])
	}
	if last.StartIndex() != 11 || last.EndIndex() != 23 {
		t.Fatalf("page 2 indexes = %d..%d, want 11..23", last.StartIndex(), last.EndIndex())
	}

	if _, err := p.Page(ctx, 3); !errors.Is(err, ErrEmptyPage) {
		t.Fatalf("Page(3) error = %v, want ErrEmptyPage", err)
	}
}

func TestPaginator_ValidateNumber(t *testing.T) {
	ctx := context.Background()
	p, _ := NewPaginator[int](intSequence(23), 10, WithOrphans(3))

	tests := []struct {
		name    string
		number  interface{}
		want    int
		wantErr error
	}{
		{"int", 2, 2, nil},
		{"int64", int64(1), 1, nil},
		{"uint8", uint8(2), 2, nil},
		{"decimal string", " 2 ", 2, nil},
		{"integral float from json", float64(1), 1, nil},
		{"zero", 0, 0, ErrPageLessThanOne},
		{"negative", -4, 0, ErrPageLessThanOne},
		{"letters", "abc", 0, ErrPageNotInteger},
		{"fractional float", 1.5, 0, ErrPageNotInteger},
		{"nil", nil, 0, ErrPageNotInteger},
		{"bool", true, 0, ErrPageNotInteger},
		{"beyond last page", 3, 0, ErrEmptyPage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := p.ValidateNumber(ctx, tt.number)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ValidateNumber(%v) error = %v, want %v", tt.number, err, tt.wantErr)
				}
				if !errors.Is(err, ErrInvalidPage) {
					t.Fatalf("expected error to classify as ErrInvalidPage, got %v", err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Fatalf("ValidateNumber(%v) = %d, %v; want %d", tt.number, got, err, tt.want)
			}
		})
	}
}

func TestPaginator_EmptySequence(t *testing.T) {
	ctx := context.Background()

	t.Run("empty first page allowed", func(t *testing.T) {
		p, _ := NewPaginator[int](SliceSequence[int]{}, 10)
		page, err := p.Page(ctx, 1)
		if err != nil {
			t.Fatalf("Page(1) error = %v", err)
		}
		if page.Len() != 0 {
			t.Fatalf("expected empty page, got %d items", page.Len())
		}
		if page.StartIndex() != 0 || page.EndIndex() != 0 {
			t.Fatalf("indexes = %d..%d, want 0..0", page.StartIndex(), page.EndIndex())
		}
		if page.HasNext() || page.HasPrevious() || page.HasOtherPages() {
			t.Fatal("empty page should have no neighbours")
		}
		if n, _ := p.NumPages(ctx); n != 1 {
			t.Fatalf("NumPages() = %d, want 1", n)
		}
	})

	t.Run("empty first page disallowed", func(t *testing.T) {
		p, _ := NewPaginator[int](SliceSequence[int]{}, 10, WithAllowEmptyFirstPage(false))
		if n, _ := p.NumPages(ctx); n != 0 {
			t.Fatalf("NumPages() = %d, want 0", n)
		}
		if _, err := p.Page(ctx, 1); !errors.Is(err, ErrEmptyPage) {
			t.Fatalf("Page(1) error = %v, want ErrEmptyPage", err)
		}
	})
}

func TestPage_Navigation(t *testing.T) {
	ctx := context.Background()
	p, _ := NewPaginator[int](intSequence(5), 2)

	page, err := p.Page(ctx, 2)
	if err != nil {
		t.Fatalf("Page(2) error = %v", err)
	}
	if !page.HasNext() || !page.HasPrevious() {
		t.Fatal("middle page should have both neighbours")
	}
	if page.StartIndex() != 3 || page.EndIndex() != 4 {
		t.Fatalf("indexes = %d..%d, want 3..4", page.StartIndex(), page.EndIndex())
	}
	if next, err := page.NextPageNumber(); err != nil || next != 3 {
		t.Fatalf("NextPageNumber() = %d, %v", next, err)
	}
	if prev, err := page.PreviousPageNumber(); err != nil || prev != 1 {
		t.Fatalf("PreviousPageNumber() = %d, %v", prev, err)
	}
	if page.String() != "<Page 2 of 3>" {
		t.Fatalf("String() = %q", page.String())
	}

	last, _ := p.Page(ctx, 3)
	if last.HasNext() {
		t.Fatal("last page should not have next")
	}
	if _, err := last.NextPageNumber(); !errors.Is(err, ErrEmptyPage) {
		t.Fatalf("NextPageNumber() on last page error = %v", err)
	}
	first, _ := p.Page(ctx, 1)
	if _, err := first.PreviousPageNumber(); !errors.Is(err, ErrPageLessThanOne) {
		t.Fatalf("PreviousPageNumber() on first page error = %v", err)
	}

	rng, _ := p.PageRange(ctx)
	if len(rng) != 3 || rng[0] != 1 || rng[2] != 3 {
		t.Fatalf("PageRange() = %v", rng)
	}
}

func TestPaginator_CountsOnceAndClonesCursor(t *testing.T) {
	ctx := context.Background()
	counts, clones := 0, 0
	seq := &countingSequence{SliceSequence: intSequence(30), counts: &counts, clones: &clones}

	p, _ := NewPaginator[int](seq, 10)
	for _, n := range []int{1, 2, 3, 1} {
		if _, err := p.Page(ctx, n); err != nil {
			t.Fatalf("Page(%d) error = %v", n, err)
		}
	}
	if counts != 1 {
		t.Fatalf("sequence counted %d times, want 1", counts)
	}
	if clones != 4 {
		t.Fatalf("sequence cloned %d times, want 4", clones)
	}
	if seq.used {
		t.Fatal("original cursor should never be consumed")
	}
}

func TestNewPaginator_Validation(t *testing.T) {
	if _, err := NewPaginator[int](intSequence(1), 0); !errors.Is(err, ErrInvalidPage) {
		t.Fatalf("expected ErrInvalidPage for zero per page, got %v", err)
	}
	if _, err := NewPaginator[int](intSequence(1), 10, WithOrphans(-1)); err == nil {
		t.Fatal("expected error for negative orphans")
	}
	if _, err := NewPaginator[int](nil, 10); err == nil {
		t.Fatal("expected error for nil sequence")
	}
}
