package document

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/nimburion/flowstore/pkg/pagination"
)

// ParseID converts an external hex id into the store's native identifier.
func ParseID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(strings.TrimSpace(id))
	if err != nil {
		return primitive.NilObjectID, documentError(ErrInvalidID, fmt.Sprintf("%q", id))
	}
	return oid, nil
}

// IDString renders a native id in its external string form.
func IDString(id interface{}) string {
	switch v := id.(type) {
	case primitive.ObjectID:
		return v.Hex()
	case *primitive.ObjectID:
		if v == nil {
			return ""
		}
		return v.Hex()
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// extendFilter returns a copy of filter with a string _id coerced to its native type.
// The caller's filter is never modified.
func extendFilter(filter Filter) (Filter, error) {
	out := make(Filter, len(filter)+1)
	for k, v := range filter {
		out[k] = v
	}
	if raw, ok := out[IDField].(string); ok {
		oid, err := ParseID(raw)
		if err != nil {
			return nil, err
		}
		out[IDField] = oid
	}
	return out, nil
}

// normalizeSorting turns "field#DIR" tokens into sort specs. A missing or unknown direction
// sorts ascending; no tokens sort by _id ascending.
func normalizeSorting(sorting []string) []Sort {
	out := make([]Sort, 0, len(sorting))
	for _, token := range sorting {
		field, dir, _ := strings.Cut(strings.TrimSpace(token), "#")
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		order := SortAsc
		if SortOrder(strings.ToUpper(strings.TrimSpace(dir))) == SortDesc {
			order = SortDesc
		}
		out = append(out, Sort{Field: field, Order: order})
	}
	if len(out) == 0 {
		return []Sort{{Field: IDField, Order: SortAsc}}
	}
	return out
}

// normalizeProjection includes only the listed fields and drops _id unless it is listed.
func normalizeProjection(fields []string) *Projection {
	var p Projection
	withID := false
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		if f == IDField {
			withID = true
		}
		p.Fields = append(p.Fields, f)
	}
	if len(p.Fields) == 0 {
		return nil
	}
	p.ExcludeID = !withID
	return &p
}

// queryToString renders a filter as "field: value, field: value" following order, then any
// remaining fields sorted by name.
func queryToString(filter Filter, order []string) string {
	seen := make(map[string]bool, len(order))
	parts := make([]string, 0, len(filter))
	for _, k := range order {
		if v, ok := filter[k]; ok {
			parts = append(parts, fmt.Sprintf("%s: %s", k, valueString(v)))
			seen[k] = true
		}
	}
	rest := make([]string, 0, len(filter))
	for k := range filter {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	for _, k := range rest {
		parts = append(parts, fmt.Sprintf("%s: %s", k, valueString(filter[k])))
	}
	return strings.Join(parts, ", ")
}

func valueString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return "None"
	case primitive.ObjectID:
		return t.Hex()
	default:
		return fmt.Sprint(t)
	}
}

// Query is a lazily evaluated, sorted and filtered read. It satisfies pagination.Sequence:
// counting issues a count and every slice issues its own skip/limit find, so slicing never
// consumes shared cursor state.
type Query struct {
	collection Collection
	filter     Filter
	projection *Projection
	sort       []Sort
}

var (
	_ pagination.Sequence[Document] = (*Query)(nil)
	_ pagination.Cloner[Document]   = (*Query)(nil)
)

// Count returns the number of matching documents.
func (q *Query) Count(ctx context.Context) (int, error) {
	n, err := q.collection.CountDocuments(ctx, q.filter, 0)
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// Slice fetches documents at positions [bottom, top).
func (q *Query) Slice(ctx context.Context, bottom, top int) ([]Document, error) {
	if top <= bottom {
		return []Document{}, nil
	}
	return q.collection.Find(ctx, q.filter, FindOptions{
		Projection: q.projection,
		Sort:       q.sort,
		Skip:       int64(bottom),
		Limit:      int64(top - bottom),
	})
}

// All fetches every matching document.
func (q *Query) All(ctx context.Context) ([]Document, error) {
	return q.collection.Find(ctx, q.filter, FindOptions{
		Projection: q.projection,
		Sort:       q.sort,
	})
}

// Clone returns an independent copy of the query.
func (q *Query) Clone() pagination.Sequence[Document] {
	c := *q
	c.sort = append([]Sort(nil), q.sort...)
	return &c
}
