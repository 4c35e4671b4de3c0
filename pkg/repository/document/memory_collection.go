package document

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MemoryCollection is a process-local Collection. It understands equality filters plus the
// $eq, $ne, $in, $nin, $gt, $gte, $lt, $lte and $exists operators, which covers every filter
// CrudBase issues. It backs tests and memory:// storage URLs.
type MemoryCollection struct {
	mu   sync.RWMutex
	docs []Document
}

var _ Collection = (*MemoryCollection)(nil)

// NewMemoryCollection returns an empty collection.
func NewMemoryCollection() *MemoryCollection {
	return &MemoryCollection{}
}

// InsertOne stores a copy of doc, assigning an ObjectID when _id is absent.
func (m *MemoryCollection) InsertOne(ctx context.Context, doc Document) (interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertLocked(doc)
}

// InsertMany stores every doc in order. It stops at the first failure, keeping earlier inserts.
func (m *MemoryCollection) InsertMany(ctx context.Context, docs []Document) ([]interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]interface{}, 0, len(docs))
	for _, d := range docs {
		id, err := m.insertLocked(d)
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (m *MemoryCollection) insertLocked(doc Document) (interface{}, error) {
	stored := deepCopyDocument(doc)
	id, ok := stored[IDField]
	if !ok || id == nil {
		id = primitive.NewObjectID()
		stored[IDField] = id
	}
	for _, existing := range m.docs {
		if valuesEqual(existing[IDField], id) {
			return nil, fmt.Errorf("duplicate key error: %s %s", IDField, valueString(id))
		}
	}
	m.docs = append(m.docs, stored)
	return id, nil
}

// Find returns copies of the matching documents, sorted, skipped, limited and projected.
func (m *MemoryCollection) Find(ctx context.Context, filter Filter, opts FindOptions) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	matches := m.matchLocked(filter)
	m.mu.RUnlock()

	sortDocuments(matches, opts.Sort)

	if opts.Skip > 0 {
		if opts.Skip >= int64(len(matches)) {
			matches = nil
		} else {
			matches = matches[opts.Skip:]
		}
	}
	if opts.Limit > 0 && opts.Limit < int64(len(matches)) {
		matches = matches[:opts.Limit]
	}

	out := make([]Document, 0, len(matches))
	for _, d := range matches {
		out = append(out, project(d, opts.Projection))
	}
	return out, nil
}

// CountDocuments counts matches, stopping at limit when limit > 0.
func (m *MemoryCollection) CountDocuments(ctx context.Context, filter Filter, limit int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var n int64
	for _, d := range m.docs {
		if matches(d, filter) {
			n++
			if limit > 0 && n >= limit {
				break
			}
		}
	}
	return n, nil
}

// FindOne returns the first match in insertion order.
func (m *MemoryCollection) FindOne(ctx context.Context, filter Filter, projection *Projection) (Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, d := range m.docs {
		if matches(d, filter) {
			return project(d, projection), nil
		}
	}
	return nil, ErrNotFound
}

// UpdateOne sets fields on the first match. Dotted field names are not expanded.
func (m *MemoryCollection) UpdateOne(ctx context.Context, filter Filter, set Document) (*UpdateResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, d := range m.docs {
		if !matches(d, filter) {
			continue
		}
		modified := int64(0)
		for k, v := range set {
			if cur, ok := d[k]; !ok || !reflect.DeepEqual(cur, v) {
				modified = 1
			}
			d[k] = deepCopyValue(v)
		}
		return &UpdateResult{Matched: 1, Modified: modified}, nil
	}
	return &UpdateResult{}, nil
}

// DeleteOne removes the first match.
func (m *MemoryCollection) DeleteOne(ctx context.Context, filter Filter) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, d := range m.docs {
		if matches(d, filter) {
			m.docs = append(m.docs[:i], m.docs[i+1:]...)
			return 1, nil
		}
	}
	return 0, nil
}

// DeleteMany removes every match.
func (m *MemoryCollection) DeleteMany(ctx context.Context, filter Filter) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.docs[:0]
	var deleted int64
	for _, d := range m.docs {
		if matches(d, filter) {
			deleted++
			continue
		}
		kept = append(kept, d)
	}
	for i := len(kept); i < len(m.docs); i++ {
		m.docs[i] = nil
	}
	m.docs = kept
	return deleted, nil
}

// Len returns the number of stored documents.
func (m *MemoryCollection) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docs)
}

// matchLocked returns copies of the matching documents so callers can sort and project
// them after releasing the lock.
func (m *MemoryCollection) matchLocked(filter Filter) []Document {
	var out []Document
	for _, d := range m.docs {
		if matches(d, filter) {
			out = append(out, deepCopyDocument(d))
		}
	}
	return out
}

func matches(doc Document, filter Filter) bool {
	for field, cond := range filter {
		value, present := doc[field]
		if ops, ok := operatorMap(cond); ok {
			for op, arg := range ops {
				if !applyOperator(op, value, present, arg) {
					return false
				}
			}
			continue
		}
		if !valuesEqual(value, cond) {
			return false
		}
	}
	return true
}

// operatorMap reports whether cond is an operator document such as {"$ne": v}.
func operatorMap(cond interface{}) (map[string]interface{}, bool) {
	var m map[string]interface{}
	switch t := cond.(type) {
	case map[string]interface{}:
		m = t
	case Filter:
		m = t
	case Document:
		m = t
	case bson.M:
		m = t
	default:
		return nil, false
	}
	if len(m) == 0 {
		return nil, false
	}
	for k := range m {
		if !strings.HasPrefix(k, "$") {
			return nil, false
		}
	}
	return m, true
}

func applyOperator(op string, value interface{}, present bool, arg interface{}) bool {
	switch op {
	case "$eq":
		return valuesEqual(value, arg)
	case "$ne":
		return !valuesEqual(value, arg)
	case "$in":
		return inList(value, arg)
	case "$nin":
		return !inList(value, arg)
	case "$exists":
		want, _ := arg.(bool)
		return present == want
	case "$gt":
		c, ok := compareValues(value, arg)
		return ok && c > 0
	case "$gte":
		c, ok := compareValues(value, arg)
		return ok && c >= 0
	case "$lt":
		c, ok := compareValues(value, arg)
		return ok && c < 0
	case "$lte":
		c, ok := compareValues(value, arg)
		return ok && c <= 0
	default:
		return false
	}
}

func inList(value, list interface{}) bool {
	rv := reflect.ValueOf(list)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return false
	}
	for i := 0; i < rv.Len(); i++ {
		if valuesEqual(value, rv.Index(i).Interface()) {
			return true
		}
	}
	return false
}

// valuesEqual compares numbers by value regardless of their Go type; a missing field equals nil.
func valuesEqual(a, b interface{}) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			return fa == fb
		}
	}
	return reflect.DeepEqual(a, b)
}

func compareValues(a, b interface{}) (int, bool) {
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			switch {
			case fa < fb:
				return -1, true
			case fa > fb:
				return 1, true
			default:
				return 0, true
			}
		}
		return 0, false
	}
	switch x := a.(type) {
	case string:
		if y, ok := b.(string); ok {
			return strings.Compare(x, y), true
		}
	case time.Time:
		if y, ok := b.(time.Time); ok {
			return x.Compare(y), true
		}
	case primitive.ObjectID:
		if y, ok := b.(primitive.ObjectID); ok {
			return strings.Compare(x.Hex(), y.Hex()), true
		}
	case bool:
		if y, ok := b.(bool); ok {
			switch {
			case x == y:
				return 0, true
			case !x:
				return -1, true
			default:
				return 1, true
			}
		}
	}
	return 0, false
}

func toFloat(v interface{}) (float64, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	default:
		return 0, false
	}
}

// sortDocuments orders docs stably. Missing values sort first, as in MongoDB.
func sortDocuments(docs []Document, specs []Sort) {
	if len(specs) == 0 {
		return
	}
	sort.SliceStable(docs, func(i, j int) bool {
		for _, s := range specs {
			a, b := docs[i][s.Field], docs[j][s.Field]
			c := orderValues(a, b)
			if c == 0 {
				continue
			}
			if s.Order == SortDesc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}

func orderValues(a, b interface{}) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	if c, ok := compareValues(a, b); ok {
		return c
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func project(doc Document, p *Projection) Document {
	if p == nil {
		return deepCopyDocument(doc)
	}
	out := make(Document, len(p.Fields)+1)
	for _, f := range p.Fields {
		if v, ok := doc[f]; ok {
			out[f] = deepCopyValue(v)
		}
	}
	if !p.ExcludeID {
		if id, ok := doc[IDField]; ok {
			out[IDField] = id
		}
	}
	return out
}

func deepCopyDocument(d Document) Document {
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v interface{}) interface{} {
	switch t := v.(type) {
	case Document:
		return deepCopyDocument(t)
	case map[string]interface{}:
		return map[string]interface{}(deepCopyDocument(Document(t)))
	case bson.M:
		return bson.M(deepCopyDocument(Document(t)))
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = deepCopyValue(e)
		}
		return out
	default:
		return v
	}
}
