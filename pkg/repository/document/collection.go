package document

import "context"

// FindOptions carries the normalized read options passed to a Collection.
type FindOptions struct {
	Projection *Projection
	Sort       []Sort
	Skip       int64
	// Limit of 0 means no limit.
	Limit int64
}

// UpdateResult reports the outcome of UpdateOne.
type UpdateResult struct {
	Matched  int64 `json:"matched"`
	Modified int64 `json:"updated"`
}

// Collection is the document store contract consumed by CrudBase. Filters reaching a
// Collection already carry native ids.
type Collection interface {
	InsertOne(ctx context.Context, doc Document) (interface{}, error)
	InsertMany(ctx context.Context, docs []Document) ([]interface{}, error)
	Find(ctx context.Context, filter Filter, opts FindOptions) ([]Document, error)
	// CountDocuments counts matches, stopping at limit when limit > 0.
	CountDocuments(ctx context.Context, filter Filter, limit int64) (int64, error)
	// FindOne returns ErrNotFound when nothing matches.
	FindOne(ctx context.Context, filter Filter, projection *Projection) (Document, error)
	// UpdateOne applies a $set of the given fields to the first match.
	UpdateOne(ctx context.Context, filter Filter, set Document) (*UpdateResult, error)
	DeleteOne(ctx context.Context, filter Filter) (int64, error)
	DeleteMany(ctx context.Context, filter Filter) (int64, error)
}
