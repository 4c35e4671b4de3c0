package document

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoCollection adapts a *mongo.Collection to Collection.
type MongoCollection struct {
	coll    *mongo.Collection
	timeout time.Duration
}

var _ Collection = (*MongoCollection)(nil)

// NewMongoCollection wraps coll. A positive timeout bounds every call whose context has no deadline.
func NewMongoCollection(coll *mongo.Collection, timeout time.Duration) *MongoCollection {
	return &MongoCollection{coll: coll, timeout: timeout}
}

// InsertOne inserts doc and returns the generated _id.
func (m *MongoCollection) InsertOne(ctx context.Context, doc Document) (interface{}, error) {
	opCtx, cancel := m.withOperationTimeout(ctx)
	defer cancel()

	res, err := m.coll.InsertOne(opCtx, bson.M(doc))
	if err != nil {
		return nil, err
	}
	return res.InsertedID, nil
}

// InsertMany inserts docs in order and returns their _id values.
func (m *MongoCollection) InsertMany(ctx context.Context, docs []Document) ([]interface{}, error) {
	opCtx, cancel := m.withOperationTimeout(ctx)
	defer cancel()

	batch := make([]interface{}, len(docs))
	for i, d := range docs {
		batch[i] = bson.M(d)
	}
	res, err := m.coll.InsertMany(opCtx, batch, options.InsertMany().SetOrdered(true))
	if err != nil {
		if res == nil {
			return nil, err
		}
		return storedIDs(res.InsertedIDs, err), err
	}
	return res.InsertedIDs, nil
}

// storedIDs drops the ids of an ordered batch from the first failed write onwards. The
// driver assigns ids to every document, including those it never wrote.
func storedIDs(ids []interface{}, err error) []interface{} {
	var bwe mongo.BulkWriteException
	if !errors.As(err, &bwe) || len(bwe.WriteErrors) == 0 {
		return ids
	}
	first := len(ids)
	for _, we := range bwe.WriteErrors {
		if we.Index < first {
			first = we.Index
		}
	}
	if first < 0 {
		first = 0
	}
	return ids[:first]
}

// Find runs a sorted, projected and windowed query.
func (m *MongoCollection) Find(ctx context.Context, filter Filter, opts FindOptions) ([]Document, error) {
	opCtx, cancel := m.withOperationTimeout(ctx)
	defer cancel()

	findOpts := options.Find()
	if sortSpec := buildSort(opts.Sort); len(sortSpec) > 0 {
		findOpts.SetSort(sortSpec)
	}
	if proj := buildProjection(opts.Projection); proj != nil {
		findOpts.SetProjection(proj)
	}
	if opts.Skip > 0 {
		findOpts.SetSkip(opts.Skip)
	}
	if opts.Limit > 0 {
		findOpts.SetLimit(opts.Limit)
	}

	cursor, err := m.coll.Find(opCtx, bson.M(filter), findOpts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(opCtx)

	var raw []bson.M
	if err := cursor.All(opCtx, &raw); err != nil {
		return nil, err
	}
	out := make([]Document, 0, len(raw))
	for _, r := range raw {
		out = append(out, fromBSON(r))
	}
	return out, nil
}

// CountDocuments counts matches, stopping at limit when limit > 0.
func (m *MongoCollection) CountDocuments(ctx context.Context, filter Filter, limit int64) (int64, error) {
	opCtx, cancel := m.withOperationTimeout(ctx)
	defer cancel()

	countOpts := options.Count()
	if limit > 0 {
		countOpts.SetLimit(limit)
	}
	return m.coll.CountDocuments(opCtx, bson.M(filter), countOpts)
}

// FindOne returns the first match or ErrNotFound.
func (m *MongoCollection) FindOne(ctx context.Context, filter Filter, projection *Projection) (Document, error) {
	opCtx, cancel := m.withOperationTimeout(ctx)
	defer cancel()

	findOpts := options.FindOne()
	if proj := buildProjection(projection); proj != nil {
		findOpts.SetProjection(proj)
	}
	var raw bson.M
	if err := m.coll.FindOne(opCtx, bson.M(filter), findOpts).Decode(&raw); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return fromBSON(raw), nil
}

// UpdateOne applies {$set: set} to the first match.
func (m *MongoCollection) UpdateOne(ctx context.Context, filter Filter, set Document) (*UpdateResult, error) {
	opCtx, cancel := m.withOperationTimeout(ctx)
	defer cancel()

	res, err := m.coll.UpdateOne(opCtx, bson.M(filter), bson.M{"$set": bson.M(set)})
	if err != nil {
		return nil, err
	}
	return &UpdateResult{Matched: res.MatchedCount, Modified: res.ModifiedCount}, nil
}

// DeleteOne removes the first match.
func (m *MongoCollection) DeleteOne(ctx context.Context, filter Filter) (int64, error) {
	opCtx, cancel := m.withOperationTimeout(ctx)
	defer cancel()

	res, err := m.coll.DeleteOne(opCtx, bson.M(filter))
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

// DeleteMany removes every match.
func (m *MongoCollection) DeleteMany(ctx context.Context, filter Filter) (int64, error) {
	opCtx, cancel := m.withOperationTimeout(ctx)
	defer cancel()

	res, err := m.coll.DeleteMany(opCtx, bson.M(filter))
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

func (m *MongoCollection) withOperationTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.timeout <= 0 {
		return ctx, func() {}
	}
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, m.timeout)
}

func buildSort(specs []Sort) bson.D {
	d := make(bson.D, 0, len(specs))
	for _, s := range specs {
		dir := 1
		if s.Order == SortDesc {
			dir = -1
		}
		d = append(d, bson.E{Key: s.Field, Value: dir})
	}
	return d
}

func buildProjection(p *Projection) bson.D {
	if p == nil {
		return nil
	}
	d := make(bson.D, 0, len(p.Fields)+1)
	for _, f := range p.Fields {
		d = append(d, bson.E{Key: f, Value: 1})
	}
	if p.ExcludeID {
		d = append(d, bson.E{Key: IDField, Value: 0})
	}
	return d
}

// fromBSON converts decoded driver values into plain Documents, slices and time.Time.
func fromBSON(m bson.M) Document {
	out := make(Document, len(m))
	for k, v := range m {
		out[k] = fromBSONValue(v)
	}
	return out
}

func fromBSONValue(v interface{}) interface{} {
	switch t := v.(type) {
	case bson.M:
		return fromBSON(t)
	case bson.D:
		return fromBSON(t.Map())
	case bson.A:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = fromBSONValue(e)
		}
		return out
	case primitive.DateTime:
		return t.Time().UTC()
	default:
		return v
	}
}
