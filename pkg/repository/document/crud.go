package document

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/nimburion/flowstore/pkg/observability/logger"
	"github.com/nimburion/flowstore/pkg/observability/metrics"
	"github.com/nimburion/flowstore/pkg/observability/tracing"
	"github.com/nimburion/flowstore/pkg/pagination"
)

// DefaultPerPage is the page size used when FindMany is paginated without PerPage.
const DefaultPerPage = 25

// Normalizer adjusts a document before it leaves the engine. It runs after the built-in
// step that stringifies _id, so it can extend but never replace that behaviour.
type Normalizer interface {
	NormalizeItem(doc Document) Document
}

// NormalizerFunc adapts a function to Normalizer.
type NormalizerFunc func(doc Document) Document

func (f NormalizerFunc) NormalizeItem(doc Document) Document { return f(doc) }

// CacheClearer evicts cached data derived from documents. CrudBase calls it exactly once
// after every committed mutation. old is the document before the change; it is nil when
// isMulti is true.
type CacheClearer interface {
	ClearCache(ctx context.Context, old Document, isMulti bool) error
}

// CacheClearerFunc adapts a function to CacheClearer.
type CacheClearerFunc func(ctx context.Context, old Document, isMulti bool) error

func (f CacheClearerFunc) ClearCache(ctx context.Context, old Document, isMulti bool) error {
	return f(ctx, old, isMulti)
}

type nopCacheClearer struct{}

func (nopCacheClearer) ClearCache(context.Context, Document, bool) error { return nil }

// CrudBase is the generic repository over one subject collection. Concrete repositories
// embed it and supply configuration through a Resource.
//
// Uniqueness checks are count-then-write and are not atomic: two concurrent inserts with
// the same key can both pass the check. Enforce a unique index in the store when that matters.
type CrudBase struct {
	resource       Resource
	collection     Collection
	normalizer     Normalizer
	cacheClearer   CacheClearer
	now            func() time.Time
	log            logger.Logger
	metrics        *metrics.RepositoryMetrics
	defaultPerPage int
}

// Option configures a CrudBase.
type Option func(*CrudBase)

// WithNormalizer installs an item normalization extension.
func WithNormalizer(n Normalizer) Option {
	return func(c *CrudBase) { c.normalizer = n }
}

// WithCacheClearer installs the post-mutation cache invalidation hook.
func WithCacheClearer(cc CacheClearer) Option {
	return func(c *CrudBase) {
		if cc != nil {
			c.cacheClearer = cc
		}
	}
}

// WithClock overrides the audit timestamp source. Timestamps are always stored in UTC.
func WithClock(now func() time.Time) Option {
	return func(c *CrudBase) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log logger.Logger) Option {
	return func(c *CrudBase) {
		if log != nil {
			c.log = log
		}
	}
}

// WithMetrics enables Prometheus operation metrics.
func WithMetrics(m *metrics.RepositoryMetrics) Option {
	return func(c *CrudBase) { c.metrics = m }
}

// WithDefaultPerPage overrides DefaultPerPage.
func WithDefaultPerPage(n int) Option {
	return func(c *CrudBase) {
		if n > 0 {
			c.defaultPerPage = n
		}
	}
}

// NewCrudBase creates a repository engine for resource over collection.
func NewCrudBase(resource Resource, collection Collection, opts ...Option) (*CrudBase, error) {
	if collection == nil {
		return nil, fmt.Errorf("collection is required")
	}
	validated, err := NewResource(resource.Database, resource.Subject, resource.VerifyInsert, resource.KeyFields...)
	if err != nil {
		return nil, err
	}

	c := &CrudBase{
		resource:       validated,
		collection:     collection,
		cacheClearer:   nopCacheClearer{},
		now:            time.Now,
		log:            logger.NewNopLogger(),
		defaultPerPage: DefaultPerPage,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With("database", c.resource.Database, "subject", c.resource.Subject)
	return c, nil
}

// Resource returns the repository configuration.
func (c *CrudBase) Resource() Resource { return c.resource }

// Collection returns the underlying collection.
func (c *CrudBase) Collection() Collection { return c.collection }

// FindManyRequest describes a listing. A nil PageNumber returns every match unpaginated.
type FindManyRequest struct {
	Query      Filter
	Projection []string
	PageNumber interface{}
	PerPage    int
	Sorting    []string
}

// FindManyResult is a listing response. Page fields are only meaningful when Paginated.
type FindManyResult struct {
	Paginated    bool
	PageRecords  int
	TotalRecords int
	List         []Document
	Page         int
	TotalPages   int
	PerPage      int
}

// MarshalJSON emits the page metadata keys only for paginated results.
func (r FindManyResult) MarshalJSON() ([]byte, error) {
	out := map[string]interface{}{
		"total_records": r.TotalRecords,
		"list":          r.List,
	}
	if r.Paginated {
		out["page_records"] = r.PageRecords
		out["page"] = r.Page
		out["total_pages"] = r.TotalPages
		out["per_page"] = r.PerPage
	}
	return json.Marshal(out)
}

// InsertOne stores data stamped with __inserted__.at and returns the new id.
func (c *CrudBase) InsertOne(ctx context.Context, data Document) (id string, err error) {
	ctx, done := c.begin(ctx, tracing.SpanOperationDBInsert, "insert_one")
	defer func() { done(err) }()

	doc, err := c.prepareInsert(ctx, data)
	if err != nil {
		return "", err
	}
	raw, err := c.collection.InsertOne(ctx, doc)
	if err != nil {
		return "", fmt.Errorf("failed to insert %s document: %w", c.resource.Subject, err)
	}
	return IDString(raw), nil
}

// InsertMany validates and stamps every item, then stores them in a single batch. The
// returned ids follow the order of items. Partial failures follow the store's batch semantics:
// when the batch fails after some documents were stored, their ids are returned together
// with the error.
func (c *CrudBase) InsertMany(ctx context.Context, items []Document) (ids []string, err error) {
	ctx, done := c.begin(ctx, tracing.SpanOperationDBInsert, "insert_many")
	defer func() { done(err) }()

	if len(items) == 0 {
		return []string{}, nil
	}
	docs := make([]Document, 0, len(items))
	for _, item := range items {
		doc, err := c.prepareInsert(ctx, item)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}

	raw, err := c.collection.InsertMany(ctx, docs)
	ids = make([]string, len(raw))
	for i, r := range raw {
		ids[i] = IDString(r)
	}
	if err != nil {
		return ids, fmt.Errorf("failed to insert %s documents: %w", c.resource.Subject, err)
	}
	return ids, nil
}

// FindMany lists documents matching req.Query.
func (c *CrudBase) FindMany(ctx context.Context, req FindManyRequest) (result *FindManyResult, err error) {
	ctx, done := c.begin(ctx, tracing.SpanOperationDBQuery, "find_many")
	defer func() { done(err) }()

	q, err := c.Query(req.Query, req.Projection, req.Sorting)
	if err != nil {
		return nil, err
	}

	if req.PageNumber == nil {
		docs, err := q.All(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to find %s documents: %w", c.resource.Subject, err)
		}
		list := c.normalizeList(docs)
		return &FindManyResult{TotalRecords: len(list), List: list}, nil
	}

	perPage := req.PerPage
	if perPage <= 0 {
		perPage = c.defaultPerPage
	}
	p, err := pagination.NewPaginator[Document](q, perPage)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	page, err := p.Page(ctx, req.PageNumber)
	if err != nil {
		if errors.Is(err, pagination.ErrInvalidPage) {
			return nil, fmt.Errorf("%w: %w", ErrValidation, err)
		}
		return nil, fmt.Errorf("failed to page %s documents: %w", c.resource.Subject, err)
	}
	total, err := p.Count(ctx)
	if err != nil {
		return nil, err
	}
	pages, err := p.NumPages(ctx)
	if err != nil {
		return nil, err
	}

	list := c.normalizeList(page.Items)
	return &FindManyResult{
		Paginated:    true,
		PageRecords:  len(list),
		TotalRecords: total,
		List:         list,
		Page:         page.Number,
		TotalPages:   pages,
		PerPage:      perPage,
	}, nil
}

// Query builds the normalized, sorted read behind FindMany so callers can page it themselves.
func (c *CrudBase) Query(query Filter, projection, sorting []string) (*Query, error) {
	filter, err := extendFilter(query)
	if err != nil {
		return nil, err
	}
	return &Query{
		collection: c.collection,
		filter:     filter,
		projection: normalizeProjection(projection),
		sort:       normalizeSorting(sorting),
	}, nil
}

// FindOne returns the document with the given id.
func (c *CrudBase) FindOne(ctx context.Context, id string, projection []string) (doc Document, err error) {
	ctx, done := c.begin(ctx, tracing.SpanOperationDBQuery, "find_one")
	defer func() { done(err) }()

	oid, err := ParseID(id)
	if err != nil {
		return nil, err
	}
	return c.findByID(ctx, oid, projection)
}

// UpdateOne sets the fields in data on the document with the given id and stamps
// __updated__.at. Fields absent from data are left untouched; _id and __inserted__ are
// never rewritten.
func (c *CrudBase) UpdateOne(ctx context.Context, id string, data Document) (result *UpdateResult, err error) {
	ctx, done := c.begin(ctx, tracing.SpanOperationDBUpdate, "update_one")
	defer func() { done(err) }()

	oid, err := ParseID(id)
	if err != nil {
		return nil, err
	}
	prior, err := c.findByID(ctx, oid, nil)
	if err != nil {
		return nil, err
	}

	if c.resource.checksUniqueness() {
		if err := c.validateResource(ctx, c.keyFilter(data, prior), &oid); err != nil {
			return nil, err
		}
	}

	set := cloneDocument(data)
	delete(set, IDField)
	delete(set, InsertedField)
	set[UpdatedField] = Document{AuditAtField: c.now().UTC()}

	result, err = c.collection.UpdateOne(ctx, Filter{IDField: oid}, set)
	if err != nil {
		return nil, fmt.Errorf("failed to update %s document %s: %w", c.resource.Subject, oid.Hex(), err)
	}
	if err := c.clearCache(ctx, prior, false); err != nil {
		return result, err
	}
	return result, nil
}

// RemoveOne deletes the document with the given id and returns the deleted count.
func (c *CrudBase) RemoveOne(ctx context.Context, id string) (deleted int64, err error) {
	ctx, done := c.begin(ctx, tracing.SpanOperationDBDelete, "remove_one")
	defer func() { done(err) }()

	oid, err := ParseID(id)
	if err != nil {
		return 0, err
	}
	prior, err := c.findByID(ctx, oid, nil)
	if err != nil {
		return 0, err
	}

	deleted, err = c.collection.DeleteOne(ctx, Filter{IDField: oid})
	if err != nil {
		return 0, fmt.Errorf("failed to delete %s document %s: %w", c.resource.Subject, oid.Hex(), err)
	}
	if err := c.clearCache(ctx, prior, false); err != nil {
		return deleted, err
	}
	return deleted, nil
}

// RemoveMany deletes every document matching query and returns the deleted count.
func (c *CrudBase) RemoveMany(ctx context.Context, query Filter) (deleted int64, err error) {
	ctx, done := c.begin(ctx, tracing.SpanOperationDBDelete, "remove_many")
	defer func() { done(err) }()

	filter, err := extendFilter(query)
	if err != nil {
		return 0, err
	}
	deleted, err = c.collection.DeleteMany(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to delete %s documents: %w", c.resource.Subject, err)
	}
	if err := c.clearCache(ctx, nil, true); err != nil {
		return deleted, err
	}
	return deleted, nil
}

func (c *CrudBase) prepareInsert(ctx context.Context, data Document) (Document, error) {
	doc := cloneDocument(data)
	if c.resource.checksUniqueness() {
		if err := c.validateResource(ctx, c.keyFilter(doc, nil), nil); err != nil {
			return nil, err
		}
	}
	doc[InsertedField] = Document{AuditAtField: c.now().UTC()}
	return doc, nil
}

func (c *CrudBase) findByID(ctx context.Context, oid primitive.ObjectID, projection []string) (Document, error) {
	filter := Filter{IDField: oid}
	doc, err := c.collection.FindOne(ctx, filter, normalizeProjection(projection))
	if errors.Is(err, ErrNotFound) {
		return nil, documentError(ErrNotFound, fmt.Sprintf("record [%s] not found", queryToString(filter, nil)))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find %s document %s: %w", c.resource.Subject, oid.Hex(), err)
	}
	return c.normalizeItem(doc), nil
}

// keyFilter builds the uniqueness filter from the key fields of data. On updates, key fields
// missing from data keep the values stored on the prior document.
func (c *CrudBase) keyFilter(data, prior Document) Filter {
	key := make(Filter, len(c.resource.KeyFields))
	for _, field := range c.resource.KeyFields {
		v, ok := data[field]
		if !ok && prior != nil {
			v = prior[field]
		}
		key[field] = v
	}
	return key
}

func (c *CrudBase) validateResource(ctx context.Context, key Filter, exclude *primitive.ObjectID) error {
	filter := make(Filter, len(key)+1)
	for k, v := range key {
		filter[k] = v
	}
	if exclude != nil {
		filter[IDField] = map[string]interface{}{"$ne": *exclude}
	}

	n, err := c.collection.CountDocuments(ctx, filter, 1)
	if err != nil {
		return fmt.Errorf("failed to verify %s key: %w", c.resource.Subject, err)
	}
	if n > 0 {
		return documentError(ErrConflict, fmt.Sprintf("resource with key [%s] already exists", queryToString(key, c.resource.KeyFields)))
	}
	return nil
}

func (c *CrudBase) clearCache(ctx context.Context, old Document, isMulti bool) error {
	if err := c.cacheClearer.ClearCache(ctx, old, isMulti); err != nil {
		c.log.WithContext(ctx).Warn("cache invalidation failed", "multi", isMulti, "error", err)
		return fmt.Errorf("failed to clear %s cache: %w", c.resource.Subject, err)
	}
	return nil
}

func (c *CrudBase) normalizeItem(doc Document) Document {
	if doc == nil {
		return nil
	}
	if id, ok := doc[IDField]; ok {
		doc[IDField] = IDString(id)
	}
	if c.normalizer != nil {
		doc = c.normalizer.NormalizeItem(doc)
	}
	return doc
}

func (c *CrudBase) normalizeList(docs []Document) []Document {
	list := make([]Document, 0, len(docs))
	for _, d := range docs {
		list = append(list, c.normalizeItem(d))
	}
	return list
}

// begin opens a span for method and returns the function that closes it and records metrics.
func (c *CrudBase) begin(ctx context.Context, op tracing.SpanOperation, method string) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := tracing.StartDatabaseSpan(ctx, op,
		tracing.WithDBSystem("mongodb"),
		tracing.WithDBName(c.resource.Database),
		tracing.WithDBCollection(c.resource.Subject),
		tracing.WithDBMethod(method),
	)
	return ctx, func(err error) {
		elapsed := time.Since(start)
		tracing.RecordError(span, err)
		span.End()
		c.metrics.ObserveOperation(c.resource.Subject, method, err, elapsed)

		log := c.log.WithContext(ctx)
		switch {
		case err == nil:
			log.Debug("repository operation completed", "operation", method, "duration", elapsed)
		case errors.Is(err, ErrNotFound), errors.Is(err, ErrConflict), errors.Is(err, ErrValidation):
			log.Debug("repository operation rejected", "operation", method, "error", err)
		default:
			log.Error("repository operation failed", "operation", method, "error", err)
		}
	}
}

func cloneDocument(d Document) Document {
	out := make(Document, len(d)+1)
	for k, v := range d {
		out[k] = v
	}
	return out
}
