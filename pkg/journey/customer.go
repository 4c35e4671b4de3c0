// Package journey holds the repositories of the smart journey subjects.
package journey

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/nimburion/flowstore/pkg/inmemory"
	"github.com/nimburion/flowstore/pkg/observability/logger"
	"github.com/nimburion/flowstore/pkg/repository/document"
)

const (
	// Database holds every journey subject.
	Database = "smart_journey"
	// CustomerSubject is the customer collection and cache subject.
	CustomerSubject = "journey_customer"
)

// CustomerRepository stores journey customers and keeps their cache entries
// ("CACHE:journey_customer:<id>") consistent with the collection.
type CustomerRepository struct {
	*document.CrudBase

	cache     redis.Cmdable
	cacheOpts []inmemory.Option
	log       logger.Logger
}

// Option configures a CustomerRepository.
type Option func(*settings)

type settings struct {
	crud  []document.Option
	cache []inmemory.Option
}

// WithCrudOptions passes options to the underlying CrudBase.
func WithCrudOptions(opts ...document.Option) Option {
	return func(s *settings) { s.crud = append(s.crud, opts...) }
}

// WithCacheOptions passes options to the customer cache entries.
func WithCacheOptions(opts ...inmemory.Option) Option {
	return func(s *settings) { s.cache = append(s.cache, opts...) }
}

// NewCustomerRepository returns the customer repository over coll, evicting entries from
// the cache client after every update and removal.
func NewCustomerRepository(coll document.Collection, cache redis.Cmdable, log logger.Logger, opts ...Option) (*CustomerRepository, error) {
	if cache == nil {
		return nil, fmt.Errorf("cache client is required")
	}
	if log == nil {
		log = logger.NewNopLogger()
	}
	var s settings
	for _, opt := range opts {
		opt(&s)
	}

	r := &CustomerRepository{
		cache:     cache,
		cacheOpts: append([]inmemory.Option{inmemory.WithLogger(log)}, s.cache...),
		log:       log.With("subject", CustomerSubject),
	}
	resource, err := document.NewResource(Database, CustomerSubject, false)
	if err != nil {
		return nil, err
	}
	crudOpts := append([]document.Option{document.WithLogger(log)}, s.crud...)
	crudOpts = append(crudOpts, document.WithCacheClearer(r))
	r.CrudBase, err = document.NewCrudBase(resource, coll, crudOpts...)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// ClearCache evicts the entry of old, or every customer entry when isMulti is set.
func (r *CustomerRepository) ClearCache(ctx context.Context, old document.Document, isMulti bool) error {
	field := inmemory.Wildcard
	if !isMulti {
		if old == nil {
			return nil
		}
		field = document.IDString(old[document.IDField])
	}
	entry, err := r.entry(field)
	if err != nil {
		return err
	}
	_, err = entry.Delete(ctx)
	return err
}

// CachedFindOne returns the whole customer document, reading through the cache. Cache
// failures are logged and fall back to the collection. Cached time values come back in
// their RFC 3339 string form.
func (r *CustomerRepository) CachedFindOne(ctx context.Context, id string) (document.Document, error) {
	oid, err := document.ParseID(id)
	if err != nil {
		return nil, err
	}
	entry, err := r.entry(oid.Hex())
	if err != nil {
		return nil, err
	}

	log := r.log.WithContext(ctx)
	doc, found, err := entry.GetValue(ctx)
	switch {
	case err != nil:
		log.Warn("customer cache read failed", "key", entry.Key(), "error", err)
	case found:
		return doc, nil
	}

	doc, err = r.FindOne(ctx, oid.Hex(), nil)
	if err != nil {
		return nil, err
	}
	if err := entry.SetValue(ctx, doc); err != nil {
		log.Warn("customer cache write failed", "key", entry.Key(), "error", err)
	}
	return doc, nil
}

func (r *CustomerRepository) entry(field string) (*inmemory.Cache[document.Document], error) {
	return inmemory.NewCache[document.Document](r.cache, inmemory.NewNamespace(CustomerSubject, field), r.cacheOpts...)
}
