package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/nimburion/flowstore/pkg/config"
	"github.com/nimburion/flowstore/pkg/health"
	"github.com/nimburion/flowstore/pkg/observability/logger"
	"github.com/nimburion/flowstore/pkg/repository/document"
	"github.com/nimburion/flowstore/pkg/store/mongodb"
	"github.com/nimburion/flowstore/pkg/store/redis"
)

// Provider opens the document store and the key-value roles described by a Config.
// Connections are established on first use and shared until Close.
type Provider struct {
	cfg *config.Config
	log logger.Logger

	mu       sync.Mutex
	mongo    *mongodb.MongoDBAdapter
	memory   map[string]*document.MemoryCollection
	keyValue map[string]*redis.RedisAdapter
	closed   bool
}

// NewProvider returns a provider for cfg. Nothing is dialed until a collection or
// key-value client is requested.
func NewProvider(cfg *config.Config, log logger.Logger) (*Provider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Provider{
		cfg:      cfg,
		log:      log,
		memory:   make(map[string]*document.MemoryCollection),
		keyValue: make(map[string]*redis.RedisAdapter),
	}, nil
}

// Collection returns the subject collection of database. An empty database selects
// storage.database. With storage.url "memory://" every database/subject pair maps to its
// own process-local collection.
func (p *Provider) Collection(ctx context.Context, database, subject string) (document.Collection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(subject) == "" {
		return nil, fmt.Errorf("collection subject is required")
	}
	if database == "" {
		database = p.cfg.Storage.Database
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, fmt.Errorf("store provider is closed")
	}

	if p.cfg.Storage.IsMemory() {
		name := database + "." + subject
		coll, ok := p.memory[name]
		if !ok {
			coll = document.NewMemoryCollection()
			p.memory[name] = coll
			p.log.Debug("memory collection created", "collection", name)
		}
		return coll, nil
	}

	if p.mongo == nil {
		s := p.cfg.Storage
		adapter, err := mongodb.NewMongoDBAdapter(mongodb.Config{
			URL:              s.URL,
			Host:             s.Host,
			Port:             s.Port,
			Username:         s.Username,
			Password:         s.Password,
			AuthMechanism:    s.AuthMechanism,
			AuthSource:       s.AuthSource,
			Database:         s.Database,
			ConnectTimeout:   s.ConnectTimeout,
			OperationTimeout: s.OperationTimeout,
		}, p.log)
		if err != nil {
			return nil, fmt.Errorf("failed to open storage: %w", err)
		}
		p.mongo = adapter
	}
	return p.mongo.Collection(database, subject), nil
}

// KeyValue returns the Redis client of a key-value role (config.RoleCache or
// config.RoleState).
func (p *Provider) KeyValue(ctx context.Context, role string) (goredis.UniversalClient, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	kv, ok := p.cfg.KeyValue(role)
	if !ok {
		return nil, fmt.Errorf("unsupported key-value role %q (supported: %s, %s)", role, config.RoleCache, config.RoleState)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, fmt.Errorf("store provider is closed")
	}

	if adapter, ok := p.keyValue[role]; ok {
		return adapter.Client(), nil
	}
	adapter, err := redis.NewRedisAdapter(redis.Config{
		URL:              kv.URL,
		Host:             kv.Host,
		Port:             kv.Port,
		DB:               kv.DB,
		Password:         kv.Password,
		MaxConns:         kv.MaxConns,
		OperationTimeout: kv.OperationTimeout,
	}, p.log.With("role", role))
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", strings.ToLower(role), err)
	}
	p.keyValue[role] = adapter
	return adapter.Client(), nil
}

// TTL returns the default time-to-live configured for a key-value role.
func (p *Provider) TTL(role string) time.Duration {
	kv, _ := p.cfg.KeyValue(role)
	return kv.TTL
}

// HealthCheckers returns one checker per connected adapter, storage first, then the
// key-value roles in order.
func (p *Provider) HealthCheckers() []health.Checker {
	p.mu.Lock()
	defer p.mu.Unlock()

	var checkers []health.Checker
	for _, a := range p.adaptersLocked() {
		if a.name == strings.ToLower(config.RoleStorage) {
			checkers = append(checkers, health.NewStorageChecker(a.name, a.adapter))
			continue
		}
		checkers = append(checkers, health.NewKeyValueChecker(a.name, a.adapter))
	}
	return checkers
}

func (p *Provider) adaptersLocked() []namedAdapter {
	var adapters []namedAdapter
	if p.mongo != nil {
		adapters = append(adapters, namedAdapter{name: strings.ToLower(config.RoleStorage), adapter: p.mongo})
	}
	for _, role := range p.rolesLocked() {
		adapters = append(adapters, namedAdapter{name: strings.ToLower(role), adapter: p.keyValue[role]})
	}
	return adapters
}

func (p *Provider) rolesLocked() []string {
	roles := make([]string, 0, len(p.keyValue))
	for role := range p.keyValue {
		roles = append(roles, role)
	}
	sort.Strings(roles)
	return roles
}

// Close closes every opened connection and returns the joined errors.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true

	var errs []error
	for _, a := range p.adaptersLocked() {
		if err := a.adapter.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", a.name, err))
		}
	}
	p.mongo = nil
	p.keyValue = map[string]*redis.RedisAdapter{}
	p.memory = map[string]*document.MemoryCollection{}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("failed to close store provider: %w", err)
	}
	return nil
}
