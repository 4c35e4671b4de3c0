package store

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/nimburion/flowstore/pkg/config"
	"github.com/nimburion/flowstore/pkg/health"
	"github.com/nimburion/flowstore/pkg/observability/logger"
	"github.com/nimburion/flowstore/pkg/repository/document"
	"github.com/nimburion/flowstore/pkg/testutil"
)

func memoryConfig(t *testing.T) *config.Config {
	t.Helper()
	mr, _ := testutil.NewMiniRedis(t)
	cfg := config.DefaultConfig()
	cfg.Storage.URL = config.MemoryStorageURL
	cfg.Cache.URL = "redis://" + mr.Addr() + "/0"
	cfg.Cache.TTL = time.Minute
	cfg.State.URL = "redis://" + mr.Addr() + "/1"
	return cfg
}

func TestNewProvider_RequiresConfig(t *testing.T) {
	if _, err := NewProvider(nil, logger.NewNopLogger()); err == nil {
		t.Fatal("expected error for nil config")
	}
}

func TestProvider_MemoryCollections(t *testing.T) {
	p, err := NewProvider(memoryConfig(t), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	ctx := context.Background()
	a, err := p.Collection(ctx, "", "journey_customer")
	if err != nil {
		t.Fatalf("Collection() error = %v", err)
	}
	if _, err := a.InsertOne(ctx, document.Document{"name": "ada"}); err != nil {
		t.Fatal(err)
	}

	same, err := p.Collection(ctx, "smart_journey", "journey_customer")
	if err != nil {
		t.Fatal(err)
	}
	if n, _ := same.CountDocuments(ctx, document.Filter{}, 0); n != 1 {
		t.Errorf("default database must resolve to the same collection, got %d documents", n)
	}

	other, err := p.Collection(ctx, "smart_journey", "journey_step")
	if err != nil {
		t.Fatal(err)
	}
	if n, _ := other.CountDocuments(ctx, document.Filter{}, 0); n != 0 {
		t.Errorf("expected an empty collection for another subject, got %d", n)
	}

	if _, err := p.Collection(ctx, "db", " "); err == nil {
		t.Error("expected error for empty subject")
	}
	if len(p.HealthCheckers()) != 0 {
		t.Error("memory storage must not register a storage checker")
	}
}

func TestProvider_KeyValueRoles(t *testing.T) {
	p, err := NewProvider(memoryConfig(t), logger.NewNopLogger())
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	cache, err := p.KeyValue(ctx, config.RoleCache)
	if err != nil {
		t.Fatalf("KeyValue(CACHE) error = %v", err)
	}
	again, err := p.KeyValue(ctx, config.RoleCache)
	if err != nil {
		t.Fatal(err)
	}
	if cache != again {
		t.Error("expected the cache client to be reused")
	}
	state, err := p.KeyValue(ctx, config.RoleState)
	if err != nil {
		t.Fatal(err)
	}

	if err := cache.Set(ctx, "k", "cache", 0).Err(); err != nil {
		t.Fatal(err)
	}
	if n, _ := state.Exists(ctx, "k").Result(); n != 0 {
		t.Error("cache and state must use their own databases")
	}

	if _, err := p.KeyValue(ctx, config.RoleStorage); err == nil || !strings.Contains(err.Error(), "unsupported key-value role") {
		t.Errorf("expected unsupported role error, got %v", err)
	}
	if p.TTL(config.RoleCache) != time.Minute || p.TTL(config.RoleState) != 0 {
		t.Errorf("unexpected role ttls: %v %v", p.TTL(config.RoleCache), p.TTL(config.RoleState))
	}

	checkers := p.HealthCheckers()
	if len(checkers) != 2 {
		t.Fatalf("expected 2 checkers, got %d", len(checkers))
	}
	if checkers[0].Name() != "cache" || checkers[1].Name() != "state" {
		t.Errorf("unexpected checker order: %s, %s", checkers[0].Name(), checkers[1].Name())
	}
	for _, c := range checkers {
		if res := c.Check(ctx); res.Status != health.StatusHealthy {
			t.Errorf("%s: expected healthy, got %s (%s)", c.Name(), res.Status, res.Error)
		}
	}

	if err := p.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
	if _, err := p.KeyValue(ctx, config.RoleCache); err == nil {
		t.Error("expected error after Close")
	}
	if _, err := p.Collection(ctx, "", "journey_customer"); err == nil {
		t.Error("expected error after Close")
	}
}

func TestProvider_CanceledContext(t *testing.T) {
	p, err := NewProvider(memoryConfig(t), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.Collection(ctx, "", "journey_customer"); err == nil {
		t.Error("expected context error from Collection")
	}
	if _, err := p.KeyValue(ctx, config.RoleCache); err == nil {
		t.Error("expected context error from KeyValue")
	}
}

func TestProvider_KeyValueUnreachable(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.State.URL = "redis://127.0.0.1:1/0"
	p, err := NewProvider(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	if _, err := p.KeyValue(context.Background(), config.RoleState); err == nil || !strings.Contains(err.Error(), "failed to open state store") {
		t.Fatalf("expected open error, got %v", err)
	}
}

func TestProvider_CloseJoinsErrors(t *testing.T) {
	p, err := NewProvider(memoryConfig(t), logger.NewNopLogger())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	for _, role := range []string{config.RoleCache, config.RoleState} {
		client, err := p.KeyValue(ctx, role)
		if err != nil {
			t.Fatal(err)
		}
		if err := client.Close(); err != nil {
			t.Fatal(err)
		}
	}

	err = p.Close()
	if err == nil {
		t.Fatal("expected close errors for already closed clients")
	}
	if !errors.Is(err, goredis.ErrClosed) {
		t.Errorf("expected wrapped redis.ErrClosed, got %v", err)
	}
	for _, want := range []string{"cache:", "state:"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected %q in %v", want, err)
		}
	}
}
