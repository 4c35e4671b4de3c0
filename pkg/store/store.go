package store

import (
	"context"

	"github.com/nimburion/flowstore/pkg/store/mongodb"
	"github.com/nimburion/flowstore/pkg/store/redis"
)

// Adapter is the lifecycle and health contract shared by the storage adapter
// (mongodb.MongoDBAdapter) and the key-value role adapters (redis.RedisAdapter).
type Adapter interface {
	HealthCheck(ctx context.Context) error
	Close() error
}

var (
	_ Adapter = (*mongodb.MongoDBAdapter)(nil)
	_ Adapter = (*redis.RedisAdapter)(nil)
)

// namedAdapter is an opened adapter with the lower-case role it serves.
type namedAdapter struct {
	name    string
	adapter Adapter
}
