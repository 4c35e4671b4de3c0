package mongodb

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/nimburion/flowstore/pkg/observability/logger"
	"github.com/nimburion/flowstore/pkg/repository/document"
)

const (
	defaultPort = 27017
	rootUser    = "root"
	adminSource = "admin"
)

// MongoDBAdapter provides MongoDB connectivity and document collections.
type MongoDBAdapter struct {
	client   *mongo.Client
	database string
	logger   logger.Logger
	timeout  time.Duration
	mu       sync.RWMutex
	closed   bool
}

// Config holds MongoDB adapter configuration. URL wins over the discrete connection fields.
type Config struct {
	URL           string
	Host          string
	Port          int
	Username      string
	Password      string
	AuthMechanism string
	// AuthSource defaults to admin for the root user and to Database otherwise.
	AuthSource       string
	Database         string
	ConnectTimeout   time.Duration
	OperationTimeout time.Duration
}

// ConnectionURI returns the mongodb:// URI described by cfg.
func (cfg Config) ConnectionURI() (string, error) {
	if cfg.URL != "" {
		return cfg.URL, nil
	}
	host := strings.TrimSpace(cfg.Host)
	if host == "" {
		return "", fmt.Errorf("mongodb URL or host is required")
	}
	port := cfg.Port
	if port <= 0 {
		port = defaultPort
	}

	u := url.URL{Scheme: "mongodb", Host: net.JoinHostPort(host, strconv.Itoa(port)), Path: "/"}
	if cfg.Username != "" {
		u.User = url.UserPassword(cfg.Username, cfg.Password)
		q := url.Values{}
		q.Set("authSource", cfg.authSource())
		if cfg.AuthMechanism != "" {
			q.Set("authMechanism", cfg.AuthMechanism)
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func (cfg Config) authSource() string {
	switch {
	case cfg.AuthSource != "":
		return cfg.AuthSource
	case cfg.Username == rootUser || cfg.Database == "":
		return adminSource
	default:
		return cfg.Database
	}
}

// NewMongoDBAdapter connects to MongoDB and verifies connectivity with a ping.
// Collections and indexes are never created here.
func NewMongoDBAdapter(cfg Config, log logger.Logger) (*MongoDBAdapter, error) {
	uri, err := cfg.ConnectionURI()
	if err != nil {
		return nil, err
	}
	if cfg.Database == "" {
		return nil, fmt.Errorf("mongodb database is required")
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	if cfg.OperationTimeout <= 0 {
		cfg.OperationTimeout = 5 * time.Second
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri).SetConnectTimeout(cfg.ConnectTimeout))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	log.Info("MongoDB connection established", "database", cfg.Database)
	return &MongoDBAdapter{
		client:   client,
		database: cfg.Database,
		logger:   log,
		timeout:  cfg.OperationTimeout,
	}, nil
}

func (a *MongoDBAdapter) Client() *mongo.Client {
	return a.client
}

// Collection returns the subject collection of database as a document.Collection. An empty
// database selects the adapter's default.
func (a *MongoDBAdapter) Collection(database, subject string) document.Collection {
	if database == "" {
		database = a.database
	}
	return document.NewMongoCollection(a.client.Database(database).Collection(subject), a.timeout)
}

func (a *MongoDBAdapter) Ping(ctx context.Context) error {
	a.mu.RLock()
	closed := a.closed
	a.mu.RUnlock()
	if closed {
		return fmt.Errorf("mongodb adapter is closed")
	}
	opCtx, cancel := a.withOperationTimeout(ctx)
	defer cancel()
	return a.client.Ping(opCtx, readpref.Primary())
}

func (a *MongoDBAdapter) HealthCheck(ctx context.Context) error {
	hcCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := a.Ping(hcCtx); err != nil {
		a.logger.Error("MongoDB health check failed", "error", err)
		return fmt.Errorf("mongodb health check failed: %w", err)
	}
	return nil
}

func (a *MongoDBAdapter) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	a.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("failed to close mongodb connection: %w", err)
	}
	a.logger.Info("MongoDB connection closed")
	return nil
}

func (a *MongoDBAdapter) withOperationTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.timeout <= 0 {
		return ctx, func() {}
	}
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, a.timeout)
}
