package config

import (
	"net/url"
	"time"
)

// Key-value store roles.
const (
	RoleStorage = "STORAGE"
	RoleCache   = "CACHE"
	RoleState   = "STATE"
)

// MemoryStorageURL selects the process-local document store.
const MemoryStorageURL = "memory://"

const redactedValue = "******"

// Config is the root configuration of flow storage services.
type Config struct {
	Service    ServiceConfig    `mapstructure:"service" yaml:"service"`
	Logging    LoggingConfig    `mapstructure:"logging" yaml:"logging"`
	Storage    StorageConfig    `mapstructure:"storage" yaml:"storage"`
	Cache      KeyValueConfig   `mapstructure:"cache" yaml:"cache"`
	State      KeyValueConfig   `mapstructure:"state" yaml:"state"`
	Tracing    TracingConfig    `mapstructure:"tracing" yaml:"tracing"`
	Pagination PaginationConfig `mapstructure:"pagination" yaml:"pagination"`
}

// ServiceConfig identifies the running service in logs and traces.
type ServiceConfig struct {
	Name        string `mapstructure:"name" yaml:"name"`
	Environment string `mapstructure:"environment" yaml:"environment"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"` // json, text
}

// StorageConfig configures the MongoDB document store. URL wins over the discrete fields;
// "memory://" selects the in-process store.
type StorageConfig struct {
	URL              string        `mapstructure:"url" yaml:"url"`
	Host             string        `mapstructure:"host" yaml:"host"`
	Port             int           `mapstructure:"port" yaml:"port"`
	Username         string        `mapstructure:"username" yaml:"username"`
	Password         string        `mapstructure:"password" yaml:"password"`
	AuthMechanism    string        `mapstructure:"auth_mechanism" yaml:"auth_mechanism"`
	AuthSource       string        `mapstructure:"auth_source" yaml:"auth_source"`
	Database         string        `mapstructure:"database" yaml:"database"`
	ConnectTimeout   time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout"`
	OperationTimeout time.Duration `mapstructure:"operation_timeout" yaml:"operation_timeout"`
}

// IsMemory reports whether the in-process document store is selected.
func (s StorageConfig) IsMemory() bool {
	return s.URL == MemoryStorageURL
}

// KeyValueConfig configures one Redis role (cache or state).
type KeyValueConfig struct {
	URL              string        `mapstructure:"url" yaml:"url"`
	Host             string        `mapstructure:"host" yaml:"host"`
	Port             int           `mapstructure:"port" yaml:"port"`
	DB               int           `mapstructure:"db" yaml:"db"`
	Password         string        `mapstructure:"password" yaml:"password"`
	MaxConns         int           `mapstructure:"max_conns" yaml:"max_conns"`
	OperationTimeout time.Duration `mapstructure:"operation_timeout" yaml:"operation_timeout"`
	// TTL is the default entry time-to-live. Zero means no expiry.
	TTL time.Duration `mapstructure:"ttl" yaml:"ttl"`
}

// TracingConfig configures OTLP trace export.
type TracingConfig struct {
	Enabled    bool    `mapstructure:"enabled" yaml:"enabled"`
	Endpoint   string  `mapstructure:"endpoint" yaml:"endpoint"`
	SampleRate float64 `mapstructure:"sample_rate" yaml:"sample_rate"`
}

// PaginationConfig configures listing defaults.
type PaginationConfig struct {
	PerPage int `mapstructure:"per_page" yaml:"per_page"`
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:        "flow",
			Environment: "development",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Storage: StorageConfig{
			Host:             "localhost",
			Port:             27017,
			Database:         "smart_journey",
			AuthMechanism:    "SCRAM-SHA-1",
			ConnectTimeout:   5 * time.Second,
			OperationTimeout: 5 * time.Second,
		},
		Cache: KeyValueConfig{
			Host:             "localhost",
			Port:             6379,
			MaxConns:         10,
			OperationTimeout: 3 * time.Second,
		},
		State: KeyValueConfig{
			Host:             "localhost",
			Port:             6379,
			MaxConns:         10,
			OperationTimeout: 3 * time.Second,
		},
		Tracing: TracingConfig{
			SampleRate: 1.0,
		},
		Pagination: PaginationConfig{
			PerPage: 25,
		},
	}
}

// KeyValue returns the configuration of a key-value role.
func (c *Config) KeyValue(role string) (KeyValueConfig, bool) {
	switch role {
	case RoleCache:
		return c.Cache, true
	case RoleState:
		return c.State, true
	default:
		return KeyValueConfig{}, false
	}
}

// Redacted returns a copy with passwords and URL credentials masked.
func (c *Config) Redacted() *Config {
	out := *c
	out.Storage.Password = redact(out.Storage.Password)
	out.Storage.URL = redactURL(out.Storage.URL)
	out.Cache.Password = redact(out.Cache.Password)
	out.Cache.URL = redactURL(out.Cache.URL)
	out.State.Password = redact(out.State.Password)
	out.State.URL = redactURL(out.State.URL)
	return &out
}

func redact(s string) string {
	if s == "" {
		return ""
	}
	return redactedValue
}

func redactURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return redactedValue
	}
	if u.User == nil {
		return raw
	}
	if _, hasPassword := u.User.Password(); hasPassword {
		u.User = url.UserPassword(u.User.Username(), redactedValue)
	}
	return u.String()
}
