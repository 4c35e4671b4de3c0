package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/nimburion/flowstore/pkg/observability/logger"
)

// DefaultEnvPrefix prefixes every environment variable read by the loader.
const DefaultEnvPrefix = "FLOW"

// Loader defines the interface for loading configuration
type Loader interface {
	Load() (*Config, error)
	Validate(*Config) error
}

// ViperLoader implements Loader using Viper for configuration management
type ViperLoader struct {
	configFile string
	envPrefix  string
	flags      *pflag.FlagSet
}

// NewViperLoader creates a new ViperLoader
// configFile: path to configuration file (optional, can be empty)
// envPrefix: prefix for environment variables (defaults to "FLOW")
func NewViperLoader(configFile, envPrefix string) *ViperLoader {
	return &ViperLoader{
		configFile: configFile,
		envPrefix:  envPrefix,
	}
}

// WithFlags binds command-line flags named like config keys ("storage.url") over every
// other source.
func (l *ViperLoader) WithFlags(flags *pflag.FlagSet) *ViperLoader {
	l.flags = flags
	return l
}

// Load loads configuration with precedence: flags > ENV > secrets file > file > defaults
func (l *ViperLoader) Load() (*Config, error) {
	v := viper.New()

	l.setDefaults(v, DefaultConfig())

	if l.configFile != "" {
		v.SetConfigFile(l.configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", l.configFile, err)
		}
	}

	if err := l.mergeSecrets(v); err != nil {
		return nil, err
	}

	v.SetEnvPrefix(l.prefix())
	l.bindEnvVars(v)

	if l.flags != nil {
		var bindErr error
		l.flags.VisitAll(func(f *pflag.Flag) {
			if strings.Contains(f.Name, ".") && bindErr == nil {
				bindErr = v.BindPFlag(f.Name, f)
			}
		})
		if bindErr != nil {
			return nil, fmt.Errorf("failed to bind flags: %w", bindErr)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := l.Validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// bindEnvVars explicitly binds environment variables for nested structs. Where several
// names are bound, the first one set wins; the unprefixed names are those of earlier
// deployments.
func (l *ViperLoader) bindEnvVars(v *viper.Viper) {
	v.BindEnv("service.name", l.prefixedEnv("SERVICE_NAME"))
	v.BindEnv("service.environment", l.prefixedEnv("SERVICE_ENVIRONMENT"), l.prefixedEnv("ENVIRONMENT"))

	v.BindEnv("logging.level", l.prefixedEnv("LOG_LEVEL"))
	v.BindEnv("logging.format", l.prefixedEnv("LOG_FORMAT"))

	// Storage
	v.BindEnv("storage.url", l.prefixedEnv("STORAGE_URL"))
	v.BindEnv("storage.host", l.prefixedEnv("STORAGE_HOST"), "STORAGE_STORAGE_HOST")
	v.BindEnv("storage.port", l.prefixedEnv("STORAGE_PORT"), "STORAGE_STORAGE_PORT")
	v.BindEnv("storage.username", l.prefixedEnv("STORAGE_USERNAME"), "STORAGE_STORAGE_USER")
	v.BindEnv("storage.password", l.prefixedEnv("STORAGE_PASSWORD"), "STORAGE_STORAGE_PASS")
	v.BindEnv("storage.auth_mechanism", l.prefixedEnv("STORAGE_AUTH_MECHANISM"), "STORAGE_STORAGE_AUTH_MECHANISM")
	v.BindEnv("storage.auth_source", l.prefixedEnv("STORAGE_AUTH_SOURCE"))
	v.BindEnv("storage.database", l.prefixedEnv("STORAGE_DATABASE"))
	v.BindEnv("storage.connect_timeout", l.prefixedEnv("STORAGE_CONNECT_TIMEOUT"))
	v.BindEnv("storage.operation_timeout", l.prefixedEnv("STORAGE_OPERATION_TIMEOUT"))

	// Cache and state
	for _, role := range []string{RoleCache, RoleState} {
		key := strings.ToLower(role)
		v.BindEnv(key+".url", l.prefixedEnv(role+"_URL"))
		v.BindEnv(key+".host", l.prefixedEnv(role+"_HOST"), "IN_MEMORY_"+role+"_HOST")
		v.BindEnv(key+".port", l.prefixedEnv(role+"_PORT"), "IN_MEMORY_"+role+"_PORT")
		v.BindEnv(key+".db", l.prefixedEnv(role+"_DB"))
		v.BindEnv(key+".password", l.prefixedEnv(role+"_PASSWORD"))
		v.BindEnv(key+".max_conns", l.prefixedEnv(role+"_MAX_CONNS"))
		v.BindEnv(key+".operation_timeout", l.prefixedEnv(role+"_OPERATION_TIMEOUT"))
		v.BindEnv(key+".ttl", l.prefixedEnv(role+"_TTL"))
	}

	// Tracing
	v.BindEnv("tracing.enabled", l.prefixedEnv("TRACING_ENABLED"))
	v.BindEnv("tracing.endpoint", l.prefixedEnv("TRACING_ENDPOINT"))
	v.BindEnv("tracing.sample_rate", l.prefixedEnv("TRACING_SAMPLE_RATE"))

	v.BindEnv("pagination.per_page", l.prefixedEnv("PAGINATION_PER_PAGE"))
}

func (l *ViperLoader) prefix() string {
	prefix := strings.TrimSpace(l.envPrefix)
	if prefix == "" {
		prefix = DefaultEnvPrefix
	}
	return strings.ToUpper(prefix)
}

func (l *ViperLoader) prefixedEnv(suffix string) string {
	return fmt.Sprintf("%s_%s", l.prefix(), suffix)
}

// setDefaults sets default values in Viper from the default config
func (l *ViperLoader) setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("service.name", cfg.Service.Name)
	v.SetDefault("service.environment", cfg.Service.Environment)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)

	v.SetDefault("storage.url", cfg.Storage.URL)
	v.SetDefault("storage.host", cfg.Storage.Host)
	v.SetDefault("storage.port", cfg.Storage.Port)
	v.SetDefault("storage.username", cfg.Storage.Username)
	v.SetDefault("storage.password", cfg.Storage.Password)
	v.SetDefault("storage.auth_mechanism", cfg.Storage.AuthMechanism)
	v.SetDefault("storage.auth_source", cfg.Storage.AuthSource)
	v.SetDefault("storage.database", cfg.Storage.Database)
	v.SetDefault("storage.connect_timeout", cfg.Storage.ConnectTimeout)
	v.SetDefault("storage.operation_timeout", cfg.Storage.OperationTimeout)

	for key, kv := range map[string]KeyValueConfig{"cache": cfg.Cache, "state": cfg.State} {
		v.SetDefault(key+".url", kv.URL)
		v.SetDefault(key+".host", kv.Host)
		v.SetDefault(key+".port", kv.Port)
		v.SetDefault(key+".db", kv.DB)
		v.SetDefault(key+".password", kv.Password)
		v.SetDefault(key+".max_conns", kv.MaxConns)
		v.SetDefault(key+".operation_timeout", kv.OperationTimeout)
		v.SetDefault(key+".ttl", kv.TTL)
	}

	v.SetDefault("tracing.enabled", cfg.Tracing.Enabled)
	v.SetDefault("tracing.endpoint", cfg.Tracing.Endpoint)
	v.SetDefault("tracing.sample_rate", cfg.Tracing.SampleRate)

	v.SetDefault("pagination.per_page", cfg.Pagination.PerPage)
}

// Validate validates the configuration and returns every problem found.
func (l *ViperLoader) Validate(cfg *Config) error {
	var errs []error

	cfg.Service.Name = strings.TrimSpace(cfg.Service.Name)
	if cfg.Service.Name == "" {
		errs = append(errs, errors.New("service.name is required"))
	}

	if _, err := logger.ParseLogLevel(cfg.Logging.Level); err != nil {
		errs = append(errs, fmt.Errorf("logging.level: %w", err))
	}
	if _, err := logger.ParseLogFormat(cfg.Logging.Format); err != nil {
		errs = append(errs, fmt.Errorf("logging.format: %w", err))
	}

	if cfg.Storage.URL == "" && strings.TrimSpace(cfg.Storage.Host) == "" {
		errs = append(errs, errors.New("storage.url or storage.host is required"))
	}
	if cfg.Storage.URL != "" && !cfg.Storage.IsMemory() &&
		!strings.HasPrefix(cfg.Storage.URL, "mongodb://") && !strings.HasPrefix(cfg.Storage.URL, "mongodb+srv://") {
		errs = append(errs, fmt.Errorf("invalid storage.url scheme: %s (must be mongodb://, mongodb+srv:// or %s)", cfg.Storage.URL, MemoryStorageURL))
	}
	if err := validatePort("storage.port", cfg.Storage.Port); err != nil {
		errs = append(errs, err)
	}
	if strings.TrimSpace(cfg.Storage.Database) == "" {
		errs = append(errs, errors.New("storage.database is required"))
	}
	if cfg.Storage.ConnectTimeout < 0 || cfg.Storage.OperationTimeout < 0 {
		errs = append(errs, errors.New("storage timeouts must not be negative"))
	}

	for _, role := range []string{RoleCache, RoleState} {
		kv, _ := cfg.KeyValue(role)
		key := strings.ToLower(role)
		if kv.URL == "" && strings.TrimSpace(kv.Host) == "" {
			errs = append(errs, fmt.Errorf("%s.url or %s.host is required", key, key))
		}
		if kv.URL != "" && !strings.HasPrefix(kv.URL, "redis://") && !strings.HasPrefix(kv.URL, "rediss://") {
			errs = append(errs, fmt.Errorf("invalid %s.url scheme: %s (must be redis:// or rediss://)", key, kv.URL))
		}
		if err := validatePort(key+".port", kv.Port); err != nil {
			errs = append(errs, err)
		}
		if kv.DB < 0 {
			errs = append(errs, fmt.Errorf("%s.db must not be negative", key))
		}
		if kv.MaxConns < 0 {
			errs = append(errs, fmt.Errorf("%s.max_conns must not be negative", key))
		}
		if kv.TTL < 0 {
			errs = append(errs, fmt.Errorf("%s.ttl must not be negative", key))
		}
	}

	if cfg.Tracing.Enabled && strings.TrimSpace(cfg.Tracing.Endpoint) == "" {
		errs = append(errs, errors.New("tracing.endpoint is required when tracing is enabled"))
	}
	if cfg.Tracing.SampleRate < 0 || cfg.Tracing.SampleRate > 1 {
		errs = append(errs, fmt.Errorf("tracing.sample_rate must be between 0 and 1, got %v", cfg.Tracing.SampleRate))
	}

	if cfg.Pagination.PerPage < 1 {
		errs = append(errs, fmt.Errorf("pagination.per_page must be at least 1, got %d", cfg.Pagination.PerPage))
	}

	return errors.Join(errs...)
}

func validatePort(key string, port int) error {
	if port < 0 || port > 65535 {
		return fmt.Errorf("invalid %s: %d (must be between 0 and 65535)", key, port)
	}
	return nil
}
