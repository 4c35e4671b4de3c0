package cli

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"

	"github.com/nimburion/flowstore/pkg/config"
	"github.com/nimburion/flowstore/pkg/inmemory"
	"github.com/nimburion/flowstore/pkg/journey"
	"github.com/nimburion/flowstore/pkg/observability/logger"
	"github.com/nimburion/flowstore/pkg/observability/metrics"
	"github.com/nimburion/flowstore/pkg/observability/tracing"
	"github.com/nimburion/flowstore/pkg/repository/document"
	"github.com/nimburion/flowstore/pkg/store"
	"github.com/nimburion/flowstore/pkg/version"
)

// environment carries what every subcommand needs to open a session.
type environment struct {
	opts  Options
	flags *rootFlags
}

func (e *environment) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.NewViperLoader(e.flags.configFile, e.flags.envPrefix).WithFlags(cmd.Flags()).Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// session is one command invocation: configuration, logger, stores and telemetry.
type session struct {
	cfg      *config.Config
	log      logger.Logger
	provider *store.Provider

	registry   *metrics.Registry
	repository *metrics.RepositoryMetrics
	keyValue   *metrics.KeyValueMetrics
	tracer     *tracing.TracerProvider

	ownsProvider bool
	printMetrics bool
	cmd          *cobra.Command
}

// open loads configuration and prepares a session. The command context gains a request
// id picked up by every log line of the invocation.
func (e *environment) open(cmd *cobra.Command) (*session, context.Context, error) {
	cfg, err := e.loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}

	zl, err := logger.NewZapLogger(logger.Config{
		Level:  logger.LogLevel(cfg.Logging.Level),
		Format: logger.LogFormat(cfg.Logging.Format),
		Output: cmd.ErrOrStderr(),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create logger: %w", err)
	}
	log := zl.With("service", cfg.Service.Name, "command", cmd.CommandPath())

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = logger.ContextWithRequestID(ctx, uuid.NewString())

	s := &session{
		cfg:          cfg,
		log:          log,
		registry:     metrics.NewRegistry(),
		printMetrics: e.flags.printMetrics,
		cmd:          cmd,
	}
	if s.repository, err = metrics.NewRepositoryMetrics(s.registry); err != nil {
		return nil, nil, err
	}
	if s.keyValue, err = metrics.NewKeyValueMetrics(s.registry); err != nil {
		return nil, nil, err
	}

	if cfg.Tracing.Enabled {
		s.tracer, err = tracing.NewTracerProvider(ctx, tracing.TracerConfig{
			ServiceName:    cfg.Service.Name,
			ServiceVersion: version.Current(cfg.Service.Name).Version,
			Environment:    cfg.Service.Environment,
			Endpoint:       cfg.Tracing.Endpoint,
			SampleRate:     cfg.Tracing.SampleRate,
			Enabled:        true,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("create tracer provider: %w", err)
		}
	}

	if e.opts.Provider != nil {
		s.provider = e.opts.Provider
	} else {
		if s.provider, err = store.NewProvider(cfg, log); err != nil {
			return nil, nil, err
		}
		s.ownsProvider = true
	}

	log.WithContext(ctx).Debug("session opened", "config", cfg.Redacted())
	return s, ctx, nil
}

// close releases the stores and flushes telemetry.
func (s *session) close(ctx context.Context) {
	if s.ownsProvider {
		if err := s.provider.Close(); err != nil {
			s.log.Warn("failed to close stores", "error", err)
		}
	}
	if s.tracer != nil {
		if err := s.tracer.Shutdown(context.WithoutCancel(ctx)); err != nil {
			s.log.Warn("failed to flush traces", "error", err)
		}
	}
	if s.printMetrics {
		if err := s.writeMetrics(); err != nil {
			s.log.Warn("failed to write metrics", "error", err)
		}
	}
}

func (s *session) writeMetrics() error {
	families, err := s.registry.Gatherer().Gather()
	if err != nil {
		return err
	}
	sort.Slice(families, func(i, j int) bool { return families[i].GetName() < families[j].GetName() })
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(s.cmd.ErrOrStderr(), mf); err != nil {
			return err
		}
	}
	return nil
}

func (s *session) crudOptions() []document.Option {
	return []document.Option{
		document.WithLogger(s.log),
		document.WithMetrics(s.repository),
		document.WithDefaultPerPage(s.cfg.Pagination.PerPage),
	}
}

func (s *session) keyValueOptions(role string) []inmemory.Option {
	return []inmemory.Option{
		inmemory.WithLogger(s.log),
		inmemory.WithMetrics(s.keyValue),
		inmemory.WithTTL(s.provider.TTL(role)),
	}
}

// records returns the repository of a subject. The journey customer subject gets its own
// repository so deletions evict its cache entries.
func (s *session) records(ctx context.Context, database, subject string) (*recordSet, error) {
	if database == "" {
		database = s.cfg.Storage.Database
	}
	coll, err := s.provider.Collection(ctx, database, subject)
	if err != nil {
		return nil, err
	}

	if database == journey.Database && subject == journey.CustomerSubject {
		cache, err := s.provider.KeyValue(ctx, config.RoleCache)
		if err != nil {
			return nil, err
		}
		repo, err := journey.NewCustomerRepository(coll, cache, s.log,
			journey.WithCrudOptions(s.crudOptions()...),
			journey.WithCacheOptions(s.keyValueOptions(config.RoleCache)...),
		)
		if err != nil {
			return nil, err
		}
		return &recordSet{CrudBase: repo.CrudBase, customers: repo}, nil
	}

	resource, err := document.NewResource(database, subject, false)
	if err != nil {
		return nil, err
	}
	crud, err := document.NewCrudBase(resource, coll, s.crudOptions()...)
	if err != nil {
		return nil, err
	}
	return &recordSet{CrudBase: crud}, nil
}

type recordSet struct {
	*document.CrudBase
	customers *journey.CustomerRepository
}

func (r *recordSet) get(ctx context.Context, id string, projection []string) (document.Document, error) {
	if r.customers != nil && len(projection) == 0 {
		return r.customers.CachedFindOne(ctx, id)
	}
	return r.FindOne(ctx, id, projection)
}
