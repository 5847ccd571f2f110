// Package researchflow provides a top-level convenience entry point for
// wiring the control loop with minimal boilerplate.
//
// Usage:
//
//	import "github.com/BaSui01/researchflow"
//
//	rt, err := researchflow.New(researchflow.WithConfigPath("config.yaml"))
//	ctrl, err := researchflow.NewController(rt, loop.ControllerConfig[Unit, Result]{...})
//	report, err := ctrl.Run(ctx, loop.Request{Goal: "check ferry schedules", AvailableBudget: 10000})
//
// New resolves configuration (defaults → YAML → env), builds the zap
// logger, the budget governor, the breaker registry, the configured
// checkpoint store and the evaluator, and bundles them as a Runtime.
package researchflow

import (
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/researchflow/breaker"
	"github.com/BaSui01/researchflow/budget"
	"github.com/BaSui01/researchflow/config"
	"github.com/BaSui01/researchflow/evaluate"
	"github.com/BaSui01/researchflow/internal/metrics"
	"github.com/BaSui01/researchflow/loop"
	"github.com/BaSui01/researchflow/stream"
	"github.com/BaSui01/researchflow/types"
)

// Option configures the runtime created by New.
type Option func(*options)

type options struct {
	configPath       string
	cfg              *config.Config
	logger           *zap.Logger
	redisClient      *redis.Client
	store            stream.Store
	metricsNamespace string
}

// WithConfigPath loads configuration from the given YAML file
// (environment variables still override it).
func WithConfigPath(path string) Option {
	return func(o *options) { o.configPath = path }
}

// WithConfig sets a pre-built configuration, skipping the loader.
func WithConfig(cfg *config.Config) Option {
	return func(o *options) { o.cfg = cfg }
}

// WithLogger sets a custom zap logger. Defaults to one built from the
// resolved log configuration.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithRedisClient injects a pre-built Redis client for the redis
// checkpoint store, overriding the address from configuration.
func WithRedisClient(client *redis.Client) Option {
	return func(o *options) { o.redisClient = client }
}

// WithStore sets a pre-built checkpoint store, overriding the
// store selection from configuration.
func WithStore(store stream.Store) Option {
	return func(o *options) { o.store = store }
}

// WithMetricsNamespace enables the Prometheus collector under the given
// namespace. Metrics are off by default.
func WithMetricsNamespace(namespace string) Option {
	return func(o *options) { o.metricsNamespace = namespace }
}

// Runtime bundles the shared components of the control loop.
type Runtime struct {
	Config    *config.Config
	Logger    *zap.Logger
	Governor  *budget.Governor
	Breakers  *breaker.Registry
	Store     stream.Store
	Evaluator *evaluate.Evaluator
	Metrics   *metrics.Collector
}

// Deps adapts the runtime for loop.NewController.
func (rt *Runtime) Deps() loop.Deps {
	return loop.Deps{
		Governor:  rt.Governor,
		Breakers:  rt.Breakers,
		Store:     rt.Store,
		Evaluator: rt.Evaluator,
		Metrics:   rt.Metrics,
		Logger:    rt.Logger,
	}
}

// NewController creates a run controller on top of a runtime.
// Lives here (not as a Runtime method) because Go methods cannot carry
// type parameters.
func NewController[U, R any](rt *Runtime, cfg loop.ControllerConfig[U, R]) (*loop.Controller[U, R], error) {
	return loop.NewController(rt.Deps(), cfg)
}

// New builds a Runtime from configuration and options.
func New(opts ...Option) (*Runtime, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	cfg := o.cfg
	if cfg == nil {
		loaded, err := config.NewLoader().WithConfigPath(o.configPath).Load()
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}
	if err := cfg.Validate(); err != nil {
		return nil, types.NewError(types.ErrInvalidConfig, "configuration rejected").WithCause(err)
	}

	logger := o.logger
	if logger == nil {
		built, err := buildLogger(cfg.Log)
		if err != nil {
			return nil, fmt.Errorf("build logger: %w", err)
		}
		logger = built
	}

	store := o.store
	if store == nil {
		built, err := buildStore(cfg, o.redisClient, logger)
		if err != nil {
			return nil, err
		}
		store = built
	}

	var collector *metrics.Collector
	if o.metricsNamespace != "" {
		collector = metrics.NewCollector(o.metricsNamespace, logger)
	}

	allocations := budget.AllocationsFromTotals(
		cfg.Budget.QuickTokens, cfg.Budget.StandardTokens, cfg.Budget.DeepTokens)

	return &Runtime{
		Config:    cfg,
		Logger:    logger,
		Governor:  budget.NewGovernor(allocations, logger),
		Breakers:  breaker.NewRegistry(breakerConfigs(cfg), breaker.DefaultConfig(), logger),
		Store:     store,
		Evaluator: evaluate.NewEvaluator(evaluatorConfig(cfg), logger),
		Metrics:   collector,
	}, nil
}

func breakerConfigs(cfg *config.Config) map[string]breaker.Config {
	configs := make(map[string]breaker.Config, len(cfg.Breakers))
	for name, b := range cfg.Breakers {
		configs[name] = breaker.Config{
			BaseTimeout:   b.BaseTimeout,
			MaxRetries:    b.MaxRetries,
			BackoffFactor: b.BackoffFactor,
			RetryDelay:    b.RetryDelay,
		}
	}
	return configs
}

func evaluatorConfig(cfg *config.Config) evaluate.Config {
	return evaluate.Config{
		MinSources:    cfg.Evaluator.MinSources,
		MinConfidence: cfg.Evaluator.MinConfidence,
		MaxPasses:     cfg.Evaluator.MaxPasses,
		SampleSize:    cfg.Evaluator.SampleSize,
	}
}

func buildStore(cfg *config.Config, client *redis.Client, logger *zap.Logger) (stream.Store, error) {
	switch cfg.Checkpoint.Store {
	case "memory":
		return stream.NewMemoryStore(), nil
	case "redis":
		if client == nil {
			client = redis.NewClient(&redis.Options{
				Addr:         cfg.Redis.Addr,
				Password:     cfg.Redis.Password,
				DB:           cfg.Redis.DB,
				PoolSize:     cfg.Redis.PoolSize,
				MinIdleConns: cfg.Redis.MinIdleConns,
			})
		}
		return stream.NewRedisStore(client, cfg.Checkpoint.KeyPrefix, cfg.Checkpoint.TTL, logger), nil
	case "sqlite":
		return stream.NewSQLiteStore(cfg.Checkpoint.SQLitePath, logger)
	default:
		return nil, types.NewError(types.ErrInvalidConfig,
			fmt.Sprintf("unknown checkpoint store %q", cfg.Checkpoint.Store))
	}
}

func buildLogger(cfg config.LogConfig) (*zap.Logger, error) {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", cfg.Level, err)
	}
	zapCfg.Level = level
	if len(cfg.OutputPaths) > 0 {
		zapCfg.OutputPaths = cfg.OutputPaths
	}
	zapCfg.DisableCaller = !cfg.EnableCaller
	zapCfg.DisableStacktrace = !cfg.EnableStacktrace

	return zapCfg.Build()
}
