// Package app provides the application context and dependency wiring for
// the meterwatch CLI: configuration, logging, the catalog client, the
// database sink, and the run orchestrator.
package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/meterwatch/meterwatch/internal/aggregate"
	"github.com/meterwatch/meterwatch/internal/ckan"
	"github.com/meterwatch/meterwatch/internal/metrics"
	"github.com/meterwatch/meterwatch/internal/run"
	"github.com/meterwatch/meterwatch/internal/store"
	"github.com/meterwatch/meterwatch/pkg/quality"
)

// App represents the meterwatch application with all its dependencies.
type App struct {
	version string
	commit  string
	date    string

	config *Config
	logger *zerolog.Logger

	metrics *metrics.Metrics

	mu      sync.Mutex
	catalog *ckan.Client
	db      *store.Postgres
}

// New creates a new App instance with the given version information.
func New(version, commit, date string, opts ...Option) (*App, error) {
	app := &App{
		version: version,
		commit:  commit,
		date:    date,
		metrics: metrics.New(),
	}

	config, err := LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	app.config = config

	logger := NewLogger(config)
	app.logger = &logger

	for _, opt := range opts {
		if err := opt(app); err != nil {
			return nil, err
		}
	}
	return app, nil
}

// Version returns the version string.
func (a *App) Version() string { return a.version }

// Config returns the application configuration.
func (a *App) Config() *Config { return a.config }

// Logger returns the application logger.
func (a *App) Logger() *zerolog.Logger { return a.logger }

// Metrics returns the process instrumentation.
func (a *App) Metrics() *metrics.Metrics { return a.metrics }

// Catalog returns the CKAN client, creating it on first use.
func (a *App) Catalog() (*ckan.Client, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.catalog != nil {
		return a.catalog, nil
	}
	if a.config.CatalogURL == "" {
		return nil, fmt.Errorf("catalog URL not configured (set CATALOG_URL or catalog_url)")
	}

	var opts []ckan.Option
	if a.config.CatalogUsername != "" {
		opts = append(opts, ckan.WithAuthenticator(&ckan.BasicAuth{
			Username: a.config.CatalogUsername,
			Password: a.config.CatalogPassword,
		}))
	}
	if a.config.CatalogAPIKey != "" {
		opts = append(opts, ckan.WithAuthenticator(ckan.APIKeyAuth(a.config.CatalogAPIKey)))
	}
	a.catalog = ckan.New(a.config.CatalogURL, opts...)
	return a.catalog, nil
}

// Database returns the Postgres store, connecting on first use.
func (a *App) Database(ctx context.Context) (*store.Postgres, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.db != nil {
		return a.db, nil
	}
	if a.config.DatabaseURL == "" {
		return nil, fmt.Errorf("database URL not configured (set DATABASE_URL or database_url)")
	}
	db, err := store.NewPostgres(ctx, a.config.DatabaseURL)
	if err != nil {
		return nil, err
	}
	a.db = db
	return db, nil
}

// Orchestrator wires a run orchestrator over the given sink. Extra
// options narrow the run, e.g. to one partition or one device.
func (a *App) Orchestrator(sink quality.Sink, opts ...run.OrchestratorOption) (*run.Orchestrator, error) {
	catalog, err := a.Catalog()
	if err != nil {
		return nil, err
	}

	profiles, err := quality.LoadProfiles(a.config.RulesFile)
	if err != nil {
		return nil, err
	}

	aggregator := aggregate.New(catalog,
		aggregate.WithMaxQueries(a.config.MaxPartitionQueries),
		aggregate.WithRetry(a.config.MaxRetries, a.config.RetryBackoff),
		aggregate.WithQueryTimeout(a.config.PartitionQueryTimeout),
	)
	evaluator := quality.NewEvaluator(quality.DefaultRegistry(a.config.StaleWindow, profiles), sink)
	reconciler := quality.NewReconciler(sink)

	options := append([]run.OrchestratorOption{
		run.WithMaxDevices(a.config.MaxConcurrentDevices),
		run.WithMetrics(a.metrics),
	}, opts...)
	return run.New(catalog, aggregator, evaluator, reconciler, sink, options...), nil
}

// Shutdown releases held resources.
func (a *App) Shutdown(_ context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.db != nil {
		a.db.Close()
		a.db = nil
	}
	return nil
}

// Option is a functional option for configuring the App.
type Option func(*App) error

// WithConfig sets a custom configuration.
func WithConfig(config *Config) Option {
	return func(a *App) error {
		a.config = config
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(a *App) error {
		a.logger = logger
		return nil
	}
}
