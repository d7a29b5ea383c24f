// Package session executes mapped statements. An Engine is the shared,
// concurrency-safe composition of metadata, mapper declarations, the
// statement pipeline and the dynamic datasource. A Session is one logical
// unit of work opened from an Engine.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gaborage/go-sqlmapper/config"
	"github.com/gaborage/go-sqlmapper/crud"
	"github.com/gaborage/go-sqlmapper/datasource"
	"github.com/gaborage/go-sqlmapper/internal/tracking"
	"github.com/gaborage/go-sqlmapper/logger"
	"github.com/gaborage/go-sqlmapper/mapper"
	"github.com/gaborage/go-sqlmapper/mapping"
	"github.com/gaborage/go-sqlmapper/observability"
	"github.com/gaborage/go-sqlmapper/pipeline"
)

type options struct {
	dataSource   []datasource.Option
	interceptors []pipeline.Interceptor
}

// Option configures an Engine.
type Option func(*options)

// WithDataSourceOptions passes options to the dynamic datasource.
func WithDataSourceOptions(opts ...datasource.Option) Option {
	return func(o *options) {
		o.dataSource = append(o.dataSource, opts...)
	}
}

// WithInterceptors appends interceptors after the standard chain.
func WithInterceptors(interceptors ...pipeline.Interceptor) Option {
	return func(o *options) {
		o.interceptors = append(o.interceptors, interceptors...)
	}
}

// Engine holds everything sessions share. It is safe for concurrent use.
type Engine struct {
	cfg       *config.Config
	log       logger.Logger
	metadata  *mapping.Registry
	mappers   *mapper.Registry
	templates *crud.Templates
	chain     *pipeline.Pipeline
	ds        *datasource.DynamicDataSource
	tracking  *tracking.Context
	obs       observability.Provider

	mu         sync.RWMutex
	statements map[string]*pipeline.MappedStatement
}

// NewEngine composes an engine from cfg and applies its datasource. The
// interceptor chain is router, automap, pagination, page result, then any
// interceptors given through WithInterceptors. When observability is
// enabled its providers are installed before tracking is set up.
func NewEngine(ctx context.Context, cfg *config.Config, log logger.Logger, opts ...Option) (*Engine, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	metadata := mapping.NewRegistry(log, cfg.Mapping.CamelCase)
	mappers := mapper.NewRegistry(metadata, log)

	paginate, err := pipeline.NewPagination(cfg.Pagination.Dialect, log)
	if err != nil {
		return nil, err
	}
	interceptors := append([]pipeline.Interceptor{
		pipeline.NewRouter(),
		pipeline.NewAutoMap(mappers, log),
		paginate,
		pipeline.NewPageResult(),
	}, o.interceptors...)

	obs, err := observability.NewProvider(cfg.Observability, cfg.App, log)
	if err != nil {
		return nil, err
	}
	tc := tracking.New(log, cfg.DataSource.Driver, tracking.NewSettings(&cfg.Tracking))
	ds := datasource.New(log, append([]datasource.Option{datasource.WithTracking(tc)}, o.dataSource...)...)
	if err := ds.Apply(ctx, cfg.DataSource); err != nil {
		_ = observability.Shutdown(ctx, obs, observability.DefaultShutdownTimeout)
		return nil, fmt.Errorf("failed to apply datasource %s: %w", cfg.DataSource.Name, err)
	}

	e := &Engine{
		cfg:        cfg,
		log:        log,
		metadata:   metadata,
		mappers:    mappers,
		templates:  crud.New(cfg.Pagination.Dialect, metadata),
		chain:      pipeline.New(interceptors...),
		ds:         ds,
		tracking:   tc,
		obs:        obs,
		statements: map[string]*pipeline.MappedStatement{},
	}

	log.Info().
		Str("datasource", cfg.DataSource.Name).
		Str("dialect", cfg.Pagination.Dialect).
		Interface("interceptors", e.chain.Names()).
		Msg("Engine ready")
	return e, nil
}

// Register adds a CRUD mapper: its declaration and its statements.
func (e *Engine) Register(m crud.Mapper) error {
	return e.RegisterMapper(m.Spec, m.Statements...)
}

// RegisterMapper adds the declaration spec and statements. Nothing is
// registered when a statement id is already taken.
func (e *Engine) RegisterMapper(spec mapper.Spec, statements ...*pipeline.MappedStatement) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.checkIDs(statements); err != nil {
		return err
	}
	if len(spec.Methods) > 0 {
		if err := e.mappers.Register(spec); err != nil {
			return err
		}
	}
	for _, stmt := range statements {
		e.statements[stmt.ID] = stmt
	}
	return nil
}

// Add registers statements without mapper declarations.
func (e *Engine) Add(statements ...*pipeline.MappedStatement) error {
	return e.RegisterMapper(mapper.Spec{}, statements...)
}

func (e *Engine) checkIDs(statements []*pipeline.MappedStatement) error {
	seen := map[string]struct{}{}
	for _, stmt := range statements {
		if _, ok := e.statements[stmt.ID]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateStatement, stmt.ID)
		}
		if _, ok := seen[stmt.ID]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateStatement, stmt.ID)
		}
		seen[stmt.ID] = struct{}{}
	}
	return nil
}

// Statement returns the statement registered under id.
func (e *Engine) Statement(id string) (*pipeline.MappedStatement, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	stmt, ok := e.statements[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStatement, id)
	}
	return stmt, nil
}

// Config returns the configuration the engine was built from.
func (e *Engine) Config() *config.Config { return e.cfg }

// Templates returns the CRUD templates for the configured dialect.
func (e *Engine) Templates() *crud.Templates { return e.templates }

// Metadata returns the entity metadata registry.
func (e *Engine) Metadata() *mapping.Registry { return e.metadata }

// Mappers returns the mapper descriptor registry.
func (e *Engine) Mappers() *mapper.Registry { return e.mappers }

// DataSource returns the dynamic datasource.
func (e *Engine) DataSource() *datasource.DynamicDataSource { return e.ds }

// Interceptors lists the chain in execution order.
func (e *Engine) Interceptors() []string { return e.chain.Names() }

// Watch applies datasource changes of the configuration file at path.
func (e *Engine) Watch(ctx context.Context, path string) (*config.Watcher, error) {
	return config.Watch(path, e.log, e.ds.Listener(ctx))
}

// Open starts a session with a fresh unit of work.
func (e *Engine) Open() *Session {
	return &Session{engine: e, unit: pipeline.NewUnit()}
}

// Close closes the datasource, waiting until ctx is done for retired pools,
// and flushes pending telemetry within observability.DefaultShutdownTimeout.
func (e *Engine) Close(ctx context.Context) error {
	return errors.Join(e.ds.Close(ctx), observability.Shutdown(ctx, e.obs, observability.DefaultShutdownTimeout))
}
