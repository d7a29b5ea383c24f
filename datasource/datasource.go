// Package datasource provides a switchable primary/replica datasource.
// Connections are lazy: they are bound to the pool pair that is current
// when they are created and acquire a physical connection from the
// primary or the replica pool on their first statement. Applying a new
// configuration swaps in a new pair and drains the old one in the
// background.
package datasource

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gaborage/go-sqlmapper/config"
	"github.com/gaborage/go-sqlmapper/database/types"
	"github.com/gaborage/go-sqlmapper/internal/tracking"
	"github.com/gaborage/go-sqlmapper/logger"
)

var (
	// ErrNotConfigured is returned for connections requested before any configuration was applied.
	ErrNotConfigured = errors.New("datasource: no configuration applied")
	// ErrClosed is returned once the datasource is closed.
	ErrClosed = errors.New("datasource: closed")
)

// Option configures a DynamicDataSource.
type Option func(*DynamicDataSource)

// WithOpener registers opener for driver, replacing a built-in one.
func WithOpener(driver string, opener Opener) Option {
	return func(d *DynamicDataSource) {
		d.openers[strings.ToLower(driver)] = opener
	}
}

// WithTracking reports pool statistics through tc.
func WithTracking(tc *tracking.Context) Option {
	return func(d *DynamicDataSource) {
		d.tracking = tc
	}
}

// DynamicDataSource hands out lazy connections bound to the current pool
// pair. It is safe for concurrent use.
type DynamicDataSource struct {
	log      logger.Logger
	openers  map[string]Opener
	tracking *tracking.Context

	mu         sync.Mutex
	closed     bool
	current    atomic.Pointer[pair]
	generation atomic.Uint64
	retiring   sync.WaitGroup
}

// New creates an unconfigured datasource. Apply must be called before
// connections can be handed out.
func New(log logger.Logger, opts ...Option) *DynamicDataSource {
	d := &DynamicDataSource{
		log:     log,
		openers: DefaultOpeners(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Apply builds a pool pair for cfg and makes it current. The previous pair
// is drained and closed in the background. When the new pair cannot be
// built the current one stays in place.
func (d *DynamicDataSource) Apply(ctx context.Context, cfg config.DataSourceConfig) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrClosed
	}

	generation := d.generation.Load() + 1
	next, err := d.open(ctx, cfg, generation)
	if err != nil {
		d.log.Error().Err(err).
			Str("datasource", cfg.Name).
			Str("driver", cfg.Driver).
			Str("masterurl", cfg.MasterURL).
			Msg("Failed to build datasource, keeping current one")
		return err
	}

	previous := d.current.Swap(next)
	d.generation.Store(generation)

	d.log.Info().
		Str("datasource", cfg.Name).
		Str("driver", cfg.Driver).
		Str("masterurl", cfg.MasterURL).
		Str("slaveurl", cfg.ReplicaURL()).
		Uint64("generation", generation).
		Msg("Datasource applied")

	if previous != nil {
		d.retiring.Add(1)
		go func() {
			defer d.retiring.Done()
			d.retire(previous)
		}()
	}
	return nil
}

// Listener adapts Apply to a configuration change callback such as the
// one taken by config.Watch. Failures are logged by Apply.
func (d *DynamicDataSource) Listener(ctx context.Context) func(*config.Config) {
	return func(cfg *config.Config) {
		_ = d.Apply(ctx, cfg.DataSource)
	}
}

func (d *DynamicDataSource) open(ctx context.Context, cfg config.DataSourceConfig, generation uint64) (*pair, error) {
	opener, ok := d.openers[strings.ToLower(cfg.Driver)]
	if !ok {
		return nil, fmt.Errorf("no opener registered for driver %q", cfg.Driver)
	}

	primary, err := d.openPool(ctx, opener, cfg, cfg.MasterURL, "primary")
	if err != nil {
		return nil, err
	}
	replica, err := d.openPool(ctx, opener, cfg, cfg.ReplicaURL(), "replica")
	if err != nil {
		if closeErr := primary.Close(); closeErr != nil {
			d.log.Error().Err(closeErr).Str("datasource", cfg.Name).Msg("Failed to close primary pool after replica failure")
		}
		return nil, err
	}

	p := newPair(cfg, generation, opener, primary, replica)
	p.unregister = []func(){
		d.tracking.RegisterPool(cfg.Name, "primary", primary),
		d.tracking.RegisterPool(cfg.Name, "replica", replica),
	}
	return p, nil
}

func (d *DynamicDataSource) openPool(ctx context.Context, opener Opener, cfg config.DataSourceConfig, url, role string) (*sql.DB, error) {
	db, err := opener(url, cfg.Username, cfg.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s pool: %w", role, err)
	}
	configurePool(db, cfg.Pool)
	if err := pingPool(ctx, db, cfg.Pool); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			d.log.Error().Err(closeErr).Str("datasource", cfg.Name).Str("role", role).Msg("Failed to close pool after ping failure")
		}
		return nil, fmt.Errorf("failed to ping %s pool: %w", role, err)
	}
	return db, nil
}

// retire waits for the in-flight connections of p, bounded by the drain
// timeout, and closes its pools.
func (d *DynamicDataSource) retire(p *pair) {
	drained := p.retire()

	if timeout := p.cfg.DrainTimeout; timeout > 0 {
		timer := time.NewTimer(timeout)
		select {
		case <-drained:
			timer.Stop()
		case <-timer.C:
			d.log.Warn().
				Str("datasource", p.cfg.Name).
				Uint64("generation", p.generation).
				Int("in_use", p.inUse()).
				Int("bound", p.boundConns()).
				Dur("drain_timeout", timeout).
				Msg("Drain timeout exceeded, closing pools with connections in use")
		}
	}

	if err := p.close(); err != nil {
		d.log.Error().Err(err).
			Str("datasource", p.cfg.Name).
			Uint64("generation", p.generation).
			Msg("Failed to close retired datasource")
		return
	}
	d.log.Info().
		Str("datasource", p.cfg.Name).
		Uint64("generation", p.generation).
		Msg("Retired datasource closed")
}

// Conn returns a lazy connection on the current pair using the configured
// credentials. route is consulted when the connection resolves; nil routes
// to the primary.
func (d *DynamicDataSource) Conn(route types.RouteSource) (*LazyConnection, error) {
	return d.conn(route, nil)
}

// ConnWithCredentials is Conn with per-user pools opened on demand.
func (d *DynamicDataSource) ConnWithCredentials(route types.RouteSource, username, password string) (*LazyConnection, error) {
	return d.conn(route, &credentials{username: username, password: password})
}

func (d *DynamicDataSource) conn(route types.RouteSource, creds *credentials) (*LazyConnection, error) {
	for {
		p := d.current.Load()
		if p == nil {
			d.mu.Lock()
			closed := d.closed
			d.mu.Unlock()
			if closed {
				return nil, ErrClosed
			}
			return nil, ErrNotConfigured
		}
		// a pair swapped out and drained since the load cannot take new connections
		if unbind, ok := p.bind(); ok {
			return newLazyConnection(p, unbind, route, creds, d.log), nil
		}
	}
}

// Generation counts successful Apply calls.
func (d *DynamicDataSource) Generation() uint64 {
	return d.generation.Load()
}

// Driver returns the driver of the current configuration, or "".
func (d *DynamicDataSource) Driver() string {
	if p := d.current.Load(); p != nil {
		return p.cfg.Driver
	}
	return ""
}

// Close retires the current pair and waits, until ctx is done, for every
// retired pair to be closed.
func (d *DynamicDataSource) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	if previous := d.current.Swap(nil); previous != nil {
		d.retiring.Add(1)
		go func() {
			defer d.retiring.Done()
			d.retire(previous)
		}()
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.retiring.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("datasource close: %w", ctx.Err())
	}
}
