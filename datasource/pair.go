package datasource

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/gaborage/go-sqlmapper/config"
	"github.com/gaborage/go-sqlmapper/database/types"
)

var errPairClosed = errors.New("datasource pair closed")

// credentials select per-user pools instead of the configured account.
type credentials struct {
	username string
	password string
}

// pair is one generation of primary and replica pools. It counts the
// lazy connections bound to it and the physical connections checked out
// of it so a replaced pair can be drained before its pools are closed.
type pair struct {
	cfg        config.DataSourceConfig
	generation uint64
	opener     Opener
	primary    *sql.DB
	replica    *sql.DB
	unregister []func()

	mu        sync.Mutex
	active    int
	bound     int
	retired   bool
	closed    bool
	drained   chan struct{}
	signalled bool
	byUser    map[string]*sql.DB
	userPool  singleflight.Group
}

func newPair(cfg config.DataSourceConfig, generation uint64, opener Opener, primary, replica *sql.DB) *pair {
	return &pair{
		cfg:        cfg,
		generation: generation,
		opener:     opener,
		primary:    primary,
		replica:    replica,
		drained:    make(chan struct{}),
		byUser:     map[string]*sql.DB{},
	}
}

// pool returns the pool serving the route, opening a per-user pool on
// first use when creds are given.
func (p *pair) pool(ctx context.Context, replica bool, creds *credentials) (*sql.DB, error) {
	if creds == nil {
		if replica {
			return p.replica, nil
		}
		return p.primary, nil
	}

	key := types.RouteName(replica) + "\x00" + creds.username + "\x00" + creds.password
	p.mu.Lock()
	db, ok := p.byUser[key]
	p.mu.Unlock()
	if ok {
		return db, nil
	}

	v, err, _ := p.userPool.Do(key, func() (any, error) {
		p.mu.Lock()
		if db, ok := p.byUser[key]; ok {
			p.mu.Unlock()
			return db, nil
		}
		p.mu.Unlock()

		url := p.cfg.MasterURL
		if replica {
			url = p.cfg.ReplicaURL()
		}
		db, err := p.opener(url, creds.username, creds.password)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s pool for user %s: %w", types.RouteName(replica), creds.username, err)
		}
		configurePool(db, p.cfg.Pool)
		if err := pingPool(ctx, db, p.cfg.Pool); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to ping %s pool for user %s: %w", types.RouteName(replica), creds.username, err)
		}

		p.mu.Lock()
		defer p.mu.Unlock()
		if p.closed {
			_ = db.Close()
			return nil, errPairClosed
		}
		p.byUser[key] = db
		return db, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*sql.DB), nil
}

// acquire checks out a physical connection. The returned release must be
// called once the connection is returned to its pool.
func (p *pair) acquire(ctx context.Context, replica bool, creds *credentials) (*sql.Conn, func(), error) {
	db, err := p.pool(ctx, replica, creds)
	if err != nil {
		return nil, nil, err
	}

	p.mu.Lock()
	p.active++
	p.mu.Unlock()

	var once sync.Once
	release := func() { once.Do(p.release) }

	conn, err := db.Conn(ctx)
	if err != nil {
		release()
		return nil, nil, err
	}
	return conn, release, nil
}

func (p *pair) release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.active--
	p.signalDrained()
}

// bind registers a lazy connection on the pair. It fails once the pair
// has drained, as its pools are about to close. The returned unbind must
// be called when the lazy connection is closed.
func (p *pair) bind() (func(), bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.signalled || p.closed {
		return nil, false
	}
	p.bound++

	var once sync.Once
	return func() { once.Do(p.unbind) }, true
}

func (p *pair) unbind() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bound--
	p.signalDrained()
}

// signalDrained closes drained once a retired pair has nothing in use.
// Callers hold mu.
func (p *pair) signalDrained() {
	if p.retired && p.active == 0 && p.bound == 0 && !p.signalled {
		p.signalled = true
		close(p.drained)
	}
}

// inUse returns the number of physical connections checked out of the pair.
func (p *pair) inUse() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// boundConns returns the number of open lazy connections bound to the pair.
func (p *pair) boundConns() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.bound
}

// retire marks the pair as replaced. The returned channel is closed once
// every bound lazy connection is closed and every checked out connection
// has been released.
func (p *pair) retire() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.retired = true
	p.signalDrained()
	return p.drained
}

// close closes every pool of the pair concurrently.
func (p *pair) close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	pools := []*sql.DB{p.primary, p.replica}
	for _, db := range p.byUser {
		pools = append(pools, db)
	}
	unregister := p.unregister
	p.mu.Unlock()

	for _, fn := range unregister {
		fn()
	}

	var g errgroup.Group
	for _, db := range pools {
		if db == nil {
			continue
		}
		g.Go(db.Close)
	}
	return g.Wait()
}
