package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrPoolExhausted reports that every pooled connection was busy for the
// whole acquire timeout.
var ErrPoolExhausted = errors.New("store: connection pool exhausted")

// ErrPoolClosed reports an acquire against a drained pool.
var ErrPoolClosed = errors.New("store: connection pool closed")

// PoolConfig bounds a connection pool.
type PoolConfig struct {
	// MaxConns is the hard cap on simultaneously checked-out plus idle
	// connections. Default: 8.
	MaxConns int

	// MaxIdleConns is the soft cap on pooled idle connections. Releasing a
	// connection past this cap closes it instead of pooling it. Default: 4.
	MaxIdleConns int

	// AcquireTimeout bounds how long Acquire waits for a free slot before
	// failing with ErrPoolExhausted. Default: 2 seconds.
	AcquireTimeout time.Duration

	// OnExhausted, when set, is invoked once per acquire that fails with
	// ErrPoolExhausted. Used for metrics.
	OnExhausted func()
}

func (c *PoolConfig) applyDefaults() {
	if c.MaxConns <= 0 {
		c.MaxConns = 8
	}
	if c.MaxIdleConns <= 0 || c.MaxIdleConns > c.MaxConns {
		c.MaxIdleConns = min(4, c.MaxConns)
	}
	if c.AcquireTimeout <= 0 {
		c.AcquireTimeout = 2 * time.Second
	}
}

// ConnPool is an explicit bounded pool of SQLite connections over a shared
// *sql.DB handle. It exists so that callers see pool pressure directly:
// a full pool surfaces as ErrPoolExhausted at the caller instead of silent
// queueing inside database/sql.
type ConnPool struct {
	db     *sql.DB
	config PoolConfig
	logger *slog.Logger

	slots chan struct{}

	mu     sync.Mutex
	idle   []*sql.Conn
	closed bool
}

// NewConnPool builds a pool over an open database handle. The pool owns the
// connections it creates but not the handle itself.
func NewConnPool(db *sql.DB, config PoolConfig) *ConnPool {
	config.applyDefaults()
	db.SetMaxOpenConns(config.MaxConns)

	return &ConnPool{
		db:     db,
		config: config,
		logger: slog.Default().With("component", "store.pool"),
		slots:  make(chan struct{}, config.MaxConns),
	}
}

// Acquire checks out a connection, waiting up to the configured acquire
// timeout (bounded further by ctx). A full pool returns ErrPoolExhausted.
func (p *ConnPool) Acquire(ctx context.Context) (*sql.Conn, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	p.mu.Unlock()

	timer := time.NewTimer(p.config.AcquireTimeout)
	defer timer.Stop()

	select {
	case p.slots <- struct{}{}:
	case <-timer.C:
		if p.config.OnExhausted != nil {
			p.config.OnExhausted()
		}
		return nil, ErrPoolExhausted
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	// Slot held; hand out an idle connection or open a fresh one.
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		<-p.slots
		return nil, ErrPoolClosed
	}
	if n := len(p.idle); n > 0 {
		conn := p.idle[n-1]
		p.idle = p.idle[:n-1]
		p.mu.Unlock()
		return conn, nil
	}
	p.mu.Unlock()

	conn, err := p.db.Conn(ctx)
	if err != nil {
		<-p.slots
		return nil, fmt.Errorf("store: open pooled connection: %w", err)
	}
	return conn, nil
}

// Release returns a connection to the pool. Past the idle soft cap the
// connection is closed instead of pooled.
func (p *ConnPool) Release(conn *sql.Conn) {
	defer func() { <-p.slots }()

	p.mu.Lock()
	if !p.closed && len(p.idle) < p.config.MaxIdleConns {
		p.idle = append(p.idle, conn)
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	if err := conn.Close(); err != nil {
		p.logger.Warn("closing surplus connection failed", "error", err)
	}
}

// Discard closes a connection without pooling it, for callers that hit an
// error mid-use and cannot vouch for the connection's state.
func (p *ConnPool) Discard(conn *sql.Conn) {
	defer func() { <-p.slots }()
	conn.Close()
}

// DrainAll closes every idle connection and marks the pool closed. Checked
// out connections are closed as they come back through Release or Discard.
func (p *ConnPool) DrainAll() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	idle := p.idle
	p.idle = nil
	p.mu.Unlock()

	var firstErr error
	for _, conn := range idle {
		if err := conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	p.logger.Info("connection pool drained", "idle_closed", len(idle))
	return firstErr
}

// ReleaseIdle closes pooled idle connections without closing the pool and
// reports how many were closed. Checked-out connections are untouched.
func (p *ConnPool) ReleaseIdle() int {
	p.mu.Lock()
	idle := p.idle
	p.idle = nil
	p.mu.Unlock()

	for _, conn := range idle {
		conn.Close()
	}
	return len(idle)
}

// InUse reports the number of currently checked-out connections.
func (p *ConnPool) InUse() int {
	return len(p.slots)
}

// IdleLen reports the number of pooled idle connections.
func (p *ConnPool) IdleLen() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle)
}

// PoolRegistry hands out one pool per database path. It is an injected
// dependency of the stores rather than process-global state, so tests and
// embedders can run isolated registries side by side.
type PoolRegistry struct {
	config PoolConfig

	mu    sync.Mutex
	pools map[string]*ConnPool
	dbs   map[string]*sql.DB
}

// NewPoolRegistry builds a registry applying config to every pool it opens.
func NewPoolRegistry(config PoolConfig) *PoolRegistry {
	config.applyDefaults()
	return &PoolRegistry{
		config: config,
		pools:  make(map[string]*ConnPool),
		dbs:    make(map[string]*sql.DB),
	}
}

// Pool returns the pool for a database path, opening it on first use with
// the given driver.
func (r *PoolRegistry) Pool(driver, path string) (*ConnPool, error) {
	key := driver + "\x00" + path

	r.mu.Lock()
	defer r.mu.Unlock()

	if pool, ok := r.pools[key]; ok {
		return pool, nil
	}

	db, err := sql.Open(driver, path)
	if err != nil {
		return nil, fmt.Errorf("store: open database %q: %w", path, err)
	}
	pool := NewConnPool(db, r.config)
	r.pools[key] = pool
	r.dbs[key] = db
	return pool, nil
}

// ReleaseIdle closes idle connections across every registered pool and
// reports the total closed. Pools stay open.
func (r *PoolRegistry) ReleaseIdle() int {
	r.mu.Lock()
	pools := make([]*ConnPool, 0, len(r.pools))
	for _, pool := range r.pools {
		pools = append(pools, pool)
	}
	r.mu.Unlock()

	closed := 0
	for _, pool := range pools {
		closed += pool.ReleaseIdle()
	}
	return closed
}

// DrainAll drains every registered pool and closes the underlying handles.
func (r *PoolRegistry) DrainAll() error {
	r.mu.Lock()
	pools := r.pools
	dbs := r.dbs
	r.pools = make(map[string]*ConnPool)
	r.dbs = make(map[string]*sql.DB)
	r.mu.Unlock()

	var firstErr error
	for key, pool := range pools {
		if err := pool.DrainAll(); err != nil && firstErr == nil {
			firstErr = err
		}
		if db := dbs[key]; db != nil {
			if err := db.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
