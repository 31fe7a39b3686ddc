// Package dbpool owns the process-wide PostgreSQL connection pool.
//
// The pool is built once by Open and shared by every request. Each call to
// Run borrows a single connection, executes one statement and releases that
// connection; the pool itself is only torn down by Close at shutdown.
package dbpool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/trace"

	"github.com/keithlinneman/dbprobe/internal/cfg"
	"github.com/keithlinneman/dbprobe/internal/log"
	"github.com/keithlinneman/dbprobe/internal/xerrors"
)

type Options struct {
	// Bound on the initial ping. Zero means DefaultConnectTimeout.
	ConnectTimeout time.Duration

	Logger log.Logger

	// Nil uses the global provider.
	TracerProvider trace.TracerProvider
}

func (o Options) withDefaults() Options {
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = DefaultConnectTimeout
	}
	if o.Logger == nil {
		o.Logger = log.Nop()
	}
	return o
}

// Pool is a bounded PostgreSQL pool. At most PoolSize+MaxOverflow
// connections exist at any time; connections opened above PoolSize are
// closed again as soon as they are released.
type Pool struct {
	pool   *pgxpool.Pool
	cfg    cfg.DB
	logger log.Logger
	keep   *keeper

	overflowClosed atomic.Int64
	closeOnce      sync.Once
}

// Result is the outcome of Open: either a usable pool or the reason there
// is none.
type Result struct {
	pool *Pool
	err  error
}

// Pool returns the pool, or nil and a *ConstructionError.
func (r Result) Pool() (*Pool, error) {
	if r.pool == nil && r.err == nil {
		return nil, &ConstructionError{Kind: KindUnknown, Err: xerrors.New("pool was never opened")}
	}
	return r.pool, r.err
}

func (r Result) OK() bool { return r.pool != nil }

func (r Result) Err() error {
	_, err := r.Pool()
	return err
}

// Close closes the pool if there is one.
func (r Result) Close() {
	if r.pool != nil {
		r.pool.Close()
	}
}

// Open builds the pool for d and verifies it with one ping. It never
// panics and never returns both a pool and an error.
func Open(ctx context.Context, d cfg.DB, opts Options) Result {
	opts = opts.withDefaults()

	fail := func(kind Kind, err error) Result {
		return Result{err: &ConstructionError{
			Host:     d.Host,
			Port:     d.Port,
			Database: d.Database,
			Kind:     kind,
			Err:      err,
		}}
	}

	pc, err := poolConfig(d)
	if err != nil {
		return fail(KindConfig, err)
	}

	p := &Pool{cfg: d, logger: opts.Logger, keep: newKeeper(d.PoolSize)}
	pc.AfterConnect = func(context.Context, *pgx.Conn) error {
		p.keep.opened()
		return nil
	}
	pc.AfterRelease = p.afterRelease
	pc.BeforeClose = p.keep.closed
	pc.ConnConfig.Tracer = newTracer(opts.TracerProvider)

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return fail(classify(err), xerrors.Wrap(err, "create pool"))
	}
	p.pool = pool

	pingCtx, cancel := context.WithTimeout(ctx, opts.ConnectTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return fail(classify(err), xerrors.Wrap(err, "initial ping"))
	}

	return Result{pool: p}
}

// afterRelease keeps a released connection only while the pool is within
// PoolSize.
func (p *Pool) afterRelease(c *pgx.Conn) bool {
	if p.keep.release(c) {
		return true
	}
	p.overflowClosed.Add(1)
	p.logger.Debug(context.Background(), "closing overflow connection", "pool_size", p.cfg.PoolSize)
	return false
}

// Run borrows one connection, executes st and releases the connection.
// Waiting for a connection is bounded by PoolTimeout.
func (p *Pool) Run(ctx context.Context, st Statement) (Rows, error) {
	if p == nil || p.pool == nil {
		return nil, &QueryError{Kind: KindClosed, Statement: st.Name, Err: xerrors.New("pool is not available")}
	}

	conn, kind, err := p.acquire(ctx)
	if err != nil {
		return nil, &QueryError{Kind: kind, Statement: st.Name, Err: err}
	}
	defer conn.Release()

	rows, err := read(ctx, conn, st)
	if err != nil {
		return nil, &QueryError{Kind: classify(err), Statement: st.Name, Err: xerrors.Wrapf(err, "execute %s", st.Name)}
	}
	return rows, nil
}

func (p *Pool) acquire(ctx context.Context) (*pgxpool.Conn, Kind, error) {
	actx, cancel := context.WithTimeout(ctx, p.cfg.PoolTimeout)
	defer cancel()

	conn, err := p.pool.Acquire(actx)
	if err == nil {
		return conn, "", nil
	}

	kind := classify(err)
	waitedOut := ctx.Err() == nil && errors.Is(actx.Err(), context.DeadlineExceeded)
	if waitedOut && (kind == KindCanceled || kind == KindConnection) {
		return nil, KindAcquireTimeout, xerrors.Wrapf(err, "no connection available within %s", p.cfg.PoolTimeout)
	}
	return nil, kind, xerrors.Wrap(err, "acquire connection")
}

func read(ctx context.Context, conn *pgxpool.Conn, st Statement) (Rows, error) {
	rows, err := conn.Query(ctx, st.SQL)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out Rows
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, err
		}
		out = append(out, vals)
		if st.Fetch == FetchOne {
			break
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Ping runs PingTables. Used by the readiness probe.
func (p *Pool) Ping(ctx context.Context) error {
	_, err := p.Run(ctx, PingTables)
	return err
}

// Stats is a point-in-time view of the pool.
type Stats struct {
	Total        int32
	Acquired     int32
	Idle         int32
	Constructing int32
	Max          int32

	AcquireCount         int64
	EmptyAcquireCount    int64
	CanceledAcquireCount int64
	AcquireDuration      time.Duration

	NewConns          int64
	LifetimeDestroyed int64
	IdleDestroyed     int64
	OverflowClosed    int64
}

func (p *Pool) Stats() Stats {
	if p == nil || p.pool == nil {
		return Stats{}
	}
	s := p.pool.Stat()
	return Stats{
		Total:                s.TotalConns(),
		Acquired:             s.AcquiredConns(),
		Idle:                 s.IdleConns(),
		Constructing:         s.ConstructingConns(),
		Max:                  s.MaxConns(),
		AcquireCount:         s.AcquireCount(),
		EmptyAcquireCount:    s.EmptyAcquireCount(),
		CanceledAcquireCount: s.CanceledAcquireCount(),
		AcquireDuration:      s.AcquireDuration(),
		NewConns:             s.NewConnsCount(),
		LifetimeDestroyed:    s.MaxLifetimeDestroyCount(),
		IdleDestroyed:        s.MaxIdleDestroyCount(),
		OverflowClosed:       p.overflowClosed.Load(),
	}
}

// Config returns the settings the pool was built from.
func (p *Pool) Config() cfg.DB { return p.cfg }

// Close closes every connection. Safe to call more than once.
func (p *Pool) Close() {
	if p == nil || p.pool == nil {
		return
	}
	p.closeOnce.Do(p.pool.Close)
}
