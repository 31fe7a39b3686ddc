package dbpool

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/puddle/v2"
)

// Kind classifies database failures for logs and metrics.
type Kind string

const (
	KindAcquireTimeout Kind = "acquire_timeout"
	KindConnection     Kind = "connection"
	KindAuth           Kind = "auth"
	KindQuery          Kind = "query"
	KindCanceled       Kind = "canceled"
	KindClosed         Kind = "closed"
	KindConfig         Kind = "config"
	KindUnknown        Kind = "unknown"
)

// SQLSTATE classes, see https://www.postgresql.org/docs/current/errcodes-appendix.html
const (
	pgClassConnection = "08"
	pgClassAuth       = "28"
	pgInvalidCatalog  = "3D000"
)

// ConstructionError reports that the pool could not be built. It never
// carries the password.
type ConstructionError struct {
	Host     string
	Port     int
	Database string
	Kind     Kind
	Err      error
}

func (e *ConstructionError) Error() string {
	return fmt.Sprintf("dbpool: construct pool for %s/%s (%s): %v",
		net.JoinHostPort(e.Host, strconv.Itoa(e.Port)), e.Database, e.Kind, e.Err)
}

func (e *ConstructionError) Unwrap() error { return e.Err }

// QueryError reports a failed borrow/execute/release cycle.
type QueryError struct {
	Kind      Kind
	Statement string
	Err       error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("dbpool: %s: %s: %v", e.Statement, e.Kind, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

// KindOf returns the Kind carried by err, or KindUnknown.
func KindOf(err error) Kind {
	var qe *QueryError
	if errors.As(err, &qe) {
		return qe.Kind
	}
	var ce *ConstructionError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindUnknown
}

// classify maps pgx, pgconn and context errors onto a Kind.
func classify(err error) Kind {
	if err == nil {
		return ""
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case len(pgErr.Code) >= 2 && pgErr.Code[:2] == pgClassConnection:
			return KindConnection
		case len(pgErr.Code) >= 2 && pgErr.Code[:2] == pgClassAuth, pgErr.Code == pgInvalidCatalog:
			return KindAuth
		default:
			return KindQuery
		}
	}

	if errors.Is(err, puddle.ErrClosedPool) {
		return KindClosed
	}
	// a dial that ran out of time is still a connection failure
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return KindConnection
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindCanceled
	}

	var netErr net.Error
	if errors.As(err, &netErr) || pgconn.Timeout(err) {
		return KindConnection
	}

	return KindUnknown
}
