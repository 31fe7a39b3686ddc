package dbpool

import (
	"math"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/keithlinneman/dbprobe/internal/cfg"
	"github.com/keithlinneman/dbprobe/internal/version"
	"github.com/keithlinneman/dbprobe/internal/xerrors"
)

// DefaultConnectTimeout bounds the startup ping when Options leaves it unset.
const DefaultConnectTimeout = 5 * time.Second

// neverRecycle stands in for "no lifetime limit"; pgxpool treats zero as its own default.
const neverRecycle = time.Duration(math.MaxInt64)

// DSN renders the connection URL for d. The password is included, so the
// result must never be logged.
func DSN(d cfg.DB) string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   net.JoinHostPort(d.Host, strconv.Itoa(d.Port)),
		Path:   "/" + d.Database,
	}
	return u.String()
}

// poolConfig maps d onto a pgxpool.Config. Hooks and tracer are installed by Open.
func poolConfig(d cfg.DB) (*pgxpool.Config, error) {
	pc, err := pgxpool.ParseConfig(DSN(d))
	if err != nil {
		// pgconn errors may echo the connection string
		return nil, xerrors.New("parse connection config: malformed database settings")
	}

	pc.MaxConns = int32(d.MaxConns())
	pc.MinConns = 0
	if d.PoolRecycle > 0 {
		pc.MaxConnLifetime = d.PoolRecycle
	} else {
		pc.MaxConnLifetime = neverRecycle
	}
	pc.MaxConnLifetimeJitter = 0

	if pc.ConnConfig.RuntimeParams == nil {
		pc.ConnConfig.RuntimeParams = map[string]string{}
	}
	pc.ConnConfig.RuntimeParams["application_name"] = version.AppName

	return pc, nil
}
