package cfg

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"
)

// Environment variable names read by LoadDB.
const (
	EnvDBHost      = "DB_HOST"
	EnvDBUser      = "DB_USER"
	EnvDBPass      = "DB_PASS"
	EnvDBName      = "DB_NAME"
	EnvDBPort      = "DB_PORT"
	EnvPoolSize    = "POOL_SIZE"
	EnvMaxOverflow = "MAX_OVERFLOW"
	EnvPoolTimeout = "POOL_TIMEOUT"
	EnvPoolRecycle = "POOL_RECYCLE"
)

const (
	DefaultPoolSize    = 5
	DefaultMaxOverflow = 2
	DefaultPoolTimeout = 30 * time.Second
	DefaultPoolRecycle = 1800 * time.Second

	// maxSeconds is the largest whole-second value a time.Duration holds.
	maxSeconds = math.MaxInt64 / int64(time.Second)
)

// LookupFunc has the signature of os.LookupEnv.
type LookupFunc func(string) (string, bool)

// Env returns the process environment as a LookupFunc.
func Env() LookupFunc { return os.LookupEnv }

// Override answers name with value and defers everything else to base.
func Override(base LookupFunc, name, value string) LookupFunc {
	return func(k string) (string, bool) {
		if k == name {
			return value, true
		}
		return base(k)
	}
}

// DB is the database connection and pool configuration.
// It is loaded once at startup and never modified.
type DB struct {
	Host     string
	User     string
	Password string
	Database string
	Port     int

	PoolSize    int
	MaxOverflow int
	PoolTimeout time.Duration
	// PoolRecycle <= 0 disables recycling.
	PoolRecycle time.Duration
}

// MaxConns is the hard bound on concurrently open connections.
func (d DB) MaxConns() int { return d.PoolSize + d.MaxOverflow }

// String omits the password.
func (d DB) String() string {
	return fmt.Sprintf("%s@%s:%d/%s pool_size=%d max_overflow=%d pool_timeout=%s pool_recycle=%s",
		d.User, d.Host, d.Port, d.Database, d.PoolSize, d.MaxOverflow, d.PoolTimeout, d.PoolRecycle)
}

// LogFields returns key/value pairs safe to log.
func (d DB) LogFields() []any {
	return []any{
		"db_host", d.Host,
		"db_port", d.Port,
		"db_name", d.Database,
		"db_user", d.User,
		"pool_size", d.PoolSize,
		"max_overflow", d.MaxOverflow,
		"pool_timeout", d.PoolTimeout.String(),
		"pool_recycle", d.PoolRecycle.String(),
	}
}

// MissingEnvError reports a required variable that is unset or empty.
type MissingEnvError struct {
	Name string
}

func (e *MissingEnvError) Error() string {
	return "missing required environment variable " + e.Name
}

// InvalidEnvError reports a variable whose value cannot be used.
type InvalidEnvError struct {
	Name   string
	Value  string
	Reason string
}

func (e *InvalidEnvError) Error() string {
	return fmt.Sprintf("invalid %s=%q: %s", e.Name, e.Value, e.Reason)
}

// LoadDB reads the database configuration through lookup. Every missing or
// invalid variable is reported in the returned error.
func LoadDB(lookup LookupFunc) (DB, error) {
	var errs []error

	required := func(name string) string {
		v, ok := lookup(name)
		if !ok || strings.TrimSpace(v) == "" {
			errs = append(errs, &MissingEnvError{Name: name})
			return ""
		}
		return v
	}

	d := DB{
		Host:     required(EnvDBHost),
		User:     required(EnvDBUser),
		Database: required(EnvDBName),
	}

	// the password is used byte for byte, so only unset or empty is missing
	if v, ok := lookup(EnvDBPass); ok && v != "" {
		d.Password = v
	} else {
		errs = append(errs, &MissingEnvError{Name: EnvDBPass})
	}

	if raw := required(EnvDBPort); raw != "" {
		p, err := strconv.Atoi(strings.TrimSpace(raw))
		switch {
		case err != nil:
			errs = append(errs, &InvalidEnvError{Name: EnvDBPort, Value: raw, Reason: "not an integer"})
		case p < 1 || p > 65535:
			errs = append(errs, &InvalidEnvError{Name: EnvDBPort, Value: raw, Reason: "must be 1..65535"})
		default:
			d.Port = p
		}
	}

	d.PoolSize = int(intOr(lookup, EnvPoolSize, DefaultPoolSize, 1, math.MaxInt32, &errs))
	d.MaxOverflow = int(intOr(lookup, EnvMaxOverflow, DefaultMaxOverflow, 0, math.MaxInt32, &errs))
	if int64(d.PoolSize)+int64(d.MaxOverflow) > math.MaxInt32 {
		raw, _ := lookup(EnvMaxOverflow)
		errs = append(errs, &InvalidEnvError{
			Name:   EnvMaxOverflow,
			Value:  raw,
			Reason: fmt.Sprintf("%s + %s must be <= %d", EnvPoolSize, EnvMaxOverflow, math.MaxInt32),
		})
	}
	d.PoolTimeout = time.Duration(intOr(lookup, EnvPoolTimeout, int64(DefaultPoolTimeout/time.Second), 1, maxSeconds, &errs)) * time.Second
	d.PoolRecycle = time.Duration(intOr(lookup, EnvPoolRecycle, int64(DefaultPoolRecycle/time.Second), -1, maxSeconds, &errs)) * time.Second

	if len(errs) > 0 {
		return DB{}, errors.Join(errs...)
	}
	return d, nil
}

// intOr parses an optional integer variable in [floor, ceil]; absent or
// empty yields def.
func intOr(lookup LookupFunc, name string, def, floor, ceil int64, errs *[]error) int64 {
	raw, ok := lookup(name)
	if !ok || strings.TrimSpace(raw) == "" {
		return def
	}
	n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	switch {
	case errors.Is(err, strconv.ErrRange):
		*errs = append(*errs, &InvalidEnvError{Name: name, Value: raw, Reason: fmt.Sprintf("must be <= %d", ceil)})
	case err != nil:
		*errs = append(*errs, &InvalidEnvError{Name: name, Value: raw, Reason: "not an integer"})
	case n < floor:
		*errs = append(*errs, &InvalidEnvError{Name: name, Value: raw, Reason: fmt.Sprintf("must be >= %d", floor)})
	case n > ceil:
		*errs = append(*errs, &InvalidEnvError{Name: name, Value: raw, Reason: fmt.Sprintf("must be <= %d", ceil)})
	default:
		return n
	}
	return def
}
