package health

import (
	"context"
	"time"

	"github.com/keithlinneman/dbprobe/internal/xerrors"
)

// Probe is evaluated at request time
// nil = OK non-nil = FAIL with reason.
type Probe interface{ Check(context.Context) error }

// CheckFunc adapts a function into a Probe.
type CheckFunc func(context.Context) error

func (f CheckFunc) Check(ctx context.Context) error { return f(ctx) }

// Fixed returns a probe that always passes or always fails with reason.
func Fixed(ok bool, reason string) CheckFunc {
	if ok {
		return func(context.Context) error { return nil }
	}
	if reason == "" {
		reason = "unhealthy"
	}
	return func(context.Context) error { return xerrors.New(reason) }
}

// All passes only if every non-nil probe passes and returns the first failure.
func All(ps ...Probe) CheckFunc {
	return func(ctx context.Context) error {
		for _, p := range ps {
			if p == nil {
				continue
			}
			if err := p.Check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

// Pinger is anything that can prove a round trip to the database.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Database fails while p is nil (no pool was built) or while a ping bounded
// by timeout fails. The reason never includes the driver error, which may
// name hosts or users.
func Database(p Pinger, timeout time.Duration) CheckFunc {
	return func(ctx context.Context) error {
		if p == nil {
			return xerrors.New("database: pool not available")
		}
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		if err := p.Ping(ctx); err != nil {
			return xerrors.New("database: ping failed")
		}
		return nil
	}
}
