package httpserver

import (
	"context"
	"errors"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/keithlinneman/dbprobe/internal/httpmw"
	"github.com/keithlinneman/dbprobe/internal/log"
	"github.com/keithlinneman/dbprobe/internal/xerrors"
)

// NewHandler builds the public handler: chi routes wrapped in the
// middleware stack. Callers own the *http.Server.
func NewHandler(opts Options) http.Handler {
	L := opts.Logger
	if L == nil {
		L = log.Nop()
	}

	r := chi.NewRouter()
	r.Use(middleware.Compress(5, "application/json", "text/plain"))
	r.Use(httpmw.AnnotateHTTPRoute)
	r.Use(httpmw.AccessLog())

	if opts.Routes != nil {
		opts.Routes(r)
	}

	traced := otelhttp.NewMiddleware("http.server",
		otelhttp.WithFilter(func(r *http.Request) bool {
			return !strings.HasPrefix(r.URL.Path, "/-/")
		}),
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			// renamed to the route pattern by AnnotateHTTPRoute
			return r.Method
		}),
		otelhttp.WithPublicEndpointFn(func(*http.Request) bool { return true }),
	)

	// outermost first
	return httpmw.Chain(r,
		httpmw.SecurityHeaders,
		httpmw.RequestID(httpmw.DefaultRequestIDHeader),
		httpmw.Recover(L, opts.OnPanic),
		traced,
		httpmw.TraceResponseHeaders("", ""),
		opts.MetricsMW,
		httpmw.WithLogger(L),
	)
}

// Server timeout defaults, shared with opshttp.
const (
	DefaultReadHeaderTimeout = 5 * time.Second
	DefaultReadTimeout       = 10 * time.Second
	DefaultWriteTimeout      = 10 * time.Second
	DefaultIdleTimeout       = 60 * time.Second
	DefaultMaxHeaderBytes    = 1 << 20 // 1 MB
	DefaultShutdownTimeout   = 5 * time.Second
)

func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
		ReadTimeout:       DefaultReadTimeout,
		WriteTimeout:      DefaultWriteTimeout,
		IdleTimeout:       DefaultIdleTimeout,
		MaxHeaderBytes:    DefaultMaxHeaderBytes,
	}
}

// Serve listens on addr and serves srv in the background. The returned stop
// shuts the server down once; later calls return the first result.
func Serve(ctx context.Context, L log.Logger, name string, srv *http.Server) (func(context.Context) error, error) {
	if L == nil {
		L = log.Nop()
	}
	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", srv.Addr)
	if err != nil {
		return nil, xerrors.Wrapf(err, "%s server listen on %s", name, srv.Addr)
	}
	L = L.With("server", name, "addr", ln.Addr().String())

	go func() {
		L.Info(ctx, "http server listening")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			L.Error(ctx, err, "http server error")
		}
	}()

	var (
		once    sync.Once
		stopErr error
	)
	stop := func(sctx context.Context) error {
		once.Do(func() {
			L.Info(sctx, "http server shutting down")
			c, cancel := context.WithTimeout(sctx, DefaultShutdownTimeout)
			defer cancel()
			stopErr = srv.Shutdown(c)
		})
		return stopErr
	}
	return stop, nil
}

// Start serves the public API on ListenHost:Port.
func Start(ctx context.Context, opts Options) (func(context.Context) error, error) {
	return Serve(ctx, opts.Logger, "public", newPublicServer(opts))
}

// newPublicServer keeps the connection deadlines past HandlerTimeout so a
// handler that waited that long can still deliver its response.
func newPublicServer(opts Options) *http.Server {
	srv := NewServer(opts.addr(), NewHandler(opts))
	if opts.HandlerTimeout > 0 {
		srv.WriteTimeout = extendTimeout(srv.WriteTimeout, opts.HandlerTimeout)
		srv.ReadTimeout = extendTimeout(srv.ReadTimeout, opts.HandlerTimeout)
	}
	return srv
}

// extendTimeout returns base+by, or zero (no deadline) when the sum does
// not fit in a time.Duration.
func extendTimeout(base, by time.Duration) time.Duration {
	if by > math.MaxInt64-base {
		return 0
	}
	return base + by
}

func joinHostPort(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}
