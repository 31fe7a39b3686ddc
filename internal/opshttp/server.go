// Package opshttp serves the admin listener: metrics, liveness, readiness
// and optionally pprof. It binds loopback by default and refuses public
// peers even when bound wider.
package opshttp

import (
	"context"
	"net"
	"net/http"
	"strconv"

	"github.com/keithlinneman/dbprobe/internal/health"
	"github.com/keithlinneman/dbprobe/internal/httpmw"
	"github.com/keithlinneman/dbprobe/internal/httpserver"
	"github.com/keithlinneman/dbprobe/internal/log"
)

func NewHandler(opts Options) http.Handler {
	L := opts.Logger
	if L == nil {
		L = log.Nop()
	}

	mux := http.NewServeMux()
	mux.Handle("/-/healthy", health.HealthzHandler(opts.Health))
	mux.Handle("/-/ready", health.ReadyzHandler(opts.Readiness))

	if opts.Metrics != nil {
		mux.Handle("/metrics", opts.Metrics)
	}

	// shadow pprof with 404s when disabled
	if opts.EnablePprof {
		registerPprof(mux)
	} else {
		mux.Handle("/debug/pprof/", http.NotFoundHandler())
	}

	return httpmw.Recover(L, opts.OnPanic)(requireNonPublicNetwork(L, mux))
}

// Start admin HTTP server. Returns stop(ctx) for graceful shutdown.
func Start(ctx context.Context, opts Options) (func(context.Context) error, error) {
	host := opts.ListenHost
	if host == "" {
		host = DefaultListenHost
	}
	port := opts.Port
	if port == 0 {
		port = DefaultPort
	}

	srv := httpserver.NewServer(net.JoinHostPort(host, strconv.Itoa(port)), NewHandler(opts))
	return httpserver.Serve(ctx, opts.Logger, "ops", srv)
}
