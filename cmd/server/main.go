package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/keithlinneman/dbprobe/internal/cfg"
	"github.com/keithlinneman/dbprobe/internal/dbhttp"
	"github.com/keithlinneman/dbprobe/internal/dbpool"
	"github.com/keithlinneman/dbprobe/internal/health"
	"github.com/keithlinneman/dbprobe/internal/httpserver"
	"github.com/keithlinneman/dbprobe/internal/log"
	"github.com/keithlinneman/dbprobe/internal/metrics"
	"github.com/keithlinneman/dbprobe/internal/opshttp"
	"github.com/keithlinneman/dbprobe/internal/otelx"
	"github.com/keithlinneman/dbprobe/internal/prof"
	"github.com/keithlinneman/dbprobe/internal/secrets"
	v "github.com/keithlinneman/dbprobe/internal/version"
	"github.com/keithlinneman/dbprobe/internal/xerrors"
)

const shutdownTimeout = 10 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	vi := v.Get()

	var conf cfg.App
	var showVersion bool
	cfg.Register(flag.CommandLine, &conf)
	flag.BoolVar(&showVersion, "V", false, "Print version+build information and exit")
	flag.Parse()

	if showVersion {
		fmt.Println(vi.String())
		return 0
	}

	// no prefix: PORT, LOG_LEVEL, ... sit next to DB_HOST and friends
	cfg.FillFromEnv(flag.CommandLine, "", func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	})
	if err := cfg.Validate(conf); err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		return 1
	}

	lvl, err := log.ParseLevel(conf.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		return 1
	}
	stackLvl, err := log.ParseLevel(conf.StacktraceLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		return 1
	}
	lg, err := log.New(log.Options{
		App:             v.AppName,
		Version:         vi.Version,
		Level:           lvl,
		StacktraceLevel: stackLvl,
		JSON:            conf.LogJSON,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger init error:", err)
		return 1
	}
	defer func() { _ = lg.Sync() }()
	L := lg.With("component", "server")
	ctx = log.WithContext(ctx, L)

	L.Info(ctx, "initializing application",
		"version", vi.Version,
		"commit", vi.Commit,
		"build_date", vi.BuildDate,
		"go_version", vi.GoVersion,
		"listen_host", conf.ListenHost,
		"port", conf.Port,
		"admin_port", conf.AdminPort,
		"enable_pprof", conf.EnablePprof,
		"enable_tracing", conf.EnableTracing,
		"enable_pyroscope", conf.EnablePyroscope,
		"db_pass_source", passwordSource(conf),
	)

	stopProf, profErr := prof.Start(ctx, prof.Options{
		Enabled:       conf.EnablePyroscope,
		AppName:       v.AppName,
		ServerAddress: conf.PyroServer,
		TenantID:      conf.PyroTenantID,
		Tags: map[string]string{
			"app":     v.AppName,
			"version": vi.Version,
			"commit":  vi.Commit,
		},
	})
	if profErr != nil {
		L.Error(ctx, profErr, "pyroscope start failed", "pyro_server", conf.PyroServer)
	}
	defer stopProf()

	// the collector is local, so plaintext gRPC
	shutdownOTEL, err := otelx.Init(ctx, otelx.Options{
		Enabled:  conf.EnableTracing,
		Endpoint: conf.OTLPEndpoint,
		Insecure: true,
		Sample:   conf.TraceSample,
		Service:  v.AppName,
		Version:  vi.Version,
	})
	if err != nil {
		L.Error(ctx, err, "otel init failed, tracing disabled")
		shutdownOTEL = func(context.Context) error { return nil }
	}
	defer func() { _ = shutdownOTEL(context.Background()) }()

	m := metrics.New()
	m.SetBuildInfoFromVersion("server", vi)
	m.SetProfilingActive(conf.EnablePyroscope && profErr == nil)

	dbConf, err := loadDB(ctx, conf)
	if err != nil {
		L.Error(ctx, err, "database configuration invalid")
		return 1
	}

	res := dbpool.Open(ctx, dbConf, dbpool.Options{
		ConnectTimeout: conf.ConnectTimeout,
		Logger:         L,
	})
	defer res.Close()

	// db stays a nil interface when the pool is absent
	var (
		db     dbhttp.Runner
		pinger health.Pinger
	)
	pool, poolErr := res.Pool()
	if poolErr != nil {
		L.Error(ctx, poolErr, "database pool construction failed, serving without a pool", dbConf.LogFields()...)
		m.SetDBPoolUp(false)
	} else {
		L.Info(ctx, "database pool ready", dbConf.LogFields()...)
		m.SetDBPoolUp(true)
		if err := m.RegisterPool(pool); err != nil {
			L.Warn(ctx, "pool metrics not registered", "error", err)
		}
		db, pinger = pool, pool
	}

	api := dbhttp.NewAPI(dbhttp.Options{
		DB:      db,
		PoolErr: poolErr,
		Logger:  L,
		OnCheck: m.ObserveDBCheck,
	})

	var gate health.ShutdownGate
	readiness := health.All(gate.Probe(), health.Database(pinger, conf.ConnectTimeout))

	stopPublic, err := httpserver.Start(ctx, httpserver.Options{
		Logger:         L,
		ListenHost:     conf.ListenHost,
		Port:           conf.Port,
		Routes:         api.RegisterRoutes,
		HandlerTimeout: dbConf.PoolTimeout,
		MetricsMW:      m.Middleware,
		OnPanic:        m.IncHttpPanic,
	})
	if err != nil {
		L.Error(ctx, err, "failed to start public http listener")
		return 1
	}

	stopOps, err := opshttp.Start(ctx, opshttp.Options{
		Logger:      L,
		ListenHost:  conf.ListenHost,
		Port:        conf.AdminPort,
		Metrics:     m.Handler(),
		EnablePprof: conf.EnablePprof,
		Health:      health.Fixed(true, ""),
		Readiness:   readiness,
		OnPanic:     m.IncHttpPanic,
	})
	if err != nil {
		L.Error(ctx, err, "failed to start ops http listener")
		_ = stopPublic(context.Background())
		return 1
	}

	if err := notifySystemd(); err != nil {
		L.Debug(ctx, "systemd notify skipped", "reason", err.Error())
	}

	<-ctx.Done()
	stopSignals()
	bg := context.Background()
	L.Info(bg, "shutdown signal received")

	gate.Set("draining")
	drain(bg, L, conf.ShutdownDrain)

	shutdownCtx, cancel := context.WithTimeout(bg, shutdownTimeout)
	defer cancel()

	if err := stopPublic(shutdownCtx); err != nil {
		L.Error(bg, err, "public http server shutdown")
	}
	if err := stopOps(shutdownCtx); err != nil {
		L.Error(bg, err, "ops http server shutdown")
	}
	// listeners are down, so nothing borrows from the pool any more
	res.Close()
	if err := shutdownOTEL(shutdownCtx); err != nil {
		L.Error(bg, err, "otel shutdown")
	}
	stopProf()

	L.Info(bg, "shutdown complete")
	return 0
}

// loadDB resolves the optional remote password and reads the DB_* settings.
func loadDB(ctx context.Context, conf cfg.App) (cfg.DB, error) {
	lookup := cfg.Env()

	src, err := secrets.New(ctx, secrets.Options{
		SSMParam:      conf.DBPassSSMParam,
		KMSCiphertext: conf.DBPassKMSBlob,
	})
	if err != nil {
		return cfg.DB{}, err
	}
	if src != nil {
		fctx, cancel := context.WithTimeout(ctx, conf.ConnectTimeout)
		pw, err := src.Fetch(fctx)
		cancel()
		if err != nil {
			return cfg.DB{}, xerrors.Wrap(err, "resolve database password")
		}
		lookup = cfg.Override(lookup, cfg.EnvDBPass, pw)
	}
	return cfg.LoadDB(lookup)
}

func passwordSource(conf cfg.App) string {
	switch {
	case conf.DBPassSSMParam != "":
		return "ssm"
	case conf.DBPassKMSBlob != "":
		return "kms"
	}
	return "env"
}

// drain keeps serving while readiness reports not-ready. A second signal
// cuts it short.
func drain(ctx context.Context, L log.Logger, d time.Duration) {
	if d <= 0 {
		return
	}
	L.Info(ctx, "draining before shutdown", "duration", d.String())

	force := make(chan os.Signal, 1)
	signal.Notify(force, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(force)

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		L.Info(ctx, "drain period complete")
	case <-force:
		L.Warn(ctx, "second signal received, skipping drain")
	}
}

func notifySystemd() error {
	addr := os.Getenv("NOTIFY_SOCKET")
	if addr == "" {
		return xerrors.New("NOTIFY_SOCKET not set")
	}
	conn, err := net.Dial("unixgram", addr)
	if err != nil {
		return xerrors.Wrap(err, "systemd notify dial")
	}
	defer conn.Close()
	if _, err := conn.Write([]byte("READY=1")); err != nil {
		return xerrors.Wrap(err, "systemd notify write")
	}
	return nil
}
