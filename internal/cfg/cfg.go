// Package cfg loads dbprobe settings.
//
// Process settings (ports, logging, tracing, profiling) are flags that can
// also be set from the environment, see Register and FillFromEnv. Database
// settings are environment-only and loaded by LoadDB.
package cfg

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/keithlinneman/dbprobe/internal/log"
)

type App struct {
	Port            int
	ListenHost      string
	AdminPort       int
	LogJSON         bool
	LogLevel        string
	StacktraceLevel string
	EnablePprof     bool
	EnableTracing   bool
	OTLPEndpoint    string
	TraceSample     float64
	EnablePyroscope bool
	PyroServer      string
	PyroTenantID    string
	DBPassSSMParam  string
	DBPassKMSBlob   string
	ConnectTimeout  time.Duration
	ShutdownDrain   time.Duration
}

// Register binds all App fields to fs with defaults inline.
func Register(fs *flag.FlagSet, c *App) {
	fs.IntVar(&c.Port, "port", 8080, "listen TCP port (1..65535)")
	fs.StringVar(&c.ListenHost, "listen-host", "127.0.0.1", "listen address for both the public and admin listeners")
	fs.IntVar(&c.AdminPort, "admin-port", 9000, "admin listen TCP port (1..65535)")
	fs.BoolVar(&c.LogJSON, "log-json", true, "JSON logs (true) or logfmt (false)")
	fs.StringVar(&c.LogLevel, "log-level", "info", "debug|info|warn|error")
	fs.StringVar(&c.StacktraceLevel, "stacktrace-level", "error", "debug|info|warn|error")
	fs.BoolVar(&c.EnablePprof, "enable-pprof", true, "serve pprof on the admin port")
	fs.BoolVar(&c.EnableTracing, "enable-tracing", false, "export OTLP traces to otlp-endpoint")
	fs.StringVar(&c.OTLPEndpoint, "otlp-endpoint", "", "OTLP gRPC endpoint (host:port)")
	fs.Float64Var(&c.TraceSample, "trace-sample", 0.0, "trace sampling ratio (0..1)")
	fs.BoolVar(&c.EnablePyroscope, "enable-pyroscope", false, "push profiles to pyro-server")
	fs.StringVar(&c.PyroServer, "pyro-server", "", "pyroscope server url")
	fs.StringVar(&c.PyroTenantID, "pyro-tenant", "", "pyroscope tenant (x-scope-orgid)")
	fs.StringVar(&c.DBPassSSMParam, "db-pass-ssm-param", "", "SSM parameter holding the database password, overrides DB_PASS")
	fs.StringVar(&c.DBPassKMSBlob, "db-pass-kms-ciphertext", "", "base64 KMS ciphertext of the database password, overrides DB_PASS")
	fs.DurationVar(&c.ConnectTimeout, "connect-timeout", 5*time.Second, "bound on the startup database ping")
	fs.DurationVar(&c.ShutdownDrain, "shutdown-drain", 5*time.Second, "time readiness reports draining before listeners stop")
}

// FillFromEnv sets every flag not given on the command line from the
// environment. Flag "foo-bar" maps to PREFIX + "FOO_BAR".
// Precedence: cli flag > env var > default.
func FillFromEnv(fs *flag.FlagSet, prefix string, logf func(string, ...any)) {
	explicit := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	fs.VisitAll(func(f *flag.Flag) {
		key := prefix + strings.ReplaceAll(strings.ToUpper(f.Name), "-", "_")
		val, ok := os.LookupEnv(key)
		if !ok {
			return
		}
		if explicit[f.Name] {
			if logf != nil {
				logf("flag -%s: cli value %q overrides env %s", f.Name, f.Value.String(), key)
			}
			return
		}
		prev := f.Value.String()
		if err := fs.Set(f.Name, val); err != nil {
			_ = fs.Set(f.Name, prev)
			if logf != nil {
				logf("flag -%s: ignoring invalid env %s=%q: %v", f.Name, key, val, err)
			}
		}
	})
}

// Validate reports every invalid field at once.
func Validate(c App) error {
	var errs []error

	for name, p := range map[string]int{"PORT": c.Port, "ADMIN_PORT": c.AdminPort} {
		if p < 1 || p > 65535 {
			errs = append(errs, fmt.Errorf("invalid %s %d (must be 1..65535)", name, p))
		}
	}
	if c.Port == c.AdminPort {
		errs = append(errs, fmt.Errorf("ADMIN_PORT and PORT must differ (both %d)", c.Port))
	}
	if c.ListenHost != "localhost" && net.ParseIP(c.ListenHost) == nil {
		errs = append(errs, fmt.Errorf("LISTEN_HOST must be an IP address or localhost (got %q)", c.ListenHost))
	}

	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("invalid LOG_LEVEL: %w", err))
	}
	if _, err := log.ParseLevel(c.StacktraceLevel); err != nil {
		errs = append(errs, fmt.Errorf("invalid STACKTRACE_LEVEL: %w", err))
	}

	if c.TraceSample < 0 || c.TraceSample > 1 {
		errs = append(errs, fmt.Errorf("invalid TRACE_SAMPLE %.3f (must be 0..1)", c.TraceSample))
	}
	// grpc exporter wants host:port, no scheme
	if c.EnableTracing {
		if c.OTLPEndpoint == "" {
			errs = append(errs, errors.New("OTLP_ENDPOINT required when ENABLE_TRACING=true"))
		} else if _, _, err := net.SplitHostPort(c.OTLPEndpoint); err != nil {
			errs = append(errs, fmt.Errorf("OTLP_ENDPOINT must be host:port (got %q): %v", c.OTLPEndpoint, err))
		}
	}

	if c.EnablePyroscope {
		if u, err := url.Parse(c.PyroServer); c.PyroServer == "" || err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("PYRO_SERVER must be a URL when ENABLE_PYROSCOPE=true (got %q)", c.PyroServer))
		}
	}

	if c.DBPassSSMParam != "" && c.DBPassKMSBlob != "" {
		errs = append(errs, errors.New("DB_PASS_SSM_PARAM and DB_PASS_KMS_CIPHERTEXT are mutually exclusive"))
	}

	if c.ConnectTimeout <= 0 {
		errs = append(errs, fmt.Errorf("CONNECT_TIMEOUT must be positive (got %s)", c.ConnectTimeout))
	}
	if c.ShutdownDrain < 0 {
		errs = append(errs, fmt.Errorf("SHUTDOWN_DRAIN must not be negative (got %s)", c.ShutdownDrain))
	}

	return errors.Join(errs...)
}
