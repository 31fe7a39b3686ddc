// Package dbhttp serves the database connectivity endpoints.
package dbhttp

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/keithlinneman/dbprobe/internal/dbpool"
	"github.com/keithlinneman/dbprobe/internal/log"
	"github.com/keithlinneman/dbprobe/internal/xerrors"
)

// Response bodies. Clients never see driver errors.
const (
	PoolAbsentBody = "There is an issue connecting to the database, please check logs"
	StatusHealthy  = "healthy"
	StatusError    = "error connecting to the database, please check logs"
)

// Check outcomes reported to Options.OnCheck.
const (
	OutcomeHealthy    = "healthy"
	OutcomeError      = "error"
	OutcomePoolAbsent = "pool_absent"
)

// DefaultPoolErrLogInterval spaces out repeats of the pool-absent log line.
const DefaultPoolErrLogInterval = 10 * time.Second

// Runner executes one statement on a borrowed connection.
type Runner interface {
	Run(ctx context.Context, st dbpool.Statement) (dbpool.Rows, error)
}

type Options struct {
	// DB is nil when the pool could not be built; PoolErr then says why.
	DB      Runner
	PoolErr error

	Logger log.Logger

	// OnCheck is called once per request with the statement name and outcome.
	OnCheck func(check, outcome string)

	PoolErrLogInterval time.Duration
}

// API implements the connectivity endpoints
type API struct {
	db      Runner
	poolErr error
	logger  log.Logger
	onCheck func(check, outcome string)

	// pool-absent requests can arrive at request rate; the cause never changes
	poolErrLog *rate.Sometimes
}

type statusResponse struct {
	Status string `json:"status"`
}

func NewAPI(opts Options) *API {
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	if opts.PoolErrLogInterval <= 0 {
		opts.PoolErrLogInterval = DefaultPoolErrLogInterval
	}
	if opts.DB == nil && opts.PoolErr == nil {
		opts.PoolErr = xerrors.New("database pool was not constructed")
	}
	return &API{
		db:         opts.DB,
		poolErr:    opts.PoolErr,
		logger:     opts.Logger,
		onCheck:    opts.OnCheck,
		poolErrLog: &rate.Sometimes{First: 1, Interval: opts.PoolErrLogInterval},
	}
}

// RegisterRoutes attaches / and /healthcheck to the router
func (api *API) RegisterRoutes(r chi.Router) {
	r.Get("/", api.check(dbpool.ListTables))
	r.Get("/healthcheck", api.check(dbpool.PingTables))
}

func (api *API) check(st dbpool.Statement) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		L := log.FromContextOr(ctx, api.logger)

		if api.db == nil {
			api.poolErrLog.Do(func() {
				L.Error(ctx, api.poolErr, "database pool is not available", "statement", st.Name)
			})
			api.report(ctx, st, OutcomePoolAbsent)
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.Header().Set("Cache-Control", "no-store")
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(PoolAbsentBody))
			return
		}

		rows, err := api.db.Run(ctx, st)
		if err != nil {
			L.Error(ctx, err, "database check failed",
				"statement", st.Name,
				"error_kind", string(dbpool.KindOf(err)),
			)
			api.report(ctx, st, OutcomeError)
			api.writeJSON(ctx, w, http.StatusInternalServerError, statusResponse{Status: StatusError})
			return
		}

		L.Debug(ctx, "database check ok",
			"statement", st.Name,
			"rows", rows.Len(),
		)
		api.report(ctx, st, OutcomeHealthy)
		api.writeJSON(ctx, w, http.StatusOK, statusResponse{Status: StatusHealthy})
	}
}

func (api *API) report(ctx context.Context, st dbpool.Statement, outcome string) {
	if span := trace.SpanFromContext(ctx); span.IsRecording() {
		span.SetAttributes(
			attribute.String("app.db.check", st.Name),
			attribute.String("app.db.outcome", outcome),
		)
	}
	if api.onCheck != nil {
		api.onCheck(st.Name, outcome)
	}
}

func (api *API) writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		api.logger.Warn(ctx, "failed to encode JSON response", "error", err)
	}
}
