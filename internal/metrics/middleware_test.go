package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/trace"
)

// statusWriter

func TestStatusWriter(t *testing.T) {
	rec := httptest.NewRecorder()
	sw := &statusWriter{ResponseWriter: rec}

	_, _ = sw.Write([]byte("abc"))
	_, _ = sw.Write([]byte("de"))
	if sw.status != http.StatusOK {
		t.Fatalf("status = %d, want implicit 200", sw.status)
	}
	if sw.n != 5 {
		t.Fatalf("n = %d, want 5", sw.n)
	}

	rec = httptest.NewRecorder()
	sw = &statusWriter{ResponseWriter: rec}
	sw.WriteHeader(http.StatusInternalServerError)
	_, _ = sw.Write([]byte("x"))
	if sw.status != http.StatusInternalServerError || rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d / %d, want 500", sw.status, rec.Code)
	}
}

// routedHandler mounts the metrics middleware around a chi router the way
// httpserver does.
func routedHandler(m *ServerMetrics, status int) http.Handler {
	r := chi.NewRouter()
	h := func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"status":"healthy"}`))
	}
	r.Get("/", h)
	r.Get("/healthcheck", h)
	return m.Middleware(r)
}

func TestMiddleware_RouteLabels(t *testing.T) {
	m := New()
	h := routedHandler(m, http.StatusOK)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthcheck", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthcheck", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	v := sample(t, m.reg, "http_requests_total", map[string]string{"method": "GET", "route": "/healthcheck", "status": "200"}).GetCounter().GetValue()
	if v != 2 {
		t.Fatalf("/healthcheck count = %v, want 2", v)
	}
	v = sample(t, m.reg, "http_requests_total", map[string]string{"route": "/"}).GetCounter().GetValue()
	if v != 1 {
		t.Fatalf("/ count = %v, want 1", v)
	}
}

func TestMiddleware_UnmatchedRoute(t *testing.T) {
	m := New()
	h := routedHandler(m, http.StatusOK)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/wp-admin/setup.php", nil))

	s := sample(t, m.reg, "http_requests_total", map[string]string{"status": "404"})
	if got := labelsOf(s)["route"]; got != unmatchedRoute {
		t.Fatalf("route = %q, want %q", got, unmatchedRoute)
	}
}

func TestMiddleware_NoRouter(t *testing.T) {
	m := New()
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if chi.RouteContext(r.Context()) == nil {
			t.Error("middleware should install a route context")
		}
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/custom/path", nil))

	s := sample(t, m.reg, "http_requests_total", nil)
	if l := labelsOf(s); l["route"] != unmatchedRoute || l["status"] != "200" {
		t.Fatalf("labels = %v", l)
	}
}

func TestMiddleware_ErrorCounter(t *testing.T) {
	tests := []struct {
		status int
		want   bool
	}{
		{http.StatusOK, false},
		{http.StatusNotFound, false},
		{http.StatusInternalServerError, true},
		{http.StatusServiceUnavailable, true},
	}
	for _, tt := range tests {
		m := New()
		routedHandler(m, tt.status).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

		f := gatherMetric(t, m.reg, "http_errors_total")
		got := f != nil && len(f.GetMetric()) > 0 && f.GetMetric()[0].GetCounter().GetValue() == 1
		if got != tt.want {
			t.Errorf("status %d: error counted = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestMiddleware_DurationAndSize(t *testing.T) {
	m := New()
	routedHandler(m, http.StatusOK).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if n := mustGather(t, m.reg, "http_request_duration_seconds").GetMetric()[0].GetHistogram().GetSampleCount(); n != 1 {
		t.Fatalf("duration samples = %d, want 1", n)
	}
	size := mustGather(t, m.reg, "http_response_size_bytes").GetMetric()[0].GetHistogram().GetSampleSum()
	if size != float64(len(`{"status":"healthy"}`)) {
		t.Fatalf("response size sum = %v", size)
	}
}

func TestMiddleware_InflightReturnsToZero(t *testing.T) {
	m := New()
	var during float64
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		during = mustGather(t, m.reg, "http_inflight_requests").GetMetric()[0].GetGauge().GetValue()
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if during != 1 {
		t.Fatalf("inflight during request = %v, want 1", during)
	}
	if after := mustGather(t, m.reg, "http_inflight_requests").GetMetric()[0].GetGauge().GetValue(); after != 0 {
		t.Fatalf("inflight after request = %v, want 0", after)
	}
}

func TestMiddleware_ResponsePassthrough(t *testing.T) {
	m := New()
	rec := httptest.NewRecorder()
	routedHandler(m, http.StatusInternalServerError).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthcheck", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Body.String() != `{"status":"healthy"}` {
		t.Fatalf("body = %q", rec.Body.String())
	}
}

// traceExemplar

func spanContext(flags trace.TraceFlags) trace.SpanContext {
	traceID, _ := trace.TraceIDFromHex("0102030405060708090a0b0c0d0e0f10")
	spanID, _ := trace.SpanIDFromHex("0102030405060708")
	return trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: flags,
	})
}

func TestTraceExemplar(t *testing.T) {
	ctx := trace.ContextWithSpanContext(context.Background(), spanContext(trace.FlagsSampled))
	labels := traceExemplar(ctx)
	if labels["trace_id"] != "0102030405060708090a0b0c0d0e0f10" {
		t.Fatalf("labels = %v", labels)
	}

	ctx = trace.ContextWithSpanContext(context.Background(), spanContext(0))
	if traceExemplar(ctx) != nil {
		t.Fatal("non-sampled trace should not produce exemplar")
	}

	if traceExemplar(context.Background()) != nil {
		t.Fatal("no trace context should return nil")
	}
}
