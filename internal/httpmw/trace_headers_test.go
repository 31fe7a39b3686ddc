package httpmw

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// validSpanContext returns a context with a valid, non-recording span context.
func validSpanContext() context.Context {
	traceID, _ := trace.TraceIDFromHex("0102030405060708090a0b0c0d0e0f10")
	spanID, _ := trace.SpanIDFromHex("0102030405060708")
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	})
	return trace.ContextWithSpanContext(context.Background(), sc)
}

func TestTraceResponseHeaders(t *testing.T) {
	noopCtx := func() context.Context {
		_, span := noop.NewTracerProvider().Tracer("test").Start(context.Background(), "test")
		return trace.ContextWithSpan(context.Background(), span)
	}

	tests := []struct {
		name                   string
		ctx                    context.Context
		traceHdr, spanHdr      string
		wantTraceKey, wantSpan string
		wantTrace              string
	}{
		{"valid span default names", validSpanContext(), "", "", DefaultTraceHeader, "0102030405060708", "0102030405060708090a0b0c0d0e0f10"},
		{"valid span custom names", validSpanContext(), "X-Custom-Trace", "X-Custom-Span", "X-Custom-Trace", "0102030405060708", "0102030405060708090a0b0c0d0e0f10"},
		{"no span", context.Background(), "", "", DefaultTraceHeader, "", ""},
		{"noop span", noopCtx(), "", "", DefaultTraceHeader, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			h := TraceResponseHeaders(tt.traceHdr, tt.spanHdr)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
			}))
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthcheck", http.NoBody).WithContext(tt.ctx))

			if !called {
				t.Fatal("next handler not called")
			}
			if got := rec.Header().Get(tt.wantTraceKey); got != tt.wantTrace {
				t.Errorf("%s = %q, want %q", tt.wantTraceKey, got, tt.wantTrace)
			}
			spanKey := DefaultSpanHeader
			if tt.spanHdr != "" {
				spanKey = tt.spanHdr
			}
			if got := rec.Header().Get(spanKey); got != tt.wantSpan {
				t.Errorf("%s = %q, want %q", spanKey, got, tt.wantSpan)
			}
		})
	}
}
