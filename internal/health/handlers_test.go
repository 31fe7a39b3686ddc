package health

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func serve(h http.Handler, ctx context.Context) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/-/ready", nil)
	if ctx != nil {
		req = req.WithContext(ctx)
	}
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthzHandler(t *testing.T) {
	rec := serve(HealthzHandler(Fixed(true, "")), nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "ok") {
		t.Fatalf("healthy: %d %q", rec.Code, rec.Body.String())
	}

	rec = serve(HealthzHandler(Fixed(false, "wedged")), nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "wedged") {
		t.Fatalf("body = %q, want reason", rec.Body.String())
	}

	rec = serve(HealthzHandler(nil), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("nil probe: status = %d, want 200", rec.Code)
	}
}

func TestReadyzHandler(t *testing.T) {
	rec := serve(ReadyzHandler(Fixed(true, "")), nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "ready") {
		t.Fatalf("ready: %d %q", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("Content-Type = %q", ct)
	}
	if rec.Header().Get("Cache-Control") != "no-store" {
		t.Error("readiness must not be cached")
	}

	rec = serve(ReadyzHandler(Database(nil, 0)), nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "pool not available") {
		t.Fatalf("body = %q", rec.Body.String())
	}
}

func TestReadyzHandler_Dynamic(t *testing.T) {
	ready := false
	h := ReadyzHandler(CheckFunc(func(context.Context) error {
		if !ready {
			return fmt.Errorf("warming up")
		}
		return nil
	}))

	if rec := serve(h, nil); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("before: status = %d", rec.Code)
	}
	ready = true
	if rec := serve(h, nil); rec.Code != http.StatusOK {
		t.Fatalf("after: status = %d", rec.Code)
	}
}

func TestHandler_PassesRequestContext(t *testing.T) {
	type ctxKey string
	var got context.Context
	h := ReadyzHandler(CheckFunc(func(ctx context.Context) error {
		got = ctx
		return nil
	}))

	serve(h, context.WithValue(context.Background(), ctxKey("k"), "v"))
	if got == nil || got.Value(ctxKey("k")) != "v" {
		t.Fatal("request context not passed to probe")
	}
}
