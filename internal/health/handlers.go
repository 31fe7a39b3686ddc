package health

import (
	"net/http"
)

// HealthzHandler answers liveness: 200 "ok" or 503 with the probe's reason.
// A nil probe is always healthy.
func HealthzHandler(p Probe) http.HandlerFunc {
	return handler(p, "ok\n", "unhealthy")
}

// ReadyzHandler answers readiness: 200 "ready" or 503 with the probe's reason.
func ReadyzHandler(p Probe) http.HandlerFunc {
	return handler(p, "ready\n", "not ready")
}

func handler(p Probe, okBody, failPrefix string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		if p != nil {
			if err := p.Check(r.Context()); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(failPrefix + ": " + err.Error() + "\n"))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(okBody))
	}
}
