package proxy

import (
	"net/http"
	"strings"
	"time"

	"github.com/opsbridge/fleetlb/internal/metrics"
	"github.com/opsbridge/fleetlb/internal/pool"
)

// livenessProbeTimeout bounds the liveness endpoint's direct backend probe.
const livenessProbeTimeout = 3 * time.Second

var livenessProbeClient = &http.Client{Timeout: livenessProbeTimeout}

// serveLiveness implements GET /health/{name}: look up the named backend
// in the current snapshot and perform a direct GET against its URL,
// translating the outcome to 200/503/404. This is both an
// operator-facing probe and the target the periodic health prober
// itself calls, so that prober and operator observe reachability
// through the identical path.
func serveLiveness(p *pool.Pool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(r.URL.Path, "/health/")
		name = strings.Trim(name, "/")
		if name == "" {
			http.NotFound(w, r)
			return
		}

		entry := p.FindByName(name)
		if entry == nil {
			http.NotFound(w, r)
			return
		}

		req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, entry.Backend.URL, nil)
		if err != nil {
			metrics.IncHealthProbe(name, "error")
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}

		resp, err := livenessProbeClient.Do(req)
		if err != nil {
			metrics.IncHealthProbe(name, "unhealthy")
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			metrics.IncHealthProbe(name, "healthy")
			w.WriteHeader(http.StatusOK)
			return
		}
		metrics.IncHealthProbe(name, "unhealthy")
		w.WriteHeader(http.StatusServiceUnavailable)
	})
}
