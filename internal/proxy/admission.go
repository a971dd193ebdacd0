package proxy

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/opsbridge/fleetlb/internal/metrics"
)

// admissionGate is the process-wide concurrency bound: a channel used
// as a counting semaphore. It never rejects a request outright — it
// blocks until a permit is free or the client disconnects, unlike a
// bounded queue with a timeout-based fast-fail.
type admissionGate struct {
	permits chan struct{}
	depth   atomic.Int64
}

func newAdmissionGate(capacity int) *admissionGate {
	if capacity <= 0 {
		capacity = 1
	}
	return &admissionGate{permits: make(chan struct{}, capacity)}
}

// acquire blocks until a permit is available or ctx is cancelled.
func (g *admissionGate) acquire(ctx context.Context) error {
	select {
	case g.permits <- struct{}{}:
		n := g.depth.Add(1)
		metrics.AdmissionDepthSet(n)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *admissionGate) release() {
	select {
	case <-g.permits:
		metrics.AdmissionDepthSet(g.depth.Add(-1))
	default:
	}
}

// withAdmission wraps next with the unbounded-wait admission gate. A
// client disconnect while waiting for a permit is surfaced as 499-style
// connection closure rather than a written response, since nothing has
// been admitted yet.
func withAdmission(gate *admissionGate, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		if err := gate.acquire(r.Context()); err != nil {
			return
		}
		metrics.AdmissionWaitObserve(time.Since(start))
		defer gate.release()
		next.ServeHTTP(w, r)
	})
}
