// Package health implements the periodic liveness prober: on each tick
// it fires an independent, non-blocking probe per backend against the
// proxy's own liveness endpoint and publishes the result into the pool.
package health

import (
	"context"
	"fmt"
	"net/http"
	"time"

	applog "github.com/opsbridge/fleetlb/internal/log"
	"github.com/opsbridge/fleetlb/internal/metrics"
	"github.com/opsbridge/fleetlb/internal/backend"
	"github.com/opsbridge/fleetlb/internal/pool"
)

// probeTimeout bounds a single backend probe.
const probeTimeout = 3 * time.Second

var probeClient = &http.Client{Timeout: probeTimeout}

// Prober periodically refreshes backend liveness by probing each
// backend's indirect liveness endpoint on the load balancer itself.
type Prober struct {
	pool     *pool.Pool
	interval time.Duration
	// selfBaseURL is the load balancer's own plaintext base URL, used
	// to build the {loadbalancer}/health/{name} probe target.
	selfBaseURL string
}

// New builds a Prober. selfBaseURL is the proxy's own reachable base
// URL (e.g. "http://127.0.0.1:3000"), with no trailing slash required.
func New(p *pool.Pool, interval time.Duration, selfBaseURL string) *Prober {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Prober{pool: p, interval: interval, selfBaseURL: selfBaseURL}
}

// Run blocks, probing on every tick until ctx is cancelled. Each tick
// spawns one goroutine per backend; a slow probe does not block the
// next tick.
func (pr *Prober) Run(ctx context.Context) {
	ticker := time.NewTicker(pr.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pr.tick(ctx)
		}
	}
}

func (pr *Prober) tick(ctx context.Context) {
	for i, entry := range pr.pool.All() {
		go pr.probeOne(ctx, i, entry)
	}
}

func (pr *Prober) probeOne(ctx context.Context, index int, entry *pool.Entry) {
	defer func() {
		// A panicking probe must never take down the process or the
		// proxy's data path.
		if r := recover(); r != nil {
			applog.Emit("error", "health", map[string]string{"backend": entry.Backend.Name}, fmt.Sprintf("probe panic: %v", r))
		}
	}()

	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	url := fmt.Sprintf("%s/health/%s", pr.selfBaseURL, entry.Backend.Name)
	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, url, nil)
	if err != nil {
		return
	}

	newStatus := backend.Unhealthy
	resp, err := probeClient.Do(req)
	if err == nil {
		defer resp.Body.Close()
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			newStatus = backend.Healthy
		}
	}

	oldStatus := entry.Status
	if pr.pool.UpdateStatus(index, newStatus) && oldStatus != newStatus {
		applog.LogHealthTransition(entry.Backend.Name, oldStatus.String(), newStatus.String())
		metrics.SetBackendStatus(entry.Backend.Name, int(newStatus))
	}
}
