// Package proxy implements the request pipeline: admission control, the
// liveness-endpoint short-circuit, selection, URI/header rewrite,
// upstream dispatch, adaptive compression, and guaranteed release of
// the reserved connection slot.
package proxy

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	applog "github.com/opsbridge/fleetlb/internal/log"
	"github.com/opsbridge/fleetlb/internal/metrics"
	"github.com/opsbridge/fleetlb/internal/pool"

	"github.com/opsbridge/fleetlb/internal/compress"
)

// Proxy is the request pipeline bound to one backend pool.
type Proxy struct {
	pool            *pool.Pool
	client          *http.Client
	identifier      string
	admission       *admissionGate
	upstreamTimeout time.Duration
}

// Options configures a Proxy.
type Options struct {
	ProxyIdentifier   string
	AdmissionCapacity int
	UpstreamTimeout   time.Duration
}

// New builds a Proxy over the given pool. The http.Handler chain
// returned by Handler() already includes the admission gate; callers
// should register Handler() directly with their listener.
func New(p *pool.Pool, opts Options) *Proxy {
	if opts.UpstreamTimeout <= 0 {
		opts.UpstreamTimeout = 30 * time.Second
	}
	return &Proxy{
		pool:       p,
		identifier: opts.ProxyIdentifier,
		admission:  newAdmissionGate(opts.AdmissionCapacity),
		client: &http.Client{
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				DialContext:           (&net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
				ForceAttemptHTTP2:     true,
				MaxIdleConns:          100,
				IdleConnTimeout:       90 * time.Second,
				TLSHandshakeTimeout:   10 * time.Second,
				ExpectContinueTimeout: 1 * time.Second,
			},
		},
		upstreamTimeout: opts.UpstreamTimeout,
	}
}

// Handler returns the full pipeline as an http.Handler: admission gate
// wrapping the liveness short-circuit and the upstream dispatch path.
func (p *Proxy) Handler() http.Handler {
	return applog.WithRequestID(withAdmission(p.admission, http.HandlerFunc(p.route)))
}

func (p *Proxy) route(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, "/health/") {
		serveLiveness(p.pool).ServeHTTP(w, r)
		return
	}
	p.dispatch(w, r)
}

// dispatch runs selection, upstream dispatch, adaptive compression, and
// response write-back for one admitted request.
func (p *Proxy) dispatch(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	applog.LogRequest(r)

	entry := p.pool.SelectAndReserve()
	if entry == nil {
		metrics.IncNoHealthyBackend()
		applog.LogNoHealthyBackend(r)
		w.Header().Set("X-Load-Balancer", p.identifier)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("No healthy backends available"))
		metrics.ObserveResponse(r.Method, http.StatusServiceUnavailable, time.Since(start))
		return
	}
	// Release discipline: the reservation above must be paired with
	// exactly one release, on every exit path including the error
	// returns below.
	defer func() {
		p.pool.Release(entry)
		metrics.SetBackendInflight(entry.Backend.Name, entry.Inflight())
	}()

	backendName := entry.Backend.Name
	metrics.SetBackendInflight(backendName, entry.Inflight())
	metrics.IncSelection(p.pool.Strategy().Name(), backendName)
	applog.LogSelection(r, p.pool.Strategy().Name(), backendName)

	backendURL, err := url.Parse(entry.Backend.URL)
	if err != nil {
		p.writeBadGateway(w, r, backendName, start, err)
		return
	}

	acceptEncoding := r.Header.Get("Accept-Encoding")

	outReq := r.Clone(r.Context())
	rewriteForUpstream(outReq, backendURL, p.identifier)

	timeout := p.upstreamTimeout
	if entry.Backend.Timeout > 0 {
		timeout = entry.Backend.Timeout
	}
	if timeout > 0 {
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		outReq = outReq.WithContext(ctx)
	}

	upstreamStart := time.Now()
	resp, err := p.client.Do(outReq)
	if err != nil {
		p.writeBadGateway(w, r, backendName, start, err)
		return
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		p.writeBadGateway(w, r, backendName, start, err)
		return
	}
	upstreamDuration := time.Since(upstreamStart)
	metrics.ObserveBackendResponse(backendName, resp.StatusCode, upstreamDuration)

	copyHeader(w.Header(), resp.Header)
	for _, h := range hopHeaders {
		w.Header().Del(h)
	}

	originalSize := len(body)
	upstreamEncoding := resp.Header.Get("Content-Encoding")
	body = compress.ApplyToResponse(resp, acceptEncoding, body)
	if resp.Header.Get("Content-Encoding") != "" {
		w.Header().Set("Content-Encoding", resp.Header.Get("Content-Encoding"))
	}
	if upstreamEncoding == "" && resp.Header.Get("Content-Encoding") == "gzip" {
		metrics.IncCompressionOutcome("gzip")
	} else {
		metrics.IncCompressionOutcome("passthrough")
	}
	if resp.ContentLength < 0 {
		w.Header().Del("Content-Length")
	}
	applog.LogCompressionDecision(r, backendName, resp.Header.Get("Content-Encoding"), originalSize, len(body))

	w.Header().Set("X-Load-Balancer", p.identifier)
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(body)

	dur := time.Since(start)
	metrics.ObserveResponse(r.Method, resp.StatusCode, dur)
	applog.LogResponse(r, backendName, resp.StatusCode, len(body), dur, resp.Header.Get("Content-Encoding"))
}

func (p *Proxy) writeBadGateway(w http.ResponseWriter, r *http.Request, backendName string, start time.Time, err error) {
	applog.LogDispatchError(r, backendName, http.StatusBadGateway, err)
	w.Header().Set("X-Load-Balancer", p.identifier)
	http.Error(w, "upstream dispatch failed: "+err.Error(), http.StatusBadGateway)
	metrics.ObserveResponse(r.Method, http.StatusBadGateway, time.Since(start))
}
