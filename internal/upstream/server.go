// Package upstream implements a small demo origin server used to
// exercise the load balancer during manual testing and the bundled
// load generator: it identifies itself in every response so a client
// hitting the proxy can see which backend actually served a given
// request, and it exposes a couple of endpoints shaped to exercise
// least-connections skew and adaptive compression.
package upstream

import (
	"encoding/json"
	"errors"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config configures one demo upstream instance.
type Config struct {
	Name       string
	ListenAddr string
}

// Start boots the demo origin server on the configured address. This
// server exists for manual testing and the bundled load generator; it
// is not part of the load balancer's own process.
func Start(cfg Config) error {
	name := strings.TrimSpace(cfg.Name)
	if name == "" {
		name = cfg.ListenAddr
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		log.Printf("REQ method=%s url=%s backend=%s", r.Method, r.URL.Path, name)
		writeJSON(w, http.StatusOK, map[string]any{
			"served_by": name,
			"path":      r.URL.Path,
			"now":       time.Now().Format(time.RFC3339Nano),
		})
	})

	// /slow sleeps for ?ms= (default 1000ms) before responding, used to
	// create artificial load skew for least-connections scenarios.
	mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		delay := 1000 * time.Millisecond
		if ms, err := strconv.Atoi(r.URL.Query().Get("ms")); err == nil && ms >= 0 {
			delay = time.Duration(ms) * time.Millisecond
		}
		time.Sleep(delay)
		writeJSON(w, http.StatusOK, map[string]any{
			"served_by":  name,
			"delayed_ms": delay.Milliseconds(),
		})
	})

	// /blob returns ?kb= kilobytes (default 10) of text/plain, used to
	// exercise the adaptive compression policy.
	mux.HandleFunc("/blob", func(w http.ResponseWriter, r *http.Request) {
		kb := 10
		if v, err := strconv.Atoi(r.URL.Query().Get("kb")); err == nil && v > 0 {
			kb = v
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		line := "served_by=" + name + " the quick brown fox jumps over the lazy dog\n"
		for written := 0; written < kb*1024; written += len(line) {
			_, _ = w.Write([]byte(line))
		}
	})

	listener, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil && errors.Is(err, syscall.EADDRINUSE) {
		fallback := addrWithPortZero(cfg.ListenAddr)
		log.Printf("address %q in use, retrying on %q", cfg.ListenAddr, fallback)
		listener, err = net.Listen("tcp", fallback)
	}
	if err != nil {
		return err
	}

	log.Printf("upstream %q listening on %s", name, listener.Addr().String())
	return http.Serve(listener, withNameHeader(name, mux))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func addrWithPortZero(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return ":0"
	}
	return net.JoinHostPort(host, "0")
}

// withNameHeader stamps every response with the backend's configured
// name so a proxied client response can be correlated back to the
// instance that produced it without relying on body parsing alone.
func withNameHeader(name string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Upstream-Name", name)
		next.ServeHTTP(w, r)
	})
}
