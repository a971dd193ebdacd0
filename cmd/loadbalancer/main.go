// Command loadbalancer runs the reverse-proxy load balancer: it loads
// configuration, builds the backend pool and selection strategy, starts
// the health prober, and serves the proxy pipeline plus an admin
// metrics listener.
package main

import (
	"context"
	"crypto/tls"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/opsbridge/fleetlb/internal/backend"
	"github.com/opsbridge/fleetlb/internal/config"
	"github.com/opsbridge/fleetlb/internal/health"
	applog "github.com/opsbridge/fleetlb/internal/log"
	"github.com/opsbridge/fleetlb/internal/pool"
	"github.com/opsbridge/fleetlb/internal/proxy"
)

func main() {
	os.Exit(run())
}

func run() int {
	fs := flag.NewFlagSet("loadbalancer", flag.ContinueOnError)
	flags, err := config.ParseFlags(fs, os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintln(os.Stderr, "parse flags:", err)
		return 2
	}

	cfg, err := config.Load(flags)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		return 1
	}

	applog.Configure(cfg.Logging.LokiURL, cfg.Logging.InfoEnabled, cfg.Logging.DebugEnabled, cfg.Logging.ErrorEnabled)

	backends := make([]backend.Backend, len(cfg.Backends))
	for i, b := range cfg.Backends {
		weight := 1
		if b.Weight != nil {
			weight = *b.Weight
		}
		built := backend.New(b.Name, b.URL, weight)
		if b.TimeoutSeconds != nil {
			built = built.WithTimeout(time.Duration(*b.TimeoutSeconds) * time.Second)
		}
		backends[i] = built
	}
	p := pool.New(backends, cfg.LBStrategy)

	proxyHandler := proxy.New(p, proxy.Options{
		ProxyIdentifier:   cfg.ProxyIdentifier,
		AdmissionCapacity: cfg.AdmissionCapacity,
		UpstreamTimeout:   time.Duration(cfg.UpstreamTimeoutSeconds) * time.Second,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	selfBaseURL := fmt.Sprintf("http://%s", cfg.Addr())
	prober := health.New(p, cfg.HealthCheckInterval, selfBaseURL)
	go prober.Run(ctx)

	adminMux := http.NewServeMux()
	adminMux.Handle("/metrics", promhttp.Handler())
	adminServer := &http.Server{Addr: cfg.Admin.Addr, Handler: adminMux}

	plainServer := &http.Server{Addr: cfg.Addr(), Handler: proxyHandler.Handler()}

	var tlsServer *http.Server
	if cfg.TLS.Enabled {
		tlsServer = &http.Server{Addr: cfg.TLSAddr(), Handler: proxyHandler.Handler()}
	}

	errCh := make(chan error, 3)

	go func() {
		applog.Emit("info", "loadbalancer", map[string]string{"addr": plainServer.Addr}, "listening for proxy traffic")
		if err := plainServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("proxy listener: %w", err)
		}
	}()

	go func() {
		applog.Emit("info", "loadbalancer", map[string]string{"addr": adminServer.Addr}, "listening for admin traffic")
		if err := adminServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("admin listener: %w", err)
		}
	}()

	if tlsServer != nil {
		if err := ensureSelfSignedIfMissing(cfg.TLS.CertFile, cfg.TLS.KeyFile); err != nil {
			fmt.Fprintln(os.Stderr, "prepare TLS keypair:", err)
			return 1
		}
		if _, err := tls.LoadX509KeyPair(cfg.TLS.CertFile, cfg.TLS.KeyFile); err != nil {
			fmt.Fprintln(os.Stderr, "load TLS keypair:", err)
			return 1
		}
		go func() {
			applog.Emit("info", "loadbalancer", map[string]string{"addr": tlsServer.Addr}, "listening for TLS proxy traffic")
			if err := tlsServer.ListenAndServeTLS(cfg.TLS.CertFile, cfg.TLS.KeyFile); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("TLS listener: %w", err)
			}
		}()
	}

	select {
	case <-ctx.Done():
		applog.Emit("info", "loadbalancer", nil, "shutdown signal received")
	case err := <-errCh:
		fmt.Fprintln(os.Stderr, err)
		shutdown(plainServer, adminServer, tlsServer)
		return 1
	}

	shutdown(plainServer, adminServer, tlsServer)
	return 0
}

func shutdown(servers ...*http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, s := range servers {
		if s == nil {
			continue
		}
		_ = s.Shutdown(ctx)
	}
}
