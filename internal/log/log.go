// Package applog is the load balancer's logging core: a thin wrapper
// over the standard log package that also fire-and-forgets every line
// to Loki as a labeled stream. Configure wires the sink to the already-
// loaded config.LoggingConfig rather than reading its own config file,
// since the process has a single config loader (internal/config).
package applog

import (
	"bytes"
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

var (
	lokiURL    string
	lokiMu     sync.RWMutex
	lokiClient = &http.Client{Timeout: 200 * time.Millisecond}

	infoEnabled  atomic.Bool
	debugEnabled atomic.Bool
	errorEnabled atomic.Bool
)

func init() {
	infoEnabled.Store(true)
	errorEnabled.Store(true)
}

// Configure wires the logging sink to the resolved configuration.
// Called once at startup from cmd/loadbalancer after config.Load.
func Configure(lokiBaseURL string, infoOn, debugOn, errorOn *bool) {
	lokiMu.Lock()
	url := strings.TrimSpace(lokiBaseURL)
	if url != "" && !strings.Contains(url, "/loki/api/v1/push") {
		url = strings.TrimRight(url, "/") + "/loki/api/v1/push"
	}
	lokiURL = url
	lokiMu.Unlock()

	if infoOn != nil {
		infoEnabled.Store(*infoOn)
	}
	if debugOn != nil {
		debugEnabled.Store(*debugOn)
	}
	if errorOn != nil {
		errorEnabled.Store(*errorOn)
	}
}

func levelEnabled(level string) bool {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return debugEnabled.Load()
	case "error":
		return errorEnabled.Load()
	default:
		return infoEnabled.Load()
	}
}

// Emit prints locally (if enabled) and pushes the same line to Loki with a "level" label.
func Emit(level, app string, labels map[string]string, line string) {
	lvl := strings.ToLower(level)
	if logEnabled() && levelEnabled(lvl) {
		log.Print(line)
	}
	PushLokiWithLevel(lvl, app, labels, line)
}

// PushLokiWithLevel sends a single log line with labels to Loki, adding a
// "level" label. No-op if Loki is not configured or the level is disabled.
func PushLokiWithLevel(level, app string, labels map[string]string, line string) {
	lokiMu.RLock()
	url := lokiURL
	lokiMu.RUnlock()
	if url == "" || !levelEnabled(level) {
		return
	}

	lbls := map[string]string{
		"app":   app,
		"level": strings.ToLower(strings.TrimSpace(level)),
	}
	for k, v := range labels {
		if strings.TrimSpace(k) == "" {
			continue
		}
		lbls[k] = v
	}

	ts := strconv.FormatInt(time.Now().UnixNano(), 10)
	payload := struct {
		Streams []struct {
			Stream map[string]string `json:"stream"`
			Values [][2]string       `json:"values"`
		} `json:"streams"`
	}{
		Streams: []struct {
			Stream map[string]string `json:"stream"`
			Values [][2]string       `json:"values"`
		}{
			{Stream: lbls, Values: [][2]string{{ts, line}}},
		},
	}

	b, _ := json.Marshal(payload)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")
	_, _ = lokiClient.Do(req) // fire-and-forget
}

// MustHostname returns the current hostname or "unknown" on error.
func MustHostname() string {
	h, err := os.Hostname()
	if err != nil || h == "" {
		return "unknown"
	}
	return h
}

func logEnabled() bool {
	// In test binaries, the testing package registers these flags; keep
	// test output quiet.
	if flag.Lookup("test.v") != nil || flag.Lookup("test.run") != nil || flag.Lookup("test.bench") != nil {
		return false
	}
	return true
}

// isMetricsScrape flags a request as Prometheus scrape noise so the
// per-event proxy loggers can skip it rather than push one Loki line
// per poll interval.
func isMetricsScrape(r *http.Request) bool {
	if r.URL != nil && r.URL.Path == "/metrics" {
		return true
	}
	if strings.Contains(r.Header.Get("User-Agent"), "Prometheus") {
		return true
	}
	if strings.Contains(r.Header.Get("Accept"), "openmetrics") {
		return true
	}
	return false
}
