package applog

import (
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// LogRequest logs an inbound client request before selection runs;
// backend is "pending" since selection has not happened yet.
func LogRequest(r *http.Request) {
	if isMetricsScrape(r) {
		return
	}
	url := r.URL.RequestURI()
	labels := map[string]string{
		"method":     r.Method,
		"status":     "pending",
		"backend":    "pending",
		"host":       MustHostname(),
		"request_id": r.Header.Get("X-Request-ID"),
		"url":        url,
	}
	info := fmt.Sprintf("REQ method=%s url=%s req_id=%s", r.Method, url, r.Header.Get("X-Request-ID"))
	Emit("info", "proxy", labels, info)

	debug := fmt.Sprintf("REQ remote=%s method=%s url=%s proto=%s headers=%v",
		r.RemoteAddr, r.Method, url, r.Proto, r.Header)
	Emit("debug", "proxy", labels, debug)
}

// LogSelection records which backend and strategy served a request.
func LogSelection(r *http.Request, strategy, backend string) {
	if isMetricsScrape(r) {
		return
	}
	labels := map[string]string{
		"method":     r.Method,
		"backend":    backend,
		"strategy":   strategy,
		"host":       MustHostname(),
		"request_id": r.Header.Get("X-Request-ID"),
		"url":        r.URL.RequestURI(),
	}
	line := fmt.Sprintf("SELECT strategy=%s backend=%s url=%s req_id=%s", strategy, backend, r.URL.RequestURI(), r.Header.Get("X-Request-ID"))
	Emit("debug", "proxy", labels, line)
}

// LogNoHealthyBackend records a request rejected for lack of a healthy backend.
func LogNoHealthyBackend(r *http.Request) {
	if isMetricsScrape(r) {
		return
	}
	labels := map[string]string{
		"method":     r.Method,
		"status":     "503",
		"backend":    "none",
		"host":       MustHostname(),
		"request_id": r.Header.Get("X-Request-ID"),
		"url":        r.URL.RequestURI(),
	}
	line := fmt.Sprintf("ERROR status=503 method=%s url=%s reason=no_healthy_backend req_id=%s",
		r.Method, r.URL.RequestURI(), r.Header.Get("X-Request-ID"))
	Emit("error", "proxy", labels, line)
}

// LogDispatchError records an upstream transport failure.
func LogDispatchError(r *http.Request, backend string, status int, err error) {
	if isMetricsScrape(r) {
		return
	}
	labels := map[string]string{
		"method":     r.Method,
		"status":     strconv.Itoa(status),
		"backend":    backend,
		"host":       MustHostname(),
		"request_id": r.Header.Get("X-Request-ID"),
		"url":        r.URL.RequestURI(),
	}
	line := fmt.Sprintf("ERROR status=%d method=%s url=%s backend=%s err=%v req_id=%s",
		status, r.Method, r.URL.RequestURI(), backend, err, r.Header.Get("X-Request-ID"))
	Emit("error", "proxy", labels, line)
}

// LogResponse logs the final client-facing response.
func LogResponse(r *http.Request, backend string, status int, bytesWritten int, dur time.Duration, encoding string) {
	if isMetricsScrape(r) {
		return
	}
	labels := map[string]string{
		"method":     r.Method,
		"status":     strconv.Itoa(status),
		"backend":    backend,
		"host":       MustHostname(),
		"request_id": r.Header.Get("X-Request-ID"),
		"url":        r.URL.RequestURI(),
	}
	info := fmt.Sprintf("RESP status=%d bytes=%d dur=%s backend=%s req_id=%s", status, bytesWritten, dur.String(), backend, r.Header.Get("X-Request-ID"))
	Emit("info", "proxy", labels, info)

	debug := fmt.Sprintf("RESP status=%d bytes=%d dur=%s backend=%s encoding=%q req_id=%s",
		status, bytesWritten, dur.String(), backend, encoding, r.Header.Get("X-Request-ID"))
	Emit("debug", "proxy", labels, debug)
}

// LogHealthTransition records a backend status change observed by the prober.
func LogHealthTransition(backend, from, to string) {
	labels := map[string]string{
		"backend": backend,
		"host":    MustHostname(),
	}
	line := fmt.Sprintf("HEALTH backend=%s from=%s to=%s", backend, from, to)
	Emit("info", "health", labels, line)
}

// LogCompressionDecision records the adaptive-compression outcome for a response.
func LogCompressionDecision(r *http.Request, backend, outcome string, originalSize, encodedSize int) {
	if isMetricsScrape(r) {
		return
	}
	labels := map[string]string{
		"backend":    backend,
		"host":       MustHostname(),
		"request_id": r.Header.Get("X-Request-ID"),
	}
	line := fmt.Sprintf("COMPRESS outcome=%s original=%d encoded=%d backend=%s req_id=%s",
		outcome, originalSize, encodedSize, backend, r.Header.Get("X-Request-ID"))
	Emit("debug", "proxy", labels, line)
}
