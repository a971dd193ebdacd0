package proxy

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/opsbridge/fleetlb/internal/backend"
	"github.com/opsbridge/fleetlb/internal/pool"
)

func TestServeLivenessHealthyBackend(t *testing.T) {
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer up.Close()

	p := pool.New([]backend.Backend{backend.New("a", up.URL, 1)}, "round_robin")
	req := httptest.NewRequest(http.MethodGet, "/health/a", nil)
	w := httptest.NewRecorder()

	serveLiveness(p).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}

func TestServeLivenessUnhealthyBackend(t *testing.T) {
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer up.Close()

	p := pool.New([]backend.Backend{backend.New("a", up.URL, 1)}, "round_robin")
	req := httptest.NewRequest(http.MethodGet, "/health/a", nil)
	w := httptest.NewRecorder()

	serveLiveness(p).ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
}

func TestServeLivenessUnreachableBackend(t *testing.T) {
	p := pool.New([]backend.Backend{backend.New("a", "http://127.0.0.1:1", 1)}, "round_robin")
	req := httptest.NewRequest(http.MethodGet, "/health/a", nil)
	w := httptest.NewRecorder()

	serveLiveness(p).ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
}

func TestServeLivenessUnknownNameReturns404(t *testing.T) {
	p := pool.New([]backend.Backend{backend.New("a", "http://127.0.0.1:1", 1)}, "round_robin")
	req := httptest.NewRequest(http.MethodGet, "/health/missing", nil)
	w := httptest.NewRecorder()

	serveLiveness(p).ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestServeLivenessEmptyNameReturns404(t *testing.T) {
	p := pool.New([]backend.Backend{backend.New("a", "http://127.0.0.1:1", 1)}, "round_robin")
	req := httptest.NewRequest(http.MethodGet, "/health/", nil)
	w := httptest.NewRecorder()

	serveLiveness(p).ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}
