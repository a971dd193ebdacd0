package proxy

import (
	"net/http/httptest"
	"net/url"
	"testing"
)

func TestJoinPath(t *testing.T) {
	cases := []struct{ base, req, want string }{
		{"http://host/api", "/foo", "http://host/api/foo"},
		{"http://host/api/", "/foo", "http://host/api/foo"},
		{"http://host/api", "", "http://host/api"},
		{"http://host/api", "/", "http://host/api"},
		{"http://host", "/foo/bar", "http://host/foo/bar"},
	}
	for _, c := range cases {
		got := joinPath(c.base, c.req)
		if got != c.want {
			t.Errorf("joinPath(%q, %q) = %q, want %q", c.base, c.req, got, c.want)
		}
	}
}

func TestRewriteForUpstreamSetsHostAndURI(t *testing.T) {
	backendURL, _ := url.Parse("http://upstream.internal:9000/base")
	req := httptest.NewRequest("GET", "http://lb.example.com/resource", nil)
	req.RemoteAddr = "10.0.0.5:54321"

	rewriteForUpstream(req, backendURL, "lb-1")

	if req.URL.Host != "upstream.internal:9000" {
		t.Errorf("URL.Host = %q, want upstream.internal:9000", req.URL.Host)
	}
	if req.URL.Path != "/base/resource" {
		t.Errorf("URL.Path = %q, want /base/resource", req.URL.Path)
	}
	if req.Host != "upstream.internal:9000" {
		t.Errorf("Host = %q, want upstream.internal:9000", req.Host)
	}
	if req.Header.Get("X-Forwarded-By") != "lb-1" {
		t.Errorf("X-Forwarded-By = %q, want lb-1", req.Header.Get("X-Forwarded-By"))
	}
	if req.Header.Get("X-Forwarded-For") != "10.0.0.5" {
		t.Errorf("X-Forwarded-For = %q, want 10.0.0.5", req.Header.Get("X-Forwarded-For"))
	}
	if req.Header.Get("X-Real-IP") != "10.0.0.5" {
		t.Errorf("X-Real-IP = %q, want 10.0.0.5", req.Header.Get("X-Real-IP"))
	}
}

func TestRewriteForUpstreamPreservesExistingForwardedFor(t *testing.T) {
	backendURL, _ := url.Parse("http://upstream.internal:9000")
	req := httptest.NewRequest("GET", "http://lb.example.com/", nil)
	req.RemoteAddr = "10.0.0.5:54321"
	req.Header.Set("X-Forwarded-For", "203.0.113.9")

	rewriteForUpstream(req, backendURL, "lb-1")

	if req.Header.Get("X-Forwarded-For") != "203.0.113.9, 10.0.0.5" {
		t.Errorf("X-Forwarded-For = %q, want chained", req.Header.Get("X-Forwarded-For"))
	}
	// X-Real-IP/X-Forwarded-Proto are only set when X-Forwarded-For was
	// previously absent, so an upstream chain's own identity is not
	// clobbered by an intermediate hop.
	if req.Header.Get("X-Real-IP") != "" {
		t.Errorf("X-Real-IP should be left unset, got %q", req.Header.Get("X-Real-IP"))
	}
}

func TestRewriteForUpstreamStripsHopHeaders(t *testing.T) {
	backendURL, _ := url.Parse("http://upstream.internal:9000")
	req := httptest.NewRequest("GET", "http://lb.example.com/", nil)
	req.Header.Set("Connection", "keep-alive")
	req.Header.Set("Upgrade", "websocket")

	rewriteForUpstream(req, backendURL, "lb-1")

	for _, h := range hopHeaders {
		if req.Header.Get(h) != "" {
			t.Errorf("hop header %s should be stripped, got %q", h, req.Header.Get(h))
		}
	}
}
