package compress

import (
	"bytes"
	"compress/gzip"
	"io"
	"math/rand"
	"testing"
)

func bigCompressibleBody() []byte {
	return bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog. "), 50)
}

func TestApplyPassesThroughExistingEncoding(t *testing.T) {
	body := bigCompressibleBody()
	res := Apply("br", "text/plain", "gzip", body)
	if res.Encoding != "" {
		t.Fatalf("expected pass-through for already-encoded response, got %q", res.Encoding)
	}
	if !bytes.Equal(res.Body, body) {
		t.Fatalf("body must be unchanged on pass-through")
	}
}

func TestApplySkipsIncompressibleTypes(t *testing.T) {
	body := bigCompressibleBody()
	for _, ct := range []string{"image/png", "video/mp4", "audio/mpeg", "application/octet-stream", "application/zip", "application/x-compressed"} {
		res := Apply("", ct, "gzip", body)
		if res.Encoding != "" {
			t.Fatalf("content-type %q: expected pass-through, got gzip", ct)
		}
	}
}

func TestApplyHonorsAcceptEncoding(t *testing.T) {
	body := bigCompressibleBody()

	if res := Apply("", "text/plain", "identity", body); res.Encoding != "" {
		t.Fatalf("identity-only accept-encoding must not trigger gzip")
	}
	if res := Apply("", "text/plain", "", body); res.Encoding != "" {
		t.Fatalf("empty accept-encoding must not trigger gzip")
	}
	if res := Apply("", "text/plain", "deflate", body); res.Encoding != "" {
		t.Fatalf("unsupported accept-encoding must not trigger gzip")
	}
	if res := Apply("", "text/plain", "gzip;q=0.9, deflate", body); res.Encoding != "gzip" {
		t.Fatalf("gzip token with q-value must still be honored")
	}
}

func TestApplySkipsSmallBodies(t *testing.T) {
	body := []byte("short body")
	res := Apply("", "text/plain", "gzip", body)
	if res.Encoding != "" {
		t.Fatalf("bodies under the minimum size must not be gzipped")
	}
	if !bytes.Equal(res.Body, body) {
		t.Fatalf("small body must be passed through unmodified")
	}
}

func TestApplyCompressesLargeCompressibleBody(t *testing.T) {
	body := bigCompressibleBody()
	res := Apply("", "text/plain", "gzip", body)
	if res.Encoding != "gzip" {
		t.Fatalf("expected gzip encoding for a large compressible body")
	}
	if !res.RemoveLength {
		t.Fatalf("Content-Length must be marked for removal on successful compression")
	}
	if len(res.Body) >= len(body) {
		t.Fatalf("compressed body must be smaller than the original")
	}

	r, err := gzip.NewReader(bytes.NewReader(res.Body))
	if err != nil {
		t.Fatalf("compressed body is not valid gzip: %v", err)
	}
	defer r.Close()
	decoded, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("failed to read gzip body: %v", err)
	}
	if !bytes.Equal(decoded, body) {
		t.Fatalf("round-tripped body does not match original")
	}
}

func TestApplyFallsBackWhenCompressionDoesNotHelp(t *testing.T) {
	// Pseudo-random payload large enough to pass the size floor but that
	// gzip cannot shrink, so Apply must fall back to the original bytes.
	body := make([]byte, 400)
	rand.New(rand.NewSource(1)).Read(body)
	res := Apply("", "text/plain", "gzip", body)
	if res.Encoding != "" {
		t.Fatalf("expected fallback to identity when gzip does not shrink the body, got %q", res.Encoding)
	}
	if !bytes.Equal(res.Body, body) {
		t.Fatalf("pass-through body must equal the original bytes")
	}
}

func TestApplyIsIdempotent(t *testing.T) {
	body := bigCompressibleBody()
	first := Apply("", "text/plain", "gzip", body)
	second := Apply(first.Encoding, "text/plain", "gzip", first.Body)
	if second.Encoding != "" {
		t.Fatalf("second pass must see Content-Encoding and pass through")
	}
	if !bytes.Equal(second.Body, first.Body) {
		t.Fatalf("second pass must not mutate already-encoded bytes")
	}
}
