// Package compress implements the adaptive response compression policy
// applied to upstream responses before they reach the client: gzip when
// it helps, pass-through otherwise. Grounded on the original
// proxy/response.rs compression policy and the stdlib compress/gzip
// package — no third-party compressor is warranted here since gzip is
// the only algorithm named by the policy and compress/gzip is the
// ecosystem's own reference implementation (see DESIGN.md).
package compress

import (
	"bytes"
	"compress/gzip"
	"net/http"
	"strings"
)

// minSize is the smallest buffered body, in bytes, worth attempting to
// gzip at all.
const minSize = 150

// Result describes the outcome the pipeline should apply to the
// response it is about to forward to the client.
type Result struct {
	Body         []byte
	Encoding     string // "gzip" or "" for identity
	RemoveLength bool
	OriginalSize int
	EncodedSize  int
}

// Apply buffers body and decides whether to gzip it, honoring the
// upstream's own Content-Encoding, the response Content-Type, and the
// client's Accept-Encoding header captured before the request left for
// upstream.
func Apply(upstreamContentEncoding, contentType, acceptEncoding string, body []byte) Result {
	if strings.TrimSpace(upstreamContentEncoding) != "" {
		return Result{Body: body, OriginalSize: len(body)}
	}
	if isIncompressibleType(contentType) {
		return Result{Body: body, OriginalSize: len(body)}
	}
	if !wantsGzip(acceptEncoding) {
		return Result{Body: body, OriginalSize: len(body)}
	}
	if len(body) < minSize {
		return Result{Body: body, OriginalSize: len(body)}
	}

	encoded, err := gzipEncode(body)
	if err != nil || len(encoded) >= len(body) {
		return Result{Body: body, OriginalSize: len(body), EncodedSize: len(encoded)}
	}
	return Result{
		Body:         encoded,
		Encoding:     "gzip",
		RemoveLength: true,
		OriginalSize: len(body),
		EncodedSize:  len(encoded),
	}
}

// ApplyToResponse updates an *http.Response's Content-Encoding and
// Content-Length headers (and ContentLength) in place per Apply's
// decision, and returns the body bytes to send; resp.Body itself is not
// replaced. The caller is responsible for having already drained and
// closed the original body into the bytes passed here.
func ApplyToResponse(resp *http.Response, acceptEncoding string, body []byte) []byte {
	res := Apply(resp.Header.Get("Content-Encoding"), resp.Header.Get("Content-Type"), acceptEncoding, body)
	if res.Encoding != "" {
		resp.Header.Set("Content-Encoding", res.Encoding)
	}
	if res.RemoveLength {
		resp.Header.Del("Content-Length")
		resp.ContentLength = -1
	}
	return res.Body
}

func gzipEncode(body []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(body); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// wantsGzip parses an Accept-Encoding header for the gzip token:
// presence of "gzip" anywhere in the comma-separated list selects gzip;
// "identity" alone, or an empty header, passes through; anything else
// also passes through.
func wantsGzip(acceptEncoding string) bool {
	for _, tok := range strings.Split(acceptEncoding, ",") {
		tok = strings.TrimSpace(tok)
		// Strip a q-value parameter if present (e.g. "gzip;q=0.8").
		if i := strings.IndexByte(tok, ';'); i >= 0 {
			tok = tok[:i]
		}
		if strings.EqualFold(tok, "gzip") {
			return true
		}
	}
	return false
}

var incompressiblePrefixes = []string{"image/", "video/", "audio/"}
var incompressibleSubstrings = []string{"octet-stream", "compressed", "zip"}

// isIncompressibleType flags content types not worth gzipping: already
// compressed media formats and generic binary blobs.
func isIncompressibleType(contentType string) bool {
	ct := strings.ToLower(contentType)
	for _, p := range incompressiblePrefixes {
		if strings.HasPrefix(ct, p) {
			return true
		}
	}
	for _, s := range incompressibleSubstrings {
		if strings.Contains(ct, s) {
			return true
		}
	}
	return false
}
