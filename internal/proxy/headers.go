package proxy

import (
	"net"
	"net/http"
	"net/url"
	"strings"
)

// hopHeaders lists hop-by-hop headers stripped before forwarding a
// request upstream, per RFC 7230.
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailers",
	"Transfer-Encoding",
	"Upgrade",
}

// rewriteForUpstream mutates outReq in place: URI rewrite, Host rewrite,
// and the X-Forwarded-*/X-Real-IP tracing headers. X-Real-IP and
// X-Forwarded-Proto are only set when X-Forwarded-For was previously
// absent, so an intermediate hop's own chain is not clobbered.
func rewriteForUpstream(outReq *http.Request, backendURL *url.URL, proxyIdentifier string) {
	hadXFF := outReq.Header.Get("X-Forwarded-For") != ""

	outReq.URL.Scheme = backendURL.Scheme
	outReq.URL.Host = backendURL.Host
	outReq.URL.Path = joinPath(backendURL.Path, outReq.URL.Path)

	for _, h := range hopHeaders {
		outReq.Header.Del(h)
	}

	outReq.Header.Set("X-Forwarded-By", proxyIdentifier)

	if clientIP, _, err := net.SplitHostPort(outReq.RemoteAddr); err == nil && clientIP != "" {
		xff := outReq.Header.Get("X-Forwarded-For")
		if xff == "" {
			outReq.Header.Set("X-Forwarded-For", clientIP)
		} else {
			outReq.Header.Set("X-Forwarded-For", xff+", "+clientIP)
		}
		if !hadXFF {
			outReq.Header.Set("X-Forwarded-Proto", schemeOf(outReq))
			outReq.Header.Set("X-Real-IP", clientIP)
		}
	}

	outReq.Host = backendURL.Host
}

// joinPath joins the backend's base path with the inbound request path:
// trim_trailing_slash(base) + "/" + trim_leading_slash(reqPath),
// collapsing to the bare base (or "/" when the base is empty too) when
// reqPath is empty or "/".
func joinPath(base, reqPath string) string {
	base = strings.TrimRight(base, "/")
	if reqPath == "" || reqPath == "/" {
		if base == "" {
			return "/"
		}
		return base
	}
	return base + "/" + strings.TrimLeft(reqPath, "/")
}

func schemeOf(req *http.Request) string {
	if req.TLS != nil {
		return "https"
	}
	if sch := req.Header.Get("X-Forwarded-Proto"); sch != "" {
		return sch
	}
	return "http"
}

func copyHeader(dst, src http.Header) {
	for k, vv := range src {
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
}
