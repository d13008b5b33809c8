package api

import (
	"net"
	"net/http"
	"strings"
)

// proxyHeaders are consulted in order for the visitor address behind CDNs and reverse proxies.
var proxyHeaders = []string{
	"x-forwarded-for",
	"cf-connecting-ip",
	"x-real-ip",
	"x-client-ip",
	"x-edge-client-ip",
	"x-edgeone-ip",
}

// visitorIP returns the address used for the GeoIP origin fallback. Headers can be forged, so
// the result only ever picks a map position and never grants access.
func visitorIP(r *http.Request) string {
	h := r.Header
	for _, name := range proxyHeaders {
		if x := h.Get(name); x != "" {
			first, _, _ := strings.Cut(x, ",")
			return strings.TrimSpace(first)
		}
	}
	if x := h.Get("forwarded"); x != "" {
		if ip := forwardedFor(x); ip != "" {
			return ip
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// forwardedFor extracts the first for= node of an RFC 7239 Forwarded header.
func forwardedFor(v string) string {
	i := strings.Index(strings.ToLower(v), "for=")
	if i < 0 {
		return ""
	}
	y := v[i+4:]
	if p := strings.IndexAny(y, ";,"); p >= 0 {
		y = y[:p]
	}
	y = strings.Trim(y, "\" ")
	// quoted IPv6 form: "[2001:db8::1]:4711"
	if strings.HasPrefix(y, "[") {
		if host, _, err := net.SplitHostPort(y); err == nil {
			return host
		}
		return strings.Trim(y, "[]")
	}
	if host, _, err := net.SplitHostPort(y); err == nil {
		return host
	}
	return y
}
