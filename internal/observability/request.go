package observability

import (
	"net"
	"net/http"
	"strings"
)

// RequestID extracts the caller-provided request correlation id, if any.
func RequestID(r *http.Request) string {
	return r.Header.Get("X-Request-Id")
}

// DeviceID extracts the mobile client's device identifier, if any.
func DeviceID(r *http.Request) string {
	return r.Header.Get("X-Device-Id")
}

// ClientIP resolves the originating address, preferring the first
// X-Forwarded-For hop.
func ClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
