package websocket

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// NewCheckOrigin returns the upgrader's origin policy. allowed follows CORS_ORIGIN: "*" admits
// every origin, otherwise it is a comma-separated list of exact origins. Requests without an
// Origin header (non-browser clients) are always admitted. In development localhost origins
// are admitted too.
func NewCheckOrigin(allowed string, isDevelopment bool) func(r *http.Request) bool {
	allowAll := strings.TrimSpace(allowed) == "*"
	origins := make(map[string]bool)
	for o := range strings.SplitSeq(allowed, ",") {
		if o = strings.TrimRight(strings.TrimSpace(o), "/"); o != "" && o != "*" {
			origins[o] = true
		}
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")

		if origin == "" || allowAll {
			return true
		}

		if origins[origin] || sameHost(origin, r.Host) {
			return true
		}

		if isDevelopment && isLocalhostOrigin(origin) {
			return true
		}

		slog.Warn("WebSocket origin rejected", "origin", origin, "remote_addr", r.RemoteAddr)
		return false
	}
}

func sameHost(origin, host string) bool {
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	return strings.EqualFold(u.Host, host)
}

func isLocalhostOrigin(origin string) bool {
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	host := u.Hostname()
	return host == "localhost" || host == "127.0.0.1" || host == "::1"
}
