package security

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

const defaultHSTSMaxAge = 365 * 24 * time.Hour

// Headers sets the response headers every API reply carries. The API serves
// JSON only, so framing and content sniffing are refused outright.
type Headers struct {
	// HSTS emits Strict-Transport-Security on requests that arrived over TLS,
	// directly or through a proxy reporting X-Forwarded-Proto.
	HSTS                  bool
	HSTSMaxAge            time.Duration
	HSTSIncludeSubdomains bool
	// NoStore marks responses uncacheable; cart prices and stock change
	// between requests.
	NoStore bool
}

// Middleware attaches the configured headers before the handler runs.
func (h Headers) Middleware(next http.Handler) http.Handler {
	static := http.Header{}
	static.Set("X-Content-Type-Options", "nosniff")
	static.Set("X-Frame-Options", "DENY")
	static.Set("Referrer-Policy", "no-referrer")
	static.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
	if h.NoStore {
		static.Set("Cache-Control", "no-store")
	}
	hsts := h.hstsValue()

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		out := w.Header()
		for k, v := range static {
			out[k] = append([]string(nil), v...)
		}
		if hsts != "" && overTLS(r) {
			out.Set("Strict-Transport-Security", hsts)
		}
		next.ServeHTTP(w, r)
	})
}

func (h Headers) hstsValue() string {
	if !h.HSTS {
		return ""
	}
	maxAge := h.HSTSMaxAge
	if maxAge <= 0 {
		maxAge = defaultHSTSMaxAge
	}
	value := fmt.Sprintf("max-age=%d", int64(maxAge/time.Second))
	if h.HSTSIncludeSubdomains {
		value += "; includeSubDomains"
	}
	return value
}

func overTLS(r *http.Request) bool {
	return r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}
