// internal/middleware/headers.go
//
// Response-header middleware for JSON APIs.
//
// Sets defaults on every response before the handler runs:
//
//   - X-Content-Type-Options    –  MIME-sniffing defence
//   - X-Frame-Options           –  click-jacking defence
//   - Content-Security-Policy   –  nothing may load from an API response
//   - Referrer-Policy           –  no Referer leaves the API
//   - Cache-Control             –  mutation results must not be cached
//   - Strict-Transport-Security –  only when the request arrived over TLS
//
// Notes
// -----
//   - Handlers may still override any value with Header().Set.

package middleware

import (
	"net/http"
	"strings"
)

// APIHeaders sets the default response headers.
func APIHeaders(next http.Handler) http.Handler {
	const (
		hsts  = "max-age=63072000; includeSubDomains"
		csp   = "default-src 'none'; frame-ancestors 'none'"
		xfo   = "DENY"
		nosn  = "nosniff"
		refer = "no-referrer"
		cache = "no-store"
	)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		setDefault(h, "X-Content-Type-Options", nosn)
		setDefault(h, "X-Frame-Options", xfo)
		setDefault(h, "Content-Security-Policy", csp)
		setDefault(h, "Referrer-Policy", refer)
		setDefault(h, "Cache-Control", cache)
		if isHTTPS(r) {
			setDefault(h, "Strict-Transport-Security", hsts)
		}
		next.ServeHTTP(w, r)
	})
}

// ForceHTTPS issues a 308 to the HTTPS URL for plain-HTTP requests, except
// for localhost.  Requests forwarded by a TLS-terminating proxy with
// X-Forwarded-Proto: https pass through.
func ForceHTTPS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isHTTPS(r) || stripPort(r.Host) == "localhost" {
			next.ServeHTTP(w, r)
			return
		}
		target := "https://" + r.Host + r.URL.RequestURI()
		http.Redirect(w, r, target, http.StatusPermanentRedirect)
	})
}

func setDefault(h http.Header, key, val string) {
	if h.Get(key) == "" {
		h.Set(key, val)
	}
}

func isHTTPS(r *http.Request) bool {
	return r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}

// stripPort removes the :port suffix from Host when present.
func stripPort(h string) string {
	if i := strings.LastIndexByte(h, ':'); i != -1 && !strings.HasSuffix(h, "]") {
		return h[:i]
	}
	return h
}
