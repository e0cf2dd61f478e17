// internal/middleware/requestlog.go
//
// Request logging middleware.
//
/*
Context
--------
Sits right after chi's RequestID in the chain.  For every request it:

  1. Derives a request-scoped *zap.Logger carrying the request ID, client
     IP, and the user-agent family, and stores it with logger.WithContext
     so the binder and handlers log with the same fields.
  2. Wraps the ResponseWriter to capture status and bytes written.
  3. After the handler returns, writes one INFO line (WARN for 5xx) and
     observes http_request_duration_seconds.

User agents are classified with uasurfer; only the browser, OS, device
class, and bot flag are logged, never the raw header.  With WithGeo the line
also carries the client's ISO country code.

Notes
-----
  - The client IP is the left-most parseable address of X-Forwarded-For,
    then X-Real-Ip, then RemoteAddr.  Only trust it behind a proxy that
    overwrites those headers.
*/
package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	surfer "github.com/avct/uasurfer"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/yanizio/binder/internal/logger"
	"github.com/yanizio/binder/internal/metrics"
)

/*──────────────────────────── middleware ───────────────────────────────────*/

// RequestLog returns middleware that logs every request through base.
func RequestLog(base *zap.Logger, opts ...LogOption) func(http.Handler) http.Handler {
	var o logOptions
	for _, fn := range opts {
		fn(&o)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			client := ParseClient(r.UserAgent())
			ip := clientIP(r)

			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("ip", ipString(ip)),
				zap.String("browser", client.Browser),
				zap.String("os", client.OS),
				zap.String("device", client.Device),
				zap.Bool("bot", client.IsBot),
			}
			if cc := countryCode(o.geo, ip); cc != "" {
				fields = append(fields, zap.String("country", cc))
			}
			if id := chimw.GetReqID(r.Context()); id != "" {
				fields = append(fields, zap.String("request_id", id))
			}
			reqLog := base.With(fields...)

			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(logger.WithContext(r.Context(), reqLog)))

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			elapsed := time.Since(start)
			metrics.HTTPRequestDuration.
				WithLabelValues(methodLabel(r.Method), strconv.Itoa(status/100)+"xx").
				Observe(elapsed.Seconds())

			level := reqLog.Info
			if status >= http.StatusInternalServerError {
				level = reqLog.Warn
			}
			level("request",
				zap.Int("status", status),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", elapsed),
			)
		})
	}
}

// methodLabel folds non-standard methods into "other" for the histogram.
func methodLabel(m string) string {
	switch m {
	case http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut,
		http.MethodPatch, http.MethodDelete, http.MethodOptions:
		return m
	}
	return "other"
}

/*──────────────────────────── user agent ───────────────────────────────────*/

// Client is the coarse user-agent classification that gets logged.
type Client struct {
	Browser string
	OS      string
	Device  string // "Desktop", "Mobile", "Tablet", or "Other"
	IsBot   bool
}

// ParseClient classifies a raw User-Agent header.
func ParseClient(raw string) Client {
	ua := surfer.Parse(raw)

	c := Client{
		Browser: ua.Browser.Name.String(),
		OS:      ua.OS.Name.String(),
		IsBot:   ua.IsBot(),
	}
	switch ua.DeviceType {
	case surfer.DeviceComputer:
		c.Device = "Desktop"
	case surfer.DeviceTablet:
		c.Device = "Tablet"
	case surfer.DevicePhone, surfer.DeviceWearable:
		c.Device = "Mobile"
	default:
		c.Device = "Other"
	}
	return c
}

/*──────────────────────────── client IP helper ─────────────────────────────*/

// clientIP extracts the left-most address from X-Forwarded-For or
// X-Real-IP, falling back to r.RemoteAddr ("ip:port").
func clientIP(r *http.Request) net.IP {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		for _, part := range strings.Split(xff, ",") {
			if ip := net.ParseIP(strings.TrimSpace(part)); ip != nil {
				return ip
			}
		}
	}
	if xrip := r.Header.Get("X-Real-Ip"); xrip != "" {
		if ip := net.ParseIP(strings.TrimSpace(xrip)); ip != nil {
			return ip
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return net.ParseIP(host)
	}
	return nil
}

func ipString(ip net.IP) string {
	if ip == nil {
		return ""
	}
	return ip.String()
}
