// internal/middleware/geo.go
//
// Optional country lookup for the request log.  When geoip.db_path points at
// a MaxMind GeoLite2 (Country or City) database, cmd/web opens it once and
// hands the reader to RequestLog; each log line then carries the ISO country
// code of the client IP.  Without a database the field is simply omitted.

package middleware

import (
	"net"

	"github.com/oschwald/geoip2-golang"
)

// GeoLookup resolves an address to a country record.  *geoip2.Reader
// satisfies it.
type GeoLookup interface {
	Country(ip net.IP) (*geoip2.Country, error)
}

// LogOption customizes RequestLog.
type LogOption func(*logOptions)

type logOptions struct {
	geo GeoLookup
}

// WithGeo adds a "country" field resolved through g.
func WithGeo(g GeoLookup) LogOption {
	return func(o *logOptions) { o.geo = g }
}

// OpenGeo opens a MaxMind database.  The caller closes it on shutdown.
func OpenGeo(path string) (*geoip2.Reader, error) {
	return geoip2.Open(path)
}

// countryCode is best effort: lookup failures yield "".
func countryCode(g GeoLookup, ip net.IP) string {
	if g == nil || ip == nil {
		return ""
	}
	rec, err := g.Country(ip)
	if err != nil || rec == nil {
		return ""
	}
	return rec.Country.IsoCode
}
