// internal/config/model.go
//
// Typed configuration model for the binder service.
//
// Context
// -------
// These structs define the shape of the configuration tree that
// `internal/config/loader.go` builds from three overlay layers:
//
//   - optional `.env`                          – dotenv values,
//   - `conf/global.yaml`                       – primary static file,
//   - `BINDER_`-prefixed environment overrides – highest precedence.
//
// `Database.Password` may be a Vault reference (`vault:<mount>/<path>#<key>`).
// The model stores the reference as written; cmd/web resolves it through
// internal/secret before the DSN is built.
//
// Notes
// -----
//   - Struct tags use `koanf:"…"`, not `yaml:"…"`.
//   - The `Paths` block is filled at runtime; YAML must not try to set it.

package config

import (
	"fmt"
	"path/filepath"
	"time"
)

//
// HTTP section
//

// HTTP holds web-server tunables.
type HTTP struct {
	ListenAddr      string        `koanf:"listen_addr"      validate:"required,hostname_port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gte=0"`
	ForceHTTPS      bool          `koanf:"force_https"`
}

//
// Database section
//

// Database holds the DSN template and its secret.
//
// The template keeps host, port, and flags in YAML and carries exactly one
// `%s` verb where the password goes.  The password itself is usually a
// Vault reference so credentials stay out of flat files.
type Database struct {
	DSN      string `koanf:"dsn"       validate:"required,dsn_template"`
	Password string `koanf:"password"`
	MaxOpen  int    `koanf:"max_open"  validate:"gte=0"`
	MaxIdle  int    `koanf:"max_idle"  validate:"gte=0"`
	Migrate  bool   `koanf:"migrate"`
}

// BuildDSN fills the template with the resolved password.
func (d Database) BuildDSN(password string) string {
	return fmt.Sprintf(d.DSN, password)
}

//
// Secret section
//

// Secret tunes the Vault resolver.  It is only consulted when a value
// carries a `vault:` reference.
type Secret struct {
	CacheTTL time.Duration `koanf:"cache_ttl" validate:"gte=0"`
}

//
// Forms section
//

// Forms points at the YAML form definitions.
type Forms struct {
	Dir string `koanf:"dir" validate:"required"`
}

//
// GeoIP section
//

// GeoIP points at an optional MaxMind database for the request log.  Empty
// disables the lookup.
type GeoIP struct {
	DBPath string `koanf:"db_path"`
}

//
// Log section
//

// Log configures internal/logger.
type Log struct {
	Dir   string `koanf:"dir"`
	Tee   bool   `koanf:"tee"`
	Level string `koanf:"level" validate:"omitempty,oneof=debug info warn error"`
}

//
// Paths section (runtime only)
//

// Paths is resolved at runtime, never set in YAML or env.
type Paths struct {
	Root string // BINDER_ROOT or discovered parent
}

// Abs joins p onto Root unless p is already absolute.
func (p Paths) Abs(rel string) string {
	if rel == "" || filepath.IsAbs(rel) {
		return rel
	}
	return filepath.Join(p.Root, rel)
}

//
// Root aggregate
//

// Config is the immutable aggregate returned by Load() and cached in an
// atomic.Pointer for lock-free reads.
type Config struct {
	HTTP     HTTP     `koanf:"http"`
	Database Database `koanf:"database"`
	Secret   Secret   `koanf:"secret"`
	Forms    Forms    `koanf:"forms"`
	GeoIP    GeoIP    `koanf:"geoip"`
	Log      Log      `koanf:"log"`
	Paths    Paths    `koanf:"-"`
}
