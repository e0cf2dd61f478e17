package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConf(t *testing.T, root, name, body string) {
	t.Helper()
	dir := filepath.Join(root, "conf")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
}

const baseYAML = `
http:
  listen_addr: ":8080"
database:
  dsn: "binder:%s@tcp(localhost:3306)/binder?parseTime=true"
  password: "vault:secret/binder/db#password"
`

func TestLoadFromYAMLWithDefaults(t *testing.T) {
	root := t.TempDir()
	writeConf(t, root, "global.yaml", baseYAML)

	cfg, err := LoadFrom(root)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTP.ListenAddr)
	assert.Equal(t, 10*time.Second, cfg.HTTP.ShutdownTimeout)
	assert.Equal(t, 15, cfg.Database.MaxOpen)
	assert.False(t, cfg.Database.Migrate)
	assert.Equal(t, 5*time.Minute, cfg.Secret.CacheTTL)
	assert.Equal(t, "forms", cfg.Forms.Dir)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Empty(t, cfg.GeoIP.DBPath)
	assert.Equal(t, root, cfg.Paths.Root)
	assert.Equal(t, filepath.Join(root, "forms"), cfg.Paths.Abs(cfg.Forms.Dir))
	assert.Equal(t, "vault:secret/binder/db#password", cfg.Database.Password)
	assert.Same(t, cfg, Get())
}

func TestLoadFromEnvOverrides(t *testing.T) {
	root := t.TempDir()
	writeConf(t, root, "global.yaml", baseYAML)
	writeConf(t, root, ".env", "BINDER_LOG__LEVEL=debug\n")
	t.Setenv("BINDER_HTTP__LISTEN_ADDR", "127.0.0.1:9090")
	t.Setenv("BINDER_HTTP__SHUTDOWN_TIMEOUT", "3s")
	t.Setenv("BINDER_GEOIP__DB_PATH", "data/GeoLite2-Country.mmdb")
	t.Cleanup(func() { os.Unsetenv("BINDER_LOG__LEVEL") })

	cfg, err := LoadFrom(root)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9090", cfg.HTTP.ListenAddr)
	assert.Equal(t, 3*time.Second, cfg.HTTP.ShutdownTimeout)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "data/GeoLite2-Country.mmdb", cfg.GeoIP.DBPath)
}

func TestLoadFromRejectsInvalidConfig(t *testing.T) {
	cases := map[string]string{
		"missing listen addr": `
database:
  dsn: "u:%s@tcp(h)/d"
`,
		"dsn without verb": `
http:
  listen_addr: ":8080"
database:
  dsn: "u:pw@tcp(h)/d"
`,
		"dsn with two verbs": `
http:
  listen_addr: ":8080"
database:
  dsn: "%s:%s@tcp(h)/d"
`,
		"unknown log level": baseYAML + `
log:
  level: loud
`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			root := t.TempDir()
			writeConf(t, root, "global.yaml", body)
			_, err := LoadFrom(root)
			assert.Error(t, err)
		})
	}
}

func TestLoadFromMissingYAML(t *testing.T) {
	_, err := LoadFrom(t.TempDir())
	assert.Error(t, err)
}

func TestBuildDSN(t *testing.T) {
	d := Database{DSN: "binder:%s@tcp(db:3306)/binder"}
	assert.Equal(t, "binder:pw@tcp(db:3306)/binder", d.BuildDSN("pw"))
}
