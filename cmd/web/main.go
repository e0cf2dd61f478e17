// cmd/web/main.go
//
// Binder service: HTTP entry point.
//
// Boot sequence
// -------------
//
//  1. Load configuration (conf/.env → conf/global.yaml → BINDER_* env).
//
//  2. Start the rotating JSON logger (tees to console when configured).
//
//  3. Resolve the database password.  A `vault:` reference goes through the
//     Vault resolver; a plain value is used as written.
//
//  4. Open the MySQL pool and, when database.migrate is set, run component
//     migrations.
//
//  5. Load form definitions and refuse to start if a component binds a
//     (verb, entity) pair that has no form.
//
//  6. Build the router: request ID → request log (with a country code when
//     geoip.db_path is set) → API headers → recoverer,
//     components mounted at “/”, Prometheus at /metrics, and the OpenAPI
//     document at /openapi.json.
//
//  7. Serve until SIGINT/SIGTERM, then drain within http.shutdown_timeout.
//
// Large comment blocks are framed by blank “//” lines; inline comments use
// a single “//”.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/yanizio/binder/internal/apidoc"
	"github.com/yanizio/binder/internal/component"
	"github.com/yanizio/binder/internal/config"
	"github.com/yanizio/binder/internal/database"
	"github.com/yanizio/binder/internal/form"
	"github.com/yanizio/binder/internal/logger"
	"github.com/yanizio/binder/internal/middleware"
	"github.com/yanizio/binder/internal/secret"
	"github.com/yanizio/binder/internal/server"

	_ "github.com/yanizio/binder/components/widget" // widget endpoints
)

// version is stamped at build time: -ldflags "-X main.version=…".
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("binder: %v", err)
	}
}

func run(ctx context.Context) error {
	//
	// ── 1.  Config + logger ─────────────────────────────────────────────
	//
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	zl, err := logger.New(logger.Options{
		Dir:   cfg.Paths.Abs(cfg.Log.Dir),
		Tee:   cfg.Log.Tee,
		Level: cfg.Log.Level,
	})
	if err != nil {
		return fmt.Errorf("start logger: %w", err)
	}
	defer func() { _ = zl.Sync() }()

	//
	// ── 2.  Database ────────────────────────────────────────────────────
	//
	password := cfg.Database.Password
	if secret.IsRef(password) {
		res, err := secret.NewVault(ctx, cfg.Secret.CacheTTL)
		if err != nil {
			return err
		}
		if password, err = res.Resolve(ctx, password); err != nil {
			return err
		}
	}

	db, err := database.OpenWithOptions(ctx, cfg.Database.BuildDSN(password),
		cfg.Database.MaxOpen, cfg.Database.MaxIdle)
	if err != nil {
		return err
	}
	defer db.Close()
	zl.Info("database online")

	comps := component.All()
	if cfg.Database.Migrate {
		if err := component.Migrate(ctx, db, comps); err != nil {
			return err
		}
		zl.Info("migrations applied", zap.Int("components", len(comps)))
	}

	//
	// ── 3.  Forms + components ──────────────────────────────────────────
	//
	forms := form.NewRegistry()
	formsDir := cfg.Paths.Abs(cfg.Forms.Dir)
	if err := forms.LoadDir(formsDir); err != nil {
		return err
	}
	zl.Info("forms loaded", zap.String("dir", formsDir), zap.Strings("names", forms.Names()))

	deps := component.Deps{DB: db, Forms: forms}
	for _, c := range comps {
		if err := c.Init(deps); err != nil {
			return fmt.Errorf("component %s: %w", c.Name(), err)
		}
	}
	if err := forms.Require(component.RequiredForms(comps)...); err != nil {
		return err
	}

	//
	// ── 4.  Router ──────────────────────────────────────────────────────
	//
	var logOpts []middleware.LogOption
	if cfg.GeoIP.DBPath != "" {
		geo, err := middleware.OpenGeo(cfg.Paths.Abs(cfg.GeoIP.DBPath))
		if err != nil {
			return fmt.Errorf("open geoip db: %w", err)
		}
		defer geo.Close()
		logOpts = append(logOpts, middleware.WithGeo(geo))
		zl.Info("geoip enabled", zap.String("db", cfg.GeoIP.DBPath))
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(middleware.RequestLog(zl, logOpts...))
	if cfg.HTTP.ForceHTTPS {
		r.Use(middleware.ForceHTTPS)
	}
	r.Use(middleware.APIHeaders)
	r.Use(chimw.Recoverer)

	var ops []apidoc.Operation
	for _, c := range comps {
		if d, ok := c.(apidoc.Documented); ok {
			ops = append(ops, d.APIDoc()...)
		}
	}
	doc, err := apidoc.Build("binder", version, ops)
	if err != nil {
		return err
	}

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/openapi.json", apidoc.Handler(doc))
	for _, c := range comps {
		r.Mount("/", c.Routes())
		zl.Info("component mounted", zap.String("component", c.Name()))
	}

	//
	// ── 5.  Serve ───────────────────────────────────────────────────────
	//
	srv := server.New(cfg.HTTP.ListenAddr, r)
	if err := server.Run(ctx, srv, nil, cfg.HTTP.ShutdownTimeout); err != nil {
		return err
	}
	zl.Info("shutdown complete")
	return nil
}
