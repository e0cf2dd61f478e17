// internal/component/registry.go
//
// Component registry (cycle-free).
//
// Each concrete component lives under components/<name> and calls
// component.Register() in an init() function.  cmd/web blank-imports the
// components it ships, then for every registered component:
//
//  1. runs Migrations() when database.migrate is set,
//  2. calls Init() with the shared dependencies,
//  3. checks that every form pair from Forms() is registered,
//  4. mounts Routes() at “/”.
//
// chi accepts one mount per pattern: only one component may own “/”, and
// any further component needs its own prefix.

package component

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/jmoiron/sqlx"

	"github.com/yanizio/binder/internal/form"
)

// Deps are the process-wide resources handed to components during Init.
type Deps struct {
	DB    *sqlx.DB
	Forms *form.Registry
}

// Component contract.
//
// Migrations() may return nil if the component has no schema.  Forms() lists
// the (verb, entity) pairs the component binds, so startup fails when a
// definition is missing.  Routes() is called after Init, e.g:
//
//	r := chi.NewRouter()
//	r.Post("/widgets", c.create)
//	r.Route("/widgets/{id}", func(r chi.Router) { ... })
//	return r
type Component interface {
	Name() string
	Init(Deps) error
	Routes() chi.Router
	Migrations() []string
	Forms() []form.Pair
}

var (
	mu       sync.RWMutex
	registry = map[string]Component{}
)

// Register is invoked from component init() functions.
func Register(c Component) {
	mu.Lock()
	registry[c.Name()] = c
	mu.Unlock()
}

// All returns every registered component ordered by name.
func All() []Component {
	mu.RLock()
	out := make([]Component, 0, len(registry))
	for _, c := range registry {
		out = append(out, c)
	}
	mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// RequiredForms collects Forms() of every component.
func RequiredForms(cs []Component) []form.Pair {
	var out []form.Pair
	for _, c := range cs {
		out = append(out, c.Forms()...)
	}
	return out
}

// Migrate runs every component's migrations in order.  Statements must be
// idempotent (CREATE TABLE IF NOT EXISTS …); there is no version table.
func Migrate(ctx context.Context, db *sqlx.DB, cs []Component) error {
	for _, c := range cs {
		for i, stmt := range c.Migrations() {
			if _, err := db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("component %s: migration %d: %w", c.Name(), i+1, err)
			}
		}
	}
	return nil
}
