// internal/form/registry.go
//
// Forms subsystem: definition registry.
//
// Context
//   Forms are looked up by name, where the name is the lower-cased HTTP verb
//   followed by the entity name (“patchInvoice”).  The registry is filled at
//   startup, from YAML or from code, and is read-only afterwards.  Require
//   lets the process refuse to start when a (verb, entity) pair it binds has
//   no definition, instead of failing on the first request.
//
// Workflow
//   - LoadDir walks a directory and registers every “*.yaml” under its ID.
//   - Register stores a definition built in code under Name(verb, entity).
//   - Create builds a fresh *Form for one request and one entity.
//
//------------------------------------------------------------------------------

package form

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// Pair names a (verb, entity) combination the application binds.
type Pair struct {
	Verb   string
	Entity string
}

// Name returns the form name for verb and entity: Name("PATCH", "Invoice")
// is "patchInvoice".
func Name(verb, entity string) string {
	return strings.ToLower(verb) + entity
}

// Registry maps form names to definitions.  Safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	defs  map[string]*Definition
	valid *validator.Validate
}

// NewRegistry returns an empty registry with its own validator instance.
// Property names come from the `form` struct tag so violation paths match
// payload keys.
func NewRegistry() *Registry {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(sf reflect.StructField) string {
		name, _, _ := strings.Cut(sf.Tag.Get("form"), ",")
		switch name {
		case "-":
			return ""
		case "":
			return sf.Name
		}
		return name
	})
	return &Registry{
		defs:  make(map[string]*Definition),
		valid: v,
	}
}

// Validator exposes the validator so callers can register custom rules.
// Pair it with RegisterMessage to give the rule a template.
func (r *Registry) Validator() *validator.Validate { return r.valid }

// Register stores def under Name(verb, entity), overriding any previous
// definition with that name.  def.ID is set to the name.
func (r *Registry) Register(verb, entity string, def *Definition) error {
	cp := *def
	cp.ID = Name(verb, entity)
	return r.Add(&cp)
}

// Add stores def under def.ID after checking its structure.
func (r *Registry) Add(def *Definition) error {
	if def == nil {
		return fmt.Errorf("%w: nil definition", ErrInvalidDefinition)
	}
	if err := def.validate(); err != nil {
		return err
	}
	r.mu.Lock()
	r.defs[def.ID] = def
	r.mu.Unlock()
	return nil
}

// LoadDir loads every “*.yaml” below dir.  The first broken file aborts the
// walk so configuration mistakes surface at startup.  A missing dir is not an
// error.
func (r *Registry) LoadDir(dir string) error {
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".yaml") {
			return nil
		}

		def, err := LoadDefinition(path)
		if err != nil {
			return err
		}
		return r.Add(def)
	})
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// Lookup returns the definition registered under name.
func (r *Registry) Lookup(name string) (*Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[name]
	return def, ok
}

// Names returns every registered form name, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.defs))
	for name := range r.defs {
		out = append(out, name)
	}
	r.mu.RUnlock()
	sort.Strings(out)
	return out
}

// Require reports every pair without a definition in a single error.
func (r *Registry) Require(pairs ...Pair) error {
	var missing []string
	for _, p := range pairs {
		name := Name(p.Verb, p.Entity)
		if _, ok := r.Lookup(name); !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrUnknownForm, strings.Join(missing, ", "))
}

// Create builds a form named name that accepts method and binds onto entity.
func (r *Registry) Create(name, method string, entity any) (*Form, error) {
	def, ok := r.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownForm, name)
	}
	if !isStructPointer(entity) {
		return nil, fmt.Errorf("%w: got %T", ErrInvalidEntity, entity)
	}
	return newForm(def, method, entity, r.valid), nil
}
