// internal/form/definition.go
//
// Forms subsystem: YAML definition loader.
//
// Context
//   Every mutation the binder performs is described by a named form.  A form
//   definition lists the payload keys that may be bound onto an entity, with
//   nested “fields” blocks for sub-forms (embedded structs).  Constraints do
//   not live here; they stay on the entity as `validate` tags so the same
//   rules hold no matter which form writes the entity.
//
// Workflow
//   - LoadDefinition parses a single YAML file and validates structural rules.
//   - Registry.LoadDir walks a directory, loads every “*.yaml”, and registers
//     the result under its ID (e.g. “postWidget”).
//
// Example
//
//	id: postWidget
//	fields:
//	  - name: name
//	  - name: price
//	  - name: address
//	    fields:
//	      - name: street
//	      - name: city
//
//------------------------------------------------------------------------------

package form

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// -----------------------------------------------------------------------------
// Data structures
// -----------------------------------------------------------------------------

// Definition represents one form loaded from YAML or built in code.
type Definition struct {
	ID               string     `yaml:"id"`                 // lower(verb) + entity name.
	Fields           []FieldDef `yaml:"fields"`             // Bound payload keys, in order.
	AllowExtraFields bool       `yaml:"allow_extra_fields"` // Tolerate unknown keys.
}

// FieldDef describes one payload key.  A FieldDef with Fields of its own is a
// sub-form and expects an object in the payload.
type FieldDef struct {
	Name   string     `yaml:"name"`
	Fields []FieldDef `yaml:"fields"`
}

// Compound reports whether the field is a sub-form.
func (f FieldDef) Compound() bool { return len(f.Fields) > 0 }

// -----------------------------------------------------------------------------
// Loader API
// -----------------------------------------------------------------------------

// LoadDefinition parses one YAML file and validates its structure.  It never
// touches a registry.
func LoadDefinition(path string) (*Definition, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read form file %s: %w", path, err)
	}

	var def Definition
	if err := yaml.Unmarshal(raw, &def); err != nil {
		return nil, fmt.Errorf("parse YAML %s: %w", path, err)
	}

	if err := def.validate(); err != nil {
		return nil, fmt.Errorf("form definition %s: %w", path, err)
	}
	return &def, nil
}

// -----------------------------------------------------------------------------
// Validation helpers
// -----------------------------------------------------------------------------

// validate enforces the rules YAML tags cannot express.
func (d *Definition) validate() error {
	if d.ID == "" {
		return fmt.Errorf("%w: missing required 'id'", ErrInvalidDefinition)
	}
	if len(d.Fields) == 0 {
		return fmt.Errorf("%w: form %q has no fields", ErrInvalidDefinition, d.ID)
	}
	return validateFields(d.ID, "", d.Fields)
}

func validateFields(id, prefix string, fields []FieldDef) error {
	seen := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if f.Name == "" {
			return fmt.Errorf("%w: form %q has a field without 'name' under %q",
				ErrInvalidDefinition, id, prefix)
		}
		if _, dup := seen[f.Name]; dup {
			return fmt.Errorf("%w: form %q has duplicate field %q",
				ErrInvalidDefinition, id, joinPath(prefix, f.Name))
		}
		seen[f.Name] = struct{}{}

		if f.Compound() {
			if err := validateFields(id, joinPath(prefix, f.Name), f.Fields); err != nil {
				return err
			}
		}
	}
	return nil
}

func joinPath(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}
