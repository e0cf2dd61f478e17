// internal/form/form.go
//
// Forms subsystem: runtime form tree, binding, and validation.
//
// Context
//   A Form is built from a Definition for one request and one entity.  Each
//   FieldDef becomes a child node, so errors can be attached exactly where
//   they belong and collected deeply later.  The root node is unnamed:
//   payload keys are top-level, never nested under the form ID.
//
// Workflow
//   1.  HandleRequest ignores requests whose method differs from the form's
//       method.  Such a form stays unsubmitted and is never valid.
//   2.  The payload is decoded (JSON, URL-encoded, or multipart).
//   3.  Each leaf value is mapped onto the entity with mapstructure using
//       the `form` struct tag.  Values that cannot be coerced are reported
//       on the leaf.  Unless the method is PATCH, absent fields are reset to
//       their zero value.
//   4.  Unknown keys are reported on the node that received them.
//   5.  The entity is validated with go-playground/validator and every
//       failure is attached to the deepest node matching its property path.
//
//------------------------------------------------------------------------------

package form

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
)

// Form is one node of a bound form tree.  Not safe for concurrent use; build a
// new one per request through Registry.Create.
type Form struct {
	name       string
	path       string
	method     string
	compound   bool
	allowExtra bool

	entity   any
	root     *Form
	children []*Form

	submitted bool
	errors    []Error
	validate  *validator.Validate
}

func newForm(def *Definition, method string, entity any, v *validator.Validate) *Form {
	root := &Form{
		method:     method,
		compound:   true,
		allowExtra: def.AllowExtraFields,
		entity:     entity,
		validate:   v,
	}
	root.root = root
	root.children = buildChildren(root, "", def.Fields)
	return root
}

func buildChildren(root *Form, prefix string, defs []FieldDef) []*Form {
	out := make([]*Form, 0, len(defs))
	for _, fd := range defs {
		path := joinPath(prefix, fd.Name)
		child := &Form{
			name:       fd.Name,
			path:       path,
			method:     root.method,
			compound:   fd.Compound(),
			allowExtra: root.allowExtra,
			root:       root,
		}
		if child.compound {
			child.children = buildChildren(root, path, fd.Fields)
		}
		out = append(out, child)
	}
	return out
}

// -----------------------------------------------------------------------------
// Accessors
// -----------------------------------------------------------------------------

// Name returns the field name, "" for the root.
func (f *Form) Name() string { return f.name }

// Path returns the dotted path from the root, "" for the root.
func (f *Form) Path() string { return f.path }

// Method returns the HTTP method the form accepts.
func (f *Form) Method() string { return f.method }

// Entity returns the bound entity.
func (f *Form) Entity() any { return f.root.entity }

// Children returns the child nodes in definition order.
func (f *Form) Children() []*Form { return f.children }

// Child returns the direct child with the given name, or nil.
func (f *Form) Child(name string) *Form {
	for _, c := range f.children {
		if c.name == name {
			return c
		}
	}
	return nil
}

// IsSubmitted reports whether a matching request reached the form.
func (f *Form) IsSubmitted() bool { return f.submitted }

// IsValid reports whether the form was submitted and neither it nor any
// descendant carries an error.
func (f *Form) IsValid() bool {
	return f.submitted && len(f.Errors(true)) == 0
}

// Errors returns the node's own errors.  With deep set, the errors of every
// descendant follow, depth-first in definition order.
func (f *Form) Errors(deep bool) []Error {
	out := make([]Error, 0, len(f.errors))
	out = append(out, f.errors...)
	if deep {
		for _, c := range f.children {
			out = append(out, c.Errors(true)...)
		}
	}
	return out
}

// AddError attaches an error to this node.
func (f *Form) AddError(e Error) { f.errors = append(f.errors, e) }

// -----------------------------------------------------------------------------
// Submission
// -----------------------------------------------------------------------------

// HandleRequest binds and validates the request payload when the request
// method matches the form method.  The returned error is reserved for faults
// such as a malformed body; invalid input is reported through Errors.
func (f *Form) HandleRequest(r *http.Request) error {
	if r.Method != f.method {
		return nil
	}

	payload, err := decodePayload(r)
	if err != nil {
		return err
	}
	return f.Submit(payload, r.Method != http.MethodPatch)
}

// Submit binds already-decoded data.  When clearMissing is true, fields that
// are absent from data are reset to their zero value.
func (f *Form) Submit(data map[string]any, clearMissing bool) error {
	if f != f.root {
		return f.root.Submit(data, clearMissing)
	}
	if !isStructPointer(f.entity) {
		return ErrInvalidEntity
	}

	failed := make(map[string]struct{})
	f.bind(data, clearMissing, failed)
	return f.validateEntity(failed)
}

// bind walks the node's children.  data may be nil when the whole subtree is
// missing from the payload.
func (f *Form) bind(data map[string]any, clearMissing bool, failed map[string]struct{}) {
	f.submitted = true

	if !f.allowExtra {
		f.checkExtraFields(data)
	}

	for _, c := range f.children {
		raw, present := data[c.name]

		if c.compound {
			if present && raw != nil {
				sub, ok := raw.(map[string]any)
				if !ok {
					c.submitted = true
					c.AddError(NewError(c.path, invalidViolation(c.path, raw)))
					failed[c.path] = struct{}{}
					continue
				}
				allocLeaf(f.root.entity, c.path)
				c.bind(sub, clearMissing, failed)
				continue
			}
			if clearMissing {
				c.bind(nil, clearMissing, failed)
			} else {
				c.submitted = true
			}
			continue
		}

		c.submitted = true
		if !present && !clearMissing {
			continue
		}
		if err := decodeLeaf(f.root.entity, c.path, raw); err != nil {
			c.AddError(NewError(c.path, invalidViolation(c.path, raw)))
			failed[c.path] = struct{}{}
		}
	}
}

func (f *Form) checkExtraFields(data map[string]any) {
	var extra []string
	for k := range data {
		if f.Child(k) == nil {
			extra = append(extra, k)
		}
	}
	if len(extra) == 0 {
		return
	}

	sort.Strings(extra)
	quoted := make([]string, len(extra))
	for i, k := range extra {
		quoted[i] = strconv.Quote(k)
	}
	f.AddError(NewError(f.path, Violation{
		Template:     extraFieldsTemplate,
		Parameters:   map[string]any{"{{ extra_fields }}": strings.Join(quoted, ", ")},
		PropertyPath: f.path,
		Code:         "extra_fields",
	}))
}

// validateEntity runs the struct validator and maps each failure onto the
// deepest matching node.  Failures on fields that could not be bound are
// dropped; the binding error already covers them.
func (f *Form) validateEntity(failed map[string]struct{}) error {
	err := f.validate.Struct(f.entity)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("form: validate entity: %w", err)
	}

	for _, fe := range verrs {
		path := propertyPath(fe.Namespace())
		if covered(failed, path) {
			continue
		}
		target := f.resolve(path)
		target.AddError(NewError(target.path, violationFor(fe, path)))
	}
	return nil
}

// resolve returns the deepest node whose path prefixes path.
func (f *Form) resolve(path string) *Form {
	node := f
	if path == "" {
		return node
	}
	for _, seg := range strings.Split(path, ".") {
		if i := strings.IndexByte(seg, '['); i >= 0 {
			seg = seg[:i]
		}
		next := node.Child(seg)
		if next == nil {
			break
		}
		node = next
	}
	return node
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

// decodeLeaf maps one value onto the entity.  The value is wrapped in a map
// shaped like its path so mapstructure only touches that field.  A nil value
// resets the field; lists and objects replace the previous value instead of
// merging into it.
func decodeLeaf(entity any, path string, value any) error {
	if value == nil {
		zeroLeaf(entity, path)
		return nil
	}
	switch reflect.ValueOf(value).Kind() {
	case reflect.Slice, reflect.Map:
		zeroLeaf(entity, path)
	}

	input := map[string]any{}
	if err := setPath(input, strings.Split(path, "."), value); err != nil {
		return err
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "form",
		WeaklyTypedInput: true,
		Result:           entity,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeHookFunc(time.RFC3339),
			mapstructure.TextUnmarshallerHookFunc(),
		),
	})
	if err != nil {
		return err
	}
	return dec.Decode(input)
}

// zeroLeaf resets the field at path.  Nil pointers along the way mean there
// is nothing to reset.
func zeroLeaf(entity any, path string) {
	v := reflect.ValueOf(entity)
	segs := strings.Split(path, ".")
	for i, seg := range segs {
		for v.Kind() == reflect.Pointer {
			if v.IsNil() {
				return
			}
			v = v.Elem()
		}
		if v.Kind() != reflect.Struct {
			return
		}
		fv, ok := fieldByTag(v, seg)
		if !ok {
			return
		}
		if i == len(segs)-1 {
			if fv.CanSet() {
				fv.Set(reflect.Zero(fv.Type()))
			}
			return
		}
		v = fv
	}
}

// allocLeaf allocates nil pointers down to and including the field at path,
// so a submitted sub-form always has a struct to validate.
func allocLeaf(entity any, path string) {
	v := reflect.ValueOf(entity)
	for _, seg := range strings.Split(path, ".") {
		for v.Kind() == reflect.Pointer {
			if v.IsNil() {
				if !v.CanSet() {
					return
				}
				v.Set(reflect.New(v.Type().Elem()))
			}
			v = v.Elem()
		}
		if v.Kind() != reflect.Struct {
			return
		}
		fv, ok := fieldByTag(v, seg)
		if !ok {
			return
		}
		v = fv
	}
	if v.Kind() == reflect.Pointer && v.IsNil() && v.CanSet() {
		v.Set(reflect.New(v.Type().Elem()))
	}
}

// fieldByTag finds a struct field the same way mapstructure does: by `form`
// tag, falling back to a case-insensitive field name match.
func fieldByTag(v reflect.Value, name string) (reflect.Value, bool) {
	t := v.Type()
	for i := range t.NumField() {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}
		tag, _, _ := strings.Cut(sf.Tag.Get("form"), ",")
		if tag == name || (tag == "" && strings.EqualFold(sf.Name, name)) {
			return v.Field(i), true
		}
	}
	return reflect.Value{}, false
}

// covered reports whether path or one of its ancestors failed to bind.
func covered(failed map[string]struct{}, path string) bool {
	for p := path; p != ""; {
		if _, ok := failed[p]; ok {
			return true
		}
		i := strings.LastIndexByte(p, '.')
		if i < 0 {
			break
		}
		p = p[:i]
	}
	return false
}

func invalidViolation(path string, raw any) Violation {
	return Violation{
		Template:     invalidTemplate,
		Parameters:   map[string]any{"{{ value }}": formatValue(raw)},
		PropertyPath: path,
		Code:         "invalid",
	}
}

// propertyPath drops the root type name from a validator namespace:
// "Widget.address.city" → "address.city".
func propertyPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ""
}

func isStructPointer(v any) bool {
	rv := reflect.ValueOf(v)
	return rv.Kind() == reflect.Pointer && !rv.IsNil() && rv.Elem().Kind() == reflect.Struct
}
