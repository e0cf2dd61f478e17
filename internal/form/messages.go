// internal/form/messages.go
//
// Forms subsystem: message catalogue.
//
// Context
//   Validator tags are short and machine-oriented (“min”, “oneof”).  Clients
//   want a stable template they can translate, plus the values needed to fill
//   it.  The catalogue maps each tag to a template and builds the parameter
//   map from the validator.FieldError.  Templates are never interpolated here.
//
//------------------------------------------------------------------------------

package form

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// Fallback template for tags the catalogue does not know and for values that
// could not be coerced into the entity field.
const invalidTemplate = "This value is not valid."

// extraFieldsTemplate is reported on a form that received unknown keys.
const extraFieldsTemplate = "This form should not contain extra fields."

type messageFunc func(fe validator.FieldError) (string, map[string]any)

var (
	catalogMu sync.RWMutex
	catalog   = map[string]messageFunc{
		"required": fixed("This value is required.", false),
		"email":    fixed("This value is not a valid email address.", true),
		"url":      fixed("This value is not a valid URL.", true),
		"uuid":     fixed("This is not a valid UUID.", true),
		"uuid4":    fixed("This is not a valid UUID.", true),
		"numeric":  fixed("This value should be a valid number.", true),
		"alphanum": fixed("This value should contain only letters and digits.", true),
		"len": sized(
			"This value should have exactly {{ limit }} characters.",
			"This collection should contain exactly {{ limit }} elements.",
			"This value should be equal to {{ compared_value }}.",
		),
		"min": sized(
			"This value is too short. It should have {{ limit }} characters or more.",
			"This collection should contain {{ limit }} elements or more.",
			"This value should be greater than or equal to {{ compared_value }}.",
		),
		"max": sized(
			"This value is too long. It should have {{ limit }} characters or less.",
			"This collection should contain {{ limit }} elements or less.",
			"This value should be less than or equal to {{ compared_value }}.",
		),
		"gt":    compared("This value should be greater than {{ compared_value }}."),
		"gte":   compared("This value should be greater than or equal to {{ compared_value }}."),
		"lt":    compared("This value should be less than {{ compared_value }}."),
		"lte":   compared("This value should be less than or equal to {{ compared_value }}."),
		"oneof": choice("The value you selected is not a valid choice."),
	}
)

// RegisterMessage adds or replaces the template for a validator tag, typically
// one registered with a custom validation func.  The parameters are
// {{ value }} and, when the tag carries one, {{ param }}.
func RegisterMessage(tag, template string) {
	catalogMu.Lock()
	defer catalogMu.Unlock()
	catalog[tag] = func(fe validator.FieldError) (string, map[string]any) {
		params := map[string]any{"{{ value }}": formatValue(fe.Value())}
		if fe.Param() != "" {
			params["{{ param }}"] = fe.Param()
		}
		return template, params
	}
}

// violationFor converts one validator failure.  path is the dotted property
// path relative to the root entity.
func violationFor(fe validator.FieldError, path string) Violation {
	catalogMu.RLock()
	fn, ok := catalog[fe.Tag()]
	catalogMu.RUnlock()

	var (
		tpl    string
		params map[string]any
	)
	if ok {
		tpl, params = fn(fe)
	} else {
		tpl, params = invalidTemplate, map[string]any{"{{ value }}": formatValue(fe.Value())}
	}

	return Violation{
		Template:     tpl,
		Parameters:   params,
		PropertyPath: path,
		Code:         fe.Tag(),
	}
}

// -----------------------------------------------------------------------------
// Builders
// -----------------------------------------------------------------------------

func fixed(tpl string, withValue bool) messageFunc {
	return func(fe validator.FieldError) (string, map[string]any) {
		params := map[string]any{}
		if withValue {
			params["{{ value }}"] = formatValue(fe.Value())
		}
		return tpl, params
	}
}

// sized picks a template by the kind of the failing value: string length,
// collection size, or numeric comparison.
func sized(str, coll, num string) messageFunc {
	return func(fe validator.FieldError) (string, map[string]any) {
		params := map[string]any{"{{ value }}": formatValue(fe.Value())}
		switch fe.Kind() {
		case reflect.String:
			params["{{ limit }}"] = paramValue(fe.Param())
			return str, params
		case reflect.Slice, reflect.Array, reflect.Map:
			params["{{ limit }}"] = paramValue(fe.Param())
			return coll, params
		default:
			params["{{ compared_value }}"] = paramValue(fe.Param())
			return num, params
		}
	}
}

func compared(tpl string) messageFunc {
	return func(fe validator.FieldError) (string, map[string]any) {
		return tpl, map[string]any{
			"{{ value }}":          formatValue(fe.Value()),
			"{{ compared_value }}": paramValue(fe.Param()),
		}
	}
}

func choice(tpl string) messageFunc {
	return func(fe validator.FieldError) (string, map[string]any) {
		opts := strings.Fields(fe.Param())
		quoted := make([]string, len(opts))
		for i, o := range opts {
			quoted[i] = strconv.Quote(o)
		}
		return tpl, map[string]any{
			"{{ value }}":   formatValue(fe.Value()),
			"{{ choices }}": strings.Join(quoted, ", "),
		}
	}
}

// -----------------------------------------------------------------------------
// Formatting helpers
// -----------------------------------------------------------------------------

// formatValue renders a value the way it should appear inside a message:
// strings quoted, nil as null, JSON numbers bare, everything else with fmt.
func formatValue(v any) string {
	if v == nil {
		return "null"
	}
	rv := reflect.ValueOf(v)
	if (rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface) && rv.IsNil() {
		return "null"
	}

	switch t := v.(type) {
	case string:
		return strconv.Quote(t)
	case json.Number:
		return t.String()
	case fmt.Stringer:
		return strconv.Quote(t.String())
	}

	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		return formatValue(rv.Elem().Interface())
	case reflect.Slice, reflect.Array:
		return "array"
	case reflect.Map, reflect.Struct:
		return "object"
	}
	return fmt.Sprint(v)
}

// paramValue returns integer params as numbers so they serialize unquoted.
func paramValue(p string) any {
	if n, err := strconv.Atoi(p); err == nil {
		return n
	}
	return p
}
