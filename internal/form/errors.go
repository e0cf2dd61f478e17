package form

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors returned by the registry and by Form.HandleRequest.  None of
// them describe invalid user input; those become Error values on the form.
var (
	ErrUnknownForm        = errors.New("form: no definition registered")
	ErrInvalidDefinition  = errors.New("form: invalid definition")
	ErrMalformedPayload   = errors.New("form: malformed payload")
	ErrUnsupportedPayload = errors.New("form: unsupported content type")
	ErrInvalidEntity      = errors.New("form: entity must be a non-nil pointer to struct")
)

// Violation is the constraint failure behind a form error.  Template keeps
// its placeholders so clients can localize it; Parameters holds the values.
type Violation struct {
	Template     string
	Parameters   map[string]any
	PropertyPath string
	Code         string // validator tag, or "extra_fields" / "invalid"
}

// MessageTemplate returns the raw, uninterpolated template.
func (v Violation) MessageTemplate() string { return v.Template }

// MessageParameters returns the placeholder values.  Never nil.
func (v Violation) MessageParameters() map[string]any {
	if v.Parameters == nil {
		return map[string]any{}
	}
	return v.Parameters
}

// Message interpolates the template with its parameters.
func (v Violation) Message() string {
	if len(v.Parameters) == 0 {
		return v.Template
	}
	pairs := make([]string, 0, len(v.Parameters)*2)
	for k, val := range v.Parameters {
		pairs = append(pairs, k, fmt.Sprint(val))
	}
	return strings.NewReplacer(pairs...).Replace(v.Template)
}

// Error is one failure attached to a form node.  Origin is the dotted path of
// the node that owns it ("" for the root).
type Error struct {
	Origin string
	cause  Violation
}

// NewError wraps a violation.  Exposed so callers can build forms and errors
// by hand in tests.
func NewError(origin string, v Violation) Error {
	return Error{Origin: origin, cause: v}
}

// Cause returns the underlying violation.
func (e Error) Cause() Violation { return e.cause }

// Message returns the interpolated message.
func (e Error) Message() string { return e.cause.Message() }
