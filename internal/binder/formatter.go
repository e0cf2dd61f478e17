// internal/binder/formatter.go
//
// Standardized validation errors.
//
// Context
//   Clients receive one shape for every rejected mutation: a JSON array of
//   records with the raw message template, the parameters needed to fill it,
//   and the property path when there is one.  Templates stay uninterpolated
//   so clients can localize them.
//
//   [
//     {"messageTemplate":"This value is required.","messageParameters":{},"propertyPath":"name"}
//   ]
//
//------------------------------------------------------------------------------

package binder

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/yanizio/binder/internal/form"
)

// ErrValidation matches any *ValidationError with errors.Is.
var ErrValidation = errors.New("binder: validation failed")

// StandardizedError is the client-facing record for one failure.
type StandardizedError struct {
	MessageTemplate   string         `json:"messageTemplate"`
	MessageParameters map[string]any `json:"messageParameters"`
	PropertyPath      string         `json:"propertyPath,omitempty"`
}

// ValidationError is the client error produced for an invalid form.  Errors
// keeps the order in which the form reported its failures and may be empty.
type ValidationError struct {
	Errors []StandardizedError
}

// Error returns the JSON body.
func (e *ValidationError) Error() string { return string(e.Body()) }

// StatusCode is always 400.
func (e *ValidationError) StatusCode() int { return http.StatusBadRequest }

// Is reports true for ErrValidation.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// MarshalJSON encodes the records as a bare array, "[]" when there are none.
func (e *ValidationError) MarshalJSON() ([]byte, error) {
	list := e.Errors
	if list == nil {
		list = []StandardizedError{}
	}
	return json.Marshal(list)
}

// Body returns the JSON array.
func (e *ValidationError) Body() []byte {
	b, err := e.MarshalJSON()
	if err != nil {
		// Only reachable with parameters json cannot encode (channels, funcs).
		return []byte("[]")
	}
	return b
}

// ErrorFormatter converts invalid forms into *ValidationError.  The zero
// value is ready to use.
type ErrorFormatter struct{}

// Handle collects every error of f and its sub-forms, depth-first, and
// returns them standardized.  It never returns nil.
func (ef ErrorFormatter) Handle(f Form) *ValidationError {
	errs := f.Errors(true)
	out := make([]StandardizedError, 0, len(errs))
	for _, e := range errs {
		out = append(out, ef.Standardize(e))
	}
	return &ValidationError{Errors: out}
}

// Standardize turns one form error into its client record.
func (ErrorFormatter) Standardize(e form.Error) StandardizedError {
	cause := e.Cause()
	return StandardizedError{
		MessageTemplate:   cause.MessageTemplate(),
		MessageParameters: cause.MessageParameters(),
		PropertyPath:      cause.PropertyPath,
	}
}
