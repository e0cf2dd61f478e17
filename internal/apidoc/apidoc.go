// internal/apidoc/apidoc.go
//
// OpenAPI 3.1 document for the mounted components.
//
// Context
//   Components that want their routes documented implement Documented and
//   describe each route as an Operation: request and response structures
//   are reflected into JSON Schema, `path:"…"` tags become path parameters,
//   and operations that bind a payload gain a 400 response carrying the
//   standardized validation error array.  cmd/web builds the document once
//   at startup and serves it at /openapi.json.
//
//------------------------------------------------------------------------------

package apidoc

import (
	"fmt"
	"net/http"

	"github.com/swaggest/jsonschema-go"
	"github.com/swaggest/openapi-go"
	"github.com/swaggest/openapi-go/openapi31"

	"github.com/yanizio/binder/internal/binder"
)

// Operation documents one route.
type Operation struct {
	Method   string
	Path     string // chi pattern, e.g. /widgets/{id}
	Summary  string
	Tags     []string
	Request  any // struct with path/json tags; nil when there is none
	Response any // nil for an empty body
	Status   int // success status
	Binds    bool
	Lookup   bool // answers 404 for unknown IDs
}

// Documented is implemented by components that publish their routes.
type Documented interface {
	APIDoc() []Operation
}

type errorBody struct {
	Error string `json:"error"`
}

// Build reflects ops into an OpenAPI 3.1 JSON document.
func Build(title, version string, ops []Operation) ([]byte, error) {
	r := openapi31.NewReflector()
	r.Spec = &openapi31.Spec{Openapi: "3.1.0"}
	r.Spec.Info.WithTitle(title).WithVersion(version)
	r.Reflector.DefaultOptions = append(r.Reflector.DefaultOptions,
		jsonschema.DefinitionsPrefix("#/components/schemas/"))

	for _, op := range ops {
		oc, err := r.NewOperationContext(op.Method, op.Path)
		if err != nil {
			return nil, fmt.Errorf("apidoc: %s %s: %w", op.Method, op.Path, err)
		}
		oc.SetSummary(op.Summary)
		oc.SetTags(op.Tags...)

		if op.Request != nil {
			oc.AddReqStructure(op.Request)
		}
		oc.AddRespStructure(op.Response, openapi.WithHTTPStatus(op.Status))
		if op.Binds {
			oc.AddRespStructure([]binder.StandardizedError{}, openapi.WithHTTPStatus(http.StatusBadRequest))
		}
		if op.Lookup {
			oc.AddRespStructure(errorBody{}, openapi.WithHTTPStatus(http.StatusNotFound))
		}

		if err := r.AddOperation(oc); err != nil {
			return nil, fmt.Errorf("apidoc: %s %s: %w", op.Method, op.Path, err)
		}
	}

	return r.Spec.MarshalJSON()
}

// Handler serves a prebuilt document.
func Handler(doc []byte) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_, _ = w.Write(doc)
	}
}
