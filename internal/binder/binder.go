// internal/binder/binder.go
//
// Verb-dispatched entity mutation.
//
// Context
//   A handler owns an entity (freshly built for POST, loaded for PUT, PATCH,
//   and DELETE) and wants the request applied to it.  The Binder picks the
//   form named after the verb and the entity, binds and validates the
//   payload through it, or marks the entity for removal.  It never commits:
//   the caller flushes the persistence manager once every bind of the
//   request has succeeded, so several binds can share one transaction.
//
// Workflow
//   - POST, PUT, PATCH  → Persist: form “<verb><Entity>”, HandleRequest,
//     and on failure the ErrorFormatter turns the form into a
//     *ValidationError.
//   - DELETE            → Remove: SoftDelete when the entity supports it,
//     otherwise Manager.Remove.
//   - any other verb    → nothing happens; the outcome says so.
//
// Notes
//   Verbs are matched exactly and case-sensitively.  Errors from the form
//   provider or the manager are returned unchanged and never turned into
//   validation errors.
//
//------------------------------------------------------------------------------

package binder

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/yanizio/binder/internal/form"
	"github.com/yanizio/binder/internal/logger"
	"github.com/yanizio/binder/internal/metrics"
)

// ErrNilEntity is returned when BindRequest, Persist, or Remove get a nil
// entity.
var ErrNilEntity = errors.New("binder: nil entity")

// -----------------------------------------------------------------------------
// Collaborators
// -----------------------------------------------------------------------------

// Entity is anything the binder can mutate.  EntityName is the type tag used
// in form names, e.g. "Invoice".
type Entity interface {
	EntityName() string
}

// SoftDeletable entities are flagged as deleted instead of being removed.
type SoftDeletable interface {
	SoftDelete()
}

// Form is the part of a bound form the binder needs.
type Form interface {
	HandleRequest(r *http.Request) error
	IsValid() bool
	Errors(deep bool) []form.Error
}

// FormProvider returns the form registered under name, bound to entity and
// accepting method.
type FormProvider interface {
	Form(name, method string, entity any) (Form, error)
}

// ProviderFunc adapts a function to FormProvider.
type ProviderFunc func(name, method string, entity any) (Form, error)

// Form calls fn.
func (fn ProviderFunc) Form(name, method string, entity any) (Form, error) {
	return fn(name, method, entity)
}

// FromRegistry serves forms from a form.Registry.
func FromRegistry(reg *form.Registry) FormProvider {
	return ProviderFunc(func(name, method string, entity any) (Form, error) {
		f, err := reg.Create(name, method, entity)
		if err != nil {
			return nil, err
		}
		return f, nil
	})
}

// Manager stages hard deletions.  It must not flush.
type Manager interface {
	Remove(entity any) error
}

// -----------------------------------------------------------------------------
// Outcome
// -----------------------------------------------------------------------------

// Status tags the result of BindRequest.
type Status int

const (
	// UnsupportedVerb: the verb is none of POST, PUT, PATCH, DELETE and the
	// entity was left untouched.
	UnsupportedVerb Status = iota
	// Bound: the payload was bound and the entity is valid.
	Bound
	// Removed: the entity was soft-deleted or staged for removal.
	Removed
	// Rejected: validation failed; Outcome.Rejection holds the client error.
	Rejected
)

func (s Status) String() string {
	switch s {
	case UnsupportedVerb:
		return "unsupported_verb"
	case Bound:
		return "bound"
	case Removed:
		return "removed"
	case Rejected:
		return "rejected"
	}
	return "unknown"
}

// Outcome is the tagged result of BindRequest.  Entity is always the
// reference that was passed in.
type Outcome struct {
	Status    Status
	Entity    Entity
	Rejection *ValidationError // set only when Status == Rejected
}

// -----------------------------------------------------------------------------
// Binder
// -----------------------------------------------------------------------------

// Binder is stateless and safe for concurrent use when its collaborators are.
type Binder struct {
	forms     FormProvider
	manager   Manager
	formatter ErrorFormatter
	log       *zap.Logger
}

// Option customizes a Binder.
type Option func(*Binder)

// WithLogger pins the binder's logger.  Without it the binder logs to the
// logger stored in the request context, or zap.L().
func WithLogger(l *zap.Logger) Option {
	return func(b *Binder) { b.log = l }
}

// New returns a Binder over forms and manager.
func New(forms FormProvider, manager Manager, opts ...Option) *Binder {
	b := &Binder{forms: forms, manager: manager}
	for _, o := range opts {
		o(b)
	}
	return b
}

// FormName returns lower(verb) + entity.EntityName().
func FormName(verb string, e Entity) string {
	return form.Name(verb, e.EntityName())
}

// BindRequest applies r to e according to r.Method.  The error return only
// carries collaborator faults; a validation failure is an Outcome with
// Status Rejected and a nil error.
func (b *Binder) BindRequest(r *http.Request, e Entity) (Outcome, error) {
	if e == nil {
		return Outcome{}, ErrNilEntity
	}

	out := Outcome{Status: UnsupportedVerb, Entity: e}
	var err error

	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		err = b.Persist(r, e)
		var verr *ValidationError
		switch {
		case errors.As(err, &verr):
			out.Status, out.Rejection, err = Rejected, verr, nil
		case err == nil:
			out.Status = Bound
		}

	case http.MethodDelete:
		if err = b.Remove(e); err == nil {
			out.Status = Removed
		}

	default:
		b.loggerFor(r).Debug("verb not bound",
			zap.String("verb", r.Method),
			zap.String("entity", e.EntityName()))
	}

	if err != nil {
		metrics.BindRequestsTotal.WithLabelValues(verbLabel(r.Method), "fault").Inc()
		return out, err
	}
	metrics.BindRequestsTotal.WithLabelValues(verbLabel(r.Method), out.Status.String()).Inc()
	return out, nil
}

// verbLabel keeps the metric's verb label to a fixed set.
func verbLabel(verb string) string {
	switch verb {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return verb
	}
	return "other"
}

// Persist binds and validates r onto e through the form FormName(r.Method,
// e).  It returns nil on success, a *ValidationError when the form is
// invalid, and any provider error unchanged.
func (b *Binder) Persist(r *http.Request, e Entity) error {
	if e == nil {
		return ErrNilEntity
	}

	name := FormName(r.Method, e)
	f, err := b.forms.Form(name, r.Method, e)
	if err != nil {
		return err
	}
	if err := f.HandleRequest(r); err != nil {
		return err
	}
	if f.IsValid() {
		b.loggerFor(r).Debug("form bound", zap.String("form", name))
		return nil
	}

	verr := b.formatter.Handle(f)
	metrics.ViolationsTotal.Add(float64(len(verr.Errors)))
	b.loggerFor(r).Warn("form rejected",
		zap.String("form", name),
		zap.Int("violations", len(verr.Errors)),
		zap.Strings("codes", violationCodes(f)))
	return verr
}

// Remove soft-deletes e when it is SoftDeletable and stages a hard delete
// otherwise.  Nothing is flushed.
func (b *Binder) Remove(e Entity) error {
	if e == nil {
		return ErrNilEntity
	}
	if sd, ok := e.(SoftDeletable); ok {
		sd.SoftDelete()
		return nil
	}
	return b.manager.Remove(e)
}

// violationCodes lists the machine codes behind f's errors, in error order.
func violationCodes(f Form) []string {
	errs := f.Errors(true)
	codes := make([]string, 0, len(errs))
	for _, e := range errs {
		codes = append(codes, e.Cause().Code)
	}
	return codes
}

func (b *Binder) loggerFor(r *http.Request) *zap.Logger {
	if b.log != nil {
		return b.log
	}
	return logger.FromContext(r.Context())
}
