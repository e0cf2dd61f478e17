// components/widget/widget.go
//
// Widget component: JSON mutation endpoints for widgets and their tags.
//
// Routes
// ------
//
//	POST   /widgets                → postWidget form, 201 + widget
//	GET    /widgets/{id}           → 200 + widget
//	PUT    /widgets/{id}           → putWidget form, 200 + widget
//	PATCH  /widgets/{id}           → patchWidget form, 200 + widget
//	DELETE /widgets/{id}           → soft delete, 204
//	POST   /widgets/{id}/tags      → postTag form, 201 + tag
//	PUT    /tags/{id}              → putTag form, 200 + tag
//	PATCH  /tags/{id}              → patchTag form, 200 + tag
//	DELETE /tags/{id}              → hard delete, 204
//
// Every mutating handler follows the same steps: open a unit of work, load
// or build the entity, hand it to the binder, and flush only when the binder
// did not reject the request.
package widget

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/jmoiron/sqlx"

	"github.com/yanizio/binder/internal/binder"
	"github.com/yanizio/binder/internal/component"
	"github.com/yanizio/binder/internal/form"
	"github.com/yanizio/binder/internal/httpapi"
	"github.com/yanizio/binder/internal/persistence"
)

// compile-time assertions
var (
	_ component.Component  = (*Comp)(nil)
	_ binder.SoftDeletable = (*Widget)(nil)
	_ persistence.Record   = (*Widget)(nil)
	_ persistence.Record   = (*Tag)(nil)
)

// entity is what the mutation helper needs: something the binder can bind
// and the object manager can store.
type entity interface {
	binder.Entity
	persistence.Record
}

// Comp implements component.Component.
type Comp struct {
	db    *sqlx.DB
	forms binder.FormProvider
}

func (c *Comp) Name() string { return "widget" }

// Init keeps the shared pool and form registry.
func (c *Comp) Init(d component.Deps) error {
	c.db = d.DB
	c.forms = binder.FromRegistry(d.Forms)
	return nil
}

// Forms lists the definitions the routes bind through.
func (c *Comp) Forms() []form.Pair {
	var out []form.Pair
	for _, verb := range []string{http.MethodPost, http.MethodPut, http.MethodPatch} {
		out = append(out,
			form.Pair{Verb: verb, Entity: "Widget"},
			form.Pair{Verb: verb, Entity: "Tag"},
		)
	}
	return out
}

func (c *Comp) Migrations() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS widgets (
			id         BIGINT      NOT NULL AUTO_INCREMENT PRIMARY KEY,
			name       VARCHAR(64) NOT NULL,
			price      INT         NOT NULL DEFAULT 0,
			color      VARCHAR(16) NOT NULL DEFAULT '',
			deleted_at DATETIME    NULL
		)`,
		`CREATE TABLE IF NOT EXISTS widget_tags (
			id        BIGINT      NOT NULL AUTO_INCREMENT PRIMARY KEY,
			widget_id BIGINT      NOT NULL,
			label     VARCHAR(32) NOT NULL,
			INDEX idx_widget_tags_widget (widget_id)
		)`,
	}
}

func (c *Comp) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/widgets", c.createWidget)
	r.Route("/widgets/{id}", func(r chi.Router) {
		r.Get("/", c.getWidget)
		r.Put("/", c.updateWidget)
		r.Patch("/", c.updateWidget)
		r.Delete("/", c.updateWidget)
		r.Post("/tags", c.createTag)
	})
	r.Route("/tags/{id}", func(r chi.Router) {
		r.Put("/", c.updateTag)
		r.Patch("/", c.updateTag)
		r.Delete("/", c.updateTag)
	})

	return r
}

// Register component at package init.
func init() {
	component.Register(&Comp{})
}

// -----------------------------------------------------------------------------
// Handlers
// -----------------------------------------------------------------------------

func (c *Comp) createWidget(w http.ResponseWriter, r *http.Request) {
	om := persistence.NewObjectManager(c.db)
	c.mutate(w, r, om, &Widget{})
}

func (c *Comp) getWidget(w http.ResponseWriter, r *http.Request) {
	om := persistence.NewObjectManager(c.db)
	wg, err := c.loadWidget(r, om)
	if err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, wg)
}

// updateWidget serves PUT, PATCH, and DELETE; the binder picks the action.
func (c *Comp) updateWidget(w http.ResponseWriter, r *http.Request) {
	om := persistence.NewObjectManager(c.db)
	wg, err := c.loadWidget(r, om)
	if err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	c.mutate(w, r, om, wg)
}

func (c *Comp) createTag(w http.ResponseWriter, r *http.Request) {
	om := persistence.NewObjectManager(c.db)
	wg, err := c.loadWidget(r, om)
	if err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	// The widget is only read; keep it out of the flush.
	om.Clear()
	c.mutate(w, r, om, &Tag{WidgetID: wg.ID})
}

func (c *Comp) updateTag(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	om := persistence.NewObjectManager(c.db)
	tag := &Tag{}
	if err := om.Find(r.Context(), tag, id); err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	c.mutate(w, r, om, tag)
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

// mutate binds r onto e and flushes om unless the binder rejected the
// request.  Removals answer 204; everything else echoes the entity, with 201
// when e was not loaded through om beforehand.
func (c *Comp) mutate(w http.ResponseWriter, r *http.Request, om *persistence.ObjectManager, e entity) {
	okStatus := http.StatusOK
	if !om.Contains(e) {
		okStatus = http.StatusCreated
	}
	b := binder.New(c.forms, om)

	out, err := b.BindRequest(r, e)
	if err != nil {
		httpapi.WriteError(w, r, err)
		return
	}

	switch out.Status {
	case binder.Rejected:
		httpapi.WriteError(w, r, out.Rejection)
		return
	case binder.Bound:
		if err := om.Persist(e); err != nil {
			httpapi.WriteError(w, r, err)
			return
		}
	case binder.UnsupportedVerb:
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	if err := om.Flush(r.Context()); err != nil {
		httpapi.WriteError(w, r, err)
		return
	}

	if out.Status == binder.Removed {
		httpapi.WriteJSON(w, http.StatusNoContent, nil)
		return
	}
	httpapi.WriteJSON(w, okStatus, out.Entity)
}

// loadWidget finds the {id} widget.  Soft-deleted widgets are not found.
func (c *Comp) loadWidget(r *http.Request, om *persistence.ObjectManager) (*Widget, error) {
	id, err := idParam(r)
	if err != nil {
		return nil, err
	}
	wg := &Widget{}
	if err := om.Find(r.Context(), wg, id); err != nil {
		return nil, err
	}
	if wg.Deleted() {
		return nil, persistence.ErrRecordNotFound
	}
	return wg, nil
}

func idParam(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, persistence.ErrRecordNotFound
	}
	return id, nil
}
