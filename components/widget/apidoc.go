package widget

import (
	"net/http"

	"github.com/yanizio/binder/internal/apidoc"
)

var _ apidoc.Documented = (*Comp)(nil)

// Request shapes for the document.  Binding itself goes through the form
// definitions under forms/; these only describe the wire format.

type idPath struct {
	ID int64 `path:"id" minimum:"1"`
}

type widgetBody struct {
	Name  string `json:"name"            minLength:"3" maxLength:"64"`
	Price int    `json:"price"           minimum:"0"`
	Color string `json:"color,omitempty" enum:"red,green,blue"`
}

type widgetUpdate struct {
	idPath
	widgetBody
}

type tagBody struct {
	Label string `json:"label" minLength:"1" maxLength:"32"`
}

type tagCreate struct {
	idPath
	tagBody
}

type tagUpdate struct {
	idPath
	tagBody
}

// APIDoc describes the routes mounted by Routes.
func (c *Comp) APIDoc() []apidoc.Operation {
	w := []string{"widget"}
	t := []string{"tag"}
	return []apidoc.Operation{
		{Method: http.MethodPost, Path: "/widgets", Summary: "Create a widget", Tags: w,
			Request: new(widgetBody), Response: new(Widget), Status: http.StatusCreated, Binds: true},
		{Method: http.MethodGet, Path: "/widgets/{id}", Summary: "Fetch a widget", Tags: w,
			Request: new(idPath), Response: new(Widget), Status: http.StatusOK, Lookup: true},
		{Method: http.MethodPut, Path: "/widgets/{id}", Summary: "Replace a widget; missing fields are cleared", Tags: w,
			Request: new(widgetUpdate), Response: new(Widget), Status: http.StatusOK, Binds: true, Lookup: true},
		{Method: http.MethodPatch, Path: "/widgets/{id}", Summary: "Update the supplied widget fields", Tags: w,
			Request: new(widgetUpdate), Response: new(Widget), Status: http.StatusOK, Binds: true, Lookup: true},
		{Method: http.MethodDelete, Path: "/widgets/{id}", Summary: "Soft-delete a widget", Tags: w,
			Request: new(idPath), Status: http.StatusNoContent, Lookup: true},
		{Method: http.MethodPost, Path: "/widgets/{id}/tags", Summary: "Tag a widget", Tags: t,
			Request: new(tagCreate), Response: new(Tag), Status: http.StatusCreated, Binds: true, Lookup: true},
		{Method: http.MethodPut, Path: "/tags/{id}", Summary: "Replace a tag", Tags: t,
			Request: new(tagUpdate), Response: new(Tag), Status: http.StatusOK, Binds: true, Lookup: true},
		{Method: http.MethodPatch, Path: "/tags/{id}", Summary: "Update a tag", Tags: t,
			Request: new(tagUpdate), Response: new(Tag), Status: http.StatusOK, Binds: true, Lookup: true},
		{Method: http.MethodDelete, Path: "/tags/{id}", Summary: "Delete a tag", Tags: t,
			Request: new(idPath), Status: http.StatusNoContent, Lookup: true},
	}
}
