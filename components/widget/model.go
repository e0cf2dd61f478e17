// components/widget/model.go
//
// Widget and Tag entities.
//
// Context
// -------
//   - Widget is soft-deletable: DELETE stamps deleted_at and the row stays.
//     Soft-deleted widgets behave as missing for every route.
//   - Tag belongs to a widget and is hard-deleted.
//   - `form` tags name payload keys, `db` tags name columns, and `validate`
//     tags hold the constraints every form that writes the entity enforces.
package widget

import "time"

// Widget is a catalogue item.
type Widget struct {
	ID        int64      `db:"id"         json:"id"                   form:"-"`
	Name      string     `db:"name"       json:"name"                 form:"name"  validate:"required,min=3,max=64"`
	Price     int        `db:"price"      json:"price"                form:"price" validate:"gte=0"`
	Color     string     `db:"color"      json:"color,omitempty"      form:"color" validate:"omitempty,oneof=red green blue"`
	DeletedAt *time.Time `db:"deleted_at" json:"deleted_at,omitempty" form:"-"`
}

func (*Widget) EntityName() string          { return "Widget" }
func (*Widget) Table() string               { return "widgets" }
func (w *Widget) PrimaryKey() (string, any) { return "id", w.ID }
func (w *Widget) AssignID(id int64)         { w.ID = id }
func (w *Widget) Deleted() bool             { return w.DeletedAt != nil }

// SoftDelete stamps DeletedAt once; repeated calls keep the first stamp.
func (w *Widget) SoftDelete() {
	if w.DeletedAt == nil {
		now := time.Now().UTC()
		w.DeletedAt = &now
	}
}

// Tag is a free-form label attached to a widget.
type Tag struct {
	ID       int64  `db:"id"        json:"id"        form:"-"`
	WidgetID int64  `db:"widget_id" json:"widget_id" form:"-"`
	Label    string `db:"label"     json:"label"     form:"label" validate:"required,max=32"`
}

func (*Tag) EntityName() string          { return "Tag" }
func (*Tag) Table() string               { return "widget_tags" }
func (t *Tag) PrimaryKey() (string, any) { return "id", t.ID }
func (t *Tag) AssignID(id int64)         { t.ID = id }
