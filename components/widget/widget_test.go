package widget

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yanizio/binder/internal/apidoc"
	"github.com/yanizio/binder/internal/component"
	"github.com/yanizio/binder/internal/form"
)

const (
	selectWidget = `SELECT * FROM widgets WHERE id = ? LIMIT 1`
	upsertWidget = `INSERT INTO widgets (id, name, price, color, deleted_at) VALUES (?, ?, ?, ?, ?) ON DUPLICATE KEY UPDATE name = VALUES(name), price = VALUES(price), color = VALUES(color), deleted_at = VALUES(deleted_at)`
	selectTag    = `SELECT * FROM widget_tags WHERE id = ? LIMIT 1`
	upsertTag    = `INSERT INTO widget_tags (id, widget_id, label) VALUES (?, ?, ?) ON DUPLICATE KEY UPDATE widget_id = VALUES(widget_id), label = VALUES(label)`
	deleteTag    = `DELETE FROM widget_tags WHERE id = ?`
)

var widgetCols = []string{"id", "name", "price", "color", "deleted_at"}

type fixture struct {
	h    http.Handler
	mock sqlmock.Sqlmock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { raw.Close() })

	reg := form.NewRegistry()
	require.NoError(t, reg.LoadDir("../../forms"))

	c := &Comp{}
	require.NoError(t, c.Init(component.Deps{DB: sqlx.NewDb(raw, "mysql"), Forms: reg}))
	return &fixture{h: c.Routes(), mock: mock}
}

func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		r.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.h.ServeHTTP(w, r)
	return w
}

func (f *fixture) expectWidget(id int64, deletedAt any) {
	f.mock.ExpectQuery(regexp.QuoteMeta(selectWidget)).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(widgetCols).AddRow(id, "Lamp", 12, "red", deletedAt))
}

func TestComponentFormsAreDefined(t *testing.T) {
	reg := form.NewRegistry()
	require.NoError(t, reg.LoadDir("../../forms"))

	c := &Comp{}
	assert.NoError(t, reg.Require(c.Forms()...))
	assert.Len(t, c.Forms(), 6)
}

func TestMigrations(t *testing.T) {
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer raw.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS widgets").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS widget_tags").WillReturnResult(sqlmock.NewResult(0, 0))

	err = component.Migrate(context.Background(), sqlx.NewDb(raw, "mysql"), []component.Component{&Comp{}})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateWidget(t *testing.T) {
	f := newFixture(t)

	f.mock.ExpectBegin()
	f.mock.ExpectExec(regexp.QuoteMeta(upsertWidget)).
		WithArgs(int64(0), "Lamp", 12, "red", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(7, 1))
	f.mock.ExpectCommit()

	w := f.do(http.MethodPost, "/widgets", `{"name":"Lamp","price":12,"color":"red"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var got Widget
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, Widget{ID: 7, Name: "Lamp", Price: 12, Color: "red"}, got)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestCreateWidgetRejected(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodPost, "/widgets", `{"name":"ab","price":-1,"colour":"red"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	var body []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body, 3)
	assert.Equal(t, "This form should not contain extra fields.", body[0]["messageTemplate"])
	assert.NotContains(t, body[0], "propertyPath")
	assert.Equal(t, "name", body[1]["propertyPath"])
	assert.Equal(t, "price", body[2]["propertyPath"])

	// Nothing reaches the database.
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestCreateWidgetMalformedPayload(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodPost, "/widgets", `{"name":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"malformed payload"}`, w.Body.String())
}

func TestGetWidget(t *testing.T) {
	f := newFixture(t)
	f.expectWidget(4, nil)

	w := f.do(http.MethodGet, "/widgets/4", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"id":4,"name":"Lamp","price":12,"color":"red"}`, w.Body.String())
}

func TestGetWidgetNotFound(t *testing.T) {
	f := newFixture(t)
	f.expectWidget(4, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))

	for _, path := range []string{"/widgets/4", "/widgets/abc", "/widgets/0"} {
		w := f.do(http.MethodGet, path, "")
		assert.Equal(t, http.StatusNotFound, w.Code, path)
	}
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestPatchWidgetKeepsMissingFields(t *testing.T) {
	f := newFixture(t)
	f.expectWidget(4, nil)
	f.mock.ExpectBegin()
	f.mock.ExpectExec(regexp.QuoteMeta(upsertWidget)).
		WithArgs(int64(4), "Lamp", 30, "red", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 2))
	f.mock.ExpectCommit()

	w := f.do(http.MethodPatch, "/widgets/4", `{"price":30}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"id":4,"name":"Lamp","price":30,"color":"red"}`, w.Body.String())
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestPutWidgetClearsMissingFields(t *testing.T) {
	f := newFixture(t)
	f.expectWidget(4, nil)
	f.mock.ExpectBegin()
	f.mock.ExpectExec(regexp.QuoteMeta(upsertWidget)).
		WithArgs(int64(4), "Desk", 0, "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 2))
	f.mock.ExpectCommit()

	w := f.do(http.MethodPut, "/widgets/4", `{"name":"Desk"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"id":4,"name":"Desk","price":0}`, w.Body.String())
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestPutWidgetRejectedDoesNotFlush(t *testing.T) {
	f := newFixture(t)
	f.expectWidget(4, nil)

	w := f.do(http.MethodPut, "/widgets/4", `{"name":"Desk","color":"pink"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `[{
		"messageTemplate":"The value you selected is not a valid choice.",
		"messageParameters":{"{{ value }}":"\"pink\"","{{ choices }}":"\"red\", \"green\", \"blue\""},
		"propertyPath":"color"
	}]`, w.Body.String())
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestDeleteWidgetIsSoft(t *testing.T) {
	f := newFixture(t)
	f.expectWidget(4, nil)
	f.mock.ExpectBegin()
	f.mock.ExpectExec(regexp.QuoteMeta(upsertWidget)).
		WithArgs(int64(4), "Lamp", 12, "red", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 2))
	f.mock.ExpectCommit()

	w := f.do(http.MethodDelete, "/widgets/4", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.String())
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestCreateTag(t *testing.T) {
	f := newFixture(t)
	f.expectWidget(4, nil)
	f.mock.ExpectBegin()
	f.mock.ExpectExec(regexp.QuoteMeta(upsertTag)).
		WithArgs(int64(0), int64(4), "sale").
		WillReturnResult(sqlmock.NewResult(11, 1))
	f.mock.ExpectCommit()

	w := f.do(http.MethodPost, "/widgets/4/tags", `{"label":"sale"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.JSONEq(t, `{"id":11,"widget_id":4,"label":"sale"}`, w.Body.String())
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestPatchTagAnswersOK(t *testing.T) {
	f := newFixture(t)
	f.mock.ExpectQuery(regexp.QuoteMeta(selectTag)).
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "widget_id", "label"}).AddRow(3, 4, "sale"))
	f.mock.ExpectBegin()
	f.mock.ExpectExec(regexp.QuoteMeta(upsertTag)).
		WithArgs(int64(3), int64(4), "clearance").
		WillReturnResult(sqlmock.NewResult(0, 2))
	f.mock.ExpectCommit()

	w := f.do(http.MethodPatch, "/tags/3", `{"label":"clearance"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"id":3,"widget_id":4,"label":"clearance"}`, w.Body.String())
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestDeleteTagIsHard(t *testing.T) {
	f := newFixture(t)
	f.mock.ExpectQuery(regexp.QuoteMeta(selectTag)).
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "widget_id", "label"}).AddRow(3, 4, "sale"))
	f.mock.ExpectBegin()
	f.mock.ExpectExec(regexp.QuoteMeta(deleteTag)).
		WithArgs(int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectCommit()

	w := f.do(http.MethodDelete, "/tags/3", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestSoftDeleteKeepsFirstStamp(t *testing.T) {
	w := &Widget{}
	w.SoftDelete()
	first := *w.DeletedAt
	w.SoftDelete()

	assert.True(t, w.Deleted())
	assert.Equal(t, first, *w.DeletedAt)
	assert.Equal(t, time.UTC, first.Location())
}

func TestAPIDocCoversRoutes(t *testing.T) {
	doc, err := apidoc.Build("binder", "test", (&Comp{}).APIDoc())
	require.NoError(t, err)

	var out struct {
		Paths map[string]map[string]any `json:"paths"`
	}
	require.NoError(t, json.Unmarshal(doc, &out))

	assert.Len(t, out.Paths["/widgets"], 1)
	assert.Len(t, out.Paths["/widgets/{id}"], 4)
	assert.Len(t, out.Paths["/widgets/{id}/tags"], 1)
	assert.Len(t, out.Paths["/tags/{id}"], 3)
}
