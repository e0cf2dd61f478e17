package component

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-chi/chi/v5"
	"github.com/jmoiron/sqlx"

	"github.com/yanizio/binder/internal/form"
)

type stub struct {
	name  string
	migs  []string
	pairs []form.Pair
}

func (s stub) Name() string         { return s.name }
func (s stub) Init(Deps) error      { return nil }
func (s stub) Routes() chi.Router   { return chi.NewRouter() }
func (s stub) Migrations() []string { return s.migs }
func (s stub) Forms() []form.Pair   { return s.pairs }

func TestAllIsSortedByName(t *testing.T) {
	Register(stub{name: "zz-test"})
	Register(stub{name: "aa-test"})

	all := All()
	for i := 1; i < len(all); i++ {
		if all[i-1].Name() > all[i].Name() {
			t.Fatalf("not sorted: %q before %q", all[i-1].Name(), all[i].Name())
		}
	}
}

func TestRequiredForms(t *testing.T) {
	got := RequiredForms([]Component{
		stub{name: "a", pairs: []form.Pair{{Verb: "POST", Entity: "Widget"}}},
		stub{name: "b", pairs: []form.Pair{{Verb: "PUT", Entity: "Tag"}, {Verb: "PATCH", Entity: "Tag"}}},
	})
	if len(got) != 3 || got[0].Entity != "Widget" || got[2].Verb != "PATCH" {
		t.Fatalf("unexpected pairs: %#v", got)
	}
}

func TestMigrate(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer mockDB.Close()
	db := sqlx.NewDb(mockDB, "mysql")

	cs := []Component{
		stub{name: "a", migs: []string{"CREATE TABLE IF NOT EXISTS a (id INT)"}},
		stub{name: "b", migs: []string{"CREATE TABLE IF NOT EXISTS b (id INT)"}},
	}

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS a (id INT)")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS b (id INT)")).
		WillReturnError(errors.New("denied"))

	err = Migrate(context.Background(), db, cs)
	if err == nil || !regexp.MustCompile(`component b: migration 1`).MatchString(err.Error()) {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}
}
