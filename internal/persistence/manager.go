// internal/persistence/manager.go
//
// Unit of work over sqlx.
//
// Context
// -------
// Binding mutates entities in memory; nothing reaches the database until the
// handler decides the whole request succeeded.  ObjectManager keeps the set of
// records touched by the request and writes them in one transaction on Flush:
//
//	om := persistence.NewObjectManager(db)
//	w := &Widget{}
//	if err := om.Find(ctx, w, id); err != nil { … }
//	// … bind the request onto w …
//	if err := om.Flush(ctx); err != nil { … }
//
// Records are pointers to structs with `db` tags.  They name their table and
// primary key through the Record interface.  Rows are written with MySQL
// “INSERT … ON DUPLICATE KEY UPDATE”, so the same statement serves new and
// loaded records.
//
// Notes
// -----
//   - An ObjectManager belongs to one request.  It is not safe for concurrent
//     use.
//   - Upserts run before deletes, each group in staging order.
//   - Only top-level struct fields are mapped; embedded structs are not.
package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/yanizio/binder/internal/metrics"
)

var (
	// ErrNotRecord is returned for values that are not non-nil pointers to a
	// Record.
	ErrNotRecord = errors.New("persistence: value is not a record pointer")
	// ErrRecordNotFound is returned by Find when no row matches.
	ErrRecordNotFound = errors.New("persistence: record not found")
)

// Record is a row-backed entity.
type Record interface {
	Table() string
	PrimaryKey() (column string, value any)
}

// IDAssigner records receive the auto-increment ID after their first insert.
type IDAssigner interface {
	AssignID(id int64)
}

// ObjectManager stages upserts and deletes for one unit of work.
type ObjectManager struct {
	db *sqlx.DB

	managed []Record
	removed []Record
}

// NewObjectManager returns an empty unit of work over db.
func NewObjectManager(db *sqlx.DB) *ObjectManager {
	return &ObjectManager{db: db}
}

// -----------------------------------------------------------------------------
// Staging
// -----------------------------------------------------------------------------

// Find loads the row whose primary key equals id into dst and marks dst as
// managed.  It returns ErrRecordNotFound when there is no such row.
func (om *ObjectManager) Find(ctx context.Context, dst Record, id any) error {
	if !isPointer(dst) {
		return ErrNotRecord
	}

	col, _ := dst.PrimaryKey()
	q := fmt.Sprintf("SELECT * FROM %s WHERE %s = ? LIMIT 1", dst.Table(), col)

	err := om.db.GetContext(ctx, dst, q, id)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s %v", ErrRecordNotFound, dst.Table(), id)
	}
	if err != nil {
		return fmt.Errorf("persistence: find %s %v: %w", dst.Table(), id, err)
	}

	om.managed = appendOnce(om.managed, dst)
	return nil
}

// Persist marks v for insert-or-update on the next Flush.  A pending removal
// of v is cancelled.
func (om *ObjectManager) Persist(v any) error {
	rec, err := asRecord(v)
	if err != nil {
		return err
	}
	om.removed = without(om.removed, rec)
	om.managed = appendOnce(om.managed, rec)
	return nil
}

// Remove marks v for deletion on the next Flush.  No I/O happens here.
func (om *ObjectManager) Remove(v any) error {
	rec, err := asRecord(v)
	if err != nil {
		return err
	}
	om.managed = without(om.managed, rec)
	om.removed = appendOnce(om.removed, rec)
	return nil
}

// Contains reports whether v is staged for upsert.
func (om *ObjectManager) Contains(v any) bool {
	for _, r := range om.managed {
		if any(r) == v {
			return true
		}
	}
	return false
}

// Clear drops all staged work.
func (om *ObjectManager) Clear() {
	om.managed = nil
	om.removed = nil
}

// -----------------------------------------------------------------------------
// Flush
// -----------------------------------------------------------------------------

// Flush writes staged upserts, then deletes, in one transaction.  On success
// the unit of work is cleared; on failure the transaction is rolled back and
// the staged work is kept.
func (om *ObjectManager) Flush(ctx context.Context) (err error) {
	if len(om.managed) == 0 && len(om.removed) == 0 {
		return nil
	}

	defer func() {
		result := "ok"
		if err != nil {
			result = "error"
		}
		metrics.FlushTotal.WithLabelValues(result).Inc()
	}()

	tx, err := om.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("persistence: begin: %w", err)
	}

	for _, rec := range om.managed {
		if err := om.upsert(ctx, tx, rec); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	for _, rec := range om.removed {
		if err := remove(ctx, tx, rec); err != nil {
			_ = tx.Rollback()
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("persistence: commit: %w", err)
	}

	zap.L().Debug("unit of work flushed",
		zap.Int("upserts", len(om.managed)),
		zap.Int("deletes", len(om.removed)))
	om.Clear()
	return nil
}

func (om *ObjectManager) upsert(ctx context.Context, tx *sqlx.Tx, rec Record) error {
	pk, pkVal := rec.PrimaryKey()
	cols := om.columns(rec)
	if len(cols) == 0 {
		return fmt.Errorf("persistence: %s has no db columns", rec.Table())
	}

	named := make([]string, len(cols))
	updates := make([]string, 0, len(cols))
	for i, c := range cols {
		named[i] = ":" + c
		if c != pk {
			updates = append(updates, fmt.Sprintf("%s = VALUES(%s)", c, c))
		}
	}

	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		rec.Table(), strings.Join(cols, ", "), strings.Join(named, ", "))
	if len(updates) > 0 {
		q += " ON DUPLICATE KEY UPDATE " + strings.Join(updates, ", ")
	}

	res, err := tx.NamedExecContext(ctx, q, rec)
	if err != nil {
		return fmt.Errorf("persistence: upsert %s: %w", rec.Table(), err)
	}

	if a, ok := rec.(IDAssigner); ok && isZero(pkVal) {
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("persistence: last insert id %s: %w", rec.Table(), err)
		}
		a.AssignID(id)
	}
	return nil
}

func remove(ctx context.Context, tx *sqlx.Tx, rec Record) error {
	pk, pkVal := rec.PrimaryKey()
	q := fmt.Sprintf("DELETE FROM %s WHERE %s = ?", rec.Table(), pk)
	if _, err := tx.ExecContext(ctx, q, pkVal); err != nil {
		return fmt.Errorf("persistence: delete %s %v: %w", rec.Table(), pkVal, err)
	}
	return nil
}

// columns lists the `db` column names of rec's top-level fields in
// declaration order, using the same mapper sqlx binds with.
func (om *ObjectManager) columns(rec Record) []string {
	sm := om.db.Mapper.TypeMap(reflect.TypeOf(rec))
	cols := make([]string, 0, len(sm.Tree.Children))
	for _, fi := range sm.Tree.Children {
		if fi == nil || fi.Embedded {
			continue
		}
		cols = append(cols, fi.Name)
	}
	return cols
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func asRecord(v any) (Record, error) {
	rec, ok := v.(Record)
	if !ok || !isPointer(rec) {
		return nil, fmt.Errorf("%w: %T", ErrNotRecord, v)
	}
	return rec, nil
}

func isPointer(v any) bool {
	rv := reflect.ValueOf(v)
	return rv.Kind() == reflect.Pointer && !rv.IsNil()
}

func isZero(v any) bool {
	return v == nil || reflect.ValueOf(v).IsZero()
}

func appendOnce(list []Record, rec Record) []Record {
	for _, r := range list {
		if r == rec {
			return list
		}
	}
	return append(list, rec)
}

func without(list []Record, rec Record) []Record {
	out := list[:0]
	for _, r := range list {
		if r != rec {
			out = append(out, r)
		}
	}
	return out
}
