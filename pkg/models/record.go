// Package models provides the tabular data model flowing through the
// extraction core: a Record is one decoded API item and a Table is an ordered
// collection of records with an explicit, ordered column list.
//
// Column order is part of a table's identity. It starts as the first-seen
// order of keys across appended records and is only changed explicitly, so
// serialized output never depends on Go map iteration order.
package models

import (
	"sort"
)

// Record is a single row keyed by column name.
type Record = map[string]interface{}

// Table is an ordered collection of records with an ordered column list.
// A Table is not safe for concurrent mutation.
type Table struct {
	columns []string
	index   map[string]struct{}
	rows    []Record
}

// NewTable creates an empty table with the given columns.
func NewTable(columns ...string) *Table {
	t := &Table{index: make(map[string]struct{}, len(columns))}
	for _, c := range columns {
		t.addColumn(c)
	}
	return t
}

// FromRecords builds a table from records. Columns appear in the order keys
// are first seen; keys within one record are taken in sorted order because
// Go maps carry no order of their own.
func FromRecords(records []Record) *Table {
	t := NewTable()
	for _, r := range records {
		t.Append(r)
	}
	return t
}

func (t *Table) addColumn(name string) bool {
	if _, ok := t.index[name]; ok {
		return false
	}
	t.index[name] = struct{}{}
	t.columns = append(t.columns, name)
	return true
}

// Append adds a record, registering any columns the table has not seen.
func (t *Table) Append(r Record) {
	if r == nil {
		r = Record{}
	}
	keys := make([]string, 0, len(r))
	for k := range r {
		if _, ok := t.index[k]; !ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		t.addColumn(k)
	}
	t.rows = append(t.rows, r)
}

// Columns returns a copy of the column list.
func (t *Table) Columns() []string {
	out := make([]string, len(t.columns))
	copy(out, t.columns)
	return out
}

// HasColumn reports whether the column is declared.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.index[name]
	return ok
}

// EnsureColumn declares a column without touching rows.
func (t *Table) EnsureColumn(name string) {
	t.addColumn(name)
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.rows)
}

// Rows returns the underlying rows. Callers may mutate row values in place.
func (t *Table) Rows() []Record {
	return t.rows
}

// Row returns row i.
func (t *Table) Row(i int) Record {
	return t.rows[i]
}

// Value returns the value at row i, column col, and whether it was present.
func (t *Table) Value(i int, col string) (interface{}, bool) {
	v, ok := t.rows[i][col]
	return v, ok
}

// Column returns the values of one column, nil where a row lacks it.
func (t *Table) Column(name string) []interface{} {
	out := make([]interface{}, len(t.rows))
	for i, r := range t.rows {
		out[i] = r[name]
	}
	return out
}

// SetColumn assigns fn(row) to column name on every row, declaring the column.
func (t *Table) SetColumn(name string, fn func(Record) interface{}) {
	t.addColumn(name)
	for _, r := range t.rows {
		r[name] = fn(r)
	}
}

// DropColumns removes columns from the column list and from every row.
func (t *Table) DropColumns(names ...string) {
	drop := make(map[string]struct{}, len(names))
	for _, n := range names {
		drop[n] = struct{}{}
		delete(t.index, n)
	}
	kept := t.columns[:0]
	for _, c := range t.columns {
		if _, ok := drop[c]; !ok {
			kept = append(kept, c)
		}
	}
	t.columns = kept
	for _, r := range t.rows {
		for n := range drop {
			delete(r, n)
		}
	}
}

// SetColumnOrder replaces the column order. Listed columns come first in the
// given order; columns not listed keep their relative order afterwards.
// Listed names the table does not have are declared.
func (t *Table) SetColumnOrder(order []string) {
	next := make([]string, 0, len(t.columns)+len(order))
	seen := make(map[string]struct{}, len(order))
	for _, c := range order {
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		next = append(next, c)
	}
	for _, c := range t.columns {
		if _, ok := seen[c]; !ok {
			next = append(next, c)
		}
	}
	t.columns = next
	t.index = make(map[string]struct{}, len(next))
	for _, c := range next {
		t.index[c] = struct{}{}
	}
}

// Truncate keeps the first n rows.
func (t *Table) Truncate(n int) {
	if n >= 0 && n < len(t.rows) {
		t.rows = t.rows[:n]
	}
}

// Clone returns a deep copy of the column list and a shallow copy of every
// row map.
func (t *Table) Clone() *Table {
	c := NewTable(t.columns...)
	c.rows = make([]Record, len(t.rows))
	for i, r := range t.rows {
		cp := make(Record, len(r))
		for k, v := range r {
			cp[k] = v
		}
		c.rows[i] = cp
	}
	return c
}
