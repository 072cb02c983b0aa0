package storage

import (
	"context"
	"errors"
	"sort"
)

// ErrNotFound is returned when a row locator no longer refers to a row.
var ErrNotFound = errors.New("row not found")

// RowID is an opaque row locator. It is assigned on Append and stays valid
// until the row itself is deleted; deleting other rows does not affect it.
type RowID string

// IDColumn holds the row locator in backends that keep a header row.
const IDColumn = "row_id"

// Table describes a named table and the columns it is written with.
// Backends may find extra columns in existing data; those are preserved.
type Table struct {
	Name    string
	Columns []string
}

// Row is a single stored row. Missing cells read as empty strings.
type Row struct {
	ID     RowID
	Values map[string]string
}

func (r Row) Get(column string) string {
	if r.Values == nil {
		return ""
	}
	return r.Values[column]
}

// Store abstracts persistence of row-oriented tables.
// LoadAll returns rows in insertion order and an empty slice for a missing table.
// Every mutating call is persisted before it returns.
// Implementations must be safe for concurrent use and serialize mutations.
type Store interface {
	LoadAll(ctx context.Context, t Table) ([]Row, error)
	Append(ctx context.Context, t Table, values map[string]string) (RowID, error)
	UpdateCell(ctx context.Context, t Table, id RowID, column, value string) error
	DeleteRow(ctx context.Context, t Table, id RowID) error
	Close() error
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func copyValues(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
