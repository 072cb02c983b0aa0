package storage

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore keeps tables in process memory. Used in tests and by tools
// that need a scratch store.
type MemoryStore struct {
	mu     sync.Mutex
	tables map[string][]Row
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tables: make(map[string][]Row)}
}

func (m *MemoryStore) LoadAll(_ context.Context, t Table) ([]Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows := m.tables[t.Name]
	out := make([]Row, 0, len(rows))
	for _, r := range rows {
		values := copyValues(r.Values)
		for _, c := range t.Columns {
			if _, ok := values[c]; !ok {
				values[c] = ""
			}
		}
		out = append(out, Row{ID: r.ID, Values: values})
	}
	return out, nil
}

func (m *MemoryStore) Append(_ context.Context, t Table, values map[string]string) (RowID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row := Row{ID: newRowID(), Values: copyValues(values)}
	m.tables[t.Name] = append(m.tables[t.Name], row)
	return row.ID, nil
}

func (m *MemoryStore) UpdateCell(_ context.Context, t Table, id RowID, column, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows := m.tables[t.Name]
	i := indexOf(rows, id)
	if i < 0 {
		return fmt.Errorf("update %s in %q: %w", id, t.Name, ErrNotFound)
	}
	rows[i].Values[column] = value
	return nil
}

func (m *MemoryStore) DeleteRow(_ context.Context, t Table, id RowID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows := m.tables[t.Name]
	i := indexOf(rows, id)
	if i < 0 {
		return fmt.Errorf("delete %s in %q: %w", id, t.Name, ErrNotFound)
	}
	m.tables[t.Name] = append(rows[:i], rows[i+1:]...)
	return nil
}

func (m *MemoryStore) Close() error { return nil }
