package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
)

const workbookSheet = "records"

// FileStore keeps every table in its own .xlsx workbook under dir.
// Each mutation reads the whole workbook and rewrites it.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

type sheetData struct {
	header []string
	rows   []Row
}

func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to ensure data dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) LoadAll(_ context.Context, t Table) ([]Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := s.read(t)
	if err != nil {
		return nil, err
	}
	return data.rows, nil
}

func (s *FileStore) Append(_ context.Context, t Table, values map[string]string) (RowID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := s.read(t)
	if err != nil {
		return "", err
	}
	row := Row{ID: newRowID(), Values: copyValues(values)}
	data.header = mergeColumns(data.header, sortedKeys(row.Values))
	data.rows = append(data.rows, row)
	if err := s.write(t, data); err != nil {
		return "", err
	}
	return row.ID, nil
}

func (s *FileStore) UpdateCell(_ context.Context, t Table, id RowID, column, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := s.read(t)
	if err != nil {
		return err
	}
	i := indexOf(data.rows, id)
	if i < 0 {
		return fmt.Errorf("update %s in %q: %w", id, t.Name, ErrNotFound)
	}
	data.header = mergeColumns(data.header, []string{column})
	data.rows[i].Values[column] = value
	return s.write(t, data)
}

func (s *FileStore) DeleteRow(_ context.Context, t Table, id RowID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := s.read(t)
	if err != nil {
		return err
	}
	i := indexOf(data.rows, id)
	if i < 0 {
		return fmt.Errorf("delete %s in %q: %w", id, t.Name, ErrNotFound)
	}
	data.rows = append(data.rows[:i], data.rows[i+1:]...)
	return s.write(t, data)
}

func (s *FileStore) Close() error { return nil }

func (s *FileStore) path(t Table) string {
	return filepath.Join(s.dir, fileName(t.Name)+".xlsx")
}

func (s *FileStore) read(t Table) (sheetData, error) {
	data := sheetData{header: mergeColumns([]string{IDColumn}, t.Columns)}
	f, err := excelize.OpenFile(s.path(t))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return data, nil
		}
		return sheetData{}, fmt.Errorf("open workbook %q: %w", t.Name, err)
	}
	defer func(f *excelize.File) {
		_ = f.Close()
	}(f)

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return data, nil
	}
	raw, err := f.GetRows(sheets[0])
	if err != nil {
		return sheetData{}, fmt.Errorf("read workbook %q: %w", t.Name, err)
	}
	if len(raw) == 0 {
		return data, nil
	}
	header := raw[0]
	data.header = mergeColumns(append([]string{IDColumn}, header...), t.Columns)
	data.rows = decodeRows(header, raw[1:])
	// rows written without a row_id get one, persisted right away so it stays stable
	if assignMissingIDs(data.rows) {
		if err := s.write(t, data); err != nil {
			return sheetData{}, err
		}
	}
	return data, nil
}

func (s *FileStore) write(t Table, data sheetData) error {
	f := excelize.NewFile()
	defer func(f *excelize.File) {
		_ = f.Close()
	}(f)
	if err := f.SetSheetName(f.GetSheetName(0), workbookSheet); err != nil {
		return fmt.Errorf("name sheet: %w", err)
	}
	for i, cells := range encodeRows(data.header, data.rows) {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		row := cells
		if err := f.SetSheetRow(workbookSheet, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i, err)
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		return fmt.Errorf("encode workbook %q: %w", t.Name, err)
	}
	p := s.path(t)
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write workbook %q: %w", t.Name, err)
	}
	if err := os.Rename(tmp, p); err != nil {
		return fmt.Errorf("replace workbook %q: %w", t.Name, err)
	}
	return nil
}

// decodeRows maps raw cells to rows by header position. Rows without any
// non-empty cell are skipped.
func decodeRows(header []string, raw [][]string) []Row {
	rows := make([]Row, 0, len(raw))
	for _, cells := range raw {
		values := make(map[string]string, len(header))
		var id RowID
		empty := true
		for i, name := range header {
			v := ""
			if i < len(cells) {
				v = cells[i]
			}
			if v != "" {
				empty = false
			}
			if name == IDColumn {
				id = RowID(v)
				continue
			}
			values[name] = v
		}
		if empty {
			continue
		}
		rows = append(rows, Row{ID: id, Values: values})
	}
	return rows
}

// encodeRows renders the header line followed by one line per row.
func encodeRows(header []string, rows []Row) [][]string {
	out := make([][]string, 0, len(rows)+1)
	out = append(out, append([]string{}, header...))
	for _, r := range rows {
		line := make([]string, len(header))
		for i, name := range header {
			if name == IDColumn {
				line[i] = string(r.ID)
				continue
			}
			line[i] = r.Values[name]
		}
		out = append(out, line)
	}
	return out
}

func mergeColumns(base []string, extra []string) []string {
	seen := make(map[string]bool, len(base)+len(extra))
	out := make([]string, 0, len(base)+len(extra))
	for _, c := range append(append([]string{}, base...), extra...) {
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

func indexOf(rows []Row, id RowID) int {
	if id == "" {
		return -1
	}
	for i, r := range rows {
		if r.ID == id {
			return i
		}
	}
	return -1
}

// assignMissingIDs gives a fresh id to every row without one and reports
// whether any row changed.
func assignMissingIDs(rows []Row) bool {
	changed := false
	for i := range rows {
		if rows[i].ID == "" {
			rows[i].ID = newRowID()
			changed = true
		}
	}
	return changed
}

func newRowID() RowID { return RowID(uuid.NewString()) }

// fileName keeps table names usable as file names on every platform.
func fileName(name string) string {
	clean := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, strings.TrimSpace(name))
	if clean == "" {
		return "_"
	}
	return clean
}
