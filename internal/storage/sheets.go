package storage

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/xuri/excelize/v2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// SheetsStore keeps every table in its own tab of one Google spreadsheet.
// The first line of a tab is the header; the row_id column comes first.
type SheetsStore struct {
	svc           *sheets.Service
	spreadsheetID string

	mu   sync.Mutex
	tabs map[string]int64
}

// NewSheetsStore authenticates with a service-account key file.
func NewSheetsStore(ctx context.Context, spreadsheetID, credentialsFile string) (*SheetsStore, error) {
	if spreadsheetID == "" {
		return nil, fmt.Errorf("spreadsheet id is required")
	}
	data, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}
	conf, err := google.JWTConfigFromJSON(data, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}
	svc, err := sheets.NewService(ctx, option.WithHTTPClient(conf.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return NewSheetsStoreWithService(svc, spreadsheetID), nil
}

func NewSheetsStoreWithService(svc *sheets.Service, spreadsheetID string) *SheetsStore {
	return &SheetsStore{svc: svc, spreadsheetID: spreadsheetID, tabs: make(map[string]int64)}
}

func (s *SheetsStore) LoadAll(ctx context.Context, t Table) ([]Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	header, raw, err := s.readTab(ctx, t)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return []Row{}, nil
	}
	return decodeRows(header, raw), nil
}

func (s *SheetsStore) Append(ctx context.Context, t Table, values map[string]string) (RowID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.ensureTab(ctx, t); err != nil {
		return "", err
	}
	header, _, err := s.readTab(ctx, t)
	if err != nil {
		return "", err
	}
	merged := mergeColumns(header, append([]string{IDColumn}, sortedKeys(values)...))
	if len(merged) != len(header) {
		if err := s.writeHeader(ctx, t, merged); err != nil {
			return "", err
		}
	}
	row := Row{ID: newRowID(), Values: copyValues(values)}
	line := encodeRows(merged, []Row{row})[1]
	vr := &sheets.ValueRange{Values: [][]interface{}{toInterfaces(line)}}
	_, err = s.svc.Spreadsheets.Values.Append(s.spreadsheetID, quoteTab(t.Name), vr).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("append to %q: %w", t.Name, err)
	}
	return row.ID, nil
}

func (s *SheetsStore) UpdateCell(ctx context.Context, t Table, id RowID, column, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	header, raw, err := s.readTab(ctx, t)
	if err != nil {
		return err
	}
	r := lineOf(header, raw, id)
	if r < 0 {
		return fmt.Errorf("update %s in %q: %w", id, t.Name, ErrNotFound)
	}
	col := columnIndex(header, column)
	if col < 0 {
		header = append(header, column)
		if err := s.writeHeader(ctx, t, header); err != nil {
			return err
		}
		col = len(header) - 1
	}
	// raw excludes the header line, sheet rows are 1-based
	cell, err := excelize.CoordinatesToCellName(col+1, r+2)
	if err != nil {
		return err
	}
	vr := &sheets.ValueRange{Values: [][]interface{}{{value}}}
	_, err = s.svc.Spreadsheets.Values.Update(s.spreadsheetID, quoteTab(t.Name)+"!"+cell, vr).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("update %s in %q: %w", id, t.Name, err)
	}
	return nil
}

func (s *SheetsStore) DeleteRow(ctx context.Context, t Table, id RowID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sheetID, ok, err := s.tabID(ctx, t.Name)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("delete %s in %q: %w", id, t.Name, ErrNotFound)
	}
	header, raw, err := s.readTab(ctx, t)
	if err != nil {
		return err
	}
	r := lineOf(header, raw, id)
	if r < 0 {
		return fmt.Errorf("delete %s in %q: %w", id, t.Name, ErrNotFound)
	}
	req := &sheets.BatchUpdateSpreadsheetRequest{Requests: []*sheets.Request{{
		DeleteDimension: &sheets.DeleteDimensionRequest{Range: &sheets.DimensionRange{
			SheetId:         sheetID,
			Dimension:       "ROWS",
			StartIndex:      int64(r + 1),
			EndIndex:        int64(r + 2),
			ForceSendFields: []string{"SheetId"},
		}},
	}}}
	if _, err := s.svc.Spreadsheets.BatchUpdate(s.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("delete %s in %q: %w", id, t.Name, err)
	}
	return nil
}

func (s *SheetsStore) Close() error { return nil }

// readTab returns the header and the data lines (header excluded) of a tab.
// A missing tab reads as the table's declared header and no lines.
func (s *SheetsStore) readTab(ctx context.Context, t Table) ([]string, [][]string, error) {
	declared := mergeColumns([]string{IDColumn}, t.Columns)
	_, ok, err := s.tabID(ctx, t.Name)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return declared, nil, nil
	}
	vr, err := s.svc.Spreadsheets.Values.Get(s.spreadsheetID, quoteTab(t.Name)).Context(ctx).Do()
	if err != nil {
		return nil, nil, fmt.Errorf("read %q: %w", t.Name, err)
	}
	lines := toStrings(vr.Values)
	if len(lines) == 0 {
		return declared, nil, nil
	}
	if missingIDs(lines[0], lines[1:]) {
		return s.backfillIDs(ctx, t, lines[0], lines[1:])
	}
	return lines[0], lines[1:], nil
}

// backfillIDs rewrites a tab whose rows lack a row_id, giving every row one.
func (s *SheetsStore) backfillIDs(ctx context.Context, t Table, header []string, raw [][]string) ([]string, [][]string, error) {
	rows := decodeRows(header, raw)
	assignMissingIDs(rows)
	lines := encodeRows(mergeColumns(append([]string{IDColumn}, header...), t.Columns), rows)

	_, err := s.svc.Spreadsheets.Values.Clear(s.spreadsheetID, quoteTab(t.Name), &sheets.ClearValuesRequest{}).
		Context(ctx).
		Do()
	if err != nil {
		return nil, nil, fmt.Errorf("clear %q: %w", t.Name, err)
	}
	values := make([][]interface{}, len(lines))
	for i, line := range lines {
		values[i] = toInterfaces(line)
	}
	_, err = s.svc.Spreadsheets.Values.Update(s.spreadsheetID, quoteTab(t.Name)+"!A1", &sheets.ValueRange{Values: values}).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return nil, nil, fmt.Errorf("backfill ids of %q: %w", t.Name, err)
	}
	return lines[0], lines[1:], nil
}

func (s *SheetsStore) writeHeader(ctx context.Context, t Table, header []string) error {
	vr := &sheets.ValueRange{Values: [][]interface{}{toInterfaces(header)}}
	_, err := s.svc.Spreadsheets.Values.Update(s.spreadsheetID, quoteTab(t.Name)+"!A1", vr).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("write header of %q: %w", t.Name, err)
	}
	return nil
}

func (s *SheetsStore) ensureTab(ctx context.Context, t Table) (int64, error) {
	id, ok, err := s.tabID(ctx, t.Name)
	if err != nil || ok {
		return id, err
	}
	req := &sheets.BatchUpdateSpreadsheetRequest{Requests: []*sheets.Request{{
		AddSheet: &sheets.AddSheetRequest{Properties: &sheets.SheetProperties{Title: t.Name}},
	}}}
	resp, err := s.svc.Spreadsheets.BatchUpdate(s.spreadsheetID, req).Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("add tab %q: %w", t.Name, err)
	}
	if len(resp.Replies) == 0 || resp.Replies[0].AddSheet == nil {
		return 0, fmt.Errorf("add tab %q: empty reply", t.Name)
	}
	id = resp.Replies[0].AddSheet.Properties.SheetId
	s.tabs[t.Name] = id
	if err := s.writeHeader(ctx, t, mergeColumns([]string{IDColumn}, t.Columns)); err != nil {
		return 0, err
	}
	return id, nil
}

func (s *SheetsStore) tabID(ctx context.Context, name string) (int64, bool, error) {
	if id, ok := s.tabs[name]; ok {
		return id, true, nil
	}
	ss, err := s.svc.Spreadsheets.Get(s.spreadsheetID).Fields("sheets.properties").Context(ctx).Do()
	if err != nil {
		return 0, false, fmt.Errorf("get spreadsheet: %w", err)
	}
	for _, sh := range ss.Sheets {
		if sh.Properties != nil {
			s.tabs[sh.Properties.Title] = sh.Properties.SheetId
		}
	}
	id, ok := s.tabs[name]
	return id, ok, nil
}

// missingIDs reports whether any non-blank line has no row_id.
func missingIDs(header []string, lines [][]string) bool {
	col := columnIndex(header, IDColumn)
	for _, line := range lines {
		blank := true
		for _, v := range line {
			if v != "" {
				blank = false
				break
			}
		}
		if blank {
			continue
		}
		if col < 0 || col >= len(line) || line[col] == "" {
			return true
		}
	}
	return false
}

// lineOf returns the index in lines of the row holding id, or -1.
func lineOf(header []string, lines [][]string, id RowID) int {
	col := columnIndex(header, IDColumn)
	if col < 0 || id == "" {
		return -1
	}
	for i, line := range lines {
		if col < len(line) && line[col] == string(id) {
			return i
		}
	}
	return -1
}

func columnIndex(header []string, column string) int {
	for i, c := range header {
		if c == column {
			return i
		}
	}
	return -1
}

func quoteTab(name string) string {
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}

func toInterfaces(line []string) []interface{} {
	out := make([]interface{}, len(line))
	for i, v := range line {
		out[i] = v
	}
	return out
}

func toStrings(values [][]interface{}) [][]string {
	out := make([][]string, len(values))
	for i, line := range values {
		out[i] = make([]string, len(line))
		for j, v := range line {
			out[i][j] = fmt.Sprint(v)
		}
	}
	return out
}
