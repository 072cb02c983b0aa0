package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

var testTable = Table{Name: "mechanics", Columns: []string{"pilot_name", "kart_class", "lap_time"}}

// exerciseStore runs the Store contract against any backend.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	rows, err := s.LoadAll(ctx, testTable)
	require.NoError(t, err)
	require.Empty(t, rows, "missing table must load as empty")

	id1, err := s.Append(ctx, testTable, map[string]string{"pilot_name": "Ann", "kart_class": "OK"})
	require.NoError(t, err)
	id2, err := s.Append(ctx, testTable, map[string]string{"pilot_name": "Bob", "kart_class": "KZ"})
	require.NoError(t, err)
	id3, err := s.Append(ctx, testTable, map[string]string{"pilot_name": "Cid", "kart_class": "KZ2"})
	require.NoError(t, err)
	require.NotEqual(t, id1, id2)

	rows, err = s.LoadAll(ctx, testTable)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	require.Equal(t, id1, rows[0].ID)
	require.Equal(t, "Bob", rows[1].Get("pilot_name"))
	require.Equal(t, "", rows[1].Get("lap_time"))

	// deleting an earlier row keeps later locators valid
	require.NoError(t, s.DeleteRow(ctx, testTable, id1))
	require.NoError(t, s.UpdateCell(ctx, testTable, id3, "lap_time", "48.512"))

	rows, err = s.LoadAll(ctx, testTable)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, id2, rows[0].ID)
	require.Equal(t, "", rows[0].Get("lap_time"))
	require.Equal(t, "48.512", rows[1].Get("lap_time"))
	require.Equal(t, "Cid", rows[1].Get("pilot_name"))

	require.ErrorIs(t, s.UpdateCell(ctx, testTable, id1, "lap_time", "1"), ErrNotFound)
	require.ErrorIs(t, s.DeleteRow(ctx, testTable, id1), ErrNotFound)

	other := Table{Name: "Ann Smith expenses", Columns: []string{"description", "amount"}}
	rows, err = s.LoadAll(ctx, other)
	require.NoError(t, err)
	require.Empty(t, rows, "tables must not share rows")
}

func TestFileStore_Contract(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)
	exerciseStore(t, s)

	st, err := os.Stat(filepath.Join(dir, "mechanics.xlsx"))
	require.NoError(t, err)
	require.NotZero(t, st.Size())
	_, err = os.Stat(filepath.Join(dir, "mechanics.xlsx.tmp"))
	require.True(t, os.IsNotExist(err), "temp workbook left behind")
}

func TestFileStore_ReopenKeepsRows(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	s, err := NewFileStore(dir)
	require.NoError(t, err)
	id, err := s.Append(ctx, testTable, map[string]string{"pilot_name": "Ann", "extra": "x"})
	require.NoError(t, err)

	again, err := NewFileStore(dir)
	require.NoError(t, err)
	rows, err := again.LoadAll(ctx, testTable)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, id, rows[0].ID)
	require.Equal(t, "x", rows[0].Get("extra"), "undeclared columns are preserved")
}

func TestSQLiteStore_Contract(t *testing.T) {
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "db", "records.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	exerciseStore(t, s)
}

func TestFileName(t *testing.T) {
	require.Equal(t, "a_b_c", fileName("a/b:c"))
	require.Equal(t, "Ann Smith expenses", fileName(" Ann Smith expenses "))
	require.Equal(t, "_", fileName("  "))
}

func TestDecodeRows_SkipsBlankLines(t *testing.T) {
	header := []string{IDColumn, "pilot_name"}
	rows := decodeRows(header, [][]string{{"a", "Ann"}, {}, {"", ""}, {"b"}})
	require.Len(t, rows, 2)
	require.Equal(t, RowID("b"), rows[1].ID)
	require.Equal(t, "", rows[1].Get("pilot_name"))
}

func TestMemoryStore_Contract(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestFileStore_LegacyWorkbookGetsStableIDs(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	table := Table{Name: "mechanics", Columns: []string{"mechanic", "timestamp", "pilot_name"}}

	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]string{"mechanic", "timestamp", "pilot_name"}))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]string{"Ann Smith", "2024-05-01 09:00:00", "Max"}))
	require.NoError(t, f.SaveAs(filepath.Join(dir, "mechanics.xlsx")))
	require.NoError(t, f.Close())

	s, err := NewFileStore(dir)
	require.NoError(t, err)
	rows, err := s.LoadAll(ctx, table)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	id := rows[0].ID
	require.NotEmpty(t, id)
	require.Equal(t, "Max", rows[0].Get("pilot_name"))

	again, err := s.LoadAll(ctx, table)
	require.NoError(t, err)
	require.Equal(t, id, again[0].ID, "id must survive a second read")

	require.NoError(t, s.UpdateCell(ctx, table, id, "pilot_name", "Lea"))

	reopened, err := NewFileStore(dir)
	require.NoError(t, err)
	rows, err = reopened.LoadAll(ctx, table)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, id, rows[0].ID)
	require.Equal(t, "Lea", rows[0].Get("pilot_name"))
	require.Equal(t, "Ann Smith", rows[0].Get("mechanic"))
}
