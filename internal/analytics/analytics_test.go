package analytics

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"pitlog/internal/records"
	"pitlog/internal/registry"
	"pitlog/internal/storage"
)

func sessionRow(mechanic, ts, pilot, class string) storage.Row {
	return storage.Row{ID: storage.RowID(mechanic + ts), Values: map[string]string{
		records.ColMechanic:  mechanic,
		records.ColTimestamp: ts,
		records.ColPilotName: pilot,
		records.ColKartClass: class,
	}}
}

func expenseRow(ts, desc, amount string) storage.Row {
	return storage.Row{Values: map[string]string{
		records.ColTimestamp:   ts,
		records.ColDescription: desc,
		records.ColAmount:      amount,
	}}
}

func TestAnalyzeDay(t *testing.T) {
	day := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

	sessions := []storage.Row{
		sessionRow("John Smith", "2024-01-15 09:00:00", "Max", "OK"),
		sessionRow("John Smith", "2024-01-15 11:00:00", "Max", "OK"),
		sessionRow("John Smith", "2024-01-15 13:00:00", "Lea", "KZ"),
		sessionRow("Ann Lee", "2024-01-15 10:30:00", "Tom", "OKJ"),
		// next day
		sessionRow("Ann Lee", "2024-01-16 10:30:00", "Tom", "OKJ"),
	}
	expenses := map[string][]storage.Row{
		"John Smith": {
			expenseRow("2024-01-15 12:00:00", "tires", "120.50"),
			expenseRow("2024-01-15 18:00:00", "fuel", "30"),
			expenseRow("2024-01-14 18:00:00", "fuel", "99"),
		},
		"Ann Lee": {
			expenseRow("2024-01-16 08:00:00", "chain", "15"),
		},
	}

	stats := AnalyzeDay(sessions, expenses, day)

	if stats.Date != "2024-01-15" {
		t.Errorf("Expected date '2024-01-15', got '%s'", stats.Date)
	}
	if stats.TotalSessions != 4 {
		t.Errorf("Expected 4 sessions, got %d", stats.TotalSessions)
	}

	john := stats.Mechanics["John Smith"]
	if john.Sessions != 3 {
		t.Errorf("Expected 3 sessions for John Smith, got %d", john.Sessions)
	}
	if strings.Join(john.Pilots, ",") != "Max,Lea" {
		t.Errorf("Expected pilots Max,Lea, got %v", john.Pilots)
	}
	if john.Classes["OK"] != 2 || john.Classes["KZ"] != 1 {
		t.Errorf("Unexpected classes %v", john.Classes)
	}
	if stats.Mechanics["Ann Lee"].Sessions != 1 {
		t.Errorf("Expected 1 session for Ann Lee, got %d", stats.Mechanics["Ann Lee"].Sessions)
	}

	if len(stats.Expenses) != 1 {
		t.Fatalf("Expected expenses of one owner, got %d", len(stats.Expenses))
	}
	je := stats.Expenses["John Smith"]
	if je.Count != 2 {
		t.Errorf("Expected 2 expenses, got %d", je.Count)
	}
	if !je.Total.Equal(decimal.RequireFromString("150.5")) {
		t.Errorf("Expected total 150.5, got %s", je.Total)
	}
	if !stats.ExpenseTotal.Equal(decimal.RequireFromString("150.5")) {
		t.Errorf("Expected overall total 150.5, got %s", stats.ExpenseTotal)
	}
}

func TestAnalyzeDay_Empty(t *testing.T) {
	stats := AnalyzeDay(nil, nil, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC))
	if stats.TotalSessions != 0 || len(stats.Mechanics) != 0 || len(stats.Expenses) != 0 {
		t.Errorf("Expected empty stats, got %+v", stats)
	}
	if !stats.ExpenseTotal.IsZero() {
		t.Errorf("Expected zero total, got %s", stats.ExpenseTotal)
	}
}

func TestSummary(t *testing.T) {
	stats := AnalyzeDay(
		[]storage.Row{
			sessionRow("John Smith", "2024-01-15 09:00:00", "Max", "OK"),
			sessionRow("Ann Lee", "2024-01-15 10:00:00", "", ""),
		},
		map[string][]storage.Row{"John Smith": {expenseRow("2024-01-15 12:00:00", "tires", "12.5")}},
		time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
	)

	summary := stats.Summary()

	want := []string{
		"Daily report for 2024-01-15",
		"Training sessions: 2",
		"- Ann Lee: 1 sessions\n",
		"- John Smith: 1 sessions, pilots: Max, classes: OK x1",
		"Expenses total: 12.50",
		"- John Smith: 1 entries, 12.50",
	}
	for _, w := range want {
		if !strings.Contains(summary, w) {
			t.Errorf("Summary should contain %q, got:\n%s", w, summary)
		}
	}
	if strings.Index(summary, "Ann Lee") > strings.Index(summary, "John Smith") {
		t.Errorf("Mechanics should be sorted by name:\n%s", summary)
	}
}

func TestToJSON(t *testing.T) {
	stats := AnalyzeDay(
		[]storage.Row{sessionRow("John Smith", "2024-01-15 09:00:00", "Max", "OK")},
		nil,
		time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
	)

	out, err := stats.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON failed: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal([]byte(out), &decoded); err != nil {
		t.Fatalf("ToJSON produced invalid JSON: %v", err)
	}
	if decoded["date"] != "2024-01-15" {
		t.Errorf("Expected date in JSON, got %v", decoded["date"])
	}
	if decoded["total_sessions"] != float64(1) {
		t.Errorf("Expected total_sessions 1, got %v", decoded["total_sessions"])
	}
}

func TestCollector_Daily(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	users := registry.New(store, "")
	if _, err := users.Register(ctx, 1, "John Smith", "john"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := users.Register(ctx, 2, "Ann Lee", ""); err != nil {
		t.Fatalf("register: %v", err)
	}

	day := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	sessions := records.SessionsTable("")
	for _, v := range []map[string]string{
		records.NewSessionValues(1, "John Smith", "Max", "OK", day.Add(10*time.Hour)),
		records.NewSessionValues(2, "Ann Lee", "Tom", "KZ", day.Add(11*time.Hour)),
		records.NewSessionValues(2, "Ann Lee", "Tom", "KZ", day.Add(-time.Hour)),
	} {
		if _, err := store.Append(ctx, sessions, v); err != nil {
			t.Fatalf("append session: %v", err)
		}
	}
	amount := decimal.RequireFromString("42")
	exp := records.Expense{Timestamp: day.Add(9 * time.Hour).Format(records.TimeLayout), Description: "fuel", Amount: amount}
	if _, err := store.Append(ctx, records.ExpensesTable("Ann Lee"), exp.Values()); err != nil {
		t.Fatalf("append expense: %v", err)
	}

	c := NewCollector(store, users, "")
	stats, err := c.Daily(ctx, day)
	if err != nil {
		t.Fatalf("Daily failed: %v", err)
	}
	if stats.TotalSessions != 2 {
		t.Errorf("Expected 2 sessions, got %d", stats.TotalSessions)
	}
	if got := stats.Expenses["Ann Lee"]; got.Count != 1 || !got.Total.Equal(amount) {
		t.Errorf("Unexpected expenses for Ann Lee: %+v", got)
	}
	if _, ok := stats.Expenses["John Smith"]; ok {
		t.Errorf("John Smith has no expenses on that day")
	}

	list, err := c.Sessions(ctx, day, "Ann Lee")
	if err != nil {
		t.Fatalf("Sessions failed: %v", err)
	}
	if len(list) != 1 || list[0].PilotName != "Tom" {
		t.Errorf("Expected Ann Lee's single session of the day, got %+v", list)
	}
}
