// Package analytics aggregates the records of one day for the daily digest.
package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"pitlog/internal/records"
	"pitlog/internal/registry"
	"pitlog/internal/storage"
)

// DailyStats holds the activity of one calendar day.
type DailyStats struct {
	Date          string                    `json:"date"`
	TotalSessions int                       `json:"total_sessions"`
	Mechanics     map[string]MechanicStats  `json:"mechanics"`
	Expenses      map[string]ExpenseSummary `json:"expenses"`
	ExpenseTotal  decimal.Decimal           `json:"expense_total"`
}

type MechanicStats struct {
	Mechanic string         `json:"mechanic"`
	Sessions int            `json:"sessions"`
	Pilots   []string       `json:"pilots"`
	Classes  map[string]int `json:"classes"`
}

type ExpenseSummary struct {
	Owner string          `json:"owner"`
	Count int             `json:"count"`
	Total decimal.Decimal `json:"total"`
}

// AnalyzeDay counts the sessions and expenses whose timestamp falls on day.
// expenses is keyed by owner display name.
func AnalyzeDay(sessions []storage.Row, expenses map[string][]storage.Row, day time.Time) *DailyStats {
	stats := &DailyStats{
		Date:         day.Format("2006-01-02"),
		Mechanics:    make(map[string]MechanicStats),
		Expenses:     make(map[string]ExpenseSummary),
		ExpenseTotal: decimal.Zero,
	}

	for _, r := range records.OnDay(sessions, day) {
		s := records.SessionFromRow(r)
		ms, ok := stats.Mechanics[s.Mechanic]
		if !ok {
			ms = MechanicStats{Mechanic: s.Mechanic, Classes: make(map[string]int)}
		}
		ms.Sessions++
		if s.PilotName != "" && !contains(ms.Pilots, s.PilotName) {
			ms.Pilots = append(ms.Pilots, s.PilotName)
		}
		if s.KartClass != "" {
			ms.Classes[s.KartClass]++
		}
		stats.Mechanics[s.Mechanic] = ms
		stats.TotalSessions++
	}

	for owner, rows := range expenses {
		for _, r := range records.OnDay(rows, day) {
			e := records.ExpenseFromRow(r)
			es, ok := stats.Expenses[owner]
			if !ok {
				es = ExpenseSummary{Owner: owner, Total: decimal.Zero}
			}
			es.Count++
			es.Total = es.Total.Add(e.Amount)
			stats.Expenses[owner] = es
			stats.ExpenseTotal = stats.ExpenseTotal.Add(e.Amount)
		}
	}
	return stats
}

// Summary renders the stats as a plain-text report.
func (ds *DailyStats) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Daily report for %s\n\n", ds.Date)
	fmt.Fprintf(&b, "Training sessions: %d\n", ds.TotalSessions)
	for _, name := range sortedKeys(ds.Mechanics) {
		ms := ds.Mechanics[name]
		fmt.Fprintf(&b, "- %s: %d sessions", name, ms.Sessions)
		if len(ms.Pilots) > 0 {
			fmt.Fprintf(&b, ", pilots: %s", strings.Join(ms.Pilots, ", "))
		}
		if len(ms.Classes) > 0 {
			parts := make([]string, 0, len(ms.Classes))
			for _, class := range sortedKeys(ms.Classes) {
				parts = append(parts, fmt.Sprintf("%s x%d", class, ms.Classes[class]))
			}
			fmt.Fprintf(&b, ", classes: %s", strings.Join(parts, ", "))
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "\nExpenses total: %s\n", ds.ExpenseTotal.StringFixed(2))
	for _, owner := range sortedKeys(ds.Expenses) {
		es := ds.Expenses[owner]
		fmt.Fprintf(&b, "- %s: %d entries, %s\n", owner, es.Count, es.Total.StringFixed(2))
	}
	return strings.TrimRight(b.String(), "\n")
}

func (ds *DailyStats) ToJSON() (string, error) {
	data, err := json.MarshalIndent(ds, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

type UserLister interface {
	List(ctx context.Context) ([]registry.User, error)
}

// Collector reads the day's rows from the record store.
type Collector struct {
	store    storage.Store
	users    UserLister
	sessions storage.Table
}

func NewCollector(store storage.Store, users UserLister, sessionsTable string) *Collector {
	return &Collector{store: store, users: users, sessions: records.SessionsTable(sessionsTable)}
}

// Sessions returns the sessions recorded on day, optionally limited to one mechanic.
func (c *Collector) Sessions(ctx context.Context, day time.Time, mechanic string) ([]records.Session, error) {
	rows, err := c.store.LoadAll(ctx, c.sessions)
	if err != nil {
		return nil, fmt.Errorf("load sessions: %w", err)
	}
	rows = records.OnDay(rows, day)
	if mechanic != "" {
		rows = records.OwnedBy(rows, mechanic)
	}
	out := make([]records.Session, 0, len(rows))
	for _, r := range rows {
		out = append(out, records.SessionFromRow(r))
	}
	return out, nil
}

func (c *Collector) Daily(ctx context.Context, day time.Time) (*DailyStats, error) {
	sessions, err := c.store.LoadAll(ctx, c.sessions)
	if err != nil {
		return nil, fmt.Errorf("load sessions: %w", err)
	}
	users, err := c.users.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	expenses := make(map[string][]storage.Row, len(users))
	for _, u := range users {
		rows, err := c.store.LoadAll(ctx, records.ExpensesTable(u.FullName))
		if err != nil {
			return nil, fmt.Errorf("load expenses of %s: %w", u.FullName, err)
		}
		expenses[u.FullName] = append(expenses[u.FullName], rows...)
	}
	return AnalyzeDay(sessions, expenses, day), nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
