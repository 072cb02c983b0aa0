// Package records defines the rows written by the assistant: training
// sessions shared by all mechanics and per-owner expenses.
package records

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"pitlog/internal/storage"
)

// TimeLayout is used for every timestamp column.
const TimeLayout = "2006-01-02 15:04:05"

const (
	DefaultSessionsTable = "mechanics"
	DefaultUsersTable    = "users"
)

// Session columns, in table order.
const (
	ColUserID         = "user_id"
	ColMechanic       = "mechanic"
	ColTimestamp      = "timestamp"
	ColPilotName      = "pilot_name"
	ColKartClass      = "kart_class"
	ColSessionNumber  = "session_number"
	ColChassisNumber  = "chassis_number"
	ColSprocketRatio  = "sprocket_ratio"
	ColTirePressure   = "tire_pressure"
	ColTireCondition  = "tire_condition"
	ColLapTime        = "lap_time"
	ColChassisNumber2 = "chassis_number_2"
	ColSprocketRatio2 = "sprocket_ratio_2"
	ColTirePressure2  = "tire_pressure_2"
	ColTireCondition2 = "tire_condition_2"
	ColLapTime2       = "lap_time_2"
)

// Expense columns.
const (
	ColDescription = "description"
	ColAmount      = "amount"
)

var sessionColumns = []string{
	ColUserID, ColMechanic, ColTimestamp, ColPilotName, ColKartClass, ColSessionNumber,
	ColChassisNumber, ColSprocketRatio, ColTirePressure, ColTireCondition, ColLapTime,
	ColChassisNumber2, ColSprocketRatio2, ColTirePressure2, ColTireCondition2, ColLapTime2,
}

// EditableColumns lists the session columns a user may rewrite in the edit flow.
var EditableColumns = []string{
	ColPilotName, ColKartClass, ColSessionNumber,
	ColChassisNumber, ColSprocketRatio, ColTirePressure, ColTireCondition, ColLapTime,
	ColChassisNumber2, ColSprocketRatio2, ColTirePressure2, ColTireCondition2, ColLapTime2,
}

// KartClasses is the closed set of accepted classes. Matching is case-sensitive.
var KartClasses = []string{"OK", "OKJ", "KZ", "KZ2"}

func ValidClass(s string) bool {
	for _, c := range KartClasses {
		if c == s {
			return true
		}
	}
	return false
}

func IsEditable(column string) bool {
	for _, c := range EditableColumns {
		if c == column {
			return true
		}
	}
	return false
}

func SessionsTable(name string) storage.Table {
	if name == "" {
		name = DefaultSessionsTable
	}
	return storage.Table{Name: name, Columns: append([]string{}, sessionColumns...)}
}

// ExpensesTable returns the expense table of an owner, named after the
// owner's display name.
func ExpensesTable(owner string) storage.Table {
	return storage.Table{
		Name:    strings.TrimSpace(owner) + " expenses",
		Columns: []string{ColTimestamp, ColDescription, ColAmount},
	}
}

// Chassis is one chassis slot of a session.
type Chassis struct {
	Number        string `json:"chassis_number"`
	SprocketRatio string `json:"sprocket_ratio"`
	TirePressure  string `json:"tire_pressure"`
	TireCondition string `json:"tire_condition"`
	LapTime       string `json:"lap_time"`
}

type Session struct {
	ID            storage.RowID `json:"id"`
	UserID        int64         `json:"user_id"`
	Mechanic      string        `json:"mechanic"`
	Timestamp     string        `json:"timestamp"`
	PilotName     string        `json:"pilot_name"`
	KartClass     string        `json:"kart_class"`
	SessionNumber string        `json:"session_number"`
	First         Chassis       `json:"first"`
	Second        Chassis       `json:"second"`
}

// HasSecond reports whether the second chassis slot was used.
func (s Session) HasSecond() bool { return s.Second.Number != "" }

// Label is the one-line description used in listings.
func (s Session) Label() string {
	return fmt.Sprintf("%s - %s (%s)", s.Timestamp, orUnknown(s.PilotName), orUnknown(s.KartClass))
}

// NewSessionValues returns the values of a freshly allocated session row.
// Fields after the class are present and empty.
func NewSessionValues(userID int64, mechanic, pilot, class string, at time.Time) map[string]string {
	v := make(map[string]string, len(sessionColumns))
	for _, c := range sessionColumns {
		v[c] = ""
	}
	v[ColUserID] = strconv.FormatInt(userID, 10)
	v[ColMechanic] = mechanic
	v[ColTimestamp] = at.Format(TimeLayout)
	v[ColPilotName] = pilot
	v[ColKartClass] = class
	return v
}

func SessionFromRow(r storage.Row) Session {
	uid, _ := strconv.ParseInt(strings.TrimSpace(r.Get(ColUserID)), 10, 64)
	return Session{
		ID:            r.ID,
		UserID:        uid,
		Mechanic:      r.Get(ColMechanic),
		Timestamp:     r.Get(ColTimestamp),
		PilotName:     r.Get(ColPilotName),
		KartClass:     r.Get(ColKartClass),
		SessionNumber: r.Get(ColSessionNumber),
		First: Chassis{
			Number:        r.Get(ColChassisNumber),
			SprocketRatio: r.Get(ColSprocketRatio),
			TirePressure:  r.Get(ColTirePressure),
			TireCondition: r.Get(ColTireCondition),
			LapTime:       r.Get(ColLapTime),
		},
		Second: Chassis{
			Number:        r.Get(ColChassisNumber2),
			SprocketRatio: r.Get(ColSprocketRatio2),
			TirePressure:  r.Get(ColTirePressure2),
			TireCondition: r.Get(ColTireCondition2),
			LapTime:       r.Get(ColLapTime2),
		},
	}
}

// OwnedBy returns the rows of one mechanic, in table order.
func OwnedBy(rows []storage.Row, mechanic string) []storage.Row {
	var out []storage.Row
	for _, r := range rows {
		if r.Get(ColMechanic) == mechanic {
			out = append(out, r)
		}
	}
	return out
}

// OnDay returns the rows whose timestamp falls on the calendar day of day.
func OnDay(rows []storage.Row, day time.Time) []storage.Row {
	prefix := day.Format("2006-01-02")
	var out []storage.Row
	for _, r := range rows {
		if strings.HasPrefix(strings.TrimSpace(r.Get(ColTimestamp)), prefix) {
			out = append(out, r)
		}
	}
	return out
}

type Expense struct {
	Timestamp   string          `json:"timestamp"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
}

// amountPattern is a plain decimal; exponent notation is not accepted.
var amountPattern = regexp.MustCompile(`^-?\d{1,15}(\.\d{1,4})?$`)

// ParseAmount accepts a plain decimal number with at most 15 integer and 4
// fractional digits; a comma decimal separator is accepted as well.
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", "."))
	if s == "" {
		return decimal.Zero, fmt.Errorf("empty amount")
	}
	if !amountPattern.MatchString(s) {
		return decimal.Zero, fmt.Errorf("invalid amount %q", s)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return d, nil
}

func (e Expense) Values() map[string]string {
	return map[string]string{
		ColTimestamp:   e.Timestamp,
		ColDescription: e.Description,
		ColAmount:      e.Amount.String(),
	}
}

// ExpenseFromRow tolerates unparsable amounts, which read as zero.
func ExpenseFromRow(r storage.Row) Expense {
	amount, err := decimal.NewFromString(strings.TrimSpace(r.Get(ColAmount)))
	if err != nil {
		amount = decimal.Zero
	}
	return Expense{
		Timestamp:   r.Get(ColTimestamp),
		Description: r.Get(ColDescription),
		Amount:      amount,
	}
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "Unknown"
	}
	return s
}
