package conversation

import (
	"fmt"
	"strconv"
	"strings"

	"pitlog/internal/records"
	"pitlog/internal/session"
	"pitlog/internal/storage"
)

// listToday offers every session recorded today, by any mechanic. With
// nothing to edit the user is sent back to the New/Edit choice.
func (e *Engine) listToday(t *turn) error {
	rows, err := e.loadSessions(t)
	if err != nil {
		return err
	}
	today := records.OnDay(rows, e.now())
	if len(today) == 0 {
		if err := e.transition(t.ctx, t.c, StateSessionChoice); err != nil {
			return err
		}
		t.c.EditCandidates = nil
		t.c.EditIndex = -1
		t.c.EditField = ""
		e.reply(t, "No sessions recorded today.", nil)
		e.askSessionChoice(t)
		return nil
	}
	if err := e.transition(t.ctx, t.c, StateEditSessionChoice); err != nil {
		return err
	}
	candidates := make([]session.EditCandidate, 0, len(today))
	numbers := make([]string, 0, len(today))
	var b strings.Builder
	b.WriteString("Select a session to edit:\n")
	for i, r := range today {
		label := records.SessionFromRow(r).Label()
		candidates = append(candidates, session.EditCandidate{ID: r.ID, Label: label})
		numbers = append(numbers, strconv.Itoa(i+1))
		fmt.Fprintf(&b, "\n%d. %s", i+1, label)
	}
	t.c.EditCandidates = candidates
	t.c.EditIndex = -1
	t.c.EditField = ""
	e.prompt(t, b.String(), gridKeyboard(numbers, 4))
	return nil
}

func (e *Engine) onEditSessionChoice(t *turn, text string) error {
	n, err := strconv.Atoi(text)
	if err != nil || n < 1 || n > len(t.c.EditCandidates) {
		e.reply(t, "Invalid choice. Please select a valid session number.", nil)
		return nil
	}
	row, ok, err := e.editTarget(t, t.c.EditCandidates[n-1].ID)
	if err != nil || !ok {
		return err
	}
	if err := e.transition(t.ctx, t.c, StateEditFieldChoice); err != nil {
		return err
	}
	t.c.EditIndex = n - 1
	var b strings.Builder
	b.WriteString("Current session details:\n\n")
	for _, col := range records.EditableColumns {
		fmt.Fprintf(&b, "%s: %s\n", col, row.Get(col))
	}
	b.WriteString("\nWhich field would you like to edit?")
	e.prompt(t, b.String(), gridKeyboard(records.EditableColumns, 2))
	return nil
}

func (e *Engine) onEditFieldChoice(t *turn, text string) error {
	if !records.IsEditable(text) {
		e.reply(t, "Unknown field. Please choose one of the listed fields.", nil)
		return nil
	}
	row, ok, err := e.editTarget(t, t.c.EditCandidates[t.c.EditIndex].ID)
	if err != nil || !ok {
		return err
	}
	if err := e.transition(t.ctx, t.c, StateEditFieldValue); err != nil {
		return err
	}
	t.c.EditField = text
	kb := cancelKeyboard()
	if text == records.ColKartClass {
		kb = classKeyboard()
	}
	e.prompt(t, fmt.Sprintf("Current value of %s: %s\nEnter new value:", text, row.Get(text)), kb)
	return nil
}

func (e *Engine) onEditFieldValue(t *turn, text string) error {
	field := t.c.EditField
	if field == records.ColKartClass && !records.ValidClass(text) {
		e.reply(t, "Invalid class. Please select a valid class:", classKeyboard())
		return nil
	}
	id := t.c.EditCandidates[t.c.EditIndex].ID
	err := e.store.UpdateCell(t.ctx, e.sessionsTable, id, field, text)
	switch {
	case isMissing(err):
		e.reply(t, "That session no longer exists.", nil)
		return e.listToday(t)
	case err != nil:
		return storeErr("update "+field, err)
	}
	e.reply(t, fmt.Sprintf("Updated %s to: %s", field, text), nil)
	return e.listToday(t)
}

// editTarget loads a listed row. A row removed since the listing is
// reported and the listing is shown again; ok is false in that case.
func (e *Engine) editTarget(t *turn, id storage.RowID) (storage.Row, bool, error) {
	rows, err := e.loadSessions(t)
	if err != nil {
		return storage.Row{}, false, err
	}
	for _, r := range rows {
		if r.ID == id {
			return r, true, nil
		}
	}
	e.reply(t, "That session no longer exists.", nil)
	return storage.Row{}, false, e.listToday(t)
}
