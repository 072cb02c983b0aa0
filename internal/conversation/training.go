package conversation

import (
	"fmt"
	"strings"

	"pitlog/internal/records"
	"pitlog/internal/session"
	"pitlog/internal/storage"
)

// step describes a manual-entry state: the column it fills and its prompt.
type step struct {
	column string
	prompt string
	next   string
}

var steps = map[string]step{
	StatePilotName:      {prompt: "Please enter the pilot's full name:"},
	StateClassName:      {prompt: "Please select the class:"},
	StateSessionNumber:  {column: records.ColSessionNumber, prompt: "Enter the session number:"},
	StateChassisNumber:  {column: records.ColChassisNumber, prompt: "Enter the chassis number:"},
	StateSprocketRatio:  {column: records.ColSprocketRatio, prompt: "Enter the sprocket ratio:"},
	StateTirePressure:   {column: records.ColTirePressure, prompt: "Enter the tire pressure:", next: StateTireCondition},
	StateTireCondition:  {column: records.ColTireCondition, prompt: "Enter the tire condition (e.g., new, used, worn):", next: StateLapTime},
	StateLapTime:        {column: records.ColLapTime, prompt: "Enter the lap time:", next: StateSecondChassis},
	StateChassisNumber2: {column: records.ColChassisNumber2, prompt: "Enter the second chassis number:", next: StateSprocketRatio2},
	StateSprocketRatio2: {column: records.ColSprocketRatio2, prompt: "Enter the sprocket ratio for the second chassis:", next: StateTirePressure2},
	StateTirePressure2:  {column: records.ColTirePressure2, prompt: "Enter the tire pressure for the second chassis:", next: StateTireCondition2},
	StateTireCondition2: {column: records.ColTireCondition2, prompt: "Enter the tire condition for the second chassis:", next: StateLapTime2},
	StateLapTime2:       {column: records.ColLapTime2, prompt: "Enter the lap time for the second chassis:"},
}

func (e *Engine) startTraining(t *turn) error {
	if err := e.requireUser(t); err != nil {
		return err
	}
	if err := e.transition(t.ctx, t.c, StateSessionChoice); err != nil {
		return err
	}
	t.c.Begin(session.FlowTraining)
	e.askSessionChoice(t)
	return nil
}

func (e *Engine) askSessionChoice(t *turn) {
	e.prompt(t, "Would you like to start a new session or edit an existing one?", sessionChoiceKeyboard())
}

func (e *Engine) onSessionChoice(t *turn, text string) error {
	switch text {
	case choiceNew:
		return e.newSession(t)
	case choiceEdit:
		return e.listToday(t)
	default:
		e.reply(t, "Invalid choice. Please select 'New' or 'Edit'.", sessionChoiceKeyboard())
		return nil
	}
}

// ask enters a manual-entry state and shows its prompt.
func (e *Engine) ask(t *turn, state string) error {
	if err := e.transition(t.ctx, t.c, state); err != nil {
		return err
	}
	t.c.Suggestion = ""
	kb := cancelKeyboard()
	switch state {
	case StateClassName:
		kb = classKeyboard()
	case StateSecondChassis:
		e.prompt(t, "Was a second chassis used in this session?", yesNoKeyboard())
		return nil
	}
	e.prompt(t, steps[state].prompt, kb)
	return nil
}

// offer enters a confirm state proposing value for reuse.
func (e *Engine) offer(t *turn, state, question, value string) error {
	if err := e.transition(t.ctx, t.c, state); err != nil {
		return err
	}
	t.c.Suggestion = value
	e.prompt(t, fmt.Sprintf(question, value), yesNoKeyboard())
	return nil
}

// yesNo maps a confirm answer; ok is false for anything else.
func yesNo(text string) (yes bool, ok bool) {
	switch strings.ToLower(text) {
	case "yes":
		return true, true
	case "no":
		return false, true
	}
	return false, false
}

func (e *Engine) loadSessions(t *turn) ([]storage.Row, error) {
	rows, err := e.store.LoadAll(t.ctx, e.sessionsTable)
	if err != nil {
		return nil, storeErr("load sessions", err)
	}
	return rows, nil
}

// lastOwned returns the owner's most recent row.
func (e *Engine) lastOwned(t *turn) (storage.Row, bool, error) {
	rows, err := e.loadSessions(t)
	if err != nil {
		return storage.Row{}, false, err
	}
	owned := records.OwnedBy(rows, t.c.Owner)
	if len(owned) == 0 {
		return storage.Row{}, false, nil
	}
	return owned[len(owned)-1], true, nil
}

// previousOwned returns the owner's row right before the in-progress one.
func (e *Engine) previousOwned(t *turn) (storage.Row, bool, error) {
	rows, err := e.loadSessions(t)
	if err != nil {
		return storage.Row{}, false, err
	}
	owned := records.OwnedBy(rows, t.c.Owner)
	for i, r := range owned {
		if r.ID == t.c.RowID {
			if i == 0 {
				return storage.Row{}, false, nil
			}
			return owned[i-1], true, nil
		}
	}
	return storage.Row{}, false, fmt.Errorf("find in-progress row %s: %w", t.c.RowID, storage.ErrNotFound)
}

func (e *Engine) newSession(t *turn) error {
	last, ok, err := e.lastOwned(t)
	if err != nil {
		return err
	}
	if pilot := strings.TrimSpace(last.Get(records.ColPilotName)); ok && pilot != "" {
		return e.offer(t, StatePilotConfirm, "Is the pilot still %s?", pilot)
	}
	return e.ask(t, StatePilotName)
}

func (e *Engine) onPilotConfirm(t *turn, text string) error {
	yes, ok := yesNo(text)
	switch {
	case !ok:
		e.reply(t, "Please answer Yes or No.", yesNoKeyboard())
		return nil
	case yes:
		t.c.Pilot = t.c.Suggestion
		return e.askClass(t)
	default:
		return e.ask(t, StatePilotName)
	}
}

func (e *Engine) onPilotName(t *turn, text string) error {
	t.c.Pilot = text
	e.dropInput(t)
	return e.askClass(t)
}

func (e *Engine) askClass(t *turn) error {
	last, ok, err := e.lastOwned(t)
	if err != nil {
		return err
	}
	if class := strings.TrimSpace(last.Get(records.ColKartClass)); ok && records.ValidClass(class) {
		return e.offer(t, StateClassConfirm, "Is the class still %s?", class)
	}
	return e.ask(t, StateClassName)
}

func (e *Engine) onClassConfirm(t *turn, text string) error {
	yes, ok := yesNo(text)
	switch {
	case !ok:
		e.reply(t, "Please answer Yes or No.", yesNoKeyboard())
		return nil
	case yes:
		t.c.Class = t.c.Suggestion
		return e.createSession(t)
	default:
		return e.ask(t, StateClassName)
	}
}

func (e *Engine) onClassName(t *turn, text string) error {
	if !records.ValidClass(text) {
		e.reply(t, "Invalid class. Please select a valid class:", classKeyboard())
		return nil
	}
	t.c.Class = text
	e.dropInput(t)
	return e.createSession(t)
}

// createSession allocates the session row once pilot and class are known.
func (e *Engine) createSession(t *turn) error {
	values := records.NewSessionValues(t.msg.UserID, t.c.Owner, t.c.Pilot, t.c.Class, e.now())
	id, err := e.store.Append(t.ctx, e.sessionsTable, values)
	if err != nil {
		return storeErr("append session", err)
	}
	t.c.RowID = id
	return e.ask(t, StateSessionNumber)
}

// writeField stores value in the in-progress row.
func (e *Engine) writeField(t *turn, column, value string) error {
	if err := e.store.UpdateCell(t.ctx, e.sessionsTable, t.c.RowID, column, value); err != nil {
		return storeErr("update "+column, err)
	}
	return nil
}

func (e *Engine) onSessionNumber(t *turn, text string) error {
	if err := e.writeField(t, records.ColSessionNumber, text); err != nil {
		return err
	}
	e.dropInput(t)
	prev, ok, err := e.previousOwned(t)
	if err != nil {
		return err
	}
	if chassis := strings.TrimSpace(prev.Get(records.ColChassisNumber)); ok && chassis != "" {
		return e.offer(t, StateChassisConfirm, "Is the chassis number still %s?", chassis)
	}
	return e.ask(t, StateChassisNumber)
}

func (e *Engine) onChassisConfirm(t *turn, text string) error {
	yes, ok := yesNo(text)
	switch {
	case !ok:
		e.reply(t, "Please answer Yes or No.", yesNoKeyboard())
		return nil
	case yes:
		if err := e.writeField(t, records.ColChassisNumber, t.c.Suggestion); err != nil {
			return err
		}
		return e.askSprocket(t)
	default:
		return e.ask(t, StateChassisNumber)
	}
}

func (e *Engine) onChassisNumber(t *turn, text string) error {
	if err := e.writeField(t, records.ColChassisNumber, text); err != nil {
		return err
	}
	e.dropInput(t)
	return e.askSprocket(t)
}

func (e *Engine) askSprocket(t *turn) error {
	prev, ok, err := e.previousOwned(t)
	if err != nil {
		return err
	}
	if sprocket := strings.TrimSpace(prev.Get(records.ColSprocketRatio)); ok && sprocket != "" {
		return e.offer(t, StateSprocketConfirm, "Is the sprocket ratio still %s?", sprocket)
	}
	return e.ask(t, StateSprocketRatio)
}

func (e *Engine) onSprocketConfirm(t *turn, text string) error {
	yes, ok := yesNo(text)
	switch {
	case !ok:
		e.reply(t, "Please answer Yes or No.", yesNoKeyboard())
		return nil
	case yes:
		if err := e.writeField(t, records.ColSprocketRatio, t.c.Suggestion); err != nil {
			return err
		}
		return e.ask(t, StateTirePressure)
	default:
		return e.ask(t, StateSprocketRatio)
	}
}

func (e *Engine) onSprocketRatio(t *turn, text string) error {
	if err := e.writeField(t, records.ColSprocketRatio, text); err != nil {
		return err
	}
	e.dropInput(t)
	return e.ask(t, StateTirePressure)
}

// onFieldStep handles the plain free-text states that write one column and
// move to a fixed next state.
func (e *Engine) onFieldStep(t *turn, text string) error {
	s := steps[t.c.State]
	if err := e.writeField(t, s.column, text); err != nil {
		return err
	}
	e.dropInput(t)
	if s.next == "" {
		return e.finish(t)
	}
	return e.ask(t, s.next)
}

func (e *Engine) onSecondChassis(t *turn, text string) error {
	yes, ok := yesNo(text)
	switch {
	case !ok:
		e.reply(t, "Please answer Yes or No.", yesNoKeyboard())
		return nil
	case yes:
		return e.ask(t, StateChassisNumber2)
	default:
		return e.finish(t)
	}
}

// finish reports the stored row and closes the flow.
func (e *Engine) finish(t *turn) error {
	rows, err := e.loadSessions(t)
	if err != nil {
		return err
	}
	var (
		row   storage.Row
		found bool
	)
	for _, r := range rows {
		if r.ID == t.c.RowID {
			row, found = r, true
			break
		}
	}
	if !found {
		return fmt.Errorf("finish session %s: %w", t.c.RowID, storage.ErrNotFound)
	}
	if err := e.transition(t.ctx, t.c, StateAwaitingChoice); err != nil {
		return err
	}
	t.c.End()
	e.clearPrompt(t)
	e.reply(t, Summary(records.SessionFromRow(row)), nil)
	e.menu(t, "What would you like to do next?")
	return nil
}

// Summary renders a stored session; the second chassis is included only
// when it was recorded.
func Summary(s records.Session) string {
	var b strings.Builder
	b.WriteString("Training session data recorded:\n")
	fmt.Fprintf(&b, "Pilot: %s\n", s.PilotName)
	fmt.Fprintf(&b, "Class: %s\n", s.KartClass)
	fmt.Fprintf(&b, "Session: %s\n", s.SessionNumber)
	writeChassis(&b, 1, s.First)
	if s.HasSecond() {
		b.WriteString("\n")
		writeChassis(&b, 2, s.Second)
	}
	return strings.TrimRight(b.String(), "\n")
}

func writeChassis(b *strings.Builder, n int, c records.Chassis) {
	fmt.Fprintf(b, "Chassis %d: %s\n", n, c.Number)
	fmt.Fprintf(b, "Tire Pressure %d: %s\n", n, c.TirePressure)
	fmt.Fprintf(b, "Tire Condition %d: %s\n", n, c.TireCondition)
	fmt.Fprintf(b, "Sprocket Ratio %d: %s\n", n, c.SprocketRatio)
	fmt.Fprintf(b, "Lap Time %d: %s\n", n, c.LapTime)
}
