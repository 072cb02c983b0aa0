package conversation

import (
	"fmt"
	"strings"

	"pitlog/internal/session"
)

const helpText = `Pitlog records kart training sessions and expenses.

Training Session: record a new session (pilot, class, chassis, sprocket, tires, lap time) or edit one recorded today.
Expenses: record what you spent and how much.

Send Cancel or /cancel at any step to abort. Use /start to come back to the menu.`

// start registers unknown users and greets known ones. Any flow in progress
// is abandoned first.
func (e *Engine) start(t *turn) error {
	if err := e.dropRow(t); err != nil {
		return err
	}
	u, err := e.users.Lookup(t.ctx, t.msg.UserID)
	if err != nil {
		return storeErr("lookup user", err)
	}
	if u == nil {
		if err := e.transition(t.ctx, t.c, StateNone); err != nil {
			return err
		}
		if err := e.transition(t.ctx, t.c, StateFullName); err != nil {
			return err
		}
		t.c.Begin(session.FlowRegistration)
		e.prompt(t, "Welcome! Please enter your full name (first name and last name) to register.", nil)
		return nil
	}
	t.c.Owner = u.FullName
	if err := e.transition(t.ctx, t.c, StateAwaitingChoice); err != nil {
		return err
	}
	t.c.End()
	e.menu(t, fmt.Sprintf("Welcome back, %s! What would you like to do?", u.FullName))
	return nil
}

func (e *Engine) onFullName(t *turn, text string) error {
	name := strings.Join(strings.Fields(text), " ")
	if len(strings.Fields(name)) < 2 {
		e.reply(t, "Please enter both your first name and last name separated by a space.", nil)
		return nil
	}
	u, err := e.users.Lookup(t.ctx, t.msg.UserID)
	if err != nil {
		return storeErr("lookup user", err)
	}
	if u == nil {
		registered, err := e.users.Register(t.ctx, t.msg.UserID, name, t.msg.Username)
		if err != nil {
			return storeErr("register user", err)
		}
		u = &registered
	}
	t.c.Owner = u.FullName
	if err := e.transition(t.ctx, t.c, StateAwaitingChoice); err != nil {
		return err
	}
	t.c.End()
	e.clearPrompt(t)
	e.reply(t, fmt.Sprintf("Thank you for registering, %s!", u.FullName), nil)
	e.menu(t, "What would you like to do?")
	return nil
}

func (e *Engine) onMenuChoice(t *turn, text string) error {
	switch text {
	case choiceTraining:
		return e.startTraining(t)
	case choiceExpenses:
		return e.startExpense(t)
	case choiceHelp:
		e.reply(t, helpText, nil)
		e.menu(t, "What would you like to do next?")
		return nil
	default:
		e.menu(t, "Invalid choice. Please select an option from the menu.")
		return nil
	}
}

func (e *Engine) help(t *turn) error {
	e.reply(t, helpText, nil)
	if t.c.State == StateAwaitingChoice {
		e.menu(t, "What would you like to do next?")
	}
	return nil
}

// cancel abandons the active flow. A session row allocated by the flow is
// deleted before the user is returned to the menu.
func (e *Engine) cancel(t *turn) error {
	switch t.c.State {
	case StateNone:
		e.reply(t, "Nothing to cancel. Please use /start to begin.", nil)
		return nil
	case StateFullName:
		if err := e.transition(t.ctx, t.c, StateNone); err != nil {
			return err
		}
		t.c.End()
		e.clearPrompt(t)
		e.reply(t, "Registration cancelled. Use /start when you are ready.", nil)
		return nil
	case StateAwaitingChoice:
		e.menu(t, "Nothing to cancel. What would you like to do?")
		return nil
	}

	notice := "Training session cancelled."
	switch {
	case t.c.Flow == session.FlowExpense:
		notice = "Expense tracking cancelled."
	case isEditState(t.c.State):
		notice = "Editing cancelled."
	}
	if err := e.dropRow(t); err != nil {
		return err
	}
	if err := e.transition(t.ctx, t.c, StateAwaitingChoice); err != nil {
		return err
	}
	t.c.End()
	e.menu(t, notice)
	return nil
}

// dropRow deletes the session row of the current flow, if any. A row that is
// already gone counts as deleted.
func (e *Engine) dropRow(t *turn) error {
	if t.c.RowID == "" {
		return nil
	}
	err := e.store.DeleteRow(t.ctx, e.sessionsTable, t.c.RowID)
	if err != nil && !isMissing(err) {
		return storeErr("delete session row", err)
	}
	t.c.RowID = ""
	return nil
}

func isEditState(state string) bool {
	switch state {
	case StateEditSessionChoice, StateEditFieldChoice, StateEditFieldValue:
		return true
	}
	return false
}
