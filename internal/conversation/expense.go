package conversation

import (
	"fmt"

	"pitlog/internal/records"
	"pitlog/internal/session"
)

func (e *Engine) startExpense(t *turn) error {
	if err := e.requireUser(t); err != nil {
		return err
	}
	if err := e.transition(t.ctx, t.c, StateExpenseDescription); err != nil {
		return err
	}
	t.c.Begin(session.FlowExpense)
	e.prompt(t, "Please enter a description of the expense:", cancelKeyboard())
	return nil
}

func (e *Engine) onExpenseDescription(t *turn, text string) error {
	if err := e.transition(t.ctx, t.c, StateExpenseAmount); err != nil {
		return err
	}
	t.c.ExpenseDescription = text
	e.prompt(t, "Please enter the amount spent:", cancelKeyboard())
	return nil
}

// onExpenseAmount writes the whole expense in one append once the amount
// parses; nothing is stored before that.
func (e *Engine) onExpenseAmount(t *turn, text string) error {
	amount, err := records.ParseAmount(text)
	if err != nil {
		e.reply(t, "Please enter a valid number for the amount.", cancelKeyboard())
		return nil
	}
	exp := records.Expense{
		Timestamp:   e.now().Format(records.TimeLayout),
		Description: t.c.ExpenseDescription,
		Amount:      amount,
	}
	if _, err := e.store.Append(t.ctx, records.ExpensesTable(t.c.Owner), exp.Values()); err != nil {
		return storeErr("append expense", err)
	}
	if err := e.transition(t.ctx, t.c, StateAwaitingChoice); err != nil {
		return err
	}
	t.c.End()
	e.clearPrompt(t)
	e.reply(t, fmt.Sprintf("Expense recorded: %s - %s", exp.Description, exp.Amount.String()), nil)
	e.menu(t, "What would you like to do next?")
	return nil
}
