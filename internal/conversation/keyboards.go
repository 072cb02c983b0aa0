package conversation

import "pitlog/internal/records"

// Keyboard is a set of quick-reply choices shown under a prompt. Persistent
// keyboards stay open after a choice; the others hide after one use.
type Keyboard struct {
	Rows       [][]string
	Persistent bool
}

const (
	choiceTraining = "Training Session"
	choiceExpenses = "Expenses"
	choiceHelp     = "Help"
	choiceNew      = "New"
	choiceEdit     = "Edit"
	answerYes      = "Yes"
	answerNo       = "No"
)

func mainMenuKeyboard() *Keyboard {
	return &Keyboard{Rows: [][]string{{choiceTraining, choiceExpenses}, {choiceHelp}}, Persistent: true}
}

func cancelKeyboard() *Keyboard {
	return &Keyboard{Rows: [][]string{{CancelToken}}}
}

func yesNoKeyboard() *Keyboard {
	return &Keyboard{Rows: [][]string{{answerYes, answerNo}, {CancelToken}}}
}

func classKeyboard() *Keyboard {
	return gridKeyboard(records.KartClasses, 2)
}

func sessionChoiceKeyboard() *Keyboard {
	return &Keyboard{Rows: [][]string{{choiceNew, choiceEdit}, {CancelToken}}}
}

// gridKeyboard lays out labels perRow per line with a Cancel line last.
func gridKeyboard(labels []string, perRow int) *Keyboard {
	kb := &Keyboard{}
	for i := 0; i < len(labels); i += perRow {
		end := i + perRow
		if end > len(labels) {
			end = len(labels)
		}
		kb.Rows = append(kb.Rows, append([]string(nil), labels[i:end]...))
	}
	kb.Rows = append(kb.Rows, []string{CancelToken})
	return kb
}
