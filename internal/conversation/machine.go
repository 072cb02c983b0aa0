package conversation

import (
	"context"
	"errors"
	"fmt"

	"github.com/looplab/fsm"
	"go.uber.org/zap"

	"pitlog/internal/session"
)

// States of the conversation. A fresh context is in StateNone.
const (
	StateNone           = "NONE"
	StateFullName       = "FULLNAME"
	StateAwaitingChoice = "AWAITING_CHOICE"

	StateSessionChoice   = "SESSION_CHOICE"
	StatePilotConfirm    = "PILOT_CONFIRM"
	StatePilotName       = "PILOT_NAME"
	StateClassConfirm    = "CLASS_CONFIRM"
	StateClassName       = "CLASS_NAME"
	StateSessionNumber   = "SESSION_NUMBER"
	StateChassisConfirm  = "CHASSIS_CONFIRM"
	StateChassisNumber   = "CHASSIS_NUMBER"
	StateSprocketConfirm = "SPROCKET_CONFIRM"
	StateSprocketRatio   = "SPROCKET_RATIO"
	StateTirePressure    = "TIRE_PRESSURE"
	StateTireCondition   = "TIRE_CONDITION"
	StateLapTime         = "LAP_TIME"
	StateSecondChassis   = "SECOND_CHASSIS"
	StateChassisNumber2  = "CHASSIS_NUMBER_2"
	StateSprocketRatio2  = "SPROCKET_RATIO_2"
	StateTirePressure2   = "TIRE_PRESSURE_2"
	StateTireCondition2  = "TIRE_CONDITION_2"
	StateLapTime2        = "LAP_TIME_2"

	StateEditSessionChoice = "EDIT_SESSION_CHOICE"
	StateEditFieldChoice   = "EDIT_FIELD_CHOICE"
	StateEditFieldValue    = "EDIT_FIELD_VALUE"

	StateExpenseDescription = "EXPENSE_DESCRIPTION"
	StateExpenseAmount      = "EXPENSE_AMOUNT"
)

// ErrIllegalTransition is returned when a handler asks for a move the
// transition table does not declare.
var ErrIllegalTransition = errors.New("illegal state transition")

var allStates = []string{
	StateNone, StateFullName, StateAwaitingChoice,
	StateSessionChoice, StatePilotConfirm, StatePilotName, StateClassConfirm, StateClassName,
	StateSessionNumber, StateChassisConfirm, StateChassisNumber, StateSprocketConfirm,
	StateSprocketRatio, StateTirePressure, StateTireCondition, StateLapTime, StateSecondChassis,
	StateChassisNumber2, StateSprocketRatio2, StateTirePressure2, StateTireCondition2, StateLapTime2,
	StateEditSessionChoice, StateEditFieldChoice, StateEditFieldValue,
	StateExpenseDescription, StateExpenseAmount,
}

// sources lists, per destination, the states it may be entered from.
// Events are named after their destination.
var sources = map[string][]string{
	StateNone:           allStates,
	StateAwaitingChoice: allStates,
	StateFullName:       {StateNone},

	StateSessionChoice:   {StateAwaitingChoice, StateEditSessionChoice, StateEditFieldChoice, StateEditFieldValue},
	StatePilotConfirm:    {StateSessionChoice},
	StatePilotName:       {StateSessionChoice, StatePilotConfirm},
	StateClassConfirm:    {StatePilotConfirm, StatePilotName},
	StateClassName:       {StatePilotConfirm, StatePilotName, StateClassConfirm},
	StateSessionNumber:   {StateClassConfirm, StateClassName},
	StateChassisConfirm:  {StateSessionNumber},
	StateChassisNumber:   {StateSessionNumber, StateChassisConfirm},
	StateSprocketConfirm: {StateChassisConfirm, StateChassisNumber},
	StateSprocketRatio:   {StateChassisConfirm, StateChassisNumber, StateSprocketConfirm},
	StateTirePressure:    {StateSprocketConfirm, StateSprocketRatio},
	StateTireCondition:   {StateTirePressure},
	StateLapTime:         {StateTireCondition},
	StateSecondChassis:   {StateLapTime},
	StateChassisNumber2:  {StateSecondChassis},
	StateSprocketRatio2:  {StateChassisNumber2},
	StateTirePressure2:   {StateSprocketRatio2},
	StateTireCondition2:  {StateTirePressure2},
	StateLapTime2:        {StateTireCondition2},

	StateEditSessionChoice: {StateSessionChoice, StateEditFieldChoice, StateEditFieldValue},
	StateEditFieldChoice:   {StateEditSessionChoice},
	StateEditFieldValue:    {StateEditFieldChoice},

	StateExpenseDescription: {StateAwaitingChoice},
	StateExpenseAmount:      {StateExpenseDescription},
}

var transitions = buildEvents()

func buildEvents() fsm.Events {
	events := make(fsm.Events, 0, len(sources))
	for _, dst := range allStates {
		src, ok := sources[dst]
		if !ok {
			continue
		}
		events = append(events, fsm.EventDesc{Name: dst, Src: src, Dst: dst})
	}
	return events
}

// Allowed reports whether the table declares a move from src to dst.
// Staying in the same state is always allowed.
func Allowed(src, dst string) bool {
	if src == dst {
		return true
	}
	for _, s := range sources[dst] {
		if s == src {
			return true
		}
	}
	return false
}

// transition moves c to dst through the transition table. Re-prompts stay
// in place and never reach the table.
func (e *Engine) transition(ctx context.Context, c *session.Context, dst string) error {
	if c.State == dst {
		return nil
	}
	m := fsm.NewFSM(c.State, transitions, fsm.Callbacks{
		"enter_state": func(_ context.Context, ev *fsm.Event) {
			e.log.Debug("state transition",
				zap.Int64("user_id", c.UserID),
				zap.String("from", ev.Src),
				zap.String("to", ev.Dst),
				zap.Stringer("flow", c.Flow))
		},
	})
	if err := m.Event(ctx, dst); err != nil {
		return fmt.Errorf("%w: %s -> %s: %v", ErrIllegalTransition, c.State, dst, err)
	}
	c.State = m.Current()
	return nil
}
