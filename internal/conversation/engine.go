// Package conversation drives the guided data-entry dialogs: registration,
// training session capture with editing, and expense capture.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"pitlog/internal/records"
	"pitlog/internal/registry"
	"pitlog/internal/session"
	"pitlog/internal/storage"
)

var (
	// ErrNotRegistered is returned when a flow entry point is used by an
	// unknown user.
	ErrNotRegistered = errors.New("user is not registered")
	// ErrStoreUnavailable wraps every record store failure except a missing row.
	ErrStoreUnavailable = errors.New("record store unavailable")
)

// CancelToken aborts the active flow. Matching is case-insensitive.
const CancelToken = "Cancel"

// Message is one inbound text message.
type Message struct {
	ChatID    int64
	UserID    int64
	MessageID int
	Username  string
	Text      string
	// Command is the bot command without the leading slash, empty for plain text.
	Command string
}

// Gateway delivers prompts to a chat. A failed Send reports no message id.
type Gateway interface {
	Send(ctx context.Context, chatID int64, text string, kb *Keyboard) (int, error)
	Delete(ctx context.Context, chatID int64, messageID int) error
}

type Registry interface {
	Lookup(ctx context.Context, id int64) (*registry.User, error)
	Register(ctx context.Context, id int64, fullName, username string) (registry.User, error)
}

type Options struct {
	SessionsTable string
	Location      *time.Location
	Logger        *zap.Logger
}

type handlerFunc func(t *turn, text string) error

// Engine runs one turn at a time; callers must not invoke Handle concurrently.
type Engine struct {
	sessions      *session.Manager
	store         storage.Store
	users         Registry
	gw            Gateway
	sessionsTable storage.Table
	now           func() time.Time
	log           *zap.Logger
	handlers      map[string]handlerFunc
}

// turn carries the state of one inbound message through the handlers.
type turn struct {
	ctx context.Context
	msg Message
	c   *session.Context
}

func New(store storage.Store, users Registry, gw Gateway, opts Options) *Engine {
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	e := &Engine{
		sessions:      session.NewManager(),
		store:         store,
		users:         users,
		gw:            gw,
		sessionsTable: records.SessionsTable(opts.SessionsTable),
		now:           func() time.Time { return time.Now().In(loc) },
		log:           log,
	}
	e.handlers = map[string]handlerFunc{
		StateFullName:       e.onFullName,
		StateAwaitingChoice: e.onMenuChoice,

		StateSessionChoice:   e.onSessionChoice,
		StatePilotConfirm:    e.onPilotConfirm,
		StatePilotName:       e.onPilotName,
		StateClassConfirm:    e.onClassConfirm,
		StateClassName:       e.onClassName,
		StateSessionNumber:   e.onSessionNumber,
		StateChassisConfirm:  e.onChassisConfirm,
		StateChassisNumber:   e.onChassisNumber,
		StateSprocketConfirm: e.onSprocketConfirm,
		StateSprocketRatio:   e.onSprocketRatio,
		StateTirePressure:    e.onFieldStep,
		StateTireCondition:   e.onFieldStep,
		StateLapTime:         e.onFieldStep,
		StateSecondChassis:   e.onSecondChassis,
		StateChassisNumber2:  e.onFieldStep,
		StateSprocketRatio2:  e.onFieldStep,
		StateTirePressure2:   e.onFieldStep,
		StateTireCondition2:  e.onFieldStep,
		StateLapTime2:        e.onFieldStep,

		StateEditSessionChoice: e.onEditSessionChoice,
		StateEditFieldChoice:   e.onEditFieldChoice,
		StateEditFieldValue:    e.onEditFieldValue,

		StateExpenseDescription: e.onExpenseDescription,
		StateExpenseAmount:      e.onExpenseAmount,
	}
	return e
}

// Sessions exposes the per-user contexts.
func (e *Engine) Sessions() *session.Manager { return e.sessions }

// Handle processes one inbound message to completion. Every failure is
// resolved here: the user gets a notice and the process keeps running.
func (e *Engine) Handle(ctx context.Context, msg Message) {
	c := e.sessions.Get(msg.UserID)
	if c.State == "" {
		c.State = StateNone
	}
	c.ChatID = msg.ChatID
	snapshot := c.Clone()
	t := &turn{ctx: ctx, msg: msg, c: c}

	defer e.sessions.Release(msg.UserID)

	err := e.dispatch(t)
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, ErrNotRegistered):
		e.sessions.Reset(msg.UserID)
		e.reply(t, "You need to register first. Please use the /start command.", nil)
	case isMissing(err):
		e.log.Warn("in-progress record disappeared", zap.Int64("user_id", msg.UserID), zap.Error(err))
		e.abandon(t)
	default:
		e.log.Error("turn failed",
			zap.Int64("user_id", msg.UserID),
			zap.String("state", snapshot.State),
			zap.Error(err))
		restored := snapshot
		restored.LastPromptID = c.LastPromptID
		e.sessions.Put(restored)
		t.c = restored
		e.reply(t, "Something went wrong while saving your data. Please try again later.", nil)
	}
}

// abandon ends the flow whose row is gone and returns the user to the menu.
func (e *Engine) abandon(t *turn) {
	if err := e.transition(t.ctx, t.c, StateAwaitingChoice); err != nil {
		e.log.Error("forcing main menu", zap.String("state", t.c.State), zap.Error(err))
		t.c.State = StateAwaitingChoice
	}
	t.c.End()
	e.menu(t, "This training session no longer exists in the table. Returning to the main menu.")
}

func (e *Engine) dispatch(t *turn) error {
	switch t.msg.Command {
	case "start":
		return e.start(t)
	case "cancel":
		return e.cancel(t)
	case "help":
		return e.help(t)
	case "":
	default:
		e.reply(t, "Unknown command. Use /start, /cancel or /help.", nil)
		return nil
	}

	text := strings.TrimSpace(t.msg.Text)
	if t.c.State == StateNone {
		e.reply(t, "Please use /start to begin.", nil)
		return nil
	}
	if text == "" {
		e.reply(t, "Please answer with a text message.", nil)
		return nil
	}
	if strings.EqualFold(text, CancelToken) && t.c.State != StateFullName {
		return e.cancel(t)
	}
	h, ok := e.handlers[t.c.State]
	if !ok {
		return fmt.Errorf("no handler for state %s", t.c.State)
	}
	return h(t, text)
}

// storeErr classifies a record store failure. A missing row keeps
// storage.ErrNotFound in its chain; anything else becomes ErrStoreUnavailable.
func storeErr(op string, err error) error {
	if isMissing(err) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, op, err)
}

func isMissing(err error) bool { return errors.Is(err, storage.ErrNotFound) }

// requireUser resolves the owner of the context at a flow entry point.
func (e *Engine) requireUser(t *turn) error {
	u, err := e.users.Lookup(t.ctx, t.msg.UserID)
	if err != nil {
		return storeErr("lookup user", err)
	}
	if u == nil {
		return ErrNotRegistered
	}
	t.c.Owner = u.FullName
	return nil
}

func (e *Engine) send(t *turn, text string, kb *Keyboard) int {
	id, err := e.gw.Send(t.ctx, t.c.ChatID, text, kb)
	if err != nil {
		e.log.Warn("prompt not delivered", zap.Int64("chat_id", t.c.ChatID), zap.Error(err))
		return 0
	}
	return id
}

// reply sends an untracked message; the context is not touched.
func (e *Engine) reply(t *turn, text string, kb *Keyboard) {
	e.send(t, text, kb)
}

// prompt replaces the tracked prompt with a new one.
func (e *Engine) prompt(t *turn, text string, kb *Keyboard) {
	e.clearPrompt(t)
	t.c.LastPromptID = e.send(t, text, kb)
}

// menu removes the tracked prompt and shows the main menu.
func (e *Engine) menu(t *turn, text string) {
	e.clearPrompt(t)
	e.reply(t, text, mainMenuKeyboard())
}

func (e *Engine) clearPrompt(t *turn) {
	if t.c.LastPromptID == 0 {
		return
	}
	e.deleteMessage(t, t.c.LastPromptID)
	t.c.LastPromptID = 0
}

// dropInput removes an accepted field answer from the chat.
func (e *Engine) dropInput(t *turn) {
	if t.msg.MessageID != 0 {
		e.deleteMessage(t, t.msg.MessageID)
	}
}

func (e *Engine) deleteMessage(t *turn, id int) {
	if err := e.gw.Delete(t.ctx, t.c.ChatID, id); err != nil {
		e.log.Debug("message not deleted", zap.Int("message_id", id), zap.Error(err))
	}
}
