package conversation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"pitlog/internal/records"
	"pitlog/internal/registry"
	"pitlog/internal/session"
	"pitlog/internal/storage"
)

const (
	testUser = int64(1)
	testChat = int64(100)
)

var (
	fixedNow     = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	errStoreDown = errors.New("disk on fire")
)

type sentMessage struct {
	id   int
	text string
	kb   *Keyboard
}

type fakeGateway struct {
	nextID   int
	sent     []sentMessage
	deleted  []int
	failSend bool
}

func (g *fakeGateway) Send(_ context.Context, _ int64, text string, kb *Keyboard) (int, error) {
	if g.failSend {
		return 0, errors.New("network down")
	}
	g.nextID++
	g.sent = append(g.sent, sentMessage{id: g.nextID, text: text, kb: kb})
	return g.nextID, nil
}

func (g *fakeGateway) Delete(_ context.Context, _ int64, id int) error {
	g.deleted = append(g.deleted, id)
	return nil
}

func (g *fakeGateway) last() sentMessage {
	if len(g.sent) == 0 {
		return sentMessage{}
	}
	return g.sent[len(g.sent)-1]
}

// flakyStore counts mutations and fails on demand.
type flakyStore struct {
	*storage.MemoryStore
	failLoad   bool
	failAppend bool
	failUpdate bool
	writes     int
}

func (s *flakyStore) LoadAll(ctx context.Context, t storage.Table) ([]storage.Row, error) {
	if s.failLoad {
		return nil, errStoreDown
	}
	return s.MemoryStore.LoadAll(ctx, t)
}

func (s *flakyStore) Append(ctx context.Context, t storage.Table, values map[string]string) (storage.RowID, error) {
	if s.failAppend {
		return "", errStoreDown
	}
	s.writes++
	return s.MemoryStore.Append(ctx, t, values)
}

func (s *flakyStore) UpdateCell(ctx context.Context, t storage.Table, id storage.RowID, column, value string) error {
	if s.failUpdate {
		return errStoreDown
	}
	s.writes++
	return s.MemoryStore.UpdateCell(ctx, t, id, column, value)
}

func (s *flakyStore) DeleteRow(ctx context.Context, t storage.Table, id storage.RowID) error {
	s.writes++
	return s.MemoryStore.DeleteRow(ctx, t, id)
}

type harness struct {
	t     *testing.T
	e     *Engine
	store *flakyStore
	gw    *fakeGateway
	users *registry.Service
	msgID int
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := &flakyStore{MemoryStore: storage.NewMemoryStore()}
	users := registry.New(store, "")
	gw := &fakeGateway{}
	e := New(store, users, gw, Options{Location: time.UTC, Logger: zap.NewNop()})
	e.now = func() time.Time { return fixedNow }
	return &harness{t: t, e: e, store: store, gw: gw, users: users, msgID: 1000}
}

func (h *harness) say(texts ...string) {
	h.t.Helper()
	for _, text := range texts {
		h.msgID++
		h.e.Handle(context.Background(), Message{ChatID: testChat, UserID: testUser, MessageID: h.msgID, Text: text})
	}
}

func (h *harness) command(cmd string) {
	h.t.Helper()
	h.msgID++
	h.e.Handle(context.Background(), Message{ChatID: testChat, UserID: testUser, MessageID: h.msgID, Text: "/" + cmd, Command: cmd})
}

func (h *harness) ctx() *session.Context {
	h.t.Helper()
	c, ok := h.e.Sessions().Peek(testUser)
	require.True(h.t, ok, "no context for user")
	return c
}

func (h *harness) state() string {
	h.t.Helper()
	c, ok := h.e.Sessions().Peek(testUser)
	if !ok {
		return StateNone
	}
	return c.State
}

// registered registers the test user and opens the main menu.
func (h *harness) registered() {
	h.t.Helper()
	_, err := h.users.Register(context.Background(), testUser, "Ann Smith", "ann")
	require.NoError(h.t, err)
	h.command("start")
	require.Equal(h.t, StateAwaitingChoice, h.state())
}

func (h *harness) sessions() []storage.Row {
	h.t.Helper()
	rows, err := h.store.MemoryStore.LoadAll(context.Background(), records.SessionsTable(""))
	require.NoError(h.t, err)
	return rows
}

func (h *harness) row(id storage.RowID) storage.Row {
	h.t.Helper()
	for _, r := range h.sessions() {
		if r.ID == id {
			return r
		}
	}
	h.t.Fatalf("row %s not found", id)
	return storage.Row{}
}

func (h *harness) expenses(owner string) []storage.Row {
	h.t.Helper()
	rows, err := h.store.MemoryStore.LoadAll(context.Background(), records.ExpensesTable(owner))
	require.NoError(h.t, err)
	return rows
}

// seed appends a session row directly, bypassing the engine.
func (h *harness) seed(values map[string]string) storage.RowID {
	h.t.Helper()
	id, err := h.store.MemoryStore.Append(context.Background(), records.SessionsTable(""), values)
	require.NoError(h.t, err)
	return id
}

func TestStart_RegistersNewUser(t *testing.T) {
	h := newHarness(t)

	h.command("start")
	require.Equal(t, StateFullName, h.state())
	require.Contains(t, h.gw.last().text, "full name")

	h.say("Ann")
	require.Equal(t, StateFullName, h.state(), "single word must re-prompt")
	require.Contains(t, h.gw.last().text, "first name and last name")

	h.say("  Ann   Smith ")
	require.Equal(t, StateAwaitingChoice, h.state())
	require.Equal(t, "Ann Smith", h.ctx().Owner)
	require.True(t, h.gw.last().kb.Persistent, "main menu expected")

	u, err := h.users.Lookup(context.Background(), testUser)
	require.NoError(t, err)
	require.NotNil(t, u)
	require.Equal(t, "Ann Smith", u.FullName)
}

func TestStart_WelcomesBack(t *testing.T) {
	h := newHarness(t)
	h.registered()
	require.Equal(t, "Welcome back, Ann Smith! What would you like to do?", h.gw.last().text)

	writes := h.store.writes
	h.command("start")
	require.Equal(t, writes, h.store.writes, "no second registration")
}

func TestText_WithoutStart(t *testing.T) {
	h := newHarness(t)
	h.say("hello")
	require.Equal(t, StateNone, h.state())
	require.Equal(t, "Please use /start to begin.", h.gw.last().text)
	_, ok := h.e.Sessions().Peek(testUser)
	require.False(t, ok, "idle context must not be kept")
}

func TestAbandon_ForcesMenuOnUnknownState(t *testing.T) {
	h := newHarness(t)
	c := h.e.Sessions().Get(testUser)
	c.ChatID = testChat
	c.State = "LEGACY_STATE"
	c.Flow = session.FlowTraining
	c.RowID = "gone"

	h.e.abandon(&turn{ctx: context.Background(), msg: Message{ChatID: testChat, UserID: testUser}, c: c})

	require.Equal(t, StateAwaitingChoice, c.State)
	require.Equal(t, session.FlowNone, c.Flow)
	require.Empty(t, c.RowID)
	require.Contains(t, h.gw.last().text, "no longer exists")
	require.True(t, h.gw.last().kb.Persistent, "main menu expected")
}

func TestEntryPoint_NotRegistered(t *testing.T) {
	h := newHarness(t)
	c := h.e.Sessions().Get(testUser)
	c.State = StateAwaitingChoice

	h.say(choiceTraining)
	require.Contains(t, h.gw.last().text, "/start")
	_, ok := h.e.Sessions().Peek(testUser)
	require.False(t, ok, "context must be reset")
}

func TestMenu_HelpAndInvalid(t *testing.T) {
	h := newHarness(t)
	h.registered()

	h.say(choiceHelp)
	require.Equal(t, StateAwaitingChoice, h.state())
	require.Equal(t, helpText, h.gw.sent[len(h.gw.sent)-2].text)

	h.say("Dance")
	require.Equal(t, StateAwaitingChoice, h.state())
	require.Contains(t, h.gw.last().text, "Invalid choice")

	h.say("cancel")
	require.Equal(t, StateAwaitingChoice, h.state())
	require.Contains(t, h.gw.last().text, "Nothing to cancel")
}

func TestUnknownCommand(t *testing.T) {
	h := newHarness(t)
	h.registered()
	h.command("dance")
	require.Equal(t, StateAwaitingChoice, h.state())
	require.Contains(t, h.gw.last().text, "Unknown command")
}

func TestStoreFailure_RestoresContext(t *testing.T) {
	h := newHarness(t)
	h.registered()
	h.say(choiceTraining, choiceNew, "Max")
	require.Equal(t, StateClassName, h.state())

	h.store.failAppend = true
	h.say("KZ")
	require.Equal(t, StateClassName, h.state())
	require.Equal(t, "", h.ctx().Class)
	require.Equal(t, "Max", h.ctx().Pilot)
	require.Empty(t, h.sessions())
	require.Contains(t, h.gw.last().text, "try again later")

	h.store.failAppend = false
	h.say("KZ")
	require.Equal(t, StateSessionNumber, h.state())
	require.Len(t, h.sessions(), 1)
}

func TestStoreFailure_AtEntryPoint(t *testing.T) {
	h := newHarness(t)
	h.registered()
	h.store.failLoad = true
	h.say(choiceTraining)
	require.Equal(t, StateAwaitingChoice, h.state())
	require.Contains(t, h.gw.last().text, "try again later")
}

func TestRowRemovedExternally_EndsFlow(t *testing.T) {
	h := newHarness(t)
	h.registered()
	h.say(choiceTraining, choiceNew, "Max", "KZ")
	id := h.ctx().RowID
	require.NotEmpty(t, id)
	require.NoError(t, h.store.MemoryStore.DeleteRow(context.Background(), records.SessionsTable(""), id))

	h.say("3")
	require.Equal(t, StateAwaitingChoice, h.state())
	require.Empty(t, h.ctx().RowID)
	require.Equal(t, session.FlowNone, h.ctx().Flow)
	require.Contains(t, h.gw.last().text, "no longer exists")
}

func TestPromptHygiene(t *testing.T) {
	h := newHarness(t)
	h.registered()

	h.say(choiceTraining)
	choicePrompt := h.ctx().LastPromptID
	require.NotZero(t, choicePrompt)

	h.say(choiceNew)
	require.Contains(t, h.gw.deleted, choicePrompt, "previous prompt must be deleted")

	h.say("Max")
	require.Contains(t, h.gw.deleted, h.msgID, "accepted input must be deleted")

	h.gw.failSend = true
	h.say("KZ")
	require.Equal(t, StateSessionNumber, h.state())
	require.Zero(t, h.ctx().LastPromptID, "undelivered prompt has no handle")

	h.gw.failSend = false
	before := len(h.gw.deleted)
	h.say("3")
	require.Equal(t, []int{h.msgID}, h.gw.deleted[before:], "only the answer is deleted")
	require.NotZero(t, h.ctx().LastPromptID)
}
