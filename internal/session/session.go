// Package session keeps the per-user scratch state of a conversation.
package session

import (
	"sync"

	"pitlog/internal/storage"
)

// Flow names the data-collection flow that owns a context.
type Flow int

const (
	FlowNone Flow = iota
	FlowRegistration
	FlowTraining
	FlowExpense
)

func (f Flow) String() string {
	switch f {
	case FlowRegistration:
		return "registration"
	case FlowTraining:
		return "training"
	case FlowExpense:
		return "expense"
	default:
		return "none"
	}
}

// EditCandidate is a row offered in the edit listing.
type EditCandidate struct {
	ID    storage.RowID
	Label string
}

type Context struct {
	UserID int64
	ChatID int64
	State  string
	Flow   Flow
	// Owner is the display name of the registered user.
	Owner string

	// RowID is the session row being filled, empty until allocated.
	RowID      storage.RowID
	Pilot      string
	Class      string
	Suggestion string

	ExpenseDescription string

	EditCandidates []EditCandidate
	EditIndex      int
	EditField      string

	// LastPromptID is the tracked prompt deleted before the next one; 0 when unknown.
	LastPromptID int
}

// Begin starts flow f, dropping every flow-scoped field.
func (c *Context) Begin(f Flow) {
	c.clearFlow()
	c.Flow = f
}

// End clears the active flow. Owner and the tracked prompt survive.
func (c *Context) End() {
	c.clearFlow()
	c.Flow = FlowNone
}

func (c *Context) clearFlow() {
	c.RowID = ""
	c.Pilot = ""
	c.Class = ""
	c.Suggestion = ""
	c.ExpenseDescription = ""
	c.EditCandidates = nil
	c.EditIndex = -1
	c.EditField = ""
}

// Idle reports whether the context holds nothing worth keeping between turns.
func (c *Context) Idle() bool {
	return (c.State == "" || c.State == "NONE") && c.Flow == FlowNone && c.LastPromptID == 0
}

// Clone returns a deep copy suitable for restoring after a failed turn.
func (c *Context) Clone() *Context {
	cp := *c
	if c.EditCandidates != nil {
		cp.EditCandidates = append([]EditCandidate(nil), c.EditCandidates...)
	}
	return &cp
}

// Manager owns the contexts of all users.
type Manager struct {
	mu       sync.RWMutex
	contexts map[int64]*Context
}

func NewManager() *Manager {
	return &Manager{contexts: make(map[int64]*Context)}
}

// Get returns the context of userID, creating an idle one on first use.
func (m *Manager) Get(userID int64) *Context {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.contexts[userID]
	if !ok {
		c = &Context{UserID: userID, EditIndex: -1}
		m.contexts[userID] = c
	}
	return c
}

// Peek returns the context of userID without creating it.
func (m *Manager) Peek(userID int64) (*Context, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.contexts[userID]
	return c, ok
}

// Put replaces the context of its user, used to restore a snapshot.
func (m *Manager) Put(c *Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contexts[c.UserID] = c
}

func (m *Manager) Reset(userID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.contexts, userID)
}

// Release drops the context of userID once it is idle, so users who never
// get past the greeting do not accumulate.
func (m *Manager) Release(userID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.contexts[userID]; ok && c.Idle() {
		delete(m.contexts, userID)
	}
}
