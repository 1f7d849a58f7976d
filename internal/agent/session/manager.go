package session

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/retailchat-ai/server/internal/agent/model"
	errx "github.com/retailchat-ai/server/internal/core/error"
)

// Manager hands out session contexts and serialises turns per session.
type Manager struct {
	uploadDir string
	cart      model.CartStore

	mu       sync.Mutex
	sessions map[string]*entry
}

type entry struct {
	turn sync.Mutex
	ctx  *Context
}

func NewManager(uploadDir string, cart model.CartStore) *Manager {
	return &Manager{uploadDir: uploadDir, cart: cart, sessions: map[string]*entry{}}
}

// ValidID rejects anything that is not a canonical session id. Ids end up
// in upload paths, so this is checked before any lookup.
func ValidID(id string) error {
	u, err := uuid.Parse(id)
	if err != nil || u.String() != id {
		return errx.Validation(fmt.Sprintf("invalid session id %q", id), err)
	}
	return nil
}

// Open registers a fresh session and returns its context.
func (m *Manager) Open() *Context {
	return m.add(uuid.NewString())
}

// Resume registers id, a session issued before this process started.
func (m *Manager) Resume(id string) (*Context, error) {
	if err := ValidID(id); err != nil {
		return nil, err
	}
	return m.add(id), nil
}

func (m *Manager) add(id string) *Context {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[id]
	if !ok {
		e = &entry{ctx: New(id, SlotsFor(m.uploadDir, id), m.cart)}
		m.sessions[id] = e
	}
	return e.ctx
}

// Known reports whether id was opened or resumed.
func (m *Manager) Known(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[id]
	return ok
}

func (m *Manager) entry(id string) (*entry, error) {
	if err := ValidID(id); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[id]
	if !ok {
		return nil, errx.NotFound(fmt.Sprintf("session %s not found", id), nil)
	}
	return e, nil
}

// Get returns the context of an opened session.
func (m *Manager) Get(id string) (*Context, error) {
	e, err := m.entry(id)
	if err != nil {
		return nil, err
	}
	return e.ctx, nil
}

// Lock blocks until no other turn of session id is running.
func (m *Manager) Lock(id string) (*Context, func(), error) {
	e, err := m.entry(id)
	if err != nil {
		return nil, nil, err
	}
	e.turn.Lock()
	return e.ctx, e.turn.Unlock, nil
}
