package conversation

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sheetfit/trackerbot/internal/model"
	"github.com/sheetfit/trackerbot/internal/schema"
)

// Session is one user's in-flight logging conversation. All fields are
// guarded by mu; Engine.Step holds it for the duration of a step, so
// events for the same chat are applied strictly in order.
type Session struct {
	ID     string
	Tenant *schema.Tenant
	ChatID int64

	mu         sync.Mutex
	state      State
	targetDate time.Time
	metric     *Metric
	items      []model.ParsedItem
	estimate   *model.NutritionEstimate
}

func newSession(t *schema.Tenant, chatID int64) *Session {
	return &Session{
		ID:     uuid.NewString(),
		Tenant: t,
		ChatID: chatID,
		state:  StateSelectingDate,
	}
}

// State returns the session's current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// resetMealState clears everything tied to the current meal so the next
// metric choice starts clean. Caller holds s.mu.
func (s *Session) resetMealState() {
	s.metric = nil
	s.items = nil
	s.estimate = nil
}

type sessionKey struct {
	token  string
	chatID int64
}

// Manager tracks live sessions keyed by (tenant, chat). Sessions for
// different chats never block each other.
type Manager struct {
	mu       sync.Mutex
	sessions map[sessionKey]*Session
}

func NewManager() *Manager {
	return &Manager{sessions: make(map[sessionKey]*Session)}
}

// Get returns the live session for (tenant, chat), or nil.
func (m *Manager) Get(t *schema.Tenant, chatID int64) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[sessionKey{t.Token, chatID}]
}

// Start replaces any existing session for (tenant, chat) with a fresh
// one in StateSelectingDate.
func (m *Manager) Start(t *schema.Tenant, chatID int64) *Session {
	s := newSession(t, chatID)
	m.mu.Lock()
	m.sessions[sessionKey{t.Token, chatID}] = s
	m.mu.Unlock()
	return s
}

// End drops the session if it is still the registered one for its chat.
func (m *Manager) End(s *Session) {
	key := sessionKey{s.Tenant.Token, s.ChatID}
	m.mu.Lock()
	if m.sessions[key] == s {
		delete(m.sessions, key)
	}
	m.mu.Unlock()
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
