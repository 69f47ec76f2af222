package detector

import (
	"sync"
	"time"
)

// TrackedSession is the detector's lightweight per-session tracking
// record: identifiers, the outstanding deadline timer, and the
// consecutive-failure counters. Exactly one exists per live session, and
// removing it cancels its timer. All fields are guarded by the owning
// Detector's lock; nothing outside this package mutates them.
type TrackedSession struct {
	SessionID   string
	AgentType   string
	ProjectID   string
	WorkspaceID string
	StoryID     string
	CreatedAt   time.Time

	timer     *time.Timer
	apiErrors *streak
	fileEdits map[string]*streak
}

// SessionStore holds the detector's tracking records. It exists as an
// interface so tests can substitute their own map and production can
// shard if needed. Contract: the Detector is the sole writer; other
// components must not mutate TrackedSessions obtained from it.
type SessionStore interface {
	// Put stores a tracking record, replacing any existing one.
	Put(session *TrackedSession)

	// Get returns the record for a session ID.
	Get(sessionID string) (*TrackedSession, bool)

	// Delete removes the record; a no-op for unknown IDs.
	Delete(sessionID string)

	// Len returns the number of tracked sessions.
	Len() int
}

// MapSessionStore is the default in-memory SessionStore.
type MapSessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*TrackedSession
}

// NewMapSessionStore creates an empty MapSessionStore.
func NewMapSessionStore() *MapSessionStore {
	return &MapSessionStore{
		sessions: make(map[string]*TrackedSession),
	}
}

// Put stores a tracking record.
func (m *MapSessionStore) Put(session *TrackedSession) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[session.SessionID] = session
}

// Get returns the record for a session ID.
func (m *MapSessionStore) Get(sessionID string) (*TrackedSession, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	session, ok := m.sessions[sessionID]
	return session, ok
}

// Delete removes the record for a session ID.
func (m *MapSessionStore) Delete(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
}

// Len returns the number of tracked sessions.
func (m *MapSessionStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

var _ SessionStore = (*MapSessionStore)(nil)
