package dialog

import (
	"sort"
	"sync"
)

// DialogStore keeps one Dialog per user.
type DialogStore interface {
	// Get returns the user's dialog, or an idle one.
	Get(userID int64) Dialog
	Put(d Dialog)
	Clear(userID int64)
	// All returns the stored dialogs ordered by user id.
	All() []Dialog
}

// SessionRegistry keeps at most one live Session per user.
type SessionRegistry interface {
	Get(userID int64) *Session
	Put(s *Session)
	Remove(userID int64)
	// All returns the live sessions ordered by user id.
	All() []*Session
}

type memoryDialogs struct {
	mu      sync.RWMutex
	dialogs map[int64]Dialog
}

// NewMemoryDialogs returns an in-process DialogStore.
func NewMemoryDialogs() DialogStore {
	return &memoryDialogs{dialogs: make(map[int64]Dialog)}
}

func (m *memoryDialogs) Get(userID int64) Dialog {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if d, ok := m.dialogs[userID]; ok {
		return d
	}
	return Dialog{UserID: userID, Step: StateIdle}
}

func (m *memoryDialogs) Put(d Dialog) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dialogs[d.UserID] = d
}

func (m *memoryDialogs) Clear(userID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.dialogs, userID)
}

func (m *memoryDialogs) All() []Dialog {
	m.mu.RLock()
	out := make([]Dialog, 0, len(m.dialogs))
	for _, d := range m.dialogs {
		out = append(out, d)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

type memorySessions struct {
	mu       sync.RWMutex
	sessions map[int64]*Session
}

// NewMemorySessions returns an in-process SessionRegistry.
func NewMemorySessions() SessionRegistry {
	return &memorySessions{sessions: make(map[int64]*Session)}
}

func (m *memorySessions) Get(userID int64) *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[userID]
}

func (m *memorySessions) Put(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.UserID] = s
}

func (m *memorySessions) Remove(userID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, userID)
}

func (m *memorySessions) All() []*Session {
	m.mu.RLock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}
