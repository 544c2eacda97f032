package realtime

import (
	"sync"
	"time"
)

// Entry is a user's presence as last observed by this process.
type Entry struct {
	UserID   string
	Online   bool
	LastSeen time.Time
}

// Presence tracks which users hold at least one live connection.
// It is process-local and lost on restart; chat state lives in the DB.
type Presence interface {
	Connect(userID, connID string, at time.Time)
	Touch(userID string, at time.Time)
	// Disconnect drops one connection. The bool reports whether the user
	// went offline, i.e. it was their last connection.
	Disconnect(userID, connID string, at time.Time) (Entry, bool)
	Online(userID string) bool
}

type presenceRecord struct {
	conns    map[string]struct{}
	lastSeen time.Time
}

// MemoryPresence is the in-memory Presence.
type MemoryPresence struct {
	mu    sync.RWMutex
	users map[string]*presenceRecord
}

func NewMemoryPresence() *MemoryPresence {
	return &MemoryPresence{users: make(map[string]*presenceRecord)}
}

func (p *MemoryPresence) Connect(userID, connID string, at time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()

	rec := p.users[userID]
	if rec == nil {
		rec = &presenceRecord{conns: make(map[string]struct{})}
		p.users[userID] = rec
	}
	rec.conns[connID] = struct{}{}
	rec.lastSeen = at
}

func (p *MemoryPresence) Touch(userID string, at time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if rec := p.users[userID]; rec != nil && at.After(rec.lastSeen) {
		rec.lastSeen = at
	}
}

func (p *MemoryPresence) Disconnect(userID, connID string, at time.Time) (Entry, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	rec := p.users[userID]
	if rec == nil {
		return Entry{UserID: userID, LastSeen: at}, false
	}
	if _, ok := rec.conns[connID]; !ok {
		return rec.entry(userID), false
	}

	delete(rec.conns, connID)
	rec.lastSeen = at
	return rec.entry(userID), len(rec.conns) == 0
}

func (p *MemoryPresence) Online(userID string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	rec := p.users[userID]
	return rec != nil && len(rec.conns) > 0
}

func (r *presenceRecord) entry(userID string) Entry {
	return Entry{UserID: userID, Online: len(r.conns) > 0, LastSeen: r.lastSeen}
}
