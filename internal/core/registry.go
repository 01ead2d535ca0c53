package core

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/driftline/chatwire/internal/metrics"
)

// Registry tracks live sessions keyed by (room, user, connection instance).
// It is the only shared mutable structure on the broadcast hot path; reads
// vastly outnumber writes, so it is guarded by a RWMutex and broadcast
// consumers work on snapshots.
type Registry struct {
	mu sync.RWMutex
	// rooms keeps per-room insertion order, which fixes the enqueue order
	// of a single Publish call across recipients.
	rooms map[string][]*Session
	byID  map[string]*Session

	log *zerolog.Logger
}

// NewRegistry constructs an empty registry.
func NewRegistry(logger *zerolog.Logger) *Registry {
	return &Registry{
		rooms: make(map[string][]*Session),
		byID:  make(map[string]*Session),
		log:   logger,
	}
}

// Add admits a session. Fails with ErrDuplicateSession if an active session
// for the same (user, room) exists; the caller must close and remove the old
// one first (last-writer-wins).
func (r *Registry) Add(s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.rooms[s.RoomID] {
		if existing.UserID == s.UserID {
			return ErrDuplicateSession
		}
	}

	r.rooms[s.RoomID] = append(r.rooms[s.RoomID], s)
	r.byID[s.ID] = s
	metrics.SessionsActive.Set(float64(len(r.byID)))

	r.log.Debug().
		Str("session_id", s.ID).
		Str("user_id", s.UserID).
		Str("room_id", s.RoomID).
		Msg("session added")
	return nil
}

// Lookup returns the live session for (userID, roomID), or nil.
func (r *Registry) Lookup(roomID, userID string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, s := range r.rooms[roomID] {
		if s.UserID == userID {
			return s
		}
	}
	return nil
}

// Remove drops a session by id. Idempotent.
func (r *Registry) Remove(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.byID[sessionID]
	if !ok {
		return
	}
	delete(r.byID, sessionID)

	sessions := r.rooms[s.RoomID]
	for i, existing := range sessions {
		if existing.ID == sessionID {
			r.rooms[s.RoomID] = append(sessions[:i], sessions[i+1:]...)
			break
		}
	}
	if len(r.rooms[s.RoomID]) == 0 {
		delete(r.rooms, s.RoomID)
	}
	metrics.SessionsActive.Set(float64(len(r.byID)))

	r.log.Debug().
		Str("session_id", sessionID).
		Str("room_id", s.RoomID).
		Msg("session removed")
}

// SessionsForRoom returns a snapshot of the room's sessions in insertion
// order. The lock is held only long enough to copy references, never during
// broadcast.
func (r *Registry) SessionsForRoom(roomID string) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sessions := r.rooms[roomID]
	snapshot := make([]*Session, len(sessions))
	copy(snapshot, sessions)
	return snapshot
}

// All returns a snapshot of every live session.
func (r *Registry) All() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snapshot := make([]*Session, 0, len(r.byID))
	for _, s := range r.byID {
		snapshot = append(snapshot, s)
	}
	return snapshot
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}
