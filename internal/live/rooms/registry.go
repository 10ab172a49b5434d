package rooms

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Registry maps session IDs to the set of connection IDs currently in the
// session, plus a reverse index so a disconnecting connection's rooms can be
// enumerated without scanning every session. A session with no members has
// no entry at all; rooms are created lazily on first join and deleted when
// the last member leaves.
type Registry struct {
	mu      sync.RWMutex
	members map[string]map[string]struct{} // sessionID -> connection IDs
	joined  map[string]map[string]struct{} // connectionID -> session IDs
}

// NewRegistry creates an empty room registry.
func NewRegistry() *Registry {
	return &Registry{
		members: make(map[string]map[string]struct{}),
		joined:  make(map[string]map[string]struct{}),
	}
}

// Join adds the connection to the session's room, creating the room if
// absent. Idempotent: re-joining reports added=false and changes nothing.
// The returned count is the membership size after the call.
func (r *Registry) Join(sessionID, connID string) (added bool, count int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room := r.members[sessionID]
	if room == nil {
		room = make(map[string]struct{})
		r.members[sessionID] = room
	}
	if _, ok := room[connID]; !ok {
		room[connID] = struct{}{}
		added = true
	}

	sessions := r.joined[connID]
	if sessions == nil {
		sessions = make(map[string]struct{})
		r.joined[connID] = sessions
	}
	sessions[sessionID] = struct{}{}

	if added {
		log.Debug().
			Str("session_id", sessionID).
			Str("connection_id", connID).
			Int("member_count", len(room)).
			Msg("connection joined room")
	}
	return added, len(room)
}

// Leave removes the connection from the session's room, deleting the room
// once empty. Idempotent: leaving a room the connection is not in reports
// removed=false. The returned count is the membership size after the call.
func (r *Registry) Leave(sessionID, connID string) (removed bool, count int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.members[sessionID]
	if !ok {
		return false, 0
	}
	if _, ok := room[connID]; !ok {
		return false, len(room)
	}

	delete(room, connID)
	if len(room) == 0 {
		delete(r.members, sessionID)
	}

	if sessions, ok := r.joined[connID]; ok {
		delete(sessions, sessionID)
		if len(sessions) == 0 {
			delete(r.joined, connID)
		}
	}

	log.Debug().
		Str("session_id", sessionID).
		Str("connection_id", connID).
		Int("member_count", len(room)).
		Msg("connection left room")
	return true, len(room)
}

// Members returns a snapshot of the connection IDs in the session's room.
// The count a broadcast reports is always taken from this authoritative set,
// never cached.
func (r *Registry) Members(sessionID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room, ok := r.members[sessionID]
	if !ok {
		return nil
	}
	ids := make([]string, 0, len(room))
	for id := range room {
		ids = append(ids, id)
	}
	return ids
}

// Count returns the current membership size of the session's room.
func (r *Registry) Count(sessionID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members[sessionID])
}

// SessionsOf returns a snapshot of the sessions the connection has joined.
func (r *Registry) SessionsOf(connID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sessions, ok := r.joined[connID]
	if !ok {
		return nil
	}
	ids := make([]string, 0, len(sessions))
	for id := range sessions {
		ids = append(ids, id)
	}
	return ids
}

// ActiveRooms returns the number of rooms with at least one member.
func (r *Registry) ActiveRooms() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}
