// Package runtime owns the live state of the broker: room membership,
// connection records, message routing, and janitorial sweeps. It contains
// no transport or storage logic.
package runtime

import (
	"sync"
	"time"

	"darkroom/domain"
)

type Set map[string]struct{}

type roomState struct {
	meta    domain.Metadata
	members Set
	buffer  []domain.Message
	lastSeq uint64
	// emptySince is non-zero while the room has no members and is waiting
	// out its grace period. A re-join resets it without touching the buffer.
	emptySince time.Time
}

// Registry is the single authoritative in-memory map of rooms. All mutation
// goes through its methods; persistence is a downstream mirror, never a
// second source of truth.
type Registry struct {
	mu        sync.RWMutex
	rooms     map[domain.RoomID]*roomState
	bufferCap int
	grace     time.Duration
}

func NewRegistry(bufferCap int, grace time.Duration) *Registry {
	return &Registry{
		rooms:     make(map[domain.RoomID]*roomState),
		bufferCap: bufferCap,
		grace:     grace,
	}
}

// EnsureRoom returns the room's metadata, creating the room if needed.
// Existing metadata wins over the supplied one (explicit creation first,
// implicit joins never overwrite).
func (r *Registry) EnsureRoom(roomID domain.RoomID, meta domain.Metadata) domain.Metadata {
	r.mu.Lock()
	defer r.mu.Unlock()
	state := r.ensureLocked(roomID)
	state.meta = state.meta.Merge(meta)
	return state.meta
}

func (r *Registry) ensureLocked(roomID domain.RoomID) *roomState {
	state, ok := r.rooms[roomID]
	if !ok {
		state = &roomState{members: make(Set)}
		r.rooms[roomID] = state
	}
	return state
}

// Metadata returns the room's metadata and whether the room exists.
func (r *Registry) Metadata(roomID domain.RoomID) (domain.Metadata, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	state, ok := r.rooms[roomID]
	if !ok {
		return domain.Metadata{}, false
	}
	return state.meta, true
}

// AddMember adds a connection to the room's membership set, creating the
// room on the fly, and returns the new member count. Adding an existing
// member is a no-op. Joining during the grace period cancels the pending
// eviction without losing the buffer.
func (r *Registry) AddMember(roomID domain.RoomID, connID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	state := r.ensureLocked(roomID)
	state.members[connID] = struct{}{}
	state.emptySince = time.Time{}
	return len(state.members)
}

// RemoveMember removes a connection from the room and returns the remaining
// member count. When the last member leaves, the room is not deleted; it is
// scheduled for eviction after the grace window so a quick reconnect finds
// its history intact. Unknown rooms and non-members are no-ops.
func (r *Registry) RemoveMember(roomID domain.RoomID, connID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	state, ok := r.rooms[roomID]
	if !ok {
		return 0
	}
	delete(state.members, connID)
	if len(state.members) == 0 && state.emptySince.IsZero() {
		state.emptySince = time.Now()
	}
	return len(state.members)
}

// MemberCount is always derived from the membership set itself, never
// tracked separately.
func (r *Registry) MemberCount(roomID domain.RoomID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	state, ok := r.rooms[roomID]
	if !ok {
		return 0
	}
	return len(state.members)
}

// IsMember reports whether the connection currently belongs to the room.
func (r *Registry) IsMember(roomID domain.RoomID, connID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	state, ok := r.rooms[roomID]
	if !ok {
		return false
	}
	_, member := state.members[connID]
	return member
}

// Members returns a snapshot of the room's member connection ids.
func (r *Registry) Members(roomID domain.RoomID) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	state, ok := r.rooms[roomID]
	if !ok {
		return nil
	}
	members := make([]string, 0, len(state.members))
	for id := range state.members {
		members = append(members, id)
	}
	return members
}

// StampAndAppend assigns the room's next sequence number to the message and
// appends it to the bounded buffer, evicting the oldest entry if at
// capacity. Assignment and append happen under one lock so the buffer and
// the broadcast are immediately consistent for any client that joins a
// microsecond later.
func (r *Registry) StampAndAppend(roomID domain.RoomID, msg domain.Message) domain.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	state := r.ensureLocked(roomID)
	state.lastSeq++
	msg.Seq = state.lastSeq
	state.buffer = append(state.buffer, msg)
	if len(state.buffer) > r.bufferCap {
		state.buffer = state.buffer[len(state.buffer)-r.bufferCap:]
	}
	return msg
}

// GetRecent returns up to limit buffered messages in chronological order
// (oldest first). The result is a copy and the call is restartable: it
// yields the same slice until new messages arrive. Unknown rooms return nil.
func (r *Registry) GetRecent(roomID domain.RoomID, limit int) []domain.Message {
	r.mu.RLock()
	defer r.mu.RUnlock()
	state, ok := r.rooms[roomID]
	if !ok {
		return nil
	}
	buf := state.buffer
	if limit > 0 && len(buf) > limit {
		buf = buf[len(buf)-limit:]
	}
	out := make([]domain.Message, len(buf))
	copy(out, buf)
	return out
}

// OldestBuffered returns the lowest sequence number currently buffered,
// or 0 when the buffer is empty. The history loader uses it to know where
// the store fallback must stop.
func (r *Registry) OldestBuffered(roomID domain.RoomID) uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	state, ok := r.rooms[roomID]
	if !ok || len(state.buffer) == 0 {
		return 0
	}
	return state.buffer[0].Seq
}

// Rewarm prepends messages fetched from the durable store to the buffer.
// Only messages older than everything buffered are accepted, and the
// sequence counter is advanced if the store is ahead of memory (process
// restart). Capacity still holds, oldest dropped first.
func (r *Registry) Rewarm(roomID domain.RoomID, older []domain.Message) {
	if len(older) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	state := r.ensureLocked(roomID)
	for _, msg := range older {
		if len(state.buffer) > 0 && msg.Seq >= state.buffer[0].Seq {
			return
		}
		if msg.Seq > state.lastSeq {
			state.lastSeq = msg.Seq
		}
	}
	merged := append(append([]domain.Message{}, older...), state.buffer...)
	if len(merged) > r.bufferCap {
		merged = merged[len(merged)-r.bufferCap:]
	}
	state.buffer = merged
}

// SweepExpired removes every room that has had zero members for longer than
// the grace period and returns their ids. The buffer memory is released
// with the room; a later join starts a fresh room with an empty history.
func (r *Registry) SweepExpired(now time.Time) []domain.RoomID {
	r.mu.Lock()
	defer r.mu.Unlock()
	var evicted []domain.RoomID
	for id, state := range r.rooms {
		if len(state.members) == 0 && !state.emptySince.IsZero() &&
			now.Sub(state.emptySince) >= r.grace {
			delete(r.rooms, id)
			evicted = append(evicted, id)
		}
	}
	return evicted
}

// RegistryStats is a cheap snapshot for the debug endpoint.
type RegistryStats struct {
	Rooms            int `json:"rooms"`
	Members          int `json:"members"`
	BufferedMessages int `json:"buffered_messages"`
	PendingEvictions int `json:"pending_evictions"`
}

func (r *Registry) Stats() RegistryStats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	stats := RegistryStats{Rooms: len(r.rooms)}
	for _, state := range r.rooms {
		stats.Members += len(state.members)
		stats.BufferedMessages += len(state.buffer)
		if !state.emptySince.IsZero() {
			stats.PendingEvictions++
		}
	}
	return stats
}
