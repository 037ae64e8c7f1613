package runtime

import (
	"sync"
	"time"

	"darkroom/contract"
	"darkroom/domain"
	"darkroom/errors"
)

type connState struct {
	alias        string
	rooms        Set
	lastActivity time.Time
	sink         contract.EventSink
}

// Connections tracks one record per live socket: which rooms it joined,
// when it was last active, and the sink used to deliver events to it.
// Rooms only ever store connection ids; the sink lives here, in a single
// place, even when the connection joined several rooms.
type Connections struct {
	mu       sync.Mutex
	registry *Registry
	conns    map[string]*connState
}

func NewConnections(registry *Registry) *Connections {
	return &Connections{registry: registry, conns: make(map[string]*connState)}
}

// Register records a new connection with an empty room set and a fresh
// activity timestamp.
func (c *Connections) Register(connID, alias string, sink contract.EventSink) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conns[connID] = &connState{
		alias:        alias,
		rooms:        make(Set),
		lastActivity: time.Now(),
		sink:         sink,
	}
}

// JoinRoom adds the room to the connection's set and the connection to the
// room's membership set. Both updates happen under the connections lock so
// a concurrent disconnect can never observe one side without the other.
// Returns the room's new member count.
func (c *Connections) JoinRoom(connID string, roomID domain.RoomID) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	state, ok := c.conns[connID]
	if !ok {
		return 0, errors.ErrUnknownConn
	}
	state.rooms[string(roomID)] = struct{}{}
	state.lastActivity = time.Now()
	return c.registry.AddMember(roomID, connID), nil
}

// LeaveRoom is the inverse of JoinRoom. Leaving a room that was never
// joined, or leaving twice, is a no-op on the count.
func (c *Connections) LeaveRoom(connID string, roomID domain.RoomID) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if state, ok := c.conns[connID]; ok {
		delete(state.rooms, string(roomID))
		state.lastActivity = time.Now()
	}
	return c.registry.RemoveMember(roomID, connID)
}

// Disconnect removes the connection from every room it had joined and
// discards its record. Idempotent: the transport's close event and an
// explicit leaving event may both call it. Returns the rooms that were
// left so callers can notify the remaining members.
func (c *Connections) Disconnect(connID string) []domain.RoomID {
	c.mu.Lock()
	defer c.mu.Unlock()
	state, ok := c.conns[connID]
	if !ok {
		return nil
	}
	delete(c.conns, connID)
	left := make([]domain.RoomID, 0, len(state.rooms))
	for room := range state.rooms {
		roomID := domain.RoomID(room)
		c.registry.RemoveMember(roomID, connID)
		left = append(left, roomID)
	}
	return left
}

// Touch refreshes the connection's last-activity timestamp. The transport
// calls it for every frame (including pongs) so the idle sweep only catches
// genuinely silent clients.
func (c *Connections) Touch(connID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if state, ok := c.conns[connID]; ok {
		state.lastActivity = time.Now()
	}
}

// Alias resolves the identity stamped on the connection at registration.
func (c *Connections) Alias(connID string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	state, ok := c.conns[connID]
	if !ok {
		return "", false
	}
	return state.alias, true
}

// IdleConnections returns the ids of connections whose last activity is
// older than the threshold.
func (c *Connections) IdleConnections(threshold time.Duration, now time.Time) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var idle []string
	for id, state := range c.conns {
		if now.Sub(state.lastActivity) > threshold {
			idle = append(idle, id)
		}
	}
	return idle
}

// SinksForRoom resolves the room's member ids into live delivery sinks.
// Two-step lookup: the registry knows who is in the room, the connection
// table knows how to reach them.
func (c *Connections) SinksForRoom(roomID domain.RoomID) []contract.EventSink {
	members := c.registry.Members(roomID)
	c.mu.Lock()
	defer c.mu.Unlock()
	var sinks []contract.EventSink
	for _, id := range members {
		if state, ok := c.conns[id]; ok {
			sinks = append(sinks, state.sink)
		}
	}
	return sinks
}

// Count returns the number of live connections.
func (c *Connections) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.conns)
}
