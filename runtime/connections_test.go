package runtime

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"darkroom/domain"
	"darkroom/domain/event"
	"darkroom/errors"
)

type nopSink struct{}

func (nopSink) Consume(ctx context.Context, e event.DomainEvent) error {
	return nil
}

func TestConnections_JoinRoom_Updates_Both_Sides(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(16, time.Minute)
	conns := NewConnections(registry)
	connID := uuid.NewString()
	roomID := domain.RoomID("lobby")

	// Given a registered connection
	conns.Register(connID, "alice", nopSink{})

	// When it joins a room
	count, err := conns.JoinRoom(connID, roomID)

	// Then the room sees the member and the sink is reachable
	req.NoError(err)
	req.Equal(1, count)
	req.True(registry.IsMember(roomID, connID))
	req.Len(conns.SinksForRoom(roomID), 1)
}

func TestConnections_JoinRoom_Unknown_Connection(t *testing.T) {
	req := require.New(t)
	conns := NewConnections(NewRegistry(16, time.Minute))

	// When an unregistered connection joins
	_, err := conns.JoinRoom(uuid.NewString(), "lobby")

	// Then the join is refused
	req.ErrorIs(err, errors.ErrUnknownConn)
}

func TestConnections_LeaveRoom_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(16, time.Minute)
	conns := NewConnections(registry)
	connID := uuid.NewString()
	roomID := domain.RoomID("lobby")
	conns.Register(connID, "alice", nopSink{})
	_, err := conns.JoinRoom(connID, roomID)
	req.NoError(err)

	// When leaving twice, and leaving a room never joined
	req.Equal(0, conns.LeaveRoom(connID, roomID))
	req.Equal(0, conns.LeaveRoom(connID, roomID))
	req.Equal(0, conns.LeaveRoom(connID, "elsewhere"))

	// Then counts never went negative and membership is gone
	req.False(registry.IsMember(roomID, connID))
}

func TestConnections_Disconnect_Leaves_Every_Room(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(16, time.Minute)
	conns := NewConnections(registry)
	connID := uuid.NewString()
	conns.Register(connID, "alice", nopSink{})
	for _, room := range []domain.RoomID{"lobby", "random", "dev"} {
		_, err := conns.JoinRoom(connID, room)
		req.NoError(err)
	}

	// When the connection drops
	left := conns.Disconnect(connID)

	// Then every membership is removed exactly once
	req.Len(left, 3)
	for _, room := range left {
		req.Equal(0, registry.MemberCount(room))
	}

	// And a duplicate close event is harmless
	req.Nil(conns.Disconnect(connID))
	req.Equal(0, conns.Count())
}

func TestConnections_IdleConnections_Uses_Last_Activity(t *testing.T) {
	req := require.New(t)
	conns := NewConnections(NewRegistry(16, time.Minute))
	idleID := uuid.NewString()
	activeID := uuid.NewString()
	conns.Register(idleID, "sleepy", nopSink{})
	conns.Register(activeID, "busy", nopSink{})

	// Given one connection stays active
	conns.Touch(activeID)

	// When the sweep looks one hour into the future
	idle := conns.IdleConnections(30*time.Minute, time.Now().Add(time.Hour))

	// Then both are idle by that point
	req.ElementsMatch([]string{idleID, activeID}, idle)

	// And nobody is idle right now
	req.Empty(conns.IdleConnections(30*time.Minute, time.Now()))
}

func TestConnections_Alias_Resolves_Registered_Identity(t *testing.T) {
	req := require.New(t)
	conns := NewConnections(NewRegistry(16, time.Minute))
	connID := uuid.NewString()
	conns.Register(connID, "alice", nopSink{})

	alias, ok := conns.Alias(connID)
	req.True(ok)
	req.Equal("alice", alias)

	_, ok = conns.Alias(uuid.NewString())
	req.False(ok)
}
