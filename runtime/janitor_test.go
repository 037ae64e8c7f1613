package runtime

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"darkroom/domain"
	"darkroom/domain/event"
	"darkroom/observability"
)

func newJanitorFixture(t *testing.T) (*Registry, *Connections, *Router) {
	t.Helper()
	registry := NewRegistry(16, time.Minute)
	conns := NewConnections(registry)
	queue := make(chan domain.Message, 8)
	router := NewRouter(slog.Default(), registry, conns, nil, observability.NewHealth(), queue, 100)
	return registry, conns, router
}

func TestJanitor_HandleDisconnect_Cascades_And_Announces(t *testing.T) {
	req := require.New(t)
	registry, conns, router := newJanitorFixture(t)
	janitor := NewJanitor(slog.Default(), registry, conns, router, time.Second, time.Minute, nil)

	roomID := domain.RoomID("lobby")
	leaver := uuid.NewString()
	stayerSink := &recordingSink{}
	stayer := uuid.NewString()
	conns.Register(leaver, "alice", &recordingSink{})
	conns.Register(stayer, "bob", stayerSink)
	_, err := conns.JoinRoom(leaver, roomID)
	req.NoError(err)
	_, err = conns.JoinRoom(stayer, roomID)
	req.NoError(err)

	// When the transport reports alice's socket as gone
	janitor.HandleDisconnect(context.Background(), leaver)

	// Then her membership is removed and bob sees the new count
	req.Equal(1, registry.MemberCount(roomID))
	req.Len(stayerSink.events, 1)
	presence, ok := stayerSink.events[0].(event.MemberCountChanged)
	req.True(ok)
	req.Equal(1, presence.MemberCount)

	// And a duplicate close event changes nothing
	janitor.HandleDisconnect(context.Background(), leaver)
	req.Equal(1, registry.MemberCount(roomID))
	req.Len(stayerSink.events, 1)
}

func TestJanitor_Sweep_Closes_Idle_Connections(t *testing.T) {
	req := require.New(t)
	registry, conns, router := newJanitorFixture(t)

	var closed []string
	janitor := NewJanitor(slog.Default(), registry, conns, router,
		10*time.Millisecond, 30*time.Millisecond,
		func(connID string) { closed = append(closed, connID) })

	roomID := domain.RoomID("lobby")
	connID := uuid.NewString()
	conns.Register(connID, "sleepy", &recordingSink{})
	_, err := conns.JoinRoom(connID, roomID)
	req.NoError(err)

	// When the sweep loop runs past the idle threshold
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_ = janitor.Run(ctx)

	// Then the connection was force-closed and its membership dropped
	req.Contains(closed, connID)
	req.Equal(0, registry.MemberCount(roomID))
	req.Equal(0, conns.Count())
}

func TestJanitor_Sweep_Evicts_Expired_Rooms(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(16, 20*time.Millisecond)
	conns := NewConnections(registry)
	queue := make(chan domain.Message, 8)
	router := NewRouter(slog.Default(), registry, conns, nil, observability.NewHealth(), queue, 100)
	janitor := NewJanitor(slog.Default(), registry, conns, router,
		10*time.Millisecond, time.Minute, nil)

	roomID := domain.RoomID("lobby")
	connID := uuid.NewString()
	conns.Register(connID, "alice", &recordingSink{})
	_, err := conns.JoinRoom(connID, roomID)
	req.NoError(err)
	registry.StampAndAppend(roomID, domain.Message{ID: uuid.New(), Room: roomID})
	conns.LeaveRoom(connID, roomID)

	// When the sweep loop runs past the grace period
	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	_ = janitor.Run(ctx)

	// Then the room and its buffer are gone
	req.Nil(registry.GetRecent(roomID, 0))
	req.Equal(0, registry.Stats().Rooms)
}
