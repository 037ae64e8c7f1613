package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"darkroom/domain"
	"darkroom/domain/event"
	"darkroom/errors"
	"darkroom/moderation"
	"darkroom/observability"
)

// recordingSink keeps every delivered event. Publish fans out
// synchronously, so no locking is needed here.
type recordingSink struct {
	events []event.DomainEvent
	fail   bool
}

func (s *recordingSink) Consume(ctx context.Context, e event.DomainEvent) error {
	if s.fail {
		return fmt.Errorf("sink unavailable")
	}
	s.events = append(s.events, e)
	return nil
}

func (s *recordingSink) messages() []domain.Message {
	var out []domain.Message
	for _, e := range s.events {
		if broadcast, ok := e.(event.MessageBroadcast); ok {
			out = append(out, broadcast.Message)
		}
	}
	return out
}

type routerFixture struct {
	registry *Registry
	conns    *Connections
	router   *Router
	health   *observability.Health
	queue    chan domain.Message
}

func newRouterFixture(t *testing.T, queueSize int) *routerFixture {
	t.Helper()
	registry := NewRegistry(16, time.Minute)
	conns := NewConnections(registry)
	health := observability.NewHealth()
	queue := make(chan domain.Message, queueSize)
	router := NewRouter(slog.Default(), registry, conns, nil, health, queue, 100)
	return &routerFixture{registry: registry, conns: conns, router: router, health: health, queue: queue}
}

func (f *routerFixture) join(t *testing.T, alias string, roomID domain.RoomID, sink *recordingSink) string {
	t.Helper()
	connID := uuid.NewString()
	f.conns.Register(connID, alias, sink)
	if _, err := f.conns.JoinRoom(connID, roomID); err != nil {
		t.Fatal(err)
	}
	return connID
}

func TestRouter_Publish_Reaches_All_Members_Including_Sender(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t, 8)
	roomID := domain.RoomID("lobby")
	aliceSink := &recordingSink{}
	bobSink := &recordingSink{}
	alice := f.join(t, "alice", roomID, aliceSink)
	f.join(t, "bob", roomID, bobSink)

	// When alice publishes
	msg, err := f.router.Publish(context.Background(), roomID, alice, "hello there")

	// Then both members got the same stamped message
	req.NoError(err)
	req.Equal(uint64(1), msg.Seq)
	req.Equal("alice", msg.Sender)
	req.Len(aliceSink.messages(), 1)
	req.Len(bobSink.messages(), 1)
	req.Equal(msg, aliceSink.messages()[0])

	// And the persister got its copy
	req.Len(f.queue, 1)
}

func TestRouter_Publish_Rejects_Empty_Body(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t, 8)
	roomID := domain.RoomID("lobby")
	sink := &recordingSink{}
	alice := f.join(t, "alice", roomID, sink)

	// When the body is whitespace only
	_, err := f.router.Publish(context.Background(), roomID, alice, "   \n\t ")

	// Then nothing is delivered or buffered
	req.ErrorIs(err, errors.ErrEmptyBody)
	req.Empty(sink.messages())
	req.Empty(f.registry.GetRecent(roomID, 0))
	req.Equal(uint64(1), f.health.Snapshot().MessagesRejected)
}

func TestRouter_Publish_Rejects_Oversized_Body(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t, 8)
	roomID := domain.RoomID("lobby")
	alice := f.join(t, "alice", roomID, &recordingSink{})

	_, err := f.router.Publish(context.Background(), roomID, alice, strings.Repeat("x", 101))

	req.ErrorIs(err, errors.ErrBodyTooLarge)
}

func TestRouter_Publish_Rejects_Non_Member(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t, 8)
	roomID := domain.RoomID("lobby")
	sink := &recordingSink{}
	f.join(t, "alice", roomID, sink)

	// Given a connection that never joined the room
	outsider := uuid.NewString()
	f.conns.Register(outsider, "mallory", &recordingSink{})

	// When it tries to inject a message
	_, err := f.router.Publish(context.Background(), roomID, outsider, "let me in")

	// Then the room never sees it
	req.ErrorIs(err, errors.ErrNotMember)
	req.Empty(sink.messages())
}

func TestRouter_Publish_Orders_Messages_Per_Room(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t, 32)
	roomID := domain.RoomID("lobby")
	sink := &recordingSink{}
	alice := f.join(t, "alice", roomID, sink)

	// When several messages are published in order
	for i := 0; i < 5; i++ {
		_, err := f.router.Publish(context.Background(), roomID, alice, fmt.Sprintf("msg %d", i))
		req.NoError(err)
	}

	// Then every member observes the same contiguous sequence
	delivered := sink.messages()
	req.Len(delivered, 5)
	for i, msg := range delivered {
		req.Equal(uint64(i+1), msg.Seq)
	}
}

func TestRouter_Publish_Independent_Sequences_Per_Room(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t, 32)
	alice := f.join(t, "alice", "lobby", &recordingSink{})
	_, err := f.conns.JoinRoom(alice, "random")
	req.NoError(err)

	// When the same sender publishes into two rooms
	first, err := f.router.Publish(context.Background(), "lobby", alice, "one")
	req.NoError(err)
	second, err := f.router.Publish(context.Background(), "random", alice, "two")
	req.NoError(err)

	// Then each room numbers from its own counter
	req.Equal(uint64(1), first.Seq)
	req.Equal(uint64(1), second.Seq)
}

func TestRouter_Publish_Failing_Sink_Does_Not_Affect_Peers(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t, 8)
	roomID := domain.RoomID("lobby")
	deadSink := &recordingSink{fail: true}
	liveSink := &recordingSink{}
	alice := f.join(t, "alice", roomID, deadSink)
	f.join(t, "bob", roomID, liveSink)

	// When alice publishes through her broken sink
	_, err := f.router.Publish(context.Background(), roomID, alice, "anyone there?")

	// Then bob still receives the message and the drop is counted
	req.NoError(err)
	req.Len(liveSink.messages(), 1)
	req.Equal(uint64(1), f.health.Snapshot().DroppedDeliveries)
}

func TestRouter_Publish_Full_Persist_Queue_Drops_Durable_Copy(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t, 1)
	roomID := domain.RoomID("lobby")
	sink := &recordingSink{}
	alice := f.join(t, "alice", roomID, sink)

	// Given the persist queue is already full
	_, err := f.router.Publish(context.Background(), roomID, alice, "first")
	req.NoError(err)

	// When another message arrives before the persister drains
	_, err = f.router.Publish(context.Background(), roomID, alice, "second")

	// Then delivery still succeeds and the drop is counted
	req.NoError(err)
	req.Len(sink.messages(), 2)
	req.Equal(uint64(1), f.health.Snapshot().PersistQueueDrops)
}

func TestRouter_Publish_Masks_Banned_Words(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(16, time.Minute)
	conns := NewConnections(registry)
	health := observability.NewHealth()
	queue := make(chan domain.Message, 8)
	moderator, err := moderation.NewModerator([]string{"skooma"}, '*')
	req.NoError(err)
	router := NewRouter(slog.Default(), registry, conns, &moderator, health, queue, 100)

	roomID := domain.RoomID("lobby")
	sink := &recordingSink{}
	connID := uuid.NewString()
	conns.Register(connID, "alice", sink)
	_, err = conns.JoinRoom(connID, roomID)
	req.NoError(err)

	// When a banned word is published
	msg, err := router.Publish(context.Background(), roomID, connID, "anyone selling skooma here?")

	// Then the stored and delivered body is masked
	req.NoError(err)
	req.NotContains(msg.Body, "skooma")
	req.Contains(msg.Body, "******")
	req.Equal(msg.Body, sink.messages()[0].Body)
}

func TestRouter_AnnouncePresence_Broadcasts_Member_Count(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t, 8)
	roomID := domain.RoomID("lobby")
	sink := &recordingSink{}
	f.join(t, "alice", roomID, sink)
	f.join(t, "bob", roomID, &recordingSink{})

	// When presence is announced
	f.router.AnnouncePresence(context.Background(), roomID)

	// Then members receive the derived count
	req.Len(sink.events, 1)
	presence, ok := sink.events[0].(event.MemberCountChanged)
	req.True(ok)
	req.Equal(2, presence.MemberCount)
	req.Equal(roomID, presence.Room)
}
