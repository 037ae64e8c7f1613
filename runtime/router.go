package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/abadojack/whatlanggo"
	"github.com/google/uuid"

	"darkroom/domain"
	"darkroom/domain/event"
	"darkroom/errors"
	"darkroom/moderation"
	"darkroom/observability"
)

// Router validates and fans out published messages. Acceptance, sequence
// assignment, and the buffer append are synchronous; only the durable write
// leaves the hot path, through the persist queue.
type Router struct {
	log          *slog.Logger
	registry     *Registry
	conns        *Connections
	moderator    *moderation.Moderator
	health       *observability.Health
	persistQueue chan<- domain.Message
	maxBodyLen   int
}

func NewRouter(log *slog.Logger, registry *Registry, conns *Connections,
	moderator *moderation.Moderator, health *observability.Health,
	persistQueue chan<- domain.Message, maxBodyLen int) *Router {
	return &Router{
		log:          log,
		registry:     registry,
		conns:        conns,
		moderator:    moderator,
		health:       health,
		persistQueue: persistQueue,
		maxBodyLen:   maxBodyLen,
	}
}

// Publish accepts a message from a connection into a room.
//
// Validation rejects empty-after-trim bodies, oversized bodies, and senders
// that are not members of the room (a client cannot inject into a room it
// hasn't joined). Accepted messages are stamped with the room's next
// sequence number, appended to the in-memory buffer, echoed to every member
// including the sender, and handed to the persister. A persistence failure
// never rolls back the broadcast.
func (r *Router) Publish(ctx context.Context, roomID domain.RoomID, senderConnID, body string) (domain.Message, error) {
	trimmed := strings.TrimSpace(body)
	if trimmed == "" {
		r.health.IncrRejected()
		return domain.Message{}, errors.ErrEmptyBody
	}
	if len(trimmed) > r.maxBodyLen {
		r.health.IncrRejected()
		return domain.Message{}, errors.ErrBodyTooLarge
	}
	if !r.registry.IsMember(roomID, senderConnID) {
		r.health.IncrRejected()
		return domain.Message{}, errors.ErrNotMember
	}
	alias, ok := r.conns.Alias(senderConnID)
	if !ok {
		r.health.IncrRejected()
		return domain.Message{}, errors.ErrUnknownConn
	}

	info := whatlanggo.Detect(trimmed)
	sanitized := trimmed
	if r.moderator != nil {
		var masked bool
		sanitized, masked = r.moderator.Censor(trimmed)
		if masked {
			r.log.Warn("Masked banned words in message",
				"room", roomID,
				"sender", alias,
				"lang", info.Lang.Iso6391())
		}
	}

	msg := domain.Message{
		ID:        uuid.New(),
		Room:      roomID,
		Sender:    alias,
		Body:      sanitized,
		Lang:      info.Lang.Iso6391(),
		CreatedAt: time.Now().UTC(),
	}
	msg = r.registry.StampAndAppend(roomID, msg)
	r.health.IncrAccepted()

	r.fanout(ctx, roomID, event.MessageBroadcast{Message: msg})
	r.enqueuePersist(msg)
	return msg, nil
}

// AnnouncePresence pushes the room's current member count to every member.
// Called by the transport after joins, leaves, and disconnect cascades.
func (r *Router) AnnouncePresence(ctx context.Context, roomID domain.RoomID) {
	count := r.registry.MemberCount(roomID)
	if count == 0 {
		return
	}
	r.fanout(ctx, roomID, event.MemberCountChanged{
		Room:        roomID,
		MemberCount: count,
		At:          time.Now().UTC(),
	})
}

// fanout delivers one event to all current member sinks. A failing sink
// only loses its own copy; it never affects another connection's delivery.
func (r *Router) fanout(ctx context.Context, roomID domain.RoomID, evt event.DomainEvent) {
	for _, sink := range r.conns.SinksForRoom(roomID) {
		if err := sink.Consume(ctx, evt); err != nil {
			r.health.IncrDroppedDeliveries()
			r.log.Debug(fmt.Sprintf("Delivery dropped for room %s", roomID), "error", err)
		}
	}
}

// enqueuePersist hands the message to the persister without ever blocking
// the fan-out. A full queue is counted and dropped; peers already have the
// message.
func (r *Router) enqueuePersist(msg domain.Message) {
	select {
	case r.persistQueue <- msg:
	default:
		r.health.IncrPersistQueueDrops()
		r.log.Warn("Persist queue full, dropping durable copy",
			"room", msg.Room, "seq", msg.Seq)
	}
}
