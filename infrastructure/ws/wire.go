// Package ws is the WebSocket transport of the broker: one full-duplex
// connection per client, a JSON envelope in, typed server events out.
package ws

import (
	"darkroom/domain"
)

// ServerEvent is the frame pushed to clients. Type is one of "history",
// "presence", "message", "error".
type ServerEvent struct {
	Type        string           `json:"type"`
	Room        domain.RoomID    `json:"room,omitempty"`
	MemberCount int              `json:"member_count,omitempty"`
	Messages    []domain.Message `json:"messages,omitempty"`
	Message     *domain.Message  `json:"message,omitempty"`
	Reason      string           `json:"reason,omitempty"`
}

func historyEvent(room domain.RoomID, messages []domain.Message, memberCount int) ServerEvent {
	return ServerEvent{
		Type:        "history",
		Room:        room,
		Messages:    messages,
		MemberCount: memberCount,
	}
}

func presenceEvent(room domain.RoomID, memberCount int) ServerEvent {
	return ServerEvent{Type: "presence", Room: room, MemberCount: memberCount}
}

func messageEvent(msg domain.Message) ServerEvent {
	return ServerEvent{Type: "message", Room: msg.Room, Message: &msg}
}

func errorEvent(room domain.RoomID, reason string) ServerEvent {
	return ServerEvent{Type: "error", Room: room, Reason: reason}
}
