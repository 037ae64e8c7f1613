// Package event defines the domain events fanned out to connected sinks.
package event

import (
	"time"

	"darkroom/domain"
)

type DomainEvent interface {
	Name() string
	OccurredAt() time.Time
}

// MessageBroadcast carries one accepted message to every member of its room,
// sender included.
type MessageBroadcast struct {
	Message domain.Message
}

func (e MessageBroadcast) Name() string          { return "MessageBroadcast" }
func (e MessageBroadcast) OccurredAt() time.Time { return e.Message.CreatedAt }

// MemberCountChanged notifies room members after a join or leave.
type MemberCountChanged struct {
	Room        domain.RoomID
	MemberCount int
	At          time.Time
}

func (e MemberCountChanged) Name() string          { return "MemberCountChanged" }
func (e MemberCountChanged) OccurredAt() time.Time { return e.At }
