// Package domain contains core concepts of the darkroom messaging system.
// This file defines Message records and related rules.
// Messages are immutable once accepted by the router.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Message is one accepted chat message. Seq is monotonic per room and is
// the only ordering authority; clients use it to detect gaps after a
// reconnect.
type Message struct {
	ID        uuid.UUID `json:"id"`
	Room      RoomID    `json:"room"`
	Sender    string    `json:"sender"`
	Body      string    `json:"body"`
	Lang      string    `json:"lang,omitempty"`
	Seq       uint64    `json:"seq"`
	CreatedAt time.Time `json:"created_at"`
}
