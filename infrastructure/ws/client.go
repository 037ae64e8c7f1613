package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"darkroom/domain/event"
)

const (
	// writeWait is the deadline for a single frame write.
	writeWait = 10 * time.Second
	// pongWait is how long a connection may stay silent before the read
	// side gives up on it.
	pongWait = 60 * time.Second
	// pingPeriod must be shorter than pongWait.
	pingPeriod = 54 * time.Second
	// sendBuffer bounds the per-client outbound queue. A client that is
	// this far behind loses events instead of stalling the fan-out.
	sendBuffer = 256
)

// Client is one upgraded WebSocket connection. It satisfies
// contract.EventSink: the router hands it domain events, the write pump
// flushes them as JSON frames.
type Client struct {
	log   *slog.Logger
	id    string
	alias string
	conn  *websocket.Conn
	send  chan []byte

	closeOnce sync.Once
}

func newClient(log *slog.Logger, id, alias string, conn *websocket.Conn) *Client {
	return &Client{
		log:   log,
		id:    id,
		alias: alias,
		conn:  conn,
		send:  make(chan []byte, sendBuffer),
	}
}

// Consume translates a domain event into a wire frame and enqueues it.
// It never blocks: a full send queue is reported as an error so the
// router can count the dropped delivery.
func (c *Client) Consume(_ context.Context, e event.DomainEvent) error {
	var frame ServerEvent
	switch ev := e.(type) {
	case event.MessageBroadcast:
		frame = messageEvent(ev.Message)
	case event.MemberCountChanged:
		frame = presenceEvent(ev.Room, ev.MemberCount)
	default:
		return fmt.Errorf("unhandled event %q", e.Name())
	}
	return c.enqueue(frame)
}

// enqueue serializes and queues a frame without blocking.
func (c *Client) enqueue(frame ServerEvent) error {
	payload, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("marshalling %s frame: %w", frame.Type, err)
	}
	select {
	case c.send <- payload:
		return nil
	default:
		return fmt.Errorf("send queue full for connection %s", c.id)
	}
}

// writePump flushes queued frames and keeps the connection alive with
// pings. It owns all writes on the connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case payload := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.log.Debug("write failed", "conn_id", c.id, "error", err)
				return
			}
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// close tears the socket down exactly once. Safe to call from both pumps
// and from the janitor.
func (c *Client) close() {
	c.closeOnce.Do(func() {
		_ = c.conn.Close()
	})
}
