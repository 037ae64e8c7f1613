package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Janitor reclaims ephemeral state. It runs on two triggers: explicit
// disconnect events forwarded by the transport, and a periodic sweep that
// force-closes idle connections and evicts rooms whose grace period has
// elapsed. Member removal happens immediately on disconnect; room eviction
// waits out the grace window so a quick reconnect keeps the buffer.
type Janitor struct {
	log           *slog.Logger
	registry      *Registry
	conns         *Connections
	router        *Router
	sweepInterval time.Duration
	idleThreshold time.Duration
	// closeConn asks the transport to close the underlying socket of an
	// idle connection. May be nil in tests.
	closeConn func(connID string)
}

func NewJanitor(log *slog.Logger, registry *Registry, conns *Connections,
	router *Router, sweepInterval, idleThreshold time.Duration,
	closeConn func(connID string)) *Janitor {
	return &Janitor{
		log:           log,
		registry:      registry,
		conns:         conns,
		router:        router,
		sweepInterval: sweepInterval,
		idleThreshold: idleThreshold,
		closeConn:     closeConn,
	}
}

// HandleDisconnect removes the connection from every joined room and tells
// the remaining members about the new counts. Idempotent: the transport's
// close event and an explicit leaving event may both land here.
func (j *Janitor) HandleDisconnect(ctx context.Context, connID string) {
	left := j.conns.Disconnect(connID)
	for _, roomID := range left {
		j.router.AnnouncePresence(ctx, roomID)
	}
	if len(left) > 0 {
		j.log.Debug(fmt.Sprintf("Connection %s left %d room(s)", connID, len(left)))
	}
}

// Run is the periodic sweep loop, started under the supervisor at process
// init and stopped by context cancellation at shutdown.
func (j *Janitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(j.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			j.log.Debug("Stopping janitor")
			return ctx.Err()
		case now := <-ticker.C:
			j.sweepIdle(ctx, now)
			j.sweepRooms(now)
		}
	}
}

// sweepIdle force-disconnects connections whose last activity exceeds the
// idle threshold.
func (j *Janitor) sweepIdle(ctx context.Context, now time.Time) {
	for _, connID := range j.conns.IdleConnections(j.idleThreshold, now) {
		j.log.Info("Disconnecting idle connection", "conn", connID)
		j.HandleDisconnect(ctx, connID)
		if j.closeConn != nil {
			j.closeConn(connID)
		}
	}
}

// sweepRooms evicts empty rooms whose grace period has elapsed, freeing
// their buffers.
func (j *Janitor) sweepRooms(now time.Time) {
	for _, roomID := range j.registry.SweepExpired(now) {
		j.log.Info("Evicted empty room", "room", roomID)
	}
}
