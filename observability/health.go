// Package observability aggregates the degraded-mode counters an operator
// can watch. Live fan-out keeps running while these grow.
package observability

import (
	"sync/atomic"
	"time"
)

// HealthStats is the snapshot served on the debug endpoint.
type HealthStats struct {
	MessagesAccepted  uint64 `json:"messages_accepted"`
	MessagesRejected  uint64 `json:"messages_rejected"`
	PersistFailures   uint64 `json:"persist_failures"`
	IndexFailures     uint64 `json:"index_failures"`
	HistoryTimeouts   uint64 `json:"history_timeouts"`
	DroppedDeliveries uint64 `json:"dropped_deliveries"`
	PersistQueueDrops uint64 `json:"persist_queue_drops"`
	StartedAt         string `json:"started_at"`
}

// Health holds atomic counters shared by the router, persister, history
// loader, and transport sinks.
type Health struct {
	messagesAccepted  uint64
	messagesRejected  uint64
	persistFailures   uint64
	indexFailures     uint64
	historyTimeouts   uint64
	droppedDeliveries uint64
	persistQueueDrops uint64
	startedAt         time.Time
}

func NewHealth() *Health {
	return &Health{startedAt: time.Now().UTC()}
}

func (h *Health) IncrAccepted()          { atomic.AddUint64(&h.messagesAccepted, 1) }
func (h *Health) IncrRejected()          { atomic.AddUint64(&h.messagesRejected, 1) }
func (h *Health) IncrPersistFailures()   { atomic.AddUint64(&h.persistFailures, 1) }
func (h *Health) IncrIndexFailures()     { atomic.AddUint64(&h.indexFailures, 1) }
func (h *Health) IncrHistoryTimeouts()   { atomic.AddUint64(&h.historyTimeouts, 1) }
func (h *Health) IncrDroppedDeliveries() { atomic.AddUint64(&h.droppedDeliveries, 1) }
func (h *Health) IncrPersistQueueDrops() { atomic.AddUint64(&h.persistQueueDrops, 1) }

// Degraded reports whether any persistence or history path has failed since
// start. It is a coarse signal; the individual counters tell the story.
func (h *Health) Degraded() bool {
	return atomic.LoadUint64(&h.persistFailures) > 0 ||
		atomic.LoadUint64(&h.indexFailures) > 0 ||
		atomic.LoadUint64(&h.historyTimeouts) > 0
}

func (h *Health) Snapshot() HealthStats {
	return HealthStats{
		MessagesAccepted:  atomic.LoadUint64(&h.messagesAccepted),
		MessagesRejected:  atomic.LoadUint64(&h.messagesRejected),
		PersistFailures:   atomic.LoadUint64(&h.persistFailures),
		IndexFailures:     atomic.LoadUint64(&h.indexFailures),
		HistoryTimeouts:   atomic.LoadUint64(&h.historyTimeouts),
		DroppedDeliveries: atomic.LoadUint64(&h.droppedDeliveries),
		PersistQueueDrops: atomic.LoadUint64(&h.persistQueueDrops),
		StartedAt:         h.startedAt.Format(time.RFC3339),
	}
}
