package runtime

import (
	"context"
	"log/slog"
	"time"

	"darkroom/contract"
	"darkroom/domain"
	"darkroom/observability"
)

// History rehydrates a joining client with recent room messages. The
// in-memory buffer is the fast path; the durable store is only consulted
// when the buffer holds fewer messages than asked for (typically right
// after a process restart). This is the only user-facing action that reads
// the store on the hot path.
type History struct {
	log          *slog.Logger
	registry     *Registry
	store        contract.IStore
	health       *observability.Health
	fetchTimeout time.Duration
}

func NewHistory(log *slog.Logger, registry *Registry, store contract.IStore,
	health *observability.Health, fetchTimeout time.Duration) *History {
	return &History{
		log:          log,
		registry:     registry,
		store:        store,
		health:       health,
		fetchTimeout: fetchTimeout,
	}
}

type storeResult struct {
	messages []domain.Message
	err      error
}

// LoadRecent returns up to limit messages in chronological order (oldest
// first, newest last). On a store timeout or failure it degrades to the
// in-memory buffer content; a join never fails because history is
// incomplete.
func (h *History) LoadRecent(ctx context.Context, roomID domain.RoomID, limit int) []domain.Message {
	buffered := h.registry.GetRecent(roomID, limit)
	if limit <= 0 || len(buffered) >= limit {
		return buffered
	}

	beforeSeq := h.registry.OldestBuffered(roomID)
	remainder := limit - len(buffered)

	older, ok := h.fetchWithTimeout(ctx, roomID, beforeSeq, remainder)
	if !ok || len(older) == 0 {
		return buffered
	}

	// Re-warm the buffer so the next join takes the fast path.
	h.registry.Rewarm(roomID, older)
	return append(older, buffered...)
}

// fetchWithTimeout queries the store in a goroutine so a slow disk can
// never block the join past the configured timeout.
func (h *History) fetchWithTimeout(ctx context.Context, roomID domain.RoomID, beforeSeq uint64, limit int) ([]domain.Message, bool) {
	result := make(chan storeResult, 1)
	go func() {
		messages, err := h.store.RecentMessages(roomID, beforeSeq, limit)
		result <- storeResult{messages: messages, err: err}
	}()

	timer := time.NewTimer(h.fetchTimeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, false
	case <-timer.C:
		h.health.IncrHistoryTimeouts()
		h.log.Warn("History fetch timed out, serving in-memory buffer only",
			"room", roomID, "timeout", h.fetchTimeout)
		return nil, false
	case res := <-result:
		if res.err != nil {
			h.health.IncrHistoryTimeouts()
			h.log.Error("History fetch failed", "room", roomID, "error", res.err)
			return nil, false
		}
		return res.messages, true
	}
}
