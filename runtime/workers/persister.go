package workers

import (
	"context"
	"log/slog"

	"darkroom/contract"
	"darkroom/domain"
	"darkroom/observability"
)

// Persister drains accepted messages from the router's queue into the
// durable store and the search index. It runs off the hot path: a write
// failure is counted and logged, never propagated back to the fan-out,
// which already delivered the message to connected peers.
type Persister struct {
	log    *slog.Logger
	queue  <-chan domain.Message
	store  contract.IStore
	index  contract.IIndex
	health *observability.Health
}

func NewPersister(log *slog.Logger, queue <-chan domain.Message,
	store contract.IStore, index contract.IIndex,
	health *observability.Health) *Persister {
	return &Persister{
		log:    log,
		queue:  queue,
		store:  store,
		index:  index,
		health: health,
	}
}

func (p *Persister) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			p.drain()
			return ctx.Err()
		case msg, ok := <-p.queue:
			if !ok {
				return nil
			}
			p.persist(msg)
		}
	}
}

// drain gives queued messages a last chance to reach disk during shutdown.
func (p *Persister) drain() {
	for {
		select {
		case msg := <-p.queue:
			p.persist(msg)
		default:
			return
		}
	}
}

func (p *Persister) persist(msg domain.Message) {
	if err := p.store.StoreMessage(msg); err != nil {
		p.health.IncrPersistFailures()
		p.log.Error("Failed to persist message",
			"room", msg.Room, "seq", msg.Seq, "error", err)
		// Don't index what isn't stored; search must not surface
		// messages the log doesn't have.
		return
	}
	if p.index == nil {
		return
	}
	if err := p.index.IndexMessage(msg); err != nil {
		p.health.IncrIndexFailures()
		p.log.Warn("Failed to index message",
			"room", msg.Room, "seq", msg.Seq, "error", err)
	}
}
