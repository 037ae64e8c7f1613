package workers

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"darkroom/domain"
	"darkroom/mocks"
	"darkroom/observability"
)

func TestPersister_Stores_Then_Indexes(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	store := mocks.NewMockIStore(ctrl)
	index := mocks.NewMockIIndex(ctrl)

	msg := domain.Message{ID: uuid.New(), Room: "lobby", Seq: 1, Body: "hello"}
	stored := make(chan struct{})
	store.EXPECT().StoreMessage(msg).Return(nil).Times(1)
	index.EXPECT().IndexMessage(msg).DoAndReturn(func(domain.Message) error {
		close(stored)
		return nil
	}).Times(1)

	queue := make(chan domain.Message, 1)
	queue <- msg
	persister := NewPersister(slog.Default(), queue, store, index, observability.NewHealth())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = persister.Run(ctx)
		close(done)
	}()

	// When the message reaches both sinks
	select {
	case <-stored:
	case <-time.After(time.Second):
		req.Fail("message never reached the index")
	}
	cancel()
	<-done
}

func TestPersister_Store_Failure_Skips_Index(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	store := mocks.NewMockIStore(ctrl)
	index := mocks.NewMockIIndex(ctrl)

	msg := domain.Message{ID: uuid.New(), Room: "lobby", Seq: 1}
	store.EXPECT().StoreMessage(msg).Return(fmt.Errorf("disk full")).Times(1)
	// No IndexMessage expectation: search must not surface what the log
	// doesn't have.

	queue := make(chan domain.Message, 1)
	queue <- msg
	health := observability.NewHealth()
	persister := NewPersister(slog.Default(), queue, store, index, health)

	// When the queue is drained during shutdown
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := persister.Run(ctx)

	// Then the failure is counted, not propagated
	req.ErrorIs(err, context.Canceled)
	req.Equal(uint64(1), health.Snapshot().PersistFailures)
	req.True(health.Degraded())
}

func TestPersister_Drains_Queue_On_Shutdown(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	store := mocks.NewMockIStore(ctrl)
	index := mocks.NewMockIIndex(ctrl)

	queue := make(chan domain.Message, 4)
	for i := 0; i < 4; i++ {
		queue <- domain.Message{ID: uuid.New(), Room: "lobby", Seq: uint64(i + 1)}
	}
	store.EXPECT().StoreMessage(gomock.Any()).Return(nil).Times(4)
	index.EXPECT().IndexMessage(gomock.Any()).Return(nil).Times(4)

	persister := NewPersister(slog.Default(), queue, store, index, observability.NewHealth())

	// When Run starts with an already canceled context
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := persister.Run(ctx)

	// Then every queued message still reached disk
	req.ErrorIs(err, context.Canceled)
	req.Empty(queue)
}
