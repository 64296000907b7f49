package jobs

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type noopProcessor struct {
	count int32
	fail  bool
	panic bool
}

func (p *noopProcessor) Process(ctx context.Context, item WorkItem) error {
	atomic.AddInt32(&p.count, 1)
	if p.panic {
		panic("boom")
	}
	if p.fail {
		return errors.New("fail")
	}
	return nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

const waitTimeout = 2 * time.Second

func TestQueue_StartEnqueueShutdown(t *testing.T) {
	q := NewQueue(quietLogger(), 2, 1)
	p := &noopProcessor{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, q.Start(ctx, p))

	var cleaned int32
	item := WorkItem{Job: Job{ID: "1700000000000", URL: "https://youtu.be/x"}, Cleanup: func() error {
		atomic.AddInt32(&cleaned, 1)
		return nil
	}}
	require.NoError(t, q.Enqueue(item))

	require.Eventually(t, func() bool { return atomic.LoadInt32(&cleaned) == 1 }, waitTimeout, 5*time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&p.count))

	q.Shutdown(waitTimeout)
	assert.ErrorIs(t, q.Enqueue(item), ErrQueueClosed)
}

func TestQueue_CleanupRunsOnFailureAndPanic(t *testing.T) {
	for name, p := range map[string]*noopProcessor{"fail": {fail: true}, "panic": {panic: true}} {
		t.Run(name, func(t *testing.T) {
			q := NewQueue(quietLogger(), 1, 1)
			require.NoError(t, q.Start(context.Background(), p))
			defer q.Shutdown(time.Second)

			var cleaned atomic.Bool
			require.NoError(t, q.Enqueue(WorkItem{Job: Job{ID: "a"}, Cleanup: func() error {
				cleaned.Store(true)
				return nil
			}}))
			assert.Eventually(t, cleaned.Load, waitTimeout, 5*time.Millisecond)
		})
	}
}

func TestQueue_EnqueueBeforeStartFails(t *testing.T) {
	q := NewQueue(quietLogger(), 1, 1)
	assert.ErrorIs(t, q.Enqueue(WorkItem{Job: Job{ID: "x"}}), ErrQueueNotStarted)
}

type blockingProcessor struct{ release chan struct{} }

func (b *blockingProcessor) Process(ctx context.Context, item WorkItem) error {
	<-b.release
	return nil
}

func TestQueue_FullIsRejected(t *testing.T) {
	q := NewQueue(quietLogger(), 1, 1)
	p := &blockingProcessor{release: make(chan struct{})}
	require.NoError(t, q.Start(context.Background(), p))

	// First item occupies the worker, second fills the buffer.
	require.NoError(t, q.Enqueue(WorkItem{Job: Job{ID: "1"}}))
	require.Eventually(t, func() bool { return q.Pending() == 0 }, waitTimeout, 5*time.Millisecond)
	require.NoError(t, q.Enqueue(WorkItem{Job: Job{ID: "2"}}))
	assert.ErrorIs(t, q.Enqueue(WorkItem{Job: Job{ID: "3"}}), ErrQueueFull)

	close(p.release)
	q.Shutdown(waitTimeout)
}
