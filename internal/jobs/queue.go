package jobs

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jo-hoe/ytscribe/internal/common"
)

var (
	ErrQueueNotStarted = errors.New("queue not started")
	ErrQueueFull       = errors.New("queue is full")
	ErrQueueClosed     = errors.New("queue is shut down")
)

// WorkItem is a queued job plus an optional cleanup run after processing.
type WorkItem struct {
	Job     Job
	Cleanup func() error
}

// Processor runs one WorkItem to completion.
type Processor interface {
	Process(ctx context.Context, item WorkItem) error
}

// Queue is an in-memory bounded queue for asynchronous transcription jobs with a worker pool.
type Queue struct {
	log        *slog.Logger
	ch         chan WorkItem
	workers    int
	wg         sync.WaitGroup
	cancelOnce sync.Once
	cancel     context.CancelFunc
	started    bool
	closed     bool
	mu         sync.Mutex
}

// NewQueue creates a new Queue with the given capacity and worker count.
func NewQueue(logger *slog.Logger, capacity int, workers int) *Queue {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if capacity <= 0 {
		capacity = common.DefaultQueueCapacity
	}
	if workers <= 0 {
		workers = common.DefaultWorkerCount
	}
	return &Queue{
		log:     logger,
		ch:      make(chan WorkItem, capacity),
		workers: workers,
	}
}

// Start launches the workers. Jobs inherit ctx values but run until finished;
// Shutdown is what stops them.
func (q *Queue) Start(ctx context.Context, p Processor) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return errors.New("queue already started")
	}
	ctx, cancel := context.WithCancel(ctx)
	q.cancel = cancel
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, p, i)
	}
	q.started = true
	return nil
}

func (q *Queue) worker(ctx context.Context, p Processor, idx int) {
	defer q.wg.Done()
	log := q.log.With("worker", idx)
	for {
		select {
		case <-ctx.Done():
			log.Debug("worker stopping due to context cancellation")
			q.discard(log)
			return
		case item, ok := <-q.ch:
			if !ok {
				log.Debug("queue closed, worker exiting")
				return
			}
			q.run(ctx, p, log.With("job_id", item.Job.ID, "url", item.Job.URL), item)
		}
	}
}

func (q *Queue) run(ctx context.Context, p Processor, log *slog.Logger, item WorkItem) {
	log.Info("processing job")
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			log.Error("job processing panicked", "panic", r)
		}
		if item.Cleanup != nil {
			if err := item.Cleanup(); err != nil {
				log.Warn("cleanup failed", "err", err)
			}
		}
	}()
	if err := p.Process(ctx, item); err != nil {
		log.Error("job processing failed", "err", err, "duration", time.Since(start))
		return
	}
	log.Info("job processed", "duration", time.Since(start))
}

// discard releases items that will never run.
func (q *Queue) discard(log *slog.Logger) {
	for {
		var item WorkItem
		var ok bool
		select {
		case item, ok = <-q.ch:
			if !ok {
				return
			}
		default:
			return
		}
		log.Warn("dropping queued job on shutdown", "job_id", item.Job.ID)
		if item.Cleanup != nil {
			if err := item.Cleanup(); err != nil {
				log.Warn("cleanup failed", "job_id", item.Job.ID, "err", err)
			}
		}
	}
}

// Enqueue adds a WorkItem without blocking; a full queue is rejected.
func (q *Queue) Enqueue(item WorkItem) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	switch {
	case !q.started:
		return ErrQueueNotStarted
	case q.closed:
		return ErrQueueClosed
	}
	select {
	case q.ch <- item:
		return nil
	default:
		return ErrQueueFull
	}
}

// Pending is the number of items waiting for a worker.
func (q *Queue) Pending() int {
	return len(q.ch)
}

// Shutdown stops accepting work and waits for workers up to deadline (0 waits forever).
func (q *Queue) Shutdown(deadline time.Duration) {
	q.cancelOnce.Do(func() {
		q.mu.Lock()
		q.closed = true
		if q.cancel != nil {
			q.cancel()
		}
		close(q.ch)
		q.mu.Unlock()

		done := make(chan struct{})
		go func() {
			defer close(done)
			q.wg.Wait()
		}()

		if deadline <= 0 {
			<-done
			return
		}

		timer := time.NewTimer(deadline)
		defer timer.Stop()
		select {
		case <-done:
		case <-timer.C:
			q.log.Warn("queue shutdown deadline reached; workers may still be running")
		}
	})
}
