package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/splitkeeper/go/internal/notify"
)

type QueueConfig struct {
	MaxRetries int
	RetryDelay time.Duration
}

func DefaultQueueConfig() QueueConfig {
	return QueueConfig{
		MaxRetries: 2,
		RetryDelay: 500 * time.Millisecond,
	}
}

// Job is one queued storage write.
type Job struct {
	Name string
	// Failure is the user-facing message shown when the job gives up.
	Failure string
	Run     func(ctx context.Context) error
}

// WriteQueue runs storage writes on a single goroutine in the order they
// were enqueued. Enqueue never blocks, so timer operations are never held up
// by storage I/O. Failures are reported through the notifier.
type WriteQueue struct {
	notifier notify.Notifier
	config   QueueConfig

	mu      sync.Mutex
	pending []Job
	running bool
	closed  bool
	wake    chan struct{}
	idle    *sync.Cond
	busy    bool
	wg      sync.WaitGroup
}

func NewWriteQueue(notifier notify.Notifier, cfg QueueConfig) *WriteQueue {
	q := &WriteQueue{
		notifier: notifier,
		config:   cfg,
		wake:     make(chan struct{}, 1),
	}
	q.idle = sync.NewCond(&q.mu)
	return q
}

// Start launches the queue goroutine. It exits when ctx is cancelled or
// Stop is called.
func (q *WriteQueue) Start(ctx context.Context) error {
	q.mu.Lock()
	if q.running {
		q.mu.Unlock()
		return fmt.Errorf("write queue already running")
	}
	q.running = true
	q.mu.Unlock()

	q.wg.Add(1)
	go q.run(ctx)

	log.Info().Msg("storage write queue started")
	return nil
}

// Stop drains the remaining jobs and stops the goroutine.
func (q *WriteQueue) Stop() error {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return fmt.Errorf("write queue not running")
	}
	q.running = false
	q.closed = true
	q.mu.Unlock()

	q.signal()
	q.wg.Wait()

	log.Info().Msg("storage write queue stopped")
	return nil
}

// Enqueue appends a job. It reports false once the queue has been stopped.
func (q *WriteQueue) Enqueue(job Job) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		log.Warn().Str("job", job.Name).Msg("write queue stopped, dropping job")
		return false
	}
	q.pending = append(q.pending, job)
	q.mu.Unlock()

	q.signal()
	return true
}

// Flush blocks until every job enqueued so far has finished. The queue
// must have been started.
func (q *WriteQueue) Flush() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.pending) > 0 || q.busy {
		q.idle.Wait()
	}
}

func (q *WriteQueue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *WriteQueue) next() (Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		q.busy = false
		q.idle.Broadcast()
		return Job{}, false
	}
	job := q.pending[0]
	q.pending[0] = Job{}
	q.pending = q.pending[1:]
	q.busy = true
	return job, true
}

func (q *WriteQueue) run(ctx context.Context) {
	defer q.wg.Done()
	defer func() {
		q.mu.Lock()
		q.busy = false
		q.idle.Broadcast()
		q.mu.Unlock()
	}()

	for {
		for {
			job, ok := q.next()
			if !ok {
				break
			}
			q.process(ctx, job)
		}

		q.mu.Lock()
		closed, pending := q.closed, len(q.pending)
		q.mu.Unlock()
		if closed && pending == 0 {
			return
		}
		if pending > 0 {
			continue
		}

		select {
		case <-ctx.Done():
			q.mu.Lock()
			q.closed = true
			dropped := len(q.pending)
			q.pending = nil
			q.mu.Unlock()
			if dropped > 0 {
				log.Warn().Int("jobs", dropped).Msg("write queue cancelled with pending jobs")
			}
			return
		case <-q.wake:
		}
	}
}

func (q *WriteQueue) process(ctx context.Context, job Job) {
	var lastErr error
	for attempt := 0; attempt <= q.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				q.fail(job, ctx.Err())
				return
			case <-time.After(q.config.RetryDelay * time.Duration(attempt)):
			}
		}

		if lastErr = job.Run(ctx); lastErr == nil {
			log.Debug().Str("job", job.Name).Msg("storage write done")
			return
		}
		log.Warn().Err(lastErr).Str("job", job.Name).Int("attempt", attempt+1).Msg("storage write failed")
	}
	q.fail(job, lastErr)
}

func (q *WriteQueue) fail(job Job, err error) {
	msg := job.Failure
	if msg == "" {
		msg = "Failed to save."
	}
	q.notifier.Error(msg, err)
}
