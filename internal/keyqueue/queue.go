// Package keyqueue serializes operations that share a key.
//
// Each key owns a lane holding the completion signal of the last operation
// scheduled for it. A new operation swaps itself in as the lane's tail, waits
// for the previous tail, runs, and signals. Operations on one key therefore
// run one at a time in enqueue order, while distinct keys never wait on each
// other. A lane is dropped when its last operation finishes.
//
//	q := keyqueue.New()
//	sess, err := keyqueue.Run(ctx, q, userID, func(ctx context.Context) (*Session, error) {
//		doc, err := store.Load(ctx, userID)
//		...
//		return sess, store.Save(ctx, userID, doc)
//	})
package keyqueue

import (
	"context"
	"fmt"
	"log"
	"runtime/debug"
	"sync"
	"time"

	"focus-keeper/internal/apperr"
	"focus-keeper/internal/metrics"
)

type lane struct {
	tail    chan struct{}
	pending int
}

// Queue is safe for concurrent use. The zero value is not usable; call New.
type Queue struct {
	mu    sync.Mutex
	lanes map[string]*lane
	name  string
}

type Option func(*Queue)

// WithName labels log lines from this queue.
func WithName(name string) Option {
	return func(q *Queue) { q.name = name }
}

func New(opts ...Option) *Queue {
	q := &Queue{lanes: make(map[string]*lane), name: "keyqueue"}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Run schedules op after every operation previously scheduled for key and
// returns its result once it has finished.
//
// If ctx ends before op is admitted, Run returns ctx.Err() and op never runs.
// Once admitted, op runs to completion with a context that ignores the
// caller's cancellation. A panic in op is recovered and returned as an
// internal error; either way the key is released for the next operation.
func Run[T any](ctx context.Context, q *Queue, key string, op func(context.Context) (T, error)) (T, error) {
	var zero T
	prev, done := q.enqueue(key)
	enqueued := time.Now()

	if prev != nil {
		select {
		case <-prev:
		case <-ctx.Done():
			// keep the chain intact: our slot is released only after prev
			go func() {
				<-prev
				q.release(key, done)
			}()
			metrics.QueueOpsTotal.WithLabelValues("canceled").Inc()
			return zero, ctx.Err()
		}
	} else if err := ctx.Err(); err != nil {
		q.release(key, done)
		metrics.QueueOpsTotal.WithLabelValues("canceled").Inc()
		return zero, err
	}
	metrics.QueueWaitDuration.Observe(time.Since(enqueued).Seconds())

	admitted := time.Now()
	defer func() {
		metrics.QueueRunDuration.Observe(time.Since(admitted).Seconds())
		q.release(key, done)
	}()
	return call(context.WithoutCancel(ctx), q, key, op)
}

// Do is Run for operations without a result value.
func (q *Queue) Do(ctx context.Context, key string, op func(context.Context) error) error {
	_, err := Run(ctx, q, key, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// Lanes returns the number of keys with scheduled work.
func (q *Queue) Lanes() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.lanes)
}

func (q *Queue) enqueue(key string) (prev <-chan struct{}, done chan struct{}) {
	done = make(chan struct{})
	q.mu.Lock()
	defer q.mu.Unlock()
	l, ok := q.lanes[key]
	if !ok {
		l = &lane{}
		q.lanes[key] = l
		metrics.QueueLanes.Inc()
	}
	if l.tail != nil {
		prev = l.tail
	}
	l.tail = done
	l.pending++
	metrics.QueuePending.Inc()
	return prev, done
}

func (q *Queue) release(key string, done chan struct{}) {
	close(done)
	q.mu.Lock()
	defer q.mu.Unlock()
	metrics.QueuePending.Dec()
	l := q.lanes[key]
	l.pending--
	if l.pending == 0 {
		delete(q.lanes, key)
		metrics.QueueLanes.Dec()
	}
}

func call[T any](ctx context.Context, q *Queue, key string, op func(context.Context) (T, error)) (res T, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("%s: operation for key %q panicked: %v\n%s", q.name, key, r, debug.Stack())
			metrics.QueueOpsTotal.WithLabelValues("panic").Inc()
			err = apperr.Internal("queued operation", fmt.Errorf("panic: %v", r))
		}
	}()
	res, err = op(ctx)
	if err != nil {
		switch apperr.KindOf(err) {
		case apperr.KindValidation, apperr.KindConflict:
		default:
			log.Printf("%s: operation for key %q failed: %v", q.name, key, err)
		}
		metrics.QueueOpsTotal.WithLabelValues("error").Inc()
		return res, err
	}
	metrics.QueueOpsTotal.WithLabelValues("ok").Inc()
	return res, nil
}
