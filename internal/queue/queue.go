// Package queue implements the Work Queue + Reconciler: a bounded FIFO of
// paths awaiting (re)indexing, and the logic that decides which watcher
// events turn into work.
package queue

import (
	"context"
	"sync"
)

// Queue is a bounded FIFO of absolute paths with built-in dedup: a path
// already queued or already being processed is never queued twice.
// Exactly-one-concurrent-build-per-path is enforced by the processing set.
type Queue struct {
	capacity int

	mu         sync.Mutex
	items      []string
	queued     map[string]struct{}
	processing map[string]struct{}
	paused     bool
	notEmpty   *sync.Cond
}

// New constructs a Queue bounded at capacity. A non-positive capacity means
// unbounded.
func New(capacity int) *Queue {
	q := &Queue{
		capacity:   capacity,
		queued:     make(map[string]struct{}),
		processing: make(map[string]struct{}),
	}
	q.notEmpty = sync.NewCond(&q.mu)
	return q
}

// Enqueue adds path to the back of the queue. Returns false without error if
// path is already queued, already processing, or the queue is at capacity.
func (q *Queue) Enqueue(path string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.queued[path]; ok {
		return false
	}
	if _, ok := q.processing[path]; ok {
		return false
	}
	if q.capacity > 0 && len(q.items) >= q.capacity {
		return false
	}

	q.items = append(q.items, path)
	q.queued[path] = struct{}{}
	q.notEmpty.Signal()
	return true
}

// Dequeue blocks until a path is available and the queue is not paused, then
// removes it from the queue and marks it processing. Returns false if ctx is
// done first.
func (q *Queue) Dequeue(ctx context.Context) (string, bool) {
	done := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		close(done)
		q.mu.Lock()
		q.notEmpty.Broadcast()
		q.mu.Unlock()
	})
	defer stop()

	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) == 0 || q.paused {
		select {
		case <-done:
			return "", false
		default:
		}
		q.notEmpty.Wait()
		select {
		case <-done:
			return "", false
		default:
		}
	}

	path := q.items[0]
	q.items = q.items[1:]
	delete(q.queued, path)
	q.processing[path] = struct{}{}
	return path, true
}

// Complete marks path as no longer being processed, allowing it to be
// re-enqueued.
func (q *Queue) Complete(path string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.processing, path)
}

// Pause stops Dequeue from returning new work until Resume is called.
// In-flight work (already dequeued) is unaffected.
func (q *Queue) Pause() {
	q.mu.Lock()
	q.paused = true
	q.mu.Unlock()
}

// Resume allows Dequeue to return work again.
func (q *Queue) Resume() {
	q.mu.Lock()
	q.paused = false
	q.notEmpty.Broadcast()
	q.mu.Unlock()
}

// Paused reports whether the queue is currently paused.
func (q *Queue) Paused() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.paused
}

// Len returns the number of paths currently queued (not counting those
// in-flight).
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Processing returns the number of paths currently being processed.
func (q *Queue) Processing() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.processing)
}

// IsProcessing reports whether path is currently marked in-processing.
func (q *Queue) IsProcessing(path string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.processing[path]
	return ok
}

// IsQueued reports whether path is currently sitting in the FIFO.
func (q *Queue) IsQueued(path string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.queued[path]
	return ok
}
