// Package writebehind collapses bursts of low-stakes writes (grocery-list
// checkbox toggles and the like) into one persisted write per key after a
// quiet period. Last write wins; intermediate values are never persisted.
package writebehind

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const defaultFlushTimeout = 10 * time.Second

// FlushFunc persists the latest value for a key.
type FlushFunc[V any] func(ctx context.Context, key string, value V) error

// Queue is a per-key debounced writer.
type Queue[V any] struct {
	quiet time.Duration
	flush FlushFunc[V]

	mu      sync.Mutex
	pending map[string]V
	timers  map[string]*time.Timer
	closed  bool

	wg sync.WaitGroup
}

// New builds a Queue that persists a key's latest value once the key has
// been quiet for the given duration.
func New[V any](quiet time.Duration, flush FlushFunc[V]) *Queue[V] {
	return &Queue[V]{
		quiet:   quiet,
		flush:   flush,
		pending: make(map[string]V),
		timers:  make(map[string]*time.Timer),
	}
}

// Put records the latest value for key and restarts its quiet timer.
// Calls after Close are dropped.
func (q *Queue[V]) Put(key string, value V) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.pending[key] = value
	if t, ok := q.timers[key]; ok {
		t.Stop()
	}
	q.timers[key] = time.AfterFunc(q.quiet, func() { q.flushKey(key) })
}

// flushKey registers the write on the WaitGroup while still holding the
// mutex: a timer firing concurrently with Close must not Add after Close
// has started waiting.
func (q *Queue[V]) flushKey(key string) {
	q.mu.Lock()
	value, ok := q.pending[key]
	if ok {
		delete(q.pending, key)
		delete(q.timers, key)
		q.wg.Add(1)
	}
	q.mu.Unlock()
	if !ok {
		return
	}
	q.write(key, value)
}

// write persists one drained value. The caller has already registered it
// on the WaitGroup.
func (q *Queue[V]) write(key string, value V) {
	defer q.wg.Done()
	ctx, cancel := context.WithTimeout(context.Background(), defaultFlushTimeout)
	defer cancel()
	if err := q.flush(ctx, key, value); err != nil {
		zap.L().Warn("write-behind flush failed",
			zap.String("key", key),
			zap.Error(err))
	}
}

// Flush persists every pending key immediately.
func (q *Queue[V]) Flush() {
	q.mu.Lock()
	drained := q.pending
	q.pending = make(map[string]V)
	for key, t := range q.timers {
		t.Stop()
		delete(q.timers, key)
	}
	q.wg.Add(len(drained))
	q.mu.Unlock()

	for key, value := range drained {
		q.write(key, value)
	}
}

// Close flushes pending writes and drops any further Puts.
func (q *Queue[V]) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.Flush()
	q.wg.Wait()
}
