package service

import (
	"context"
	"sync"
	"time"
)

// inFlightCall tracks a single acquisition that multiple callers may wait for.
// done is closed once result and err are set; reading them after the close is
// race-free.
type inFlightCall[T any] struct {
	done   chan struct{}
	result T
	err    error
}

// coalescer collapses concurrent acquisitions for the same key into one
// upstream attempt sequence. Concurrent cache misses would otherwise each
// independently re-fetch during the same TTL window.
type coalescer[T any] struct {
	mu       sync.Mutex
	inFlight map[string]*inFlightCall[T]
	timeout  time.Duration
}

// newCoalescer creates a coalescer whose waiters give up after timeout.
func newCoalescer[T any](timeout time.Duration) *coalescer[T] {
	return &coalescer[T]{
		inFlight: make(map[string]*inFlightCall[T]),
		timeout:  timeout,
	}
}

// GetOrDo runs fn for key unless an identical call is already in flight, in
// which case it waits for that call's result. The second return value is
// true when this caller waited instead of fetching.
func (c *coalescer[T]) GetOrDo(ctx context.Context, key string, fn func() (T, error)) (T, bool, error) {
	c.mu.Lock()
	if call, ok := c.inFlight[key]; ok {
		c.mu.Unlock()
		waitCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()
		select {
		case <-call.done:
			return call.result, true, call.err
		case <-waitCtx.Done():
			var zero T
			return zero, true, waitCtx.Err()
		}
	}

	call := &inFlightCall[T]{done: make(chan struct{})}
	c.inFlight[key] = call
	c.mu.Unlock()

	call.result, call.err = fn()
	close(call.done)

	c.mu.Lock()
	delete(c.inFlight, key)
	c.mu.Unlock()

	return call.result, false, call.err
}
