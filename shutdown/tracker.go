// Package shutdown coordinates graceful shutdown of the dashboard service:
// signal handling, tracking of open live connections, and ordered cleanup.
package shutdown

import (
	"context"
	"errors"
	"sync"
)

// ErrTrackerClosed is returned when trying to start an operation on a closed tracker.
var ErrTrackerClosed = errors.New("operation tracker is closed")

// OperationTracker counts in-flight operations by kind so shutdown can wait
// for them. Live streams are the main tracked operation; they are long-lived,
// so callers are expected to end them by cancelling their context.
//
// Usage:
//
//	if !tracker.Start("sse") {
//	    return // shutting down
//	}
//	defer tracker.Done("sse")
type OperationTracker struct {
	mu     sync.Mutex
	active map[string]int
	total  int
	closed bool
	idle   chan struct{} // closed when total drops to zero; nil while idle
}

// NewOperationTracker creates an open, empty tracker.
func NewOperationTracker() *OperationTracker {
	return &OperationTracker{active: make(map[string]int)}
}

// Start registers one operation of kind. It returns false once the tracker
// is closed; the caller must not call Done in that case.
func (t *OperationTracker) Start(kind string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return false
	}
	if t.total == 0 {
		t.idle = make(chan struct{})
	}
	t.active[kind]++
	t.total++
	return true
}

// Done marks one operation of kind as finished.
func (t *OperationTracker) Done(kind string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.active[kind] == 0 {
		return
	}
	t.active[kind]--
	if t.active[kind] == 0 {
		delete(t.active, kind)
	}
	t.total--
	if t.total == 0 && t.idle != nil {
		close(t.idle)
		t.idle = nil
	}
}

// Wait blocks until no operation is in flight or ctx is done.
func (t *OperationTracker) Wait(ctx context.Context) error {
	t.mu.Lock()
	idle := t.idle
	t.mu.Unlock()

	if idle == nil {
		return nil
	}
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close rejects every later Start. Operations already running continue.
func (t *OperationTracker) Close() {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
}

// ActiveCount returns the number of operations of every kind.
func (t *OperationTracker) ActiveCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total
}

// ActiveByKind returns a copy of the per-kind counts.
func (t *OperationTracker) ActiveByKind() map[string]int {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[string]int, len(t.active))
	for k, v := range t.active {
		out[k] = v
	}
	return out
}

// IsClosed returns true if the tracker has been closed.
func (t *OperationTracker) IsClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}
