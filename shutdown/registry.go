package shutdown

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"realtime_dashboard/core"
)

// Shutdown priorities used by the dashboard. Lower runs first.
const (
	PriorityHTTPServer = 10
	PriorityBackground = 20
	PriorityStore      = 30
	PriorityLogger     = 90
)

type shutdownEntry struct {
	name     string
	fn       core.ShutdownFunc
	priority int
}

// HookResult is the outcome of one cleanup function.
type HookResult struct {
	Name string
	Err  error
}

// ShutdownRegistry holds cleanup functions and runs them once, in priority
// order. Functions with equal priority run in registration order.
type ShutdownRegistry struct {
	mu      sync.Mutex
	entries []shutdownEntry
	closed  bool
}

// NewShutdownRegistry creates an empty registry.
func NewShutdownRegistry() *ShutdownRegistry {
	return &ShutdownRegistry{}
}

// Register adds fn under name. Registration after Run is ignored.
func (r *ShutdownRegistry) Register(name string, priority int, fn core.ShutdownFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	r.entries = append(r.entries, shutdownEntry{name: name, fn: fn, priority: priority})
}

// Run calls every registered function, even after failures, and reports
// each outcome. A panicking function is reported as an error. Second and
// later calls return nil.
func (r *ShutdownRegistry) Run(ctx context.Context) []HookResult {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	entries := r.sorted()
	r.mu.Unlock()

	results := make([]HookResult, 0, len(entries))
	for _, entry := range entries {
		results = append(results, HookResult{Name: entry.name, Err: runHook(ctx, entry)})
	}
	return results
}

func runHook(ctx context.Context, entry shutdownEntry) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%s panicked: %v", entry.name, p)
		}
	}()
	if err := entry.fn(ctx); err != nil {
		return fmt.Errorf("%s: %w", entry.name, err)
	}
	return nil
}

// Names returns the registered names in execution order.
func (r *ShutdownRegistry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := r.sorted()
	names := make([]string, len(entries))
	for i, entry := range entries {
		names[i] = entry.name
	}
	return names
}

// Count returns the number of registered functions.
func (r *ShutdownRegistry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// sorted must be called with r.mu held.
func (r *ShutdownRegistry) sorted() []shutdownEntry {
	out := slices.Clone(r.entries)
	slices.SortStableFunc(out, func(a, b shutdownEntry) int {
		return a.priority - b.priority
	})
	return out
}
