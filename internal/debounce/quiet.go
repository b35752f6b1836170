// Package debounce coalesces bursts of keyed notifications.
package debounce

import (
	"sort"
	"sync"
	"time"
)

// FlushFunc receives the distinct keys collected since the last flush,
// sorted.
type FlushFunc func(keys []string)

// Quiet flushes after a quiet period with no new keys.
type Quiet struct {
	mu      sync.Mutex
	pending map[string]struct{}
	timer   *time.Timer
	quiet   time.Duration
	onFlush FlushFunc
	closed  bool
}

// NewQuiet creates a Quiet collector.
func NewQuiet(quiet time.Duration, onFlush FlushFunc) *Quiet {
	return &Quiet{
		pending: make(map[string]struct{}),
		quiet:   quiet,
		onFlush: onFlush,
	}
}

// Add records key and restarts the quiet timer.
func (q *Quiet) Add(key string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.pending[key] = struct{}{}

	if q.timer != nil {
		q.timer.Stop()
	}
	q.timer = time.AfterFunc(q.quiet, q.flush)
}

func (q *Quiet) flush() {
	q.mu.Lock()
	if q.closed || len(q.pending) == 0 {
		q.mu.Unlock()
		return
	}
	keys := make([]string, 0, len(q.pending))
	for k := range q.pending {
		keys = append(keys, k)
	}
	q.pending = make(map[string]struct{})
	q.mu.Unlock()

	sort.Strings(keys)
	q.onFlush(keys)
}

// Close stops the timer and drops pending keys.
func (q *Quiet) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	if q.timer != nil {
		q.timer.Stop()
	}
	q.pending = nil
}
