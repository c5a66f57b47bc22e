// Package coalesce provides a coalescing write scheduler: at most one flush
// per fixed window, always reflecting the latest captured value.
//
// This is the persistence primitive behind streaming chat updates. Rapid
// token-by-token writes collapse into a single flush per window, while an
// explicit Flush guarantees the final state is durable immediately.
package coalesce

import (
	"sync"
	"time"
)

// Writer coalesces writes of values of type T.
//
// Set captures a value and arms the window timer if none is pending; further
// Sets inside the window only replace the captured value, they do not reset
// the timer (fixed cadence, not a trailing debounce). When the timer fires,
// the most recently captured value is flushed. Flush writes the pending value
// immediately, cancelling the timer.
type Writer[T any] struct {
	mu       sync.Mutex
	interval time.Duration
	flush    func(T)

	latest  T
	pending bool
	timer   *time.Timer
	closed  bool
}

// New creates a Writer flushing through fn at most once per interval.
func New[T any](interval time.Duration, fn func(T)) *Writer[T] {
	return &Writer[T]{
		interval: interval,
		flush:    fn,
	}
}

// Set captures v as the latest pending value. The first Set of a window arms
// the timer; a timer already pending is left alone.
func (w *Writer[T]) Set(v T) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.latest = v
	if w.pending {
		return
	}
	w.pending = true
	w.timer = time.AfterFunc(w.interval, w.fire)
}

// fire flushes the pending value when the window timer expires.
func (w *Writer[T]) fire() {
	w.mu.Lock()
	if !w.pending || w.closed {
		w.mu.Unlock()
		return
	}
	v := w.latest
	w.pending = false
	w.timer = nil
	w.mu.Unlock()

	w.flush(v)
}

// Flush writes the pending value immediately, bypassing the window. A no-op
// when nothing is pending.
func (w *Writer[T]) Flush() {
	w.mu.Lock()
	if !w.pending || w.closed {
		w.mu.Unlock()
		return
	}
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	v := w.latest
	w.pending = false
	w.mu.Unlock()

	w.flush(v)
}

// Close flushes any outstanding value and stops the writer. Further Sets are
// ignored.
func (w *Writer[T]) Close() {
	w.Flush()
	w.mu.Lock()
	w.closed = true
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.mu.Unlock()
}
