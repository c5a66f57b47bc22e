package coalesce

import (
	"sync"
	"testing"
	"time"
)

// recorder collects flushed values.
type recorder struct {
	mu     sync.Mutex
	values []string
}

func (r *recorder) flush(v string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values = append(r.values, v)
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.values...)
}

func TestRapidSetsCollapseToLatest(t *testing.T) {
	rec := &recorder{}
	w := New(50*time.Millisecond, rec.flush)
	defer w.Close()

	// Simulate streaming: many updates inside one window.
	w.Set("h")
	w.Set("he")
	w.Set("hel")
	w.Set("hello")

	time.Sleep(120 * time.Millisecond)

	got := rec.snapshot()
	if len(got) != 1 {
		t.Fatalf("flushes = %v, want exactly one per window", got)
	}
	if got[0] != "hello" {
		t.Errorf("flushed %q, want the latest value %q", got[0], "hello")
	}
}

func TestFixedCadenceNotTrailingDebounce(t *testing.T) {
	rec := &recorder{}
	w := New(60*time.Millisecond, rec.flush)
	defer w.Close()

	w.Set("a")
	// Keep setting past the window start; a trailing debounce would postpone
	// the flush indefinitely, a fixed window must fire on schedule.
	deadline := time.Now().Add(45 * time.Millisecond)
	for time.Now().Before(deadline) {
		w.Set("b")
		time.Sleep(5 * time.Millisecond)
	}

	time.Sleep(40 * time.Millisecond) // past the original window
	if got := rec.snapshot(); len(got) != 1 || got[0] != "b" {
		t.Fatalf("flushes = %v, want one flush of %q at window end", got, "b")
	}
}

func TestFlushIsImmediate(t *testing.T) {
	rec := &recorder{}
	w := New(time.Hour, rec.flush) // window would never fire in this test
	defer w.Close()

	w.Set("final")
	w.Flush()

	if got := rec.snapshot(); len(got) != 1 || got[0] != "final" {
		t.Fatalf("flushes = %v, want immediate flush of %q", got, "final")
	}

	// Nothing pending afterwards: a second Flush is a no-op.
	w.Flush()
	if got := rec.snapshot(); len(got) != 1 {
		t.Fatalf("flushes = %v, want no duplicate flush", got)
	}
}

func TestFlushCancelsPendingTimer(t *testing.T) {
	rec := &recorder{}
	w := New(40*time.Millisecond, rec.flush)
	defer w.Close()

	w.Set("v1")
	w.Flush()
	time.Sleep(80 * time.Millisecond)

	if got := rec.snapshot(); len(got) != 1 {
		t.Fatalf("flushes = %v, want the cancelled timer not to fire", got)
	}
}

func TestNewWindowAfterFlush(t *testing.T) {
	rec := &recorder{}
	w := New(30*time.Millisecond, rec.flush)
	defer w.Close()

	w.Set("one")
	w.Flush()
	w.Set("two")
	time.Sleep(70 * time.Millisecond)

	got := rec.snapshot()
	if len(got) != 2 || got[0] != "one" || got[1] != "two" {
		t.Fatalf("flushes = %v, want [one two]", got)
	}
}

func TestCloseFlushesOutstanding(t *testing.T) {
	rec := &recorder{}
	w := New(time.Hour, rec.flush)

	w.Set("pending")
	w.Close()

	if got := rec.snapshot(); len(got) != 1 || got[0] != "pending" {
		t.Fatalf("flushes = %v, want Close to flush the pending value", got)
	}

	w.Set("after close")
	w.Flush()
	if got := rec.snapshot(); len(got) != 1 {
		t.Fatalf("flushes = %v, want Sets after Close ignored", got)
	}
}
