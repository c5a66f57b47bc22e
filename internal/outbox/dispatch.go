package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/masternote/masternote/internal/chat"
	"github.com/masternote/masternote/internal/remote"
	"github.com/masternote/masternote/internal/task"
)

// Sender delivers one decoded operation to the backend.
type Sender interface {
	UpsertTask(ctx context.Context, t task.Task) error
	DeleteTask(ctx context.Context, id string) error
	MergePreferences(ctx context.Context, p chat.Preferences) error
}

var _ Sender = (*remote.Client)(nil)

const drainBatchSize = 50

// Dispatcher drains the queue against a backend sender.
type Dispatcher struct {
	queue    *Queue
	sender   Sender
	logger   *log.Logger
	observer func(operation string, payload []byte)
}

// NewDispatcher creates a dispatcher. A nil sender (signed out) makes Drain
// a no-op, leaving entries queued for a later session.
func NewDispatcher(queue *Queue, sender Sender, logger *log.Logger) *Dispatcher {
	if logger == nil {
		logger = log.New(os.Stderr, "[outbox] ", log.LstdFlags)
	}
	return &Dispatcher{queue: queue, sender: sender, logger: logger}
}

// Observe registers fn to run after each successful delivery, with the
// entry's operation name and raw payload. The daemon uses this to fan
// deliveries out to dashboard clients.
func (d *Dispatcher) Observe(fn func(operation string, payload []byte)) {
	d.observer = fn
}

// Drain delivers all currently due entries in queue order. Entries that fail
// are rescheduled and do not block later entries. Returns the number of
// entries delivered.
func (d *Dispatcher) Drain(ctx context.Context) (int, error) {
	if d.sender == nil {
		return 0, nil
	}
	delivered := 0
	for {
		entries, err := d.queue.Due(drainBatchSize)
		if err != nil {
			return delivered, err
		}
		if len(entries) == 0 {
			return delivered, nil
		}
		progressed := false
		for _, e := range entries {
			if ctx.Err() != nil {
				return delivered, ctx.Err()
			}
			if err := d.deliver(ctx, e); err != nil {
				d.logger.Printf("Warning: outbox %s (id=%d attempt=%d) failed: %v",
					e.Operation, e.ID, e.Attempts+1, err)
				if merr := d.queue.MarkFailed(e.ID); merr != nil {
					return delivered, merr
				}
				continue
			}
			if err := d.queue.MarkDone(e.ID); err != nil {
				return delivered, err
			}
			if d.observer != nil {
				d.observer(e.Operation, e.Payload)
			}
			delivered++
			progressed = true
		}
		if !progressed {
			// Everything due failed and was rescheduled.
			return delivered, nil
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, e Entry) error {
	switch e.Operation {
	case OpUpsertTask:
		var t task.Task
		if err := json.Unmarshal(e.Payload, &t); err != nil {
			return fmt.Errorf("corrupt payload: %w", err)
		}
		return d.sender.UpsertTask(ctx, t)
	case OpDeleteTask:
		var id string
		if err := json.Unmarshal(e.Payload, &id); err != nil {
			return fmt.Errorf("corrupt payload: %w", err)
		}
		return d.sender.DeleteTask(ctx, id)
	case OpPutPreferences:
		var p chat.Preferences
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return fmt.Errorf("corrupt payload: %w", err)
		}
		return d.sender.MergePreferences(ctx, p)
	default:
		return fmt.Errorf("unknown operation %q", e.Operation)
	}
}
