// Package daemon provides the background sync daemon.
//
// The daemon:
// 1. Drains the outbox against the hosted backend on a fixed interval
// 2. Watches the data directory so writes from other processes are noticed
// 3. Broadcasts sync progress and change notifications to the dashboard
// 4. Handles graceful shutdown
package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/masternote/masternote/internal/chat"
	"github.com/masternote/masternote/internal/dashboard"
	"github.com/masternote/masternote/internal/outbox"
	"github.com/masternote/masternote/internal/task"
)

// Config holds configuration for the daemon.
type Config struct {
	// SyncInterval is how often the outbox is drained
	SyncInterval time.Duration

	// DebounceInterval is how long to wait before reporting file changes.
	// This batches rapid updates together
	DebounceInterval time.Duration

	// Logger for daemon activity
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		SyncInterval:     30 * time.Second,
		DebounceInterval: 200 * time.Millisecond,
		Logger:           log.New(os.Stderr, "[daemon] ", log.LstdFlags),
	}
}

// Daemon orchestrates outbox draining and data directory watching.
type Daemon struct {
	dispatcher *outbox.Dispatcher
	queue      *outbox.Queue
	dataDir    string
	server     *dashboard.Server // nil when the dashboard is not running
	config     *Config

	watcher       *fsnotify.Watcher
	changeQueue   map[string]time.Time // filepath -> timestamp
	changeQueueMu sync.Mutex

	lastStats *dashboard.StatsData // baseline for change detection

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new Daemon instance. server may be nil.
func New(dispatcher *outbox.Dispatcher, queue *outbox.Queue, dataDir string, server *dashboard.Server, config *Config) (*Daemon, error) {
	if dispatcher == nil {
		return nil, fmt.Errorf("dispatcher cannot be nil")
	}
	if dataDir == "" {
		return nil, fmt.Errorf("dataDir cannot be empty")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[daemon] ", log.LstdFlags)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	d := &Daemon{
		dispatcher:  dispatcher,
		queue:       queue,
		dataDir:     dataDir,
		server:      server,
		config:      config,
		watcher:     watcher,
		changeQueue: make(map[string]time.Time),
		ctx:         ctx,
		cancel:      cancel,
	}
	if server != nil {
		dispatcher.Observe(d.broadcastDelivery)
	}
	return d, nil
}

// Start begins the daemon's operation.
//
// The daemon drains the outbox once immediately, then watches the data
// directory and keeps draining on the configured interval. This blocks until
// ctx is cancelled or an error occurs.
func (d *Daemon) Start(ctx context.Context) error {
	d.config.Logger.Println("Starting daemon")

	if d.server != nil {
		if stats, ok := d.server.Stats(); ok {
			d.lastStats = &stats
		}
	}

	d.drainOnce()

	if err := d.watcher.Add(d.dataDir); err != nil {
		return fmt.Errorf("failed to watch data directory: %w", err)
	}
	d.config.Logger.Printf("Watching: %s", d.dataDir)

	d.wg.Add(3)
	go d.watchFileEvents()
	go d.processChangeQueue()
	go d.syncLoop()

	select {
	case <-ctx.Done():
		d.config.Logger.Println("Shutdown signal received")
		return d.Stop()
	case <-d.ctx.Done():
		return nil
	}
}

// Stop gracefully shuts down the daemon.
func (d *Daemon) Stop() error {
	d.config.Logger.Println("Stopping daemon")

	d.cancel()

	if err := d.watcher.Close(); err != nil {
		d.config.Logger.Printf("Error closing watcher: %v", err)
	}

	d.wg.Wait()

	d.config.Logger.Println("Daemon stopped")
	return nil
}

// drainOnce delivers all due outbox entries and reports the result.
func (d *Daemon) drainOnce() {
	start := time.Now()
	delivered, err := d.dispatcher.Drain(d.ctx)
	if err != nil {
		d.config.Logger.Printf("Warning: outbox drain failed: %v", err)
		return
	}
	if delivered == 0 {
		return
	}

	pending := 0
	if d.queue != nil {
		if n, err := d.queue.PendingCount(); err == nil {
			pending = n
		}
	}
	d.config.Logger.Printf("Synced %d operations (%d pending)", delivered, pending)

	if d.server != nil {
		d.server.BroadcastSyncComplete(dashboard.SyncCompleteData{
			Delivered: delivered,
			Pending:   pending,
			Duration:  time.Since(start),
		})
	}
}

// syncLoop drains the outbox on the configured interval.
func (d *Daemon) syncLoop() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return

		case <-ticker.C:
			d.drainOnce()
		}
	}
}

// watchFileEvents monitors filesystem events and queues changes.
func (d *Daemon) watchFileEvents() {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return

		case event, ok := <-d.watcher.Events:
			if !ok {
				return
			}

			// Only care about Create, Write, Remove
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove) == 0 {
				continue
			}

			// Only the database files matter; skip temp files
			switch filepath.Ext(event.Name) {
			case ".db", ".db-wal":
			default:
				continue
			}

			d.queueChange(event.Name)

		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			d.config.Logger.Printf("Watcher error: %v", err)
		}
	}
}

// queueChange adds a file to the change queue with debouncing.
func (d *Daemon) queueChange(path string) {
	d.changeQueueMu.Lock()
	defer d.changeQueueMu.Unlock()

	d.changeQueue[path] = time.Now()
}

// processChangeQueue reports queued file changes with debouncing.
func (d *Daemon) processChangeQueue() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.DebounceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return

		case <-ticker.C:
			d.processPendingChanges()
		}
	}
}

// processPendingChanges handles changes that have been queued for long
// enough. A local database write means another process mutated state, so
// the outbox may have new entries and dashboard clients need a nudge.
func (d *Daemon) processPendingChanges() {
	d.changeQueueMu.Lock()
	now := time.Now()
	ready := false
	for path, queuedAt := range d.changeQueue {
		if now.Sub(queuedAt) < d.config.DebounceInterval {
			continue
		}
		delete(d.changeQueue, path)
		ready = true
	}
	d.changeQueueMu.Unlock()

	if !ready {
		return
	}

	d.config.Logger.Println("Data directory changed, draining outbox")
	d.drainOnce()

	if d.server != nil {
		d.broadcastCollectionChanges()
		d.server.BroadcastStats()
	}
}

// broadcastDelivery translates a delivered outbox entry into the matching
// dashboard event.
func (d *Daemon) broadcastDelivery(operation string, payload []byte) {
	switch operation {
	case outbox.OpUpsertTask:
		var t task.Task
		if err := json.Unmarshal(payload, &t); err != nil {
			d.config.Logger.Printf("Warning: undecodable %s payload: %v", operation, err)
			return
		}
		d.server.BroadcastTaskUpdate(dashboard.TaskUpdateData{
			TaskID:   t.ID,
			Action:   "upserted",
			Title:    t.Title,
			Status:   string(t.Status),
			Priority: string(t.Priority),
		})

	case outbox.OpDeleteTask:
		var id string
		if err := json.Unmarshal(payload, &id); err != nil {
			d.config.Logger.Printf("Warning: undecodable %s payload: %v", operation, err)
			return
		}
		d.server.BroadcastTaskUpdate(dashboard.TaskUpdateData{TaskID: id, Action: "deleted"})

	case outbox.OpPutPreferences:
		var p chat.Preferences
		if err := json.Unmarshal(payload, &p); err != nil {
			d.config.Logger.Printf("Warning: undecodable %s payload: %v", operation, err)
			return
		}
		d.server.BroadcastSessionUpdate(dashboard.SessionUpdateData{
			SessionID: p.CurrentSessionID,
			Action:    "preferences",
		})
	}
}

// broadcastCollectionChanges compares current statistics against the last
// observed baseline and emits an update event for each collection whose size
// moved. A foreign write only tells us the database changed, so the size is
// all the detail available.
func (d *Daemon) broadcastCollectionChanges() {
	stats, ok := d.server.Stats()
	if !ok {
		return
	}
	if last := d.lastStats; last != nil {
		if stats.Tasks != last.Tasks {
			d.server.BroadcastTaskUpdate(dashboard.TaskUpdateData{Action: "changed"})
		}
		if stats.Sessions != last.Sessions {
			d.server.BroadcastSessionUpdate(dashboard.SessionUpdateData{Action: "changed"})
		}
		if stats.Notes != last.Notes {
			d.server.BroadcastNoteUpdate(dashboard.CollectionUpdateData{Count: stats.Notes, Action: "changed"})
		}
		if stats.Habits != last.Habits {
			d.server.BroadcastHabitUpdate(dashboard.CollectionUpdateData{Count: stats.Habits, Action: "changed"})
		}
	}
	d.lastStats = &stats
}
