package daemon

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/masternote/masternote/internal/chat"
	"github.com/masternote/masternote/internal/dashboard"
	"github.com/masternote/masternote/internal/outbox"
	"github.com/masternote/masternote/internal/task"
)

type countingSender struct {
	upserts int
	deletes int
	prefs   int
}

func (s *countingSender) UpsertTask(ctx context.Context, t task.Task) error {
	s.upserts++
	return nil
}

func (s *countingSender) DeleteTask(ctx context.Context, id string) error {
	s.deletes++
	return nil
}

func (s *countingSender) MergePreferences(ctx context.Context, p chat.Preferences) error {
	s.prefs++
	return nil
}

func newTestQueue(t *testing.T) *outbox.Queue {
	t.Helper()
	db, err := sql.Open("sqlite3", "file:"+filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	q, err := outbox.New(db, nil)
	if err != nil {
		t.Fatalf("failed to create queue: %v", err)
	}
	return q
}

func TestNewValidatesArguments(t *testing.T) {
	q := newTestQueue(t)
	d := outbox.NewDispatcher(q, nil, nil)

	if _, err := New(nil, q, t.TempDir(), nil, nil); err == nil {
		t.Error("expected error for nil dispatcher")
	}
	if _, err := New(d, q, "", nil, nil); err == nil {
		t.Error("expected error for empty data dir")
	}
	daemon, err := New(d, q, t.TempDir(), nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if daemon.config.SyncInterval == 0 {
		t.Error("defaults not applied")
	}
}

func TestStartDrainsImmediately(t *testing.T) {
	q := newTestQueue(t)
	q.UpsertTask(task.Task{ID: "t1", Title: "Queued before start"})

	sender := &countingSender{}
	d, err := New(outbox.NewDispatcher(q, sender, nil), q, t.TempDir(), nil, &Config{
		SyncInterval:     time.Hour, // only the initial drain should run
		DebounceInterval: 10 * time.Millisecond,
		Logger:           log.New(os.Stderr, "[test] ", log.LstdFlags),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Start(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for sender.upserts == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Start: %v", err)
	}

	if sender.upserts != 1 {
		t.Errorf("upserts = %d, want 1", sender.upserts)
	}
	pending, _ := q.PendingCount()
	if pending != 0 {
		t.Errorf("pending = %d", pending)
	}
}

type shiftingStats struct {
	mu   sync.Mutex
	data dashboard.StatsData
}

func (s *shiftingStats) Stats() dashboard.StatsData {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data
}

func (s *shiftingStats) set(data dashboard.StatsData) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = data
}

func startTestDashboard(t *testing.T, stats dashboard.StatsSource) *dashboard.Server {
	t.Helper()
	server := dashboard.NewServer(&dashboard.Config{
		Port:   0,
		Logger: log.New(os.Stderr, "[test] ", log.LstdFlags),
		Stats:  stats,
	})
	if err := server.Start(); err != nil {
		t.Fatalf("failed to start dashboard: %v", err)
	}
	t.Cleanup(func() { server.Stop() })
	time.Sleep(100 * time.Millisecond)
	return server
}

// readUntilType reads broadcast messages until one of the wanted type
// arrives, skipping stats and other interleaved messages.
func readUntilType(t *testing.T, ctx context.Context, conn *websocket.Conn, want dashboard.MessageType) dashboard.Message {
	t.Helper()
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("failed waiting for %s message: %v", want, err)
		}
		var msg dashboard.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("failed to unmarshal message: %v", err)
		}
		if msg.Type == want {
			return msg
		}
	}
}

func TestDeliveryBroadcastsTaskUpdate(t *testing.T) {
	q := newTestQueue(t)
	q.UpsertTask(task.Task{ID: "t1", Title: "Buy milk", Status: task.StatusTodo, Priority: task.PriorityHigh})

	server := startTestDashboard(t, nil)
	sender := &countingSender{}
	d, err := New(outbox.NewDispatcher(q, sender, nil), q, t.TempDir(), server, &Config{
		SyncInterval:     time.Hour,
		DebounceInterval: 10 * time.Millisecond,
		Logger:           log.New(os.Stderr, "[test] ", log.LstdFlags),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws://"+server.GetAddr()+"/ws", nil)
	if err != nil {
		t.Fatalf("failed to connect WebSocket: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")
	if _, _, err := conn.Read(ctx); err != nil { // welcome
		t.Fatalf("failed to read welcome: %v", err)
	}

	runCtx, stop := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Start(runCtx) }()
	defer func() { stop(); <-done }()

	msg := readUntilType(t, ctx, conn, dashboard.MessageTypeTaskUpdate)
	var update dashboard.TaskUpdateData
	if err := json.Unmarshal(msg.Data, &update); err != nil {
		t.Fatalf("failed to unmarshal task update: %v", err)
	}
	if update.TaskID != "t1" || update.Action != "upserted" || update.Title != "Buy milk" {
		t.Errorf("unexpected update: %+v", update)
	}

	readUntilType(t, ctx, conn, dashboard.MessageTypeSyncComplete)
}

func TestForeignChangeBroadcastsCollectionUpdates(t *testing.T) {
	q := newTestQueue(t)
	dataDir := t.TempDir()

	stats := &shiftingStats{data: dashboard.StatsData{Notes: 1, Habits: 1}}
	server := startTestDashboard(t, stats)
	d, err := New(outbox.NewDispatcher(q, &countingSender{}, nil), q, dataDir, server, &Config{
		SyncInterval:     time.Hour,
		DebounceInterval: 20 * time.Millisecond,
		Logger:           log.New(os.Stderr, "[test] ", log.LstdFlags),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	runCtx, stop := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Start(runCtx) }()
	defer func() { stop(); <-done }()
	time.Sleep(100 * time.Millisecond) // let Start prime the baseline

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws://"+server.GetAddr()+"/ws", nil)
	if err != nil {
		t.Fatalf("failed to connect WebSocket: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")
	if _, _, err := conn.Read(ctx); err != nil { // welcome
		t.Fatalf("failed to read welcome: %v", err)
	}

	// Another process grew the note collection, then touched the database.
	stats.set(dashboard.StatsData{Notes: 2, Habits: 1})
	if err := os.WriteFile(filepath.Join(dataDir, "masternote.db"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	msg := readUntilType(t, ctx, conn, dashboard.MessageTypeNoteUpdate)
	var change dashboard.CollectionUpdateData
	if err := json.Unmarshal(msg.Data, &change); err != nil {
		t.Fatalf("failed to unmarshal note update: %v", err)
	}
	if change.Count != 2 || change.Action != "changed" {
		t.Errorf("unexpected change: %+v", change)
	}
}

func TestFileChangeTriggersDrain(t *testing.T) {
	q := newTestQueue(t)
	dataDir := t.TempDir()

	sender := &countingSender{}
	d, err := New(outbox.NewDispatcher(q, sender, nil), q, dataDir, nil, &Config{
		SyncInterval:     time.Hour,
		DebounceInterval: 20 * time.Millisecond,
		Logger:           log.New(os.Stderr, "[test] ", log.LstdFlags),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Start(ctx) }()
	time.Sleep(100 * time.Millisecond)

	// Enqueue after startup, then touch the database file as a second
	// process would.
	q.DeleteTask("t9")
	if err := os.WriteFile(filepath.Join(dataDir, "masternote.db"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for sender.deletes == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Start: %v", err)
	}

	if sender.deletes != 1 {
		t.Errorf("deletes = %d, want 1", sender.deletes)
	}
}
