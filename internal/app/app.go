// Package app assembles the application: configuration, logging, the local
// database, the outbox, and the domain stores. Everything hangs off one App
// value whose lifetime is the process; Close flushes and releases it all.
package app

import (
	"fmt"
	"log"
	"time"

	"github.com/masternote/masternote/internal/ai"
	"github.com/masternote/masternote/internal/chat"
	"github.com/masternote/masternote/internal/config"
	"github.com/masternote/masternote/internal/dashboard"
	"github.com/masternote/masternote/internal/habit"
	"github.com/masternote/masternote/internal/note"
	"github.com/masternote/masternote/internal/outbox"
	"github.com/masternote/masternote/internal/remote"
	"github.com/masternote/masternote/internal/store"
	"github.com/masternote/masternote/internal/task"
)

// App is the assembled application.
type App struct {
	Config *config.Config
	Logger *log.Logger
	Store  *store.Store
	Remote *remote.Client
	Outbox *outbox.Queue

	Tasks  *task.Store
	Chats  *chat.Store
	Notes  *note.Store
	Habits *habit.Store
}

// Options tweak assembly.
type Options struct {
	// Quiet routes log output to the log file only.
	Quiet bool
}

// New loads configuration and assembles the application.
func New(opts Options) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return NewWithConfig(cfg, opts)
}

// NewWithConfig assembles the application over an existing configuration.
func NewWithConfig(cfg *config.Config, opts Options) (*App, error) {
	logger := cfg.NewLogger(opts.Quiet)

	st, err := store.Open(cfg.DatabasePath(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open local store: %w", err)
	}

	queue, err := outbox.New(st.RawDB(), logger)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to open outbox: %w", err)
	}

	// Nil when signed out; stores treat a nil remote as local-only.
	rc := remote.New(remote.Config{
		BaseURL: cfg.Supabase.URL,
		AnonKey: cfg.Supabase.AnonKey,
		UserID:  cfg.Supabase.UserID,
		Logger:  logger,
	})

	a := &App{
		Config: cfg,
		Logger: logger,
		Store:  st,
		Remote: rc,
		Outbox: queue,
	}

	var tasks []task.Task
	if _, err := st.Get(store.KeyTasks, &tasks); err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to load tasks: %w", err)
	}
	var taskMirror task.Mirror
	if rc != nil {
		taskMirror = queue
	}
	a.Tasks = task.NewStore(tasks, taskSaver{st}, taskMirror, logger)

	var sessions []chat.Session
	if _, err := st.Get(store.KeySessions, &sessions); err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to load sessions: %w", err)
	}
	var settingsMirror chat.SettingsMirror
	if rc != nil {
		settingsMirror = queue
	}
	a.Chats = chat.NewStore(sessions, chatPersister{st}, settingsMirror, logger)

	var habits []habit.Habit
	if _, err := st.Get(store.KeyHabits, &habits); err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to load habits: %w", err)
	}
	a.Habits = habit.NewStore(habits, habitSaver{st}, logger)

	var notes []note.Note
	if _, err := st.Get(store.KeyNotes, &notes); err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to load notes: %w", err)
	}
	var projects []note.Project
	if _, err := st.Get(store.KeyProjects, &projects); err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to load projects: %w", err)
	}
	a.Notes = note.NewStore(notes, projects, noteSaver{st}, logger)

	return a, nil
}

// Close flushes pending writes and releases the database.
func (a *App) Close() error {
	if a.Chats != nil {
		a.Chats.Close()
	}
	if a.Store != nil {
		return a.Store.Close()
	}
	return nil
}

// Provider builds the AI provider selected by the resolved configuration
// (config file plus MN_* environment). Keys mirrored on the remote are not
// consulted here; 'mn config pull-keys' copies them into the config file.
func (a *App) Provider() ai.Provider {
	cfg := a.Config
	switch cfg.AI.Provider {
	case "anthropic":
		return ai.NewAnthropic(ai.AnthropicConfig{
			APIKey:  cfg.AI.AnthropicKey,
			BaseURL: cfg.AI.BaseURL,
		})
	default:
		return ai.NewOpenAI(ai.OpenAIConfig{
			APIKey:  cfg.AI.OpenAIKey,
			BaseURL: cfg.AI.BaseURL,
			Timeout: 60 * time.Second,
		})
	}
}

// Stats aggregates collection statistics for the dashboard. It reads fresh
// snapshots from the database rather than the in-memory stores, so writes
// from other processes show up.
func (a *App) Stats() dashboard.StatsData {
	var tasks []task.Task
	if _, err := a.Store.Get(store.KeyTasks, &tasks); err != nil {
		a.Logger.Printf("Warning: failed to read tasks for stats: %v", err)
	}
	var sessions []chat.Session
	if _, err := a.Store.Get(store.KeySessions, &sessions); err != nil {
		a.Logger.Printf("Warning: failed to read sessions for stats: %v", err)
	}
	var notes []note.Note
	if _, err := a.Store.Get(store.KeyNotes, &notes); err != nil {
		a.Logger.Printf("Warning: failed to read notes for stats: %v", err)
	}
	var habits []habit.Habit
	if _, err := a.Store.Get(store.KeyHabits, &habits); err != nil {
		a.Logger.Printf("Warning: failed to read habits for stats: %v", err)
	}

	now := time.Now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	byStatus := make(map[string]int)
	overdue := 0
	for _, t := range tasks {
		byStatus[string(t.Status)]++
		if t.DueDate == nil || t.Completed() {
			continue
		}
		d := *t.DueDate
		day := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, d.Location())
		if day.Before(today) {
			overdue++
		}
	}

	return dashboard.StatsData{
		Tasks:    len(tasks),
		ByStatus: byStatus,
		Overdue:  overdue,
		Sessions: len(sessions),
		Notes:    len(notes),
		Habits:   len(habits),
	}
}

var _ dashboard.StatsSource = (*App)(nil)

// Dispatcher builds an outbox dispatcher over the remote client. The
// dispatcher is a no-op when signed out.
func (a *App) Dispatcher() *outbox.Dispatcher {
	var sender outbox.Sender
	if a.Remote != nil {
		sender = a.Remote
	}
	return outbox.NewDispatcher(a.Outbox, sender, a.Logger)
}

// taskSaver persists the task collection snapshot.
type taskSaver struct{ st *store.Store }

func (s taskSaver) SaveTasks(tasks []task.Task) error {
	return s.st.Put(store.KeyTasks, tasks)
}

// chatPersister persists the session collection snapshot.
type chatPersister struct{ st *store.Store }

func (p chatPersister) SaveSessions(sessions []chat.Session) error {
	return p.st.Put(store.KeySessions, sessions)
}

type habitSaver struct{ st *store.Store }

func (s habitSaver) SaveHabits(habits []habit.Habit) error {
	return s.st.Put(store.KeyHabits, habits)
}

type noteSaver struct{ st *store.Store }

func (s noteSaver) SaveNotes(notes []note.Note) error {
	return s.st.Put(store.KeyNotes, notes)
}

func (s noteSaver) SaveProjects(projects []note.Project) error {
	return s.st.Put(store.KeyProjects, projects)
}
