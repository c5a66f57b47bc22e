package task

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Saver persists the full task collection to local storage.
type Saver interface {
	SaveTasks(tasks []Task) error
}

// Mirror receives best-effort remote mirror intents. Implementations enqueue
// the intent and return immediately; delivery happens in the background.
type Mirror interface {
	UpsertTask(t Task)
	DeleteTask(id string)
}

// RemoteSource pulls the authoritative remote snapshot for a full sync.
type RemoteSource interface {
	FetchTasks(ctx context.Context) ([]Task, error)
}

// SortOrder names one of the six stable task orderings.
type SortOrder string

const (
	SortPriorityHigh SortOrder = "priority-high"
	SortPriorityLow  SortOrder = "priority-low"
	SortDueDate      SortOrder = "due-date"
	SortNewest       SortOrder = "newest"
	SortOldest       SortOrder = "oldest"
	SortAlphabetical SortOrder = "alphabetical"
)

// Date buckets and bulk-update filter names.
const (
	FilterAll       = "all"
	FilterToday     = "today"
	FilterTomorrow  = "tomorrow"
	FilterWeek      = "week"
	FilterOverdue   = "overdue"
	FilterCompleted = "completed"
	FilterUndated   = "undated"
)

// Store is the local-first task repository.
//
// Mutations are synchronous against the in-memory collection and the local
// snapshot; the mirror is fire-and-enqueue. Store is safe for use from the
// single CLI/daemon goroutine plus the outbox drainer, which never touches it.
type Store struct {
	tasks  []Task
	local  Saver
	mirror Mirror
	logger *log.Logger
	now    func() time.Time
}

// NewStore creates a task store seeded with tasks loaded from local storage.
//
// mirror may be nil when no user identity is configured; mutations then stay
// local-only. If logger is nil, a default logger writing to stderr is used.
func NewStore(tasks []Task, local Saver, mirror Mirror, logger *log.Logger) *Store {
	if logger == nil {
		logger = log.New(os.Stderr, "[tasks] ", log.LstdFlags)
	}
	return &Store{
		tasks:  append([]Task(nil), tasks...),
		local:  local,
		mirror: mirror,
		logger: logger,
		now:    time.Now,
	}
}

// Add normalizes and appends a task, snapshots locally, and enqueues a remote
// upsert. The returned task carries the assigned id and timestamps.
func (s *Store) Add(t Task) (Task, error) {
	t.Title = NormalizeTitle(t.Title)
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	now := s.now()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	t.SetDefaults()
	if t.Position == 0 {
		t.Position = len(s.tasks) + 1
	}
	if err := t.Validate(); err != nil {
		return Task{}, fmt.Errorf("invalid task: %w", err)
	}

	s.tasks = append(s.tasks, t)
	s.persist()
	s.mirrorUpsert(t)
	return t, nil
}

// Update merges a patch into the matching task and re-mirrors the merged
// result. Missing ids are a no-op.
func (s *Store) Update(id string, patch Patch) (Task, bool) {
	for i := range s.tasks {
		if s.tasks[i].ID != id {
			continue
		}
		patch.apply(&s.tasks[i])
		s.tasks[i].UpdatedAt = s.now()
		s.persist()
		s.mirrorUpsert(s.tasks[i])
		return s.tasks[i], true
	}
	return Task{}, false
}

// Delete removes the task with the given id locally and enqueues the remote
// delete. Missing ids are a no-op.
func (s *Store) Delete(id string) bool {
	for i := range s.tasks {
		if s.tasks[i].ID != id {
			continue
		}
		s.tasks = append(s.tasks[:i], s.tasks[i+1:]...)
		s.persist()
		if s.mirror != nil {
			s.mirror.DeleteTask(id)
		}
		return true
	}
	return false
}

// DeleteCompleted removes every done task and enqueues matching remote
// deletes. Returns the number of tasks removed.
func (s *Store) DeleteCompleted() int {
	var kept []Task
	var removed []string
	for _, t := range s.tasks {
		if t.Completed() {
			removed = append(removed, t.ID)
			continue
		}
		kept = append(kept, t)
	}
	if len(removed) == 0 {
		return 0
	}
	s.tasks = kept
	s.persist()
	if s.mirror != nil {
		for _, id := range removed {
			s.mirror.DeleteTask(id)
		}
	}
	return len(removed)
}

// BulkUpdate applies a patch plus a refreshed update timestamp to every task
// matching the named filter, mirroring each changed task individually.
// Filter names are the date buckets, the three priority levels, or "all".
func (s *Store) BulkUpdate(filterName string, patch Patch) (int, error) {
	match, err := s.filterPredicate(filterName)
	if err != nil {
		return 0, err
	}

	changed := 0
	for i := range s.tasks {
		if !match(&s.tasks[i]) {
			continue
		}
		patch.apply(&s.tasks[i])
		s.tasks[i].UpdatedAt = s.now()
		s.mirrorUpsert(s.tasks[i])
		changed++
	}
	if changed > 0 {
		s.persist()
	}
	return changed, nil
}

// filterPredicate resolves a bulk filter name to a predicate.
func (s *Store) filterPredicate(name string) (func(*Task) bool, error) {
	switch name {
	case FilterAll:
		return func(*Task) bool { return true }, nil
	case FilterToday, FilterTomorrow, FilterWeek, FilterOverdue, FilterCompleted, FilterUndated:
		return s.dateBucketPredicate(name), nil
	case string(PriorityLow), string(PriorityMedium), string(PriorityHigh):
		p := Priority(name)
		return func(t *Task) bool { return t.Priority == p }, nil
	}
	return nil, fmt.Errorf("unknown bulk filter %q", name)
}

// Tasks returns a copy of the full collection in insertion order.
func (s *Store) Tasks() []Task {
	return append([]Task(nil), s.tasks...)
}

// Get returns the task with the given id.
func (s *Store) Get(id string) (Task, bool) {
	for _, t := range s.tasks {
		if t.ID == id {
			return t, true
		}
	}
	return Task{}, false
}

// Len returns the number of tasks.
func (s *Store) Len() int { return len(s.tasks) }

// Sorted returns the full collection in one of the six stable total orders.
// Pure: the underlying collection is not reordered.
func (s *Store) Sorted(order SortOrder) []Task {
	out := append([]Task(nil), s.tasks...)
	switch order {
	case SortPriorityHigh:
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].Priority.Rank() > out[j].Priority.Rank()
		})
	case SortPriorityLow:
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].Priority.Rank() < out[j].Priority.Rank()
		})
	case SortDueDate:
		// Undated tasks sort last.
		sort.SliceStable(out, func(i, j int) bool {
			di, dj := out[i].DueDate, out[j].DueDate
			switch {
			case di == nil && dj == nil:
				return false
			case di == nil:
				return false
			case dj == nil:
				return true
			}
			return di.Before(*dj)
		})
	case SortNewest:
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		})
	case SortOldest:
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		})
	case SortAlphabetical:
		sort.SliceStable(out, func(i, j int) bool {
			return strings.ToLower(out[i].Title) < strings.ToLower(out[j].Title)
		})
	}
	return out
}

// ByDate returns tasks matching a named date bucket, computed against the
// current local clock at day granularity.
func (s *Store) ByDate(bucket string) ([]Task, error) {
	switch bucket {
	case FilterToday, FilterTomorrow, FilterWeek, FilterOverdue, FilterCompleted, FilterUndated:
	default:
		return nil, fmt.Errorf("unknown date bucket %q", bucket)
	}
	match := s.dateBucketPredicate(bucket)
	var out []Task
	for i := range s.tasks {
		if match(&s.tasks[i]) {
			out = append(out, s.tasks[i])
		}
	}
	return out, nil
}

// dateBucketPredicate builds a day-granularity predicate against the current
// local date. Comparisons are midnight-aligned: a task due 23:59 today is in
// "today", not "tomorrow".
func (s *Store) dateBucketPredicate(bucket string) func(*Task) bool {
	today := midnight(s.now())
	tomorrow := today.AddDate(0, 0, 1)
	weekEnd := today.AddDate(0, 0, 7)

	switch bucket {
	case FilterToday:
		return func(t *Task) bool {
			return t.DueDate != nil && midnight(*t.DueDate).Equal(today)
		}
	case FilterTomorrow:
		return func(t *Task) bool {
			return t.DueDate != nil && midnight(*t.DueDate).Equal(tomorrow)
		}
	case FilterWeek:
		return func(t *Task) bool {
			if t.DueDate == nil {
				return false
			}
			d := midnight(*t.DueDate)
			return !d.Before(today) && d.Before(weekEnd)
		}
	case FilterOverdue:
		return func(t *Task) bool {
			return t.DueDate != nil && midnight(*t.DueDate).Before(today) && !t.Completed()
		}
	case FilterCompleted:
		return func(t *Task) bool { return t.Completed() }
	case FilterUndated:
		return func(t *Task) bool { return t.DueDate == nil }
	}
	return func(*Task) bool { return false }
}

// SyncFromRemote pulls all remote tasks for the current user and replaces the
// entire local collection with the remote snapshot (remote wins, no merge).
// A nil source means no user identity is known and the call is a no-op.
func (s *Store) SyncFromRemote(ctx context.Context, source RemoteSource) error {
	if source == nil {
		s.logger.Printf("sync skipped: no user identity")
		return nil
	}
	remote, err := source.FetchTasks(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch remote tasks: %w", err)
	}
	s.tasks = remote
	s.persist()
	s.logger.Printf("synced %d tasks from remote", len(remote))
	return nil
}

// Replace swaps the entire collection for the given tasks, snapshots locally,
// and mirrors every task as an upsert.
func (s *Store) Replace(tasks []Task) {
	s.tasks = append([]Task(nil), tasks...)
	s.persist()
	for _, t := range s.tasks {
		s.mirrorUpsert(t)
	}
}

// persist snapshots the collection to local storage. Failures are logged;
// the in-memory collection stays authoritative.
func (s *Store) persist() {
	if s.local == nil {
		return
	}
	if err := s.local.SaveTasks(s.tasks); err != nil {
		s.logger.Printf("Warning: failed to persist tasks: %v", err)
	}
}

func (s *Store) mirrorUpsert(t Task) {
	if s.mirror != nil {
		s.mirror.UpsertTask(t)
	}
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
