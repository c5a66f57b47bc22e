package task

import (
	"context"
	"errors"
	"testing"
	"time"
)

// memSaver records local snapshots.
type memSaver struct {
	saved [][]Task
	fail  bool
}

func (m *memSaver) SaveTasks(tasks []Task) error {
	if m.fail {
		return errors.New("disk full")
	}
	m.saved = append(m.saved, append([]Task(nil), tasks...))
	return nil
}

// memMirror records mirror intents.
type memMirror struct {
	upserts []Task
	deletes []string
}

func (m *memMirror) UpsertTask(t Task)    { m.upserts = append(m.upserts, t) }
func (m *memMirror) DeleteTask(id string) { m.deletes = append(m.deletes, id) }

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func newTestStore(t *testing.T, tasks []Task) (*Store, *memSaver, *memMirror) {
	t.Helper()
	saver := &memSaver{}
	mirror := &memMirror{}
	s := NewStore(tasks, saver, mirror, nil)
	return s, saver, mirror
}

func TestAddStripsEnumeration(t *testing.T) {
	s, saver, mirror := newTestStore(t, nil)

	got, err := s.Add(Task{Title: "1. Buy milk"})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if got.Title != "Buy milk" {
		t.Errorf("stored title = %q, want %q", got.Title, "Buy milk")
	}
	if got.ID == "" {
		t.Error("Add did not assign an id")
	}
	if len(saver.saved) != 1 {
		t.Errorf("local snapshots = %d, want 1", len(saver.saved))
	}
	if len(mirror.upserts) != 1 || mirror.upserts[0].Title != "Buy milk" {
		t.Errorf("mirror upserts = %+v, want one with stripped title", mirror.upserts)
	}
}

func TestAddLocalFirstOnPersistFailure(t *testing.T) {
	saver := &memSaver{fail: true}
	s := NewStore(nil, saver, nil, nil)

	if _, err := s.Add(Task{Title: "Keep going"}); err != nil {
		t.Fatalf("Add must not propagate persistence failure, got %v", err)
	}
	if s.Len() != 1 {
		t.Fatalf("local mutation rolled back: len = %d, want 1", s.Len())
	}
}

func TestUpdateMissingIsNoop(t *testing.T) {
	s, saver, mirror := newTestStore(t, nil)

	if _, ok := s.Update("nope", Patch{Notes: strPtr("x")}); ok {
		t.Fatal("Update of missing id reported success")
	}
	if len(saver.saved) != 0 || len(mirror.upserts) != 0 {
		t.Fatal("Update of missing id had side effects")
	}
}

func TestSortedOrders(t *testing.T) {
	base := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	due := func(d int) *time.Time {
		v := base.AddDate(0, 0, d)
		return &v
	}
	tasks := []Task{
		mk("a", "zebra", PriorityLow, StatusTodo, base, nil),
		mk("b", "apple", PriorityHigh, StatusTodo, base.Add(time.Hour), due(2)),
		mk("c", "Mango", PriorityMedium, StatusTodo, base.Add(2*time.Hour), due(1)),
	}

	tests := []struct {
		order SortOrder
		want  []string
	}{
		{SortPriorityHigh, []string{"b", "c", "a"}},
		{SortPriorityLow, []string{"a", "c", "b"}},
		{SortDueDate, []string{"c", "b", "a"}}, // undated last
		{SortNewest, []string{"c", "b", "a"}},
		{SortOldest, []string{"a", "b", "c"}},
		{SortAlphabetical, []string{"b", "c", "a"}},
	}

	for _, tt := range tests {
		t.Run(string(tt.order), func(t *testing.T) {
			s, _, _ := newTestStore(t, tasks)
			got := s.Sorted(tt.order)
			for i, id := range tt.want {
				if got[i].ID != id {
					t.Fatalf("order %s: got %v, want %v", tt.order, ids(got), tt.want)
				}
			}
			// Pure: original insertion order untouched.
			if s.tasks[0].ID != "a" || s.tasks[2].ID != "c" {
				t.Fatal("Sorted reordered the underlying collection")
			}
		})
	}
}

func TestSortedPriorityHighScenario(t *testing.T) {
	base := time.Now()
	s, _, _ := newTestStore(t, []Task{
		mk("1", "one", PriorityLow, StatusTodo, base, nil),
		mk("2", "two", PriorityHigh, StatusTodo, base, nil),
		mk("3", "three", PriorityMedium, StatusTodo, base, nil),
	})
	got := s.Sorted(SortPriorityHigh)
	want := []Priority{PriorityHigh, PriorityMedium, PriorityLow}
	for i, p := range want {
		if got[i].Priority != p {
			t.Fatalf("priority-high order = %v, want [high medium low]", ids(got))
		}
	}
}

func TestByDateBuckets(t *testing.T) {
	// Fixed "now": Wednesday 2025-03-12 09:30 local.
	now := time.Date(2025, 3, 12, 9, 30, 0, 0, time.Local)
	at := func(day int, hour int) *time.Time {
		v := time.Date(2025, 3, day, hour, 0, 0, 0, time.Local)
		return &v
	}

	tasks := []Task{
		mk("late-today", "t1", PriorityLow, StatusTodo, now, at(12, 23)),   // 23:00 today
		mk("tomorrow", "t2", PriorityLow, StatusTodo, now, at(13, 0)),      // midnight tomorrow
		mk("in-week", "t3", PriorityLow, StatusTodo, now, at(18, 10)),      // 6 days out
		mk("next-week", "t4", PriorityLow, StatusTodo, now, at(19, 10)),    // 7 days out
		mk("overdue", "t5", PriorityLow, StatusTodo, now, at(11, 23)),      // yesterday
		mk("overdue-done", "t6", PriorityLow, StatusDone, now, at(11, 10)), // done yesterday
		mk("undated", "t7", PriorityLow, StatusTodo, now, nil),
	}

	s, _, _ := newTestStore(t, tasks)
	s.now = fixedClock(now)

	tests := []struct {
		bucket string
		want   []string
	}{
		{FilterToday, []string{"late-today"}},
		{FilterTomorrow, []string{"tomorrow"}},
		{FilterWeek, []string{"late-today", "tomorrow", "in-week"}},
		{FilterOverdue, []string{"overdue"}}, // done tasks excluded
		{FilterCompleted, []string{"overdue-done"}},
		{FilterUndated, []string{"undated"}},
	}

	for _, tt := range tests {
		t.Run(tt.bucket, func(t *testing.T) {
			got, err := s.ByDate(tt.bucket)
			if err != nil {
				t.Fatalf("ByDate(%s): %v", tt.bucket, err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("ByDate(%s) = %v, want %v", tt.bucket, ids(got), tt.want)
			}
			for i, id := range tt.want {
				if got[i].ID != id {
					t.Fatalf("ByDate(%s) = %v, want %v", tt.bucket, ids(got), tt.want)
				}
			}
		})
	}

	if _, err := s.ByDate("someday"); err == nil {
		t.Fatal("ByDate accepted an unknown bucket")
	}
}

func TestBulkUpdateCompletedOnly(t *testing.T) {
	now := time.Date(2025, 3, 12, 9, 0, 0, 0, time.UTC)
	later := now.Add(time.Hour)

	tasks := []Task{
		mk("a", "done one", PriorityHigh, StatusDone, now, nil),
		mk("b", "open one", PriorityHigh, StatusTodo, now, nil),
		mk("c", "done two", PriorityMedium, StatusDone, now, nil),
	}
	s, _, mirror := newTestStore(t, tasks)
	s.now = fixedClock(later)

	low := PriorityLow
	n, err := s.BulkUpdate(FilterCompleted, Patch{Priority: &low})
	if err != nil {
		t.Fatalf("BulkUpdate: %v", err)
	}
	if n != 2 {
		t.Fatalf("changed = %d, want 2", n)
	}

	for _, tc := range []struct {
		id       string
		priority Priority
		updated  time.Time
	}{
		{"a", PriorityLow, later},
		{"b", PriorityHigh, now}, // untouched
		{"c", PriorityLow, later},
	} {
		got, _ := s.Get(tc.id)
		if got.Priority != tc.priority || !got.UpdatedAt.Equal(tc.updated) {
			t.Errorf("task %s = {priority %s, updated %v}, want {%s, %v}",
				tc.id, got.Priority, got.UpdatedAt, tc.priority, tc.updated)
		}
	}
	if len(mirror.upserts) != 2 {
		t.Errorf("mirror upserts = %d, want one per changed task", len(mirror.upserts))
	}
}

func TestBulkUpdateUnknownFilter(t *testing.T) {
	s, _, _ := newTestStore(t, nil)
	if _, err := s.BulkUpdate("someday", Patch{}); err == nil {
		t.Fatal("BulkUpdate accepted an unknown filter")
	}
}

func TestDeleteCompleted(t *testing.T) {
	now := time.Now()
	s, _, mirror := newTestStore(t, []Task{
		mk("a", "done", PriorityLow, StatusDone, now, nil),
		mk("b", "open", PriorityLow, StatusTodo, now, nil),
	})

	if n := s.DeleteCompleted(); n != 1 {
		t.Fatalf("DeleteCompleted = %d, want 1", n)
	}
	if s.Len() != 1 {
		t.Fatalf("len = %d, want 1", s.Len())
	}
	if len(mirror.deletes) != 1 || mirror.deletes[0] != "a" {
		t.Fatalf("mirror deletes = %v, want [a]", mirror.deletes)
	}
}

func TestSyncFromRemoteReplaces(t *testing.T) {
	now := time.Now()
	s, saver, _ := newTestStore(t, []Task{
		mk("local-only", "kept nowhere", PriorityLow, StatusTodo, now, nil),
	})

	remote := []Task{
		mk("r1", "remote one", PriorityHigh, StatusTodo, now, nil),
		mk("r2", "remote two", PriorityLow, StatusDone, now, nil),
	}
	err := s.SyncFromRemote(context.Background(), staticSource(remote))
	if err != nil {
		t.Fatalf("SyncFromRemote: %v", err)
	}
	if s.Len() != 2 {
		t.Fatalf("len = %d, want remote snapshot to replace local state", s.Len())
	}
	if _, ok := s.Get("local-only"); ok {
		t.Fatal("local-only task survived a remote-wins sync")
	}
	if len(saver.saved) == 0 {
		t.Fatal("sync did not snapshot the replaced collection")
	}
}

func TestSyncFromRemoteNoUser(t *testing.T) {
	s, saver, _ := newTestStore(t, nil)
	if err := s.SyncFromRemote(context.Background(), nil); err != nil {
		t.Fatalf("SyncFromRemote with nil source = %v, want no-op", err)
	}
	if len(saver.saved) != 0 {
		t.Fatal("no-op sync wrote a snapshot")
	}
}

type staticSource []Task

func (s staticSource) FetchTasks(context.Context) ([]Task, error) {
	return append([]Task(nil), s...), nil
}

func mk(id, title string, p Priority, st Status, created time.Time, due *time.Time) Task {
	return Task{
		ID:        id,
		Title:     title,
		Priority:  p,
		Status:    st,
		DueDate:   due,
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func ids(tasks []Task) []string {
	out := make([]string, len(tasks))
	for i, t := range tasks {
		out[i] = t.ID
	}
	return out
}

func strPtr(s string) *string { return &s }
