package note

import (
	"testing"
	"time"
)

type memSaver struct {
	notes    [][]Note
	projects [][]Project
}

func (m *memSaver) SaveNotes(ns []Note) error {
	m.notes = append(m.notes, ns)
	return nil
}

func (m *memSaver) SaveProjects(ps []Project) error {
	m.projects = append(m.projects, ps)
	return nil
}

func newTestStore(t *testing.T) (*Store, *memSaver, *time.Time) {
	t.Helper()
	saver := &memSaver{}
	now := time.Date(2025, 3, 12, 9, 0, 0, 0, time.UTC)
	s := NewStore(nil, nil, saver, nil)
	s.now = func() time.Time { return now }
	return s, saver, &now
}

func TestAddNoteDefaultsTitle(t *testing.T) {
	s, _, _ := newTestStore(t)
	n, err := s.AddNote("  ", "body", "", "")
	if err != nil {
		t.Fatalf("AddNote: %v", err)
	}
	if n.Title != "Untitled" {
		t.Errorf("title = %q", n.Title)
	}
}

func TestAddNoteRejectsUnknownProject(t *testing.T) {
	s, _, _ := newTestStore(t)
	if _, err := s.AddNote("A", "", "", "missing"); err == nil {
		t.Error("expected error for unknown project")
	}
}

func TestNotesPinnedFirstThenRecency(t *testing.T) {
	s, _, now := newTestStore(t)
	old, _ := s.AddNote("Old", "", "", "")
	*now = now.Add(time.Hour)
	pinned, _ := s.AddNote("Pinned", "", "", "")
	*now = now.Add(time.Hour)
	fresh, _ := s.AddNote("Fresh", "", "", "")
	if _, err := s.TogglePin(pinned.ID); err != nil {
		t.Fatalf("TogglePin: %v", err)
	}

	got := s.Notes("")
	if len(got) != 3 {
		t.Fatalf("len = %d", len(got))
	}
	if got[0].ID != pinned.ID || got[1].ID != fresh.ID || got[2].ID != old.ID {
		t.Errorf("order = [%s %s %s]", got[0].Title, got[1].Title, got[2].Title)
	}
}

func TestNotesFilteredByProject(t *testing.T) {
	s, _, _ := newTestStore(t)
	p, _ := s.AddProject("Work")
	inProject, _ := s.AddNote("A", "", "", p.ID)
	s.AddNote("B", "", "", "")

	got := s.Notes(p.ID)
	if len(got) != 1 || got[0].ID != inProject.ID {
		t.Errorf("filtered = %+v", got)
	}
	if all := s.Notes(""); len(all) != 2 {
		t.Errorf("all = %d", len(all))
	}
}

func TestDeleteProjectOrphansNotes(t *testing.T) {
	s, saver, _ := newTestStore(t)
	p, _ := s.AddProject("Work")
	n, _ := s.AddNote("A", "", "", p.ID)

	s.DeleteProject(p.ID)
	if len(s.Projects()) != 0 {
		t.Error("project should be gone")
	}
	got, ok := s.GetNote(n.ID)
	if !ok {
		t.Fatal("note should survive project deletion")
	}
	if got.ProjectID != "" {
		t.Errorf("project_id = %q, want empty", got.ProjectID)
	}
	if len(saver.notes) == 0 {
		t.Error("orphaning should persist notes")
	}
}

func TestUpdateNoteKeepsTitleWhenBlank(t *testing.T) {
	s, _, now := newTestStore(t)
	n, _ := s.AddNote("Keep", "old", "", "")
	*now = now.Add(time.Minute)

	if err := s.UpdateNote(n.ID, "", "new body"); err != nil {
		t.Fatalf("UpdateNote: %v", err)
	}
	got, _ := s.GetNote(n.ID)
	if got.Title != "Keep" || got.Content != "new body" {
		t.Errorf("note = %+v", got)
	}
	if !got.UpdatedAt.After(got.CreatedAt) {
		t.Error("UpdatedAt not refreshed")
	}
}

func TestUpdateMissingNote(t *testing.T) {
	s, _, _ := newTestStore(t)
	if err := s.UpdateNote("missing", "X", "y"); err == nil {
		t.Error("expected error")
	}
}
