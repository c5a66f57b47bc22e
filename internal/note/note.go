// Package note implements sticky notes and the projects that group them.
package note

import (
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Note is one sticky note.
type Note struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Color     string    `json:"color,omitempty"`
	ProjectID string    `json:"project_id,omitempty"`
	Pinned    bool      `json:"pinned"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Project groups notes.
type Project struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Saver persists the note and project collections.
type Saver interface {
	SaveNotes([]Note) error
	SaveProjects([]Project) error
}

// Store manages notes and projects with local-first persistence.
type Store struct {
	mu       sync.Mutex
	notes    []Note
	projects []Project
	local    Saver
	logger   *log.Logger
	now      func() time.Time
}

// NewStore creates a note store over initial collections.
func NewStore(notes []Note, projects []Project, local Saver, logger *log.Logger) *Store {
	if logger == nil {
		logger = log.New(os.Stderr, "", log.LstdFlags)
	}
	return &Store{notes: notes, projects: projects, local: local, logger: logger, now: time.Now}
}

// AddNote creates a note. An empty title falls back to "Untitled".
func (s *Store) AddNote(title, content, color, projectID string) (Note, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		title = "Untitled"
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if projectID != "" && !s.projectExistsLocked(projectID) {
		return Note{}, fmt.Errorf("project %s not found", projectID)
	}
	now := s.now()
	n := Note{
		ID:        uuid.New().String(),
		Title:     title,
		Content:   content,
		Color:     color,
		ProjectID: projectID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.notes = append(s.notes, n)
	s.persistNotes()
	return n, nil
}

// UpdateNote replaces a note's title and content.
func (s *Store) UpdateNote(id, title, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.notes {
		if s.notes[i].ID != id {
			continue
		}
		if t := strings.TrimSpace(title); t != "" {
			s.notes[i].Title = t
		}
		s.notes[i].Content = content
		s.notes[i].UpdatedAt = s.now()
		s.persistNotes()
		return nil
	}
	return fmt.Errorf("note %s not found", id)
}

// TogglePin flips a note's pinned flag and reports the new state.
func (s *Store) TogglePin(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.notes {
		if s.notes[i].ID == id {
			s.notes[i].Pinned = !s.notes[i].Pinned
			s.notes[i].UpdatedAt = s.now()
			s.persistNotes()
			return s.notes[i].Pinned, nil
		}
	}
	return false, fmt.Errorf("note %s not found", id)
}

// DeleteNote removes a note by id.
func (s *Store) DeleteNote(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, n := range s.notes {
		if n.ID == id {
			s.notes = append(s.notes[:i], s.notes[i+1:]...)
			s.persistNotes()
			return
		}
	}
}

// Notes returns notes, pinned first, most recently updated first within each
// group. An empty projectID returns all notes.
func (s *Store) Notes(projectID string) []Note {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Note, 0, len(s.notes))
	for _, n := range s.notes {
		if projectID == "" || n.ProjectID == projectID {
			out = append(out, n)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Pinned != out[j].Pinned {
			return out[i].Pinned
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out
}

// GetNote returns a note by id.
func (s *Store) GetNote(id string) (Note, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range s.notes {
		if n.ID == id {
			return n, true
		}
	}
	return Note{}, false
}

// AddProject creates a project.
func (s *Store) AddProject(name string) (Project, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Project{}, fmt.Errorf("project name is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p := Project{
		ID:        uuid.New().String(),
		Name:      name,
		CreatedAt: s.now(),
	}
	s.projects = append(s.projects, p)
	s.persistProjects()
	return p, nil
}

// DeleteProject removes a project. Its notes survive, unassigned.
func (s *Store) DeleteProject(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, p := range s.projects {
		if p.ID != id {
			continue
		}
		s.projects = append(s.projects[:i], s.projects[i+1:]...)
		changed := false
		for j := range s.notes {
			if s.notes[j].ProjectID == id {
				s.notes[j].ProjectID = ""
				changed = true
			}
		}
		s.persistProjects()
		if changed {
			s.persistNotes()
		}
		return
	}
}

// Projects returns the project collection, oldest first.
func (s *Store) Projects() []Project {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Project, len(s.projects))
	copy(out, s.projects)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Replace swaps both collections and snapshots them locally.
func (s *Store) Replace(notes []Note, projects []Project) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notes = append([]Note(nil), notes...)
	s.projects = append([]Project(nil), projects...)
	s.persistNotes()
	s.persistProjects()
}

func (s *Store) projectExistsLocked(id string) bool {
	for _, p := range s.projects {
		if p.ID == id {
			return true
		}
	}
	return false
}

func (s *Store) persistNotes() {
	if s.local == nil {
		return
	}
	snapshot := make([]Note, len(s.notes))
	copy(snapshot, s.notes)
	if err := s.local.SaveNotes(snapshot); err != nil {
		s.logger.Printf("Warning: failed to save notes: %v", err)
	}
}

func (s *Store) persistProjects() {
	if s.local == nil {
		return
	}
	snapshot := make([]Project, len(s.projects))
	copy(snapshot, s.projects)
	if err := s.local.SaveProjects(snapshot); err != nil {
		s.logger.Printf("Warning: failed to save projects: %v", err)
	}
}
