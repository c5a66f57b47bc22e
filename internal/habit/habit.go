// Package habit implements the daily habit tracker.
//
// Completions are recorded at day granularity as "YYYY-MM-DD" strings in the
// device's local timezone. Streaks count consecutive days ending today or
// yesterday; missing today does not break a streak until the day is over.
package habit

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

// DateLayout is the completion date format.
const DateLayout = "2006-01-02"

// Habit is one tracked habit.
type Habit struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Emoji          string   `json:"emoji,omitempty"`
	CreatedAt      string   `json:"created_at"`
	CompletedDates []string `json:"completed_dates"`
}

// CompletedOn reports whether the habit was completed on the given date.
func (h *Habit) CompletedOn(date string) bool {
	for _, d := range h.CompletedDates {
		if d == date {
			return true
		}
	}
	return false
}

// Saver persists the full habit collection.
type Saver interface {
	SaveHabits([]Habit) error
}

// Store manages habits with local-first persistence.
type Store struct {
	mu     sync.Mutex
	habits []Habit
	local  Saver
	logger *log.Logger
	now    func() time.Time
}

// NewStore creates a habit store over an initial collection.
func NewStore(habits []Habit, local Saver, logger *log.Logger) *Store {
	if logger == nil {
		logger = log.New(os.Stderr, "", log.LstdFlags)
	}
	return &Store{habits: habits, local: local, logger: logger, now: time.Now}
}

// Add creates a habit.
func (s *Store) Add(name, emoji string) (Habit, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Habit{}, fmt.Errorf("habit name is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	h := Habit{
		ID:             uuid.New().String(),
		Name:           name,
		Emoji:          emoji,
		CreatedAt:      s.now().Format(time.RFC3339),
		CompletedDates: []string{},
	}
	s.habits = append(s.habits, h)
	s.persist()
	return h, nil
}

// Delete removes a habit by id.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, h := range s.habits {
		if h.ID == id {
			s.habits = append(s.habits[:i], s.habits[i+1:]...)
			s.persist()
			return
		}
	}
}

// Rename changes a habit's name.
func (s *Store) Rename(id, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("habit name is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.habits {
		if s.habits[i].ID == id {
			s.habits[i].Name = name
			s.persist()
			return nil
		}
	}
	return fmt.Errorf("habit %s not found", id)
}

// ToggleToday flips today's completion for a habit and reports the new
// state. Unknown ids are a no-op reporting false.
func (s *Store) ToggleToday(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	today := s.now().Format(DateLayout)
	for i := range s.habits {
		if s.habits[i].ID != id {
			continue
		}
		h := &s.habits[i]
		for j, d := range h.CompletedDates {
			if d == today {
				h.CompletedDates = append(h.CompletedDates[:j], h.CompletedDates[j+1:]...)
				s.persist()
				return false
			}
		}
		h.CompletedDates = append(h.CompletedDates, today)
		sort.Strings(h.CompletedDates)
		s.persist()
		return true
	}
	return false
}

// All returns a copy of the habit collection.
func (s *Store) All() []Habit {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Habit, len(s.habits))
	copy(out, s.habits)
	return out
}

// Get returns a habit by id.
func (s *Store) Get(id string) (Habit, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, h := range s.habits {
		if h.ID == id {
			return h, true
		}
	}
	return Habit{}, false
}

// CurrentStreak counts consecutive completed days ending today or, if today
// is not yet completed, ending yesterday.
func (s *Store) CurrentStreak(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.findLocked(id)
	if !ok {
		return 0
	}
	completed := dateSet(h.CompletedDates)
	day := midnight(s.now())
	if !completed[day.Format(DateLayout)] {
		day = day.AddDate(0, 0, -1)
	}
	streak := 0
	for completed[day.Format(DateLayout)] {
		streak++
		day = day.AddDate(0, 0, -1)
	}
	return streak
}

// LongestStreak finds the longest run of consecutive completed days.
func (s *Store) LongestStreak(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.findLocked(id)
	if !ok || len(h.CompletedDates) == 0 {
		return 0
	}
	days := make([]time.Time, 0, len(h.CompletedDates))
	for _, d := range h.CompletedDates {
		if ts, err := time.ParseInLocation(DateLayout, d, time.Local); err == nil {
			days = append(days, ts)
		}
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	longest, run := 0, 0
	var prev time.Time
	for i, day := range days {
		if i > 0 && day.Equal(prev) {
			continue
		}
		if i > 0 && day.Equal(prev.AddDate(0, 0, 1)) {
			run++
		} else {
			run = 1
		}
		if run > longest {
			longest = run
		}
		prev = day
	}
	return longest
}

// Replace swaps the habit collection and snapshots it locally.
func (s *Store) Replace(habits []Habit) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.habits = append([]Habit(nil), habits...)
	s.persist()
}

func (s *Store) findLocked(id string) (Habit, bool) {
	for _, h := range s.habits {
		if h.ID == id {
			return h, true
		}
	}
	return Habit{}, false
}

func (s *Store) persist() {
	if s.local == nil {
		return
	}
	snapshot := make([]Habit, len(s.habits))
	copy(snapshot, s.habits)
	if err := s.local.SaveHabits(snapshot); err != nil {
		s.logger.Printf("Warning: failed to save habits: %v", err)
	}
}

func dateSet(dates []string) map[string]bool {
	set := make(map[string]bool, len(dates))
	for _, d := range dates {
		set[d] = true
	}
	return set
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
