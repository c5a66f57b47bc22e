// Package task provides the task model and the local-first task store.
//
// The store is the authoritative view of the user's tasks. Every mutation is
// applied synchronously to the in-memory collection and snapshotted to local
// storage; a mirror intent is enqueued for the remote backend on a
// best-effort basis. Remote failures never roll back local state.
package task

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Priority is the three-level task priority.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Rank returns the fixed sort rank for a priority (high=3, medium=2, low=1).
// Unknown values rank below low.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	}
	return 0
}

// ParsePriority normalizes a priority string. The legacy four-level scheme
// used "urgent" above high; it is accepted on input and folded into high.
// Anything unrecognized becomes medium.
func ParsePriority(s string) Priority {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return PriorityLow
	case "medium":
		return PriorityMedium
	case "high", "urgent":
		return PriorityHigh
	}
	return PriorityMedium
}

// Status is the canonical three-state task status.
type Status string

const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in_progress"
	StatusDone       Status = "done"
)

// ParseStatus normalizes a status string. Legacy representations (boolean
// "completed", the "pending" string scheme) are folded into the canonical
// three states.
func ParseStatus(s string) Status {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "todo", "pending", "open", "false":
		return StatusTodo
	case "in_progress", "in-progress", "doing":
		return StatusInProgress
	case "done", "completed", "closed", "true":
		return StatusDone
	}
	return StatusTodo
}

// Task is a single task owned by the local store and mirrored to the remote
// tasks table keyed by (id, user_id).
type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Priority    Priority   `json:"priority"`
	Status      Status     `json:"status"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	AIGenerated bool       `json:"ai_generated,omitempty"`
	Notes       string     `json:"notes,omitempty"`
	Position    int        `json:"position,omitempty"`
}

// Completed reports whether the task is in the done state.
func (t *Task) Completed() bool {
	return t.Status == StatusDone
}

// Validate checks the task for storable field values.
func (t *Task) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("id is required")
	}
	if t.Title == "" {
		return fmt.Errorf("title is required")
	}
	if len(t.Title) > 500 {
		return fmt.Errorf("title must be 500 characters or less (got %d)", len(t.Title))
	}
	switch t.Priority {
	case PriorityLow, PriorityMedium, PriorityHigh:
	default:
		return fmt.Errorf("unknown priority %q", t.Priority)
	}
	switch t.Status {
	case StatusTodo, StatusInProgress, StatusDone:
	default:
		return fmt.Errorf("unknown status %q", t.Status)
	}
	if t.CreatedAt.IsZero() {
		return fmt.Errorf("created_at is required")
	}
	if t.UpdatedAt.IsZero() {
		return fmt.Errorf("updated_at is required")
	}
	return nil
}

// SetDefaults applies default values for optional fields.
func (t *Task) SetDefaults() {
	if t.Priority == "" {
		t.Priority = PriorityMedium
	}
	if t.Status == "" {
		t.Status = StatusTodo
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = t.CreatedAt
	}
}

// enumerationPrefix matches the "1. ", "12) " style prefixes AI responses
// tend to put in front of suggested task titles.
var enumerationPrefix = regexp.MustCompile(`^\s*\d+[.)]\s+`)

// NormalizeTitle trims whitespace and strips a leading enumeration artifact
// ("1. Buy milk" becomes "Buy milk").
func NormalizeTitle(title string) string {
	return strings.TrimSpace(enumerationPrefix.ReplaceAllString(title, ""))
}

// Patch holds a partial update. Nil fields are left unchanged.
type Patch struct {
	Title       *string    `json:"title,omitempty"`
	Description *string    `json:"description,omitempty"`
	Priority    *Priority  `json:"priority,omitempty"`
	Status      *Status    `json:"status,omitempty"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	ClearDue    bool       `json:"clear_due,omitempty"`
	Notes       *string    `json:"notes,omitempty"`
	Position    *int       `json:"position,omitempty"`
}

// apply merges the patch into the task. The caller refreshes UpdatedAt.
func (p Patch) apply(t *Task) {
	if p.Title != nil {
		t.Title = NormalizeTitle(*p.Title)
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	if p.Status != nil {
		t.Status = *p.Status
	}
	if p.DueDate != nil {
		t.DueDate = p.DueDate
	}
	if p.ClearDue {
		t.DueDate = nil
	}
	if p.Notes != nil {
		t.Notes = *p.Notes
	}
	if p.Position != nil {
		t.Position = *p.Position
	}
}
