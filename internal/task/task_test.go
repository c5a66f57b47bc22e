package task

import (
	"strings"
	"testing"
	"time"
)

func TestNormalizeTitle(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain title", "Buy milk", "Buy milk"},
		{"numbered with dot", "1. Buy milk", "Buy milk"},
		{"numbered with paren", "12) Call dentist", "Call dentist"},
		{"leading whitespace", "  3.  Water plants", "Water plants"},
		{"number without separator", "2023 planning", "2023 planning"},
		{"decimal is not enumeration", "1.5x speedup", "1.5x speedup"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeTitle(tt.input); got != tt.want {
				t.Errorf("NormalizeTitle(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestParsePriority(t *testing.T) {
	tests := []struct {
		input string
		want  Priority
	}{
		{"low", PriorityLow},
		{"medium", PriorityMedium},
		{"high", PriorityHigh},
		{"urgent", PriorityHigh}, // legacy four-level alias
		{"HIGH", PriorityHigh},
		{"", PriorityMedium},
		{"banana", PriorityMedium},
	}

	for _, tt := range tests {
		if got := ParsePriority(tt.input); got != tt.want {
			t.Errorf("ParsePriority(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestParseStatus(t *testing.T) {
	tests := []struct {
		input string
		want  Status
	}{
		{"todo", StatusTodo},
		{"pending", StatusTodo},
		{"in_progress", StatusInProgress},
		{"done", StatusDone},
		{"completed", StatusDone},
		{"true", StatusDone},
		{"false", StatusTodo},
		{"", StatusTodo},
	}

	for _, tt := range tests {
		if got := ParseStatus(tt.input); got != tt.want {
			t.Errorf("ParseStatus(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestTaskValidate(t *testing.T) {
	now := time.Now()
	valid := Task{
		ID:        "t-1",
		Title:     "Write report",
		Priority:  PriorityMedium,
		Status:    StatusTodo,
		CreatedAt: now,
		UpdatedAt: now,
	}

	tests := []struct {
		name    string
		mutate  func(*Task)
		wantErr string
	}{
		{"valid", func(*Task) {}, ""},
		{"missing id", func(tk *Task) { tk.ID = "" }, "id is required"},
		{"missing title", func(tk *Task) { tk.Title = "" }, "title is required"},
		{"title too long", func(tk *Task) { tk.Title = strings.Repeat("x", 501) }, "500 characters"},
		{"bad priority", func(tk *Task) { tk.Priority = "urgent" }, "unknown priority"},
		{"bad status", func(tk *Task) { tk.Status = "open" }, "unknown status"},
		{"zero created_at", func(tk *Task) { tk.CreatedAt = time.Time{} }, "created_at is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tk := valid
			tt.mutate(&tk)
			err := tk.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestPriorityRank(t *testing.T) {
	if PriorityHigh.Rank() != 3 || PriorityMedium.Rank() != 2 || PriorityLow.Rank() != 1 {
		t.Fatalf("fixed ranks changed: high=%d medium=%d low=%d",
			PriorityHigh.Rank(), PriorityMedium.Rank(), PriorityLow.Rank())
	}
	if Priority("").Rank() >= PriorityLow.Rank() {
		t.Fatalf("unknown priority must rank below low")
	}
}
