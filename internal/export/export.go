// Package export round-trips the full application state through a single
// portable document, in JSON or YAML.
//
// Import is all-or-nothing: the document is parsed and every record
// validated before any store is touched, so a malformed file can never leave
// storage half-written.
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/masternote/masternote/internal/habit"
	"github.com/masternote/masternote/internal/note"
	"github.com/masternote/masternote/internal/task"
)

// FormatVersion identifies the bundle layout.
const FormatVersion = 1

// Formats accepted by Read and Write.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Bundle is the exported document.
type Bundle struct {
	Version    int             `json:"version" yaml:"version"`
	ExportedAt time.Time       `json:"exported_at" yaml:"exported_at"`
	Tasks      []task.Task     `json:"tasks" yaml:"tasks"`
	Notes      []note.Note     `json:"notes" yaml:"notes"`
	Projects   []note.Project  `json:"projects" yaml:"projects"`
	Habits     []habit.Habit   `json:"habits" yaml:"habits"`
	Settings   map[string]any  `json:"settings,omitempty" yaml:"settings,omitempty"`
}

// Write serializes a bundle to w in the given format.
func Write(w io.Writer, b Bundle, format string) error {
	b.Version = FormatVersion
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(b); err != nil {
			return fmt.Errorf("failed to encode bundle: %w", err)
		}
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		if err := enc.Encode(b); err != nil {
			return fmt.Errorf("failed to encode bundle: %w", err)
		}
	default:
		return fmt.Errorf("unknown format %q (want json or yaml)", format)
	}
	return nil
}

// Read parses and validates a bundle from r. No store is involved; callers
// apply the returned bundle only after Read succeeds.
func Read(r io.Reader, format string) (Bundle, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Bundle{}, fmt.Errorf("failed to read bundle: %w", err)
	}

	var b Bundle
	switch format {
	case FormatJSON:
		if err := json.Unmarshal(data, &b); err != nil {
			return Bundle{}, fmt.Errorf("failed to parse bundle: %w", err)
		}
	case FormatYAML:
		if err := yaml.Unmarshal(data, &b); err != nil {
			return Bundle{}, fmt.Errorf("failed to parse bundle: %w", err)
		}
	default:
		return Bundle{}, fmt.Errorf("unknown format %q (want json or yaml)", format)
	}

	if err := validate(&b); err != nil {
		return Bundle{}, err
	}
	return b, nil
}

// DetectFormat guesses the format from a file name, defaulting to JSON.
func DetectFormat(name string) string {
	switch {
	case strings.HasSuffix(name, ".yaml"), strings.HasSuffix(name, ".yml"):
		return FormatYAML
	default:
		return FormatJSON
	}
}

func validate(b *Bundle) error {
	if b.Version > FormatVersion {
		return fmt.Errorf("bundle version %d is newer than supported version %d", b.Version, FormatVersion)
	}

	seen := map[string]bool{}
	for i := range b.Tasks {
		t := &b.Tasks[i]
		t.SetDefaults()
		if err := t.Validate(); err != nil {
			return fmt.Errorf("task %d: %w", i, err)
		}
		if seen[t.ID] {
			return fmt.Errorf("task %d: duplicate id %s", i, t.ID)
		}
		seen[t.ID] = true
	}

	projects := map[string]bool{}
	for i, p := range b.Projects {
		if p.ID == "" {
			return fmt.Errorf("project %d: missing id", i)
		}
		if strings.TrimSpace(p.Name) == "" {
			return fmt.Errorf("project %d: missing name", i)
		}
		if projects[p.ID] {
			return fmt.Errorf("project %d: duplicate id %s", i, p.ID)
		}
		projects[p.ID] = true
	}

	for i, n := range b.Notes {
		if n.ID == "" {
			return fmt.Errorf("note %d: missing id", i)
		}
		if n.ProjectID != "" && !projects[n.ProjectID] {
			return fmt.Errorf("note %d: unknown project %s", i, n.ProjectID)
		}
	}

	for i, h := range b.Habits {
		if h.ID == "" {
			return fmt.Errorf("habit %d: missing id", i)
		}
		if strings.TrimSpace(h.Name) == "" {
			return fmt.Errorf("habit %d: missing name", i)
		}
		for _, d := range h.CompletedDates {
			if _, err := time.Parse(habit.DateLayout, d); err != nil {
				return fmt.Errorf("habit %d: bad date %q", i, d)
			}
		}
	}
	return nil
}
