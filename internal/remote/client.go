// Package remote provides the Supabase (PostgREST) client that mirrors
// slices of local state to the hosted backend.
//
// Tables: tasks (keyed by id + user_id), settings (one preferences JSON blob
// per user), api_keys, user_preferences, and the legacy messages table used
// only by the one-shot migration path.
//
// Every call is best-effort from the application's point of view: callers
// wrap errors, log them, and never roll back local state.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/masternote/masternote/internal/chat"
	"github.com/masternote/masternote/internal/task"
)

// Config holds the connection parameters for the hosted backend.
type Config struct {
	// BaseURL is the project URL, e.g. https://xyz.supabase.co
	BaseURL string

	// AnonKey is the project's anon API key.
	AnonKey string

	// UserID scopes every row to the signed-in user.
	UserID string

	// Timeout bounds each request (default: 15s).
	Timeout time.Duration

	// Logger for request failures (default: stderr logger).
	Logger *log.Logger
}

// Client talks PostgREST to the hosted backend.
type Client struct {
	baseURL string
	anonKey string
	userID  string
	http    *http.Client
	logger  *log.Logger
}

// New creates a backend client. Returns nil when the config carries no
// user identity or base URL; callers treat a nil client as "signed out".
func New(cfg Config) *Client {
	if cfg.BaseURL == "" || cfg.UserID == "" {
		return nil
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(os.Stderr, "[remote] ", log.LstdFlags)
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		anonKey: cfg.AnonKey,
		userID:  cfg.UserID,
		http:    &http.Client{Timeout: cfg.Timeout},
		logger:  cfg.Logger,
	}
}

// UserID returns the user identity this client is scoped to.
func (c *Client) UserID() string { return c.userID }

// taskRow is the remote tasks table row shape.
type taskRow struct {
	ID          string  `json:"id"`
	UserID      string  `json:"user_id"`
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	Priority    string  `json:"priority"`
	Status      string  `json:"status"`
	DueDate     *string `json:"due_date,omitempty"`
	CreatedAt   string  `json:"created_at"`
	UpdatedAt   string  `json:"updated_at"`
	AIGenerated bool    `json:"ai_generated"`
	Notes       string  `json:"notes,omitempty"`
	Position    int     `json:"position,omitempty"`
}

func (c *Client) toRow(t task.Task) taskRow {
	row := taskRow{
		ID:          t.ID,
		UserID:      c.userID,
		Title:       t.Title,
		Description: t.Description,
		Priority:    string(t.Priority),
		Status:      string(t.Status),
		CreatedAt:   t.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   t.UpdatedAt.Format(time.RFC3339),
		AIGenerated: t.AIGenerated,
		Notes:       t.Notes,
		Position:    t.Position,
	}
	if t.DueDate != nil {
		due := t.DueDate.Format(time.RFC3339)
		row.DueDate = &due
	}
	return row
}

func fromRow(row taskRow) task.Task {
	t := task.Task{
		ID:          row.ID,
		Title:       row.Title,
		Description: row.Description,
		Priority:    task.ParsePriority(row.Priority),
		Status:      task.ParseStatus(row.Status),
		AIGenerated: row.AIGenerated,
		Notes:       row.Notes,
		Position:    row.Position,
	}
	if ts, err := time.Parse(time.RFC3339, row.CreatedAt); err == nil {
		t.CreatedAt = ts
	}
	if ts, err := time.Parse(time.RFC3339, row.UpdatedAt); err == nil {
		t.UpdatedAt = ts
	}
	if row.DueDate != nil {
		if ts, err := time.Parse(time.RFC3339, *row.DueDate); err == nil {
			t.DueDate = &ts
		}
	}
	return t
}

// UpsertTask inserts or updates a task row keyed by (id, user_id).
func (c *Client) UpsertTask(ctx context.Context, t task.Task) error {
	body, err := json.Marshal([]taskRow{c.toRow(t)})
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}
	return c.do(ctx, http.MethodPost, "/rest/v1/tasks", nil, body, map[string]string{
		"Prefer": "resolution=merge-duplicates",
	}, nil)
}

// DeleteTask removes a task row, filtered by the current user id.
func (c *Client) DeleteTask(ctx context.Context, id string) error {
	q := url.Values{}
	q.Set("id", "eq."+id)
	q.Set("user_id", "eq."+c.userID)
	return c.do(ctx, http.MethodDelete, "/rest/v1/tasks", q, nil, nil, nil)
}

// FetchTasks pulls all task rows for the current user. Implements
// task.RemoteSource for the full pull-and-replace sync.
func (c *Client) FetchTasks(ctx context.Context) ([]task.Task, error) {
	q := url.Values{}
	q.Set("user_id", "eq."+c.userID)
	q.Set("select", "*")

	var rows []taskRow
	if err := c.do(ctx, http.MethodGet, "/rest/v1/tasks", q, nil, nil, &rows); err != nil {
		return nil, err
	}
	tasks := make([]task.Task, 0, len(rows))
	for _, row := range rows {
		tasks = append(tasks, fromRow(row))
	}
	return tasks, nil
}

// settingsRow is the remote settings table row shape: one JSON preferences
// blob per user.
type settingsRow struct {
	UserID      string          `json:"user_id"`
	Preferences json.RawMessage `json:"preferences"`
}

// FetchPreferences loads the chat preferences slice from the user's settings
// row. Implements chat.PreferencesSource. A missing row yields zero-valued
// preferences, not an error.
func (c *Client) FetchPreferences(ctx context.Context) (chat.Preferences, error) {
	raw, err := c.fetchSettings(ctx)
	if err != nil {
		return chat.Preferences{}, err
	}
	var prefs chat.Preferences
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &prefs); err != nil {
			return chat.Preferences{}, fmt.Errorf("failed to parse preferences blob: %w", err)
		}
	}
	return prefs, nil
}

// MergePreferences read-merge-writes the chat preferences slice into the
// user's settings row, preserving unrelated keys already in the blob.
func (c *Client) MergePreferences(ctx context.Context, p chat.Preferences) error {
	raw, err := c.fetchSettings(ctx)
	if err != nil {
		return err
	}
	merged := map[string]json.RawMessage{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &merged); err != nil {
			// A corrupt remote blob is replaced rather than preserved.
			c.logger.Printf("Warning: remote preferences blob unparsable, replacing: %v", err)
			merged = map[string]json.RawMessage{}
		}
	}
	for key, v := range map[string]any{
		"current_session_id": p.CurrentSessionID,
		"folders":            p.Folders,
		"session_folders":    p.SessionFolders,
	} {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to marshal preference %s: %w", key, err)
		}
		merged[key] = data
	}
	blob, err := json.Marshal(merged)
	if err != nil {
		return fmt.Errorf("failed to marshal preferences blob: %w", err)
	}

	body, err := json.Marshal([]settingsRow{{UserID: c.userID, Preferences: blob}})
	if err != nil {
		return fmt.Errorf("failed to marshal settings row: %w", err)
	}
	return c.do(ctx, http.MethodPost, "/rest/v1/settings", nil, body, map[string]string{
		"Prefer": "resolution=merge-duplicates",
	}, nil)
}

func (c *Client) fetchSettings(ctx context.Context) (json.RawMessage, error) {
	q := url.Values{}
	q.Set("user_id", "eq."+c.userID)
	q.Set("select", "preferences")

	var rows []settingsRow
	if err := c.do(ctx, http.MethodGet, "/rest/v1/settings", q, nil, nil, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0].Preferences, nil
}

// UserPreferences is the user_preferences table row.
type UserPreferences struct {
	UserID        string `json:"user_id"`
	SelectedModel string `json:"selected_model,omitempty"`
	DarkMode      bool   `json:"dark_mode"`
}

// PutUserPreferences upserts the selected model and dark-mode flag.
func (c *Client) PutUserPreferences(ctx context.Context, p UserPreferences) error {
	p.UserID = c.userID
	body, err := json.Marshal([]UserPreferences{p})
	if err != nil {
		return fmt.Errorf("failed to marshal user preferences: %w", err)
	}
	return c.do(ctx, http.MethodPost, "/rest/v1/user_preferences", nil, body, map[string]string{
		"Prefer": "resolution=merge-duplicates",
	}, nil)
}

// GetUserPreferences fetches the selected model and dark-mode flag.
func (c *Client) GetUserPreferences(ctx context.Context) (UserPreferences, error) {
	q := url.Values{}
	q.Set("user_id", "eq."+c.userID)
	q.Set("select", "*")

	var rows []UserPreferences
	if err := c.do(ctx, http.MethodGet, "/rest/v1/user_preferences", q, nil, nil, &rows); err != nil {
		return UserPreferences{}, err
	}
	if len(rows) == 0 {
		return UserPreferences{UserID: c.userID}, nil
	}
	return rows[0], nil
}

// APIKeys is the api_keys table row: one provider key per column.
type APIKeys struct {
	UserID       string `json:"user_id"`
	OpenAIKey    string `json:"openai_key,omitempty"`
	AnthropicKey string `json:"anthropic_key,omitempty"`
}

// PutAPIKeys upserts the user's provider API keys.
func (c *Client) PutAPIKeys(ctx context.Context, keys APIKeys) error {
	keys.UserID = c.userID
	body, err := json.Marshal([]APIKeys{keys})
	if err != nil {
		return fmt.Errorf("failed to marshal api keys: %w", err)
	}
	return c.do(ctx, http.MethodPost, "/rest/v1/api_keys", nil, body, map[string]string{
		"Prefer": "resolution=merge-duplicates",
	}, nil)
}

// GetAPIKeys fetches the user's provider API keys.
func (c *Client) GetAPIKeys(ctx context.Context) (APIKeys, error) {
	q := url.Values{}
	q.Set("user_id", "eq."+c.userID)
	q.Set("select", "*")

	var rows []APIKeys
	if err := c.do(ctx, http.MethodGet, "/rest/v1/api_keys", q, nil, nil, &rows); err != nil {
		return APIKeys{}, err
	}
	if len(rows) == 0 {
		return APIKeys{UserID: c.userID}, nil
	}
	return rows[0], nil
}

// MessageRow is the legacy messages table row, used only by the one-shot
// conversation history migration.
type MessageRow struct {
	UserID    string `json:"user_id"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
}

// InsertMessages bulk-inserts legacy conversation history rows.
func (c *Client) InsertMessages(ctx context.Context, rows []MessageRow) error {
	if len(rows) == 0 {
		return nil
	}
	for i := range rows {
		rows[i].UserID = c.userID
	}
	body, err := json.Marshal(rows)
	if err != nil {
		return fmt.Errorf("failed to marshal messages: %w", err)
	}
	return c.do(ctx, http.MethodPost, "/rest/v1/messages", nil, body, nil, nil)
}

// do executes one PostgREST request. A non-nil out decodes the response body.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body []byte, headers map[string]string, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("apikey", c.anonKey)
	req.Header.Set("Authorization", "Bearer "+c.anonKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s %s failed: status=%d body=%s",
			method, path, resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode %s response: %w", path, err)
		}
	}
	return nil
}
