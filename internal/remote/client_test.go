package remote

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/masternote/masternote/internal/chat"
	"github.com/masternote/masternote/internal/task"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := New(Config{
		BaseURL: srv.URL,
		AnonKey: "test-anon-key",
		UserID:  "user-1",
	})
	if c == nil {
		t.Fatal("expected non-nil client")
	}
	return c
}

func TestNewRequiresIdentity(t *testing.T) {
	if c := New(Config{BaseURL: "https://example.supabase.co"}); c != nil {
		t.Error("expected nil client without user id")
	}
	if c := New(Config{UserID: "user-1"}); c != nil {
		t.Error("expected nil client without base URL")
	}
}

func TestUpsertTaskSendsMergeDuplicates(t *testing.T) {
	var gotPrefer, gotKey string
	var gotBody []taskRow
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/rest/v1/tasks" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		gotPrefer = r.Header.Get("Prefer")
		gotKey = r.Header.Get("apikey")
		data, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(data, &gotBody); err != nil {
			t.Fatalf("invalid body: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
	})

	due := time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)
	err := c.UpsertTask(context.Background(), task.Task{
		ID:       "t1",
		Title:    "Buy milk",
		Priority: task.PriorityHigh,
		Status:   task.StatusTodo,
		DueDate:  &due,
	})
	if err != nil {
		t.Fatalf("UpsertTask: %v", err)
	}
	if gotPrefer != "resolution=merge-duplicates" {
		t.Errorf("Prefer = %q", gotPrefer)
	}
	if gotKey != "test-anon-key" {
		t.Errorf("apikey = %q", gotKey)
	}
	if len(gotBody) != 1 || gotBody[0].ID != "t1" || gotBody[0].UserID != "user-1" {
		t.Errorf("body = %+v", gotBody)
	}
	if gotBody[0].DueDate == nil || *gotBody[0].DueDate != "2025-03-15T12:00:00Z" {
		t.Errorf("due_date = %v", gotBody[0].DueDate)
	}
}

func TestDeleteTaskScopesToUser(t *testing.T) {
	var gotQuery string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("method = %s", r.Method)
		}
		gotQuery = r.URL.RawQuery
		w.WriteHeader(http.StatusNoContent)
	})

	if err := c.DeleteTask(context.Background(), "t1"); err != nil {
		t.Fatalf("DeleteTask: %v", err)
	}
	if gotQuery != "id=eq.t1&user_id=eq.user-1" {
		t.Errorf("query = %q", gotQuery)
	}
}

func TestFetchTasksRoundTrip(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]taskRow{
			{
				ID:        "t1",
				UserID:    "user-1",
				Title:     "Write report",
				Priority:  "urgent",
				Status:    "pending",
				CreatedAt: "2025-03-01T08:00:00Z",
				UpdatedAt: "2025-03-02T08:00:00Z",
			},
		})
	})

	tasks, err := c.FetchTasks(context.Background())
	if err != nil {
		t.Fatalf("FetchTasks: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("len = %d", len(tasks))
	}
	got := tasks[0]
	if got.Priority != task.PriorityHigh {
		t.Errorf("urgent should map to high, got %s", got.Priority)
	}
	if got.Status != task.StatusTodo {
		t.Errorf("pending should map to todo, got %s", got.Status)
	}
	if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
		t.Error("timestamps not parsed")
	}
}

func TestFetchPreferencesMissingRow(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("[]"))
	})

	prefs, err := c.FetchPreferences(context.Background())
	if err != nil {
		t.Fatalf("FetchPreferences: %v", err)
	}
	if prefs.CurrentSessionID != "" || len(prefs.Folders) != 0 {
		t.Errorf("expected zero preferences, got %+v", prefs)
	}
}

func TestMergePreferencesPreservesUnrelatedKeys(t *testing.T) {
	var written map[string]json.RawMessage
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			json.NewEncoder(w).Encode([]settingsRow{
				{UserID: "user-1", Preferences: json.RawMessage(`{"theme":"dark","current_session_id":"old"}`)},
			})
		case http.MethodPost:
			var rows []settingsRow
			data, _ := io.ReadAll(r.Body)
			if err := json.Unmarshal(data, &rows); err != nil {
				t.Fatalf("invalid body: %v", err)
			}
			if len(rows) != 1 {
				t.Fatalf("rows = %d", len(rows))
			}
			if err := json.Unmarshal(rows[0].Preferences, &written); err != nil {
				t.Fatalf("invalid blob: %v", err)
			}
			w.WriteHeader(http.StatusCreated)
		}
	})

	err := c.MergePreferences(context.Background(), chat.Preferences{
		CurrentSessionID: "sess_abc",
	})
	if err != nil {
		t.Fatalf("MergePreferences: %v", err)
	}
	if string(written["theme"]) != `"dark"` {
		t.Errorf("unrelated key not preserved: %s", written["theme"])
	}
	if string(written["current_session_id"]) != `"sess_abc"` {
		t.Errorf("current_session_id = %s", written["current_session_id"])
	}
}

func TestErrorStatusSurfacesBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"message":"JWT expired"}`))
	})

	_, err := c.FetchTasks(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if got := err.Error(); !strings.Contains(got, "401") || !strings.Contains(got, "JWT expired") {
		t.Errorf("error = %q", got)
	}
}

func TestGetAPIKeysMissingRow(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("[]"))
	})

	keys, err := c.GetAPIKeys(context.Background())
	if err != nil {
		t.Fatalf("GetAPIKeys: %v", err)
	}
	if keys.UserID != "user-1" {
		t.Errorf("user id = %q", keys.UserID)
	}
}

func TestGetAPIKeysReturnsStoredKeys(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("user_id"); got != "eq.user-1" {
			t.Errorf("user_id query = %q", got)
		}
		w.Write([]byte(`[{"user_id":"user-1","openai_key":"sk-remote","anthropic_key":"ak-remote"}]`))
	})

	keys, err := c.GetAPIKeys(context.Background())
	if err != nil {
		t.Fatalf("GetAPIKeys: %v", err)
	}
	if keys.OpenAIKey != "sk-remote" || keys.AnthropicKey != "ak-remote" {
		t.Errorf("keys = %+v", keys)
	}
}
