package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// memPersister counts local session flushes.
type memPersister struct {
	mu      sync.Mutex
	flushes [][]Session
}

func (m *memPersister) SaveSessions(sessions []Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flushes = append(m.flushes, sessions)
	return nil
}

func (m *memPersister) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.flushes)
}

func (m *memPersister) last() []Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.flushes) == 0 {
		return nil
	}
	return m.flushes[len(m.flushes)-1]
}

// memMirror records mirrored preference blobs.
type memMirror struct {
	prefs []Preferences
}

func (m *memMirror) PutPreferences(p Preferences) { m.prefs = append(m.prefs, p) }

func TestEmptyStoreSynthesizesDefault(t *testing.T) {
	p := &memPersister{}
	s := NewStore(nil, p, nil, nil)
	defer s.Close()

	sessions := s.Sessions()
	if len(sessions) != 1 {
		t.Fatalf("sessions = %d, want one synthesized default", len(sessions))
	}
	if s.CurrentSessionID() != sessions[0].ID {
		t.Error("current pointer does not reference the synthesized session")
	}
	if len(sessions[0].Messages) != 1 {
		t.Errorf("default session has %d messages, want one seed", len(sessions[0].Messages))
	}
	if sessions[0].ID == PlaceholderSessionID {
		t.Error("synthesized session must never use the placeholder id")
	}
}

func TestDeleteLastSessionResurrects(t *testing.T) {
	p := &memPersister{}
	s := NewStore(nil, p, nil, nil)
	defer s.Close()

	only := s.CurrentSessionID()
	s.DeleteSession(only)

	sessions := s.Sessions()
	if len(sessions) != 1 {
		t.Fatalf("sessions after deleting last = %d, want exactly one", len(sessions))
	}
	if sessions[0].ID == only {
		t.Error("deleted session id was reused")
	}
	if s.CurrentSessionID() != sessions[0].ID {
		t.Error("current pointer does not reference the resurrected session")
	}
}

func TestDeleteCurrentRepairsPointer(t *testing.T) {
	p := &memPersister{}
	s := NewStore(nil, p, nil, nil)
	defer s.Close()

	first := s.CurrentSessionID()
	second := s.CreateSession("")
	if s.CurrentSessionID() != second.ID {
		t.Fatal("CreateSession did not make the new session current")
	}

	s.DeleteSession(second.ID)
	if got := s.CurrentSessionID(); got != first {
		t.Errorf("current = %s, want repair to first remaining session %s", got, first)
	}

	// Deleting a non-current session leaves the pointer alone.
	third := s.CreateSession("")
	s.SwitchSession(first)
	s.DeleteSession(third.ID)
	if got := s.CurrentSessionID(); got != first {
		t.Errorf("current = %s, want untouched pointer %s", got, first)
	}
}

func TestPlaceholderPromotion(t *testing.T) {
	p := &memPersister{}
	s := NewStore(nil, p, nil, nil)
	defer s.Close()

	msg := Message{Role: RoleUser, Content: "remind me to stretch"}
	sess, ok := s.AddMessage(PlaceholderSessionID, msg)
	if !ok {
		t.Fatal("AddMessage to placeholder failed")
	}
	if sess.ID == PlaceholderSessionID {
		t.Fatal("promotion did not allocate a real id")
	}
	if len(sess.Messages) != 1 || sess.Messages[0].Content != msg.Content {
		t.Fatalf("promoted session messages = %+v, want exactly the new message", sess.Messages)
	}
	if s.CurrentSessionID() != sess.ID {
		t.Error("promoted session did not become current")
	}

	// Nothing identified by the placeholder id may be persisted.
	for _, flushed := range p.last() {
		if flushed.ID == PlaceholderSessionID {
			t.Fatal("placeholder session id was persisted")
		}
	}
	if prefs := s.Preferences(); prefs.CurrentSessionID == PlaceholderSessionID {
		t.Fatal("placeholder id leaked into the preferences blob")
	}
}

func TestAddMessagePersistsSynchronously(t *testing.T) {
	p := &memPersister{}
	s := NewStore(nil, p, nil, nil)
	defer s.Close()

	before := p.count()
	if _, ok := s.AddMessage(s.CurrentSessionID(), Message{Role: RoleUser, Content: "hi"}); !ok {
		t.Fatal("AddMessage failed")
	}
	if p.count() != before+1 {
		t.Fatalf("flushes = %d, want synchronous persist on AddMessage", p.count()-before)
	}
}

func TestUpdateMessageThrottled(t *testing.T) {
	p := &memPersister{}
	s := NewStore(nil, p, nil, nil)
	defer s.Close()

	sess, _ := s.AddMessage(s.CurrentSessionID(), Message{Role: RoleAI, Content: ""})
	msgID := sess.Messages[len(sess.Messages)-1].ID
	before := p.count()

	// Token-by-token streaming: many updates, well under the window.
	for _, chunk := range []string{"S", "Su", "Sur", "Sure", "Sure!"} {
		c := chunk
		if !s.UpdateMessage(sess.ID, msgID, &c, nil) {
			t.Fatal("UpdateMessage failed")
		}
	}
	if p.count() != before {
		t.Fatalf("flushes during window = %d, want 0 until the window fires", p.count()-before)
	}

	// PersistSession forces the final state out immediately.
	s.PersistSession(sess.ID)
	if p.count() != before+1 {
		t.Fatalf("flushes after PersistSession = %d, want exactly 1", p.count()-before)
	}
	got, _ := s.Get(sess.ID)
	if got.Messages[len(got.Messages)-1].Content != "Sure!" {
		t.Errorf("content = %q, want latest chunk", got.Messages[len(got.Messages)-1].Content)
	}
	flushed := p.last()
	found := false
	for _, fs := range flushed {
		for _, m := range fs.Messages {
			if m.ID == msgID && m.Content == "Sure!" {
				found = true
			}
		}
	}
	if !found {
		t.Error("flushed snapshot does not contain the latest content")
	}
}

func TestUpdateMessageNilContentIsMetadataOnly(t *testing.T) {
	p := &memPersister{}
	s := NewStore(nil, p, nil, nil)
	defer s.Close()

	sess, _ := s.AddMessage(s.CurrentSessionID(), Message{Role: RoleAI, Content: "final answer"})
	msgID := sess.Messages[len(sess.Messages)-1].ID

	if !s.UpdateMessage(sess.ID, msgID, nil, map[string]string{"model": "claude"}) {
		t.Fatal("UpdateMessage failed")
	}
	got, _ := s.Get(sess.ID)
	last := got.Messages[len(got.Messages)-1]
	if last.Content != "final answer" {
		t.Errorf("content = %q, nil patch must leave content unchanged", last.Content)
	}
	if last.Meta["model"] != "claude" {
		t.Errorf("meta = %v, want merged extra fields", last.Meta)
	}
}

func TestFolderOpsMirrorWholeBlob(t *testing.T) {
	p := &memPersister{}
	m := &memMirror{}
	s := NewStore(nil, p, m, nil)
	defer s.Close()

	f := s.AddFolder("Work")
	if len(m.prefs) != 1 {
		t.Fatalf("mirrored blobs = %d, want 1 after AddFolder", len(m.prefs))
	}

	sess := s.CreateSession(f.ID)
	if len(m.prefs) != 2 {
		t.Fatalf("mirrored blobs = %d, want CreateSession with folder to mirror", len(m.prefs))
	}
	last := m.prefs[len(m.prefs)-1]
	if last.SessionFolders[sess.ID] != f.ID {
		t.Errorf("session-folder map = %v, want %s -> %s", last.SessionFolders, sess.ID, f.ID)
	}
	if len(last.Folders) != 1 || last.Folders[0].Name != "Work" {
		t.Errorf("folders = %v, want the whole folder list in each blob", last.Folders)
	}

	if !s.RenameFolder(f.ID, "Office") {
		t.Fatal("RenameFolder failed")
	}
	if !s.MoveSessionToFolder(sess.ID, "") {
		t.Fatal("MoveSessionToFolder failed")
	}
	if !s.DeleteFolder(f.ID) {
		t.Fatal("DeleteFolder failed")
	}
	final := m.prefs[len(m.prefs)-1]
	if len(final.Folders) != 0 || len(final.SessionFolders) != 0 {
		t.Errorf("final blob = %+v, want folder state fully cleaned", final)
	}
}

func TestCreateSessionWithoutFolderDoesNotMirror(t *testing.T) {
	m := &memMirror{}
	s := NewStore(nil, &memPersister{}, m, nil)
	defer s.Close()

	s.CreateSession("")
	if len(m.prefs) != 0 {
		t.Fatalf("mirrored blobs = %d, want none for folderless create", len(m.prefs))
	}
}

func TestLoadRemotePreferencesGracefulFallback(t *testing.T) {
	p := &memPersister{}
	s := NewStore(nil, p, nil, nil)
	defer s.Close()
	first := s.CurrentSessionID()

	s.LoadRemotePreferences(context.Background(), failingSource{})
	if s.CurrentSessionID() != first {
		t.Error("fetch failure must fall back to the first local session")
	}

	// A remote current id that no longer exists locally is ignored.
	s.LoadRemotePreferences(context.Background(), staticSource{Preferences{CurrentSessionID: "sess_gone"}})
	if s.CurrentSessionID() != first {
		t.Error("unknown remote session id must not move the current pointer")
	}

	second := s.CreateSession("")
	s.SwitchSession(first)
	s.LoadRemotePreferences(context.Background(), staticSource{Preferences{CurrentSessionID: second.ID}})
	if s.CurrentSessionID() != second.ID {
		t.Error("valid remote session id was not applied")
	}
}

func TestSessionsSortedByUpdatedDesc(t *testing.T) {
	base := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	loaded := []Session{
		{ID: "old", Title: "old", UpdatedAt: base},
		{ID: "new", Title: "new", UpdatedAt: base.Add(time.Hour)},
	}
	s := NewStore(loaded, &memPersister{}, nil, nil)
	defer s.Close()

	sessions := s.Sessions()
	if sessions[0].ID != "new" || sessions[1].ID != "old" {
		t.Fatalf("order = [%s %s], want newest first", sessions[0].ID, sessions[1].ID)
	}
	if s.CurrentSessionID() != "new" {
		t.Errorf("current = %s, want first local session", s.CurrentSessionID())
	}
}

type failingSource struct{}

func (failingSource) FetchPreferences(context.Context) (Preferences, error) {
	return Preferences{}, errors.New("network down")
}

type staticSource struct{ p Preferences }

func (s staticSource) FetchPreferences(context.Context) (Preferences, error) {
	return s.p, nil
}
