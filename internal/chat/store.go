package chat

import (
	"context"
	"log"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/masternote/masternote/internal/coalesce"
)

// FlushInterval is the coalescing window for streamed message updates.
const FlushInterval = time.Second

// Persister snapshots the full session collection to local storage.
type Persister interface {
	SaveSessions(sessions []Session) error
}

// SettingsMirror receives best-effort preference mirror intents. The
// implementation performs (or enqueues) a read-merge-write of the whole blob
// against the remote settings row.
type SettingsMirror interface {
	PutPreferences(p Preferences)
}

// PreferencesSource fetches the remote preferences blob at load time.
type PreferencesSource interface {
	FetchPreferences(ctx context.Context) (Preferences, error)
}

// Store manages chat sessions. Local storage is authoritative; the remote
// side only ever sees the Preferences slice.
//
// All exported methods are safe for concurrent use; in practice the CLI is
// single-threaded and the lock mainly guards against the coalescing writer's
// timer goroutine.
type Store struct {
	mu             sync.Mutex
	sessions       []Session // newest first
	current        string
	folders        []Folder
	sessionFolders map[string]string

	local  Persister
	mirror SettingsMirror // nil when no user identity
	writer *coalesce.Writer[[]Session]
	logger *log.Logger
	now    func() time.Time
}

// NewStore creates a session store seeded with locally loaded sessions.
//
// If sessions is empty a fresh default session is synthesized and made
// current. mirror may be nil when no user identity is configured.
func NewStore(sessions []Session, local Persister, mirror SettingsMirror, logger *log.Logger) *Store {
	if logger == nil {
		logger = log.New(os.Stderr, "[chat] ", log.LstdFlags)
	}
	s := &Store{
		sessions:       append([]Session(nil), sessions...),
		sessionFolders: make(map[string]string),
		local:          local,
		mirror:         mirror,
		logger:         logger,
		now:            time.Now,
	}
	s.writer = coalesce.New(FlushInterval, s.flushSnapshot)

	sort.SliceStable(s.sessions, func(i, j int) bool {
		return s.sessions[i].UpdatedAt.After(s.sessions[j].UpdatedAt)
	})
	for _, sess := range s.sessions {
		if sess.FolderID != "" {
			s.sessionFolders[sess.ID] = sess.FolderID
		}
	}
	if len(s.sessions) == 0 {
		def := newDefaultSession(s.now())
		s.sessions = []Session{def}
		s.current = def.ID
		s.persistLocked()
	} else {
		s.current = s.sessions[0].ID
	}
	return s
}

// LoadRemotePreferences applies the remote preferences blob: folder list,
// session-folder map, and last-open-session id. Any fetch error degrades
// gracefully to "first local session". Call once at startup, only when a
// user identity is present.
func (s *Store) LoadRemotePreferences(ctx context.Context, source PreferencesSource) {
	if source == nil {
		return
	}
	prefs, err := source.FetchPreferences(ctx)
	if err != nil {
		s.logger.Printf("Warning: failed to load remote preferences, using local state: %v", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if prefs.Folders != nil {
		s.folders = prefs.Folders
	}
	if prefs.SessionFolders != nil {
		s.sessionFolders = prefs.SessionFolders
		for i := range s.sessions {
			s.sessions[i].FolderID = s.sessionFolders[s.sessions[i].ID]
		}
	}
	if prefs.CurrentSessionID != "" && prefs.CurrentSessionID != PlaceholderSessionID {
		if s.findLocked(prefs.CurrentSessionID) >= 0 {
			s.current = prefs.CurrentSessionID
		}
	}
}

// CreateSession synthesizes a new session with a single seed message,
// prepends it, makes it current, and persists immediately. When folderID is
// given and a user is known, the remote folder map is updated too.
func (s *Store) CreateSession(folderID string) Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := newDefaultSession(s.now())
	sess.FolderID = folderID
	s.sessions = append([]Session{sess}, s.sessions...)
	s.current = sess.ID
	if folderID != "" {
		s.sessionFolders[sess.ID] = folderID
	}
	s.persistLocked()
	if folderID != "" {
		s.mirrorPreferencesLocked()
	}
	return sess
}

// SwitchSession changes the current pointer. Pure local change; unknown ids
// are ignored.
func (s *Store) SwitchSession(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findLocked(id) < 0 {
		return false
	}
	s.current = id
	return true
}

// CurrentSessionID returns the id the current pointer references. The
// pointer always references an existing session.
func (s *Store) CurrentSessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Sessions returns a copy of the session list, newest first.
func (s *Store) Sessions() []Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copySessionsLocked()
}

// Get returns the session with the given id.
func (s *Store) Get(id string) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.findLocked(id)
	if i < 0 {
		return Session{}, false
	}
	return copySession(s.sessions[i]), true
}

// DeleteSession removes a session. If none remain a fresh default session is
// synthesized and made current; if the current session was removed, current
// becomes the first remaining session. The folder map entry is cleaned and
// mirrored when a user is known.
func (s *Store) DeleteSession(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.findLocked(id)
	if i < 0 {
		return
	}
	s.sessions = append(s.sessions[:i], s.sessions[i+1:]...)
	delete(s.sessionFolders, id)

	if len(s.sessions) == 0 {
		def := newDefaultSession(s.now())
		s.sessions = []Session{def}
		s.current = def.ID
	} else if s.current == id || s.findLocked(s.current) < 0 {
		s.current = s.sessions[0].ID
	}

	s.persistLocked()
	s.mirrorPreferencesLocked()
}

// AddMessage appends a message to the named session and persists
// synchronously.
//
// If the target is the reserved placeholder id, the session is promoted: a
// real id is allocated, the message list becomes exactly [msg], and the new
// id becomes current. The placeholder must never accumulate persisted
// history.
func (s *Store) AddMessage(sessionID string, msg Message) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if msg.ID == "" {
		msg.ID = NewMessageID()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = s.now()
	}

	if sessionID == PlaceholderSessionID {
		sess := Session{
			ID:        NewSessionID(),
			Title:     InferTitle([]Message{msg}),
			Messages:  []Message{msg},
			UpdatedAt: s.now(),
		}
		s.sessions = append([]Session{sess}, s.sessions...)
		s.current = sess.ID
		s.persistLocked()
		return copySession(sess), true
	}

	i := s.findLocked(sessionID)
	if i < 0 {
		return Session{}, false
	}
	s.sessions[i].Messages = append(s.sessions[i].Messages, msg)
	s.sessions[i].UpdatedAt = s.now()
	if s.sessions[i].Title == "" || s.sessions[i].Title == "New Chat" {
		s.sessions[i].Title = InferTitle(s.sessions[i].Messages)
	}
	s.persistLocked()
	return copySession(s.sessions[i]), true
}

// UpdateMessage replaces the content of a message (nil newContent leaves the
// content unchanged, supporting metadata-only patches) and merges extra
// metadata. Persistence is coalesced: at most one local flush per
// FlushInterval, latest state wins.
func (s *Store) UpdateMessage(sessionID, messageID string, newContent *string, extra map[string]string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.findLocked(sessionID)
	if i < 0 {
		return false
	}
	msgs := s.sessions[i].Messages
	for j := range msgs {
		if msgs[j].ID != messageID {
			continue
		}
		if newContent != nil {
			msgs[j].Content = *newContent
		}
		if len(extra) > 0 {
			if msgs[j].Meta == nil {
				msgs[j].Meta = make(map[string]string, len(extra))
			}
			for k, v := range extra {
				msgs[j].Meta[k] = v
			}
		}
		s.sessions[i].UpdatedAt = s.now()
		s.writer.Set(s.copySessionsLocked())
		return true
	}
	return false
}

// PersistSession forces an immediate synchronous flush of the current
// in-memory state to local storage, bypassing the coalescing window. Call it
// when streaming completes so the final chunk cannot be lost to the window.
func (s *Store) PersistSession(sessionID string) {
	s.mu.Lock()
	s.writer.Set(s.copySessionsLocked())
	s.mu.Unlock()
	s.writer.Flush()
}

// ClearSession resets a session's messages to the seed message.
func (s *Store) ClearSession(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.findLocked(sessionID)
	if i < 0 {
		return false
	}
	now := s.now()
	s.sessions[i].Messages = []Message{seedMessage(now)}
	s.sessions[i].UpdatedAt = now
	s.persistLocked()
	return true
}

// AddFolder creates a folder and mirrors the updated preferences blob.
func (s *Store) AddFolder(name string) Folder {
	s.mu.Lock()
	defer s.mu.Unlock()

	f := Folder{ID: NewFolderID(), Name: name, CreatedAt: s.now()}
	s.folders = append(s.folders, f)
	s.persistLocked()
	s.mirrorPreferencesLocked()
	return f
}

// DeleteFolder removes a folder; sessions inside it become folderless.
func (s *Store) DeleteFolder(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := -1
	for j := range s.folders {
		if s.folders[j].ID == id {
			i = j
			break
		}
	}
	if i < 0 {
		return false
	}
	s.folders = append(s.folders[:i], s.folders[i+1:]...)
	for sid, fid := range s.sessionFolders {
		if fid == id {
			delete(s.sessionFolders, sid)
		}
	}
	for j := range s.sessions {
		if s.sessions[j].FolderID == id {
			s.sessions[j].FolderID = ""
		}
	}
	s.persistLocked()
	s.mirrorPreferencesLocked()
	return true
}

// RenameFolder updates a folder's display name.
func (s *Store) RenameFolder(id, name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.folders {
		if s.folders[i].ID != id {
			continue
		}
		s.folders[i].Name = name
		s.persistLocked()
		s.mirrorPreferencesLocked()
		return true
	}
	return false
}

// MoveSessionToFolder assigns a session to a folder (empty folderID removes
// the assignment).
func (s *Store) MoveSessionToFolder(sessionID, folderID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.findLocked(sessionID)
	if i < 0 {
		return false
	}
	s.sessions[i].FolderID = folderID
	if folderID == "" {
		delete(s.sessionFolders, sessionID)
	} else {
		s.sessionFolders[sessionID] = folderID
	}
	s.persistLocked()
	s.mirrorPreferencesLocked()
	return true
}

// Folders returns a copy of the folder list.
func (s *Store) Folders() []Folder {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Folder(nil), s.folders...)
}

// Preferences returns the remote-mirrored metadata slice. The placeholder id
// is never reported as current.
func (s *Store) Preferences() Preferences {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.preferencesLocked()
}

// Close flushes any coalesced state.
func (s *Store) Close() {
	s.writer.Close()
}

func (s *Store) preferencesLocked() Preferences {
	current := s.current
	if current == PlaceholderSessionID {
		current = ""
	}
	sf := make(map[string]string, len(s.sessionFolders))
	for k, v := range s.sessionFolders {
		sf[k] = v
	}
	return Preferences{
		CurrentSessionID: current,
		Folders:          append([]Folder(nil), s.folders...),
		SessionFolders:   sf,
	}
}

// mirrorPreferencesLocked enqueues a best-effort remote mirror of the whole
// preferences blob. No-op without a user identity.
func (s *Store) mirrorPreferencesLocked() {
	if s.mirror == nil {
		return
	}
	s.mirror.PutPreferences(s.preferencesLocked())
}

// persistLocked snapshots all sessions synchronously. The snapshot goes
// through the writer so a pending coalesced flush can never resurrect older
// state over this write.
func (s *Store) persistLocked() {
	s.writer.Set(s.copySessionsLocked())
	s.writer.Flush()
}

func (s *Store) flushSnapshot(sessions []Session) {
	if s.local == nil {
		return
	}
	if err := s.local.SaveSessions(sessions); err != nil {
		s.logger.Printf("Warning: failed to persist sessions: %v", err)
	}
}

func (s *Store) findLocked(id string) int {
	for i := range s.sessions {
		if s.sessions[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) copySessionsLocked() []Session {
	out := make([]Session, len(s.sessions))
	for i := range s.sessions {
		out[i] = copySession(s.sessions[i])
	}
	return out
}

func copySession(sess Session) Session {
	out := sess
	out.Messages = append([]Message(nil), sess.Messages...)
	return out
}
