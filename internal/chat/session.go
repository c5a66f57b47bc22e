// Package chat manages AI chat sessions: an ordered, locally-authoritative
// set of sessions with their messages, plus the folder metadata that is the
// only slice mirrored to the remote backend.
//
// Message content is deliberately never mirrored remotely. Only the current
// session id, the folder list, and the session-to-folder map travel, as one
// JSON blob merged into the user's remote settings row.
package chat

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PlaceholderSessionID is the reserved id of the unsaved scratch session the
// UI starts in. It must never be persisted as a real session id: the first
// message promotes it to a freshly allocated session.
const PlaceholderSessionID = "default"

// Message roles. The assistant role is "ai" for compatibility with the
// persisted session history.
const (
	RoleUser   = "user"
	RoleAI     = "ai"
	RoleSystem = "system"
)

// Message is a single chat message within a session.
type Message struct {
	ID        string            `json:"id"`
	Role      string            `json:"role"`
	Content   string            `json:"content"`
	CreatedAt time.Time         `json:"created_at"`
	Meta      map[string]string `json:"meta,omitempty"`
}

// Session is an ordered list of messages with identity and folder metadata.
type Session struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
	UpdatedAt time.Time `json:"updated_at"`
	FolderID  string    `json:"folder_id,omitempty"`
}

// Folder organizes sessions. Folders have no remote table of their own; they
// live inside the settings preferences blob.
type Folder struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Preferences is the remote-mirrored metadata slice: the blob merged into the
// per-user settings row.
type Preferences struct {
	CurrentSessionID string            `json:"current_session_id,omitempty"`
	Folders          []Folder          `json:"folders,omitempty"`
	SessionFolders   map[string]string `json:"session_folders,omitempty"`
}

// NewSessionID allocates a real session id.
func NewSessionID() string {
	return fmt.Sprintf("sess_%s", uuid.NewString())
}

// NewMessageID allocates a message id.
func NewMessageID() string {
	return fmt.Sprintf("msg_%s", uuid.NewString())
}

// NewFolderID allocates a folder id.
func NewFolderID() string {
	return fmt.Sprintf("folder_%s", uuid.NewString())
}

// seedMessage is the single message a freshly created session starts with.
func seedMessage(now time.Time) Message {
	return Message{
		ID:        NewMessageID(),
		Role:      RoleAI,
		Content:   "Hi! How can I help you today?",
		CreatedAt: now,
	}
}

// newDefaultSession synthesizes the session that exists whenever the session
// set would otherwise be empty.
func newDefaultSession(now time.Time) Session {
	return Session{
		ID:        NewSessionID(),
		Title:     "New Chat",
		Messages:  []Message{seedMessage(now)},
		UpdatedAt: now,
	}
}

// InferTitle derives a session title from its first user message.
func InferTitle(messages []Message) string {
	for _, msg := range messages {
		if msg.Role != RoleUser || msg.Content == "" {
			continue
		}
		runes := []rune(msg.Content)
		if len(runes) > 48 {
			return string(runes[:48]) + "..."
		}
		return msg.Content
	}
	return "New Chat"
}
