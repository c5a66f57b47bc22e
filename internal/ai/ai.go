// Package ai abstracts the chat completion providers behind one interface.
//
// Results are tagged rather than thrown: a failed completion comes back as
// Result{Success: false, Error: "..."} so callers can render the failure in
// the conversation instead of aborting. Only programming errors (nil
// context, malformed request) surface as Go errors.
package ai

import "context"

// Chat roles as stored in sessions.
const (
	roleUser      = "user"
	roleAssistant = "ai"
	roleSystem    = "system"
)

// Message is one turn of conversation context.
type Message struct {
	Role    string
	Content string
}

// Request is a completion request against a provider.
type Request struct {
	Model    string
	System   string
	Messages []Message
	// MaxTokens caps the reply length (provider default when 0).
	MaxTokens int
}

// Result is the tagged outcome of a completion.
type Result struct {
	Success bool
	Content string
	Error   string
}

// Failure builds a failed result from an error message.
func Failure(msg string) Result {
	return Result{Success: false, Error: msg}
}

// Succeed builds a successful result.
func Succeed(content string) Result {
	return Result{Success: true, Content: content}
}

// ChunkFunc receives streamed text fragments as they arrive.
type ChunkFunc func(text string)

// Provider is a chat completion backend.
type Provider interface {
	// Name identifies the provider ("openai" or "anthropic").
	Name() string

	// Complete runs a completion and returns the full reply.
	Complete(ctx context.Context, req Request) Result

	// Stream runs a completion, invoking fn for each text fragment, and
	// returns the accumulated reply. fn may be nil.
	Stream(ctx context.Context, req Request, fn ChunkFunc) Result
}
