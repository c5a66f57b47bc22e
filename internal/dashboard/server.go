// Package dashboard provides the real-time WebSocket server.
//
// The server broadcasts task, note, habit, and chat session changes plus
// sync progress to connected WebSocket clients, so a browser view can follow
// the CLI live.
package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// MessageType defines the type of dashboard message
type MessageType string

const (
	// MessageTypeTaskUpdate indicates a task was created, updated, or deleted
	MessageTypeTaskUpdate MessageType = "task_update"

	// MessageTypeSessionUpdate indicates a chat session changed
	MessageTypeSessionUpdate MessageType = "session_update"

	// MessageTypeNoteUpdate indicates a note or project changed
	MessageTypeNoteUpdate MessageType = "note_update"

	// MessageTypeHabitUpdate indicates a habit completion was toggled
	MessageTypeHabitUpdate MessageType = "habit_update"

	// MessageTypeSyncComplete indicates an outbox drain or full pull finished
	MessageTypeSyncComplete MessageType = "sync_complete"

	// MessageTypeStats indicates updated collection statistics
	MessageTypeStats MessageType = "stats"
)

// Message represents a dashboard broadcast message
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// TaskUpdateData contains task change information
type TaskUpdateData struct {
	TaskID   string `json:"task_id"`
	Action   string `json:"action"` // created, updated, deleted
	Title    string `json:"title,omitempty"`
	Status   string `json:"status,omitempty"`
	Priority string `json:"priority,omitempty"`
}

// SessionUpdateData contains chat session change information
type SessionUpdateData struct {
	SessionID string `json:"session_id"`
	Action    string `json:"action"` // created, updated, deleted, switched
	Title     string `json:"title,omitempty"`
}

// SyncCompleteData contains sync completion information
type SyncCompleteData struct {
	Delivered int           `json:"delivered"`
	Pending   int           `json:"pending"`
	Duration  time.Duration `json:"duration"`
}

// CollectionUpdateData reports a collection-level change detected outside
// the current process, where only the new size is known.
type CollectionUpdateData struct {
	Count  int    `json:"count"`
	Action string `json:"action"`
}

// StatsData contains collection statistics
type StatsData struct {
	Tasks    int            `json:"tasks"`
	ByStatus map[string]int `json:"by_status"`
	Overdue  int            `json:"overdue"`
	Sessions int            `json:"sessions"`
	Notes    int            `json:"notes"`
	Habits   int            `json:"habits"`
}

// StatsSource supplies current collection statistics. Implemented by the
// application so stats broadcasts carry live counts.
type StatsSource interface {
	Stats() StatsData
}

// Server manages WebSocket connections and broadcasts dashboard messages
type Server struct {
	addr     string
	listener net.Listener
	server   *http.Server
	stats    StatsSource

	clients   map[*websocket.Conn]bool
	clientsMu sync.RWMutex

	broadcast chan Message

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger *log.Logger
}

// Config holds server configuration
type Config struct {
	// Port to listen on (default: 8420)
	Port int

	// Logger for server activity (default: log.Default)
	Logger *log.Logger

	// Stats supplies live collection counts for stats messages. Optional;
	// without it stats messages carry no data.
	Stats StatsSource
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Port:   8420,
		Logger: log.Default(),
	}
}

// NewServer creates a new dashboard WebSocket server
func NewServer(config *Config) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = log.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		addr:      fmt.Sprintf(":%d", config.Port),
		stats:     config.Stats,
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan Message, 100),
		ctx:       ctx,
		cancel:    cancel,
		logger:    config.Logger,
	}
}

// Start begins the HTTP server and WebSocket handler
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/", s.handleRoot)

	s.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	s.wg.Add(1)
	go s.broadcastLoop()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Printf("Dashboard server listening on %s", s.addr)
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Printf("Server error: %v", err)
		}
	}()

	return nil
}

// Stop gracefully shuts down the server
func (s *Server) Stop() error {
	s.logger.Println("Stopping dashboard server")

	s.cancel()

	s.clientsMu.Lock()
	for conn := range s.clients {
		_ = conn.Close(websocket.StatusGoingAway, "Server shutting down")
		delete(s.clients, conn)
	}
	s.clientsMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	s.wg.Wait()

	s.logger.Println("Dashboard server stopped")
	return nil
}

// Broadcast sends a message to all connected clients
func (s *Server) Broadcast(msg Message) {
	select {
	case s.broadcast <- msg:
	case <-s.ctx.Done():
		return
	default:
		s.logger.Println("Warning: broadcast channel full, dropping message")
	}
}

// broadcastData marshals v and broadcasts it under the given message type.
func (s *Server) broadcastData(t MessageType, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		s.logger.Printf("Failed to marshal %s data: %v", t, err)
		return
	}
	s.Broadcast(Message{Type: t, Data: payload})
}

// BroadcastTaskUpdate is a convenience wrapper building a task_update message.
func (s *Server) BroadcastTaskUpdate(data TaskUpdateData) {
	s.broadcastData(MessageTypeTaskUpdate, data)
}

// BroadcastSessionUpdate is a convenience wrapper building a session_update message.
func (s *Server) BroadcastSessionUpdate(data SessionUpdateData) {
	s.broadcastData(MessageTypeSessionUpdate, data)
}

// BroadcastNoteUpdate is a convenience wrapper building a note_update message.
func (s *Server) BroadcastNoteUpdate(data CollectionUpdateData) {
	s.broadcastData(MessageTypeNoteUpdate, data)
}

// BroadcastHabitUpdate is a convenience wrapper building a habit_update message.
func (s *Server) BroadcastHabitUpdate(data CollectionUpdateData) {
	s.broadcastData(MessageTypeHabitUpdate, data)
}

// BroadcastSyncComplete is a convenience wrapper building a sync_complete message.
func (s *Server) BroadcastSyncComplete(data SyncCompleteData) {
	s.broadcastData(MessageTypeSyncComplete, data)
}

// BroadcastStats broadcasts current statistics. Without a stats source the
// message is an empty nudge telling clients to refetch.
func (s *Server) BroadcastStats() {
	if s.stats == nil {
		s.Broadcast(Message{Type: MessageTypeStats})
		return
	}
	s.broadcastData(MessageTypeStats, s.stats.Stats())
}

// Stats reports current statistics from the configured source.
func (s *Server) Stats() (StatsData, bool) {
	if s.stats == nil {
		return StatsData{}, false
	}
	return s.stats.Stats(), true
}

// broadcastLoop handles message broadcasting to all clients
func (s *Server) broadcastLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return

		case msg := <-s.broadcast:
			if msg.Timestamp.IsZero() {
				msg.Timestamp = time.Now()
			}

			data, err := json.Marshal(msg)
			if err != nil {
				s.logger.Printf("Failed to marshal message: %v", err)
				continue
			}

			s.clientsMu.RLock()
			clients := make([]*websocket.Conn, 0, len(s.clients))
			for conn := range s.clients {
				clients = append(clients, conn)
			}
			s.clientsMu.RUnlock()

			// Send outside the read lock to avoid blocking broadcasts
			for _, conn := range clients {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				err := conn.Write(ctx, websocket.MessageText, data)
				cancel()

				if err != nil {
					s.logger.Printf("Failed to send to client: %v", err)
					s.removeClient(conn)
				}
			}
		}
	}
}

// handleWebSocket upgrades HTTP connections to WebSocket
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.logger.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	s.clientsMu.Lock()
	s.clients[conn] = true
	clientCount := len(s.clients)
	s.clientsMu.Unlock()

	s.logger.Printf("Client connected (total: %d)", clientCount)

	welcome := Message{
		Type:      MessageTypeStats,
		Timestamp: time.Now(),
	}
	if s.stats != nil {
		welcome.Data, _ = json.Marshal(s.stats.Stats())
	}
	welcomeData, _ := json.Marshal(welcome)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	_ = conn.Write(ctx, websocket.MessageText, welcomeData)
	cancel()

	go s.readLoop(conn)
}

// readLoop keeps the WebSocket connection alive and handles client disconnects
func (s *Server) readLoop(conn *websocket.Conn) {
	defer s.removeClient(conn)

	for {
		_, _, err := conn.Read(s.ctx)
		if err != nil {
			return
		}
		// Client messages are ignored; the stream is one-way.
	}
}

// removeClient safely removes a client connection
func (s *Server) removeClient(conn *websocket.Conn) {
	s.clientsMu.Lock()
	if _, exists := s.clients[conn]; exists {
		delete(s.clients, conn)
		clientCount := len(s.clients)
		s.clientsMu.Unlock()

		_ = conn.Close(websocket.StatusNormalClosure, "")
		s.logger.Printf("Client disconnected (total: %d)", clientCount)
	} else {
		s.clientsMu.Unlock()
	}
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.clientsMu.RLock()
	clientCount := len(s.clients)
	s.clientsMu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "ok",
		"clients": clientCount,
	})
}

// handleRoot returns basic server information
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	_, _ = fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head>
    <title>MasterNote Dashboard</title>
</head>
<body>
    <h1>MasterNote Dashboard Server</h1>
    <p>WebSocket endpoint: <code>ws://%s/ws</code></p>
    <p>Health check: <a href="/health">/health</a></p>
    <p>Connect a WebSocket client to receive real-time task, note, and habit updates.</p>
</body>
</html>`, r.Host)
}

// GetAddr returns the server's listening address
func (s *Server) GetAddr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// ClientCount returns the current number of connected clients
func (s *Server) ClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}
