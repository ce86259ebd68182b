package core

import "github.com/vovakirdan/wirechat-relay/internal/store"

// EventKind is a notification the core emits to clients.
type EventKind int

const (
	// EventMessage delivers a completed message, to the recipient or as an echo.
	EventMessage EventKind = iota
	// EventOnlineUsers carries the current online list.
	EventOnlineUsers
	// EventHistory answers a history request.
	EventHistory
	// EventMediaFailed tells a sender its media transfer was dropped.
	EventMediaFailed
)

// Event is sent to clients to describe what happened in the system.
type Event struct {
	Kind     EventKind
	Message  *store.Message
	Users    []string        // For EventOnlineUsers
	Messages []store.Message // For EventHistory
	FileID   string          // For EventMediaFailed
	Error    *CoreError
}
