package core

import "github.com/vovakirdan/wirechat-relay/internal/store"

// CommandKind describes what the client wants to do.
type CommandKind int

const (
	// CommandRegister binds a username to the connection.
	CommandRegister CommandKind = iota
	// CommandPrivateMessage persists and delivers a text message.
	CommandPrivateMessage
	// CommandMediaMessage feeds one media frame through reassembly.
	CommandMediaMessage
	// CommandLoadHistory asks for the conversation with another user.
	CommandLoadHistory
	// CommandRefresh asks for an online list broadcast.
	CommandRefresh
)

func (k CommandKind) String() string {
	switch k {
	case CommandRegister:
		return "register"
	case CommandPrivateMessage:
		return "privateMessage"
	case CommandMediaMessage:
		return "mediaMessage"
	case CommandLoadHistory:
		return "loadHistory"
	case CommandRefresh:
		return "refresh"
	default:
		return "unknown"
	}
}

// Command represents an action requested by a client.
type Command struct {
	Kind     CommandKind
	Username string
	Message  store.Message
	Chunk    Chunk
	WithUser string
}
