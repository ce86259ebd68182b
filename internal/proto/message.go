package proto

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vovakirdan/wirechat-relay/internal/store"
)

// Wire event names.
const (
	EventRegister       = "register"
	EventPrivateMessage = store.EventPrivateMessage
	EventMediaMessage   = store.EventMediaMessage
	EventLoadHistory    = "loadHistory"
	EventRefresh        = "refresh"

	EventOnlineUsers = "onlineUsers"
	EventHistory     = "history"
	EventMediaFailed = "mediaFailed"
)

// Kind is the closed set of inbound events the relay understands.
type Kind int

const (
	// KindUnknown covers any event name outside the protocol.
	KindUnknown Kind = iota
	KindRegister
	KindPrivateMessage
	KindMediaMessage
	KindLoadHistory
	KindRefresh
)

var kindNames = map[string]Kind{
	EventRegister:       KindRegister,
	EventPrivateMessage: KindPrivateMessage,
	EventMediaMessage:   KindMediaMessage,
	EventLoadHistory:    KindLoadHistory,
	EventRefresh:        KindRefresh,
}

// ParseKind maps a wire event name to its Kind.
func ParseKind(event string) Kind {
	if k, ok := kindNames[event]; ok {
		return k
	}
	return KindUnknown
}

func (k Kind) String() string {
	for name, kind := range kindNames {
		if kind == k {
			return name
		}
	}
	return "unknown"
}

var (
	// ErrMalformed marks a frame that is not a JSON object.
	ErrMalformed = errors.New("malformed frame")
	// ErrMissingEvent marks a frame without an event field.
	ErrMissingEvent = errors.New("missing event field")
)

// Inbound is the envelope for every frame coming from a client. Which fields
// are set depends on Event.
type Inbound struct {
	Event string `json:"event"`

	// register
	Username string `json:"username,omitempty"`

	// privateMessage, mediaMessage
	From    string          `json:"from,omitempty"`
	To      string          `json:"to,omitempty"`
	Time    json.RawMessage `json:"time,omitempty"`
	Content *string         `json:"content,omitempty"`

	// mediaMessage
	FileType    *string `json:"fileType,omitempty"`
	FileName    *string `json:"fileName,omitempty"`
	FileData    string  `json:"fileData,omitempty"`
	FileID      string  `json:"fileId,omitempty"`
	ChunkIndex  int     `json:"chunkIndex,omitempty"`
	ChunkCount  int     `json:"chunkCount,omitempty"`
	IsLastChunk bool    `json:"isLastChunk,omitempty"`

	// loadHistory
	WithUser string `json:"withUser,omitempty"`
}

// Kind returns the decoded event kind.
func (in *Inbound) Kind() Kind {
	return ParseKind(in.Event)
}

// Decode parses a single text frame.
func Decode(data []byte) (Inbound, error) {
	var in Inbound
	if err := json.Unmarshal(data, &in); err != nil {
		return Inbound{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if in.Event == "" {
		return in, ErrMissingEvent
	}
	return in, nil
}

// User is one entry of the online list.
type User struct {
	Username string `json:"username"`
}

// OnlineUsers is broadcast whenever presence changes or a client asks for a refresh.
type OnlineUsers struct {
	Event string `json:"event"`
	Data  []User `json:"data"`
}

// History answers loadHistory.
type History struct {
	Event string          `json:"event"`
	Data  []store.Message `json:"data"`
}

// MediaFailed tells a sender that a media transfer could not be reassembled.
type MediaFailed struct {
	Event  string `json:"event"`
	FileID string `json:"fileId,omitempty"`
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

// NewOnlineUsers builds an onlineUsers frame.
func NewOnlineUsers(usernames []string) OnlineUsers {
	users := make([]User, 0, len(usernames))
	for _, name := range usernames {
		users = append(users, User{Username: name})
	}
	return OnlineUsers{Event: EventOnlineUsers, Data: users}
}

// NewHistory builds a history frame. A nil slice is sent as an empty list.
func NewHistory(msgs []store.Message) History {
	if msgs == nil {
		msgs = []store.Message{}
	}
	return History{Event: EventHistory, Data: msgs}
}
