package store

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/samber/lo"
)

// Event names carried by persisted messages.
const (
	EventPrivateMessage = "privateMessage"
	EventMediaMessage   = "mediaMessage"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("history store closed")

// Message is a completed chat message as routed to clients and persisted.
// Exactly one of Content or (FileType, FileData) is populated.
type Message struct {
	Event    string          `json:"event"`
	From     string          `json:"from"`
	To       string          `json:"to"`
	Time     json.RawMessage `json:"time,omitempty"`
	Content  *string         `json:"content,omitempty"`
	FileType *string         `json:"fileType,omitempty"`
	FileName *string         `json:"fileName,omitempty"`
	FileData []byte          `json:"fileData,omitempty"`
}

// IsMedia reports whether the message carries a file payload.
func (m *Message) IsMedia() bool {
	return m.Event == EventMediaMessage
}

// Between reports whether the message was exchanged between a and b, in either direction.
func (m *Message) Between(a, b string) bool {
	return (m.From == a && m.To == b) || (m.From == b && m.To == a)
}

// Record is a persisted message with its arrival order.
type Record struct {
	Seq     int64
	Message Message
}

// HistoryStore persists completed messages in an append-only log.
type HistoryStore interface {
	// Append durably writes a message. It returns only after the write is
	// durable or failed. Concurrent appends are serialised by the store.
	Append(ctx context.Context, msg *Message) (Record, error)

	// Query returns the records exchanged between userA and userB in either
	// direction, in insertion order.
	Query(ctx context.Context, userA, userB string) ([]Record, error)

	// Close releases the underlying resources.
	Close() error
}

// Messages strips arrival order from records.
func Messages(records []Record) []Message {
	return lo.Map(records, func(r Record, _ int) Message {
		return r.Message
	})
}
