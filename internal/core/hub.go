package core

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-relay/internal/media"
	"github.com/vovakirdan/wirechat-relay/internal/store"
)

// Options tune optional hub behaviour.
type Options struct {
	// ChunkIdleTimeout evicts media transfers that received no chunk for this
	// long. Zero keeps abandoned transfers forever.
	ChunkIdleTimeout time.Duration
	// NotifyMediaFailures sends EventMediaFailed to a sender whose transfer
	// could not be reassembled.
	NotifyMediaFailures bool
}

// Hub routes commands between connected clients. Every connection calls
// Handle from its own goroutine; shared state is guarded per structure.
type Hub struct {
	registry *Registry
	chunks   *Reassembler
	history  store.HistoryStore
	opts     Options
	log      *zerolog.Logger

	mu      sync.RWMutex
	clients map[*Client]struct{}
}

// NewHub creates a new hub. history may be nil, in which case nothing is persisted.
func NewHub(history store.HistoryStore, logger *zerolog.Logger, opts Options) *Hub {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Hub{
		registry: NewRegistry(),
		chunks:   NewReassembler(),
		history:  history,
		opts:     opts,
		log:      logger,
		clients:  make(map[*Client]struct{}),
	}
}

// Run performs background maintenance until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	if h.opts.ChunkIdleTimeout <= 0 {
		<-ctx.Done()
		return
	}

	interval := max(h.opts.ChunkIdleTimeout/2, time.Second)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, id := range h.chunks.Evict(h.opts.ChunkIdleTimeout) {
				h.log.Warn().Str("file_id", id).Dur("idle", h.opts.ChunkIdleTimeout).Msg("evicted abandoned media transfer")
			}
		}
	}
}

// RegisterClient adds a freshly accepted connection. It receives presence
// broadcasts from now on but is not online until it registers a username.
func (h *Hub) RegisterClient(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	h.log.Debug().Str("client_id", c.ID).Msg("client connected")
}

// UnregisterClient removes a closed connection and broadcasts the new online list.
func (h *Hub) UnregisterClient(c *Client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()

	c.Close()
	username, _ := h.registry.Username(c)
	h.registry.Unregister(c)
	h.log.Info().Str("client_id", c.ID).Str("username", username).Msg("client disconnected")

	h.broadcastOnline()
}

// Handle dispatches a single command from c.
func (h *Hub) Handle(ctx context.Context, c *Client, cmd *Command) {
	switch cmd.Kind {
	case CommandRegister:
		h.handleRegister(c, cmd.Username)
	case CommandPrivateMessage:
		msg := cmd.Message
		msg.Event = store.EventPrivateMessage
		h.persistAndDeliver(ctx, c, &msg)
	case CommandMediaMessage:
		h.handleMedia(ctx, c, cmd)
	case CommandLoadHistory:
		h.handleLoadHistory(ctx, c, cmd.WithUser)
	case CommandRefresh:
		h.broadcastOnline()
	default:
		h.log.Warn().Str("client_id", c.ID).Stringer("kind", cmd.Kind).Msg("unknown command dropped")
	}
}

// OnlineUsers returns the distinct usernames currently registered.
func (h *Hub) OnlineUsers() []string {
	return h.registry.Snapshot()
}

// History returns the conversation between two users. Store failures are
// logged and yield an empty result.
func (h *Hub) History(ctx context.Context, userA, userB string) []store.Message {
	if h.history == nil {
		return []store.Message{}
	}
	records, err := h.history.Query(ctx, userA, userB)
	if err != nil {
		h.log.Warn().Err(err).Str("user", userA).Str("with", userB).Msg("history query failed")
		return []store.Message{}
	}
	return store.Messages(records)
}

// PendingTransfers returns the number of incomplete media transfers.
func (h *Hub) PendingTransfers() int {
	return h.chunks.Pending()
}

func (h *Hub) handleRegister(c *Client, username string) {
	if username == "" {
		h.log.Warn().Str("client_id", c.ID).Msg("register without username ignored")
		return
	}
	h.registry.Register(c, username)
	h.log.Info().Str("client_id", c.ID).Str("username", username).Int("registered", h.registry.Len()).Msg("user registered")
	h.broadcastOnline()
}

func (h *Hub) handleMedia(ctx context.Context, c *Client, cmd *Command) {
	msg, err := h.chunks.Ingest(cmd.Chunk, cmd.Message)
	if err != nil {
		logEvt := h.log.Warn().Err(err).
			Str("client_id", c.ID).
			Str("file_id", cmd.Chunk.FileID).
			Int("chunk_index", cmd.Chunk.Index).
			Int("chunk_count", cmd.Chunk.Count)
		if errors.Is(err, ErrChunkDecode) {
			logEvt.Msg("media payload dropped")
			if h.opts.NotifyMediaFailures {
				h.send(c, &Event{
					Kind:   EventMediaFailed,
					FileID: cmd.Chunk.FileID,
					Error:  coreError(ErrCodeDecodeFailed, "media payload could not be decoded"),
				})
			}
			return
		}
		logEvt.Msg("media chunk dropped")
		return
	}
	if msg == nil {
		h.log.Debug().
			Str("file_id", cmd.Chunk.FileID).
			Int("chunk_index", cmd.Chunk.Index).
			Int("chunk_count", cmd.Chunk.Count).
			Msg("media chunk buffered")
		return
	}

	h.log.Info().
		Str("from", msg.From).
		Str("to", msg.To).
		Str("file_id", cmd.Chunk.FileID).
		Int("bytes", len(msg.FileData)).
		Str("mime", media.Detect(msg.FileData)).
		Msg("media message completed")
	h.persistAndDeliver(ctx, c, msg)
}

func (h *Hub) handleLoadHistory(ctx context.Context, c *Client, withUser string) {
	msgs := []store.Message{}
	if user, ok := h.registry.Username(c); ok {
		msgs = h.History(ctx, user, withUser)
	} else {
		h.log.Debug().Str("client_id", c.ID).Msg("history requested before register")
	}
	h.send(c, &Event{Kind: EventHistory, Messages: msgs})
}

// persistAndDeliver appends msg to history, then sends it to every connection
// registered under msg.To and echoes it to the sender.
func (h *Hub) persistAndDeliver(ctx context.Context, sender *Client, msg *store.Message) {
	if h.history != nil {
		if _, err := h.history.Append(ctx, msg); err != nil {
			h.log.Error().Err(err).Str("from", msg.From).Str("to", msg.To).Msg("persist message")
		}
	}

	ev := &Event{Kind: EventMessage, Message: msg}
	recipients := h.registry.Find(msg.To)
	for _, c := range recipients {
		h.send(c, ev)
	}
	h.send(sender, ev)

	if len(recipients) == 0 {
		h.log.Debug().Str("to", msg.To).Msg("recipient offline, message stored only")
	}
}

func (h *Hub) broadcastOnline() {
	ev := &Event{Kind: EventOnlineUsers, Users: h.registry.Snapshot()}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		h.send(c, ev)
	}
}

func (h *Hub) send(c *Client, ev *Event) {
	if !c.Send(ev) {
		h.log.Warn().Str("client_id", c.ID).Int("kind", int(ev.Kind)).Msg("outbound queue full or closed, event dropped")
	}
}
