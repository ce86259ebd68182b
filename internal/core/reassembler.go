package core

import (
	"encoding/base64"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/vovakirdan/wirechat-relay/internal/store"
)

// Chunk is one slice of a base64-encoded media payload.
type Chunk struct {
	FileID string
	Index  int
	Count  int
	Data   string
}

type chunkBuffer struct {
	total    int
	received int
	chunks   []string
	filled   []bool
	base     store.Message
	touched  time.Time
}

// Reassembler buffers in-flight media transfers keyed by fileId until every
// chunk has arrived.
//
// Buffers for transfers that never complete stay resident unless Evict is
// called.
type Reassembler struct {
	mu      sync.Mutex
	buffers map[string]*chunkBuffer
	now     func() time.Time
}

// NewReassembler constructs an empty reassembler.
func NewReassembler() *Reassembler {
	return &Reassembler{
		buffers: make(map[string]*chunkBuffer),
		now:     time.Now,
	}
}

// Ingest stores one chunk. base carries from, to, fileType, fileName and time.
// It returns the completed message once every chunk of the transfer has
// arrived, or nil while the transfer is still pending. A payload that does not
// decode at completion is reported as ErrChunkDecode and the transfer is
// discarded.
func (r *Reassembler) Ingest(chunk Chunk, base store.Message) (*store.Message, error) {
	if chunk.Count <= 1 {
		return complete(base, chunk.Data)
	}
	if chunk.FileID == "" {
		return nil, ErrMissingFileID
	}
	if chunk.Index < 0 || chunk.Index >= chunk.Count {
		return nil, fmt.Errorf("%w: %d of %d", ErrChunkOutOfRange, chunk.Index, chunk.Count)
	}

	r.mu.Lock()
	buf, ok := r.buffers[chunk.FileID]
	if !ok {
		buf = &chunkBuffer{
			total:  chunk.Count,
			chunks: make([]string, chunk.Count),
			filled: make([]bool, chunk.Count),
			base:   base,
		}
		r.buffers[chunk.FileID] = buf
	}
	if buf.total != chunk.Count {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: got %d, want %d", ErrChunkCountMismatch, chunk.Count, buf.total)
	}

	buf.chunks[chunk.Index] = chunk.Data
	if !buf.filled[chunk.Index] {
		buf.filled[chunk.Index] = true
		buf.received++
	}
	buf.touched = r.now()

	if buf.received < buf.total {
		r.mu.Unlock()
		return nil, nil
	}
	delete(r.buffers, chunk.FileID)
	r.mu.Unlock()

	return complete(buf.base, strings.Join(buf.chunks, ""))
}

// Pending returns the number of transfers still waiting for chunks.
func (r *Reassembler) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.buffers)
}

// Evict drops transfers that have not received a chunk for longer than idle
// and returns their file ids.
func (r *Reassembler) Evict(idle time.Duration) []string {
	cutoff := r.now().Add(-idle)

	r.mu.Lock()
	defer r.mu.Unlock()

	var evicted []string
	for id, buf := range r.buffers {
		if buf.touched.Before(cutoff) {
			delete(r.buffers, id)
			evicted = append(evicted, id)
		}
	}
	return evicted
}

func complete(base store.Message, encoded string) (*store.Message, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrChunkDecode, err)
	}
	msg := base
	msg.Event = store.EventMediaMessage
	msg.Content = nil
	msg.FileData = data
	return &msg, nil
}
