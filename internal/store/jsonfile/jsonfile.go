// Package jsonfile keeps chat history in a single JSON array on disk.
//
// The file stays a valid JSON array after every append. New records are
// written in place over the closing bracket instead of rewriting the whole
// file, and all appends go through one mutex.
package jsonfile

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-relay/internal/store"
)

// Store implements store.HistoryStore on a JSON array file.
type Store struct {
	mu    sync.Mutex
	path  string
	file  *os.File
	tail  int64 // offset of the closing bracket
	count int64
	log   *zerolog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger reports records that cannot be read back.
func WithLogger(logger *zerolog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.log = logger
		}
	}
}

// New opens or creates the history file at path.
func New(path string, opts ...Option) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create history dir: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open history file: %w", err)
	}

	nop := zerolog.Nop()
	s := &Store{path: path, file: f, log: &nop}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.init(); err != nil {
		f.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init() error {
	info, err := s.file.Stat()
	if err != nil {
		return fmt.Errorf("stat history file: %w", err)
	}
	if info.Size() == 0 {
		if _, err := s.file.WriteAt([]byte("[]"), 0); err != nil {
			return fmt.Errorf("init history file: %w", err)
		}
		if err := s.file.Sync(); err != nil {
			return fmt.Errorf("sync history file: %w", err)
		}
		s.tail = 1
		return nil
	}

	raw, err := io.ReadAll(io.NewSectionReader(s.file, 0, info.Size()))
	if err != nil {
		return fmt.Errorf("read history file: %w", err)
	}
	var records []json.RawMessage
	if err := json.Unmarshal(raw, &records); err != nil {
		return fmt.Errorf("parse history file: %w", err)
	}

	trimmed := bytes.TrimRight(raw, " \t\r\n")
	if len(trimmed) == 0 || trimmed[len(trimmed)-1] != ']' {
		return fmt.Errorf("parse history file: %s is not a JSON array", s.path)
	}
	s.tail = int64(len(trimmed) - 1)
	s.count = int64(len(records))
	return nil
}

// Append writes msg over the closing bracket and re-closes the array.
func (s *Store) Append(ctx context.Context, msg *store.Message) (store.Record, error) {
	if err := ctx.Err(); err != nil {
		return store.Record{}, err
	}

	data, err := json.MarshalIndent(msg, "  ", "  ")
	if err != nil {
		return store.Record{}, fmt.Errorf("encode message: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return store.Record{}, store.ErrClosed
	}

	var buf bytes.Buffer
	if s.count > 0 {
		buf.WriteByte(',')
	}
	buf.WriteString("\n  ")
	buf.Write(data)
	buf.WriteString("\n]")

	if _, err := s.file.WriteAt(buf.Bytes(), s.tail); err != nil {
		return store.Record{}, fmt.Errorf("write history file: %w", err)
	}
	if err := s.file.Sync(); err != nil {
		return store.Record{}, fmt.Errorf("sync history file: %w", err)
	}

	rec := store.Record{Seq: s.count, Message: *msg}
	s.tail += int64(buf.Len()) - 1
	s.count++
	return rec, nil
}

// Query reads the whole file and filters records exchanged between userA and
// userB. Records written by older servers that do not decode as a Message are
// skipped; Seq stays the record's index in the array.
func (s *Store) Query(ctx context.Context, userA, userB string) ([]store.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.file == nil {
		s.mu.Unlock()
		return nil, store.ErrClosed
	}
	raw, err := io.ReadAll(io.NewSectionReader(s.file, 0, s.tail+1))
	s.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("read history file: %w", err)
	}

	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return nil, fmt.Errorf("parse history file: %w", err)
	}

	records := make([]store.Record, 0)
	skipped := 0
	for i, elem := range elems {
		var m store.Message
		if err := json.Unmarshal(elem, &m); err != nil {
			skipped++
			continue
		}
		if m.Between(userA, userB) {
			records = append(records, store.Record{Seq: int64(i), Message: m})
		}
	}
	if skipped > 0 {
		s.log.Warn().Str("path", s.path).Int("skipped", skipped).Msg("unreadable history records ignored")
	}
	return records, nil
}

// Close closes the history file.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	if err != nil && !errors.Is(err, os.ErrClosed) {
		return fmt.Errorf("close history file: %w", err)
	}
	return nil
}
