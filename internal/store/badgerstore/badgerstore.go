// Package badgerstore stores chat history in BadgerDB.
//
// Every message lives under "hist:{seq}" with a zero-padded sequence so a
// prefix scan returns insertion order. A secondary key
// "pair:{lo}\x00{hi}\x00{seq}" indexes the conversation between two users,
// independent of direction.
package badgerstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"

	"github.com/vovakirdan/wirechat-relay/internal/store"
)

const (
	historyPrefix = "hist:"
	pairPrefix    = "pair:"
	seqKey        = "meta:seq"
	seqBandwidth  = 128
)

// Store implements store.HistoryStore on BadgerDB.
type Store struct {
	mu  sync.Mutex
	db  *badger.DB
	seq *badger.Sequence
}

// New opens a Badger database in dir.
func New(dir string) (*Store, error) {
	return Open(badger.DefaultOptions(dir).WithLoggingLevel(badger.ERROR).WithSyncWrites(true))
}

// Open opens a Badger database with explicit options.
func Open(opts badger.Options) (*Store, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	seq, err := db.GetSequence([]byte(seqKey), seqBandwidth)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("lease sequence: %w", err)
	}
	return &Store{db: db, seq: seq}, nil
}

// Append assigns the next sequence number and writes the message and its pair index in one transaction.
func (s *Store) Append(ctx context.Context, msg *store.Message) (store.Record, error) {
	if err := ctx.Err(); err != nil {
		return store.Record{}, err
	}

	value, err := json.Marshal(msg)
	if err != nil {
		return store.Record{}, fmt.Errorf("encode message: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return store.Record{}, store.ErrClosed
	}

	next, err := s.seq.Next()
	if err != nil {
		return store.Record{}, fmt.Errorf("next sequence: %w", err)
	}
	seq := int64(next)

	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(historyKey(seq), value); err != nil {
			return err
		}
		return txn.Set(pairKey(msg.From, msg.To, seq), nil)
	})
	if err != nil {
		return store.Record{}, fmt.Errorf("write history: %w", err)
	}

	return store.Record{Seq: seq, Message: *msg}, nil
}

// Query scans the pair index and loads each referenced message.
func (s *Store) Query(ctx context.Context, userA, userB string) ([]store.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	db := s.db
	s.mu.Unlock()
	if db == nil {
		return nil, store.ErrClosed
	}

	records := make([]store.Record, 0)
	err := db.View(func(txn *badger.Txn) error {
		prefix := pairPrefixFor(userA, userB)
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var seq int64
			if _, err := fmt.Sscanf(string(it.Item().Key()[len(prefix):]), "%020d", &seq); err != nil {
				return fmt.Errorf("parse pair key: %w", err)
			}

			item, err := txn.Get(historyKey(seq))
			if err != nil {
				return fmt.Errorf("load message %d: %w", seq, err)
			}

			rec := store.Record{Seq: seq}
			if err := item.Value(func(v []byte) error {
				return json.Unmarshal(v, &rec.Message)
			}); err != nil {
				return fmt.Errorf("decode message %d: %w", seq, err)
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return records, nil
}

// Close releases the sequence lease and closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	var errs []error
	if err := s.seq.Release(); err != nil {
		errs = append(errs, fmt.Errorf("release sequence: %w", err))
	}
	if err := s.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close badger: %w", err))
	}
	s.db = nil
	return errors.Join(errs...)
}

func historyKey(seq int64) []byte {
	return []byte(fmt.Sprintf("%s%020d", historyPrefix, seq))
}

func pairPrefixFor(a, b string) []byte {
	if b < a {
		a, b = b, a
	}
	return []byte(pairPrefix + a + "\x00" + b + "\x00")
}

func pairKey(from, to string, seq int64) []byte {
	return append(pairPrefixFor(from, to), []byte(fmt.Sprintf("%020d", seq))...)
}
