package core

import (
	"bytes"
	"encoding/json"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/vovakirdan/wirechat-relay/internal/media"
	"github.com/vovakirdan/wirechat-relay/internal/store"
)

func mediaBase() store.Message {
	return store.Message{
		Event:    store.EventMediaMessage,
		From:     "alice",
		To:       "bob",
		Time:     json.RawMessage("1700000000.25"),
		FileType: strPtr(media.TypePhoto),
		FileName: strPtr("cat.jpg"),
	}
}

func permutations(n int) [][]int {
	if n == 1 {
		return [][]int{{0}}
	}
	var out [][]int
	for _, p := range permutations(n - 1) {
		for pos := 0; pos <= len(p); pos++ {
			perm := make([]int, 0, n)
			perm = append(perm, p[:pos]...)
			perm = append(perm, n-1)
			perm = append(perm, p[pos:]...)
			out = append(out, perm)
		}
	}
	return out
}

func TestReassemblyIsOrderIndependent(t *testing.T) {
	payload := bytes.Repeat([]byte{0x00, 0x01, 0xfe, 0xff, 'x'}, 40)
	chunks := media.Split(payload, 51)
	if len(chunks) != 4 {
		t.Fatalf("expected 4 chunks, got %d", len(chunks))
	}

	for _, order := range permutations(len(chunks)) {
		r := NewReassembler()
		var done *store.Message
		for step, idx := range order {
			msg, err := r.Ingest(Chunk{FileID: "f1", Index: idx, Count: len(chunks), Data: chunks[idx]}, mediaBase())
			if err != nil {
				t.Fatalf("order %v: ingest: %v", order, err)
			}
			if step < len(order)-1 && msg != nil {
				t.Fatalf("order %v: completed early at step %d", order, step)
			}
			done = msg
		}
		if done == nil {
			t.Fatalf("order %v: transfer did not complete", order)
		}
		if !bytes.Equal(done.FileData, payload) {
			t.Fatalf("order %v: payload mismatch", order)
		}
		if r.Pending() != 0 {
			t.Fatalf("order %v: buffer not discarded", order)
		}
	}
}

func TestSingleAndMultiChunkParity(t *testing.T) {
	payload := []byte("the same logical payload, long enough to split")

	single, err := NewReassembler().Ingest(Chunk{FileID: "s", Index: 0, Count: 1, Data: media.Split(payload, media.ChunkSize)[0]}, mediaBase())
	if err != nil || single == nil {
		t.Fatalf("single frame: %v, %v", single, err)
	}

	r := NewReassembler()
	chunks := media.Split(payload, 9)
	var multi *store.Message
	for i, c := range chunks {
		multi, err = r.Ingest(Chunk{FileID: "m", Index: i, Count: len(chunks), Data: c}, mediaBase())
		if err != nil {
			t.Fatalf("chunk %d: %v", i, err)
		}
	}

	if !reflect.DeepEqual(single, multi) {
		t.Fatalf("shapes differ:\nsingle=%+v\nmulti=%+v", single, multi)
	}
}

func TestZeroChunkCountIsSingleFrame(t *testing.T) {
	msg, err := NewReassembler().Ingest(Chunk{Data: "aGk="}, mediaBase())
	if err != nil || msg == nil || string(msg.FileData) != "hi" {
		t.Fatalf("unexpected result: %+v, %v", msg, err)
	}
}

func TestBaseFieldsComeFromFirstChunk(t *testing.T) {
	r := NewReassembler()
	first := mediaBase()
	later := mediaBase()
	later.FileName = strPtr("renamed.jpg")

	if _, err := r.Ingest(Chunk{FileID: "f", Index: 1, Count: 2, Data: "Yg=="}, first); err != nil {
		t.Fatal(err)
	}
	msg, err := r.Ingest(Chunk{FileID: "f", Index: 0, Count: 2, Data: "YWFh"}, later)
	if err != nil {
		t.Fatal(err)
	}
	if *msg.FileName != "cat.jpg" || string(msg.FileData) != "aaab" {
		t.Fatalf("unexpected message: name=%s data=%q", *msg.FileName, msg.FileData)
	}
}

func TestDuplicateChunkDoesNotComplete(t *testing.T) {
	r := NewReassembler()
	for i := 0; i < 2; i++ {
		msg, err := r.Ingest(Chunk{FileID: "f", Index: 0, Count: 2, Data: "YWFh"}, mediaBase())
		if err != nil || msg != nil {
			t.Fatalf("attempt %d: %+v, %v", i, msg, err)
		}
	}
	if r.Pending() != 1 {
		t.Fatalf("expected one pending transfer, got %d", r.Pending())
	}
	msg, err := r.Ingest(Chunk{FileID: "f", Index: 1, Count: 2, Data: "YmJi"}, mediaBase())
	if err != nil || msg == nil || string(msg.FileData) != "aaabbb" {
		t.Fatalf("unexpected completion: %+v, %v", msg, err)
	}
}

func TestInvalidChunksAreRejected(t *testing.T) {
	r := NewReassembler()

	if _, err := r.Ingest(Chunk{Index: 0, Count: 2, Data: "YWFh"}, mediaBase()); !errors.Is(err, ErrMissingFileID) {
		t.Fatalf("expected ErrMissingFileID, got %v", err)
	}
	if _, err := r.Ingest(Chunk{FileID: "f", Index: 2, Count: 2, Data: "YWFh"}, mediaBase()); !errors.Is(err, ErrChunkOutOfRange) {
		t.Fatalf("expected ErrChunkOutOfRange, got %v", err)
	}
	if _, err := r.Ingest(Chunk{FileID: "f", Index: -1, Count: 2, Data: "YWFh"}, mediaBase()); !errors.Is(err, ErrChunkOutOfRange) {
		t.Fatalf("expected ErrChunkOutOfRange, got %v", err)
	}

	if _, err := r.Ingest(Chunk{FileID: "f", Index: 0, Count: 2, Data: "YWFh"}, mediaBase()); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Ingest(Chunk{FileID: "f", Index: 1, Count: 3, Data: "YWFh"}, mediaBase()); !errors.Is(err, ErrChunkCountMismatch) {
		t.Fatalf("expected ErrChunkCountMismatch, got %v", err)
	}
	if r.Pending() != 1 {
		t.Fatalf("mismatched chunk should leave the buffer, pending=%d", r.Pending())
	}
}

func TestDecodeFailureOnlyAtCompletion(t *testing.T) {
	r := NewReassembler()

	// Padding in the middle is only detected once the whole payload is joined.
	msg, err := r.Ingest(Chunk{FileID: "bad", Index: 0, Count: 2, Data: "YQ=="}, mediaBase())
	if err != nil || msg != nil {
		t.Fatalf("first chunk: %+v, %v", msg, err)
	}
	msg, err = r.Ingest(Chunk{FileID: "bad", Index: 1, Count: 2, Data: "YWFh"}, mediaBase())
	if !errors.Is(err, ErrChunkDecode) || msg != nil {
		t.Fatalf("expected ErrChunkDecode, got %+v, %v", msg, err)
	}
	if r.Pending() != 0 {
		t.Fatal("failed transfer should be discarded")
	}
}

func TestEvictIdleTransfers(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	r := NewReassembler()
	r.now = func() time.Time { return now }

	if _, err := r.Ingest(Chunk{FileID: "old", Index: 0, Count: 2, Data: "YWFh"}, mediaBase()); err != nil {
		t.Fatal(err)
	}
	now = now.Add(time.Minute)
	if _, err := r.Ingest(Chunk{FileID: "fresh", Index: 0, Count: 2, Data: "YWFh"}, mediaBase()); err != nil {
		t.Fatal(err)
	}
	now = now.Add(30 * time.Second)

	evicted := r.Evict(45 * time.Second)
	if len(evicted) != 1 || evicted[0] != "old" {
		t.Fatalf("evicted = %v", evicted)
	}
	if r.Pending() != 1 {
		t.Fatalf("expected fresh transfer to survive, pending=%d", r.Pending())
	}
}
