// Package storetest holds the behaviour every store.HistoryStore must share.
package storetest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/wirechat-relay/internal/store"
)

// Opener opens a store rooted at dir. Calling it twice with the same dir must
// reopen the same data.
type Opener func(t *testing.T, dir string) store.HistoryStore

// Text builds a private message.
func Text(from, to, content string, ts string) *store.Message {
	return &store.Message{
		Event:   store.EventPrivateMessage,
		From:    from,
		To:      to,
		Time:    json.RawMessage(ts),
		Content: &content,
	}
}

// Media builds a media message.
func Media(from, to, fileType, fileName string, data []byte, ts string) *store.Message {
	return &store.Message{
		Event:    store.EventMediaMessage,
		From:     from,
		To:       to,
		Time:     json.RawMessage(ts),
		FileType: &fileType,
		FileName: &fileName,
		FileData: data,
	}
}

// Run executes the conformance suite against stores produced by open.
func Run(t *testing.T, open Opener) {
	t.Run("QueryIsSymmetricAndOrdered", func(t *testing.T) {
		req := require.New(t)
		st := open(t, t.TempDir())
		defer st.Close()
		ctx := context.Background()

		msgs := []*store.Message{
			Text("alice", "bob", "hi", "1700000000.5"),
			Text("carol", "alice", "unrelated", "1700000001"),
			Text("bob", "alice", "hey", "1700000002"),
			Media("alice", "bob", "photo", "cat.jpg", []byte{0xff, 0xd8, 0xff}, "1700000003"),
			Text("bob", "carol", "unrelated", "1700000004"),
		}
		for _, m := range msgs {
			_, err := st.Append(ctx, m)
			req.NoError(err)
		}

		ab, err := st.Query(ctx, "alice", "bob")
		req.NoError(err)
		ba, err := st.Query(ctx, "bob", "alice")
		req.NoError(err)
		req.Equal(store.Messages(ab), store.Messages(ba))

		got := store.Messages(ab)
		req.Len(got, 3)
		req.Equal(*msgs[0], got[0])
		req.Equal(*msgs[2], got[1])
		req.Equal(*msgs[3], got[2])
		req.Less(ab[0].Seq, ab[1].Seq)
		req.Less(ab[1].Seq, ab[2].Seq)
	})

	t.Run("EmptyQuery", func(t *testing.T) {
		req := require.New(t)
		st := open(t, t.TempDir())
		defer st.Close()

		records, err := st.Query(context.Background(), "nobody", "else")
		req.NoError(err)
		req.Empty(records)
	})

	t.Run("ConcurrentAppendsAreNotLost", func(t *testing.T) {
		req := require.New(t)
		st := open(t, t.TempDir())
		defer st.Close()
		ctx := context.Background()

		const senders = 32
		var wg sync.WaitGroup
		errs := make(chan error, senders)
		for i := range senders {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := st.Append(ctx, Text("alice", "bob", fmt.Sprintf("msg-%d", i), fmt.Sprint(i)))
				errs <- err
			}(i)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			req.NoError(err)
		}

		records, err := st.Query(ctx, "alice", "bob")
		req.NoError(err)
		req.Len(records, senders)

		seen := make(map[string]bool, senders)
		for _, r := range records {
			seen[*r.Message.Content] = true
		}
		req.Len(seen, senders)
	})

	t.Run("SurvivesReopen", func(t *testing.T) {
		req := require.New(t)
		dir := t.TempDir()
		ctx := context.Background()

		st := open(t, dir)
		_, err := st.Append(ctx, Text("alice", "bob", "before restart", "1"))
		req.NoError(err)
		req.NoError(st.Close())

		st = open(t, dir)
		defer st.Close()
		_, err = st.Append(ctx, Text("bob", "alice", "after restart", "2"))
		req.NoError(err)

		records, err := st.Query(ctx, "alice", "bob")
		req.NoError(err)
		req.Len(records, 2)
		req.Equal("before restart", *records[0].Message.Content)
		req.Equal("after restart", *records[1].Message.Content)
	})
}
