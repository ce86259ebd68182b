package http

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"slices"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/vovakirdan/wirechat-relay/internal/media"
)

func TestHealthEndpoint(t *testing.T) {
	ts, _ := startTestServer(t)

	resp, err := ts.Client().Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != 200 || string(body) != "ok" {
		t.Fatalf("unexpected health response: %d %q", resp.StatusCode, body)
	}
}

func TestWebSocketPrivateMessageAndHistory(t *testing.T) {
	ts, _ := startTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	alice := dial(ctx, t, ts, "/")
	bob := dial(ctx, t, ts, "/ws")

	register(ctx, t, alice, "alice")
	readUntil(ctx, t, alice, onlineIs(t, "alice"))
	register(ctx, t, bob, "bob")
	readUntil(ctx, t, alice, onlineIs(t, "alice", "bob"))
	readUntil(ctx, t, bob, onlineIs(t, "alice", "bob"))

	send(ctx, t, alice, map[string]any{
		"event":   "privateMessage",
		"from":    "alice",
		"to":      "bob",
		"content": "hi bob",
		"time":    json.RawMessage("1700000000.123"),
	})

	isText := func(f frame) bool { return f.Event == "privateMessage" }
	got := readUntil(ctx, t, bob, isText)
	if got.From != "alice" || got.To != "bob" || got.Content == nil || *got.Content != "hi bob" {
		t.Fatalf("unexpected message at bob: %+v", got)
	}
	if string(got.Time) != "1700000000.123" {
		t.Fatalf("time changed in transit: %s", got.Time)
	}

	echo := readUntil(ctx, t, alice, isText)
	if echo.Content == nil || *echo.Content != "hi bob" {
		t.Fatalf("unexpected echo: %+v", echo)
	}

	send(ctx, t, bob, map[string]any{"event": "loadHistory", "withUser": "alice"})
	hist := readUntil(ctx, t, bob, func(f frame) bool { return f.Event == "history" })

	var msgs []frame
	if err := json.Unmarshal(hist.Data, &msgs); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(msgs) != 1 || *msgs[0].Content != "hi bob" || msgs[0].Event != "privateMessage" {
		t.Fatalf("unexpected history: %+v", msgs)
	}
}

func TestWebSocketChunkedMediaOutOfOrder(t *testing.T) {
	ts, hub := startTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	alice := dial(ctx, t, ts, "/")
	bob := dial(ctx, t, ts, "/")

	register(ctx, t, alice, "alice")
	readUntil(ctx, t, alice, onlineIs(t, "alice"))
	register(ctx, t, bob, "bob")
	readUntil(ctx, t, alice, onlineIs(t, "alice", "bob"))
	readUntil(ctx, t, bob, onlineIs(t, "alice", "bob"))

	payload := []byte("0123456789abcdefghijklmnopqrstuvwxyz")
	chunks := media.Split(payload, 12)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}

	for _, idx := range []int{2, 0, 1} {
		send(ctx, t, alice, map[string]any{
			"event":       "mediaMessage",
			"from":        "alice",
			"to":          "bob",
			"time":        1700000001,
			"fileType":    media.TypeVoice,
			"fileName":    "memo.m4a",
			"fileData":    chunks[idx],
			"fileId":      "F-1",
			"chunkIndex":  idx,
			"chunkCount":  len(chunks),
			"isLastChunk": idx == len(chunks)-1,
		})
	}

	got := readUntil(ctx, t, bob, func(f frame) bool { return f.Event == "mediaMessage" })
	if got.FileData != base64.StdEncoding.EncodeToString(payload) {
		t.Fatalf("payload mismatch: %q", got.FileData)
	}
	if got.FileName == nil || *got.FileName != "memo.m4a" || got.FileID != "" {
		t.Fatalf("unexpected media frame: %+v", got)
	}
	readUntil(ctx, t, alice, func(f frame) bool { return f.Event == "mediaMessage" })

	if hub.PendingTransfers() != 0 {
		t.Fatal("transfer left pending")
	}
}

func TestWebSocketMalformedFrameKeepsConnection(t *testing.T) {
	ts, _ := startTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dial(ctx, t, ts, "/")
	register(ctx, t, conn, "alice")
	readUntil(ctx, t, conn, onlineIs(t, "alice"))

	if err := conn.Write(ctx, websocket.MessageText, []byte("{not json")); err != nil {
		t.Fatalf("write garbage: %v", err)
	}
	send(ctx, t, conn, map[string]any{"username": "no event"})
	send(ctx, t, conn, map[string]any{"event": "typing"})

	send(ctx, t, conn, map[string]any{"event": "refresh"})
	readUntil(ctx, t, conn, onlineIs(t, "alice"))
}

func TestWebSocketDisconnectUpdatesOnlineList(t *testing.T) {
	ts, hub := startTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	alice := dial(ctx, t, ts, "/")
	bob := dial(ctx, t, ts, "/")

	register(ctx, t, alice, "alice")
	readUntil(ctx, t, alice, onlineIs(t, "alice"))
	register(ctx, t, bob, "bob")
	readUntil(ctx, t, alice, onlineIs(t, "alice", "bob"))

	bob.Close(websocket.StatusNormalClosure, "bye")

	readUntil(ctx, t, alice, onlineIs(t, "alice"))
	if users := hub.OnlineUsers(); !slices.Equal(users, []string{"alice"}) {
		t.Fatalf("hub still lists %v", users)
	}
}

func TestWebSocketRelaysTimeVerbatim(t *testing.T) {
	ts, _ := startTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	alice := dial(ctx, t, ts, "/")
	bob := dial(ctx, t, ts, "/")

	register(ctx, t, alice, "alice")
	readUntil(ctx, t, alice, onlineIs(t, "alice"))
	register(ctx, t, bob, "bob")
	readUntil(ctx, t, bob, onlineIs(t, "alice", "bob"))

	times := []string{`"2024-05-01T10:00:00Z"`, `"1700000000"`, `1.7e9`}
	for _, stamp := range times {
		raw := `{"event":"privateMessage","from":"alice","to":"bob","content":"t","time":` + stamp + `}`
		if err := alice.Write(ctx, websocket.MessageText, []byte(raw)); err != nil {
			t.Fatalf("write frame: %v", err)
		}

		got := readUntil(ctx, t, bob, func(f frame) bool { return f.Event == "privateMessage" })
		if string(got.Time) != stamp {
			t.Fatalf("time %s arrived as %s", stamp, got.Time)
		}
		echo := readUntil(ctx, t, alice, func(f frame) bool { return f.Event == "privateMessage" })
		if string(echo.Time) != stamp {
			t.Fatalf("time %s echoed as %s", stamp, echo.Time)
		}
	}

	send(ctx, t, bob, map[string]any{"event": "loadHistory", "withUser": "alice"})
	hist := readUntil(ctx, t, bob, func(f frame) bool { return f.Event == "history" })

	var msgs []frame
	if err := json.Unmarshal(hist.Data, &msgs); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(msgs) != len(times) {
		t.Fatalf("expected %d history entries, got %d", len(times), len(msgs))
	}
	for i, m := range msgs {
		if string(m.Time) != times[i] {
			t.Fatalf("history entry %d time = %s, want %s", i, m.Time, times[i])
		}
	}
}
