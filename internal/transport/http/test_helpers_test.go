package http

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-relay/internal/config"
	"github.com/vovakirdan/wirechat-relay/internal/core"
	"github.com/vovakirdan/wirechat-relay/internal/store/jsonfile"
)

func testLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

// frame is the union of every outbound frame the relay sends.
type frame struct {
	Event    string          `json:"event"`
	From     string          `json:"from"`
	To       string          `json:"to"`
	Time     json.RawMessage `json:"time"`
	Content  *string         `json:"content"`
	FileType *string         `json:"fileType"`
	FileName *string         `json:"fileName"`
	FileData string          `json:"fileData"`
	FileID   string          `json:"fileId"`
	Data     json.RawMessage `json:"data"`
}

func (f frame) usernames(t *testing.T) []string {
	t.Helper()
	var users []struct {
		Username string `json:"username"`
	}
	if err := json.Unmarshal(f.Data, &users); err != nil {
		t.Fatalf("decode online users: %v", err)
	}
	out := make([]string, 0, len(users))
	for _, u := range users {
		out = append(out, u.Username)
	}
	return out
}

func startTestServer(t *testing.T) (*httptest.Server, *core.Hub) {
	t.Helper()

	st, err := jsonfile.New(filepath.Join(t.TempDir(), "chatRecords.json"))
	if err != nil {
		t.Fatalf("open history: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	hub := core.NewHub(st, nil, core.Options{})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	cfg := config.Default()
	cfg.Addr = ":0"
	cfg.ReadHeaderTimeout = time.Second
	cfg.ShutdownTimeout = time.Second

	server := NewServer(hub, &cfg, testLogger())

	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)

	return ts, hub
}

func dial(ctx context.Context, t *testing.T, ts *httptest.Server, path string) *websocket.Conn {
	t.Helper()

	wsURL := strings.Replace(ts.URL, "http", "ws", 1) + path
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", path, err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "done") })
	return conn
}

func send(ctx context.Context, t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	if err := wsjson.Write(ctx, conn, v); err != nil {
		t.Fatalf("write frame: %v", err)
	}
}

// readUntil reads frames until one satisfies match.
func readUntil(ctx context.Context, t *testing.T, conn *websocket.Conn, match func(frame) bool) frame {
	t.Helper()
	for {
		var f frame
		if err := wsjson.Read(ctx, conn, &f); err != nil {
			t.Fatalf("read frame: %v", err)
		}
		if match(f) {
			return f
		}
	}
}

func onlineIs(t *testing.T, want ...string) func(frame) bool {
	return func(f frame) bool {
		return f.Event == "onlineUsers" && slices.Equal(f.usernames(t), want)
	}
}

func register(ctx context.Context, t *testing.T, conn *websocket.Conn, name string) {
	t.Helper()
	send(ctx, t, conn, map[string]any{"event": "register", "username": name})
}
