package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/wirechat-relay/internal/proto"
	"github.com/vovakirdan/wirechat-relay/internal/store"
)

// outbound covers the frames the smoke run waits for.
type outbound struct {
	Event   string          `json:"event"`
	From    string          `json:"from"`
	To      string          `json:"to"`
	Content *string         `json:"content"`
	Data    json.RawMessage `json:"data"`
}

func main() {
	if err := run(); err != nil {
		log.Printf("ws_smoke: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:3000/", "WebSocket address")
	user := flag.String("user", "tester", "username to register")
	to := flag.String("to", "tester-peer", "recipient of the test message")
	text := flag.String("text", "hello from smoke test", "message text to send")
	timeout := flag.Duration("timeout", 5*time.Second, "total timeout for the run")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, *addr, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")
	conn.SetReadLimit(256 << 20)

	mustSend := func(v any) error {
		if err := wsjson.Write(ctx, conn, v); err != nil {
			return fmt.Errorf("send: %w", err)
		}
		return nil
	}

	if err := mustSend(proto.Inbound{Event: proto.EventRegister, Username: *user}); err != nil {
		return err
	}
	if err := waitFor(ctx, conn, proto.EventOnlineUsers); err != nil {
		return err
	}

	stamp := strconv.FormatInt(time.Now().Unix(), 10)
	if err := mustSend(proto.Inbound{
		Event:   proto.EventPrivateMessage,
		From:    *user,
		To:      *to,
		Time:    json.RawMessage(stamp),
		Content: text,
	}); err != nil {
		return err
	}
	if err := waitFor(ctx, conn, proto.EventPrivateMessage); err != nil {
		return err
	}

	if err := mustSend(proto.Inbound{Event: proto.EventLoadHistory, WithUser: *to}); err != nil {
		return err
	}
	return waitFor(ctx, conn, proto.EventHistory)
}

// waitFor reads frames, printing each, until one with the given event arrives.
func waitFor(ctx context.Context, conn *websocket.Conn, event string) error {
	for {
		var out outbound
		if err := wsjson.Read(ctx, conn, &out); err != nil {
			return fmt.Errorf("read %s: %w", event, err)
		}

		switch out.Event {
		case proto.EventOnlineUsers:
			fmt.Printf("onlineUsers: %s\n", out.Data)
		case proto.EventPrivateMessage:
			content := ""
			if out.Content != nil {
				content = *out.Content
			}
			fmt.Printf("privateMessage: from=%s to=%s text=%q\n", out.From, out.To, content)
		case proto.EventHistory:
			var msgs []store.Message
			if err := json.Unmarshal(out.Data, &msgs); err != nil {
				return fmt.Errorf("unmarshal history: %w", err)
			}
			fmt.Printf("history: %d messages\n", len(msgs))
		default:
			fmt.Printf("event=%s\n", out.Event)
		}

		if out.Event == event {
			return nil
		}
	}
}
