package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"

	"github.com/vovakirdan/wirechat-relay/internal/media"
	"github.com/vovakirdan/wirechat-relay/internal/proto"
)

// outbound covers every frame the relay sends.
type outbound struct {
	Event    string          `json:"event"`
	From     string          `json:"from"`
	To       string          `json:"to"`
	Content  *string         `json:"content"`
	FileType *string         `json:"fileType"`
	FileName *string         `json:"fileName"`
	FileData []byte          `json:"fileData"`
	FileID   string          `json:"fileId"`
	Reason   string          `json:"reason"`
	Data     json.RawMessage `json:"data"`
}

func main() {
	if err := run(); err != nil {
		log.Printf("ws_chat: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:3000/", "WebSocket address")
	user := flag.String("user", "cli-user", "username")
	chunkSize := flag.Int("chunk-size", media.ChunkSize, "raw bytes per media chunk")
	flag.Parse()

	baseCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, *addr, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")
	conn.SetReadLimit(256 << 20)

	if err := wsjson.Write(ctx, conn, proto.Inbound{Event: proto.EventRegister, Username: *user}); err != nil {
		return fmt.Errorf("register: %w", err)
	}

	fmt.Printf("Connected to %s as %s\n", *addr, *user)
	fmt.Println("Commands: @user text | /send user path | /history user | /refresh. Ctrl+C to exit.")

	go func() {
		defer cancel()
		readLoop(ctx, conn)
	}()

	writeLoop(ctx, conn, *user, *chunkSize)

	stop()
	cancel()
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
	return nil
}

func readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		var out outbound
		if err := wsjson.Read(ctx, conn, &out); err != nil {
			// Treat expected shutdowns quietly.
			if errors.Is(err, context.Canceled) {
				return
			}
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return
			}
			log.Printf("read error: %v", err)
			return
		}

		switch out.Event {
		case proto.EventPrivateMessage:
			fmt.Printf("%s -> %s: %s\n", out.From, out.To, deref(out.Content))
		case proto.EventMediaMessage:
			fmt.Printf("%s -> %s: [%s %s, %d bytes, %s]\n",
				out.From, out.To, deref(out.FileType), deref(out.FileName), len(out.FileData), media.Detect(out.FileData))
		case proto.EventOnlineUsers:
			var users []proto.User
			if err := json.Unmarshal(out.Data, &users); err != nil {
				log.Printf("unmarshal online users: %v", err)
				continue
			}
			names := make([]string, 0, len(users))
			for _, u := range users {
				names = append(names, u.Username)
			}
			fmt.Printf("online: %s\n", strings.Join(names, ", "))
		case proto.EventHistory:
			var msgs []outbound
			if err := json.Unmarshal(out.Data, &msgs); err != nil {
				log.Printf("unmarshal history: %v", err)
				continue
			}
			fmt.Printf("history (%d):\n", len(msgs))
			for _, m := range msgs {
				if m.Event == proto.EventMediaMessage {
					fmt.Printf("  %s -> %s: [%s %s]\n", m.From, m.To, deref(m.FileType), deref(m.FileName))
					continue
				}
				fmt.Printf("  %s -> %s: %s\n", m.From, m.To, deref(m.Content))
			}
		case proto.EventMediaFailed:
			fmt.Printf("media %s failed: %s\n", out.FileID, out.Reason)
		default:
			fmt.Printf("event=%s data=%s\n", out.Event, out.Data)
		}
	}
}

func writeLoop(ctx context.Context, conn *websocket.Conn, user string, chunkSize int) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			text := strings.TrimSpace(line)
			if text == "" {
				continue
			}
			if err := handleLine(ctx, conn, user, chunkSize, text); err != nil {
				log.Printf("send error: %v", err)
				if errors.Is(err, errUsage) {
					continue
				}
				return
			}
		}
	}
}

var errUsage = errors.New("usage: @user text | /send user path | /history user | /refresh")

func handleLine(ctx context.Context, conn *websocket.Conn, user string, chunkSize int, text string) error {
	fields := strings.Fields(text)
	switch {
	case fields[0] == "/refresh":
		return wsjson.Write(ctx, conn, proto.Inbound{Event: proto.EventRefresh})
	case fields[0] == "/history" && len(fields) == 2:
		return wsjson.Write(ctx, conn, proto.Inbound{Event: proto.EventLoadHistory, WithUser: fields[1]})
	case fields[0] == "/send" && len(fields) == 3:
		return sendFile(ctx, conn, user, fields[1], fields[2], chunkSize)
	case strings.HasPrefix(fields[0], "@") && len(fields) > 1:
		content := strings.TrimSpace(strings.TrimPrefix(text, fields[0]))
		return wsjson.Write(ctx, conn, proto.Inbound{
			Event:   proto.EventPrivateMessage,
			From:    user,
			To:      strings.TrimPrefix(fields[0], "@"),
			Time:    now(),
			Content: &content,
		})
	default:
		return errUsage
	}
}

func sendFile(ctx context.Context, conn *websocket.Conn, from, to, path string, chunkSize int) error {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Printf("read %s: %v", path, err)
		return nil
	}

	mime := media.Detect(data)
	fileType := media.TypeFor(mime)
	if fileType == "" {
		log.Printf("%s is %s, not a photo, video or voice note", path, mime)
		return nil
	}
	fileName := filepath.Base(path)

	chunks := media.Split(data, chunkSize)
	frame := proto.Inbound{
		Event:    proto.EventMediaMessage,
		From:     from,
		To:       to,
		Time:     now(),
		FileType: &fileType,
		FileName: &fileName,
	}
	if len(chunks) > 1 {
		frame.FileID = uuid.NewString()
		frame.ChunkCount = len(chunks)
	}

	for i, chunk := range chunks {
		frame.FileData = chunk
		frame.ChunkIndex = i
		frame.IsLastChunk = i == len(chunks)-1
		if err := wsjson.Write(ctx, conn, frame); err != nil {
			return fmt.Errorf("chunk %d/%d: %w", i+1, len(chunks), err)
		}
	}
	fmt.Printf("sent %s (%s, %d bytes, %d chunks)\n", fileName, mime, len(data), len(chunks))
	return nil
}

// now returns the current time as fractional unix seconds.
func now() json.RawMessage {
	secs := float64(time.Now().UnixMilli()) / 1000
	return json.RawMessage(strconv.FormatFloat(secs, 'f', 3, 64))
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
