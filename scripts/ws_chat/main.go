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
	"strings"
	"syscall"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/lanchat-server/internal/proto"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_chat: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:3000/ws", "WebSocket address")
	user := flag.String("user", "cli-user", "username")
	token := flag.String("token", "", "bearer token from /api/login, if the server requires one")
	flag.Parse()

	baseCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	url := *addr
	if *token != "" {
		url += "?token=" + *token
	}
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	if err := send(ctx, conn, proto.InboundTypeAuthenticate, proto.AuthenticateData{Username: *user}); err != nil {
		return err
	}

	fmt.Printf("Connected to %s as %s\n", *addr, *user)
	fmt.Println("Type to broadcast, '/msg <user> <text>' for a private message. Ctrl+C to exit.")

	go func() {
		defer cancel()
		readLoop(ctx, conn)
	}()

	writeLoop(ctx, conn)

	stop()
	cancel()
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
	return nil
}

func send(ctx context.Context, conn *websocket.Conn, typ string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", typ, err)
	}
	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: typ, Data: payload}); err != nil {
		return fmt.Errorf("send %s: %w", typ, err)
	}
	return nil
}

func readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		var outbound struct {
			Type  string          `json:"type"`
			Event string          `json:"event"`
			Data  json.RawMessage `json:"data"`
			Error *proto.Error    `json:"error"`
		}
		if err := wsjson.Read(ctx, conn, &outbound); err != nil {
			// Treat expected shutdowns quietly.
			if errors.Is(err, context.Canceled) {
				return
			}
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return
			case websocket.StatusPolicyViolation:
				fmt.Println("disconnected: signed in from another connection")
				return
			}
			log.Printf("read error: %v", err)
			return
		}

		if outbound.Error != nil {
			fmt.Printf("! %s: %s\n", outbound.Error.Code, outbound.Error.Msg)
			continue
		}

		switch outbound.Event {
		case proto.EventBroadcastMessage, proto.EventPrivateMessage:
			var evt proto.EventMessageData
			if err := json.Unmarshal(outbound.Data, &evt); err != nil {
				log.Printf("unmarshal message: %v", err)
				continue
			}
			prefix := "[all]"
			if outbound.Event == proto.EventPrivateMessage {
				prefix = "[dm]"
			}
			fmt.Printf("%s %s: %s\n", prefix, evt.From, evt.Message)
		case proto.EventFileReceive:
			var evt proto.EventFileReceiveData
			if err := json.Unmarshal(outbound.Data, &evt); err != nil {
				log.Printf("unmarshal file: %v", err)
				continue
			}
			fmt.Printf("[file] %s sent %s (%s, message %d)\n", evt.From, evt.Filename, evt.FileType, evt.MessageID)
		case proto.EventUserStatus:
			var evt proto.EventUserStatusData
			if err := json.Unmarshal(outbound.Data, &evt); err != nil {
				log.Printf("unmarshal user_status: %v", err)
				continue
			}
			fmt.Printf("* %s is %s (%d online)\n", evt.Username, evt.Status, len(evt.OnlineUsers))
		default:
			fmt.Printf("event=%s data=%s\n", outbound.Event, outbound.Data)
		}
	}
}

func writeLoop(ctx context.Context, conn *websocket.Conn) {
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

			ts := time.Now().UTC().Format(time.RFC3339)
			var err error
			if rest, found := strings.CutPrefix(text, "/msg "); found {
				to, body, _ := strings.Cut(strings.TrimSpace(rest), " ")
				err = send(ctx, conn, proto.InboundTypePrivateMessage, proto.PrivateMessageData{To: to, Message: body, Timestamp: ts})
			} else {
				err = send(ctx, conn, proto.InboundTypeBroadcastMessage, proto.BroadcastMessageData{Message: text, Timestamp: ts})
			}
			if err != nil {
				log.Printf("%v", err)
				return
			}
		}
	}
}
