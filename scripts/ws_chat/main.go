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

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/parleychat/parley-server/internal/proto"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_chat: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:8080/ws", "WebSocket address")
	token := flag.String("token", "", "JWT from /api/login")
	room := flag.String("room", "general", "room to join")
	flag.Parse()

	if *token == "" {
		return errors.New("-token is required (obtain one via POST /api/login)")
	}

	baseCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, *addr, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	send := func(msgType string, data any) {
		payload, marshalErr := json.Marshal(data)
		if marshalErr != nil {
			cancel()
			log.Printf("marshal %s: %v", msgType, marshalErr)
			return
		}
		if writeErr := wsjson.Write(ctx, conn, proto.Inbound{Type: msgType, Data: payload}); writeErr != nil {
			cancel()
			log.Printf("send: %v", writeErr)
		}
	}

	send(proto.InboundTypeHello, proto.HelloData{Token: *token, Protocol: proto.ProtocolVersion})
	send(proto.InboundTypeJoin, proto.RoomData{Room: *room})

	fmt.Printf("Connected to %s in room %s\n", *addr, *room)
	fmt.Println("Type messages and press Enter to send. '/dm user text' for direct messages. Ctrl+C to exit.")

	go func() {
		defer cancel()
		readLoop(ctx, conn)
	}()

	writeLoop(ctx, *room, send)

	stop()
	cancel()
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
	return nil
}

func decodeEvent[T any](data any) (T, error) {
	var evt T
	raw, err := json.Marshal(data)
	if err != nil {
		return evt, err
	}
	err = json.Unmarshal(raw, &evt)
	return evt, err
}

func readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		var outbound proto.Outbound
		if err := wsjson.Read(ctx, conn, &outbound); err != nil {
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

		if outbound.Type == proto.OutboundTypeError && outbound.Error != nil {
			fmt.Printf("error [%s]: %s\n", outbound.Error.Code, outbound.Error.Msg)
			continue
		}

		switch outbound.Event {
		case proto.EventMessage:
			evt, err := decodeEvent[proto.EventMessageData](outbound.Data)
			if err != nil {
				log.Printf("decode message: %v", err)
				continue
			}
			fmt.Printf("[%s] %s: %s\n", evt.Room, evt.User, evt.Text)
		case proto.EventDM:
			evt, err := decodeEvent[proto.EventMessageData](outbound.Data)
			if err != nil {
				log.Printf("decode dm: %v", err)
				continue
			}
			fmt.Printf("[dm] %s -> %s: %s\n", evt.From, evt.To, evt.Text)
		case proto.EventRoomUsers:
			evt, err := decodeEvent[proto.EventRoomUsersData](outbound.Data)
			if err != nil {
				log.Printf("decode room_users: %v", err)
				continue
			}
			fmt.Printf("[room %s] users: %s\n", evt.Room, strings.Join(evt.Users, ", "))
		case proto.EventUserStatus:
			evt, err := decodeEvent[proto.EventUserStatusData](outbound.Data)
			if err != nil {
				log.Printf("decode user_status: %v", err)
				continue
			}
			fmt.Printf("* %s is %s\n", evt.User, evt.Status)
		case proto.EventHistory:
			evt, err := decodeEvent[proto.EventHistoryData](outbound.Data)
			if err != nil {
				log.Printf("decode history: %v", err)
				continue
			}
			for _, m := range evt.Messages {
				fmt.Printf("[%s] %s: %s\n", evt.Room, m.User, m.Text)
			}
		default:
			fmt.Printf("event=%s data=%v\n", outbound.Event, outbound.Data)
		}
	}
}

func writeLoop(ctx context.Context, room string, send func(string, any)) {
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

			if strings.HasPrefix(text, "/dm ") {
				parts := strings.SplitN(text[4:], " ", 2)
				if len(parts) != 2 {
					fmt.Println("usage: /dm user text")
					continue
				}
				send(proto.InboundTypeDM, proto.DMData{To: parts[0], Text: parts[1]})
				continue
			}

			send(proto.InboundTypeMsg, proto.MsgData{Room: room, Text: text})
		}
	}
}
