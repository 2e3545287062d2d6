package http

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/parleychat/parley-server/internal/core"
	"github.com/parleychat/parley-server/internal/proto"
)

func TestInboundToCommand(t *testing.T) {
	cases := []struct {
		name    string
		in      proto.Inbound
		want    core.Command
		errCode string
	}{
		{
			name: "join",
			in:   proto.Inbound{Type: proto.InboundTypeJoin, Data: json.RawMessage(`{"room":"general"}`)},
			want: core.Command{Kind: core.CommandJoinRoom, Room: "general"},
		},
		{
			name: "leave",
			in:   proto.Inbound{Type: proto.InboundTypeLeave, Data: json.RawMessage(`{"room":"general"}`)},
			want: core.Command{Kind: core.CommandLeaveRoom, Room: "general"},
		},
		{
			name: "msg",
			in:   proto.Inbound{Type: proto.InboundTypeMsg, Data: json.RawMessage(`{"room":"general","text":"hi"}`)},
			want: core.Command{Kind: core.CommandSendRoomMessage, Room: "general", Text: "hi"},
		},
		{
			name: "dm",
			in:   proto.Inbound{Type: proto.InboundTypeDM, Data: json.RawMessage(`{"to":"bob","text":"hi"}`)},
			want: core.Command{Kind: core.CommandSendDM, To: "bob", Text: "hi"},
		},
		{
			name: "dm_history",
			in:   proto.Inbound{Type: proto.InboundTypeDMHistory, Data: json.RawMessage(`{"peer":"bob"}`)},
			want: core.Command{Kind: core.CommandGetDMHistory, To: "bob"},
		},
		{
			name: "get_users",
			in:   proto.Inbound{Type: proto.InboundTypeGetUsers, Data: json.RawMessage(`{"room":"general"}`)},
			want: core.Command{Kind: core.CommandGetUsers, Room: "general"},
		},
		{
			name: "get_online_users",
			in:   proto.Inbound{Type: proto.InboundTypeGetOnlineUsers},
			want: core.Command{Kind: core.CommandGetOnlineUsers},
		},
		{
			name: "logout",
			in:   proto.Inbound{Type: proto.InboundTypeLogout},
			want: core.Command{Kind: core.CommandLogout},
		},
		{
			name:    "join bad room name",
			in:      proto.Inbound{Type: proto.InboundTypeJoin, Data: json.RawMessage(`{"room":"no spaces"}`)},
			errCode: core.ErrCodeBadRequest,
		},
		{
			name:    "join malformed payload",
			in:      proto.Inbound{Type: proto.InboundTypeJoin, Data: json.RawMessage(`{`)},
			errCode: core.ErrCodeBadRequest,
		},
		{
			name:    "dm bad recipient",
			in:      proto.Inbound{Type: proto.InboundTypeDM, Data: json.RawMessage(`{"to":"x","text":"hi"}`)},
			errCode: core.ErrCodeBadRequest,
		},
		{
			name:    "second hello",
			in:      proto.Inbound{Type: proto.InboundTypeHello, Data: json.RawMessage(`{"token":"t"}`)},
			errCode: core.ErrCodeBadRequest,
		},
		{
			name:    "unknown type",
			in:      proto.Inbound{Type: "teleport"},
			errCode: "invalid_message",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cmd, protoErr := inboundToCommand(tc.in)
			if tc.errCode != "" {
				if protoErr == nil || protoErr.Code != tc.errCode {
					t.Fatalf("expected error code %q, got cmd=%+v err=%+v", tc.errCode, cmd, protoErr)
				}
				return
			}
			if protoErr != nil {
				t.Fatalf("unexpected error: %+v", protoErr)
			}
			if cmd == nil || *cmd != tc.want {
				t.Fatalf("got %+v, want %+v", cmd, tc.want)
			}
		})
	}
}

func TestOutboundFromEvent(t *testing.T) {
	at := time.Unix(1700000000, 0)

	out := outboundFromEvent(&core.Event{
		Kind: core.EventRoomMessage,
		Room: "general",
		Message: core.Message{
			ID: 7, Room: "general", From: "alice", Text: "hi", CreatedAt: at,
		},
	})
	if out.Type != proto.OutboundTypeEvent || out.Event != proto.EventMessage {
		t.Fatalf("unexpected envelope: %+v", out)
	}
	data, ok := out.Data.(proto.EventMessageData)
	if !ok {
		t.Fatalf("unexpected data type %T", out.Data)
	}
	if data.ID != 7 || data.From != "alice" || data.User != "alice" || data.TS != at.Unix() {
		t.Fatalf("unexpected message data: %+v", data)
	}

	out = outboundFromEvent(&core.Event{
		Kind:  core.EventError,
		Error: &core.CoreError{Code: core.ErrCodeAccessDenied, Message: "user not allowed in room"},
	})
	if out.Type != proto.OutboundTypeError || out.Error == nil || out.Error.Code != core.ErrCodeAccessDenied {
		t.Fatalf("unexpected error envelope: %+v", out)
	}

	out = outboundFromEvent(&core.Event{
		Kind: core.EventRoomUserDisconnect,
		Room: "general",
		User: "alice",
		At:   at,
	})
	if out.Event != proto.EventRoomUserDisconnect {
		t.Fatalf("unexpected event name: %+v", out)
	}
	gone, ok := out.Data.(proto.EventUserDisconnectData)
	if !ok || gone.User != "alice" || gone.TS != at.Unix() {
		t.Fatalf("unexpected disconnect data: %+v", out.Data)
	}
}
