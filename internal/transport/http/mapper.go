package http

import (
	"encoding/json"

	"github.com/parleychat/parley-server/internal/core"
	"github.com/parleychat/parley-server/internal/proto"
)

// decodeData unmarshals an inbound payload; a missing payload decodes
// to the zero value so format checks below produce the error.
func decodeData(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dst)
}

// inboundToCommand maps a wire frame to a core command, rejecting
// malformed payloads before they reach the hub.
func inboundToCommand(inbound proto.Inbound) (*core.Command, *proto.Error) {
	switch inbound.Type {
	case proto.InboundTypeJoin:
		var join proto.RoomData
		if err := decodeData(inbound.Data, &join); err != nil {
			return nil, badRequest("malformed join payload")
		}
		if !core.ValidRoomName(join.Room) {
			return nil, badRequest("invalid room name format")
		}
		return &core.Command{Kind: core.CommandJoinRoom, Room: join.Room}, nil

	case proto.InboundTypeLeave:
		var leave proto.RoomData
		if err := decodeData(inbound.Data, &leave); err != nil {
			return nil, badRequest("malformed leave payload")
		}
		if !core.ValidRoomName(leave.Room) {
			return nil, badRequest("invalid room name format")
		}
		return &core.Command{Kind: core.CommandLeaveRoom, Room: leave.Room}, nil

	case proto.InboundTypeMsg:
		var msg proto.MsgData
		if err := decodeData(inbound.Data, &msg); err != nil {
			return nil, badRequest("malformed msg payload")
		}
		if !core.ValidRoomName(msg.Room) {
			return nil, badRequest("invalid room name format")
		}
		return &core.Command{Kind: core.CommandSendRoomMessage, Room: msg.Room, Text: msg.Text}, nil

	case proto.InboundTypeDM:
		var dm proto.DMData
		if err := decodeData(inbound.Data, &dm); err != nil {
			return nil, badRequest("malformed dm payload")
		}
		if !core.ValidUsername(dm.To) {
			return nil, badRequest("invalid recipient username format")
		}
		return &core.Command{Kind: core.CommandSendDM, To: dm.To, Text: dm.Text}, nil

	case proto.InboundTypeDMHistory:
		var hist proto.DMHistoryData
		if err := decodeData(inbound.Data, &hist); err != nil {
			return nil, badRequest("malformed dm_history payload")
		}
		if !core.ValidUsername(hist.Peer) {
			return nil, badRequest("invalid username format")
		}
		return &core.Command{Kind: core.CommandGetDMHistory, To: hist.Peer}, nil

	case proto.InboundTypeGetUsers:
		var users proto.RoomData
		if err := decodeData(inbound.Data, &users); err != nil {
			return nil, badRequest("malformed get_users payload")
		}
		if !core.ValidRoomName(users.Room) {
			return nil, badRequest("invalid room name format")
		}
		return &core.Command{Kind: core.CommandGetUsers, Room: users.Room}, nil

	case proto.InboundTypeGetOnlineUsers:
		return &core.Command{Kind: core.CommandGetOnlineUsers}, nil

	case proto.InboundTypeLogout:
		return &core.Command{Kind: core.CommandLogout}, nil

	case proto.InboundTypeHello:
		return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "already authenticated"}

	default:
		return nil, &proto.Error{Code: "invalid_message", Msg: "unknown message type"}
	}
}

func badRequest(msg string) *proto.Error {
	return &proto.Error{Code: core.ErrCodeBadRequest, Msg: msg}
}

func messageData(m core.Message) proto.EventMessageData {
	return proto.EventMessageData{
		ID:   m.ID,
		Room: m.Room,
		From: m.From,
		To:   m.To,
		User: m.From,
		Text: m.Text,
		TS:   m.CreatedAt.Unix(),
	}
}

func messagesData(msgs []core.Message) []proto.EventMessageData {
	out := make([]proto.EventMessageData, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, messageData(m))
	}
	return out
}

// outboundFromEvent maps a core event to its wire representation.
func outboundFromEvent(event *core.Event) proto.Outbound {
	switch event.Kind {
	case core.EventJoinSuccess:
		return eventOutbound(proto.EventJoinSuccess, proto.EventJoinSuccessData{Room: event.Room})

	case core.EventRoomHistory:
		return eventOutbound(proto.EventHistory, proto.EventHistoryData{
			Room:     event.Room,
			Messages: messagesData(event.Messages),
		})

	case core.EventRoomUsers:
		return eventOutbound(proto.EventRoomUsers, proto.EventRoomUsersData{
			Room:  event.Room,
			Users: event.Users,
		})

	case core.EventRoomMessage:
		return eventOutbound(proto.EventMessage, messageData(event.Message))

	case core.EventDM:
		return eventOutbound(proto.EventDM, messageData(event.Message))

	case core.EventDMHistory:
		return eventOutbound(proto.EventDMHistory, proto.EventDMHistoryData{
			Peer:     event.Peer,
			Messages: messagesData(event.Messages),
		})

	case core.EventUsersList:
		return eventOutbound(proto.EventUsersList, proto.EventRoomUsersData{
			Room:  event.Room,
			Users: event.Users,
		})

	case core.EventOnlineUsers:
		return eventOutbound(proto.EventOnlineUsersList, proto.EventOnlineUsersData{Users: event.Users})

	case core.EventUserStatus:
		return eventOutbound(proto.EventUserStatus, proto.EventUserStatusData{
			User:   event.User,
			Status: event.Status,
		})

	case core.EventRoomUserDisconnect:
		return eventOutbound(proto.EventRoomUserDisconnect, proto.EventUserDisconnectData{
			User: event.User,
			TS:   event.At.Unix(),
		})

	case core.EventDMUserDisconnect:
		return eventOutbound(proto.EventDMUserDisconnect, proto.EventUserDisconnectData{
			User: event.User,
			TS:   event.At.Unix(),
		})

	case core.EventError:
		if event.Error == nil {
			return proto.Outbound{Type: proto.OutboundTypeError, Error: &proto.Error{Code: "unknown", Msg: "unknown error"}}
		}
		return proto.Outbound{
			Type:  proto.OutboundTypeError,
			Error: &proto.Error{Code: event.Error.Code, Msg: event.Error.Message},
		}

	default:
		return proto.Outbound{Type: proto.OutboundTypeEvent}
	}
}

func eventOutbound(name string, data any) proto.Outbound {
	return proto.Outbound{
		Type:  proto.OutboundTypeEvent,
		Event: name,
		Data:  data,
	}
}
