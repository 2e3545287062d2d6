package proto

import "encoding/json"

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const (
	ProtocolVersion = 1

	InboundTypeHello          = "hello"
	InboundTypeJoin           = "join"
	InboundTypeLeave          = "leave"
	InboundTypeMsg            = "msg"
	InboundTypeDM             = "dm"
	InboundTypeDMHistory      = "dm_history"
	InboundTypeGetUsers       = "get_users"
	InboundTypeGetOnlineUsers = "get_online_users"
	InboundTypeLogout         = "logout"

	OutboundTypeEvent = "event"
	OutboundTypeError = "error"
)

// HelloData is the first frame a client must send; the token is a JWT
// obtained from the REST login/register endpoints.
type HelloData struct {
	Token    string `json:"token"`
	Protocol int    `json:"protocol,omitempty"`
}

// RoomData addresses a single room (join, leave, get_users).
type RoomData struct {
	Room string `json:"room"`
}

// MsgData is a room chat message from the client.
type MsgData struct {
	Room string `json:"room"`
	Text string `json:"text"`
}

// DMData is a direct message from the client.
type DMData struct {
	To   string `json:"to"`
	Text string `json:"text"`
}

// DMHistoryData requests the conversation with one peer.
type DMHistoryData struct {
	Peer string `json:"peer"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Type  string `json:"type"`
	Event string `json:"event,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// Outbound event names.
const (
	EventJoinSuccess        = "join_success"
	EventHistory            = "history"
	EventRoomUsers          = "room_users"
	EventMessage            = "message"
	EventDM                 = "dm"
	EventDMHistory          = "dm_history"
	EventUsersList          = "users_list"
	EventOnlineUsersList    = "online_users_list"
	EventUserStatus         = "user_status"
	EventRoomUserDisconnect = "room_user_disconnect"
	EventDMUserDisconnect   = "dm_user_disconnect"
)

// EventJoinSuccessData confirms a join to the joining client.
type EventJoinSuccessData struct {
	Room string `json:"room"`
}

// EventMessageData is one chat message as delivered to clients.
type EventMessageData struct {
	ID   int64  `json:"id,omitempty"`
	Room string `json:"room,omitempty"`
	From string `json:"from,omitempty"`
	To   string `json:"to,omitempty"`
	User string `json:"user,omitempty"`
	Text string `json:"text"`
	TS   int64  `json:"ts"`
}

// EventHistoryData carries room history to the joining client.
type EventHistoryData struct {
	Room     string             `json:"room"`
	Messages []EventMessageData `json:"messages"`
}

// EventDMHistoryData carries a DM conversation to the requester.
type EventDMHistoryData struct {
	Peer     string             `json:"peer"`
	Messages []EventMessageData `json:"messages"`
}

// EventRoomUsersData is a room roster broadcast.
type EventRoomUsersData struct {
	Room  string   `json:"room"`
	Users []string `json:"users"`
}

// EventOnlineUsersData lists every online identity.
type EventOnlineUsersData struct {
	Users []string `json:"users"`
}

// EventUserStatusData announces presence changes.
type EventUserStatusData struct {
	User   string `json:"user"`
	Status string `json:"status"`
}

// EventUserDisconnectData notifies room members or DM peers of a drop.
type EventUserDisconnectData struct {
	User string `json:"user"`
	TS   int64  `json:"ts"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}
