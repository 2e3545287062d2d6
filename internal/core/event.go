package core

import "time"

// EventKind is a notification the core emits to clients.
type EventKind int

const (
	// EventJoinSuccess confirms a join to the joining client only.
	EventJoinSuccess EventKind = iota
	// EventRoomHistory delivers message history to a client upon joining a room.
	EventRoomHistory
	// EventRoomUsers carries the current roster of a room.
	EventRoomUsers
	// EventRoomMessage notifies clients about a chat message in a room.
	EventRoomMessage
	// EventDM delivers a direct message to recipient and sender.
	EventDM
	// EventDMHistory replies with the conversation between two users.
	EventDMHistory
	// EventUsersList replies with a room roster to the caller only.
	EventUsersList
	// EventOnlineUsers replies with every online identity.
	EventOnlineUsers
	// EventUserStatus announces an identity going online or offline.
	EventUserStatus
	// EventRoomUserDisconnect tells room members a user dropped.
	EventRoomUserDisconnect
	// EventDMUserDisconnect tells DM peers a user dropped.
	EventDMUserDisconnect
	// EventError notifies clients about a domain error.
	EventError
)

// Event is sent to clients to describe what happened in the system.
type Event struct {
	Kind     EventKind
	Room     string
	User     string
	Users    []string // rosters and online lists
	Peer     string   // DM history peer
	Status   string   // "online" or "offline" for EventUserStatus
	At       time.Time
	Message  Message
	Messages []Message // history payloads
	Error    *CoreError
}
