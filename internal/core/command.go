package core

// CommandKind describes what the client wants to do.
type CommandKind int

const (
	// CommandJoinRoom subscribes the client to a room.
	CommandJoinRoom CommandKind = iota
	// CommandLeaveRoom unsubscribes the client from a room.
	CommandLeaveRoom
	// CommandSendRoomMessage delivers a chat message to room participants.
	CommandSendRoomMessage
	// CommandGetUsers asks for the roster of a room.
	CommandGetUsers
	// CommandSendDM delivers a direct message to one user.
	CommandSendDM
	// CommandGetDMHistory fetches the conversation with one peer.
	CommandGetDMHistory
	// CommandGetOnlineUsers asks for every online identity.
	CommandGetOnlineUsers
	// CommandLogout requests the disconnect-cleanup cascade.
	CommandLogout
)

// Command represents an action requested by a client.
type Command struct {
	Kind CommandKind
	Room string
	To   string // DM recipient or history peer
	Text string
}
