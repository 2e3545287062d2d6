package core

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/parleychat/parley-server/internal/store"
)

// DefaultHistoryLimit is the number of messages delivered on join and
// returned by history queries.
const DefaultHistoryLimit = 20

// Hub is the single-goroutine coordinator for all connection state:
// registry, room fan-out, direct messages, presence and disconnect
// cleanup. Every mutation happens on the Run loop, so handlers never
// race with each other.
type Hub struct {
	registry *Registry
	gate     *AccessGate
	msgs     store.MessageLog

	clients map[string]*Client // connID -> client
	rooms   map[string]*room   // room name -> fan-out set

	register   chan *Client
	unregister chan *Client
	commands   chan clientCommand

	historyLimit int
	log          zerolog.Logger
}

type clientCommand struct {
	client *Client
	cmd    *Command
}

// NewHub constructs a hub. dir backs the access gate, msgs is the
// durable message log. A nil logger disables logging.
func NewHub(dir store.Directory, msgs store.MessageLog, logger *zerolog.Logger) *Hub {
	lg := zerolog.Nop()
	if logger != nil {
		lg = *logger
	}
	return &Hub{
		registry:     NewRegistry(),
		gate:         NewAccessGate(dir),
		msgs:         msgs,
		clients:      make(map[string]*Client),
		rooms:        make(map[string]*room),
		register:     make(chan *Client),
		unregister:   make(chan *Client),
		commands:     make(chan clientCommand),
		historyLimit: DefaultHistoryLimit,
		log:          lg,
	}
}

// SetHistoryLimit overrides the history fetch size. Call before Run.
func (h *Hub) SetHistoryLimit(n int) {
	if n > 0 {
		h.historyLimit = n
	}
}

// RegisterClient hands an authenticated connection to the hub.
func (h *Hub) RegisterClient(c *Client) {
	h.register <- c
}

// UnregisterClient runs the disconnect-cleanup cascade for the
// connection. Safe to call more than once.
func (h *Hub) UnregisterClient(c *Client) {
	h.unregister <- c
}

// Run processes registrations and commands until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case c := <-h.register:
			h.handleRegister(ctx, c)
		case c := <-h.unregister:
			h.cleanup(c)
		case cc := <-h.commands:
			h.dispatch(ctx, cc.client, cc.cmd)
		case <-ctx.Done():
			return
		}
	}
}

// dispatch routes one command, converting a handler panic into a
// server_error event so one connection cannot take down the loop.
func (h *Hub) dispatch(ctx context.Context, c *Client, cmd *Command) {
	defer func() {
		if r := recover(); r != nil {
			h.log.Error().
				Str("client_id", c.ID).
				Str("user", c.Identity).
				Int("intent", int(cmd.Kind)).
				Msg(fmt.Sprintf("handler panic: %v", r))
			c.send(&Event{Kind: EventError, Error: coreError(ErrCodeServerError, "server error")})
		}
	}()

	switch cmd.Kind {
	case CommandJoinRoom:
		h.handleJoin(ctx, c, cmd.Room)
	case CommandLeaveRoom:
		h.handleLeave(c, cmd.Room)
	case CommandSendRoomMessage:
		h.handleRoomMessage(ctx, c, cmd.Room, cmd.Text)
	case CommandGetUsers:
		h.handleGetUsers(c, cmd.Room)
	case CommandSendDM:
		h.handleDM(ctx, c, cmd.To, cmd.Text)
	case CommandGetDMHistory:
		h.handleDMHistory(ctx, c, cmd.To)
	case CommandGetOnlineUsers:
		h.handleGetOnlineUsers(c)
	case CommandLogout:
		h.cleanup(c)
	}
}

func (h *Hub) handleRegister(ctx context.Context, c *Client) {
	// Re-login evicts the previous session for the same identity: its
	// cleanup cascade runs first, then it is told why and closed.
	if prevID := h.registry.LookupByIdentity(c.Identity); prevID != "" {
		if prev, ok := h.clients[prevID]; ok {
			prev.send(&Event{Kind: EventError, Error: coreError(ErrCodeSessionReplaced, "session replaced by a new login")})
			h.cleanup(prev)
			h.log.Info().
				Str("user", c.Identity).
				Str("old_client_id", prevID).
				Str("new_client_id", c.ID).
				Msg("evicted previous session on re-login")
		}
	}

	h.registry.Register(c.ID, c.Identity)
	h.clients[c.ID] = c

	go h.pumpCommands(ctx, c)

	h.broadcastAll(&Event{
		Kind:   EventUserStatus,
		User:   c.Identity,
		Status: "online",
		At:     time.Now(),
	})

	h.log.Info().Str("client_id", c.ID).Str("user", c.Identity).Msg("client registered")
}

// pumpCommands forwards the client's commands onto the hub loop. It
// stops when the client is unregistered or the hub shuts down.
func (h *Hub) pumpCommands(ctx context.Context, c *Client) {
	for {
		select {
		case cmd, ok := <-c.Commands:
			if !ok {
				return
			}
			select {
			case h.commands <- clientCommand{client: c, cmd: cmd}:
			case <-c.done:
				return
			case <-ctx.Done():
				return
			}
		case <-c.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

// cleanup is the single disconnect/logout path: roster update, room
// notice, DM peer notices, then the offline broadcast. Idempotent: the
// second call finds no record and does nothing.
func (h *Hub) cleanup(c *Client) {
	rec := h.registry.Unregister(c.ID)
	if rec == nil {
		return
	}
	delete(h.clients, c.ID)
	now := time.Now()

	if rec.CurrentRoom != "" {
		if rm, ok := h.rooms[rec.CurrentRoom]; ok {
			rm.remove(c)
			roster := h.registry.MembersOfRoom(rec.CurrentRoom)
			rm.broadcast(&Event{Kind: EventRoomUsers, Room: rec.CurrentRoom, Users: roster})
			rm.broadcast(&Event{Kind: EventRoomUserDisconnect, Room: rec.CurrentRoom, User: rec.Identity, At: now})
			if rm.empty() {
				delete(h.rooms, rec.CurrentRoom)
			}
		}
	}

	for peer := range rec.ActiveDMPeers {
		if peerClient := h.clientByIdentity(peer); peerClient != nil {
			peerClient.send(&Event{Kind: EventDMUserDisconnect, User: rec.Identity, At: now})
		}
	}

	h.broadcastAll(&Event{Kind: EventUserStatus, User: rec.Identity, Status: "offline", At: now})

	close(c.done)
	close(c.Events)

	h.log.Info().Str("client_id", c.ID).Str("user", rec.Identity).Msg("client unregistered")
}

func (h *Hub) handleJoin(ctx context.Context, c *Client, roomName string) {
	if !ValidRoomName(roomName) {
		c.send(&Event{Kind: EventError, Room: roomName, Error: coreError(ErrCodeBadRequest, "invalid room name format")})
		return
	}

	decision := h.gate.CheckRoomAccess(ctx, c.Identity, roomName)
	if decision != Granted {
		if decision == DeniedLookupFailed {
			h.log.Error().
				Str("client_id", c.ID).
				Str("user", c.Identity).
				Str("room", roomName).
				Msg("directory lookup failed during join")
		}
		c.send(&Event{Kind: EventError, Room: roomName, Error: coreError(decision.Code(), decision.Reason())})
		return
	}

	rec := h.registry.LookupByConnection(c.ID)
	if rec == nil {
		h.log.Error().Str("client_id", c.ID).Msg("join from unregistered connection")
		c.send(&Event{Kind: EventError, Error: coreError(ErrCodeServerError, "server error")})
		return
	}

	// Implicitly leave the previous room first.
	if rec.CurrentRoom != "" && rec.CurrentRoom != roomName {
		h.leaveRoom(c, rec.CurrentRoom)
	}

	h.registry.SetRoom(c.ID, roomName)
	rm, ok := h.rooms[roomName]
	if !ok {
		rm = newRoom(roomName)
		h.rooms[roomName] = rm
	}
	rm.add(c)

	c.send(&Event{Kind: EventJoinSuccess, Room: roomName})

	history, err := h.msgs.RoomHistory(ctx, roomName, h.historyLimit)
	if err != nil {
		h.log.Error().Err(err).
			Str("client_id", c.ID).
			Str("user", c.Identity).
			Str("room", roomName).
			Msg("fetch room history")
		c.send(&Event{Kind: EventError, Room: roomName, Error: coreError(ErrCodeServerError, "server error")})
	} else {
		c.send(&Event{Kind: EventRoomHistory, Room: roomName, Messages: storedToMessages(history)})
	}

	roster := h.registry.MembersOfRoom(roomName)
	rm.broadcast(&Event{Kind: EventRoomUsers, Room: roomName, Users: roster})

	h.log.Info().Str("user", c.Identity).Str("room", roomName).Msg("user joined room")
}

func (h *Hub) handleLeave(c *Client, roomName string) {
	rec := h.registry.LookupByConnection(c.ID)
	if rec == nil || rec.CurrentRoom != roomName {
		// Stale client state; nothing to leave.
		return
	}
	h.leaveRoom(c, roomName)
}

// leaveRoom unsets the connection's room, unsubscribes it, and tells
// the remaining members. Caller has verified membership.
func (h *Hub) leaveRoom(c *Client, roomName string) {
	h.registry.SetRoom(c.ID, "")
	rm, ok := h.rooms[roomName]
	if !ok {
		return
	}
	rm.remove(c)
	roster := h.registry.MembersOfRoom(roomName)
	rm.broadcast(&Event{Kind: EventRoomUsers, Room: roomName, Users: roster})
	if rm.empty() {
		delete(h.rooms, roomName)
	}

	h.log.Info().Str("user", c.Identity).Str("room", roomName).Msg("user left room")
}

func (h *Hub) handleRoomMessage(ctx context.Context, c *Client, roomName, text string) {
	if !ValidMessage(text) {
		c.send(&Event{Kind: EventError, Room: roomName, Error: coreError(ErrCodeBadRequest, "invalid message format or too long")})
		return
	}

	rec := h.registry.LookupByConnection(c.ID)
	if rec == nil || rec.CurrentRoom != roomName {
		c.send(&Event{Kind: EventError, Room: roomName, Error: coreError(ErrCodeNotInRoom, "you are not in this room")})
		return
	}

	sanitized := Sanitize(text)
	stored, err := h.msgs.Append(ctx, store.Envelope{
		From:      c.Identity,
		Room:      roomName,
		Text:      sanitized,
		Timestamp: time.Now(),
	})
	if err != nil {
		h.log.Error().Err(err).
			Str("client_id", c.ID).
			Str("user", c.Identity).
			Str("room", roomName).
			Msg("persist room message")
		c.send(&Event{Kind: EventError, Room: roomName, Error: coreError(ErrCodeServerError, "server error")})
		return
	}

	// Re-check membership after the persistence step rather than
	// trusting the earlier lookup; fail closed if it changed.
	rec = h.registry.LookupByConnection(c.ID)
	if rec == nil || rec.CurrentRoom != roomName {
		return
	}
	rm, ok := h.rooms[roomName]
	if !ok {
		return
	}

	rm.broadcast(&Event{
		Kind: EventRoomMessage,
		Room: roomName,
		Message: Message{
			ID:        stored.ID,
			Room:      roomName,
			From:      c.Identity,
			Text:      sanitized,
			CreatedAt: stored.CreatedAt,
		},
	})
}

func (h *Hub) handleGetUsers(c *Client, roomName string) {
	c.send(&Event{
		Kind:  EventUsersList,
		Room:  roomName,
		Users: h.registry.MembersOfRoom(roomName),
	})
}

func (h *Hub) handleDM(ctx context.Context, c *Client, to, text string) {
	if !ValidUsername(to) {
		c.send(&Event{Kind: EventError, Error: coreError(ErrCodeBadRequest, "invalid recipient username format")})
		return
	}
	if !ValidMessage(text) {
		c.send(&Event{Kind: EventError, Error: coreError(ErrCodeBadRequest, "invalid message format or too long")})
		return
	}

	h.registry.AddDMPeer(c.ID, to)
	recipient := h.clientByIdentity(to)
	if recipient != nil {
		h.registry.AddDMPeer(recipient.ID, c.Identity)
	}

	sanitized := Sanitize(text)

	// Persist regardless of recipient liveness so history always has
	// the record even when live delivery fails.
	stored, err := h.msgs.Append(ctx, store.Envelope{
		From:      c.Identity,
		To:        to,
		Text:      sanitized,
		Timestamp: time.Now(),
	})
	if err != nil {
		h.log.Error().Err(err).
			Str("client_id", c.ID).
			Str("user", c.Identity).
			Str("to", to).
			Msg("persist direct message")
		c.send(&Event{Kind: EventError, Error: coreError(ErrCodeServerError, "server error")})
		return
	}

	if recipient == nil {
		c.send(&Event{Kind: EventError, Error: coreError(ErrCodeRecipientOffline, "user "+to+" is not online")})
		return
	}

	ev := &Event{
		Kind: EventDM,
		Message: Message{
			ID:        stored.ID,
			From:      c.Identity,
			To:        to,
			Text:      sanitized,
			CreatedAt: stored.CreatedAt,
		},
	}
	recipient.send(ev)
	c.send(ev)
}

func (h *Hub) handleDMHistory(ctx context.Context, c *Client, peer string) {
	if !ValidUsername(peer) {
		c.send(&Event{Kind: EventError, Error: coreError(ErrCodeBadRequest, "invalid username format")})
		return
	}

	// Requesting history opens the conversation in both directions so
	// disconnect notices reach whoever is online.
	h.registry.AddDMPeer(c.ID, peer)
	if peerClient := h.clientByIdentity(peer); peerClient != nil {
		h.registry.AddDMPeer(peerClient.ID, c.Identity)
	}

	history, err := h.msgs.DMHistory(ctx, c.Identity, peer, h.historyLimit)
	if err != nil {
		h.log.Error().Err(err).
			Str("client_id", c.ID).
			Str("user", c.Identity).
			Str("peer", peer).
			Msg("fetch dm history")
		c.send(&Event{Kind: EventError, Error: coreError(ErrCodeServerError, "server error")})
		return
	}

	c.send(&Event{Kind: EventDMHistory, Peer: peer, Messages: storedToMessages(history)})
}

func (h *Hub) handleGetOnlineUsers(c *Client) {
	c.send(&Event{Kind: EventOnlineUsers, Users: h.registry.AllOnlineIdentities()})
}

func (h *Hub) clientByIdentity(identity string) *Client {
	connID := h.registry.LookupByIdentity(identity)
	if connID == "" {
		return nil
	}
	return h.clients[connID]
}

func (h *Hub) broadcastAll(ev *Event) {
	for _, c := range h.clients {
		c.send(ev)
	}
}

func storedToMessages(stored []store.StoredMessage) []Message {
	messages := make([]Message, 0, len(stored))
	for _, m := range stored {
		messages = append(messages, Message{
			ID:        m.ID,
			Room:      m.Room,
			From:      m.From,
			To:        m.To,
			Text:      m.Text,
			CreatedAt: m.CreatedAt,
		})
	}
	return messages
}
