package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by lookups when the entity does not exist.
var ErrNotFound = errors.New("not found")

// User represents a registered account.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// Room is a named broadcast group with a persistent allow-list.
type Room struct {
	ID           int64
	Name         string
	OwnerID      int64
	AllowedUsers []string
	CreatedAt    time.Time
}

// Envelope describes a message to be appended to the log.
// Exactly one of Room or To is set: Room for room messages, To for DMs.
type Envelope struct {
	From      string
	To        string
	Room      string
	Text      string
	Timestamp time.Time
}

// StoredMessage is a persisted chat message.
type StoredMessage struct {
	ID        int64
	From      string
	To        string
	Room      string
	Text      string
	CreatedAt time.Time
}

// UserStore handles account persistence.
type UserStore interface {
	// CreateUser creates a new user with a pre-hashed password.
	CreateUser(ctx context.Context, username, passwordHash string) (*User, error)

	// GetUserByUsername retrieves a user by username.
	// Returns ErrNotFound if no such user exists.
	GetUserByUsername(ctx context.Context, username string) (*User, error)
}

// Directory answers room-existence and access-control questions.
// The routing core only reads from it; mutations happen through the
// admin surface (REST handlers), never through the hub.
type Directory interface {
	// FindRoom retrieves a room with its allow-list.
	// Returns ErrNotFound if the room does not exist.
	FindRoom(ctx context.Context, name string) (*Room, error)

	// FindUser reports whether a user with the given username exists.
	FindUser(ctx context.Context, username string) (bool, error)

	// ListRoomNames returns the names of all rooms, sorted.
	ListRoomNames(ctx context.Context) ([]string, error)

	// CreateRoom creates a room owned by ownerID; the owner is added
	// to the allow-list automatically.
	CreateRoom(ctx context.Context, name string, ownerID int64) (*Room, error)

	// AllowUser adds username to the room's allow-list. Idempotent.
	AllowUser(ctx context.Context, roomName, username string) error

	// DisallowUser removes username from the room's allow-list.
	DisallowUser(ctx context.Context, roomName, username string) error
}

// MessageLog is the durable append/query interface for chat messages.
type MessageLog interface {
	// Append persists one message and returns the stored row.
	Append(ctx context.Context, env Envelope) (*StoredMessage, error)

	// RoomHistory returns the most recent limit messages in a room,
	// oldest-first.
	RoomHistory(ctx context.Context, roomName string, limit int) ([]StoredMessage, error)

	// DMHistory returns the most recent limit direct messages exchanged
	// between userA and userB in either direction, oldest-first.
	DMHistory(ctx context.Context, userA, userB string, limit int) ([]StoredMessage, error)
}

// Store aggregates all persistence interfaces.
type Store interface {
	UserStore
	Directory
	MessageLog

	// Close releases underlying resources.
	Close() error
}
