package core

import (
	"context"
	"errors"

	"github.com/parleychat/parley-server/internal/store"
)

// AccessDecision is the outcome of a room access check.
type AccessDecision int

const (
	// Granted means the identity may join the room.
	Granted AccessDecision = iota
	// DeniedRoomNotFound means the room does not exist.
	DeniedRoomNotFound
	// DeniedNotAllowed means the identity is not on the allow-list.
	DeniedNotAllowed
	// DeniedLookupFailed means the directory was unavailable. A failed
	// permission check never grants access.
	DeniedLookupFailed
)

// Reason returns a human-readable denial message, empty for Granted.
func (d AccessDecision) Reason() string {
	switch d {
	case DeniedRoomNotFound:
		return "room does not exist"
	case DeniedNotAllowed:
		return "user not allowed in room"
	case DeniedLookupFailed:
		return "permission check failed"
	default:
		return ""
	}
}

// Code maps a denial to its error code, empty for Granted.
func (d AccessDecision) Code() string {
	switch d {
	case DeniedRoomNotFound:
		return ErrCodeRoomNotFound
	case DeniedNotAllowed:
		return ErrCodeAccessDenied
	case DeniedLookupFailed:
		return ErrCodeServerError
	default:
		return ""
	}
}

// AccessGate validates room access against the external directory.
// Pure validation; never mutates state.
type AccessGate struct {
	dir store.Directory
}

// NewAccessGate creates a gate backed by the given directory.
func NewAccessGate(dir store.Directory) *AccessGate {
	return &AccessGate{dir: dir}
}

// CheckRoomAccess reports whether identity may join roomName.
func (g *AccessGate) CheckRoomAccess(ctx context.Context, identity, roomName string) AccessDecision {
	room, err := g.dir.FindRoom(ctx, roomName)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return DeniedRoomNotFound
		}
		return DeniedLookupFailed
	}

	for _, allowed := range room.AllowedUsers {
		if allowed == identity {
			return Granted
		}
	}
	return DeniedNotAllowed
}
