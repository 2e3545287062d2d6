package core

import "errors"

// Error codes for domain errors.
const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeRoomNotFound     = "room_not_found"
	ErrCodeAccessDenied     = "access_denied"
	ErrCodeNotInRoom        = "not_in_room"
	ErrCodeRecipientOffline = "recipient_offline"
	ErrCodeServerError      = "server_error"
	ErrCodeRateLimited      = "rate_limited"
	ErrCodeSessionReplaced  = "session_replaced"
)

var (
	ErrRoomNotFound = errors.New("room not found")
	ErrAccessDenied = errors.New("access denied")
	ErrNotInRoom    = errors.New("not in room")
	ErrBadRequest   = errors.New("bad request")
)

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string
	Message string
}

func (e *CoreError) Error() string {
	return e.Message
}

func coreError(code, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg}
}
