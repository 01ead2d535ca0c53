package core

import "errors"

// Error codes sent to clients in error frames.
const (
	ErrCodeAuthRejected   = "auth_rejected"
	ErrCodeMalformedFrame = "malformed_frame"
	ErrCodeUnknownMessage = "unknown_message"
	ErrCodeNotMember      = "not_member"
	ErrCodeBadRequest     = "bad_request"
	ErrCodeInternal       = "internal"
)

var (
	// ErrDuplicateSession is returned by Registry.Add when an active session
	// for the same (user, room) already exists.
	ErrDuplicateSession = errors.New("duplicate session")
	// ErrUnknownMessage is returned by MarkRead when the referenced message
	// does not exist in the room.
	ErrUnknownMessage = errors.New("unknown message")
)

// CoreError wraps a code and human-readable message. The transport layer
// turns it into an error frame for the client.
type CoreError struct {
	Code    string
	Message string
}

// NewError builds a CoreError with the given code.
func NewError(code, message string) *CoreError {
	return &CoreError{Code: code, Message: message}
}

func (e *CoreError) Error() string {
	return e.Message
}
