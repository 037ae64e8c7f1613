package errors

import "fmt"

var (
	ErrWorkerPanic  = fmt.Errorf("worker panic")
	ErrEmptyBody    = fmt.Errorf("message body is empty")
	ErrBodyTooLarge = fmt.Errorf("message body exceeds maximum length")
	ErrNotMember    = fmt.Errorf("sender is not a member of the room")
	ErrUnknownRoom  = fmt.Errorf("room does not exist")
	ErrBadPasscode  = fmt.Errorf("wrong room passcode")
	ErrUnknownConn  = fmt.Errorf("connection is not registered")
	ErrInvalidToken = fmt.Errorf("invalid or expired token")
)

// ReasonCode maps an error to the short machine-readable code sent back
// to the originating connection. Unknown errors map to "internal".
func ReasonCode(err error) string {
	switch err {
	case ErrEmptyBody:
		return "empty_body"
	case ErrBodyTooLarge:
		return "body_too_large"
	case ErrNotMember:
		return "not_a_member"
	case ErrUnknownRoom:
		return "unknown_room"
	case ErrBadPasscode:
		return "bad_passcode"
	case ErrUnknownConn:
		return "unknown_connection"
	case ErrInvalidToken:
		return "invalid_token"
	default:
		return "internal"
	}
}
