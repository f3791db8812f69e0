package proto

import "fmt"

// CloseCode is a WebSocket close status with gateway meaning.
type CloseCode int

const (
	CloseNormal           CloseCode = 1000
	CloseGoingAway        CloseCode = 1001
	CloseUnknownError     CloseCode = 4000
	CloseUnknownOpcode    CloseCode = 4001
	CloseDecodeError      CloseCode = 4002
	CloseNotAuthenticated CloseCode = 4003
	CloseAuthFailed       CloseCode = 4004
	CloseAlreadyAuthed    CloseCode = 4005
	CloseSuperseded       CloseCode = 4006
	CloseRateLimited      CloseCode = 4008
	CloseSessionTimeout   CloseCode = 4009
	CloseInvalidVersion   CloseCode = 4012
)

var closeReasons = map[CloseCode]string{
	CloseNormal:           "closing",
	CloseGoingAway:        "server shutting down",
	CloseUnknownError:     "unknown error",
	CloseUnknownOpcode:    "unknown opcode",
	CloseDecodeError:      "decode error",
	CloseNotAuthenticated: "not authenticated",
	CloseAuthFailed:       "authentication failed",
	CloseAlreadyAuthed:    "already authenticated",
	CloseSuperseded:       "session superseded",
	CloseRateLimited:      "rate limited",
	CloseSessionTimeout:   "session timed out",
	CloseInvalidVersion:   "invalid api version",
}

// Reason returns the default human-readable reason for the code.
func (c CloseCode) Reason() string {
	if r, ok := closeReasons[c]; ok {
		return r
	}
	return "closing"
}

// CloseError asks the connection handler to close the transport with Code.
type CloseError struct {
	Code   CloseCode
	Reason string
}

func (e *CloseError) Error() string {
	return fmt.Sprintf("gateway close %d: %s", e.Code, e.Reason)
}

// NewCloseError builds a CloseError, defaulting the reason from the code.
func NewCloseError(code CloseCode, reason string) *CloseError {
	if reason == "" {
		reason = code.Reason()
	}
	return &CloseError{Code: code, Reason: reason}
}
