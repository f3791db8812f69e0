package core

import "errors"

var (
	// ErrCannotResume means the session cannot be resumed and the client must
	// identify again.
	ErrCannotResume = errors.New("session cannot be resumed")
	// ErrSessionClosed is returned when delivering to a destroyed session.
	ErrSessionClosed = errors.New("session closed")
	// ErrInvalidStatus rejects presence statuses outside the allow-list.
	ErrInvalidStatus = errors.New("invalid presence status")
	// ErrNotMember is returned when a user asks for data of a guild they are not in.
	ErrNotMember = errors.New("not a guild member")
	// errSlowConsumer detaches sessions whose outbox outgrows the replay buffer.
	errSlowConsumer = errors.New("outbox overflow")
)
