package domain

import "errors"

var (
	ErrUsernameTooLong = errors.New("username too long")
	ErrUsernameEmpty   = errors.New("username empty")
	ErrUserIDEmpty     = errors.New("user id empty")
	ErrUserIDTooLong   = errors.New("user id too long")

	ErrRoomNotFound     = errors.New("room not found")
	ErrRoomTitleEmpty   = errors.New("enter title")
	ErrInvalidRoomID    = errors.New("invalid roomId format")
	ErrMissingRoom      = errors.New("missing roomCode and roomId")
	ErrNotInRoom        = errors.New("not in room")
	ErrInvalidSender    = errors.New("invalid sender")
	ErrIdentityMismatch = errors.New("identity mismatch")
	ErrEmptyMessage     = errors.New("empty message")
	ErrMessageTooLong   = errors.New("message too long")
	ErrRateLimited      = errors.New("too many requests")
)
