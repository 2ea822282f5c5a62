package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

const (
	RoomCodeLen    = 8
	MaxRoomCodeLen = 36
	MaxTitleLen    = 120
)

type (
	RoomCode string
	RoomID   string
)

// Room is the persisted meeting record. Only the title may change after creation.
type Room struct {
	ID        RoomID    `json:"id"`
	Code      RoomCode  `json:"code"`
	Title     string    `json:"title"`
	OwnerID   UserID    `json:"host"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewRoom builds a room with a fresh identifier and short shareable code.
func NewRoom(title string, owner UserID) (*Room, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, ErrRoomTitleEmpty
	}
	if len(title) > MaxTitleLen {
		title = title[:MaxTitleLen]
	}
	code, err := NewRoomCode()
	if err != nil {
		return nil, err
	}
	return &Room{
		ID:        NewRoomID(),
		Code:      code,
		Title:     title,
		OwnerID:   owner,
		CreatedAt: time.Now().UTC(),
	}, nil
}

func NewRoomCode() (RoomCode, error) {
	code, err := gonanoid.New(RoomCodeLen)
	if err != nil {
		return "", err
	}
	return RoomCode(code), nil
}

func NewRoomID() RoomID { return RoomID(uuid.NewString()) }

// ParseRoomID rejects anything that is not a well-formed room identifier.
func ParseRoomID(raw string) (RoomID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", ErrInvalidRoomID
	}
	return RoomID(id.String()), nil
}

// IsHost reports whether uid owns the room.
func (r *Room) IsHost(uid UserID) bool {
	return uid != "" && uid == r.OwnerID
}
