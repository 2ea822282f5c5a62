package domain

import "time"

// SessionID identifies one control-channel connection ("socketId" on the wire).
type SessionID string

type MediaStatus struct {
	Audio bool `json:"audio"`
	Video bool `json:"video"`
}

// Participant is one connection's membership record within a room.
// No transport or lifecycle logic here.
type Participant struct {
	SocketID    SessionID   `json:"socketId"`
	UserID      UserID      `json:"userId"`
	Name        string      `json:"name"`
	Email       string      `json:"email,omitempty"`
	IsHost      bool        `json:"isHost"`
	JoinedAt    time.Time   `json:"joinedAt"`
	MediaStatus MediaStatus `json:"mediaStatus"`
}

// NewParticipant avoids raw literals in adapters and keeps construction obvious.
func NewParticipant(sid SessionID, user *User, isHost bool) *Participant {
	return &Participant{
		SocketID:    sid,
		UserID:      user.ID,
		Name:        user.Name,
		Email:       user.Email,
		IsHost:      isHost,
		JoinedAt:    time.Now().UTC(),
		MediaStatus: MediaStatus{Audio: true, Video: true},
	}
}
