package domain

import (
	"strings"
	"time"
)

const MaxMessageLen = 2000

// Message is an append-only chat entry.
type Message struct {
	ID         string    `json:"_id"`
	RoomID     RoomID    `json:"room"`
	SenderID   UserID    `json:"sender"`
	SenderName string    `json:"senderName"`
	Text       string    `json:"text"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Sender is the identity attached to an outgoing chat message.
type Sender struct {
	ID   UserID `json:"id"`
	Name string `json:"name"`
}

func (s *Sender) Validate() error {
	if s == nil || strings.TrimSpace(string(s.ID)) == "" || strings.TrimSpace(s.Name) == "" {
		return ErrInvalidSender
	}
	return nil
}

// ValidateText trims text and enforces the length bound.
func ValidateText(text string, maxLen int) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyMessage
	}
	if maxLen <= 0 {
		maxLen = MaxMessageLen
	}
	if len(text) > maxLen {
		return "", ErrMessageTooLong
	}
	return text, nil
}
