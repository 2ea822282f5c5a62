// Package domain contains entity without logic, just meta-data
package domain

import (
	"strings"
)

const (
	MaxUserIDLen   = 64
	MaxUsernameLen = 64
)

type UserID string

// User is the identity a client presents on join. It is trusted: the auth
// layer validated it before any control event is processed.
type User struct {
	ID    UserID `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

// NewUser is a tiny helper to avoid ad-hoc struct literals in adapters.
func NewUser(id, name, email string) (*User, error) {
	u := &User{ID: UserID(strings.TrimSpace(id)), Email: email}
	if len(u.ID) == 0 {
		return nil, ErrUserIDEmpty
	}
	if len(u.ID) > MaxUserIDLen {
		return nil, ErrUserIDTooLong
	}
	if err := u.SetName(name); err != nil {
		return nil, err
	}
	return u, nil
}

func (u *User) SetName(name string) error {
	name = strings.TrimSpace(name)
	if len(name) == 0 {
		return ErrUsernameEmpty
	}
	if len(name) > MaxUsernameLen {
		return ErrUsernameTooLong
	}
	u.Name = name
	return nil
}
