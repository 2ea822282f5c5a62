package core

import (
	"context"

	"github.com/dkeye/Meet/internal/domain"
)

// RoomStore is the narrow view of persisted rooms the hub needs.
type RoomStore interface {
	Create(ctx context.Context, room *domain.Room) error
	// FindByCode and FindByID return domain.ErrRoomNotFound when missing.
	FindByCode(ctx context.Context, code domain.RoomCode) (*domain.Room, error)
	FindByID(ctx context.Context, id domain.RoomID) (*domain.Room, error)
}

// MessageStore persists chat. Messages are append-only.
type MessageStore interface {
	// Append assigns ID and CreatedAt.
	Append(ctx context.Context, msg *domain.Message) error
	// Recent returns the newest limit messages ordered oldest first.
	Recent(ctx context.Context, room domain.RoomID, limit int) ([]domain.Message, error)
	History(ctx context.Context, room domain.RoomID) ([]domain.Message, error)
}
