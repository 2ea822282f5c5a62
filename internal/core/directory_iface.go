package core

import (
	"context"

	"github.com/dkeye/Meet/internal/domain"
)

// Directory is the authoritative room -> participants mapping.
// Implementations must be interchangeable: the backend is picked once at startup.
type Directory interface {
	// Add registers p in room. Repeating it for the same socket id overwrites.
	Add(ctx context.Context, room domain.RoomCode, p *domain.Participant) error
	// Remove drops sid from room and reports whether the room is now empty.
	Remove(ctx context.Context, room domain.RoomCode, sid domain.SessionID) (bool, error)
	List(ctx context.Context, room domain.RoomCode) ([]domain.Participant, error)
	// UpdateMediaStatus returns domain.ErrNotInRoom when sid is not in room.
	UpdateMediaStatus(ctx context.Context, room domain.RoomCode, sid domain.SessionID, st domain.MediaStatus) error
	RoomOf(ctx context.Context, sid domain.SessionID) (domain.RoomCode, bool, error)
	Backend() string
	Close() error
}
