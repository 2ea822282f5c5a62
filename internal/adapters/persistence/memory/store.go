// Package memory keeps rooms and messages in process. Used for tests and
// the database.driver=memory setting.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dkeye/Meet/internal/domain"
	"github.com/google/uuid"
)

type RoomStore struct {
	mu     sync.RWMutex
	byCode map[domain.RoomCode]*domain.Room
	byID   map[domain.RoomID]*domain.Room
}

func NewRoomStore() *RoomStore {
	return &RoomStore{
		byCode: make(map[domain.RoomCode]*domain.Room),
		byID:   make(map[domain.RoomID]*domain.Room),
	}
}

func (s *RoomStore) Create(_ context.Context, room *domain.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if room.CreatedAt.IsZero() {
		room.CreatedAt = time.Now().UTC()
	}
	cp := *room
	s.byCode[room.Code] = &cp
	s.byID[room.ID] = &cp
	return nil
}

func (s *RoomStore) FindByCode(_ context.Context, code domain.RoomCode) (*domain.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.byCode[code]
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *RoomStore) FindByID(_ context.Context, id domain.RoomID) (*domain.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.byID[id]
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	cp := *r
	return &cp, nil
}

type MessageStore struct {
	mu       sync.RWMutex
	messages map[domain.RoomID][]domain.Message
}

func NewMessageStore() *MessageStore {
	return &MessageStore{messages: make(map[domain.RoomID][]domain.Message)}
}

func (s *MessageStore) Append(_ context.Context, msg *domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg.ID = uuid.NewString()
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	list := append(s.messages[msg.RoomID], *msg)
	sort.SliceStable(list, func(i, j int) bool { return list[i].CreatedAt.Before(list[j].CreatedAt) })
	s.messages[msg.RoomID] = list
	return nil
}

func (s *MessageStore) Recent(_ context.Context, room domain.RoomID, limit int) ([]domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.messages[room]
	if limit > 0 && len(list) > limit {
		list = list[len(list)-limit:]
	}
	out := make([]domain.Message, len(list))
	copy(out, list)
	return out, nil
}

func (s *MessageStore) History(ctx context.Context, room domain.RoomID) ([]domain.Message, error) {
	return s.Recent(ctx, room, 0)
}
