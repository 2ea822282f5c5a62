package directory

import (
	"context"
	"sort"
	"sync"

	"github.com/dkeye/Meet/internal/domain"
	"github.com/rs/zerolog/log"
)

// Memory is the single-instance Directory. Its state is never shared across
// instances and must not be assumed consistent if more are added.
type Memory struct {
	mu     sync.RWMutex
	rooms  map[domain.RoomCode]map[domain.SessionID]domain.Participant
	bySock map[domain.SessionID]domain.RoomCode
}

func NewMemory() *Memory {
	return &Memory{
		rooms:  make(map[domain.RoomCode]map[domain.SessionID]domain.Participant),
		bySock: make(map[domain.SessionID]domain.RoomCode),
	}
}

func (m *Memory) Backend() string { return BackendMemory }

func (m *Memory) Add(_ context.Context, room domain.RoomCode, p *domain.Participant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	members, ok := m.rooms[room]
	if !ok {
		members = make(map[domain.SessionID]domain.Participant)
		m.rooms[room] = members
	}
	members[p.SocketID] = *p
	m.bySock[p.SocketID] = room
	log.Debug().Str("module", "directory.memory").Str("room", string(room)).Str("sid", string(p.SocketID)).Msg("participant added")
	return nil
}

func (m *Memory) Remove(_ context.Context, room domain.RoomCode, sid domain.SessionID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.bySock[sid]; ok && cur == room {
		delete(m.bySock, sid)
	}
	members, ok := m.rooms[room]
	if !ok {
		return true, nil
	}
	delete(members, sid)
	if len(members) == 0 {
		delete(m.rooms, room)
		log.Debug().Str("module", "directory.memory").Str("room", string(room)).Msg("room drained")
		return true, nil
	}
	return false, nil
}

func (m *Memory) List(_ context.Context, room domain.RoomCode) ([]domain.Participant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	members := m.rooms[room]
	out := make([]domain.Participant, 0, len(members))
	for _, p := range members {
		out = append(out, p)
	}
	sortByJoin(out)
	return out, nil
}

func (m *Memory) UpdateMediaStatus(_ context.Context, room domain.RoomCode, sid domain.SessionID, st domain.MediaStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.rooms[room][sid]
	if !ok {
		return domain.ErrNotInRoom
	}
	p.MediaStatus = st
	m.rooms[room][sid] = p
	return nil
}

func (m *Memory) RoomOf(_ context.Context, sid domain.SessionID) (domain.RoomCode, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	room, ok := m.bySock[sid]
	return room, ok, nil
}

func (m *Memory) Close() error { return nil }

// sortByJoin keeps roster order stable for clients.
func sortByJoin(ps []domain.Participant) {
	sort.SliceStable(ps, func(i, j int) bool {
		if ps[i].JoinedAt.Equal(ps[j].JoinedAt) {
			return ps[i].SocketID < ps[j].SocketID
		}
		return ps[i].JoinedAt.Before(ps[j].JoinedAt)
	})
}
