package app

import (
	"sort"
	"sync"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/rs/zerolog/log"
)

type RoomManagerImpl struct {
	mu    sync.Mutex
	rooms map[domain.RoomCode]core.RoomGroup
}

func NewRoomManager() core.RoomManager {
	return &RoomManagerImpl{rooms: make(map[domain.RoomCode]core.RoomGroup)}
}

func (f *RoomManagerImpl) Subscribe(code domain.RoomCode, ms core.MemberSession) core.RoomGroup {
	f.mu.Lock()
	defer f.mu.Unlock()
	room, ok := f.rooms[code]
	if !ok {
		room = core.NewRoomGroup(code)
		f.rooms[code] = room
		log.Debug().Str("module", "app.rooms").Str("room", string(code)).Msg("group created")
	}
	room.Subscribe(ms)
	return room
}

func (f *RoomManagerImpl) Unsubscribe(code domain.RoomCode, sid domain.SessionID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	room, ok := f.rooms[code]
	if !ok {
		return true
	}
	if !room.Unsubscribe(sid) {
		return false
	}
	delete(f.rooms, code)
	log.Debug().Str("module", "app.rooms").Str("room", string(code)).Msg("group dropped")
	return true
}

func (f *RoomManagerImpl) Get(code domain.RoomCode) (core.RoomGroup, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	room, ok := f.rooms[code]
	return room, ok
}

func (f *RoomManagerImpl) List() []core.RoomInfo {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]core.RoomInfo, 0, len(f.rooms))
	for code, r := range f.rooms {
		out = append(out, core.RoomInfo{Code: code, MemberCount: r.MemberCount(), Links: r.Mesh().Links()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

func (f *RoomManagerImpl) StopRoom(code domain.RoomCode) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rooms, code)
}
