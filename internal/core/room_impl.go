package core

import (
	"sync"

	"github.com/dkeye/Meet/internal/domain"
	"github.com/rs/zerolog/log"
)

// roomGroup is a threadsafe in-memory broadcast group.
// It never closes adapter-owned resources.
type roomGroup struct {
	code  domain.RoomCode
	mu    sync.RWMutex
	bySID map[domain.SessionID]MemberSession
	mesh  *MeshCoordinator
}

func NewRoomGroup(code domain.RoomCode) RoomGroup {
	return &roomGroup{
		code:  code,
		bySID: make(map[domain.SessionID]MemberSession),
		mesh:  NewMeshCoordinator(),
	}
}

func (r *roomGroup) Code() domain.RoomCode   { return r.code }
func (r *roomGroup) Mesh() *MeshCoordinator { return r.mesh }

func (r *roomGroup) MemberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bySID)
}

func (r *roomGroup) Has(sid domain.SessionID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.bySID[sid]
	return ok
}

func (r *roomGroup) Subscribe(ms MemberSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bySID[ms.ID()] = ms
	log.Debug().Str("module", "core.room").Str("room", string(r.code)).Str("sid", string(ms.ID())).Msg("subscribed")
}

func (r *roomGroup) Unsubscribe(sid domain.SessionID) bool {
	r.mu.Lock()
	delete(r.bySID, sid)
	empty := len(r.bySID) == 0
	r.mu.Unlock()

	r.mesh.Forget(sid)
	log.Debug().Str("module", "core.room").Str("room", string(r.code)).Str("sid", string(sid)).Msg("unsubscribed")
	return empty
}

func (r *roomGroup) Broadcast(exclude domain.SessionID, data Frame) PublishResult {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := PublishResult{}
	for sid, m := range r.bySID {
		if sid == exclude {
			continue
		}
		if err := m.Signal().TrySend(data); err != nil {
			res.Dropped = append(res.Dropped, m)
			continue
		}
		res.SendTo++
	}
	log.Debug().Str("module", "core.room").Str("room", string(r.code)).Str("exclude", string(exclude)).Int("sent_to", res.SendTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	return res
}

func (r *roomGroup) Members() []MemberSession {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]MemberSession, 0, len(r.bySID))
	for _, ms := range r.bySID {
		out = append(out, ms)
	}
	return out
}
