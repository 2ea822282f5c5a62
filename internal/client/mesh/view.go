package mesh

import (
	"sort"

	"github.com/dkeye/Meet/internal/domain"
)

type StreamView struct {
	ID     string       `json:"id"`
	Tracks []TrackStats `json:"tracks"`
}

// PeerView is one row of the participant list with its media attached.
type PeerView struct {
	domain.Participant
	Self    bool         `json:"self"`
	State   string       `json:"state,omitempty"`
	Streams []StreamView `json:"streams,omitempty"`
}

type RoomView struct {
	Room  domain.RoomCode `json:"room"`
	Peers []PeerView      `json:"peers"`
}

// View merges the last roster with the live sessions. Sessions for peers the
// roster does not know yet are listed too.
func (m *Manager) View() RoomView {
	m.mu.Lock()
	defer m.mu.Unlock()

	view := RoomView{Room: m.room}
	seen := make(map[domain.SessionID]bool, len(m.roster))
	for _, p := range m.roster {
		seen[p.SocketID] = true
		view.Peers = append(view.Peers, m.peerViewLocked(p))
	}
	for id, s := range m.sessions {
		if seen[id] {
			continue
		}
		view.Peers = append(view.Peers, m.peerViewLocked(domain.Participant{SocketID: id, Name: s.Name, JoinedAt: s.createdAt}))
	}
	sort.SliceStable(view.Peers, func(i, j int) bool {
		return view.Peers[i].JoinedAt.Before(view.Peers[j].JoinedAt)
	})
	return view
}

func (m *Manager) peerViewLocked(p domain.Participant) PeerView {
	pv := PeerView{Participant: p, Self: p.SocketID == m.self && m.self != ""}
	s, ok := m.sessions[p.SocketID]
	if !ok {
		return pv
	}
	pv.State = s.state.String()
	for _, st := range s.streams {
		pv.Streams = append(pv.Streams, StreamView{ID: st.ID, Tracks: st.Stats()})
	}
	sort.Slice(pv.Streams, func(i, j int) bool { return pv.Streams[i].ID < pv.Streams[j].ID })
	return pv
}

// SessionState reports the state of the session for id.
func (m *Manager) SessionState(id domain.SessionID) (State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return StateClosed, false
	}
	return s.state, true
}

// Sessions counts live peer sessions.
func (m *Manager) Sessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
