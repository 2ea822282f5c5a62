package core

import (
	"sync"

	"github.com/dkeye/Meet/internal/domain"
)

type meshLink struct {
	from, to domain.SessionID
}

// MeshCoordinator records which directed pairs of a room have exchanged an
// offer through the relay. It is dropped together with the room group.
type MeshCoordinator struct {
	mu    sync.Mutex
	links map[meshLink]struct{}
}

func NewMeshCoordinator() *MeshCoordinator {
	return &MeshCoordinator{links: make(map[meshLink]struct{})}
}

func (m *MeshCoordinator) RecordOffer(from, to domain.SessionID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.links[meshLink{from: from, to: to}] = struct{}{}
}

// Forget drops every link touching sid.
func (m *MeshCoordinator) Forget(sid domain.SessionID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for l := range m.links {
		if l.from == sid || l.to == sid {
			delete(m.links, l)
		}
	}
}

// Links counts undirected pairs with at least one offer.
func (m *MeshCoordinator) Links() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[meshLink]struct{}, len(m.links))
	for l := range m.links {
		a, b := l.from, l.to
		if b < a {
			a, b = b, a
		}
		seen[meshLink{from: a, to: b}] = struct{}{}
	}
	return len(seen)
}
