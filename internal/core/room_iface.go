package core

import (
	"github.com/dkeye/Meet/internal/domain"
)

// PublishResult reports delivery stats/backpressure to orchestrator.
type PublishResult struct {
	SendTo  int
	Dropped []MemberSession
}

// RoomGroup is the per-instance broadcast group of a room plus its
// auxiliary mesh state. It never touches transport resources beyond TrySend.
type RoomGroup interface {
	Code() domain.RoomCode
	MemberCount() int
	Members() []MemberSession
	Has(sid domain.SessionID) bool

	Subscribe(ms MemberSession)
	// Unsubscribe reports whether the group is now empty.
	Unsubscribe(sid domain.SessionID) bool
	Broadcast(exclude domain.SessionID, data Frame) PublishResult

	Mesh() *MeshCoordinator
}

type RoomInfo struct {
	Code        domain.RoomCode `json:"code"`
	MemberCount int             `json:"memberCount"`
	Links       int             `json:"links"`
}

// RoomManager owns the local broadcast groups. Subscribe and Unsubscribe are
// atomic with group creation and removal so a join never lands in a group that
// is being dropped.
type RoomManager interface {
	Subscribe(code domain.RoomCode, ms MemberSession) RoomGroup
	// Unsubscribe drops sid and removes the group once it is empty.
	Unsubscribe(code domain.RoomCode, sid domain.SessionID) (emptied bool)
	Get(code domain.RoomCode) (RoomGroup, bool)
	List() []RoomInfo
	// StopRoom drops the group regardless of members.
	StopRoom(code domain.RoomCode)
}
