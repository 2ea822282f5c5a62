package app

import "github.com/dkeye/Meet/internal/core"

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	MarkSlow
	KickMember
	DropFrame
)

func (a BackpressureAction) String() string {
	switch a {
	case MarkSlow:
		return "mark_slow"
	case KickMember:
		return "kick"
	case DropFrame:
		return "drop"
	default:
		return "none"
	}
}

// Policy decides what happens to a member whose send buffer is full.
// room is nil for private sends.
type Policy interface {
	OnBackPressure(room core.RoomGroup, member core.MemberSession) BackpressureAction
}

// SimplePolicy kicks. A dropped relay frame would break per-pair ordering,
// so a slow member is disconnected and goes through the implicit leave.
type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(core.RoomGroup, core.MemberSession) BackpressureAction {
	return KickMember
}
