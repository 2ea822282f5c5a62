// Package orch runs the room membership protocol, the chat relay and the
// signaling relay on top of the directory and the local broadcast groups.
package orch

import (
	"github.com/dkeye/Meet/internal/app"
	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/dkeye/Meet/internal/protocol"
	"github.com/rs/zerolog/log"
)

const (
	DefaultHistoryLimit = 100
)

type Orchestrator struct {
	Registry  *app.Registry
	Rooms     core.RoomManager
	Directory core.Directory
	RoomStore core.RoomStore
	Messages  core.MessageStore
	Policy    app.Policy

	HistoryLimit  int
	MaxMessageLen int

	locks roomLocks
}

// broadcast fans frame out to the local group of code. exclude may be empty.
func (o *Orchestrator) broadcast(code domain.RoomCode, exclude domain.SessionID, event string, v any) {
	room, ok := o.Rooms.Get(code)
	if !ok {
		return
	}
	frame, err := protocol.Encode(event, v)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Str("event", event).Msg("encode broadcast")
		return
	}
	res := room.Broadcast(exclude, frame)
	for _, slow := range res.Dropped {
		o.onBackpressure(room, slow)
	}
}

// sendTo delivers one frame privately.
func (o *Orchestrator) sendTo(ms core.MemberSession, event string, v any) {
	frame, err := protocol.Encode(event, v)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Str("event", event).Msg("encode private frame")
		return
	}
	if err := ms.Signal().TrySend(frame); err != nil {
		o.onBackpressure(nil, ms)
	}
}

func (o *Orchestrator) onBackpressure(room core.RoomGroup, slow core.MemberSession) {
	if o.Policy == nil {
		return
	}
	action := o.Policy.OnBackPressure(room, slow)
	log.Warn().Str("module", "orch").Str("sid", string(slow.ID())).Str("action", action.String()).Msg("send buffer full")
	switch action {
	case app.KickMember:
		o.Kick(slow.ID())
	case app.MarkSlow, app.DropFrame, app.NoAction:
	}
}

// Kick closes the control channel of sid. The read pump then runs the
// disconnect path, so membership cleanup stays on the member's own goroutine.
func (o *Orchestrator) Kick(sid domain.SessionID) {
	sess, ok := o.Registry.GetSession(sid)
	if !ok {
		return
	}
	sess.Signal().Close()
	o.Registry.Cancel(sid)
}

func (o *Orchestrator) historyLimit() int {
	if o.HistoryLimit > 0 {
		return o.HistoryLimit
	}
	return DefaultHistoryLimit
}
