package orch

import (
	"github.com/dkeye/Meet/internal/domain"
	"github.com/dkeye/Meet/internal/protocol"
	"github.com/rs/zerolog/log"
)

// Relay forwards one negotiation step from sid to req.To. Unknown targets
// are dropped: a leave racing in-flight signaling is expected.
func (o *Orchestrator) Relay(sid domain.SessionID, event string, req protocol.Relay) {
	target, ok := o.Registry.GetSession(req.To)
	if !ok || req.To == sid {
		log.Debug().Str("module", "orch").Str("sid", string(sid)).Str("to", string(req.To)).Str("event", event).Msg("relay target gone")
		return
	}

	out := protocol.Relay{From: sid}
	switch event {
	case protocol.EventOffer:
		out.Offer = req.Offer
		if code, ok := o.Registry.RoomOf(sid); ok {
			if room, ok := o.Rooms.Get(code); ok && room.Has(req.To) {
				room.Mesh().RecordOffer(sid, req.To)
			}
		}
	case protocol.EventAnswer:
		out.Answer = req.Answer
	case protocol.EventICECandidate:
		out.Candidate = req.Candidate
	default:
		log.Warn().Str("module", "orch").Str("event", event).Msg("not a relay event")
		return
	}
	o.sendTo(target, event, out)
}
