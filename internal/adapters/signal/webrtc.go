package signal

import (
	"encoding/json"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/protocol"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) handleRelay(sess core.MemberSession, env *protocol.Envelope) {
	var p protocol.Relay
	if err := json.Unmarshal(env.Data, &p); err != nil || p.To == "" {
		log.Warn().Err(err).Str("module", "signal").Str("event", env.Event).Msg("bad relay payload")
		ctl.reply(sess, env.Ack, protocol.AckData{Error: "bad_payload"})
		return
	}
	ctl.Orch.Relay(sess.ID(), env.Event, p)
	ctl.reply(sess, env.Ack, protocol.AckData{OK: true})
}
