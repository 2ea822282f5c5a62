package signal

import (
	"context"
	"encoding/json"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/dkeye/Meet/internal/protocol"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) handleSendMessage(ctx context.Context, sess core.MemberSession, env *protocol.Envelope) {
	if ctl.ChatLimiter != nil && !ctl.ChatLimiter.Allow(limitKey(sess)) {
		ctl.fail(sess, env.Ack, domain.ErrRateLimited)
		return
	}
	var p protocol.SendMessage
	if err := json.Unmarshal(env.Data, &p); err != nil {
		ctl.reply(sess, env.Ack, protocol.AckData{Error: "bad_payload"})
		return
	}
	msg, err := ctl.Orch.SendChat(ctx, sess.ID(), p)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(sess.ID())).Msg("send-message rejected")
		ctl.fail(sess, env.Ack, err)
		return
	}
	ctl.reply(sess, env.Ack, protocol.AckData{OK: true, Message: msg})
}
