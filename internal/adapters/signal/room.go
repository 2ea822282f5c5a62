package signal

import (
	"context"
	"encoding/json"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/dkeye/Meet/internal/protocol"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) handleJoin(ctx context.Context, sess core.MemberSession, env *protocol.Envelope) {
	if ctl.JoinLimiter != nil && !ctl.JoinLimiter.Allow(limitKey(sess)) {
		ctl.fail(sess, env.Ack, domain.ErrRateLimited)
		return
	}
	var p protocol.JoinRoom
	if err := json.Unmarshal(env.Data, &p); err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("bad join payload")
		ctl.reply(sess, env.Ack, protocol.AckData{Error: "bad_payload"})
		return
	}
	user, err := domain.NewUser(string(p.User.ID), p.User.Name, p.User.Email)
	if err != nil {
		ctl.fail(sess, env.Ack, err)
		return
	}
	if id := sess.Identity(); id != nil && id.ID != user.ID {
		ctl.fail(sess, env.Ack, domain.ErrIdentityMismatch)
		return
	}

	log.Info().Str("module", "signal").Str("sid", string(sess.ID())).Str("room", string(p.RoomCode)).Msg("join")
	room, err := ctl.Orch.Join(ctx, sess.ID(), p.RoomCode, user)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(sess.ID())).Str("room", string(p.RoomCode)).Msg("join rejected")
		ctl.fail(sess, env.Ack, err)
		return
	}
	ctl.reply(sess, env.Ack, protocol.AckData{OK: true, RoomID: room.ID, SocketID: sess.ID()})
}

func (ctl *SignalWSController) handleLeave(ctx context.Context, sess core.MemberSession, env *protocol.Envelope) {
	var p protocol.LeaveRoom
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &p); err != nil {
			ctl.reply(sess, env.Ack, protocol.AckData{Error: "bad_payload"})
			return
		}
	}
	log.Info().Str("module", "signal").Str("sid", string(sess.ID())).Str("room", string(p.RoomCode)).Msg("leave")
	ctl.Orch.Leave(ctx, sess.ID(), p.RoomCode)
	ctl.reply(sess, env.Ack, protocol.AckData{OK: true})
}

func (ctl *SignalWSController) handleMediaStatus(ctx context.Context, sess core.MemberSession, env *protocol.Envelope) {
	var p protocol.MediaStatus
	if err := json.Unmarshal(env.Data, &p); err != nil {
		ctl.reply(sess, env.Ack, protocol.AckData{Error: "bad_payload"})
		return
	}
	if err := ctl.Orch.UpdateMedia(ctx, sess.ID(), p); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(sess.ID())).Msg("media status")
		ctl.fail(sess, env.Ack, err)
		return
	}
	ctl.reply(sess, env.Ack, protocol.AckData{OK: true})
}

// limitKey prefers the browser token so reconnects share one budget.
func limitKey(sess core.MemberSession) string {
	if t := sess.ClientToken(); t != "" {
		return t
	}
	return string(sess.ID())
}
