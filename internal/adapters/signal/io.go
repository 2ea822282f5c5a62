package signal

import (
	"context"
	"errors"
	"time"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/dkeye/Meet/internal/protocol"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const cleanupTimeout = 5 * time.Second

func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn) {
	ticker := time.NewTicker(ctl.opts.PingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if !ok {
				log.Debug().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.opts.WriteWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(ctl.opts.WriteWait)); err != nil {
				log.Debug().Err(err).Str("module", "signal").Msg("writePump ping")
				return
			}
		}
	}
}

// readPump owns every membership mutation of its socket. When it returns the
// socket is treated as disconnected.
func (ctl *SignalWSController) readPump(ctx context.Context, cancel context.CancelFunc, sess core.MemberSession, c *WsSignalConn) {
	sid := sess.ID()
	defer func() {
		log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("readPump closing")
		c.Close()
		cancel()
		cleanupCtx, done := context.WithTimeout(context.Background(), cleanupTimeout)
		defer done()
		ctl.Orch.OnDisconnect(cleanupCtx, sid)
	}()

	c.conn.SetReadLimit(ctl.opts.ReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(ctl.opts.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(ctl.opts.PongWait))
	})

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("readPump ctx done")
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("readPump read error")
				}
				return
			}
			_ = c.conn.SetReadDeadline(time.Now().Add(ctl.opts.PongWait))
			ctl.handleSignal(ctx, sess, data)
		}
	}
}

func (ctl *SignalWSController) handleSignal(ctx context.Context, sess core.MemberSession, data []byte) {
	env, err := protocol.Decode(data)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(sess.ID())).Msg("bad json")
		ctl.reply(sess, 0, protocol.AckData{Error: "bad_payload"})
		return
	}

	switch env.Event {
	case protocol.EventJoinRoom:
		ctl.handleJoin(ctx, sess, env)
	case protocol.EventLeaveRoom:
		ctl.handleLeave(ctx, sess, env)
	case protocol.EventSendMessage:
		ctl.handleSendMessage(ctx, sess, env)
	case protocol.EventMediaStatus:
		ctl.handleMediaStatus(ctx, sess, env)
	case protocol.EventOffer, protocol.EventAnswer, protocol.EventICECandidate:
		ctl.handleRelay(sess, env)
	case protocol.EventPing:
		ctl.send(sess, protocol.EventPong, nil)
	default:
		log.Warn().Str("module", "signal").Str("event", env.Event).Msg("unknown signal")
		ctl.reply(sess, env.Ack, protocol.AckData{Error: "unknown event"})
	}
}

func (ctl *SignalWSController) send(sess core.MemberSession, event string, v any) {
	frame, err := protocol.Encode(event, v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("send marshal")
		return
	}
	if err := sess.Signal().TrySend(frame); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(sess.ID())).Msg("send")
	}
}

// reply answers a request. Without an ack id only failures are reported,
// as an error event.
func (ctl *SignalWSController) reply(sess core.MemberSession, ack int64, data protocol.AckData) {
	if ack == 0 {
		if data.Error != "" {
			ctl.send(sess, protocol.EventError, protocol.ErrorPayload{Error: data.Error})
		}
		return
	}
	frame, err := protocol.EncodeAck(ack, data)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ack marshal")
		return
	}
	if err := sess.Signal().TrySend(frame); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(sess.ID())).Msg("ack")
	}
}

func (ctl *SignalWSController) fail(sess core.MemberSession, ack int64, err error) {
	ctl.reply(sess, ack, protocol.AckData{Error: wireError(err)})
}

var clientErrors = []error{
	domain.ErrUsernameTooLong,
	domain.ErrUsernameEmpty,
	domain.ErrUserIDEmpty,
	domain.ErrUserIDTooLong,
	domain.ErrInvalidRoomID,
	domain.ErrMissingRoom,
	domain.ErrNotInRoom,
	domain.ErrInvalidSender,
	domain.ErrIdentityMismatch,
	domain.ErrEmptyMessage,
	domain.ErrMessageTooLong,
	domain.ErrRateLimited,
}

// wireError keeps internal failures out of client-visible text.
func wireError(err error) string {
	if errors.Is(err, domain.ErrRoomNotFound) {
		return "Room not found"
	}
	for _, known := range clientErrors {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return "Server error"
}
