package orch

import (
	"context"
	"fmt"
	"strings"

	"github.com/dkeye/Meet/internal/domain"
	"github.com/dkeye/Meet/internal/protocol"
	"github.com/rs/zerolog/log"
)

// SendChat validates, persists and broadcasts one chat message.
// roomId is resolved from roomCode when absent.
func (o *Orchestrator) SendChat(ctx context.Context, sid domain.SessionID, req protocol.SendMessage) (*domain.Message, error) {
	if err := req.Sender.Validate(); err != nil {
		return nil, err
	}
	if sess, ok := o.Registry.GetSession(sid); ok {
		if id := sess.Identity(); id != nil && id.ID != req.Sender.ID {
			return nil, domain.ErrIdentityMismatch
		}
	}
	text, err := domain.ValidateText(req.Text, o.MaxMessageLen)
	if err != nil {
		return nil, err
	}

	room, err := o.resolveRoom(ctx, req.RoomCode, req.RoomID)
	if err != nil {
		return nil, err
	}

	msg := &domain.Message{
		RoomID:     room.ID,
		SenderID:   req.Sender.ID,
		SenderName: strings.TrimSpace(req.Sender.Name),
		Text:       text,
	}
	if err := o.Messages.Append(ctx, msg); err != nil {
		return nil, fmt.Errorf("could not save message: %w", err)
	}
	log.Debug().Str("module", "orch").Str("sid", string(sid)).Str("room", string(room.Code)).Str("message", msg.ID).Msg("chat message")

	o.broadcast(room.Code, "", protocol.EventNewMessage, msg)
	return msg, nil
}

func (o *Orchestrator) resolveRoom(ctx context.Context, code domain.RoomCode, rawID string) (*domain.Room, error) {
	if strings.TrimSpace(rawID) == "" {
		if code == "" {
			return nil, domain.ErrMissingRoom
		}
		return o.RoomStore.FindByCode(ctx, code)
	}
	id, err := domain.ParseRoomID(rawID)
	if err != nil {
		return nil, err
	}
	return o.RoomStore.FindByID(ctx, id)
}
