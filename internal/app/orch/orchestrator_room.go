package orch

import (
	"context"
	"errors"
	"fmt"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/dkeye/Meet/internal/protocol"
	"github.com/rs/zerolog/log"
)

// Join registers sid in code. On error nothing was mutated for code.
func (o *Orchestrator) Join(ctx context.Context, sid domain.SessionID, code domain.RoomCode, user *domain.User) (*domain.Room, error) {
	sess, ok := o.Registry.GetSession(sid)
	if !ok {
		return nil, core.ErrConnectionClosed
	}
	room, err := o.RoomStore.FindByCode(ctx, code)
	if err != nil {
		if !errors.Is(err, domain.ErrRoomNotFound) {
			log.Error().Err(err).Str("module", "orch").Str("room", string(code)).Msg("room lookup")
		}
		return nil, err
	}

	history, err := o.Messages.Recent(ctx, room.ID, o.historyLimit())
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Str("room", string(code)).Msg("chat history, joining without it")
		history = []domain.Message{}
	}

	prev, inRoom := o.currentRoom(ctx, sid)
	if inRoom && prev != code {
		log.Info().Str("module", "orch").Str("sid", string(sid)).Str("from_room", string(prev)).Msg("leaving previous room")
		o.leaveRoom(ctx, sid, prev)
	}
	rejoin := inRoom && prev == code

	unlock := o.locks.lock(code)
	defer unlock()

	p := domain.NewParticipant(sid, user, room.IsHost(user.ID))
	if rejoin {
		// A repeated join refreshes the entry but keeps the member's place and toggles.
		for _, cur := range o.list(ctx, code) {
			if cur.SocketID == sid {
				p.JoinedAt = cur.JoinedAt
				p.MediaStatus = cur.MediaStatus
			}
		}
	}
	if err := o.Directory.Add(ctx, code, p); err != nil {
		return nil, fmt.Errorf("directory add: %w", err)
	}
	o.Rooms.Subscribe(code, sess)
	o.Registry.UpdateRoom(sid, code)
	log.Info().Str("module", "orch").Str("sid", string(sid)).Str("room", string(code)).Str("user", string(user.ID)).Bool("host", p.IsHost).Bool("rejoin", rejoin).Msg("joined")

	roster := o.roster(ctx, room)
	o.broadcast(code, "", protocol.EventParticipantsUpdate, roster)
	o.sendTo(sess, protocol.EventChatHistory, history)

	peers := make([]domain.Participant, 0, len(roster))
	for _, rp := range roster {
		if rp.SocketID != sid {
			peers = append(peers, rp)
		}
	}
	o.sendTo(sess, protocol.EventPeerList, peers)
	// Existing peers keep their session to a rejoiner.
	if !rejoin {
		o.broadcast(code, sid, protocol.EventPeerJoined, protocol.PeerInfo{SocketID: sid, Name: user.Name})
	}
	return room, nil
}

// Leave handles an explicit leave-room. Leaving while not in a room is a no-op.
func (o *Orchestrator) Leave(ctx context.Context, sid domain.SessionID, code domain.RoomCode) {
	current, ok := o.currentRoom(ctx, sid)
	if !ok {
		log.Debug().Str("module", "orch").Str("sid", string(sid)).Msg("leave without room")
		return
	}
	if code != "" && code != current {
		log.Warn().Str("module", "orch").Str("sid", string(sid)).Str("asked", string(code)).Str("room", string(current)).Msg("leave for another room, leaving current")
	}
	o.leaveRoom(ctx, sid, current)
}

// OnDisconnect is the implicit leave after transport loss. Safe to call
// after an explicit leave and more than once.
func (o *Orchestrator) OnDisconnect(ctx context.Context, sid domain.SessionID) {
	if code, ok := o.currentRoom(ctx, sid); ok {
		o.leaveRoom(ctx, sid, code)
	}
	o.Registry.Unbind(sid)
	log.Info().Str("module", "orch").Str("sid", string(sid)).Msg("disconnected")
}

func (o *Orchestrator) leaveRoom(ctx context.Context, sid domain.SessionID, code domain.RoomCode) {
	unlock := o.locks.lock(code)
	defer unlock()

	emptied := o.Rooms.Unsubscribe(code, sid)
	o.Registry.RemoveRoom(sid)
	dirEmpty, err := o.Directory.Remove(ctx, code, sid)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Str("sid", string(sid)).Str("room", string(code)).Msg("directory remove")
	}
	log.Info().Str("module", "orch").Str("sid", string(sid)).Str("room", string(code)).Bool("room_empty", dirEmpty).Msg("left")
	if emptied {
		return
	}

	var roster []domain.Participant
	if room, err := o.RoomStore.FindByCode(ctx, code); err == nil {
		roster = o.roster(ctx, room)
	} else {
		roster = o.list(ctx, code)
	}
	o.broadcast(code, sid, protocol.EventParticipantsUpdate, roster)
	o.broadcast(code, sid, protocol.EventPeerLeft, protocol.PeerInfo{SocketID: sid})
}

// currentRoom prefers the directory reverse pointer and falls back to the
// local subscription.
func (o *Orchestrator) currentRoom(ctx context.Context, sid domain.SessionID) (domain.RoomCode, bool) {
	code, ok, err := o.Directory.RoomOf(ctx, sid)
	if err != nil {
		log.Warn().Err(err).Str("module", "orch").Str("sid", string(sid)).Msg("directory roomOf")
	}
	if ok {
		return code, true
	}
	return o.Registry.RoomOf(sid)
}

// Roster lists code with host flags recomputed from the stored owner.
func (o *Orchestrator) Roster(ctx context.Context, code domain.RoomCode) ([]domain.Participant, error) {
	room, err := o.RoomStore.FindByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	return o.roster(ctx, room), nil
}

func (o *Orchestrator) roster(ctx context.Context, room *domain.Room) []domain.Participant {
	list := o.list(ctx, room.Code)
	for i := range list {
		list[i].IsHost = room.IsHost(list[i].UserID)
	}
	return list
}

func (o *Orchestrator) list(ctx context.Context, code domain.RoomCode) []domain.Participant {
	list, err := o.Directory.List(ctx, code)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Str("room", string(code)).Msg("directory list")
		return []domain.Participant{}
	}
	if list == nil {
		list = []domain.Participant{}
	}
	return list
}

// UpdateMedia stores the new toggles and broadcasts the delta.
func (o *Orchestrator) UpdateMedia(ctx context.Context, sid domain.SessionID, req protocol.MediaStatus) error {
	code := req.RoomCode
	if code == "" {
		current, ok := o.currentRoom(ctx, sid)
		if !ok {
			return domain.ErrNotInRoom
		}
		code = current
	}
	st := domain.MediaStatus{Audio: req.Audio, Video: req.Video}
	if err := o.Directory.UpdateMediaStatus(ctx, code, sid, st); err != nil {
		return err
	}
	o.broadcast(code, "", protocol.EventMediaStatusUpdate, protocol.MediaStatus{SocketID: sid, Audio: st.Audio, Video: st.Video})
	return nil
}
