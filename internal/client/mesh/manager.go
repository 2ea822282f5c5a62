// Package mesh turns relayed signaling into one peer connection per remote
// participant, so every member of a room is connected to every other.
package mesh

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/dkeye/Meet/internal/protocol"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// DefaultDebounce gives the announced peer time to finish its own join
// before the first offer reaches it.
const DefaultDebounce = 300 * time.Millisecond

// Signaler sends a control-channel event to the hub.
type Signaler interface {
	Emit(event string, v any) error
}

type Options struct {
	Factory  core.MediaFactory
	Signal   Signaler
	Local    LocalMedia
	Debounce time.Duration
	// OnChange fires after the room view changed. Called without locks held.
	OnChange func()
}

type Manager struct {
	opts   Options
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	room     domain.RoomCode
	self     domain.SessionID
	sessions map[domain.SessionID]*PeerSession
	roster   []domain.Participant
	ended    bool
}

func NewManager(ctx context.Context, opts Options) *Manager {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	ctx, cancel := context.WithCancel(ctx)
	return &Manager{
		opts:     opts,
		ctx:      ctx,
		cancel:   cancel,
		sessions: make(map[domain.SessionID]*PeerSession),
	}
}

// Joined records the room and our own socket id from the join ack.
func (m *Manager) Joined(room domain.RoomCode, self domain.SessionID) {
	m.mu.Lock()
	m.room = room
	m.self = self
	m.ended = false
	m.mu.Unlock()
}

// HandlePeerList creates idle sessions for members that were already in the
// room. They announced nothing, so we wait for their offers.
func (m *Manager) HandlePeerList(peers []domain.Participant) {
	m.mu.Lock()
	if m.ended {
		m.mu.Unlock()
		return
	}
	var stale []core.MediaConnection
	for _, p := range peers {
		if p.SocketID == m.self {
			continue
		}
		if s, ok := m.sessions[p.SocketID]; ok && !s.state.Terminal() {
			continue
		}
		if _, old := m.newSessionLocked(p.SocketID, p.Name, false); old != nil {
			stale = append(stale, old)
		}
	}
	m.mu.Unlock()
	closeAll(stale)
	m.changed()
}

// HandlePeerJoined makes us the initiator towards the newcomer. The offer
// goes out after the debounce if the session is still current.
func (m *Manager) HandlePeerJoined(p protocol.PeerInfo) {
	m.mu.Lock()
	if m.ended || p.SocketID == m.self {
		m.mu.Unlock()
		return
	}
	sess, old := m.newSessionLocked(p.SocketID, p.Name, true)
	if sess != nil {
		sess.timer = time.AfterFunc(m.opts.Debounce, func() { m.sendOffer(sess) })
	}
	m.mu.Unlock()
	closeAll([]core.MediaConnection{old})
	m.changed()
}

func (m *Manager) HandlePeerLeft(p protocol.PeerInfo) {
	m.closeSession(p.SocketID, nil)
	m.mu.Lock()
	m.roster = withoutParticipant(m.roster, p.SocketID)
	m.mu.Unlock()
	m.changed()
}

func (m *Manager) HandleOffer(r protocol.Relay) {
	var offer webrtc.SessionDescription
	if err := json.Unmarshal(r.Offer, &offer); err != nil {
		log.Warn().Err(err).Str("module", "mesh").Str("peer", string(r.From)).Msg("bad offer")
		return
	}

	m.mu.Lock()
	if m.ended {
		m.mu.Unlock()
		return
	}
	var old core.MediaConnection
	sess, ok := m.sessions[r.From]
	glare := ok && sess.Initiator && sess.state == StateNegotiating
	if glare && keepsOffer(m.self, r.From) {
		m.mu.Unlock()
		log.Info().Str("module", "mesh").Str("peer", string(r.From)).Msg("glare, keeping our offer")
		return
	}
	if !ok || sess.state.Terminal() || glare {
		if glare {
			log.Info().Str("module", "mesh").Str("peer", string(r.From)).Msg("glare, yielding to remote offer")
		}
		sess, old = m.newSessionLocked(r.From, nameOf(sess), false)
	}
	if sess == nil {
		m.mu.Unlock()
		closeAll([]core.MediaConnection{old})
		return
	}
	if sess.timer != nil {
		sess.timer.Stop()
	}
	sess.Initiator = false
	sess.state = StateNegotiating
	conn := sess.conn
	m.mu.Unlock()
	closeAll([]core.MediaConnection{old})

	answer, err := conn.ApplyOfferAndCreateAnswer(offer)
	if err != nil {
		log.Error().Err(err).Str("module", "mesh").Str("peer", string(r.From)).Msg("apply offer")
		m.closeSession(r.From, sess)
		return
	}
	raw, err := json.Marshal(answer)
	if err != nil {
		log.Error().Err(err).Str("module", "mesh").Msg("marshal answer")
		return
	}
	if err := m.opts.Signal.Emit(protocol.EventAnswer, protocol.Relay{To: r.From, Answer: raw}); err != nil {
		log.Warn().Err(err).Str("module", "mesh").Str("peer", string(r.From)).Msg("send answer")
	}
	m.flushICE(sess)
	m.changed()
}

// HandleAnswer applies an answer to our pending offer. Without a session the
// answer is stale and ignored.
func (m *Manager) HandleAnswer(r protocol.Relay) {
	m.mu.Lock()
	sess, ok := m.sessions[r.From]
	if !ok || sess.state.Terminal() {
		m.mu.Unlock()
		log.Warn().Str("module", "mesh").Str("peer", string(r.From)).Msg("answer without session")
		return
	}
	conn := sess.conn
	m.mu.Unlock()

	var answer webrtc.SessionDescription
	if err := json.Unmarshal(r.Answer, &answer); err != nil {
		log.Warn().Err(err).Str("module", "mesh").Str("peer", string(r.From)).Msg("bad answer")
		return
	}
	if err := conn.ApplyAnswer(answer); err != nil {
		log.Error().Err(err).Str("module", "mesh").Str("peer", string(r.From)).Msg("apply answer")
		return
	}
	m.flushICE(sess)
}

// HandleCandidate buffers until the remote description is set. Candidates for
// unknown peers are dropped.
func (m *Manager) HandleCandidate(r protocol.Relay) {
	var cand webrtc.ICECandidateInit
	if err := json.Unmarshal(r.Candidate, &cand); err != nil {
		log.Warn().Err(err).Str("module", "mesh").Str("peer", string(r.From)).Msg("bad candidate")
		return
	}
	m.mu.Lock()
	sess, ok := m.sessions[r.From]
	if !ok || sess.state.Terminal() {
		m.mu.Unlock()
		log.Debug().Str("module", "mesh").Str("peer", string(r.From)).Msg("candidate without session, dropped")
		return
	}
	if !sess.conn.HasRemoteDescription() {
		sess.pendingICE = append(sess.pendingICE, cand)
		m.mu.Unlock()
		return
	}
	conn := sess.conn
	m.mu.Unlock()
	if err := conn.AddICECandidate(cand); err != nil {
		log.Warn().Err(err).Str("module", "mesh").Str("peer", string(r.From)).Msg("add candidate")
	}
}

func (m *Manager) HandleParticipants(list []domain.Participant) {
	m.mu.Lock()
	m.roster = append([]domain.Participant(nil), list...)
	for _, p := range list {
		if s, ok := m.sessions[p.SocketID]; ok && s.Name == "" {
			s.Name = p.Name
		}
	}
	m.mu.Unlock()
	m.changed()
}

func (m *Manager) HandleMediaStatus(st protocol.MediaStatus) {
	m.mu.Lock()
	for i := range m.roster {
		if m.roster[i].SocketID == st.SocketID {
			m.roster[i].MediaStatus = domain.MediaStatus{Audio: st.Audio, Video: st.Video}
		}
	}
	m.mu.Unlock()
	m.changed()
}

// SetMedia toggles local capture and tells the room.
func (m *Manager) SetMedia(audio, video bool) error {
	if m.opts.Local != nil {
		m.opts.Local.SetEnabled(audio, video)
	}
	m.mu.Lock()
	room := m.room
	m.mu.Unlock()
	return m.opts.Signal.Emit(protocol.EventMediaStatus, protocol.MediaStatus{RoomCode: room, Audio: audio, Video: video})
}

// EndCall closes every session, releases local media and leaves the room.
func (m *Manager) EndCall() {
	m.mu.Lock()
	if m.ended {
		m.mu.Unlock()
		return
	}
	m.ended = true
	room := m.room
	conns := make([]core.MediaConnection, 0, len(m.sessions))
	for id, s := range m.sessions {
		conns = append(conns, s.shutdown())
		delete(m.sessions, id)
	}
	m.roster = nil
	m.mu.Unlock()

	closeAll(conns)
	if m.opts.Local != nil {
		m.opts.Local.Stop()
	}
	if err := m.opts.Signal.Emit(protocol.EventLeaveRoom, protocol.LeaveRoom{RoomCode: room}); err != nil {
		log.Warn().Err(err).Str("module", "mesh").Msg("leave-room")
	}
	m.cancel()
	log.Info().Str("module", "mesh").Str("room", string(room)).Int("sessions", len(conns)).Msg("call ended")
	m.changed()
}

// newSessionLocked replaces any session for id. The returned old connection
// must be closed by the caller after unlocking.
func (m *Manager) newSessionLocked(id domain.SessionID, name string, initiator bool) (*PeerSession, core.MediaConnection) {
	var old core.MediaConnection
	if prev, ok := m.sessions[id]; ok {
		old = prev.shutdown()
		delete(m.sessions, id)
	}

	conn, err := m.opts.Factory(string(id))
	if err != nil {
		log.Error().Err(err).Str("module", "mesh").Str("peer", string(id)).Msg("new peer connection")
		return nil, old
	}
	ctx, cancel := context.WithCancel(m.ctx)
	sess := &PeerSession{
		ID:        id,
		Name:      name,
		Initiator: initiator,
		conn:      conn,
		cancel:    cancel,
		state:     StateIdle,
		streams:   make(map[string]*RemoteStream),
		createdAt: time.Now(),
	}
	if err := conn.Start(ctx); err != nil {
		log.Error().Err(err).Str("module", "mesh").Str("peer", string(id)).Msg("start peer connection")
		cancel()
		conn.Close()
		return nil, old
	}
	m.attachLocal(sess)

	conn.OnICECandidate(func(ci webrtc.ICECandidateInit) {
		raw, err := json.Marshal(ci)
		if err != nil {
			return
		}
		if err := m.opts.Signal.Emit(protocol.EventICECandidate, protocol.Relay{To: id, Candidate: raw}); err != nil {
			log.Debug().Err(err).Str("module", "mesh").Str("peer", string(id)).Msg("send candidate")
		}
	})
	conn.OnTrack(func(ctx context.Context, track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		m.onTrack(ctx, sess, track)
	})
	conn.OnStateChange(func(st webrtc.PeerConnectionState) { m.onState(sess, st) })
	conn.OnClosed(func() { m.forget(sess) })

	m.sessions[id] = sess
	log.Info().Str("module", "mesh").Str("peer", string(id)).Bool("initiator", initiator).Msg("peer session created")
	return sess, old
}

// attachLocal adds local tracks; kinds we cannot send are received only.
func (m *Manager) attachLocal(sess *PeerSession) {
	have := map[webrtc.RTPCodecType]bool{}
	if m.opts.Local != nil {
		for _, tr := range m.opts.Local.Tracks() {
			if _, err := sess.conn.AddLocalTrack(tr); err != nil {
				log.Warn().Err(err).Str("module", "mesh").Str("peer", string(sess.ID)).Str("track", tr.ID()).Msg("add local track")
				continue
			}
			have[tr.Kind()] = true
		}
	}
	for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeAudio, webrtc.RTPCodecTypeVideo} {
		if have[kind] {
			continue
		}
		if err := sess.conn.AddRecvOnly(kind); err != nil {
			log.Warn().Err(err).Str("module", "mesh").Str("peer", string(sess.ID)).Str("kind", kind.String()).Msg("add recvonly")
		}
	}
}

func (m *Manager) sendOffer(sess *PeerSession) {
	m.mu.Lock()
	if m.sessions[sess.ID] != sess || sess.state != StateIdle {
		m.mu.Unlock()
		return
	}
	sess.state = StateNegotiating
	conn := sess.conn
	m.mu.Unlock()

	offer, err := conn.CreateAndSetOffer()
	if err != nil {
		log.Error().Err(err).Str("module", "mesh").Str("peer", string(sess.ID)).Msg("create offer")
		m.closeSession(sess.ID, sess)
		return
	}
	raw, err := json.Marshal(offer)
	if err != nil {
		return
	}
	if err := m.opts.Signal.Emit(protocol.EventOffer, protocol.Relay{To: sess.ID, Offer: raw}); err != nil {
		log.Warn().Err(err).Str("module", "mesh").Str("peer", string(sess.ID)).Msg("send offer")
		return
	}
	log.Debug().Str("module", "mesh").Str("peer", string(sess.ID)).Msg("offer sent")
	m.changed()
}

func (m *Manager) flushICE(sess *PeerSession) {
	m.mu.Lock()
	if m.sessions[sess.ID] != sess {
		m.mu.Unlock()
		return
	}
	pending := sess.pendingICE
	sess.pendingICE = nil
	conn := sess.conn
	m.mu.Unlock()
	for _, c := range pending {
		if err := conn.AddICECandidate(c); err != nil {
			log.Warn().Err(err).Str("module", "mesh").Str("peer", string(sess.ID)).Msg("add buffered candidate")
		}
	}
}

func (m *Manager) onState(sess *PeerSession, st webrtc.PeerConnectionState) {
	switch st {
	case webrtc.PeerConnectionStateConnected:
		m.mu.Lock()
		if m.sessions[sess.ID] == sess {
			sess.state = StateConnected
		}
		m.mu.Unlock()
		m.changed()
	case webrtc.PeerConnectionStateFailed:
		m.mu.Lock()
		if m.sessions[sess.ID] == sess {
			sess.state = StateFailed
		}
		m.mu.Unlock()
		m.closeSession(sess.ID, sess)
	case webrtc.PeerConnectionStateClosed:
		m.closeSession(sess.ID, sess)
	}
}

func (m *Manager) onTrack(ctx context.Context, sess *PeerSession, track *webrtc.TrackRemote) {
	m.mu.Lock()
	if m.sessions[sess.ID] != sess {
		m.mu.Unlock()
		return
	}
	stream, ok := sess.streams[track.StreamID()]
	if !ok {
		stream = newRemoteStream(track.StreamID())
		sess.streams[track.StreamID()] = stream
	}
	stream.addTrack(track.ID(), track.Kind().String(), track.Codec().MimeType)
	m.mu.Unlock()
	m.changed()

	go stream.consume(ctx, string(sess.ID), track)
}

// closeSession removes id when it still maps to want (any session if want is nil).
func (m *Manager) closeSession(id domain.SessionID, want *PeerSession) {
	m.mu.Lock()
	sess, ok := m.sessions[id]
	if !ok || (want != nil && sess != want) {
		m.mu.Unlock()
		return
	}
	delete(m.sessions, id)
	conn := sess.shutdown()
	m.mu.Unlock()

	closeAll([]core.MediaConnection{conn})
	log.Info().Str("module", "mesh").Str("peer", string(id)).Str("state", sess.state.String()).Msg("peer session closed")
	m.changed()
}

// forget runs when a connection closed underneath us.
func (m *Manager) forget(sess *PeerSession) {
	m.mu.Lock()
	if m.sessions[sess.ID] == sess {
		delete(m.sessions, sess.ID)
		sess.shutdown()
	}
	m.mu.Unlock()
}

func (m *Manager) changed() {
	if m.opts.OnChange != nil {
		m.opts.OnChange()
	}
}

func closeAll(conns []core.MediaConnection) {
	for _, c := range conns {
		if c != nil && !c.IsClosed() {
			c.Close()
		}
	}
}

// keepsOffer decides glare: when both sides offered, the lower socket id
// keeps its offer and the other side answers it.
func keepsOffer(self, remote domain.SessionID) bool {
	return self < remote
}

func nameOf(s *PeerSession) string {
	if s == nil {
		return ""
	}
	return s.Name
}

func withoutParticipant(list []domain.Participant, id domain.SessionID) []domain.Participant {
	out := list[:0]
	for _, p := range list {
		if p.SocketID != id {
			out = append(out, p)
		}
	}
	return out
}
