// Package call ties the signaling client to the mesh manager and renders the
// room for a terminal user.
package call

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/dkeye/Meet/internal/client/mesh"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/dkeye/Meet/internal/protocol"
	"github.com/rs/zerolog/log"
)

var ErrNotJoined = errors.New("not in a room")

// Transport is the part of the signaling client a call needs.
type Transport interface {
	Emit(event string, v any) error
	Request(ctx context.Context, event string, v any) (protocol.AckData, error)
	Incoming() <-chan *protocol.Envelope
}

type Call struct {
	tr   Transport
	mgr  *mesh.Manager
	user domain.User
	out  io.Writer

	mu     sync.Mutex
	room   domain.RoomCode
	roomID domain.RoomID
	self   domain.SessionID
	audio  bool
	video  bool
}

func New(tr Transport, mgr *mesh.Manager, user domain.User, out io.Writer) *Call {
	return &Call{tr: tr, mgr: mgr, user: user, out: out, audio: true, video: true}
}

// Join asks the hub to admit us. Run must already be draining Incoming, since
// the roster and history arrive before the ack.
func (c *Call) Join(ctx context.Context, room domain.RoomCode) error {
	req := protocol.JoinRoom{RoomCode: room}
	req.User.ID = c.user.ID
	req.User.Name = c.user.Name
	req.User.Email = c.user.Email

	ack, err := c.tr.Request(ctx, protocol.EventJoinRoom, req)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.room = room
	c.roomID = ack.RoomID
	c.self = ack.SocketID
	c.mu.Unlock()
	c.mgr.Joined(room, ack.SocketID)
	log.Info().Str("module", "call").Str("room", string(room)).Str("socket_id", string(ack.SocketID)).Msg("joined")
	return nil
}

// Run dispatches server events until the channel closes or ctx ends.
func (c *Call) Run(ctx context.Context) error {
	in := c.tr.Incoming()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case env, ok := <-in:
			if !ok {
				return nil
			}
			c.Dispatch(env)
		}
	}
}

func (c *Call) Dispatch(env *protocol.Envelope) {
	switch env.Event {
	case protocol.EventPeerList:
		var peers []domain.Participant
		if decode(env, &peers) {
			c.mgr.HandlePeerList(peers)
		}
	case protocol.EventPeerJoined:
		var p protocol.PeerInfo
		if decode(env, &p) {
			c.mgr.HandlePeerJoined(p)
			c.printf("* %s joined\n", display(p))
		}
	case protocol.EventPeerLeft:
		var p protocol.PeerInfo
		if decode(env, &p) {
			c.mgr.HandlePeerLeft(p)
			c.printf("* %s left\n", display(p))
		}
	case protocol.EventParticipantsUpdate:
		var list []domain.Participant
		if decode(env, &list) {
			c.mgr.HandleParticipants(list)
		}
	case protocol.EventOffer:
		var r protocol.Relay
		if decode(env, &r) {
			c.mgr.HandleOffer(r)
		}
	case protocol.EventAnswer:
		var r protocol.Relay
		if decode(env, &r) {
			c.mgr.HandleAnswer(r)
		}
	case protocol.EventICECandidate:
		var r protocol.Relay
		if decode(env, &r) {
			c.mgr.HandleCandidate(r)
		}
	case protocol.EventMediaStatusUpdate:
		var st protocol.MediaStatus
		if decode(env, &st) {
			c.mgr.HandleMediaStatus(st)
		}
	case protocol.EventChatHistory:
		var msgs []domain.Message
		if decode(env, &msgs) {
			for i := range msgs {
				c.printMessage(&msgs[i])
			}
		}
	case protocol.EventNewMessage:
		var m domain.Message
		if decode(env, &m) {
			c.printMessage(&m)
		}
	case protocol.EventError:
		var e protocol.ErrorPayload
		if decode(env, &e) {
			log.Warn().Str("module", "call").Str("error", e.Error).Msg("server error")
			c.printf("! %s\n", e.Error)
		}
	case protocol.EventPong:
	default:
		log.Debug().Str("module", "call").Str("event", env.Event).Msg("unhandled event")
	}
}

// Say posts a chat line. The hub echoes it back as new-message.
func (c *Call) Say(ctx context.Context, text string) error {
	c.mu.Lock()
	room, roomID := c.room, c.roomID
	c.mu.Unlock()
	if room == "" {
		return ErrNotJoined
	}
	_, err := c.tr.Request(ctx, protocol.EventSendMessage, protocol.SendMessage{
		RoomCode: room,
		RoomID:   string(roomID),
		Text:     text,
		Sender:   &domain.Sender{ID: c.user.ID, Name: c.user.Name},
	})
	return err
}

// HandleLine runs a slash command or sends the line as chat. It reports
// whether the user asked to leave.
func (c *Call) HandleLine(ctx context.Context, line string) (bool, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return false, nil
	}
	if !strings.HasPrefix(line, "/") {
		return false, c.Say(ctx, line)
	}
	switch strings.Fields(line)[0] {
	case "/leave", "/quit":
		c.Leave()
		return true, nil
	case "/mute":
		return false, c.setMedia(func() { c.audio = false })
	case "/unmute":
		return false, c.setMedia(func() { c.audio = true })
	case "/video":
		return false, c.setMedia(func() { c.video = !c.video })
	case "/peers":
		c.printPeers()
		return false, nil
	default:
		return false, fmt.Errorf("unknown command %q", line)
	}
}

func (c *Call) setMedia(apply func()) error {
	c.mu.Lock()
	apply()
	audio, video := c.audio, c.video
	c.mu.Unlock()
	return c.mgr.SetMedia(audio, video)
}

// Leave ends the call. Safe to call more than once.
func (c *Call) Leave() {
	c.mgr.EndCall()
}

func (c *Call) printPeers() {
	view := c.mgr.View()
	for _, p := range view.Peers {
		mark := " "
		if p.Self {
			mark = "*"
		}
		c.printf("%s %-20s audio=%t video=%t %s\n", mark, p.Name, p.MediaStatus.Audio, p.MediaStatus.Video, p.State)
		for _, s := range p.Streams {
			for _, tr := range s.Tracks {
				c.printf("    %s %s packets=%d lost=%d\n", tr.Kind, tr.Codec, tr.Packets, tr.Lost)
			}
		}
	}
}

func (c *Call) printMessage(m *domain.Message) {
	c.printf("[%s] %s: %s\n", m.CreatedAt.Local().Format("15:04"), m.SenderName, m.Text)
}

func (c *Call) printf(format string, args ...any) {
	if c.out == nil {
		return
	}
	_, _ = fmt.Fprintf(c.out, format, args...)
}

func decode(env *protocol.Envelope, v any) bool {
	if err := json.Unmarshal(env.Data, v); err != nil {
		log.Warn().Err(err).Str("module", "call").Str("event", env.Event).Msg("bad payload")
		return false
	}
	return true
}

func display(p protocol.PeerInfo) string {
	if p.Name != "" {
		return p.Name
	}
	return string(p.SocketID)
}
