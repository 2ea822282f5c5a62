// Package protocol describes the control-channel frames exchanged between
// browsers (or meetclient) and the hub.
package protocol

import (
	"encoding/json"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
)

// Envelope wraps every frame. Ack is set by the client when it wants a reply.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
	Ack   int64           `json:"ack,omitempty"`
}

// Client -> server events.
const (
	EventJoinRoom     = "join-room"
	EventLeaveRoom    = "leave-room"
	EventSendMessage  = "send-message"
	EventMediaStatus  = "media-status"
	EventOffer        = "webrtc-offer"
	EventAnswer       = "webrtc-answer"
	EventICECandidate = "webrtc-ice-candidate"
	EventPing         = "ping"
)

// Server -> client events.
const (
	EventAck                = "ack"
	EventPong               = "pong"
	EventPeerList           = "peer-list"
	EventPeerJoined         = "peer-joined"
	EventPeerLeft           = "peer-left"
	EventParticipantsUpdate = "participants-update"
	EventChatHistory        = "chat-history"
	EventNewMessage         = "new-message"
	EventMediaStatusUpdate  = "media-status-update"
	EventError              = "error"
)

type JoinRoom struct {
	RoomCode domain.RoomCode `json:"roomCode"`
	User     struct {
		ID    domain.UserID `json:"id"`
		Name  string        `json:"name"`
		Email string        `json:"email,omitempty"`
	} `json:"user"`
}

type LeaveRoom struct {
	RoomCode domain.RoomCode `json:"roomCode"`
}

type PeerInfo struct {
	SocketID domain.SessionID `json:"socketId"`
	Name     string           `json:"name,omitempty"`
}

type SendMessage struct {
	RoomCode domain.RoomCode `json:"roomCode,omitempty"`
	RoomID   string          `json:"roomId,omitempty"`
	Text     string          `json:"text"`
	Sender   *domain.Sender  `json:"sender"`
}

type MediaStatus struct {
	RoomCode domain.RoomCode  `json:"roomCode,omitempty"`
	SocketID domain.SessionID `json:"socketId,omitempty"`
	Audio    bool             `json:"audio"`
	Video    bool             `json:"video"`
}

// Relay carries one negotiation step. The hub never looks inside the
// description or candidate, it only swaps To for From.
type Relay struct {
	To        domain.SessionID `json:"to,omitempty"`
	From      domain.SessionID `json:"from,omitempty"`
	Offer     json.RawMessage  `json:"offer,omitempty"`
	Answer    json.RawMessage  `json:"answer,omitempty"`
	Candidate json.RawMessage  `json:"candidate,omitempty"`
}

// AckData answers a request. SocketID is only set on a join, so the joiner
// can find itself in rosters.
type AckData struct {
	OK       bool             `json:"ok"`
	Error    string           `json:"error,omitempty"`
	RoomID   domain.RoomID    `json:"roomId,omitempty"`
	SocketID domain.SessionID `json:"socketId,omitempty"`
	Message  *domain.Message  `json:"message,omitempty"`
}

type Ack struct {
	Event string  `json:"event"`
	Ack   int64   `json:"ack"`
	Data  AckData `json:"data"`
}

type ErrorPayload struct {
	Error string `json:"error"`
}

// Encode builds a server or client frame for event with payload v.
func Encode(event string, v any) (core.Frame, error) {
	env := Envelope{Event: event}
	if v != nil {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		env.Data = raw
	}
	return json.Marshal(env)
}

// EncodeWithAck is Encode for requests that expect an ack reply.
func EncodeWithAck(event string, v any, ack int64) (core.Frame, error) {
	env := Envelope{Event: event, Ack: ack}
	if v != nil {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		env.Data = raw
	}
	return json.Marshal(env)
}

func EncodeAck(ack int64, data AckData) (core.Frame, error) {
	return json.Marshal(Ack{Event: EventAck, Ack: ack, Data: data})
}

// Decode parses the envelope; Data is left raw for the event handler.
func Decode(frame []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, err
	}
	return &env, nil
}
