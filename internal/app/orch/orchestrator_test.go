package orch

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/Meet/internal/adapters/persistence/memory"
	"github.com/dkeye/Meet/internal/app"
	"github.com/dkeye/Meet/internal/app/directory"
	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/dkeye/Meet/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recConn struct {
	mu     sync.Mutex
	frames []protocol.Envelope
	full   bool
	closed bool
}

func (c *recConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return core.ErrConnectionClosed
	}
	if c.full {
		return core.ErrBackpressure
	}
	env, err := protocol.Decode(f)
	if err != nil {
		return err
	}
	c.frames = append(c.frames, *env)
	return nil
}

func (c *recConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *recConn) events() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.frames))
	for i, f := range c.frames {
		out[i] = f.Event
	}
	return out
}

// last decodes the most recent frame of event into v.
func (c *recConn) last(t *testing.T, event string, v any) {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.frames) - 1; i >= 0; i-- {
		if c.frames[i].Event == event {
			require.NoError(t, json.Unmarshal(c.frames[i].Data, v))
			return
		}
	}
	t.Fatalf("no %s frame", event)
}

func (c *recConn) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = nil
}

type harness struct {
	o     *Orchestrator
	dir   core.Directory
	rooms *memory.RoomStore
	msgs  *memory.MessageStore
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := directory.NewMemory()
	rooms := memory.NewRoomStore()
	msgs := memory.NewMessageStore()
	return &harness{
		o: &Orchestrator{
			Registry:  app.NewRegistry(),
			Rooms:     app.NewRoomManager(),
			Directory: dir,
			RoomStore: rooms,
			Messages:  msgs,
			Policy:    app.SimplePolicy{},
		},
		dir:   dir,
		rooms: rooms,
		msgs:  msgs,
	}
}

func (h *harness) room(t *testing.T, owner domain.UserID) *domain.Room {
	t.Helper()
	r, err := domain.NewRoom("Weekly", owner)
	require.NoError(t, err)
	require.NoError(t, h.rooms.Create(context.Background(), r))
	return r
}

func (h *harness) connect(sid string) *recConn {
	c := &recConn{}
	h.o.Registry.BindSignal(core.NewMemberSession(domain.SessionID(sid), nil, "tok-"+sid, c), func() {})
	return c
}

func user(id, name string) *domain.User {
	return &domain.User{ID: domain.UserID(id), Name: name}
}

func TestJoinUnknownRoomMutatesNothing(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.connect("A")

	_, err := h.o.Join(ctx, "A", "nope", user("u1", "Ann"))
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)
	assert.Empty(t, a.events())
	_, ok, _ := h.dir.RoomOf(ctx, "A")
	assert.False(t, ok)
	_, ok = h.o.Rooms.Get("nope")
	assert.False(t, ok)
}

func TestTwoParticipantJoin(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	r := h.room(t, "u1")
	a, b := h.connect("A"), h.connect("B")

	got, err := h.o.Join(ctx, "A", r.Code, user("u1", "Ann"))
	require.NoError(t, err)
	assert.Equal(t, r.ID, got.ID)
	assert.Equal(t, []string{protocol.EventParticipantsUpdate, protocol.EventChatHistory, protocol.EventPeerList}, a.events())
	a.reset()

	_, err = h.o.Join(ctx, "B", r.Code, user("u2", "Bob"))
	require.NoError(t, err)

	var roster []domain.Participant
	a.last(t, protocol.EventParticipantsUpdate, &roster)
	require.Len(t, roster, 2)
	assert.Equal(t, domain.SessionID("A"), roster[0].SocketID)
	assert.True(t, roster[0].IsHost)
	assert.False(t, roster[1].IsHost)

	var joined protocol.PeerInfo
	a.last(t, protocol.EventPeerJoined, &joined)
	assert.Equal(t, domain.SessionID("B"), joined.SocketID)
	assert.Equal(t, "Bob", joined.Name)

	var peers []domain.Participant
	b.last(t, protocol.EventPeerList, &peers)
	require.Len(t, peers, 1)
	assert.Equal(t, domain.SessionID("A"), peers[0].SocketID)
	assert.NotContains(t, b.events(), protocol.EventPeerJoined)
}

func TestJoinLeavesPreviousRoom(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	r1, r2 := h.room(t, "u1"), h.room(t, "u1")
	h.connect("A")
	b := h.connect("B")

	_, err := h.o.Join(ctx, "A", r1.Code, user("u1", "Ann"))
	require.NoError(t, err)
	_, err = h.o.Join(ctx, "B", r1.Code, user("u2", "Bob"))
	require.NoError(t, err)
	b.reset()

	_, err = h.o.Join(ctx, "A", r2.Code, user("u1", "Ann"))
	require.NoError(t, err)

	list, err := h.dir.List(ctx, r1.Code)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, domain.SessionID("B"), list[0].SocketID)

	code, ok, err := h.dir.RoomOf(ctx, "A")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, r2.Code, code)

	var left protocol.PeerInfo
	b.last(t, protocol.EventPeerLeft, &left)
	assert.Equal(t, domain.SessionID("A"), left.SocketID)
}

func TestDisconnectCleansUpAndIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	r := h.room(t, "u1")
	a := h.connect("A")
	h.connect("B")

	_, err := h.o.Join(ctx, "A", r.Code, user("u1", "Ann"))
	require.NoError(t, err)
	_, err = h.o.Join(ctx, "B", r.Code, user("u2", "Bob"))
	require.NoError(t, err)
	h.o.Relay("A", protocol.EventOffer, protocol.Relay{To: "B", Offer: json.RawMessage(`{}`)})
	g, _ := h.o.Rooms.Get(r.Code)
	assert.Equal(t, 1, g.Mesh().Links())
	a.reset()

	h.o.OnDisconnect(ctx, "B")
	h.o.OnDisconnect(ctx, "B")

	var roster []domain.Participant
	a.last(t, protocol.EventParticipantsUpdate, &roster)
	require.Len(t, roster, 1)
	assert.Equal(t, domain.SessionID("A"), roster[0].SocketID)
	var left protocol.PeerInfo
	a.last(t, protocol.EventPeerLeft, &left)
	assert.Equal(t, domain.SessionID("B"), left.SocketID)
	assert.Equal(t, []string{protocol.EventParticipantsUpdate, protocol.EventPeerLeft}, a.events())
	assert.Equal(t, 0, g.Mesh().Links())

	h.o.Leave(ctx, "A", r.Code)
	h.o.OnDisconnect(ctx, "A")
	_, ok := h.o.Rooms.Get(r.Code)
	assert.False(t, ok)
	list, err := h.dir.List(ctx, r.Code)
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Equal(t, 0, h.o.Registry.Count())
}

func TestMediaStatusRoundTrip(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	r := h.room(t, "u1")
	a := h.connect("A")
	h.connect("B")
	_, _ = h.o.Join(ctx, "A", r.Code, user("u1", "Ann"))
	_, _ = h.o.Join(ctx, "B", r.Code, user("u2", "Bob"))

	require.NoError(t, h.o.UpdateMedia(ctx, "B", protocol.MediaStatus{RoomCode: r.Code, Audio: false, Video: true}))

	var upd protocol.MediaStatus
	a.last(t, protocol.EventMediaStatusUpdate, &upd)
	assert.Equal(t, domain.SessionID("B"), upd.SocketID)
	assert.False(t, upd.Audio)
	assert.True(t, upd.Video)

	roster, err := h.o.Roster(ctx, r.Code)
	require.NoError(t, err)
	require.Len(t, roster, 2)
	assert.False(t, roster[1].MediaStatus.Audio)

	h.connect("C")
	err = h.o.UpdateMedia(ctx, "C", protocol.MediaStatus{Audio: true})
	assert.ErrorIs(t, err, domain.ErrNotInRoom)
}

func TestChatBroadcastAndHistory(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	r := h.room(t, "u1")
	a, b := h.connect("A"), h.connect("B")
	_, _ = h.o.Join(ctx, "A", r.Code, user("u1", "Ann"))
	_, _ = h.o.Join(ctx, "B", r.Code, user("u2", "Bob"))

	sender := &domain.Sender{ID: "u1", Name: "Ann"}
	msg, err := h.o.SendChat(ctx, "A", protocol.SendMessage{RoomCode: r.Code, RoomID: string(r.ID), Text: "hi", Sender: sender})
	require.NoError(t, err)
	assert.False(t, msg.CreatedAt.IsZero())
	_, err = h.o.SendChat(ctx, "A", protocol.SendMessage{RoomCode: r.Code, Text: "second", Sender: sender})
	require.NoError(t, err)

	for _, c := range []*recConn{a, b} {
		var got domain.Message
		c.last(t, protocol.EventNewMessage, &got)
		assert.Equal(t, "second", got.Text)
		assert.Equal(t, "Ann", got.SenderName)
	}

	c := h.connect("C")
	_, err = h.o.Join(ctx, "C", r.Code, user("u3", "Cid"))
	require.NoError(t, err)
	var history []domain.Message
	c.last(t, protocol.EventChatHistory, &history)
	require.Len(t, history, 2)
	assert.Equal(t, "hi", history[0].Text)
	assert.Equal(t, "second", history[1].Text)
}

func TestChatRejections(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	r := h.room(t, "u1")
	h.connect("A")
	sender := &domain.Sender{ID: "u1", Name: "Ann"}

	_, err := h.o.SendChat(ctx, "A", protocol.SendMessage{RoomCode: r.Code, Text: "x"})
	assert.ErrorIs(t, err, domain.ErrInvalidSender)
	_, err = h.o.SendChat(ctx, "A", protocol.SendMessage{Text: "x", Sender: sender})
	assert.ErrorIs(t, err, domain.ErrMissingRoom)
	_, err = h.o.SendChat(ctx, "A", protocol.SendMessage{RoomCode: "zzz", Text: "x", Sender: sender})
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)
	_, err = h.o.SendChat(ctx, "A", protocol.SendMessage{RoomID: "42", Text: "x", Sender: sender})
	assert.ErrorIs(t, err, domain.ErrInvalidRoomID)
	_, err = h.o.SendChat(ctx, "A", protocol.SendMessage{RoomCode: r.Code, Text: "  ", Sender: sender})
	assert.ErrorIs(t, err, domain.ErrEmptyMessage)

	history, err := h.msgs.History(ctx, r.ID)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestChatRejectsForeignIdentity(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	r := h.room(t, "u1")
	h.o.Registry.BindSignal(core.NewMemberSession("A", user("u1", "Ann"), "", &recConn{}), func() {})

	_, err := h.o.SendChat(ctx, "A", protocol.SendMessage{RoomCode: r.Code, Text: "x", Sender: &domain.Sender{ID: "u2", Name: "Bob"}})
	assert.ErrorIs(t, err, domain.ErrIdentityMismatch)
}

func TestRelayForwardsAndDropsUnknownTarget(t *testing.T) {
	h := newHarness(t)
	a, b := h.connect("A"), h.connect("B")

	h.o.Relay("A", protocol.EventOffer, protocol.Relay{To: "B", Offer: json.RawMessage(`{"type":"offer","sdp":"x"}`)})
	h.o.Relay("A", protocol.EventICECandidate, protocol.Relay{To: "B", Candidate: json.RawMessage(`{"candidate":"c1"}`)})
	h.o.Relay("A", protocol.EventICECandidate, protocol.Relay{To: "B", Candidate: json.RawMessage(`{"candidate":"c2"}`)})
	h.o.Relay("A", protocol.EventAnswer, protocol.Relay{To: "gone", Answer: json.RawMessage(`{}`)})

	assert.Equal(t, []string{protocol.EventOffer, protocol.EventICECandidate, protocol.EventICECandidate}, b.events())
	var cand protocol.Relay
	b.last(t, protocol.EventICECandidate, &cand)
	assert.Equal(t, domain.SessionID("A"), cand.From)
	assert.Empty(t, cand.To)
	assert.JSONEq(t, `{"candidate":"c2"}`, string(cand.Candidate))
	assert.Empty(t, a.events())
}

func TestBackpressureKicksSlowMember(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	r := h.room(t, "u1")
	h.connect("A")
	b := h.connect("B")
	_, _ = h.o.Join(ctx, "A", r.Code, user("u1", "Ann"))
	_, _ = h.o.Join(ctx, "B", r.Code, user("u2", "Bob"))

	b.mu.Lock()
	b.full = true
	b.mu.Unlock()
	require.NoError(t, h.o.UpdateMedia(ctx, "A", protocol.MediaStatus{Audio: false}))

	b.mu.Lock()
	defer b.mu.Unlock()
	assert.True(t, b.closed)
}

// gatedRooms holds every Subscribe until release is closed, so a test can
// observe whether two joins reach the broadcast group at the same time.
type gatedRooms struct {
	core.RoomManager
	arrived chan domain.SessionID
	release chan struct{}
}

func (g *gatedRooms) Subscribe(code domain.RoomCode, ms core.MemberSession) core.RoomGroup {
	g.arrived <- ms.ID()
	select {
	case <-g.release:
	case <-time.After(time.Second):
	}
	return g.RoomManager.Subscribe(code, ms)
}

func TestConcurrentJoinsAnnounceOnlyTheLaterJoiner(t *testing.T) {
	h := newHarness(t)
	gate := &gatedRooms{RoomManager: h.o.Rooms, arrived: make(chan domain.SessionID, 2), release: make(chan struct{})}
	h.o.Rooms = gate
	ctx := context.Background()
	r := h.room(t, "u0")
	conns := map[domain.SessionID]*recConn{"A": h.connect("A"), "B": h.connect("B")}

	var wg sync.WaitGroup
	for sid, uid := range map[string]string{"A": "u1", "B": "u2"} {
		wg.Add(1)
		go func(sid, uid string) {
			defer wg.Done()
			_, err := h.o.Join(ctx, domain.SessionID(sid), r.Code, user(uid, sid))
			assert.NoError(t, err)
		}(sid, uid)
	}

	first := <-gate.arrived
	select {
	case second := <-gate.arrived:
		close(gate.release)
		wg.Wait()
		t.Fatalf("%s subscribed while %s was still joining", second, first)
	case <-time.After(100 * time.Millisecond):
	}
	close(gate.release)
	wg.Wait()

	later := domain.SessionID("A")
	if first == "A" {
		later = "B"
	}
	assert.Contains(t, conns[first].events(), protocol.EventPeerJoined)
	assert.NotContains(t, conns[later].events(), protocol.EventPeerJoined)

	var joined protocol.PeerInfo
	conns[first].last(t, protocol.EventPeerJoined, &joined)
	assert.Equal(t, later, joined.SocketID)
	var peers []domain.Participant
	conns[later].last(t, protocol.EventPeerList, &peers)
	require.Len(t, peers, 1)
	assert.Equal(t, first, peers[0].SocketID)
}

func TestRejoinSameRoomRefreshesWithoutAnnouncing(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	r := h.room(t, "u1")
	a, b := h.connect("A"), h.connect("B")

	_, err := h.o.Join(ctx, "A", r.Code, user("u1", "Ann"))
	require.NoError(t, err)
	_, err = h.o.Join(ctx, "B", r.Code, user("u2", "Bob"))
	require.NoError(t, err)
	require.NoError(t, h.o.UpdateMedia(ctx, "A", protocol.MediaStatus{Audio: false, Video: true}))
	a.reset()
	b.reset()

	_, err = h.o.Join(ctx, "A", r.Code, user("u1", "Ann"))
	require.NoError(t, err)

	assert.Equal(t, []string{protocol.EventParticipantsUpdate}, b.events())
	assert.Equal(t, []string{protocol.EventParticipantsUpdate, protocol.EventChatHistory, protocol.EventPeerList}, a.events())
	var peers []domain.Participant
	a.last(t, protocol.EventPeerList, &peers)
	require.Len(t, peers, 1)
	assert.Equal(t, domain.SessionID("B"), peers[0].SocketID)

	list, err := h.dir.List(ctx, r.Code)
	require.NoError(t, err)
	require.Len(t, list, 2)
	for _, p := range list {
		if p.SocketID == "A" {
			assert.False(t, p.MediaStatus.Audio)
			assert.True(t, p.IsHost)
		}
	}
	g, ok := h.o.Rooms.Get(r.Code)
	require.True(t, ok)
	assert.Equal(t, 2, g.MemberCount())
}
