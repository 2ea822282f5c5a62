package app

import (
	"context"
	"testing"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopConn struct{}

func (nopConn) TrySend(core.Frame) error { return nil }
func (nopConn) Close()                   {}

func session(id string) core.MemberSession {
	return core.NewMemberSession(domain.SessionID(id), nil, "", nopConn{})
}

func TestRegistryLifecycle(t *testing.T) {
	r := NewRegistry()
	canceled := false
	_, cancel := context.WithCancel(context.Background())
	r.BindSignal(session("a"), func() { canceled = true; cancel() })

	_, ok := r.RoomOf("a")
	assert.False(t, ok)
	require.True(t, r.UpdateRoom("a", "R1"))
	room, ok := r.RoomOf("a")
	require.True(t, ok)
	assert.Equal(t, domain.RoomCode("R1"), room)

	r.RemoveRoom("a")
	_, ok = r.RoomOf("a")
	assert.False(t, ok)

	assert.True(t, r.Cancel("a"))
	assert.True(t, canceled)
	assert.False(t, r.UpdateRoom("missing", "R1"))

	r.Unbind("a")
	_, ok = r.GetSession("a")
	assert.False(t, ok)
	assert.Equal(t, 0, r.Count())
}

func TestRoomManagerDropsEmptyGroupWithMesh(t *testing.T) {
	m := NewRoomManager()
	g := m.Subscribe("R1", session("a"))
	m.Subscribe("R1", session("b"))
	g.Mesh().RecordOffer("a", "b")

	infos := m.List()
	require.Len(t, infos, 1)
	assert.Equal(t, 2, infos[0].MemberCount)
	assert.Equal(t, 1, infos[0].Links)

	assert.False(t, m.Unsubscribe("R1", "a"))
	assert.Equal(t, 0, g.Mesh().Links())
	assert.True(t, m.Unsubscribe("R1", "b"))
	_, ok := m.Get("R1")
	assert.False(t, ok)

	// second drain is a no-op
	assert.True(t, m.Unsubscribe("R1", "b"))
	assert.Empty(t, m.List())
}

func TestSimplePolicyKicks(t *testing.T) {
	assert.Equal(t, KickMember, SimplePolicy{}.OnBackPressure(nil, session("a")))
	assert.Equal(t, "kick", KickMember.String())
}
