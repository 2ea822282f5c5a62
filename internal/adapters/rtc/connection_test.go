package rtc

import (
	"context"
	"sync"
	"testing"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOfferAnswerBetweenTwoConnections(t *testing.T) {
	a, err := NewWebRTCConnection(webrtc.Configuration{}, "b")
	require.NoError(t, err)
	b, err := NewWebRTCConnection(webrtc.Configuration{}, "a")
	require.NoError(t, err)
	t.Cleanup(a.Close)
	t.Cleanup(b.Close)

	ctx := context.Background()
	require.NoError(t, a.Start(ctx))
	require.NoError(t, b.Start(ctx))

	var mu sync.Mutex
	var pending []webrtc.ICECandidateInit
	a.OnICECandidate(func(ci webrtc.ICECandidateInit) {
		mu.Lock()
		pending = append(pending, ci)
		mu.Unlock()
	})

	require.NoError(t, a.AddRecvOnly(webrtc.RTPCodecTypeAudio))
	offer, err := a.CreateAndSetOffer()
	require.NoError(t, err)
	assert.Equal(t, webrtc.SDPTypeOffer, offer.Type)
	assert.False(t, b.HasRemoteDescription())

	answer, err := b.ApplyOfferAndCreateAnswer(*offer)
	require.NoError(t, err)
	assert.True(t, b.HasRemoteDescription())
	require.NoError(t, a.ApplyAnswer(*answer))
	assert.True(t, a.HasRemoteDescription())

	mu.Lock()
	for _, ci := range pending {
		assert.NoError(t, b.AddICECandidate(ci))
	}
	mu.Unlock()
}

func TestCloseIsIdempotent(t *testing.T) {
	c, err := NewWebRTCConnection(webrtc.Configuration{}, "p")
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))
	calls := 0
	c.OnClosed(func() { calls++ })
	c.Close()
	c.Close()
	assert.True(t, c.IsClosed())
	assert.Equal(t, 1, calls)
}
