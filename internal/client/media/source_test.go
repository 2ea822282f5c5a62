package media

import (
	"context"
	"testing"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSourceTracksAndMute(t *testing.T) {
	src, err := NewSource(context.Background(), "local")
	require.NoError(t, err)

	tracks := src.Tracks()
	require.Len(t, tracks, 1)
	assert.Equal(t, webrtc.RTPCodecTypeAudio, tracks[0].Kind())
	assert.Equal(t, "local", tracks[0].StreamID())

	src.SetEnabled(false, true)
	assert.True(t, src.Muted())
	src.SetEnabled(true, false)
	assert.False(t, src.Muted())

	src.Stop()
	src.Stop()
}
