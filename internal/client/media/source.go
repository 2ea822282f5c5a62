// Package media provides local tracks for the command-line client. It has no
// capture device, so audio is a stream of Opus silence frames.
package media

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/rs/zerolog/log"
)

// opusSilence is a single 20ms Opus frame that decodes to silence.
var opusSilence = []byte{0xf8, 0xff, 0xfe}

const frameDuration = 20 * time.Millisecond

// Source feeds one audio track. Muting keeps the track negotiated but stops
// writing samples.
type Source struct {
	audio  *webrtc.TrackLocalStaticSample
	muted  atomic.Bool
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// NewSource starts writing frames until Stop or ctx ends.
func NewSource(ctx context.Context, streamID string) (*Source, error) {
	if streamID == "" {
		streamID = uuid.NewString()
	}
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
		"audio", streamID,
	)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(ctx)
	s := &Source{audio: track, cancel: cancel}
	s.wg.Add(1)
	go s.run(ctx)
	return s, nil
}

func (s *Source) run(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(frameDuration)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.muted.Load() {
				continue
			}
			if err := s.audio.WriteSample(media.Sample{Data: opusSilence, Duration: frameDuration}); err != nil {
				log.Debug().Err(err).Str("module", "media").Msg("write sample")
			}
		}
	}
}

func (s *Source) Tracks() []webrtc.TrackLocal {
	return []webrtc.TrackLocal{s.audio}
}

// SetEnabled mutes or unmutes audio. There is no video source to toggle.
func (s *Source) SetEnabled(audio, _ bool) {
	s.muted.Store(!audio)
}

func (s *Source) Muted() bool { return s.muted.Load() }

func (s *Source) Stop() {
	s.once.Do(func() {
		s.cancel()
		s.wg.Wait()
		log.Debug().Str("module", "media").Msg("local media stopped")
	})
}
