package mesh

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// TrackStats accounts inbound RTP for one remote track.
type TrackStats struct {
	TrackID     string    `json:"trackId"`
	Kind        string    `json:"kind"`
	Codec       string    `json:"codec"`
	Packets     uint64    `json:"packets"`
	Bytes       uint64    `json:"bytes"`
	LastSeq     uint16    `json:"lastSeq"`
	Lost        uint64    `json:"lost"`
	LastPacket  time.Time `json:"lastPacket"`
	initialized bool
}

// Observe folds one packet into the counters. Gaps in the sequence are
// counted as lost; reordered or duplicate packets are not subtracted.
func (s *TrackStats) Observe(pkt *rtp.Packet, size int, at time.Time) {
	if s.initialized {
		gap := pkt.SequenceNumber - s.LastSeq
		if gap > 1 && gap < 1<<15 {
			s.Lost += uint64(gap - 1)
		}
		if gap == 0 || gap >= 1<<15 {
			s.Packets++
			s.Bytes += uint64(size)
			return
		}
	}
	s.initialized = true
	s.Packets++
	s.Bytes += uint64(size)
	s.LastSeq = pkt.SequenceNumber
	s.LastPacket = at
}

// RemoteStream is the media a peer sends us, grouped by stream id.
type RemoteStream struct {
	ID string

	mu     sync.Mutex
	tracks map[string]*TrackStats
}

func newRemoteStream(id string) *RemoteStream {
	return &RemoteStream{ID: id, tracks: make(map[string]*TrackStats)}
}

func (r *RemoteStream) addTrack(id, kind, codec string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tracks[id]; !ok {
		r.tracks[id] = &TrackStats{TrackID: id, Kind: kind, Codec: codec}
	}
}

func (r *RemoteStream) observe(trackID string, pkt *rtp.Packet, size int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if st, ok := r.tracks[trackID]; ok {
		st.Observe(pkt, size, time.Now())
	}
}

// Stats returns a copy of the per-track counters.
func (r *RemoteStream) Stats() []TrackStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]TrackStats, 0, len(r.tracks))
	for _, st := range r.tracks {
		out = append(out, *st)
	}
	return out
}

// consume reads the track until ctx ends or the track closes.
func (r *RemoteStream) consume(ctx context.Context, peer string, track *webrtc.TrackRemote) {
	for {
		if ctx.Err() != nil {
			return
		}
		pkt, _, err := track.ReadRTP()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Debug().Err(err).Str("module", "mesh").Str("peer", peer).Str("track_id", track.ID()).Msg("track read ended")
			}
			return
		}
		r.observe(track.ID(), pkt, pkt.MarshalSize())
	}
}
