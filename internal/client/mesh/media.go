package mesh

import "github.com/pion/webrtc/v4"

// LocalMedia is what the user captures. Either track may be missing, in which
// case the call runs receive-only for that kind.
type LocalMedia interface {
	Tracks() []webrtc.TrackLocal
	SetEnabled(audio, video bool)
	Stop()
}
