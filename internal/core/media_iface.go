package core

import (
	"context"

	"github.com/pion/webrtc/v4"
)

// MediaConnection is one browser-style peer connection to a single remote
// participant. The mesh manager owns it; Close must release native resources.
type MediaConnection interface {
	// Start configures internal callbacks and binds the connection lifetime to ctx.
	Start(ctx context.Context) error
	// Close should stop all underlying media resources.
	Close()
	IsClosed() bool
	// AddICECandidate applies a remote ICE candidate.
	AddICECandidate(webrtc.ICECandidateInit) error
	HasRemoteDescription() bool
	CreateAndSetOffer() (*webrtc.SessionDescription, error)
	ApplyOfferAndCreateAnswer(webrtc.SessionDescription) (*webrtc.SessionDescription, error)
	ApplyAnswer(webrtc.SessionDescription) error
	// AddLocalTrack attaches a local track to the underlying PeerConnection.
	AddLocalTrack(track webrtc.TrackLocal) (*webrtc.RTPSender, error)
	// AddRecvOnly asks to receive kind when there is no local track for it.
	AddRecvOnly(kind webrtc.RTPCodecType) error
	// OnICECandidate sets a callback for newly gathered local ICE candidates.
	OnICECandidate(func(webrtc.ICECandidateInit))
	// OnTrack sets a callback that will be invoked when a new remote track arrives.
	OnTrack(func(ctx context.Context, track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver))
	// OnStateChange reports every peer connection state transition.
	OnStateChange(func(webrtc.PeerConnectionState))
	// OnClosed sets a callback for cleanup media session.
	OnClosed(func())
}

// MediaFactory builds connections for the mesh manager.
type MediaFactory func(peer string) (MediaConnection, error)
