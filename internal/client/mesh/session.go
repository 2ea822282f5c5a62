package mesh

import (
	"context"
	"time"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/pion/webrtc/v4"
)

// PeerSession is the connection to one remote participant. All fields are
// guarded by the owning Manager.
type PeerSession struct {
	ID        domain.SessionID
	Name      string
	Initiator bool

	conn       core.MediaConnection
	cancel     context.CancelFunc
	state      State
	pendingICE []webrtc.ICECandidateInit
	streams    map[string]*RemoteStream
	timer      *time.Timer
	createdAt  time.Time
}

func (s *PeerSession) State() State { return s.state }

// shutdown marks the session closed and returns the connection the caller
// must close once the manager lock is released.
func (s *PeerSession) shutdown() core.MediaConnection {
	if s.timer != nil {
		s.timer.Stop()
	}
	if s.cancel != nil {
		s.cancel()
	}
	if !s.state.Terminal() {
		s.state = StateClosed
	}
	s.pendingICE = nil
	return s.conn
}
