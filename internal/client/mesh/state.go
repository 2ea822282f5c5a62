package mesh

// State is the negotiation state of one peer session.
type State int

const (
	StateIdle State = iota
	StateNegotiating
	StateConnected
	StateFailed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateNegotiating:
		return "negotiating"
	case StateConnected:
		return "connected"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Terminal reports whether the session can no longer carry media.
func (s State) Terminal() bool {
	return s == StateFailed || s == StateClosed
}
