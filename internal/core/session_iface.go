package core

import "github.com/dkeye/Meet/internal/domain"

// MemberSession binds one control connection and the identity the auth
// layer attached to it. This is what a room group stores and fans out to.
type MemberSession interface {
	ID() domain.SessionID
	Signal() SignalConnection
	// Identity is nil when the connection was not authenticated.
	Identity() *domain.User
	// ClientToken is the browser-scoped token used for rate limiting.
	ClientToken() string
}
