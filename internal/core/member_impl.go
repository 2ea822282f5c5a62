package core

import "github.com/dkeye/Meet/internal/domain"

// memberSession implements MemberSession by pairing identity + transport.
type memberSession struct {
	id       domain.SessionID
	identity *domain.User
	token    string
	conn     SignalConnection
}

func NewMemberSession(id domain.SessionID, identity *domain.User, token string, conn SignalConnection) MemberSession {
	return &memberSession{id: id, identity: identity, token: token, conn: conn}
}

func (m *memberSession) ID() domain.SessionID     { return m.id }
func (m *memberSession) Signal() SignalConnection { return m.conn }
func (m *memberSession) Identity() *domain.User   { return m.identity }
func (m *memberSession) ClientToken() string      { return m.token }
