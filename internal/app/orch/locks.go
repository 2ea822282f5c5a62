package orch

import (
	"sync"

	"github.com/dkeye/Meet/internal/domain"
)

// roomLocks serializes membership changes per room on this instance, so a
// joiner's snapshot and its peer-joined announcement cannot interleave with
// another join into the same room.
type roomLocks struct {
	mu    sync.Mutex
	locks map[domain.RoomCode]*roomLock
}

type roomLock struct {
	mu   sync.Mutex
	refs int
}

// lock blocks until code is free and returns the unlock func.
func (l *roomLocks) lock(code domain.RoomCode) func() {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[domain.RoomCode]*roomLock)
	}
	rl, ok := l.locks[code]
	if !ok {
		rl = &roomLock{}
		l.locks[code] = rl
	}
	rl.refs++
	l.mu.Unlock()

	rl.mu.Lock()
	return func() {
		rl.mu.Unlock()
		l.mu.Lock()
		rl.refs--
		if rl.refs == 0 {
			delete(l.locks, code)
		}
		l.mu.Unlock()
	}
}
