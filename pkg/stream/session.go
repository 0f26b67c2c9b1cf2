package stream

import (
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/hivelabs/hivemon/pkg/event"
)

// Session is one subscriber's live connection to the event stream. It
// bridges the multiplexer's broadcast to an outbound transport and
// never references any other session; fan-out happens only through the
// multiplexer.
type Session struct {
	// ID uniquely identifies the session for logging
	ID string

	ch    chan event.Event
	alive atomic.Bool
}

func newSession(buffer int) *Session {
	s := &Session{
		ID: uuid.New().String(),
		ch: make(chan event.Event, buffer),
	}
	s.alive.Store(true)
	return s
}

// Events returns the receive channel for this session. The channel is
// closed when the session is detached from the multiplexer.
func (s *Session) Events() <-chan event.Event {
	return s.ch
}

// Alive reports whether the session is still forwarding events
func (s *Session) Alive() bool {
	return s.alive.Load()
}

// MarkDead degrades the session to inert after a transport write
// failure. The multiplexer skips dead sessions; the failure never
// reaches the poll loop or other sessions.
func (s *Session) MarkDead() {
	s.alive.Store(false)
}
