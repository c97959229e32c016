package hub

import (
	"sync"
	"sync/atomic"
	"time"
)

// Conn is the narrow surface the hub needs from a websocket connection.
// Satisfied by *websocket.Conn; tests use fakes.
type Conn interface {
	WriteJSON(v any) error
	Close() error
}

// State is the per-session lifecycle state.
type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	default:
		return "closed"
	}
}

// Session is one connected terminal. Owned exclusively by the hub: created
// on Connect, destroyed on Disconnect.
type Session struct {
	ID         string
	TerminalID string

	conn      Conn
	send      chan any
	done      chan struct{}
	closeOnce sync.Once

	state    atomic.Int32
	lastSeen atomic.Int64 // unix nanos
}

func (s *Session) State() State { return State(s.state.Load()) }

// transition only moves the state forward; a session never reopens.
func (s *Session) transition(to State) {
	for {
		cur := s.state.Load()
		if cur >= int32(to) {
			return
		}
		if s.state.CompareAndSwap(cur, int32(to)) {
			return
		}
	}
}

func (s *Session) touch() { s.lastSeen.Store(time.Now().UnixNano()) }

func (s *Session) idleSince() time.Time { return time.Unix(0, s.lastSeen.Load()) }

// trySend never blocks; a full buffer means the peer is too slow and the
// caller drops the session instead of stalling the fanout.
func (s *Session) trySend(v any) bool {
	if s.State() != StateOpen {
		return false
	}
	select {
	case s.send <- v:
		return true
	default:
		return false
	}
}
