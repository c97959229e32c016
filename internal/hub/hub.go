// Package hub is the realtime fanout point: every committed ledger change
// is pushed to every connected terminal session, including the originator.
package hub

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"tillsync/internal/domain"
	applog "tillsync/internal/log"

	"github.com/google/uuid"
)

// Applier handles inbound sync_operation frames. The ledger service
// implements it.
type Applier interface {
	Apply(ctx context.Context, terminalID string, op domain.SyncOperation) error
}

type Config struct {
	SendBuffer     int
	SessionTimeout time.Duration
}

type Hub struct {
	// Applier is assigned after construction to break the hub/ledger
	// construction cycle; set it before serving connections.
	Applier Applier

	cfg Config

	mu       sync.RWMutex
	sessions map[string]*Session

	seq atomic.Uint64
}

func New(cfg Config) *Hub {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 64
	}
	if cfg.SessionTimeout <= 0 {
		cfg.SessionTimeout = 60 * time.Second
	}
	return &Hub{cfg: cfg, sessions: map[string]*Session{}}
}

// Connect registers a session and starts its writer. All sessions receive
// all events; no per-resource filtering is offered.
func (h *Hub) Connect(conn Conn, terminalID string) *Session {
	s := &Session{
		ID:         uuid.NewString(),
		TerminalID: terminalID,
		conn:       conn,
		send:       make(chan any, h.cfg.SendBuffer),
		done:       make(chan struct{}),
	}
	s.touch()
	s.transition(StateOpen)

	h.mu.Lock()
	h.sessions[s.ID] = s
	h.mu.Unlock()

	go h.writer(s)

	applog.Info(nil, "hub.connect", map[string]any{"session_id": s.ID, "terminal_id": terminalID})
	return s
}

// Disconnect deregisters a session. Idempotent; safe to call from the
// fanout path, the read loop, and the reaper concurrently.
func (h *Hub) Disconnect(s *Session) {
	s.closeOnce.Do(func() {
		s.transition(StateClosing)

		h.mu.Lock()
		delete(h.sessions, s.ID)
		h.mu.Unlock()

		close(s.done)
		_ = s.conn.Close()
		s.transition(StateClosed)

		applog.Info(nil, "hub.disconnect", map[string]any{"session_id": s.ID, "terminal_id": s.TerminalID})
	})
}

// Publish fans an event to every connected session. A slow or dead session
// is dropped from the fanout set rather than stalling delivery to healthy
// ones.
func (h *Hub) Publish(ev domain.ChangeEvent) {
	ev.Type = "data_updated"
	ev.Seq = h.seq.Add(1)

	h.mu.RLock()
	targets := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	for _, s := range targets {
		if !s.trySend(ev) {
			applog.Warn(nil, "hub.session.drop", map[string]any{"session_id": s.ID, "terminal_id": s.TerminalID, "seq": ev.Seq})
			h.Disconnect(s)
		}
	}
}

// OnMessage handles the narrow inbound protocol: sync_operation frames for
// queued-operation replay. Anything else refreshes liveness and is ignored.
func (h *Hub) OnMessage(s *Session, raw []byte) {
	s.touch()

	var op domain.SyncOperation
	if err := json.Unmarshal(raw, &op); err != nil || op.Type != "sync_operation" {
		return
	}

	res := domain.SyncResult{Type: "sync_result", ID: op.ID, Success: true}
	if h.Applier == nil {
		res.Success = false
		res.Error = "sync unavailable"
	} else if err := h.Applier.Apply(context.Background(), s.TerminalID, op); err != nil {
		res.Success = false
		res.Error = err.Error()
		applog.Warn(nil, "hub.sync.reject", map[string]any{"op_id": op.ID, "terminal_id": s.TerminalID, "err": err.Error()})
	}

	if !s.trySend(res) {
		h.Disconnect(s)
	}
}

// Run reaps sessions that have gone silent past the liveness timeout.
func (h *Hub) Run(ctx context.Context) {
	t := time.NewTicker(h.cfg.SessionTimeout / 2)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			cutoff := time.Now().Add(-h.cfg.SessionTimeout)
			h.mu.RLock()
			stale := make([]*Session, 0)
			for _, s := range h.sessions {
				if s.idleSince().Before(cutoff) {
					stale = append(stale, s)
				}
			}
			h.mu.RUnlock()
			for _, s := range stale {
				applog.Warn(nil, "hub.session.timeout", map[string]any{"session_id": s.ID, "terminal_id": s.TerminalID})
				h.Disconnect(s)
			}
		}
	}
}

// SessionCount reports currently registered sessions.
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// writer drains the session's send buffer onto the socket. A write error
// is an implicit disconnect; reconnection is the terminal's concern.
func (h *Hub) writer(s *Session) {
	for {
		select {
		case <-s.done:
			return
		case msg := <-s.send:
			if err := s.conn.WriteJSON(msg); err != nil {
				h.Disconnect(s)
				return
			}
		}
	}
}
