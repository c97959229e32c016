package hub_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"tillsync/internal/domain"
	"tillsync/internal/hub"
)

// fakeConn records frames; an optional gate makes writes block to simulate
// a slow peer.
type fakeConn struct {
	mu     sync.Mutex
	frames []any
	gate   chan struct{}
	closed bool
}

func (c *fakeConn) WriteJSON(v any) error {
	if c.gate != nil {
		<-c.gate
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, v)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) snapshot() []any {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]any, len(c.frames))
	copy(out, c.frames)
	return out
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestPublishFanoutIncludesOriginator(t *testing.T) {
	h := hub.New(hub.Config{})
	c1, c2 := &fakeConn{}, &fakeConn{}
	s1 := h.Connect(c1, "till-1")
	s2 := h.Connect(c2, "till-2")
	defer h.Disconnect(s1)
	defer h.Disconnect(s2)

	h.Publish(domain.ChangeEvent{Resource: "inventory", ProductID: "cola-330", Origin: "till-1"})

	for _, c := range []*fakeConn{c1, c2} {
		waitFor(t, func() bool { return len(c.snapshot()) == 1 }, "event not delivered")
		ev, ok := c.snapshot()[0].(domain.ChangeEvent)
		if !ok {
			t.Fatalf("unexpected frame: %+v", c.snapshot()[0])
		}
		if ev.Type != "data_updated" || ev.Resource != "inventory" || ev.ProductID != "cola-330" || ev.Seq == 0 {
			t.Fatalf("bad event: %+v", ev)
		}
	}
}

func TestPublishPreservesCommitOrder(t *testing.T) {
	h := hub.New(hub.Config{})
	c := &fakeConn{}
	s := h.Connect(c, "till-1")
	defer h.Disconnect(s)

	for i := 0; i < 10; i++ {
		h.Publish(domain.ChangeEvent{Resource: "inventory", ProductID: "cola-330"})
	}

	waitFor(t, func() bool { return len(c.snapshot()) == 10 }, "events not delivered")
	var last uint64
	for _, f := range c.snapshot() {
		ev := f.(domain.ChangeEvent)
		if ev.Seq <= last {
			t.Fatalf("sequence regressed: %d after %d", ev.Seq, last)
		}
		last = ev.Seq
	}
}

func TestSlowSessionDroppedNotBlocking(t *testing.T) {
	h := hub.New(hub.Config{SendBuffer: 1})
	slow := &fakeConn{gate: make(chan struct{})}
	healthy := &fakeConn{}
	ss := h.Connect(slow, "till-slow")
	hs := h.Connect(healthy, "till-ok")
	defer h.Disconnect(hs)

	// First event parks the slow writer in WriteJSON, second fills its
	// buffer, third finds it full and drops the session.
	for i := 0; i < 3; i++ {
		h.Publish(domain.ChangeEvent{Resource: "inventory"})
	}

	waitFor(t, func() bool { return len(healthy.snapshot()) == 3 }, "healthy session starved")
	waitFor(t, func() bool { return ss.State() == hub.StateClosed }, "slow session not dropped")
	close(slow.gate)
}

func TestDisconnectIdempotent(t *testing.T) {
	h := hub.New(hub.Config{})
	c := &fakeConn{}
	s := h.Connect(c, "till-1")

	if s.State() != hub.StateOpen {
		t.Fatalf("want open after connect, got %v", s.State())
	}
	h.Disconnect(s)
	h.Disconnect(s) // second call is a no-op
	if s.State() != hub.StateClosed {
		t.Fatalf("want closed, got %v", s.State())
	}
	if h.SessionCount() != 0 {
		t.Fatalf("session still registered")
	}

	// publishing after disconnect reaches nobody and does not panic
	h.Publish(domain.ChangeEvent{Resource: "inventory"})
}

type fakeApplier struct {
	mu   sync.Mutex
	ops  []domain.SyncOperation
	fail error
}

func (a *fakeApplier) Apply(ctx context.Context, terminalID string, op domain.SyncOperation) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ops = append(a.ops, op)
	return a.fail
}

func TestOnMessageSyncOperation(t *testing.T) {
	h := hub.New(hub.Config{})
	applier := &fakeApplier{}
	h.Applier = applier

	c := &fakeConn{}
	s := h.Connect(c, "till-1")
	defer h.Disconnect(s)

	raw, _ := json.Marshal(domain.SyncOperation{
		Type: "sync_operation", ID: "till-1-op-9", Resource: "inventory",
		Payload: []byte(`{"product_id":"cola-330","quantity":1,"type":"remove"}`),
	})
	h.OnMessage(s, raw)

	waitFor(t, func() bool { return len(c.snapshot()) == 1 }, "sync_result not sent")
	res := c.snapshot()[0].(domain.SyncResult)
	if res.Type != "sync_result" || res.ID != "till-1-op-9" || !res.Success {
		t.Fatalf("bad sync result: %+v", res)
	}

	// a rejected apply reports success=false with the reason
	applier.fail = domain.ErrInsufficientStock
	h.OnMessage(s, raw)
	waitFor(t, func() bool { return len(c.snapshot()) == 2 }, "second sync_result not sent")
	res = c.snapshot()[1].(domain.SyncResult)
	if res.Success || res.Error == "" {
		t.Fatalf("want failed sync result, got %+v", res)
	}

	// garbage frames refresh liveness but produce no reply
	h.OnMessage(s, []byte(`{"type":"chatter"}`))
	h.OnMessage(s, []byte(`not json`))
	time.Sleep(20 * time.Millisecond)
	if len(c.snapshot()) != 2 {
		t.Fatalf("unexpected replies: %+v", c.snapshot())
	}
}

func TestReaperClosesIdleSessions(t *testing.T) {
	h := hub.New(hub.Config{SessionTimeout: 40 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	c := &fakeConn{}
	s := h.Connect(c, "till-1")

	waitFor(t, func() bool { return s.State() == hub.StateClosed }, "idle session not reaped")
	if h.SessionCount() != 0 {
		t.Fatal("reaped session still registered")
	}
}
