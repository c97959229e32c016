package terminal_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"tillsync/internal/config"
	"tillsync/internal/domain"
	"tillsync/internal/terminal"
)

// fakeSubmitter replays a scripted error sequence per operation id and
// records the order of submissions.
type fakeSubmitter struct {
	mu      sync.Mutex
	scripts map[string][]error
	calls   []string
}

func (f *fakeSubmitter) Submit(ctx context.Context, op *domain.QueuedOperation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, op.ID)
	seq := f.scripts[op.ID]
	if len(seq) == 0 {
		return nil
	}
	err := seq[0]
	f.scripts[op.ID] = seq[1:]
	return err
}

func (f *fakeSubmitter) callOrder() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

func testCfg() config.TerminalConfig {
	return config.TerminalConfig{
		MaxAttempts: 3,
		BaseBackoff: 5 * time.Millisecond,
		MaxBackoff:  20 * time.Millisecond,
	}
}

// startReconciler wires a healthy monitor so the drain starts immediately.
func startReconciler(t *testing.T, q *terminal.Queue, sub terminal.Submitter) (*terminal.Monitor, context.CancelFunc) {
	t.Helper()
	p := &flakyProbe{}
	p.healthy.Store(true)
	// High fail threshold keeps the monitor online through scripted
	// transient failures.
	mon := terminal.NewMonitor(p.probe, 10*time.Millisecond, 100, 1)
	rec := terminal.NewReconciler(q, sub, mon, testCfg())

	ctx, cancel := context.WithCancel(context.Background())
	go mon.Run(ctx)
	go rec.Run(ctx)
	return mon, cancel
}

func waitDepth(t *testing.T, q *terminal.Queue, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if n, err := q.Depth(context.Background()); err == nil && n == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	n, _ := q.Depth(context.Background())
	t.Fatalf("queue depth never reached %d (at %d)", want, n)
}

func TestReconcilerDrainsInOrder(t *testing.T) {
	q := openQueue(t)
	ctx := context.Background()

	var ids []string
	for _, qty := range []int{10, 3, 1} {
		id, err := q.Enqueue(ctx, "inventory", "update", adjustment{ProductID: "cola-330", Quantity: qty, Type: "add"})
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, id)
	}

	sub := &fakeSubmitter{scripts: map[string][]error{}}
	_, cancel := startReconciler(t, q, sub)
	defer cancel()

	waitDepth(t, q, 0)
	calls := sub.callOrder()
	if len(calls) != 3 {
		t.Fatalf("want 3 submissions, got %v", calls)
	}
	for i, id := range ids {
		if calls[i] != id {
			t.Fatalf("submission order broken: %v want %v", calls, ids)
		}
	}
}

func TestReconcilerSkipsSemanticFailure(t *testing.T) {
	q := openQueue(t)
	ctx := context.Background()

	a, _ := q.Enqueue(ctx, "inventory", "update", adjustment{ProductID: "cola-330", Quantity: 1, Type: "add"})
	b, _ := q.Enqueue(ctx, "inventory", "update", adjustment{ProductID: "cola-330", Quantity: 99, Type: "remove"})
	c, _ := q.Enqueue(ctx, "inventory", "update", adjustment{ProductID: "cola-330", Quantity: 2, Type: "add"})

	sub := &fakeSubmitter{scripts: map[string][]error{
		b: {&terminal.RejectedError{Status: 409, Reason: "insufficient_stock"}},
	}}
	_, cancel := startReconciler(t, q, sub)
	defer cancel()

	waitDepth(t, q, 0)

	// a and c committed in relative order; b dead-lettered, not retried
	calls := sub.callOrder()
	want := []string{a, b, c}
	if len(calls) != 3 {
		t.Fatalf("want 3 submissions, got %v", calls)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Fatalf("order broken: %v want %v", calls, want)
		}
	}

	dead, err := q.DeadLetters(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(dead) != 1 || dead[0].ID != b || dead[0].Reason != "insufficient_stock" {
		t.Fatalf("bad dead letters: %+v", dead)
	}
}

func TestReconcilerRetriesTransientWithoutSkipping(t *testing.T) {
	q := openQueue(t)
	ctx := context.Background()

	a, _ := q.Enqueue(ctx, "inventory", "update", adjustment{ProductID: "cola-330", Quantity: 1, Type: "remove"})
	b, _ := q.Enqueue(ctx, "inventory", "update", adjustment{ProductID: "cola-330", Quantity: 2, Type: "add"})

	transient := errors.New("connection reset")
	sub := &fakeSubmitter{scripts: map[string][]error{
		a: {transient, transient}, // succeeds on the third attempt
	}}
	_, cancel := startReconciler(t, q, sub)
	defer cancel()

	waitDepth(t, q, 0)

	calls := sub.callOrder()
	want := []string{a, a, a, b}
	if len(calls) != 4 {
		t.Fatalf("want %v, got %v", want, calls)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Fatalf("retry skipped ahead: %v want %v", calls, want)
		}
	}
}

func TestReconcilerSuspendsAfterExhaustion(t *testing.T) {
	q := openQueue(t)
	ctx := context.Background()

	transient := errors.New("timeout")
	a, _ := q.Enqueue(ctx, "inventory", "update", adjustment{ProductID: "cola-330", Quantity: 1, Type: "remove"})

	sub := &fakeSubmitter{scripts: map[string][]error{
		a: {transient, transient, transient, transient, transient, transient},
	}}
	_, cancel := startReconciler(t, q, sub)
	defer cancel()

	// MaxAttempts is 3: after three transient failures the drain suspends
	// and the op stays queued, never dead-lettered.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(sub.callOrder()) >= 3 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(50 * time.Millisecond) // would-be extra attempts

	if n := len(sub.callOrder()); n != 3 {
		t.Fatalf("want exactly 3 attempts before suspension, got %d", n)
	}
	op, err := q.Peek(ctx)
	if err != nil || op == nil || op.ID != a {
		t.Fatalf("op should still be queued: %+v %v", op, err)
	}
	if op.RetryCount != 3 {
		t.Fatalf("want persisted retry_count 3, got %d", op.RetryCount)
	}
	dead, _ := q.DeadLetters(ctx)
	if len(dead) != 0 {
		t.Fatalf("environmental fault was dead-lettered: %+v", dead)
	}
}
