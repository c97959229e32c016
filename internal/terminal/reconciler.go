package terminal

import (
	"context"
	"errors"
	"time"

	"tillsync/internal/config"
	"tillsync/internal/domain"
	applog "tillsync/internal/log"
)

// Submitter replays one queued operation against the server.
type Submitter interface {
	Submit(ctx context.Context, op *domain.QueuedOperation) error
}

// Reconciler drains the operation queue whenever the monitor reports the
// transport usable. It is the terminal's single sequential worker: one
// in-flight submission at a time, strict FIFO, never skipping past a
// transient failure, always skipping past a semantic one.
type Reconciler struct {
	Queue *Queue
	Sub   Submitter
	Mon   *Monitor

	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

func NewReconciler(q *Queue, sub Submitter, mon *Monitor, cfg config.TerminalConfig) *Reconciler {
	return &Reconciler{
		Queue:       q,
		Sub:         sub,
		Mon:         mon,
		MaxAttempts: cfg.MaxAttempts,
		BaseBackoff: cfg.BaseBackoff,
		MaxBackoff:  cfg.MaxBackoff,
	}
}

// Run reacts to monitor transitions until ctx is done. Online starts a
// drain; Offline cancels it.
func (r *Reconciler) Run(ctx context.Context) {
	var cancel context.CancelFunc
	var done chan struct{} // nil while no drain is running

	stop := func() {
		if done != nil {
			cancel()
			<-done
			done = nil
		}
	}

	for {
		select {
		case <-ctx.Done():
			stop()
			return
		case st := <-r.Mon.Events():
			switch st {
			case StateOnline:
				if done == nil {
					var dctx context.Context
					dctx, cancel = context.WithCancel(ctx)
					done = make(chan struct{})
					go func(d chan struct{}) {
						defer close(d)
						r.drain(dctx)
					}(done)
				}
			case StateOffline:
				stop()
			}
		case <-done:
			// Drain suspended itself (queue error or retries exhausted);
			// wait for the next Online transition.
			cancel()
			done = nil
		}
	}
}

// drain loops over the queue head until cancelled, the queue idles, or a
// transient-failure streak exhausts the attempt budget.
func (r *Reconciler) drain(ctx context.Context) {
	attempts := 0
	for ctx.Err() == nil {
		op, err := r.Queue.Peek(ctx)
		if err != nil {
			applog.Error(nil, "reconciler.peek.fail", err, nil)
			return
		}
		if op == nil {
			// Idle until new work or cancellation; the ticker is a
			// fallback for a missed notify.
			select {
			case <-ctx.Done():
				return
			case <-r.Queue.Notify():
			case <-time.After(time.Second):
			}
			continue
		}

		_ = r.Queue.MarkInFlight(ctx, op.ID)
		err = r.Sub.Submit(ctx, op)

		var rej *RejectedError
		switch {
		case err == nil:
			if aerr := r.Queue.MarkAcknowledged(ctx, op.ID); aerr != nil {
				applog.Error(nil, "reconciler.ack.fail", aerr, map[string]any{"op_id": op.ID})
				return
			}
			attempts = 0
		case errors.As(err, &rej):
			// Semantic rejection: dead-letter and advance so one invalid
			// write never blocks the queue.
			applog.Warn(nil, "reconciler.dead_letter", map[string]any{"op_id": op.ID, "reason": rej.Reason})
			if ferr := r.Queue.MarkFailedPermanent(ctx, op.ID, rej.Reason); ferr != nil {
				applog.Error(nil, "reconciler.dead_letter.fail", ferr, map[string]any{"op_id": op.ID})
				return
			}
			attempts = 0
		default:
			// Transient: same op retries after backoff; never skip ahead.
			if ctx.Err() != nil {
				return
			}
			r.Mon.ReportFailure()
			_ = r.Queue.MarkRetryable(ctx, op.ID)
			attempts++
			if attempts >= r.MaxAttempts {
				applog.Warn(nil, "reconciler.suspend", map[string]any{"op_id": op.ID, "attempts": attempts})
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(r.backoff(attempts)):
			}
		}
	}
}

func (r *Reconciler) backoff(attempt int) time.Duration {
	d := r.BaseBackoff << (attempt - 1)
	if d > r.MaxBackoff || d <= 0 {
		d = r.MaxBackoff
	}
	return d
}
