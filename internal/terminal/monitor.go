package terminal

import (
	"context"
	"sync/atomic"
	"time"

	applog "tillsync/internal/log"
)

// NetState is the monitor's two-state connectivity machine.
type NetState int32

const (
	StateOffline NetState = iota
	StateOnline
)

func (s NetState) String() string {
	if s == StateOnline {
		return "online"
	}
	return "offline"
}

// Monitor observes transport reachability with a periodic probe plus
// passive failure reports from the submitter. Transitions are debounced so
// a single failed probe never flips state.
type Monitor struct {
	probe         func(ctx context.Context) error
	interval      time.Duration
	failThreshold int
	okThreshold   int

	state   atomic.Int32
	events  chan NetState
	reports chan struct{}
}

func NewMonitor(probe func(ctx context.Context) error, interval time.Duration, failThreshold, okThreshold int) *Monitor {
	if failThreshold < 1 {
		failThreshold = 1
	}
	if okThreshold < 1 {
		okThreshold = 1
	}
	return &Monitor{
		probe:         probe,
		interval:      interval,
		failThreshold: failThreshold,
		okThreshold:   okThreshold,
		events:        make(chan NetState, 8),
		reports:       make(chan struct{}, 8),
	}
}

// Events delivers state transitions; the reconciler consumes them to start
// and stop its drain.
func (m *Monitor) Events() <-chan NetState { return m.events }

func (m *Monitor) State() NetState { return NetState(m.state.Load()) }

// ReportFailure feeds passive detection: a failed submit counts the same
// as a failed probe.
func (m *Monitor) ReportFailure() {
	select {
	case m.reports <- struct{}{}:
	default:
	}
}

// Run probes on a ticker until ctx is done. Starts Offline; the first
// healthy streak flips Online.
func (m *Monitor) Run(ctx context.Context) {
	t := time.NewTicker(m.interval)
	defer t.Stop()

	fails, oks := 0, 0
	observe := func(err error) {
		if err != nil {
			oks = 0
			fails++
			if m.State() == StateOnline && fails >= m.failThreshold {
				m.flip(StateOffline)
				fails = 0
			}
			return
		}
		fails = 0
		oks++
		if m.State() == StateOffline && oks >= m.okThreshold {
			m.flip(StateOnline)
			oks = 0
		}
	}

	observe(m.doProbe(ctx))
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.reports:
			observe(context.DeadlineExceeded)
		case <-t.C:
			observe(m.doProbe(ctx))
		}
	}
}

func (m *Monitor) doProbe(ctx context.Context) error {
	pctx, cancel := context.WithTimeout(ctx, m.interval)
	defer cancel()
	return m.probe(pctx)
}

func (m *Monitor) flip(to NetState) {
	m.state.Store(int32(to))
	applog.Info(nil, "monitor.transition", map[string]any{"state": to.String()})
	select {
	case m.events <- to:
	default:
	}
}
