// Package scheduler repeats reconciliation cycles with a fixed delay between them.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/imrishuroy/orderflow-reconciler/internal/reconcile"
)

// DefaultInterval is the sleep between two cycles.
const DefaultInterval = 30 * time.Second

// State is what the loop is doing right now.
type State string

const (
	StateIdle     State = "idle"
	StateRunning  State = "running"
	StateSleeping State = "sleeping"
	StateStopped  State = "stopped"
)

// Runner runs one full cycle. *reconcile.Reconciler implements it.
type Runner interface {
	RunCycle(ctx context.Context) reconcile.CycleReport
}

// Status is a snapshot of the loop.
type Status struct {
	State  State                  `json:"state"`
	Cycles int                    `json:"cycles"`
	Last   *reconcile.CycleReport `json:"last_cycle,omitempty"`
}

// Scheduler runs cycles until its context is cancelled.
type Scheduler struct {
	runner   Runner
	interval time.Duration
	log      logrus.FieldLogger

	mu     sync.RWMutex
	state  State
	cycles int
	last   *reconcile.CycleReport
}

// New returns a Scheduler. A non-positive interval selects DefaultInterval.
func New(runner Runner, interval time.Duration, log logrus.FieldLogger) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{runner: runner, interval: interval, log: log, state: StateIdle}
}

// Run loops settlement, expiry, fulfilment, sleep. Cancellation is honoured at the cycle
// boundary: a cycle already started runs to completion on a context that is not cancelled,
// so no order is left between a confirmed side effect and its store write. Run returns nil
// once ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	s.log.WithField("interval", s.interval.String()).Info("scheduler started")
	defer func() {
		s.setState(StateStopped)
		s.log.Info("scheduler stopped")
	}()

	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		if ctx.Err() != nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}

		s.RunOnce(context.WithoutCancel(ctx))
		if ctx.Err() != nil {
			return nil
		}

		s.setState(StateSleeping)
		timer.Reset(s.interval)
	}
}

// RunOnce runs a single cycle and records it. The state is running for its duration.
func (s *Scheduler) RunOnce(ctx context.Context) reconcile.CycleReport {
	s.setState(StateRunning)
	rep := s.runner.RunCycle(ctx)

	s.mu.Lock()
	s.cycles++
	s.last = &rep
	s.state = StateIdle
	s.mu.Unlock()
	return rep
}

// Status returns the current state, the cycle count and the last cycle report.
func (s *Scheduler) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Status{State: s.state, Cycles: s.cycles}
	if s.last != nil {
		last := *s.last
		st.Last = &last
	}
	return st
}

func (s *Scheduler) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}
