// Package schedule runs delayed actions on the event loop and supports
// bulk cancellation of everything still pending.
package schedule

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Maximelego/custom-workspaces/internal/clock"
	"github.com/Maximelego/custom-workspaces/internal/metrics"
	"github.com/Maximelego/custom-workspaces/internal/util"
)

// Handle identifies a scheduled action. It is only meaningful to the
// Scheduler that issued it.
type Handle uint64

// Action is a deferred unit of work. A returned error is logged and
// otherwise ignored.
type Action func() error

// Executor runs tasks on the event-processing goroutine.
type Executor interface {
	Post(func())
}

type entry struct {
	handle Handle
	label  string
	due    time.Time
	action Action
	timer  clock.Timer
}

// Scheduler owns the registry of pending actions.
type Scheduler struct {
	clock   clock.Clock
	exec    Executor
	logger  *util.Logger
	metrics *metrics.Collector

	mu      sync.Mutex
	next    Handle
	pending map[Handle]*entry
}

// New returns a Scheduler that arms timers on clk and runs due actions
// through exec.
func New(clk clock.Clock, exec Executor, logger *util.Logger, collector *metrics.Collector) *Scheduler {
	if clk == nil {
		clk = clock.Real()
	}
	return &Scheduler{
		clock:   clk,
		exec:    exec,
		logger:  logger,
		metrics: collector,
		pending: make(map[Handle]*entry),
	}
}

// Schedule registers action to run no earlier than delay from now.
// Negative delays are treated as zero.
func (s *Scheduler) Schedule(delay time.Duration, action Action) Handle {
	return s.ScheduleNamed(delay, "", action)
}

// ScheduleNamed is Schedule with a label used in log lines.
func (s *Scheduler) ScheduleNamed(delay time.Duration, label string, action Action) Handle {
	if delay < 0 {
		delay = 0
	}
	s.mu.Lock()
	s.next++
	h := s.next
	e := &entry{handle: h, label: label, due: s.clock.Now().Add(delay), action: action}
	s.pending[h] = e
	// The timer is armed under the lock so a concurrent CancelAll either
	// sees no entry or an entry with its timer set. Timers only wake the
	// loop; runDue decides what runs and in which order.
	e.timer = s.clock.AfterFunc(delay, func() {
		s.exec.Post(s.runDue)
	})
	s.mu.Unlock()
	s.metrics.RecordScheduled()
	return h
}

// CancelAll drops every action that has not fired yet and reports how
// many were dropped. Already-fired actions are unaffected.
func (s *Scheduler) CancelAll() int {
	s.mu.Lock()
	pending := s.pending
	s.pending = make(map[Handle]*entry)
	s.mu.Unlock()
	for _, e := range pending {
		if e.timer != nil {
			e.timer.Stop()
		}
	}
	if n := len(pending); n > 0 {
		s.metrics.RecordCancelled(n)
		if s.logger != nil {
			s.logger.Debugf("cancelled %d pending actions", n)
		}
	}
	return len(pending)
}

// Pending reports how many actions are registered and not yet fired.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// runDue runs every registered action whose due time has passed, ordered
// by due time and then by handle. Timer callbacks race each other to the
// executor, so the order they arrive in is not the order actions run in.
func (s *Scheduler) runDue() {
	now := s.clock.Now()
	s.mu.Lock()
	var due []*entry
	for _, e := range s.pending {
		if !e.due.After(now) {
			due = append(due, e)
		}
	}
	s.mu.Unlock()
	sort.Slice(due, func(i, j int) bool {
		if due[i].due.Equal(due[j].due) {
			return due[i].handle < due[j].handle
		}
		return due[i].due.Before(due[j].due)
	})
	for _, e := range due {
		s.fire(e.handle)
	}
}

// fire runs the action registered under h unless it already ran or was
// cancelled, possibly by an action earlier in the same batch.
func (s *Scheduler) fire(h Handle) {
	s.mu.Lock()
	e, ok := s.pending[h]
	if ok {
		delete(s.pending, h)
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	if e.timer != nil {
		e.timer.Stop()
	}
	s.metrics.RecordFired()
	if err := s.invoke(e.action); err != nil {
		s.metrics.RecordFailed()
		if s.logger != nil {
			if e.label != "" {
				s.logger.Warnf("scheduled action %s failed: %v", e.label, err)
			} else {
				s.logger.Warnf("scheduled action failed: %v", err)
			}
		}
	}
}

func (s *Scheduler) invoke(action Action) (err error) {
	if action == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return action()
}
