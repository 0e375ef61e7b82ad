// Package loop provides the daemon's single event-processing goroutine.
// Timers, event subscriptions, and control requests hand work to the
// loop with Post; the loop runs it one task at a time, so nothing it runs
// needs its own locking.
package loop

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Maximelego/custom-workspaces/internal/util"
)

// ErrStopped is returned by Do when the loop is no longer running.
var ErrStopped = errors.New("event loop stopped")

// Loop serializes tasks onto one goroutine.
type Loop struct {
	logger *util.Logger

	mu      sync.Mutex
	queue   []func()
	stopped bool
	wake    chan struct{}
	done    chan struct{}
}

// New returns an idle loop; call Run to start processing.
func New(logger *util.Logger) *Loop {
	return &Loop{
		logger: logger,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Post enqueues fn. It never blocks and may be called from the loop
// itself. Tasks posted after the loop stopped are dropped.
func (l *Loop) Post(fn func()) {
	if fn == nil {
		return
	}
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Do runs fn on the loop and waits for its result.
func (l *Loop) Do(ctx context.Context, fn func() error) error {
	result := make(chan error, 1)
	l.mu.Lock()
	stopped := l.stopped
	l.mu.Unlock()
	if stopped {
		return ErrStopped
	}
	l.Post(func() { result <- fn() })
	select {
	case err := <-result:
		return err
	case <-l.done:
		select {
		case err := <-result:
			return err
		default:
			return ErrStopped
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run processes tasks until ctx is cancelled. Pending tasks are dropped
// on exit.
func (l *Loop) Run(ctx context.Context) error {
	defer func() {
		l.mu.Lock()
		l.stopped = true
		l.queue = nil
		l.mu.Unlock()
		close(l.done)
	}()
	for {
		for {
			task, ok := l.next()
			if !ok {
				break
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			l.run(task)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
		}
	}
}

// Done is closed once Run has returned.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

func (l *Loop) next() (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) == 0 {
		return nil, false
	}
	task := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	return task, true
}

func (l *Loop) run(task func()) {
	defer func() {
		if r := recover(); r != nil && l.logger != nil {
			l.logger.Errorf("event loop task panicked: %v", fmt.Sprint(r))
		}
	}()
	task()
}
