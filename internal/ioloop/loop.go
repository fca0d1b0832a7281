// Package ioloop provides single goroutine task loops. A Loop plays the role of
// an I/O thread: every piece of session or connection state is owned by exactly
// one Loop and is only mutated from tasks running on it.
package ioloop

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eapache/queue"
	"github.com/rs/zerolog/log"
)

// ErrLoopClosed returned when task submitted to a closed Loop.
var ErrLoopClosed = errors.New("loop closed")

// Task is a unit of work executed by Loop. The context passed to a Task
// identifies the Loop it runs on and must not escape the task.
type Task func(ctx context.Context)

type loopContextKey struct{}

// Loop executes submitted tasks one by one in a single goroutine in
// submission order.
type Loop struct {
	name string
	ctx  context.Context

	mu     sync.Mutex
	tasks  *queue.Queue
	closed bool

	wakeCh chan struct{}
	doneCh chan struct{}

	executed atomic.Uint64
}

// NewLoop creates Loop and starts its worker goroutine.
func NewLoop(name string) *Loop {
	l := &Loop{
		name:   name,
		tasks:  queue.New(),
		wakeCh: make(chan struct{}, 1),
		doneCh: make(chan struct{}),
	}
	l.ctx = context.WithValue(context.Background(), loopContextKey{}, l)
	go l.run()
	return l
}

// Name of Loop.
func (l *Loop) Name() string {
	return l.name
}

func (l *Loop) String() string {
	return "loop(" + l.name + ")"
}

// FromContext returns Loop the context belongs to or nil.
func FromContext(ctx context.Context) *Loop {
	if ctx == nil {
		return nil
	}
	l, _ := ctx.Value(loopContextKey{}).(*Loop)
	return l
}

// InLoop reports whether ctx is a task context of Loop l.
func InLoop(ctx context.Context, l *Loop) bool {
	return l != nil && FromContext(ctx) == l
}

// Submit schedules task for execution on Loop. It never blocks and never runs
// task inline.
func (l *Loop) Submit(task Task) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrLoopClosed
	}
	l.tasks.Add(task)
	l.mu.Unlock()
	select {
	case l.wakeCh <- struct{}{}:
	default:
	}
	return nil
}

// Execute runs task inline when ctx belongs to Loop, otherwise task is submitted
// to Loop and Execute returns immediately.
func (l *Loop) Execute(ctx context.Context, task Task) error {
	if InLoop(ctx, l) {
		task(ctx)
		return nil
	}
	return l.Submit(task)
}

// Sync waits until all tasks submitted before the call have been executed.
func (l *Loop) Sync(ctx context.Context) error {
	if InLoop(ctx, l) {
		return nil
	}
	ch := make(chan struct{})
	if err := l.Submit(func(context.Context) { close(ch) }); err != nil {
		return err
	}
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Schedule runs task on Loop after delay. Returned Timer may be used to cancel it.
func (l *Loop) Schedule(delay time.Duration, task Task) *Timer {
	tm := &Timer{}
	tm.timer = time.AfterFunc(delay, func() {
		err := l.Submit(func(ctx context.Context) {
			if tm.stopped.Load() {
				return
			}
			task(ctx)
		})
		if err != nil && !errors.Is(err, ErrLoopClosed) {
			log.Error().Err(err).Str("loop", l.name).Msg("error submitting scheduled task")
		}
	})
	return tm
}

// Executed returns the number of tasks executed so far.
func (l *Loop) Executed() uint64 {
	return l.executed.Load()
}

// Close stops accepting tasks. Already queued tasks are still executed.
func (l *Loop) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	l.mu.Unlock()
	select {
	case l.wakeCh <- struct{}{}:
	default:
	}
}

// Done is closed when worker goroutine exits after Close.
func (l *Loop) Done() <-chan struct{} {
	return l.doneCh
}

func (l *Loop) run() {
	defer close(l.doneCh)
	for {
		l.mu.Lock()
		if l.tasks.Length() == 0 {
			closed := l.closed
			l.mu.Unlock()
			if closed {
				return
			}
			<-l.wakeCh
			continue
		}
		task := l.tasks.Remove().(Task)
		l.mu.Unlock()
		l.runTask(task)
	}
}

func (l *Loop) runTask(task Task) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("loop", l.name).Str("panic", fmt.Sprint(r)).Msg("panic in loop task")
		}
		l.executed.Add(1)
	}()
	task(l.ctx)
}

// Timer is a task scheduled with delay.
type Timer struct {
	timer   *time.Timer
	stopped atomic.Bool
}

// Stop cancels Timer. Returns false if task already fired.
func (t *Timer) Stop() bool {
	t.stopped.Store(true)
	return t.timer.Stop()
}
