package ioloop

import (
	"context"
	"errors"
	"sync/atomic"
)

// ErrNotAligned returned when executing on an object without Loop.
var ErrNotAligned = errors.New("not aligned to loop")

// Aligned is implemented by objects whose state is owned by a Loop.
type Aligned interface {
	IoLoop() *Loop
	SetIoAlignment(l *Loop)
}

// Alignment is embedded into objects owned by a Loop. Zero value is not aligned.
type Alignment struct {
	loop atomic.Pointer[Loop]
}

// IoLoop returns current owner Loop, nil if not aligned.
func (a *Alignment) IoLoop() *Loop {
	return a.loop.Load()
}

// SetIoAlignment rebinds owner. Passing nil clears alignment.
func (a *Alignment) SetIoAlignment(l *Loop) {
	a.loop.Store(l)
}

// InIoLoop reports whether ctx belongs to the owner Loop.
func (a *Alignment) InIoLoop(ctx context.Context) bool {
	return InLoop(ctx, a.loop.Load())
}

// Execute runs task on the owner Loop: inline if already there, submitted otherwise.
func (a *Alignment) Execute(ctx context.Context, task Task) error {
	l := a.loop.Load()
	if l == nil {
		return ErrNotAligned
	}
	return l.Execute(ctx, task)
}

// Realign moves c to target Loop and runs task there. When called from a
// different Loop the alignment of c is cleared first so nothing can be
// dispatched to its old Loop while the task is in flight, and rebound to
// target right before task runs.
func Realign(ctx context.Context, c Aligned, target *Loop, task Task) error {
	if InLoop(ctx, target) {
		c.SetIoAlignment(target)
		task(ctx)
		return nil
	}
	c.SetIoAlignment(nil)
	return target.Submit(func(ctx context.Context) {
		c.SetIoAlignment(target)
		task(ctx)
	})
}
