package ioloop

import (
	"context"
	"runtime"
	"strconv"
	"sync/atomic"
)

// Group is a fixed set of loops handed out round-robin. Every accepted
// connection and every session gets its Loop from Group.
type Group struct {
	loops []*Loop
	next  atomic.Uint64
}

// NewGroup creates Group with size loops. Non-positive size means one loop
// per CPU.
func NewGroup(name string, size int) *Group {
	if size <= 0 {
		size = runtime.NumCPU()
	}
	g := &Group{loops: make([]*Loop, size)}
	for i := range g.loops {
		g.loops[i] = NewLoop(name + "-" + strconv.Itoa(i))
	}
	return g
}

// Next returns next Loop.
func (g *Group) Next() *Loop {
	n := g.next.Add(1) - 1
	return g.loops[n%uint64(len(g.loops))]
}

// Len returns number of loops in Group.
func (g *Group) Len() int {
	return len(g.loops)
}

// Close closes all loops and waits for them to finish queued tasks.
func (g *Group) Close(ctx context.Context) error {
	for _, l := range g.loops {
		l.Close()
	}
	for _, l := range g.loops {
		select {
		case <-l.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
