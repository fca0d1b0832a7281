// Package inactivity detects silent clients of sessions whose transport
// connections are too short-lived to host an idle timer themselves. Every
// tracked session gets a dummy session which carries activity bookkeeping and
// a filter chain, the tracker periodically reports idle time to it.
package inactivity

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/centrifugal/wsgate/internal/ioloop"
	"github.com/centrifugal/wsgate/internal/wsframe"

	"github.com/rs/zerolog/log"
)

// ErrTrackerDisposed returned when adding session to disposed Tracker.
var ErrTrackerDisposed = errors.New("inactivity tracker disposed")

// Session is a tracked session.
type Session interface {
	ID() string
	IoLoop() *ioloop.Loop
	// InactivityTimeout of session, zero means no keepalive.
	InactivityTimeout() time.Duration
	IssuePingRequest(ctx context.Context)
	Close(ctx context.Context, immediately bool)
}

const defaultResolution = 100 * time.Millisecond

// Config of Tracker.
type Config struct {
	// Timeout is expected inactivity timeout of sessions, used to bound
	// scan resolution.
	Timeout time.Duration
	// Resolution is an idle scan interval, 100ms by default.
	Resolution time.Duration
}

// Tracker keeps dummy sessions of tracked sessions.
type Tracker struct {
	resolution time.Duration

	mu       sync.Mutex
	sessions map[Session]*DummySession
	disposed bool

	closeOnce sync.Once
	closeCh   chan struct{}
}

func NewTracker(cfg Config) *Tracker {
	resolution := cfg.Resolution
	if resolution <= 0 {
		resolution = defaultResolution
	}
	if cfg.Timeout > 0 && cfg.Timeout/4 < resolution {
		resolution = cfg.Timeout / 4
	}
	if resolution <= 0 {
		resolution = time.Millisecond
	}
	return &Tracker{
		resolution: resolution,
		sessions:   make(map[Session]*DummySession),
		closeCh:    make(chan struct{}),
	}
}

// Resolution of idle scan.
func (t *Tracker) Resolution() time.Duration {
	return t.resolution
}

// AddSession starts tracking s. Adding already tracked session is a no-op.
// Registration happens on the session loop.
func (t *Tracker) AddSession(ctx context.Context, s Session) error {
	if t.isDisposed() {
		return ErrTrackerDisposed
	}
	return s.IoLoop().Execute(ctx, func(context.Context) {
		t.mu.Lock()
		defer t.mu.Unlock()
		if t.disposed {
			return
		}
		if _, ok := t.sessions[s]; ok {
			return
		}
		t.sessions[s] = newDummySession(s)
	})
}

// RemoveSession stops tracking s. Removing untracked session is a no-op.
func (t *Tracker) RemoveSession(ctx context.Context, s Session) {
	err := s.IoLoop().Execute(ctx, func(context.Context) {
		t.remove(s)
	})
	if err != nil {
		t.remove(s)
	}
}

func (t *Tracker) remove(s Session) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.sessions, s)
}

// MessageReceived refreshes activity of s and passes frame to its filters.
func (t *Tracker) MessageReceived(ctx context.Context, s Session, f wsframe.Frame) {
	_ = s.IoLoop().Execute(ctx, func(ctx context.Context) {
		if d := t.dummy(s); d != nil {
			d.messageReceived(ctx, f)
		}
	})
}

// dummy returns dummy session of s, nil if s is not tracked.
func (t *Tracker) dummy(s Session) *DummySession {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sessions[s]
}

// Len is a number of tracked sessions.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}

func (t *Tracker) isDisposed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.disposed
}

// Run scans tracked sessions until ctx is done or Tracker disposed.
func (t *Tracker) Run(ctx context.Context) error {
	ticker := time.NewTicker(t.resolution)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.closeCh:
			return nil
		case now := <-ticker.C:
			t.scan(now)
		}
	}
}

func (t *Tracker) scan(now time.Time) {
	t.mu.Lock()
	dummies := make([]*DummySession, 0, len(t.sessions))
	for _, d := range t.sessions {
		dummies = append(dummies, d)
	}
	t.mu.Unlock()

	for _, d := range dummies {
		idle := d.idle(now)
		if !d.wantsIdle(idle) {
			continue
		}
		err := d.session.IoLoop().Submit(func(ctx context.Context) {
			if t.dummy(d.session) != d {
				return
			}
			d.sessionIdle(ctx, d.idle(time.Now()))
		})
		if err != nil && !errors.Is(err, ioloop.ErrLoopClosed) {
			log.Error().Err(err).Str("session", d.session.ID()).Msg("error scheduling idle check")
		}
	}
}

// Dispose stops scanning and forgets all sessions.
func (t *Tracker) Dispose() {
	t.closeOnce.Do(func() {
		t.mu.Lock()
		t.disposed = true
		t.sessions = make(map[Session]*DummySession)
		t.mu.Unlock()
		close(t.closeCh)
	})
}
