package inactivity

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/centrifugal/wsgate/internal/metrics"
	"github.com/centrifugal/wsgate/internal/wsframe"

	"github.com/rs/zerolog/log"
)

// Filter observes events of a dummy session. Methods are called on the
// session loop.
type Filter interface {
	// IdleThreshold is an idle duration after which SessionIdle starts to be called.
	IdleThreshold() time.Duration
	SessionIdle(ctx context.Context, d *DummySession, idle time.Duration)
	MessageReceived(ctx context.Context, d *DummySession, f wsframe.Frame)
}

// DummySession stands in for a tracked session. No I/O happens on it: its
// writes and close requests are forwarded to the tracked session.
type DummySession struct {
	session      Session
	lastActivity atomic.Int64
	filters      []Filter

	// Owned by session loop.
	pingOutstanding bool
}

func newDummySession(s Session) *DummySession {
	d := &DummySession{session: s}
	d.lastActivity.Store(time.Now().UnixNano())
	if timeout := s.InactivityTimeout(); timeout > 0 {
		d.filters = append(d.filters, newKeepaliveFilter(timeout))
	}
	return d
}

// Session tracked by dummy.
func (d *DummySession) Session() Session {
	return d.session
}

func (d *DummySession) LastActivity() time.Time {
	return time.Unix(0, d.lastActivity.Load())
}

func (d *DummySession) idle(now time.Time) time.Duration {
	return now.Sub(d.LastActivity())
}

func (d *DummySession) wantsIdle(idle time.Duration) bool {
	for _, f := range d.filters {
		if idle >= f.IdleThreshold() {
			return true
		}
	}
	return false
}

func (d *DummySession) sessionIdle(ctx context.Context, idle time.Duration) {
	for _, f := range d.filters {
		if idle >= f.IdleThreshold() {
			f.SessionIdle(ctx, d, idle)
		}
	}
}

func (d *DummySession) messageReceived(ctx context.Context, f wsframe.Frame) {
	d.lastActivity.Store(time.Now().UnixNano())
	for _, filter := range d.filters {
		filter.MessageReceived(ctx, d, f)
	}
}

// WritePing asks tracked session to ping client.
func (d *DummySession) WritePing(ctx context.Context) {
	metrics.InactivityPingsTotal.Inc()
	d.session.IssuePingRequest(ctx)
}

// RequestClose closes tracked session immediately.
func (d *DummySession) RequestClose(ctx context.Context) {
	metrics.InactivityClosesTotal.Inc()
	log.Debug().Str("session", d.session.ID()).Msg("closing inactive session")
	d.session.Close(ctx, true)
}

// keepaliveFilter pings silent client after a half of timeout and closes
// session once timeout passed.
type keepaliveFilter struct {
	timeout time.Duration
}

func newKeepaliveFilter(timeout time.Duration) *keepaliveFilter {
	return &keepaliveFilter{timeout: timeout}
}

func (k *keepaliveFilter) IdleThreshold() time.Duration {
	return k.timeout / 2
}

func (k *keepaliveFilter) SessionIdle(ctx context.Context, d *DummySession, idle time.Duration) {
	if idle >= k.timeout {
		d.RequestClose(ctx)
		return
	}
	if !d.pingOutstanding {
		d.pingOutstanding = true
		d.WritePing(ctx)
	}
}

// MessageReceived clears outstanding ping on any frame, pong or not.
func (k *keepaliveFilter) MessageReceived(_ context.Context, d *DummySession, _ wsframe.Frame) {
	d.pingOutstanding = false
}
